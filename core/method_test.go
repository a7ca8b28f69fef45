package core

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/lisuiheng/soundstream-go/audio"
)

func TestHandleMethodCall(t *testing.T) {
	f := newStreamFixture(t, StaticPermission(true))
	ctx := context.Background()
	frame := base64.StdEncoding.EncodeToString(audio.Int16ToBytes(ramp(0, audio.FrameSize)))

	// 按顺序执行，后面的调用依赖前面的状态
	tests := []struct {
		name     string
		call     MethodCall
		wantOK   bool
		wantCode string
		check    func(t *testing.T, res MethodResult)
	}{
		{
			name:   "hasPermission",
			call:   MethodCall{Method: MethodHasPermission},
			wantOK: true,
			check: func(t *testing.T, res MethodResult) {
				if res.Result != true {
					t.Errorf("Expected true, got %v", res.Result)
				}
			},
		},
		{
			name:     "startRecording before init",
			call:     MethodCall{Method: MethodStartRecording},
			wantCode: string(audio.FailedToRecord),
		},
		{
			name:   "initializeRecorder ignores sample rate",
			call:   MethodCall{Method: MethodInitializeRecorder, Args: map[string]any{"sampleRate": float64(44100), "showLogs": false}},
			wantOK: true,
			check: func(t *testing.T, res MethodResult) {
				r, ok := res.Result.(audio.InitResult)
				if !ok || !r.Success || !r.IsMeteringEnabled {
					t.Errorf("Unexpected init result %#v", res.Result)
				}
			},
		},
		{
			name:     "initializeRecorder bad showLogs",
			call:     MethodCall{Method: MethodInitializeRecorder, Args: map[string]any{"showLogs": "yes"}},
			wantCode: string(audio.Unknown),
		},
		{name: "startRecording", call: MethodCall{Method: MethodStartRecording}, wantOK: true},
		{name: "startRecording again", call: MethodCall{Method: MethodStartRecording}, wantOK: true},
		{name: "stopRecording", call: MethodCall{Method: MethodStopRecording}, wantOK: true},
		{name: "initializePlayer", call: MethodCall{Method: MethodInitializePlayer}, wantOK: true},
		{
			name:     "writeChunk before start",
			call:     MethodCall{Method: MethodWriteChunk, Args: map[string]any{"data": frame}},
			wantCode: string(audio.FailedToWriteBuffer),
		},
		{name: "startPlayer", call: MethodCall{Method: MethodStartPlayer}, wantOK: true},
		{name: "writeChunk base64", call: MethodCall{Method: MethodWriteChunk, Args: map[string]any{"data": frame}}, wantOK: true},
		{
			name:   "writeChunk bytes",
			call:   MethodCall{Method: MethodWriteChunk, Args: map[string]any{"data": audio.Int16ToBytes(ramp(1, audio.FrameSize))}},
			wantOK: true,
		},
		{
			name:     "writeChunk null",
			call:     MethodCall{Method: MethodWriteChunk, Args: map[string]any{"data": nil}},
			wantCode: string(audio.FailedToWriteBuffer),
			check: func(t *testing.T, res MethodResult) {
				if res.Error.Details != "'data' is null" {
					t.Errorf("Unexpected details %q", res.Error.Details)
				}
			},
		},
		{
			name:     "writeChunk empty",
			call:     MethodCall{Method: MethodWriteChunk, Args: map[string]any{"data": ""}},
			wantCode: string(audio.EmptyDecode),
		},
		{name: "stopPlayer", call: MethodCall{Method: MethodStopPlayer}, wantOK: true},
		{name: "unknown method", call: MethodCall{Method: "setVolume"}, wantCode: CodeNotImplemented},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := f.stream.HandleMethodCall(ctx, tt.call)
			if res.Success != tt.wantOK {
				t.Fatalf("Expected success=%v, got %+v (error %+v)", tt.wantOK, res, res.Error)
			}
			if tt.wantCode != "" {
				if res.Error == nil || res.Error.Code != tt.wantCode {
					t.Fatalf("Expected error code %s, got %+v", tt.wantCode, res.Error)
				}
			} else if res.Error != nil {
				t.Fatalf("Unexpected error %+v", res.Error)
			}
			if tt.check != nil {
				tt.check(t, res)
			}
		})
	}

	if got := f.playback.WriteCount(); got != 2 {
		t.Errorf("Expected 2 chunks played, got %d", got)
	}
}

func TestFailureMessageSplitsStreamError(t *testing.T) {
	err := &audio.StreamError{Kind: audio.FailedToStop, Message: "Failed to stop Player", Err: errRaw("device stuck")}
	res := failure(err)

	if res.Success {
		t.Fatal("failure() produced a successful result")
	}
	want := MethodError{Code: "FailedToStop", Message: "Failed to stop Player", Details: "device stuck"}
	if *res.Error != want {
		t.Errorf("Expected %+v, got %+v", want, *res.Error)
	}
}

type errRaw string

func (e errRaw) Error() string { return string(e) }
