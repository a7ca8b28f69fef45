package core

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/lisuiheng/soundstream-go/audio"
)

// 方法名
const (
	MethodHasPermission      = "hasPermission"
	MethodInitializeRecorder = "initializeRecorder"
	MethodStartRecording     = "startRecording"
	MethodStopRecording      = "stopRecording"
	MethodInitializePlayer   = "initializePlayer"
	MethodStartPlayer        = "startPlayer"
	MethodStopPlayer         = "stopPlayer"
	MethodWriteChunk         = "writeChunk"
)

// CodeNotImplemented 未知方法的错误码
const CodeNotImplemented = "notImplemented"

// MethodCall 一次方法调用
type MethodCall struct {
	ID     string         `json:"id,omitempty"`
	Method string         `json:"method"`
	Args   map[string]any `json:"args,omitempty"`
}

// MethodError 调用失败时返回给调用方的错误
type MethodError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// MethodResult 调用结果
type MethodResult struct {
	Success bool         `json:"success"`
	Result  any          `json:"result,omitempty"`
	Error   *MethodError `json:"error,omitempty"`
}

// HandleMethodCall 按方法名分发调用。错误转换为错误码，panic 转为 Unknown。
func (s *SoundStream) HandleMethodCall(ctx context.Context, call MethodCall) (res MethodResult) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Method call panicked", "method", call.Method, "panic", r)
			res = MethodResult{Error: &MethodError{
				Code:    string(audio.Unknown),
				Message: "unexpected failure",
				Details: fmt.Sprint(r),
			}}
		}
		s.metrics.MethodCall(call.Method, res.Success)
	}()

	s.logger.Debug("Method call", "method", call.Method, "id", call.ID)

	switch call.Method {
	case MethodHasPermission:
		return success(s.HasPermission())

	case MethodInitializeRecorder:
		args, err := recorderArgs(call.Args)
		if err != nil {
			return failure(err)
		}
		result, err := s.InitializeRecorder(ctx, args)
		if err != nil {
			return failure(err)
		}
		return success(result)

	case MethodStartRecording:
		return boolResult(s.StartRecording())

	case MethodStopRecording:
		return boolResult(s.StopRecording())

	case MethodInitializePlayer:
		args, err := recorderArgs(call.Args)
		if err != nil {
			return failure(err)
		}
		return boolResult(s.InitializePlayer(PlayerArgs(args)))

	case MethodStartPlayer:
		return boolResult(s.StartPlayer())

	case MethodStopPlayer:
		return boolResult(s.StopPlayer())

	case MethodWriteChunk:
		data, err := chunkArg(call.Args)
		if err != nil {
			return failure(err)
		}
		return boolResult(s.WriteChunk(data))

	default:
		return MethodResult{Error: &MethodError{
			Code:    CodeNotImplemented,
			Message: fmt.Sprintf("method %q not implemented", call.Method),
		}}
	}
}

func success(v any) MethodResult {
	return MethodResult{Success: true, Result: v}
}

func boolResult(ok bool, err error) MethodResult {
	if err != nil {
		return failure(err)
	}
	return success(ok)
}

func failure(err error) MethodResult {
	me := &MethodError{Code: string(audio.KindOf(err)), Message: err.Error()}

	var se *audio.StreamError
	if errors.As(err, &se) {
		me.Message = se.Message
		if se.Err != nil {
			me.Details = se.Err.Error()
		}
	}
	return MethodResult{Error: me}
}

func recorderArgs(args map[string]any) (RecorderArgs, error) {
	var out RecorderArgs
	if v, ok := args["showLogs"]; ok && v != nil {
		b, ok := v.(bool)
		if !ok {
			return out, fmt.Errorf("%w: showLogs must be a boolean", ErrInvalidArgument)
		}
		out.ShowLogs = b
	}
	if v, ok := args["sampleRate"]; ok && v != nil {
		switch n := v.(type) {
		case float64:
			out.SampleRate = int(n)
		case int:
			out.SampleRate = n
		default:
			return out, fmt.Errorf("%w: sampleRate must be a number", ErrInvalidArgument)
		}
	}
	return out, nil
}

// chunkArg 读取 data 参数，接受原始字节或 base64 字符串。
// 缺失或为 null 时返回 nil，由播放器报告 FailedToWriteBuffer。
func chunkArg(args map[string]any) ([]byte, error) {
	switch v := args["data"].(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		data, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("%w: data is not valid base64: %v", ErrInvalidArgument, err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: data must be bytes", ErrInvalidArgument)
	}
}
