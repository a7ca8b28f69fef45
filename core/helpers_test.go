package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lisuiheng/soundstream-go/audio"
	"github.com/lisuiheng/soundstream-go/audio/audiotest"
	"github.com/lisuiheng/soundstream-go/pkg/interfaces"
)

type streamFixture struct {
	stream   *SoundStream
	capture  *audiotest.Capture
	playback *audiotest.Playback
}

func newStreamFixture(t *testing.T, perm audio.PermissionRequester) *streamFixture {
	t.Helper()
	f := &streamFixture{
		capture:  &audiotest.Capture{},
		playback: &audiotest.Playback{},
	}
	s, err := NewSoundStream(Options{
		Permission:   perm,
		OpenCapture:  f.capture.Opener(),
		OpenPlayback: f.playback.Opener(),
		CodecFactory: &audiotest.PCMCodec{},
	})
	if err != nil {
		t.Fatalf("NewSoundStream: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	f.stream = s
	return f
}

func ramp(start, n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(start + i)
	}
	return out
}

// nextEvent 在超时前读取下一个事件
func nextEvent(t *testing.T, s *SoundStream) audio.Event {
	t.Helper()
	select {
	case ev, ok := <-s.Events():
		if !ok {
			t.Fatal("Event channel closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for event")
	}
	return audio.Event{}
}

// fakeTransport 内存传输，Receive 通道由测试写入，Drop 模拟断线
type fakeTransport struct {
	recv       chan interfaces.Message
	sent       chan interfaces.Message
	connectErr error

	closed    chan struct{}
	closeOnce sync.Once
	dropOnce  sync.Once
}

var _ interfaces.TransportProtocol = (*fakeTransport)(nil)

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		recv:   make(chan interfaces.Message, 16),
		sent:   make(chan interfaces.Message, 256),
		closed: make(chan struct{}),
	}
}

func (f *fakeTransport) Connect(context.Context) error { return f.connectErr }

func (f *fakeTransport) Send(data []byte, msgType interfaces.MessageType) error {
	select {
	case <-f.closed:
		return interfaces.ErrConnectionClosed
	default:
	}
	f.sent <- interfaces.Message{Payload: append([]byte(nil), data...), Type: msgType}
	return nil
}

func (f *fakeTransport) Receive() <-chan interfaces.Message { return f.recv }

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) ProtocolType() string { return "fake" }

// Drop 关闭接收通道，模拟远端断开
func (f *fakeTransport) Drop() {
	f.dropOnce.Do(func() { close(f.recv) })
}

func (f *fakeTransport) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}
