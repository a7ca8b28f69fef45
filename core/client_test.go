package core

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/lisuiheng/soundstream-go/audio"
	"github.com/lisuiheng/soundstream-go/pkg/interfaces"
)

// instantBackoff 不等待，记录调用次数
type instantBackoff struct {
	mu     sync.Mutex
	next   int
	resets int
}

func (b *instantBackoff) NextDelay() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	return 0
}

func (b *instantBackoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resets++
}

// transportQueue 依次交出预先创建的传输实例
type transportQueue struct {
	mu    sync.Mutex
	items []*fakeTransport
}

func newTransportQueue(items ...*fakeTransport) *transportQueue {
	return &transportQueue{items: items}
}

func (q *transportQueue) factory(Config, *slog.Logger) (interfaces.TransportProtocol, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, errors.New("no more transports")
	}
	t := q.items[0]
	q.items = q.items[1:]
	return t, nil
}

type clientHarness struct {
	stream  *streamFixture
	client  *Client
	backoff *instantBackoff
	cancel  context.CancelFunc
	done    chan error
}

func startClient(t *testing.T, transports ...*fakeTransport) *clientHarness {
	t.Helper()
	h := &clientHarness{
		stream:  newStreamFixture(t, StaticPermission(true)),
		backoff: &instantBackoff{},
		done:    make(chan error, 1),
	}
	q := newTransportQueue(transports...)

	var err error
	h.client, err = NewClient(Config{}, h.stream.stream, slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithTransportFactory(q.factory),
		WithBackoff(h.backoff))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.client.Run(ctx) }()
	t.Cleanup(h.stop)
	return h
}

func (h *clientHarness) stop() {
	h.cancel()
	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
	}
}

// nextSent 读取传输上发出的下一条消息
func nextSent(t *testing.T, ft *fakeTransport) interfaces.Message {
	t.Helper()
	select {
	case msg := <-ft.sent:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for outgoing message")
	}
	return interfaces.Message{}
}

func decodeJSON(t *testing.T, msg interfaces.Message) map[string]any {
	t.Helper()
	if msg.Type != interfaces.MsgText {
		t.Fatalf("Expected text message, got %s", msg.Type)
	}
	var m map[string]any
	if err := json.Unmarshal(msg.Payload, &m); err != nil {
		t.Fatalf("Invalid JSON %q: %v", msg.Payload, err)
	}
	return m
}

// awaitResult 跳过事件消息，返回指定 id 的调用结果
func awaitResult(t *testing.T, ft *fakeTransport, id string) map[string]any {
	t.Helper()
	for {
		msg := nextSent(t, ft)
		if msg.Type != interfaces.MsgText {
			continue
		}
		m := decodeJSON(t, msg)
		if m["type"] == "result" && m["id"] == id {
			return m
		}
	}
}

func callMethod(ft *fakeTransport, id, method string, args map[string]any) {
	payload, _ := json.Marshal(map[string]any{"type": "method", "id": id, "method": method, "args": args})
	ft.recv <- interfaces.Message{Type: interfaces.MsgText, Payload: payload}
}

func expectHello(t *testing.T, ft *fakeTransport) {
	t.Helper()
	hello := decodeJSON(t, nextSent(t, ft))
	if hello["type"] != "hello" || hello["transport"] != "fake" {
		t.Fatalf("Unexpected hello %v", hello)
	}
	params, _ := hello["audio_params"].(map[string]any)
	if params["sample_rate"] != float64(8000) || params["frame_duration"] != float64(20) || params["format"] != "opus" {
		t.Errorf("Unexpected audio params %v", params)
	}
}

func TestClientRecordingFlow(t *testing.T) {
	ft := newFakeTransport()
	h := startClient(t, ft)
	expectHello(t, ft)

	callMethod(ft, "1", MethodInitializeRecorder, nil)
	res := awaitResult(t, ft, "1")
	if res["success"] != true {
		t.Fatalf("initializeRecorder failed: %v", res)
	}
	result, _ := res["result"].(map[string]any)
	if result["isMeteringEnabled"] != true {
		t.Errorf("Expected metering flag, got %v", result)
	}

	callMethod(ft, "2", MethodStartRecording, nil)
	if res := awaitResult(t, ft, "2"); res["success"] != true {
		t.Fatalf("startRecording failed: %v", res)
	}

	h.stream.capture.Feed(ramp(0, audio.FrameSize*2))

	var frames [][]byte
	for len(frames) < 2 {
		msg := nextSent(t, ft)
		if msg.Type == interfaces.MsgBinary {
			frames = append(frames, msg.Payload)
		}
	}
	for i, f := range frames {
		pcm := audio.BytesToInt16(f)
		if len(pcm) != audio.FrameSize || pcm[0] != int16(i*audio.FrameSize) {
			t.Errorf("Binary frame %d out of order", i)
		}
	}
	if h.client.State() != ConnStateConnected {
		t.Errorf("Expected connected, got %s", h.client.State())
	}
}

func TestClientForwardsStatusEvents(t *testing.T) {
	ft := newFakeTransport()
	startClient(t, ft)
	expectHello(t, ft)

	ft.recv <- interfaces.Message{Type: interfaces.MsgText, Payload: []byte(`{"type":"hello","session_id":"s-1"}`)}
	callMethod(ft, "p", MethodInitializePlayer, nil)

	for {
		m := decodeJSON(t, nextSent(t, ft))
		if m["type"] != "event" {
			continue
		}
		if m["name"] != audio.EventPlayerStatus || m["data"] != "Initialized" {
			t.Fatalf("Unexpected event %v", m)
		}
		// hello 在方法调用之前处理，事件一定带有会话 id
		if m["session_id"] != "s-1" {
			t.Errorf("Expected session id s-1, got %v", m["session_id"])
		}
		return
	}
}

func TestClientPlaysInboundAudio(t *testing.T) {
	ft := newFakeTransport()
	h := startClient(t, ft)
	expectHello(t, ft)

	callMethod(ft, "1", MethodInitializePlayer, nil)
	awaitResult(t, ft, "1")
	callMethod(ft, "2", MethodStartPlayer, nil)
	awaitResult(t, ft, "2")

	ft.recv <- interfaces.Message{Type: interfaces.MsgBinary, Payload: audio.Int16ToBytes(ramp(7, audio.FrameSize))}
	// 无效包只记录日志，不影响后续播放
	ft.recv <- interfaces.Message{Type: interfaces.MsgBinary, Payload: []byte{}}
	ft.recv <- interfaces.Message{Type: interfaces.MsgBinary, Payload: audio.Int16ToBytes(ramp(9, audio.FrameSize))}

	deadline := time.Now().Add(2 * time.Second)
	for h.stream.playback.WriteCount() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("Expected 2 chunks played, got %d", h.stream.playback.WriteCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestClientUnknownMethod(t *testing.T) {
	ft := newFakeTransport()
	startClient(t, ft)
	expectHello(t, ft)

	callMethod(ft, "x", "getAmplitude", nil)
	res := awaitResult(t, ft, "x")
	if res["success"] != false {
		t.Fatalf("Expected failure, got %v", res)
	}
	e, _ := res["error"].(map[string]any)
	if e["code"] != CodeNotImplemented {
		t.Errorf("Expected notImplemented, got %v", e)
	}
}

func TestClientReconnects(t *testing.T) {
	failing := newFakeTransport()
	failing.connectErr = errors.New("refused")
	first := newFakeTransport()
	second := newFakeTransport()

	h := startClient(t, failing, first, second)
	expectHello(t, first)

	first.Drop()
	expectHello(t, second)

	if !failing.isClosed() || !first.isClosed() {
		t.Error("Previous transports were not closed")
	}

	h.backoff.mu.Lock()
	next, resets := h.backoff.next, h.backoff.resets
	h.backoff.mu.Unlock()
	if next != 2 {
		t.Errorf("Expected 2 backoff delays, got %d", next)
	}
	if resets < 1 {
		t.Errorf("Expected backoff reset after connecting, got %d", resets)
	}

	callMethod(second, "1", MethodHasPermission, nil)
	if res := awaitResult(t, second, "1"); res["result"] != true {
		t.Errorf("Unexpected result on new connection %v", res)
	}
}

func TestClientStopsWhenStreamCloses(t *testing.T) {
	ft := newFakeTransport()
	h := startClient(t, ft)
	expectHello(t, ft)

	if err := h.stream.stream.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case err := <-h.done:
		if err != nil {
			t.Errorf("Expected nil from Run, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the stream closed")
	}
	if h.client.State() != ConnStateDisconnected {
		t.Errorf("Expected disconnected, got %s", h.client.State())
	}
}

func TestClientRunStopsOnCancel(t *testing.T) {
	ft := newFakeTransport()
	h := startClient(t, ft)
	expectHello(t, ft)

	h.cancel()
	select {
	case err := <-h.done:
		if err != nil {
			t.Errorf("Expected nil from Run, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if !ft.isClosed() {
		t.Error("Transport not closed on shutdown")
	}
}

func TestNewProtocol(t *testing.T) {
	var cfg Config
	cfg.System.Network.Transport = "mqtt"
	_, err := NewProtocol(cfg, slog.Default())
	if !errors.Is(err, ErrUnsupportedProtocol) {
		t.Errorf("Expected ErrUnsupportedProtocol, got %v", err)
	}
	if !errors.Is(err, interfaces.ErrUnsupportedProtocol) {
		t.Errorf("Transport layer sentinel should match, got %v", err)
	}

	cfg.System.Network.Transport = "websocket"
	if _, err := NewProtocol(cfg, slog.Default()); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig without websocket section, got %v", err)
	}

	cfg.System.Network.Websocket = &WebsocketConfig{URL: "ws://127.0.0.1:1/"}
	p, err := NewProtocol(cfg, slog.Default())
	if err != nil {
		t.Fatalf("NewProtocol: %v", err)
	}
	if p.ProtocolType() != "websocket" {
		t.Errorf("Unexpected protocol %s", p.ProtocolType())
	}
}

func TestClientRunUnsupportedProtocol(t *testing.T) {
	f := newStreamFixture(t, StaticPermission(true))
	var cfg Config
	cfg.System.Network.Transport = "carrier-pigeon"

	c, err := NewClient(cfg, f.stream, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if err := c.Run(context.Background()); !errors.Is(err, ErrUnsupportedProtocol) {
		t.Errorf("Expected ErrUnsupportedProtocol, got %v", err)
	}
}
