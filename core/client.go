package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lisuiheng/soundstream-go/audio"
	"github.com/lisuiheng/soundstream-go/metrics"
	"github.com/lisuiheng/soundstream-go/pkg/interfaces"
	"github.com/lisuiheng/soundstream-go/protocols/websocket"
	"github.com/lisuiheng/soundstream-go/utils"
	"golang.org/x/sync/errgroup"
)

// methodQueueSize 等待执行的方法调用数上限，超出时接收协程阻塞
const methodQueueSize = 16

// ConnState 表示连接状态
type ConnState string

const (
	ConnStateIdle         ConnState = "idle"
	ConnStateConnecting   ConnState = "connecting"
	ConnStateConnected    ConnState = "connected"
	ConnStateDisconnected ConnState = "disconnected"
)

// TransportFactory 为每次连接创建新的传输实例
type TransportFactory func(cfg Config, logger *slog.Logger) (interfaces.TransportProtocol, error)

type ClientOption func(*Client)

func WithTransportFactory(f TransportFactory) ClientOption {
	return func(c *Client) { c.newTransport = f }
}

func WithBackoff(b utils.ReconnectStrategy) ClientOption {
	return func(c *Client) { c.backoff = b }
}

func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// Client 把 SoundStream 桥接到远端：编码帧和状态事件发往服务器，
// 收到的音频包写入播放器，收到的方法调用交给 HandleMethodCall。
type Client struct {
	config       Config
	stream       *SoundStream
	newTransport TransportFactory
	backoff      utils.ReconnectStrategy
	metrics      *metrics.Metrics
	logger       *slog.Logger

	stateMutex sync.RWMutex
	state      ConnState
	sessionID  string
}

// Status 包含客户端状态信息
type Status struct {
	State     ConnState
	SessionID string
	Recorder  audio.Status
	Player    audio.Status
	Dropped   uint64
}

// 发送和接收的消息格式
type (
	helloMessage struct {
		Type        string      `json:"type"`
		Version     int         `json:"version"`
		Transport   string      `json:"transport"`
		AudioParams audioParams `json:"audio_params"`
	}

	audioParams struct {
		Format        string `json:"format"`
		SampleRate    int    `json:"sample_rate"`
		Channels      int    `json:"channels"`
		FrameDuration int    `json:"frame_duration"`
	}

	eventMessage struct {
		Type      string `json:"type"`
		SessionID string `json:"session_id,omitempty"`
		Name      string `json:"name"`
		Data      any    `json:"data"`
	}

	resultMessage struct {
		Type string `json:"type"`
		ID   string `json:"id,omitempty"`
		MethodResult
	}

	inboundMessage struct {
		Type      string         `json:"type"`
		SessionID string         `json:"session_id,omitempty"`
		ID        string         `json:"id,omitempty"`
		Method    string         `json:"method,omitempty"`
		Args      map[string]any `json:"args,omitempty"`
	}
)

// NewClient 创建客户端，stream 的生命周期由调用方管理
func NewClient(cfg Config, stream *SoundStream, log *slog.Logger, opts ...ClientOption) (*Client, error) {
	if log == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if stream == nil {
		return nil, errors.New("sound stream cannot be nil")
	}

	c := &Client{
		config:       cfg,
		stream:       stream,
		newTransport: NewProtocol,
		backoff:      utils.NewExponentialBackoffWith(cfg.Reconnect.InitialDelay, cfg.Reconnect.MaxDelay),
		logger:       log,
		state:        ConnStateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run 启动客户端主循环。断线后按退避策略重连，
// ctx 结束或事件流关闭时返回 nil，配置错误直接返回。
func (c *Client) Run(ctx context.Context) error {
	c.logger.Info("Starting client main loop")
	defer c.logger.Info("Client main loop stopped")
	defer c.setState(ConnStateDisconnected)

	for {
		err := c.connectAndServe(ctx)
		switch {
		case ctx.Err() != nil:
			c.logger.Info("Context cancelled, stopping client")
			return nil
		case errors.Is(err, ErrStreamClosed):
			c.logger.Info("Sound stream closed, stopping client")
			return nil
		case errors.Is(err, ErrUnsupportedProtocol), errors.Is(err, ErrInvalidConfig):
			return err
		}

		c.setState(ConnStateDisconnected)
		delay := c.backoff.NextDelay()
		c.metrics.Reconnect()
		c.logger.Warn("Connection lost, reconnecting", "error", err, "delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.logger.Info("Context cancelled, stopping client")
			return nil
		case <-timer.C:
		}
	}
}

func (c *Client) connectAndServe(ctx context.Context) error {
	c.setState(ConnStateConnecting)
	c.logger.Info("Connecting to server", "transport", c.config.System.Network.Transport)

	transport, err := c.newTransport(c.config, c.logger)
	if err != nil {
		c.logger.Error("Failed to create transport", "error", err)
		return err
	}
	defer transport.Close()

	if err := transport.Connect(ctx); err != nil {
		c.logger.Error("Failed to connect to server", "error", err)
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	if err := c.sendHello(transport); err != nil {
		c.logger.Error("Failed to send hello message", "error", err)
		return fmt.Errorf("%w: failed to send hello: %v", ErrConnectionFailed, err)
	}

	c.backoff.Reset()
	c.setState(ConnStateConnected)
	c.logger.Info("Connected to server successfully")

	return c.serve(ctx, transport)
}

// serve 在一次连接上运行三个协程：事件转发、消息接收、方法执行。
// 方法调用单独执行，等待权限时不会阻塞音频播放。
func (c *Client) serve(ctx context.Context, t interfaces.TransportProtocol) error {
	g, gctx := errgroup.WithContext(ctx)
	calls := make(chan MethodCall, methodQueueSize)

	g.Go(func() error { return c.eventPump(gctx, t) })
	g.Go(func() error { return c.receivePump(gctx, t, calls) })
	g.Go(func() error { return c.methodWorker(gctx, t, calls) })

	return g.Wait()
}

func (c *Client) sendHello(t interfaces.TransportProtocol) error {
	session := c.stream.Session()
	return c.sendJSON(t, helloMessage{
		Type:      "hello",
		Version:   1,
		Transport: t.ProtocolType(),
		AudioParams: audioParams{
			Format:        "opus",
			SampleRate:    session.SampleRate,
			Channels:      session.Channels,
			FrameDuration: audio.FrameDuration,
		},
	})
}

// eventPump 按产生顺序转发事件：数据帧为二进制消息，状态为 JSON
func (c *Client) eventPump(ctx context.Context, t interfaces.TransportProtocol) error {
	events := c.stream.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return ErrStreamClosed
			}
			if err := c.forwardEvent(t, ev); err != nil {
				return fmt.Errorf("%w: %v", ErrConnectionLost, err)
			}
		}
	}
}

func (c *Client) forwardEvent(t interfaces.TransportProtocol, ev audio.Event) error {
	if ev.Name == audio.EventDataPeriod {
		if data, ok := ev.Data.([]byte); ok {
			return t.Send(data, interfaces.MsgBinary)
		}
	}
	return c.sendJSON(t, eventMessage{
		Type:      "event",
		SessionID: c.SessionID(),
		Name:      ev.Name,
		Data:      ev.Data,
	})
}

func (c *Client) receivePump(ctx context.Context, t interfaces.TransportProtocol, calls chan<- MethodCall) error {
	incoming := t.Receive()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-incoming:
			if !ok {
				return ErrConnectionLost
			}
			switch msg.Type {
			case interfaces.MsgBinary:
				c.handleAudio(msg.Payload)
			case interfaces.MsgText:
				if err := c.handleText(ctx, msg.Payload, calls); err != nil {
					return err
				}
			default:
				c.logger.Debug("Ignoring control message", "size", len(msg.Payload))
			}
		}
	}
}

// handleAudio 每个二进制消息是一个编码帧
func (c *Client) handleAudio(data []byte) {
	if _, err := c.stream.WriteChunk(data); err != nil {
		c.logger.Warn("Failed to play chunk",
			"kind", audio.KindOf(err),
			"size", len(data),
			"error", err)
	}
}

func (c *Client) handleText(ctx context.Context, data []byte, calls chan<- MethodCall) error {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Warn("Failed to parse message", "error", err)
		return nil
	}

	switch msg.Type {
	case "hello":
		c.stateMutex.Lock()
		c.sessionID = msg.SessionID
		c.stateMutex.Unlock()
		c.logger.Info("Session established", "session_id", msg.SessionID)
	case "method":
		select {
		case calls <- MethodCall{ID: msg.ID, Method: msg.Method, Args: msg.Args}:
		case <-ctx.Done():
			return ctx.Err()
		}
	default:
		c.logger.Warn("Unknown message type", "type", msg.Type)
	}
	return nil
}

func (c *Client) methodWorker(ctx context.Context, t interfaces.TransportProtocol, calls <-chan MethodCall) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case call := <-calls:
			res := c.stream.HandleMethodCall(ctx, call)
			if err := c.sendJSON(t, resultMessage{Type: "result", ID: call.ID, MethodResult: res}); err != nil {
				return fmt.Errorf("%w: %v", ErrConnectionLost, err)
			}
		}
	}
}

func (c *Client) sendJSON(t interfaces.TransportProtocol, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return t.Send(data, interfaces.MsgText)
}

func (c *Client) State() ConnState {
	c.stateMutex.RLock()
	defer c.stateMutex.RUnlock()
	return c.state
}

func (c *Client) SessionID() string {
	c.stateMutex.RLock()
	defer c.stateMutex.RUnlock()
	return c.sessionID
}

// GetStatus 返回连接和音频状态
func (c *Client) GetStatus() Status {
	return Status{
		State:     c.State(),
		SessionID: c.SessionID(),
		Recorder:  c.stream.RecorderStatus(),
		Player:    c.stream.PlayerStatus(),
		Dropped:   c.stream.DroppedEvents(),
	}
}

func (c *Client) setState(newState ConnState) {
	c.stateMutex.Lock()
	defer c.stateMutex.Unlock()

	if c.state == newState {
		return
	}
	c.logger.Info("Connection state changed",
		"from", c.state,
		"to", newState)
	c.state = newState
}

// NewProtocol 按配置创建传输实例
func NewProtocol(cfg Config, logger *slog.Logger) (interfaces.TransportProtocol, error) {
	switch cfg.System.Network.Transport {
	case "", "websocket":
		ws := cfg.System.Network.Websocket
		if ws == nil {
			return nil, fmt.Errorf("%w: missing system.network.websocket", ErrInvalidConfig)
		}

		var wsCfg websocket.Config
		wsCfg.Server.URL = ws.URL
		wsCfg.Server.ProtocolVersion = ws.ProtocolVersion
		wsCfg.Auth.AccessToken = ws.AccessToken
		wsCfg.Device.ID = cfg.System.DeviceID
		wsCfg.Device.ClientID = cfg.System.ClientID
		wsCfg.Audio.Format = "opus"
		wsCfg.Audio.SampleRate = audio.SampleRate
		wsCfg.Audio.Channels = audio.Channels
		wsCfg.Audio.FrameDuration = audio.FrameDuration
		wsCfg.PingInterval = ws.PingInterval
		wsCfg.WriteTimeout = ws.WriteTimeout

		t, err := websocket.NewWebSocketProtocol(wsCfg, logger.With("component", "websocket"))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		return t, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProtocol, cfg.System.Network.Transport)
	}
}
