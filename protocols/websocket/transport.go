// protocols/websocket/transport.go
package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lisuiheng/soundstream-go/pkg/interfaces"
)

var _ interfaces.TransportProtocol = (*WSProtocol)(nil)

const (
	defaultWriteTimeout = 5 * time.Second
	receiveBuffer       = 100
)

type WSProtocol struct {
	conn      *websocket.Conn
	config    Config
	msgChan   chan interfaces.Message
	closeChan chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	logger    *slog.Logger
}

// Config 定义websocket特有的配置
type Config struct {
	Server struct {
		URL             string
		ProtocolVersion int
	}
	Auth struct {
		AccessToken string
	}
	Device struct {
		ID       string
		ClientID string
	}
	Audio struct {
		Format        string
		SampleRate    int
		Channels      int
		FrameDuration int
	}
	// PingInterval 为 0 时不发送心跳
	PingInterval time.Duration
	WriteTimeout time.Duration
}

func NewWebSocketProtocol(config Config, logger *slog.Logger) (*WSProtocol, error) {
	if config.Server.URL == "" {
		return nil, fmt.Errorf("%w: empty websocket url", interfaces.ErrConnectionFailed)
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaultWriteTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WSProtocol{
		config:    config,
		msgChan:   make(chan interfaces.Message, receiveBuffer),
		closeChan: make(chan struct{}),
		logger:    logger,
	}, nil
}

func (p *WSProtocol) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	select {
	case <-p.closeChan:
		return interfaces.ErrConnectionClosed
	default:
	}
	if p.conn != nil {
		return fmt.Errorf("%w: already connected", interfaces.ErrConnectionFailed)
	}

	headers := http.Header{}
	if p.config.Auth.AccessToken != "" {
		headers.Set("Authorization", fmt.Sprintf("Bearer %s", p.config.Auth.AccessToken))
	}
	headers.Set("Protocol-Version", fmt.Sprintf("%d", p.config.Server.ProtocolVersion))
	if p.config.Device.ID != "" {
		headers.Set("Device-Id", p.config.Device.ID)
	}
	if p.config.Device.ClientID != "" {
		headers.Set("Client-Id", p.config.Device.ClientID)
	}
	if p.config.Audio.Format != "" {
		headers.Set("Audio-Params", fmt.Sprintf("%s;rate=%d;channels=%d;frame=%dms",
			p.config.Audio.Format,
			p.config.Audio.SampleRate,
			p.config.Audio.Channels,
			p.config.Audio.FrameDuration))
	}

	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, p.config.Server.URL, headers)
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrConnectionFailed, err)
	}
	p.conn = conn

	go p.readPump(conn)
	if p.config.PingInterval > 0 {
		go p.pingLoop(conn)
	}
	return nil
}

func (p *WSProtocol) readPump(conn *websocket.Conn) {
	defer close(p.msgChan)
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-p.closeChan:
			default:
				p.logger.Warn("WebSocket read failed", "error", err)
			}
			return
		}
		select {
		case p.msgChan <- interfaces.Message{
			Payload: data,
			Type:    convertMsgType(msgType),
		}:
		case <-p.closeChan:
			return
		}
	}
}

// pingLoop 定期发送心跳，写失败时关闭连接让 readPump 退出
func (p *WSProtocol) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(p.config.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.closeChan:
			return
		case <-ticker.C:
			deadline := time.Now().Add(p.config.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				p.logger.Warn("WebSocket ping failed", "error", err)
				conn.Close()
				return
			}
		}
	}
}

func convertMsgType(wsType int) interfaces.MessageType {
	switch wsType {
	case websocket.TextMessage:
		return interfaces.MsgText
	case websocket.BinaryMessage:
		return interfaces.MsgBinary
	default:
		return interfaces.MsgControl
	}
}

func (p *WSProtocol) Send(data []byte, msgType interfaces.MessageType) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		return interfaces.ErrConnectionFailed
	}
	select {
	case <-p.closeChan:
		return interfaces.ErrConnectionClosed
	default:
	}

	wsType := websocket.TextMessage
	if msgType == interfaces.MsgBinary {
		wsType = websocket.BinaryMessage
	}
	if err := p.conn.SetWriteDeadline(time.Now().Add(p.config.WriteTimeout)); err != nil {
		return err
	}
	return p.conn.WriteMessage(wsType, data)
}

func (p *WSProtocol) Receive() <-chan interfaces.Message {
	return p.msgChan
}

func (p *WSProtocol) ProtocolType() string { return "websocket" }

// Close 发送关闭帧并断开连接，可以重复调用
func (p *WSProtocol) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.closeChan)

		p.mu.Lock()
		conn := p.conn
		p.mu.Unlock()
		if conn == nil {
			close(p.msgChan)
			return
		}

		deadline := time.Now().Add(p.config.WriteTimeout)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
		err = conn.Close()
	})
	return err
}
