// pkg/interfaces/transport.go
package interfaces

import (
	"context"
	"errors"
)

var (
	ErrConnectionFailed    = errors.New("connection failed")
	ErrConnectionClosed    = errors.New("connection closed")
	ErrUnsupportedProtocol = errors.New("unsupported protocol")
)

// TransportProtocol 与远端交换编码帧和控制消息的通道。
// 一个实例只对应一次连接，重连时创建新实例。
type TransportProtocol interface {
	Connect(ctx context.Context) error
	Send(data []byte, msgType MessageType) error
	// Receive 连接断开后通道关闭
	Receive() <-chan Message
	Close() error
	ProtocolType() string
}

type Message struct {
	Payload []byte
	Type    MessageType
}

type MessageType int

const (
	MsgText    MessageType = iota // JSON文本
	MsgBinary                     // 二进制数据（编码后的音频帧）
	MsgControl                    // 控制指令
)

func (t MessageType) String() string {
	switch t {
	case MsgText:
		return "text"
	case MsgBinary:
		return "binary"
	default:
		return "control"
	}
}
