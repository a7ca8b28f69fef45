package core

import (
	"errors"

	"github.com/lisuiheng/soundstream-go/pkg/interfaces"
)

var (
	// 与传输层共用同一组哨兵错误，errors.Is 可以跨层匹配
	ErrUnsupportedProtocol = interfaces.ErrUnsupportedProtocol
	ErrConnectionFailed    = interfaces.ErrConnectionFailed
	ErrConnectionLost      = errors.New("connection lost")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrInvalidConfig       = errors.New("invalid config")
	ErrStreamClosed        = errors.New("sound stream closed")
)
