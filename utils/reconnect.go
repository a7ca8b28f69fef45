package utils

import "time"

type ReconnectStrategy interface {
	NextDelay() time.Duration
	Reset()
}

var _ ReconnectStrategy = (*ExponentialBackoff)(nil)

const (
	DefaultInitialDelay = 1 * time.Second
	DefaultMaxDelay     = 30 * time.Second
)

// ExponentialBackoff 每次失败后等待时间翻倍，直到上限
type ExponentialBackoff struct {
	initialDelay time.Duration
	currentDelay time.Duration
	maxDelay     time.Duration
}

func NewExponentialBackoff() *ExponentialBackoff {
	return NewExponentialBackoffWith(DefaultInitialDelay, DefaultMaxDelay)
}

// NewExponentialBackoffWith 使用指定的初始等待和上限，非正值使用默认值
func NewExponentialBackoffWith(initial, maxDelay time.Duration) *ExponentialBackoff {
	if initial <= 0 {
		initial = DefaultInitialDelay
	}
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	if initial > maxDelay {
		initial = maxDelay
	}
	return &ExponentialBackoff{
		initialDelay: initial,
		currentDelay: initial,
		maxDelay:     maxDelay,
	}
}

func (e *ExponentialBackoff) NextDelay() time.Duration {
	delay := e.currentDelay
	e.currentDelay *= 2
	if e.currentDelay > e.maxDelay {
		e.currentDelay = e.maxDelay
	}
	return delay
}

// Reset 连接成功后恢复初始等待时间
func (e *ExponentialBackoff) Reset() {
	e.currentDelay = e.initialDelay
}
