package core

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/lisuiheng/soundstream-go/audio"
	"github.com/lisuiheng/soundstream-go/metrics"
)

// DefaultEventBuffer 事件通道默认容量，约 2 秒的数据帧
const DefaultEventBuffer = 128

// EventBus 把音频线程产生的事件交给应用协程。
// Notify 从不阻塞：通道满时丢弃事件并计数。
type EventBus struct {
	mu     sync.RWMutex
	ch     chan audio.Event
	closed bool

	dropped  atomic.Uint64
	dropping atomic.Bool

	metrics *metrics.Metrics
	logger  *slog.Logger
}

var _ audio.Notifier = (*EventBus)(nil)

// NewEventBus 创建事件总线，size<=0 时使用默认容量
func NewEventBus(size int, m *metrics.Metrics, logger *slog.Logger) *EventBus {
	if size <= 0 {
		size = DefaultEventBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBus{
		ch:      make(chan audio.Event, size),
		metrics: m,
		logger:  logger,
	}
}

// Notify 投递事件，关闭后调用为空操作
func (b *EventBus) Notify(ev audio.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	select {
	case b.ch <- ev:
		if b.dropping.CompareAndSwap(true, false) {
			b.logger.Info("Event delivery resumed", "dropped_total", b.dropped.Load())
		}
	default:
		b.dropped.Add(1)
		b.metrics.EventDropped()
		// 每段连续丢弃只记一次日志
		if b.dropping.CompareAndSwap(false, true) {
			b.logger.Warn("Event buffer full, dropping events", "event", ev.Name)
		}
	}
}

// Events 返回事件通道，Close 后通道关闭
func (b *EventBus) Events() <-chan audio.Event {
	return b.ch
}

// Dropped 累计丢弃的事件数
func (b *EventBus) Dropped() uint64 {
	return b.dropped.Load()
}

func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.ch)
}
