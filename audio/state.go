package audio

import (
	"log/slog"
	"sync"
)

// Status 录音器/播放器的生命周期状态
type Status int

const (
	StatusUnset Status = iota
	StatusInitialized
	StatusPlaying
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusInitialized:
		return "Initialized"
	case StatusPlaying:
		return "Playing"
	case StatusStopped:
		return "Stopped"
	default:
		return "Unset"
	}
}

// 对外事件名称
const (
	EventRecorderStatus = "recorderStatus"
	EventPlayerStatus   = "playerStatus"
	EventDataPeriod     = "dataPeriod"
)

// Event 发往外部观察者的平台事件
type Event struct {
	Name string `json:"name"`
	Data any    `json:"data"`
}

// Notifier 接收事件，实现不得阻塞调用方
type Notifier interface {
	Notify(Event)
}

// NotifierFunc 函数适配器
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(e Event) { f(e) }

// TransitionObserver 状态切换观察者（用于指标统计）
type TransitionObserver interface {
	StatusChanged(component, status string)
}

// StateMachine 跟踪录音器和播放器状态，每次实际切换发出一条通知。
// 通知失败不会回滚状态。
type StateMachine struct {
	mu       sync.Mutex
	recorder Status
	player   Status
	notifier Notifier
	observer TransitionObserver
	logger   *slog.Logger
}

// NewStateMachine 创建状态机，notifier 可以为 nil
func NewStateMachine(notifier Notifier, logger *slog.Logger) *StateMachine {
	if logger == nil {
		logger = slog.Default()
	}
	return &StateMachine{notifier: notifier, logger: logger}
}

// SetObserver 设置状态切换观察者
func (m *StateMachine) SetObserver(o TransitionObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observer = o
}

func (m *StateMachine) Recorder() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recorder
}

func (m *StateMachine) Player() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.player
}

// SetRecorder 切换录音器状态，返回是否发生了切换
func (m *StateMachine) SetRecorder(s Status) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transition(&m.recorder, s, EventRecorderStatus)
}

// SetPlayer 切换播放器状态，返回是否发生了切换
func (m *StateMachine) SetPlayer(s Status) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transition(&m.player, s, EventPlayerStatus)
}

// transition 在持锁状态下调用，保证通知顺序与切换顺序一致
func (m *StateMachine) transition(cur *Status, next Status, event string) bool {
	old := *cur
	if old == next {
		return false
	}
	*cur = next

	m.logger.Info("State changed",
		"component", event,
		"from", old,
		"to", next)

	if m.observer != nil {
		m.observer.StatusChanged(event, next.String())
	}
	if m.notifier != nil {
		m.notifier.Notify(Event{Name: event, Data: next.String()})
	}
	return true
}
