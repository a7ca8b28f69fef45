package core

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/lisuiheng/soundstream-go/audio"
	"github.com/lisuiheng/soundstream-go/metrics"
)

// Options SoundStream 的依赖，未设置的设备和编解码器使用默认实现
type Options struct {
	Session      audio.SessionConfig
	Permission   audio.PermissionRequester
	OpenCapture  audio.CaptureOpener
	OpenPlayback audio.PlaybackOpener
	CodecFactory audio.CodecFactory
	Metrics      *metrics.Metrics
	EventBuffer  int
	Logger       *slog.Logger
	// Level 为 showLogs 参数调整的日志级别，可以为 nil
	Level *slog.LevelVar
}

// RecorderArgs initializeRecorder 的参数
type RecorderArgs struct {
	ShowLogs   bool
	SampleRate int
}

// PlayerArgs initializePlayer 的参数
type PlayerArgs struct {
	ShowLogs   bool
	SampleRate int
}

// SoundStream 对外边界：录音、播放和事件流
type SoundStream struct {
	cfg       audio.SessionConfig
	perm      audio.PermissionRequester
	codec     *audio.CodecSession
	states    *audio.StateMachine
	recorder  *audio.Recorder
	player    *audio.Player
	bus       *EventBus
	metrics   *metrics.Metrics
	level     *slog.LevelVar
	baseLevel slog.Level
	logger    *slog.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

// NewSoundStream 组装编解码会话、状态机、录音器和播放器
func NewSoundStream(opts Options) (*SoundStream, error) {
	if opts.Session == (audio.SessionConfig{}) {
		opts.Session = audio.DefaultSessionConfig()
	}
	if err := opts.Session.Validate(); err != nil {
		return nil, err
	}
	if opts.Permission == nil {
		opts.Permission = StaticPermission(true)
	}
	if opts.OpenCapture == nil {
		opts.OpenCapture = audio.OpenMalgoCapture
	}
	if opts.OpenPlayback == nil {
		opts.OpenPlayback = audio.OpenPortAudioPlayback
	}
	if opts.CodecFactory == nil {
		opts.CodecFactory = audio.DefaultCodecFactory{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &SoundStream{
		cfg:     opts.Session,
		perm:    opts.Permission,
		metrics: opts.Metrics,
		level:   opts.Level,
		logger:  logger,
		closed:  make(chan struct{}),
	}
	if s.level != nil {
		s.baseLevel = s.level.Level()
	}

	s.bus = NewEventBus(opts.EventBuffer, opts.Metrics, logger.With("component", "events"))
	s.codec = audio.NewCodecSession(opts.CodecFactory, logger.With("component", "codec"))
	s.states = audio.NewStateMachine(s.bus, logger.With("component", "state"))
	if opts.Metrics != nil {
		s.states.SetObserver(opts.Metrics)
	}

	var err error
	s.recorder, err = audio.NewRecorder(audio.RecorderOptions{
		Codec:      s.codec,
		States:     s.states,
		Open:       opts.OpenCapture,
		Permission: opts.Permission,
		Sink:       s.dispatch,
		Metrics:    opts.Metrics,
		Logger:     logger.With("component", "recorder"),
	})
	if err != nil {
		return nil, err
	}

	s.player, err = audio.NewPlayer(audio.PlayerOptions{
		Codec:   s.codec,
		States:  s.states,
		Open:    opts.OpenPlayback,
		Metrics: opts.Metrics,
		Logger:  logger.With("component", "player"),
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// dispatch 在采集线程上调用，只做非阻塞投递
func (s *SoundStream) dispatch(encoded []byte) {
	s.bus.Notify(audio.Event{Name: audio.EventDataPeriod, Data: encoded})
}

func (s *SoundStream) HasPermission() bool {
	return s.perm.HasPermission()
}

// InitializeRecorder 初始化录音器。缺少权限时会发起申请，
// 并阻塞到用户给出结果或 ctx 结束。
func (s *SoundStream) InitializeRecorder(ctx context.Context, args RecorderArgs) (audio.InitResult, error) {
	if s.isClosed() {
		return audio.InitResult{}, ErrStreamClosed
	}
	s.applyArgs(args.ShowLogs, args.SampleRate)

	type outcome struct {
		res audio.InitResult
		err error
	}
	// 带缓冲，ctx 先结束时迟到的结果不会阻塞权限回调
	done := make(chan outcome, 1)

	err := s.recorder.Initialize(s.cfg, func(res audio.InitResult, err error) {
		done <- outcome{res, err}
	})
	if err != nil {
		return audio.InitResult{}, err
	}

	select {
	case o := <-done:
		return o.res, o.err
	case <-ctx.Done():
		return audio.InitResult{}, ctx.Err()
	}
}

func (s *SoundStream) StartRecording() (bool, error) {
	err := s.recorder.Start()
	return err == nil, err
}

func (s *SoundStream) StopRecording() (bool, error) {
	err := s.recorder.Stop()
	return err == nil, err
}

func (s *SoundStream) InitializePlayer(args PlayerArgs) (bool, error) {
	if s.isClosed() {
		return false, ErrStreamClosed
	}
	s.applyArgs(args.ShowLogs, args.SampleRate)
	err := s.player.Initialize(s.cfg)
	return err == nil, err
}

func (s *SoundStream) StartPlayer() (bool, error) {
	err := s.player.Start()
	return err == nil, err
}

func (s *SoundStream) StopPlayer() (bool, error) {
	err := s.player.Stop()
	return err == nil, err
}

// WriteChunk 播放一个编码包，设备写入完成后返回
func (s *SoundStream) WriteChunk(data []byte) (bool, error) {
	err := s.player.WriteChunk(data)
	return err == nil, err
}

// Events 平台事件流：recorderStatus、playerStatus、dataPeriod
func (s *SoundStream) Events() <-chan audio.Event {
	return s.bus.Events()
}

// DroppedEvents 因通道已满而丢弃的事件数
func (s *SoundStream) DroppedEvents() uint64 {
	return s.bus.Dropped()
}

// RecorderStatus / PlayerStatus 当前生命周期状态
func (s *SoundStream) RecorderStatus() audio.Status { return s.states.Recorder() }

func (s *SoundStream) PlayerStatus() audio.Status { return s.states.Player() }

// Session 会话使用的固定格式
func (s *SoundStream) Session() audio.SessionConfig { return s.cfg }

// applyArgs 处理 showLogs 和 sampleRate 参数。采样率固定为 8000，
// 其他取值只记录警告。
func (s *SoundStream) applyArgs(showLogs bool, sampleRate int) {
	if s.level != nil {
		if showLogs {
			s.level.Set(slog.LevelDebug)
		} else {
			s.level.Set(s.baseLevel)
		}
	}
	if sampleRate != 0 && sampleRate != s.cfg.SampleRate {
		s.logger.Warn("Ignoring unsupported sample rate",
			"requested", sampleRate,
			"sample_rate", s.cfg.SampleRate)
	}
}

func (s *SoundStream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// Close 停止录音和播放，释放设备和编解码器，关闭事件流
func (s *SoundStream) Close() error {
	var errs []error
	s.closeOnce.Do(func() {
		close(s.closed)
		if err := s.recorder.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := s.player.Close(); err != nil {
			errs = append(errs, err)
		}
		s.codec.Release()
		s.bus.Close()
		s.logger.Info("Sound stream closed")
	})
	return errors.Join(errs...)
}
