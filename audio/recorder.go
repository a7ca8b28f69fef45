package audio

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/lisuiheng/soundstream-go/metrics"
)

// InitResult 录音器初始化结果
type InitResult struct {
	Success           bool `json:"success"`
	IsMeteringEnabled bool `json:"isMeteringEnabled,omitempty"`
}

// InitCallback 初始化完成回调，权限未授予时会在权限结果返回后才被调用
type InitCallback func(InitResult, error)

var (
	errRecorderNotInitialized = errors.New("recorder not initialized")
	errInitSuperseded         = errors.New("superseded by a newer initialize request")
)

// Recorder 采集阶段：读取采集数据、组帧、编码并按顺序分发
type Recorder struct {
	mu      sync.Mutex
	cfg     SessionConfig
	pending InitCallback
	// 每次 Initialize 递增，过期的权限结果按编号丢弃
	requestID uint64
	waiting   bool

	// tickMu 保证同一时刻只有一个执行流访问 device/acc/readBuf
	tickMu  sync.Mutex
	device  CaptureDevice
	acc     *FrameAccumulator
	readBuf []int16

	codec   *CodecSession
	states  *StateMachine
	open    CaptureOpener
	perm    PermissionRequester
	sink    FrameSink
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// RecorderOptions 录音器依赖
type RecorderOptions struct {
	Codec      *CodecSession
	States     *StateMachine
	Open       CaptureOpener
	Permission PermissionRequester
	Sink       FrameSink
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// NewRecorder 创建录音器
func NewRecorder(opts RecorderOptions) (*Recorder, error) {
	if opts.Codec == nil || opts.States == nil || opts.Open == nil || opts.Permission == nil || opts.Sink == nil {
		return nil, errors.New("recorder: missing dependency")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		cfg:     DefaultSessionConfig(),
		acc:     NewFrameAccumulator(FrameSize),
		codec:   opts.Codec,
		states:  opts.States,
		open:    opts.Open,
		perm:    opts.Permission,
		sink:    opts.Sink,
		metrics: opts.Metrics,
		logger:  logger,
	}, nil
}

// Initialize 初始化编码器并检查权限。已有权限时同步完成；
// 否则保存回调并申请权限，由权限结果继续完成。
// 上一次申请尚未返回时，旧回调会立即以失败结束，旧的权限结果被忽略。
func (r *Recorder) Initialize(cfg SessionConfig, done InitCallback) error {
	if err := cfg.Validate(); err != nil {
		return newError(FailedToRecord, "invalid recorder config", err)
	}
	if err := r.codec.InitEncoder(cfg); err != nil {
		return err
	}

	r.mu.Lock()
	var superseded InitCallback
	if r.waiting {
		superseded = r.pending
	}
	r.cfg = cfg
	r.requestID++
	id := r.requestID
	r.pending = done
	r.waiting = true
	r.mu.Unlock()

	if superseded != nil {
		r.logger.Warn("pending recorder initialization superseded", "request", id-1)
		superseded(InitResult{}, newError(FailedToRecord, "Failed to initialize recorder", errInitSuperseded))
	}

	if r.perm.HasPermission() {
		r.logger.Debug("has permission, completing")
		r.completeInitialization(id, true)
		return nil
	}

	r.logger.Debug("requesting record permission", "request", id)
	r.perm.RequestPermission(func(granted bool) {
		r.completeInitialization(id, granted)
	})
	return nil
}

// OnPermissionResult 用权限结果继续当前等待中的初始化，没有等待中的请求时忽略
func (r *Recorder) OnPermissionResult(granted bool) {
	r.mu.Lock()
	id := r.requestID
	r.mu.Unlock()
	r.completeInitialization(id, granted)
}

func (r *Recorder) completeInitialization(id uint64, granted bool) {
	r.mu.Lock()
	if !r.waiting || id != r.requestID {
		r.mu.Unlock()
		r.logger.Debug("ignoring stale permission result", "request", id, "granted", granted)
		return
	}
	done := r.pending
	r.pending = nil
	r.waiting = false

	var (
		result InitResult
		err    error
		// 旧设备已释放，重新初始化失败后不能继续停留在原状态
		demote bool
	)
	if granted {
		if err = r.openDevice(); err == nil {
			result = InitResult{Success: true, IsMeteringEnabled: true}
		} else {
			demote = r.states.Recorder() != StatusUnset
		}
	} else {
		r.logger.Warn("record permission denied")
	}
	r.mu.Unlock()

	switch {
	case result.Success:
		r.states.SetRecorder(StatusInitialized)
	case demote:
		r.states.SetRecorder(StatusStopped)
	}
	if done != nil {
		done(result, err)
	}
}

// openDevice 释放旧设备并打开新设备，调用方持有 r.mu
func (r *Recorder) openDevice() error {
	r.tickMu.Lock()
	old := r.device
	r.device = nil
	r.tickMu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			r.logger.Warn("failed to release capture device", "error", err)
		}
	}

	device, err := r.open(r.cfg, r.Tick, r.logger)
	if err != nil {
		return newError(FailedToRecord, "failed to initialize capture device", err)
	}

	// 每次读取最多两倍最小缓冲
	bufSize := device.MinBufferSize() * 2
	if bufSize < r.cfg.FrameSize {
		bufSize = r.cfg.FrameSize * 2
	}

	r.tickMu.Lock()
	r.device = device
	r.readBuf = make([]int16, bufSize)
	r.acc = NewFrameAccumulator(r.cfg.FrameSize)
	r.tickMu.Unlock()

	r.logger.Info("Capture device initialized",
		"sample_rate", r.cfg.SampleRate,
		"channels", r.cfg.Channels,
		"frame_size", r.cfg.FrameSize,
		"read_buffer", bufSize)
	return nil
}

// Start 开始录音，已在录音时直接返回成功
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tickMu.Lock()
	device := r.device
	r.tickMu.Unlock()
	if device == nil || r.states.Recorder() == StatusUnset {
		return newError(FailedToRecord, "Failed to start recording", errRecorderNotInitialized)
	}
	if r.states.Recorder() == StatusPlaying {
		return nil
	}

	// 先切换状态，设备启动后的第一次回调就能读取数据
	r.states.SetRecorder(StatusPlaying)
	if err := device.Start(); err != nil {
		r.states.SetRecorder(StatusStopped)
		return newError(FailedToRecord, "Failed to start recording", err)
	}
	r.logger.Info("Audio recording started")
	return nil
}

// Stop 停止录音，已停止时直接返回成功且不发通知。状态立即切换，
// 之后的采集回调都会变成空操作。
func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.states.Recorder()
	switch prev {
	case StatusStopped:
		return nil
	case StatusUnset:
		return newError(FailedToStop, "Failed to stop recording", errRecorderNotInitialized)
	}

	r.states.SetRecorder(StatusStopped)

	var err error
	if prev == StatusPlaying {
		r.tickMu.Lock()
		device := r.device
		r.tickMu.Unlock()
		if device != nil {
			err = device.Stop()
		}
	}

	r.tickMu.Lock()
	r.acc.Reset()
	r.tickMu.Unlock()
	r.metrics.SetPending(0)

	if err != nil {
		return newError(FailedToStop, "Failed to stop recording", err)
	}
	r.logger.Info("Audio recording stopped")
	return nil
}

// Tick 处理一次采集周期：读取一段数据、组帧、逐帧编码并分发。
// 由采集设备线程调用，非录音状态下为空操作。
func (r *Recorder) Tick() {
	if r.states.Recorder() != StatusPlaying {
		return
	}

	r.tickMu.Lock()
	defer r.tickMu.Unlock()

	if r.device == nil {
		return
	}

	n := r.device.Read(r.readBuf)
	if n <= 0 {
		return
	}
	r.metrics.BurstRead()

	frames := r.acc.Push(r.readBuf[:n])
	for _, frame := range frames {
		r.metrics.FrameCaptured(r.acc.Pending())

		encoded, err := r.codec.Encode(frame)
		if err != nil {
			r.logger.Error("OPUS encode failed", "error", err)
			r.metrics.Error("capture", string(KindOf(err)))
			continue
		}

		r.metrics.FrameEncoded(len(encoded))
		r.sink(encoded)
	}
	r.metrics.SetPending(r.acc.Pending())
}

// Pending 组帧队列中的余量采样数
func (r *Recorder) Pending() int {
	r.tickMu.Lock()
	defer r.tickMu.Unlock()
	return r.acc.Pending()
}

// Status 当前录音器状态
func (r *Recorder) Status() Status {
	return r.states.Recorder()
}

// Close 停止录音并释放采集设备
func (r *Recorder) Close() error {
	if r.states.Recorder() == StatusPlaying {
		if err := r.Stop(); err != nil {
			r.logger.Warn("failed to stop recorder on close", "error", err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = nil
	r.waiting = false

	r.tickMu.Lock()
	device := r.device
	r.device = nil
	r.tickMu.Unlock()

	if device != nil {
		return device.Close()
	}
	return nil
}
