package audio

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/lisuiheng/soundstream-go/metrics"
)

var (
	errPlayerNotInitialized = errors.New("player not initialized")
	errPlayerNotPlaying     = errors.New("player is not playing")
)

// Player 播放阶段：解码收到的编码包并写入播放设备
type Player struct {
	mu      sync.Mutex
	cfg     SessionConfig
	device  PlaybackDevice
	codec   *CodecSession
	states  *StateMachine
	open    PlaybackOpener
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// PlayerOptions 播放器依赖
type PlayerOptions struct {
	Codec   *CodecSession
	States  *StateMachine
	Open    PlaybackOpener
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// NewPlayer 创建播放器
func NewPlayer(opts PlayerOptions) (*Player, error) {
	if opts.Codec == nil || opts.States == nil || opts.Open == nil {
		return nil, errors.New("player: missing dependency")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Player{
		cfg:     DefaultSessionConfig(),
		codec:   opts.Codec,
		states:  opts.States,
		open:    opts.Open,
		metrics: opts.Metrics,
		logger:  logger,
	}, nil
}

// Initialize (重新)打开播放设备并初始化解码器，已有设备会先释放。
// 释放旧设备后初始化失败时，状态回到 Stopped，之后的 Start 会报错。
func (p *Player) Initialize(cfg SessionConfig) error {
	if err := cfg.Validate(); err != nil {
		return newError(FailedToPlay, "invalid player config", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.device != nil {
		if err := p.device.Close(); err != nil {
			p.logger.Warn("failed to release playback device", "error", err)
		}
		p.device = nil
	}

	if err := p.codec.InitDecoder(cfg); err != nil {
		p.demote()
		return err
	}

	device, err := p.open(cfg, p.logger)
	if err != nil {
		p.demote()
		return newError(FailedToPlay, "failed to open playback device", err)
	}
	p.device = device
	p.cfg = cfg

	p.states.SetPlayer(StatusInitialized)
	return nil
}

// demote 设备已释放但没有新设备时调用，调用方持有 p.mu
func (p *Player) demote() {
	if p.states.Player() != StatusUnset {
		p.states.SetPlayer(StatusStopped)
	}
}

// Start 开始播放，已在播放时直接返回成功
func (p *Player) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.device == nil {
		return newError(FailedToPlay, "Failed to start Player", errPlayerNotInitialized)
	}
	if p.states.Player() == StatusPlaying {
		return nil
	}
	if err := p.device.Start(); err != nil {
		return newError(FailedToPlay, "Failed to start Player", err)
	}
	p.states.SetPlayer(StatusPlaying)
	return nil
}

// Stop 停止播放，已停止时直接返回成功
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	prev := p.states.Player()
	if prev == StatusStopped {
		return nil
	}
	if p.device == nil {
		return newError(FailedToStop, "Failed to stop Player", errPlayerNotInitialized)
	}

	p.states.SetPlayer(StatusStopped)
	if prev == StatusPlaying {
		if err := p.device.Stop(); err != nil {
			return newError(FailedToStop, "Failed to stop Player", err)
		}
	}
	return nil
}

// WriteChunk 解码一个编码包并把整帧写入播放设备，写入返回后才报告成功
func (p *Player) WriteChunk(data []byte) error {
	if data == nil {
		return newError(FailedToWriteBuffer, "Failed to write Player buffer", errNilPayload)
	}
	p.metrics.ChunkReceived()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.device == nil {
		return p.fail(newError(FailedToWriteBuffer, "Failed to write Player buffer", errPlayerNotInitialized))
	}
	if p.states.Player() != StatusPlaying {
		return p.fail(newError(FailedToWriteBuffer, "Failed to write Player buffer", errPlayerNotPlaying))
	}

	pcm, err := p.codec.Decode(data)
	if err != nil {
		return p.fail(err)
	}

	p.logger.Debug("Decoded chunk", "encoded", len(data), "samples", len(pcm))
	if err := p.device.Write(pcm); err != nil {
		return p.fail(newError(FailedToWriteBuffer, "Failed to write Player buffer", err))
	}
	p.metrics.FramePlayed()
	return nil
}

func (p *Player) fail(err error) error {
	p.metrics.Error("playback", string(KindOf(err)))
	return err
}

// Status 当前播放器状态
func (p *Player) Status() Status {
	return p.states.Player()
}

// Close 停止播放并释放设备
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.device == nil {
		return nil
	}
	if p.states.Player() == StatusPlaying {
		if err := p.device.Stop(); err != nil {
			p.logger.Error("failed to stop playback device", "error", err)
		}
		p.states.SetPlayer(StatusStopped)
	}
	err := p.device.Close()
	p.device = nil
	return err
}
