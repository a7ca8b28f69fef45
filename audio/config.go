package audio

import (
	"errors"
	"fmt"
)

// 固定的音频格式：8kHz 单声道，每帧 20ms
const (
	SampleRate    = 8000
	Channels      = 1
	FrameDuration = 20                                 // 毫秒
	FrameSize     = SampleRate * FrameDuration / 1000 // 160 个采样
	FrameBytes    = FrameSize * 2                      // 16bit PCM 每帧字节数

	// BitrateMax 让编码器使用允许的最大码率
	BitrateMax = -1
	// BitrateAuto 交给编码器自行决定码率
	BitrateAuto = 0

	DefaultComplexity = 5
)

// Application 编码器的应用场景提示
type Application string

const (
	AppVoIP     Application = "voip"
	AppAudio    Application = "audio"
	AppLowDelay Application = "lowdelay"
)

// Backend 编解码器实现
type Backend string

const (
	BackendOpus  Backend = "opus"  // github.com/hraban/opus
	BackendGopus Backend = "gopus" // layeh.com/gopus
)

var ErrInvalidConfig = errors.New("invalid session config")

// SessionConfig 编解码会话配置，会话生命周期内不可修改
type SessionConfig struct {
	SampleRate  int
	Channels    int
	FrameSize   int
	Complexity  int
	Bitrate     int
	Application Application
	Backend     Backend
}

// DefaultSessionConfig 返回默认配置：复杂度 5，最大码率
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		SampleRate:  SampleRate,
		Channels:    Channels,
		FrameSize:   FrameSize,
		Complexity:  DefaultComplexity,
		Bitrate:     BitrateMax,
		Application: AppAudio,
		Backend:     BackendOpus,
	}
}

// Validate 校验配置是否为支持的固定格式
func (c SessionConfig) Validate() error {
	if c.SampleRate != SampleRate {
		return fmt.Errorf("%w: sample rate %d (only %d supported)", ErrInvalidConfig, c.SampleRate, SampleRate)
	}
	if c.Channels != Channels {
		return fmt.Errorf("%w: channels %d (only mono supported)", ErrInvalidConfig, c.Channels)
	}
	if c.FrameSize != FrameSize {
		return fmt.Errorf("%w: frame size %d (only %d supported)", ErrInvalidConfig, c.FrameSize, FrameSize)
	}
	if c.Complexity < 0 || c.Complexity > 10 {
		return fmt.Errorf("%w: complexity %d out of range 0-10", ErrInvalidConfig, c.Complexity)
	}
	if c.Bitrate < BitrateMax {
		return fmt.Errorf("%w: bitrate %d", ErrInvalidConfig, c.Bitrate)
	}
	switch c.Application {
	case AppVoIP, AppAudio, AppLowDelay:
	default:
		return fmt.Errorf("%w: application %q", ErrInvalidConfig, c.Application)
	}
	switch c.Backend {
	case BackendOpus, BackendGopus:
	default:
		return fmt.Errorf("%w: backend %q", ErrInvalidConfig, c.Backend)
	}
	return nil
}

// samplesPerFrame 每帧交织采样总数
func (c SessionConfig) samplesPerFrame() int {
	return c.FrameSize * c.Channels
}
