package audio

import (
	"errors"
	"fmt"
	"log/slog"

	"layeh.com/gopus"
)

// GopusEncoder 基于 layeh.com/gopus 的编码器。
// 该绑定不提供复杂度设置，配置中的复杂度会被忽略。
type GopusEncoder struct {
	enc       *gopus.Encoder
	frameSize int
}

// NewGopusEncoder 创建 gopus 编码器
func NewGopusEncoder(cfg SessionConfig, logger *slog.Logger) (*GopusEncoder, error) {
	enc, err := gopus.NewEncoder(cfg.SampleRate, cfg.Channels, gopusApplication(cfg.Application))
	if err != nil {
		return nil, fmt.Errorf("gopus: create encoder: %w", err)
	}

	switch cfg.Bitrate {
	case BitrateMax:
		enc.SetBitrate(gopus.BitrateMaximum)
	case BitrateAuto:
	default:
		enc.SetBitrate(cfg.Bitrate)
	}

	if cfg.Complexity != DefaultComplexity && logger != nil {
		logger.Warn("gopus backend ignores encoder complexity", "complexity", cfg.Complexity)
	}

	return &GopusEncoder{enc: enc, frameSize: cfg.FrameSize}, nil
}

// Encode 编码一帧交织 PCM
func (e *GopusEncoder) Encode(pcm []int16) ([]byte, error) {
	if e.enc == nil {
		return nil, errors.New("encoder not initialized")
	}
	data, err := e.enc.Encode(pcm, e.frameSize, maxPacketSize)
	if err != nil {
		return nil, fmt.Errorf("gopus: encode: %w", err)
	}
	return data, nil
}

func (e *GopusEncoder) Close() {
	e.enc = nil
}

// GopusDecoder 基于 layeh.com/gopus 的解码器
type GopusDecoder struct {
	dec *gopus.Decoder
}

// NewGopusDecoder 创建 gopus 解码器
func NewGopusDecoder(cfg SessionConfig, _ *slog.Logger) (*GopusDecoder, error) {
	dec, err := gopus.NewDecoder(cfg.SampleRate, cfg.Channels)
	if err != nil {
		return nil, fmt.Errorf("gopus: create decoder: %w", err)
	}
	return &GopusDecoder{dec: dec}, nil
}

// Decode 解码一个包，frameSize 取单包允许的最大采样数
func (d *GopusDecoder) Decode(data []byte) ([]int16, error) {
	if d.dec == nil {
		return nil, errors.New("decoder not initialized")
	}
	pcm, err := d.dec.Decode(data, maxDecodeSamples, false)
	if err != nil {
		return nil, fmt.Errorf("gopus: decode: %w", err)
	}
	return pcm, nil
}

func (d *GopusDecoder) Close() {
	d.dec = nil
}

func gopusApplication(app Application) gopus.Application {
	switch app {
	case AppVoIP:
		return gopus.Voip
	case AppLowDelay:
		return gopus.RestrictedLowDelay
	default:
		return gopus.Audio
	}
}
