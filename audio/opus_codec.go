package audio

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/hraban/opus"
)

const maxPacketSize = 4000 // OPUS最大包大小

// OpusDecoder OPUS音频解码器
type OpusDecoder struct {
	decoder  *opus.Decoder
	channels int
	pcm      []int16
	logger   *slog.Logger
}

// NewOpusDecoder 创建新的OPUS解码器
func NewOpusDecoder(cfg SessionConfig, logger *slog.Logger) (*OpusDecoder, error) {
	dec, err := opus.NewDecoder(cfg.SampleRate, cfg.Channels)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder: %w", err)
	}

	return &OpusDecoder{
		decoder:  dec,
		channels: cfg.Channels,
		pcm:      make([]int16, maxDecodeSamples*cfg.Channels),
		logger:   logger,
	}, nil
}

// Decode 解码OPUS音频数据，返回的切片归调用方所有
func (d *OpusDecoder) Decode(opusData []byte) ([]int16, error) {
	if d.decoder == nil {
		return nil, errors.New("decoder not initialized")
	}

	n, err := d.decoder.Decode(opusData, d.pcm)
	if err != nil {
		return nil, fmt.Errorf("opus decode failed: %w", err)
	}

	out := make([]int16, n*d.channels)
	copy(out, d.pcm)
	return out, nil
}

// Close 释放解码器资源
func (d *OpusDecoder) Close() {
	d.decoder = nil
}

// OpusEncoder OPUS音频编码器
type OpusEncoder struct {
	encoder *opus.Encoder
	logger  *slog.Logger
}

// NewOpusEncoder 创建新的OPUS编码器，复杂度和码率只在创建时设置
func NewOpusEncoder(cfg SessionConfig, logger *slog.Logger) (*OpusEncoder, error) {
	enc, err := opus.NewEncoder(cfg.SampleRate, cfg.Channels, opusApplication(cfg.Application))
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}

	if err := enc.SetComplexity(cfg.Complexity); err != nil {
		return nil, fmt.Errorf("failed to set complexity: %w", err)
	}

	switch cfg.Bitrate {
	case BitrateMax:
		err = enc.SetBitrateToMax()
	case BitrateAuto:
		err = enc.SetBitrateToAuto()
	default:
		err = enc.SetBitrate(cfg.Bitrate)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to set bitrate: %w", err)
	}

	return &OpusEncoder{
		encoder: enc,
		logger:  logger,
	}, nil
}

// Encode 编码PCM音频数据
func (e *OpusEncoder) Encode(pcm []int16) ([]byte, error) {
	if e.encoder == nil {
		return nil, errors.New("encoder not initialized")
	}

	data := make([]byte, maxPacketSize)
	n, err := e.encoder.Encode(pcm, data)
	if err != nil {
		return nil, fmt.Errorf("opus encode failed: %w", err)
	}

	return data[:n], nil
}

// Close 释放编码器资源
func (e *OpusEncoder) Close() {
	e.encoder = nil
}

func opusApplication(app Application) opus.Application {
	switch app {
	case AppVoIP:
		return opus.AppVoIP
	case AppLowDelay:
		return opus.AppRestrictedLowdelay
	default:
		return opus.AppAudio
	}
}
