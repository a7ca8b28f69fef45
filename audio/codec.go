package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// 8kHz 下单个 Opus 包最长 120ms
const maxDecodeSamples = SampleRate * 120 / 1000

var (
	errNilPayload      = errors.New("'data' is null")
	errNotInitialized  = errors.New("codec not initialized")
	errFrameSizeBroken = errors.New("pcm frame size mismatch")
)

// Encoder 单帧编码器
type Encoder interface {
	Encode(pcm []int16) ([]byte, error)
	Close()
}

// Decoder 单包解码器
type Decoder interface {
	Decode(data []byte) ([]int16, error)
	Close()
}

// CodecFactory 按配置创建编解码器
type CodecFactory interface {
	NewEncoder(cfg SessionConfig, logger *slog.Logger) (Encoder, error)
	NewDecoder(cfg SessionConfig, logger *slog.Logger) (Decoder, error)
}

// DefaultCodecFactory 根据 SessionConfig.Backend 选择 Opus 绑定
type DefaultCodecFactory struct{}

func (DefaultCodecFactory) NewEncoder(cfg SessionConfig, logger *slog.Logger) (Encoder, error) {
	switch cfg.Backend {
	case BackendGopus:
		return NewGopusEncoder(cfg, logger)
	case BackendOpus, "":
		return NewOpusEncoder(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported codec backend: %s", cfg.Backend)
	}
}

func (DefaultCodecFactory) NewDecoder(cfg SessionConfig, logger *slog.Logger) (Decoder, error) {
	switch cfg.Backend {
	case BackendGopus:
		return NewGopusDecoder(cfg, logger)
	case BackendOpus, "":
		return NewOpusDecoder(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported codec backend: %s", cfg.Backend)
	}
}

// CodecSession 持有一对编码器/解码器。
// 编码和解码各自加锁，Release 依次获取两把锁，会等待进行中的调用结束。
type CodecSession struct {
	factory CodecFactory
	logger  *slog.Logger

	encMu  sync.Mutex
	enc    Encoder
	encCfg SessionConfig

	decMu  sync.Mutex
	dec    Decoder
	decCfg SessionConfig
}

// NewCodecSession 创建编解码会话，factory 为 nil 时使用 DefaultCodecFactory
func NewCodecSession(factory CodecFactory, logger *slog.Logger) *CodecSession {
	if factory == nil {
		factory = DefaultCodecFactory{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CodecSession{factory: factory, logger: logger}
}

// InitEncoder 按配置(重新)创建编码器。失败后会话不可编码，直到再次初始化成功。
func (s *CodecSession) InitEncoder(cfg SessionConfig) error {
	if err := cfg.Validate(); err != nil {
		return newError(Unknown, "failed to initialize encoder", err)
	}

	s.encMu.Lock()
	defer s.encMu.Unlock()

	if s.enc != nil {
		s.enc.Close()
		s.enc = nil
	}
	enc, err := s.factory.NewEncoder(cfg, s.logger)
	if err != nil {
		return newError(Unknown, "failed to initialize encoder", err)
	}
	s.enc = enc
	s.encCfg = cfg
	s.logger.Debug("Encoder initialized",
		"backend", cfg.Backend,
		"complexity", cfg.Complexity,
		"bitrate", cfg.Bitrate)
	return nil
}

// InitDecoder 按配置(重新)创建解码器
func (s *CodecSession) InitDecoder(cfg SessionConfig) error {
	if err := cfg.Validate(); err != nil {
		return newError(Unknown, "failed to initialize decoder", err)
	}

	s.decMu.Lock()
	defer s.decMu.Unlock()

	if s.dec != nil {
		s.dec.Close()
		s.dec = nil
	}
	dec, err := s.factory.NewDecoder(cfg, s.logger)
	if err != nil {
		return newError(Unknown, "failed to initialize decoder", err)
	}
	s.dec = dec
	s.decCfg = cfg
	s.logger.Debug("Decoder initialized", "backend", cfg.Backend)
	return nil
}

// Encode 编码一帧 PCM，帧长必须等于配置的帧长
func (s *CodecSession) Encode(frame []int16) ([]byte, error) {
	s.encMu.Lock()
	defer s.encMu.Unlock()

	if s.enc == nil {
		return nil, newError(FailedToWriteBuffer, "encoder unavailable", errNotInitialized)
	}
	if len(frame) != s.encCfg.samplesPerFrame() {
		return nil, newError(FailedToWriteBuffer,
			fmt.Sprintf("got %d samples, want %d", len(frame), s.encCfg.samplesPerFrame()),
			errFrameSizeBroken)
	}

	data, err := s.enc.Encode(frame)
	if err != nil {
		return nil, newError(FailedToWriteBuffer, "encode failed", err)
	}
	return data, nil
}

// Decode 解码一个编码包。nil 输入和空结果分别报告为不同的错误类型。
func (s *CodecSession) Decode(data []byte) ([]int16, error) {
	if data == nil {
		return nil, newError(FailedToWriteBuffer, "decode failed", errNilPayload)
	}

	s.decMu.Lock()
	defer s.decMu.Unlock()

	if s.dec == nil {
		return nil, newError(FailedToWriteBuffer, "decoder unavailable", errNotInitialized)
	}
	if len(data) == 0 {
		return nil, newError(EmptyDecode, "decoded content is empty", nil)
	}

	pcm, err := s.dec.Decode(data)
	if err != nil {
		return nil, newError(FailedToWriteBuffer, "decode failed", err)
	}
	if len(pcm) == 0 {
		return nil, newError(EmptyDecode, "decoded content is empty", nil)
	}
	return pcm, nil
}

// Release 释放编码器和解码器
func (s *CodecSession) Release() {
	s.encMu.Lock()
	if s.enc != nil {
		s.enc.Close()
		s.enc = nil
	}
	s.encMu.Unlock()

	s.decMu.Lock()
	if s.dec != nil {
		s.dec.Close()
		s.dec = nil
	}
	s.decMu.Unlock()
}

// EncoderReady 编码器是否可用
func (s *CodecSession) EncoderReady() bool {
	s.encMu.Lock()
	defer s.encMu.Unlock()
	return s.enc != nil
}

// DecoderReady 解码器是否可用
func (s *CodecSession) DecoderReady() bool {
	s.decMu.Lock()
	defer s.decMu.Unlock()
	return s.dec != nil
}
