package audio

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gordonklaus/portaudio"
)

// PortAudioPlayback PortAudio实现的阻塞式PCM播放设备。
// 输出缓冲区大小为一帧，写入在硬件消费完上一块之前会阻塞。
type PortAudioPlayback struct {
	stream *portaudio.Stream
	out    []float32
	logger *slog.Logger
}

var _ PlaybackDevice = (*PortAudioPlayback)(nil)

// OpenPortAudioPlayback 打开默认输出设备
func OpenPortAudioPlayback(cfg SessionConfig, logger *slog.Logger) (PlaybackDevice, error) {
	// 初始化PortAudio
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	out := make([]float32, cfg.samplesPerFrame())
	// 打开音频流
	stream, err := portaudio.OpenDefaultStream(
		0,                       // 输入通道数(0表示不录音)
		cfg.Channels,            // 输出通道数
		float64(cfg.SampleRate), // 采样率
		cfg.FrameSize,           // 每次写入一帧
		out,
	)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open audio stream: %w", err)
	}

	logger.Debug("Playback device opened",
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"frames_per_buffer", cfg.FrameSize)

	return &PortAudioPlayback{
		stream: stream,
		out:    out,
		logger: logger,
	}, nil
}

func (p *PortAudioPlayback) Start() error {
	return p.stream.Start()
}

func (p *PortAudioPlayback) Stop() error {
	return p.stream.Stop()
}

// Write 把采样转换为设备需要的 float32 格式，按缓冲区大小分块写入，末块不足时补静音
func (p *PortAudioPlayback) Write(pcm []int16) error {
	for off := 0; off < len(pcm); off += len(p.out) {
		end := min(off+len(p.out), len(pcm))
		n := Int16ToFloat32(p.out, pcm[off:end])
		clear(p.out[n:])

		if err := p.stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
			return fmt.Errorf("failed to write audio stream: %w", err)
		}
	}
	return nil
}

func (p *PortAudioPlayback) Close() error {
	var err error
	if p.stream != nil {
		if cerr := p.stream.Close(); cerr != nil {
			p.logger.Error("failed to close audio stream", "error", cerr)
			err = cerr
		}
		p.stream = nil
	}

	// 终止PortAudio
	if terr := portaudio.Terminate(); terr != nil && err == nil {
		err = terr
	}
	return err
}
