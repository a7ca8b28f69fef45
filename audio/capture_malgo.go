package audio

import (
	"fmt"
	"log/slog"

	"github.com/gen2brain/malgo"
)

// 采集线程与读取方之间最多缓存的采集块数
const captureQueueDepth = 32

// MalgoCapture 基于 miniaudio 的采集设备。
// 数据回调把每次采集的数据放入队列，然后触发一次采集周期回调。
type MalgoCapture struct {
	cfg      SessionConfig
	logger   *slog.Logger
	ctx      *malgo.AllocatedContext
	device   *malgo.Device
	bursts   chan []int16
	onPeriod func()
	period   int

	// 上次 Read 未取完的数据，只被读取方访问
	leftover []int16
}

var _ CaptureDevice = (*MalgoCapture)(nil)

// OpenMalgoCapture 打开默认采集设备，周期为一帧（20ms）
func OpenMalgoCapture(cfg SessionConfig, onPeriod func(), logger *slog.Logger) (CaptureDevice, error) {
	c := &MalgoCapture{
		cfg:      cfg,
		logger:   logger,
		bursts:   make(chan []int16, captureQueueDepth),
		onPeriod: onPeriod,
		period:   cfg.FrameSize,
	}

	// 初始化malgo上下文
	ctxMalgo, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("malgo", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}
	c.ctx = ctxMalgo

	// 创建设备配置
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(c.period)
	// 每次回调固定为一个周期。录音器每个周期只读取两倍周期大小的数据，
	// 回调大小不固定时采集队列会溢出丢数据。
	deviceConfig.NoFixedSizedCallback = 0

	device, err := malgo.InitDevice(ctxMalgo.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: c.onData,
	})
	if err != nil {
		c.freeContext()
		return nil, fmt.Errorf("failed to initialize audio device: %w", err)
	}
	c.device = device

	logger.Debug("Capture device opened",
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"period", c.period)
	return c, nil
}

// onData 运行在 miniaudio 的音频线程上
func (c *MalgoCapture) onData(_, pcmData []byte, _ uint32) {
	if len(pcmData) >= 2 {
		// 转换会复制数据，回调返回后 pcmData 会被复用
		burst := BytesToInt16(pcmData)
		select {
		case c.bursts <- burst:
		default:
			c.logger.Warn("Capture queue full, dropping burst", "samples", len(burst))
		}
	}
	if c.onPeriod != nil {
		c.onPeriod()
	}
}

// Read 非阻塞读取，尽量填满 buf，没有数据时返回 0
func (c *MalgoCapture) Read(buf []int16) int {
	n := 0
	for n < len(buf) {
		if len(c.leftover) == 0 {
			select {
			case burst := <-c.bursts:
				c.leftover = burst
			default:
				return n
			}
		}
		copied := copy(buf[n:], c.leftover)
		c.leftover = c.leftover[copied:]
		n += copied
	}
	return n
}

func (c *MalgoCapture) MinBufferSize() int {
	return c.period * c.cfg.Channels
}

func (c *MalgoCapture) Start() error {
	if err := c.device.Start(); err != nil {
		return fmt.Errorf("failed to start audio device: %w", err)
	}
	return nil
}

func (c *MalgoCapture) Stop() error {
	if err := c.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop audio device: %w", err)
	}
	// 丢弃停止前残留的数据
	for {
		select {
		case <-c.bursts:
		default:
			c.leftover = nil
			return nil
		}
	}
}

func (c *MalgoCapture) Close() error {
	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}
	c.freeContext()
	return nil
}

func (c *MalgoCapture) freeContext() {
	if c.ctx == nil {
		return
	}
	_ = c.ctx.Uninit()
	c.ctx.Free()
	c.ctx = nil
}
