// audio/device.go
package audio

import "log/slog"

// CaptureDevice 定义音频采集设备能力
type CaptureDevice interface {
	Start() error
	Stop() error
	// Read 非阻塞读取一段采样，返回值<=0表示暂时没有数据
	Read(buf []int16) int
	// MinBufferSize 设备最小缓冲区（采样数）
	MinBufferSize() int
	Close() error
}

// PlaybackDevice 定义音频播放设备能力
type PlaybackDevice interface {
	Start() error
	Stop() error
	// Write 写入一整帧采样，可能短暂阻塞直到硬件缓冲区有空间
	Write(pcm []int16) error
	Close() error
}

// CaptureOpener 打开采集设备，onPeriod 在每个采集周期由设备线程调用
type CaptureOpener func(cfg SessionConfig, onPeriod func(), logger *slog.Logger) (CaptureDevice, error)

// PlaybackOpener 打开播放设备
type PlaybackOpener func(cfg SessionConfig, logger *slog.Logger) (PlaybackDevice, error)

// PermissionRequester 录音权限的外部提供方
type PermissionRequester interface {
	HasPermission() bool
	// RequestPermission 异步申请权限，结果通过 resume 回传
	RequestPermission(resume func(granted bool))
}

// FrameSink 接收编码后的帧，每帧调用一次，必须立即返回
type FrameSink func(encoded []byte)
