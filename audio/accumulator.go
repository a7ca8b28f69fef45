package audio

// FrameAccumulator 把长度不定的采集数据拼接成固定长度的帧。
// 只能由采集回调所在的单个执行流访问，内部不加锁。
type FrameAccumulator struct {
	frameSize int
	queue     []int16
}

// NewFrameAccumulator 创建帧累加器，frameSize<=0 时使用 FrameSize
func NewFrameAccumulator(frameSize int) *FrameAccumulator {
	if frameSize <= 0 {
		frameSize = FrameSize
	}
	return &FrameAccumulator{
		frameSize: frameSize,
		queue:     make([]int16, 0, frameSize*2),
	}
}

// Push 追加一段采样，按先进先出返回所有完整帧，不足一帧的余量留待下次。
// 空数据直接忽略。
func (a *FrameAccumulator) Push(burst []int16) [][]int16 {
	if len(burst) == 0 {
		return nil
	}
	a.queue = append(a.queue, burst...)

	var (
		frames [][]int16
		off    int
	)
	for len(a.queue)-off >= a.frameSize {
		frame := make([]int16, a.frameSize)
		copy(frame, a.queue[off:off+a.frameSize])
		frames = append(frames, frame)
		off += a.frameSize
	}

	if off > 0 {
		n := copy(a.queue, a.queue[off:])
		a.queue = a.queue[:n]
	}
	return frames
}

// Pending 当前保留的余量采样数，恒小于帧长
func (a *FrameAccumulator) Pending() int {
	return len(a.queue)
}

// Remainder 返回余量采样的拷贝
func (a *FrameAccumulator) Remainder() []int16 {
	out := make([]int16, len(a.queue))
	copy(out, a.queue)
	return out
}

// Reset 丢弃余量
func (a *FrameAccumulator) Reset() {
	a.queue = a.queue[:0]
}

// FrameSize 帧长（采样数）
func (a *FrameAccumulator) FrameSize() int {
	return a.frameSize
}
