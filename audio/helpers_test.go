package audio_test

// ramp 生成从 start 开始递增的 n 个采样
func ramp(start, n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(start + i)
	}
	return out
}
