package audio

// BytesToInt16 将小端 16bit PCM 字节转换为采样，奇数长度时丢弃末尾字节
func BytesToInt16(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return pcm
}

// Int16ToBytes 将采样转换为小端 16bit PCM 字节
func Int16ToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}

// Int16ToFloat32 将采样归一化到 [-1, 1)，写入 dst 并返回写入数量
func Int16ToFloat32(dst []float32, pcm []int16) int {
	n := min(len(dst), len(pcm))
	for i := 0; i < n; i++ {
		dst[i] = float32(pcm[i]) / 32768.0
	}
	return n
}
