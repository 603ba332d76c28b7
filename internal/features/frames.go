package features

// frameSignal 以帧中心对齐的方式分帧：信号两端各补 frameLen/2 个零，
// 共得到 1 + len(x)/hop 帧。
func frameSignal(x []float64, frameLen, hop int) [][]float64 {
	pad := frameLen / 2
	padded := make([]float64, len(x)+2*pad)
	copy(padded[pad:], x)

	n := 1 + len(x)/hop
	frames := make([][]float64, n)
	for i := range frames {
		start := i * hop
		frame := make([]float64, frameLen)
		end := start + frameLen
		if end > len(padded) {
			end = len(padded)
		}
		copy(frame, padded[start:end])
		frames[i] = frame
	}
	return frames
}

// clampTopDB 将 dB 值的下限限制为全局最大值减去 topDB。
func clampTopDB(values []float64, topDB float64) {
	if topDB <= 0 || len(values) == 0 {
		return
	}
	peak := values[0]
	for _, v := range values[1:] {
		if v > peak {
			peak = v
		}
	}
	floor := peak - topDB
	for i, v := range values {
		if v < floor {
			values[i] = floor
		}
	}
}
