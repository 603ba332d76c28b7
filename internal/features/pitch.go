package features

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// estimatePitch 对每一帧运行 YIN，返回浊音帧基频的平均值。
// 没有任何浊音帧时返回 NaN。
func (e *Extractor) estimatePitch(frames [][]float64, sampleRate int) float64 {
	voiced := make([]float64, 0, len(frames))
	for _, frame := range frames {
		if f0, ok := e.yin(frame, sampleRate); ok {
			voiced = append(voiced, f0)
		}
	}
	if len(voiced) == 0 {
		return math.NaN()
	}
	return stat.Mean(voiced, nil)
}

// yin 在一帧内估计基频。积分窗为半帧，搜索周期范围由音高上下限决定。
// 累积均值归一化差分第一次低于阈值后取该谷底，再做抛物线插值。
func (e *Extractor) yin(frame []float64, sampleRate int) (float64, bool) {
	win := len(frame) / 2
	sr := float64(sampleRate)

	minTau := int(math.Floor(sr / e.params.PitchMaxHz))
	if minTau < 1 {
		minTau = 1
	}
	maxTau := int(math.Ceil(sr / e.params.PitchMinHz))
	if limit := len(frame) - win - 1; maxTau > limit {
		maxTau = limit
	}
	if minTau >= maxTau {
		return 0, false
	}

	diff := make([]float64, maxTau+1)
	for tau := 1; tau <= maxTau; tau++ {
		var sum float64
		for j := 0; j < win; j++ {
			d := frame[j] - frame[j+tau]
			sum += d * d
		}
		diff[tau] = sum
	}

	cmndf := make([]float64, maxTau+1)
	cmndf[0] = 1
	var running float64
	for tau := 1; tau <= maxTau; tau++ {
		running += diff[tau]
		if running == 0 {
			// 静音帧：差分处处为零，视为清音
			cmndf[tau] = 1
			continue
		}
		cmndf[tau] = diff[tau] * float64(tau) / running
	}

	for tau := minTau; tau < maxTau; tau++ {
		if cmndf[tau] >= e.params.YinThreshold {
			continue
		}
		for tau+1 <= maxTau && cmndf[tau+1] < cmndf[tau] {
			tau++
		}
		period := parabolicPeak(cmndf, tau)
		if period <= 0 {
			return 0, false
		}
		f0 := sr / period
		if f0 < e.params.PitchMinHz || f0 > e.params.PitchMaxHz {
			return 0, false
		}
		return f0, true
	}
	return 0, false
}

// parabolicPeak 用相邻三点拟合抛物线，返回极值所在的亚采样位置。
func parabolicPeak(y []float64, i int) float64 {
	if i < 1 || i+1 >= len(y) {
		return float64(i)
	}
	a, b, c := y[i-1], y[i], y[i+1]
	den := a - 2*b + c
	if den == 0 {
		return float64(i)
	}
	return float64(i) + 0.5*(a-c)/den
}
