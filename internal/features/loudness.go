package features

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// amin 是幅度转 dB 时的下限，避免 log(0)。
const amin = 1e-5

// estimateLoudness 计算逐帧 RMS，转换为 dB（参考值 1，下限为全局最大值 - TopDB），取平均。
func (e *Extractor) estimateLoudness(frames [][]float64) float64 {
	db := make([]float64, len(frames))
	for i, frame := range frames {
		rms := math.Sqrt(floats.Dot(frame, frame) / float64(len(frame)))
		db[i] = 20 * math.Log10(math.Max(amin, rms))
	}
	clampTopDB(db, e.params.TopDB)
	return stat.Mean(db, nil)
}
