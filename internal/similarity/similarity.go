// Package similarity 将两条声学指纹的差异合成为 0~100 的相似度分数。
package similarity

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/iabetor/pivoice/internal/features"
)

// 各分量的权重与满分距离。距离达到满分距离时该分量得 0 分。
const (
	PitchWeight    = 0.3
	LoudnessWeight = 0.2
	TimbreWeight   = 0.5

	PitchLimitHz    = 30.0
	LoudnessLimitDB = 10.0
	TimbreLimit     = 100.0
)

// Distances 是两条记录在三个维度上的距离。
// 任意一方没有基频时 Pitch 为 NaN。
type Distances struct {
	Pitch    float64
	Loudness float64
	Timbre   float64
}

// Compare 计算两条记录的距离。音色向量长度不合法时返回 features.ErrCorruptRecord。
func Compare(a, b features.Record) (Distances, error) {
	if len(a.Timbre) != features.TimbreSize || len(b.Timbre) != features.TimbreSize {
		return Distances{}, fmt.Errorf("%w: 音色向量长度 %d / %d",
			features.ErrCorruptRecord, len(a.Timbre), len(b.Timbre))
	}
	return Distances{
		Pitch:    math.Abs(a.PitchHz - b.PitchHz),
		Loudness: math.Abs(a.LoudnessDB - b.LoudnessDB),
		Timbre:   floats.Distance(a.Timbre, b.Timbre, 2),
	}, nil
}

// Score 按加权公式计算 [0, 100] 的相似度。
// NaN 距离（未定义的基频）对应分量记 0 分，因此此时最高只能得到 70 分。
func Score(d Distances) float64 {
	return 100 * (PitchWeight*component(d.Pitch, PitchLimitHz) +
		LoudnessWeight*component(d.Loudness, LoudnessLimitDB) +
		TimbreWeight*component(d.Timbre, TimbreLimit))
}

// Similarity 是 Compare + Score 的便捷组合。
func Similarity(a, b features.Record) (float64, error) {
	d, err := Compare(a, b)
	if err != nil {
		return 0, err
	}
	return Score(d), nil
}

func component(dist, limit float64) float64 {
	if math.IsNaN(dist) {
		return 0
	}
	return math.Max(0, 1-dist/limit)
}
