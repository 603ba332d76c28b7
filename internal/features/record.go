package features

import (
	"errors"
	"fmt"
	"math"
)

// TimbreSize 是音色向量（MFCC 均值）的固定长度。
const TimbreSize = 13

// ErrCorruptRecord 表示特征记录不满足不变量（音色向量长度不是 13 或含非法数值）。
var ErrCorruptRecord = errors.New("特征记录损坏")

// Record 是一段录音的声学指纹。
type Record struct {
	// PitchHz 是浊音帧基频的平均值；没有浊音帧时为 NaN。
	PitchHz float64
	// LoudnessDB 是逐帧 RMS 能量（dB）的平均值。
	LoudnessDB float64
	// Timbre 是 13 维 MFCC 在时间轴上的平均值。
	Timbre []float64
}

// HasPitch 报告基频是否有定义。
func (r Record) HasPitch() bool {
	return !math.IsNaN(r.PitchHz) && !math.IsInf(r.PitchHz, 0)
}

// Validate 检查记录是否满足不变量。
func (r Record) Validate() error {
	if len(r.Timbre) != TimbreSize {
		return fmt.Errorf("%w: 音色向量长度为 %d，应为 %d", ErrCorruptRecord, len(r.Timbre), TimbreSize)
	}
	for i, v := range r.Timbre {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: 音色系数 %d 非法 (%v)", ErrCorruptRecord, i, v)
		}
	}
	if math.IsNaN(r.LoudnessDB) || math.IsInf(r.LoudnessDB, 0) {
		return fmt.Errorf("%w: 响度非法 (%v)", ErrCorruptRecord, r.LoudnessDB)
	}
	if math.IsInf(r.PitchHz, 0) {
		return fmt.Errorf("%w: 基频非法 (%v)", ErrCorruptRecord, r.PitchHz)
	}
	return nil
}

// Clone 返回深拷贝，调用方可以放心修改。
func (r Record) Clone() Record {
	c := r
	c.Timbre = append([]float64(nil), r.Timbre...)
	return c
}
