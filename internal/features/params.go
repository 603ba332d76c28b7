package features

import "fmt"

// Params 控制特征提取的分帧、音高搜索和梅尔谱参数。
type Params struct {
	FrameLength     int     // 每帧采样点数（也是 FFT 长度）
	HopLength       int     // 帧移
	NumMels         int     // 梅尔滤波器个数
	NumCoefficients int     // 输出的倒谱系数个数
	PitchMinHz      float64 // 音高搜索下限，C2
	PitchMaxHz      float64 // 音高搜索上限，C7
	YinThreshold    float64 // YIN 累积均值归一化差分阈值，越小越严格
	TopDB           float64 // dB 动态范围下限（相对全局最大值）
}

// DefaultParams 返回与常见语音分析工具一致的默认参数。
func DefaultParams() Params {
	return Params{
		FrameLength:     2048,
		HopLength:       512,
		NumMels:         128,
		NumCoefficients: TimbreSize,
		PitchMinHz:      65.406,
		PitchMaxHz:      2093.005,
		YinThreshold:    0.1,
		TopDB:           80,
	}
}

func (p Params) validate() error {
	if p.FrameLength < 4 || p.HopLength <= 0 {
		return fmt.Errorf("分帧参数无效: frame=%d hop=%d", p.FrameLength, p.HopLength)
	}
	if p.NumMels <= 0 || p.NumCoefficients <= 0 || p.NumCoefficients > p.NumMels {
		return fmt.Errorf("梅尔参数无效: mels=%d coefficients=%d", p.NumMels, p.NumCoefficients)
	}
	if p.PitchMinHz <= 0 || p.PitchMinHz >= p.PitchMaxHz {
		return fmt.Errorf("音高范围无效: [%.2f, %.2f]", p.PitchMinHz, p.PitchMaxHz)
	}
	if p.YinThreshold <= 0 || p.YinThreshold >= 1 {
		return fmt.Errorf("YIN 阈值必须在 (0, 1) 之间: %.3f", p.YinThreshold)
	}
	return nil
}
