package audio

import (
	"fmt"
	"math"

	resampling "github.com/tphakala/go-audio-resampling"
)

// ResampleMono 混音为单声道并重采样到 dstRate，返回 float32 样本。
// 在线/离线 ASR 引擎都只接受 16kHz 单声道输入。
func ResampleMono(buf *Buffer, dstRate int) ([]float32, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	if dstRate <= 0 {
		return nil, fmt.Errorf("%w: 目标采样率 %d", ErrInvalidAudio, dstRate)
	}

	mono := buf.Mono()
	if buf.SampleRate == dstRate {
		return toFloat32(mono), nil
	}

	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(buf.SampleRate),
		OutputRate: float64(dstRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("创建重采样器失败: %w", err)
	}

	out, err := rs.Process(mono)
	if err != nil {
		return nil, fmt.Errorf("重采样失败: %w", err)
	}
	// 取出滤波器延迟中剩余的样本，否则录音末尾会被截掉
	tail, err := rs.Flush()
	if err != nil {
		return nil, fmt.Errorf("重采样失败: %w", err)
	}
	out = append(out, tail...)

	want := int(math.Round(float64(len(mono)) * float64(dstRate) / float64(buf.SampleRate)))
	if len(out) > want {
		out = out[:want]
	}
	return toFloat32(out), nil
}

func toFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		out[i] = float32(v)
	}
	return out
}
