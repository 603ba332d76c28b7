package audio

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidAudio 表示音频缓冲为空或参数非法（采样率、声道数）。
var ErrInvalidAudio = errors.New("无效的音频数据")

// Buffer 是一段录音：交错排列的 float32 样本，范围 [-1.0, 1.0]。
type Buffer struct {
	Samples    []float32
	Channels   int
	SampleRate int
}

// NewMonoBuffer 用单声道样本创建 Buffer。
func NewMonoBuffer(samples []float32, sampleRate int) *Buffer {
	return &Buffer{Samples: samples, Channels: 1, SampleRate: sampleRate}
}

// Validate 检查缓冲是否可用于特征提取。
func (b *Buffer) Validate() error {
	if b == nil || len(b.Samples) == 0 {
		return fmt.Errorf("%w: 缓冲为空", ErrInvalidAudio)
	}
	if b.SampleRate <= 0 {
		return fmt.Errorf("%w: 采样率必须为正数，当前 %d", ErrInvalidAudio, b.SampleRate)
	}
	if b.Channels <= 0 {
		return fmt.Errorf("%w: 声道数必须为正数，当前 %d", ErrInvalidAudio, b.Channels)
	}
	if len(b.Samples)%b.Channels != 0 {
		return fmt.Errorf("%w: 样本数 %d 不是声道数 %d 的整数倍", ErrInvalidAudio, len(b.Samples), b.Channels)
	}
	return nil
}

// Frames 返回每个声道的样本数。
func (b *Buffer) Frames() int {
	if b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Duration 返回录音时长。
func (b *Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(b.Frames()) / float64(b.SampleRate) * float64(time.Second))
}

// Mono 将多声道样本按帧取平均，返回 float64 单声道信号。
func (b *Buffer) Mono() []float64 {
	return DownmixToMono(b.Samples, b.Channels)
}
