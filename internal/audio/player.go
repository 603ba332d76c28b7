package audio

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/iabetor/pivoice/internal/logger"
)

// 录音提示音参数。
const (
	beepFrequency  = 880.0
	beepDuration   = 150 * time.Millisecond
	beepSampleRate = 16000
)

// Cue 在每次录音开始前提示用户。
type Cue interface {
	Beep(ctx context.Context) error
}

// Player 使用 malgo (miniaudio) 通过默认扬声器播放单声道音频。
type Player struct {
	ctx    *malgo.AllocatedContext
	mu     sync.Mutex
	closed bool
	beep   []float32
}

var _ Cue = (*Player)(nil)

// NewPlayer 创建播放实例，并预先生成提示音。
func NewPlayer() (*Player, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("初始化播放上下文失败: %w", err)
	}
	return &Player{
		ctx:  ctx,
		beep: Tone(beepFrequency, beepDuration, beepSampleRate, 0.3),
	}, nil
}

// Tone 生成一段带 10ms 淡入淡出的正弦波。
func Tone(freq float64, d time.Duration, sampleRate int, amplitude float64) []float32 {
	n := int(d.Seconds() * float64(sampleRate))
	if n <= 0 {
		return nil
	}
	fade := min(sampleRate/100, n/2)
	out := make([]float32, n)
	for i := range out {
		gain := amplitude
		if fade > 0 {
			if i < fade {
				gain *= float64(i) / float64(fade)
			} else if i >= n-fade {
				gain *= float64(n-1-i) / float64(fade)
			}
		}
		out[i] = float32(gain * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return out
}

// Beep 播放录音提示音。
func (p *Player) Beep(ctx context.Context) error {
	return p.Play(ctx, p.beep, beepSampleRate)
}

// Play 播放单声道 float32 样本，阻塞直到播放完成或 ctx 被取消。
func (p *Player) Play(ctx context.Context, samples []float32, sampleRate int) error {
	if len(samples) == 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("播放器已关闭")
	}

	pcmBytes := Float32ToBytes(samples)
	pos := 0
	done := make(chan struct{})

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.PeriodSizeInFrames = 512
	deviceConfig.Periods = 2

	callbacks := malgo.DeviceCallbacks{
		Data: func(outputSamples, _ []byte, frameCount uint32) {
			bytesNeeded := int(frameCount) * 2
			n := copy(outputSamples[:bytesNeeded], pcmBytes[pos:])
			// 数据不够时剩余部分填零
			clear(outputSamples[n:bytesNeeded])
			pos += n
			if pos >= len(pcmBytes) {
				select {
				case done <- struct{}{}:
				default:
				}
			}
		},
	}

	device, err := malgo.InitDevice(p.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return fmt.Errorf("初始化播放设备失败: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return fmt.Errorf("启动播放设备失败: %w", err)
	}
	defer device.Stop()

	select {
	case <-ctx.Done():
		logger.Debug("[audio] 播放被取消")
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Close 释放播放上下文。
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true

	if p.ctx != nil {
		_ = p.ctx.Uninit()
		p.ctx.Free()
		p.ctx = nil
	}
}
