package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/iabetor/pivoice/internal/logger"
)

// Recorder 录制一段固定时长的音频。
type Recorder interface {
	Record(ctx context.Context, d time.Duration) (*Buffer, error)
}

// Capture 使用 malgo (miniaudio) 从默认麦克风录音。
// 每次 Record 打开设备，采满指定时长后关闭，两次录音之间不占用麦克风。
type Capture struct {
	ctx        *malgo.AllocatedContext
	sampleRate uint32
	channels   uint32
	frameSize  uint32
	mu         sync.Mutex
}

var _ Recorder = (*Capture)(nil)

// NewCapture 创建麦克风采集实例。
// sampleRate: 采样率，如 44100
// channels: 声道数，1 或 2
// frameSize: 设备每个周期的帧数（如 1024）
func NewCapture(sampleRate, channels, frameSize int) (*Capture, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("%w: 采样率 %d，声道数 %d", ErrInvalidAudio, sampleRate, channels)
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("初始化音频上下文失败: %w", err)
	}

	return &Capture{
		ctx:        ctx,
		sampleRate: uint32(sampleRate),
		channels:   uint32(channels),
		frameSize:  uint32(frameSize),
	}, nil
}

// Record 阻塞录音直到采满 d 时长或 ctx 取消。
// ctx 提前取消时返回已录到的部分以及 ctx 的错误。
func (c *Capture) Record(ctx context.Context, d time.Duration) (*Buffer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ctx == nil {
		return nil, errors.New("麦克风已关闭")
	}

	want := int(d.Seconds()*float64(c.sampleRate)) * int(c.channels)
	if want <= 0 {
		return nil, fmt.Errorf("%w: 录音时长 %v 过短", ErrInvalidAudio, d)
	}

	frames := make(chan []float32, 64)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = c.channels
	deviceConfig.SampleRate = c.sampleRate
	deviceConfig.PeriodSizeInFrames = c.frameSize
	deviceConfig.Periods = 2

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, inputSamples []byte, _ uint32) {
			if len(inputSamples) == 0 {
				return
			}
			// 非阻塞发送，消费端跟不上时丢帧
			select {
			case frames <- BytesToFloat32(inputSamples):
			default:
			}
		},
	}

	device, err := malgo.InitDevice(c.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("初始化采集设备失败: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return nil, fmt.Errorf("启动采集设备失败: %w", err)
	}
	logger.Debugf("[audio] 开始录音 %v (rate=%d, channels=%d)", d, c.sampleRate, c.channels)

	samples := make([]float32, 0, want)
	// 设备启动有延迟，额外给 2 秒余量防止永远等不到数据
	deadline := time.NewTimer(d + 2*time.Second)
	defer deadline.Stop()

	var recErr error
loop:
	for len(samples) < want {
		select {
		case <-ctx.Done():
			recErr = ctx.Err()
			break loop
		case <-deadline.C:
			break loop
		case frame := <-frames:
			samples = append(samples, frame...)
		}
	}
	_ = device.Stop()

	if len(samples) > want {
		samples = samples[:want]
	}
	// 保证样本数是声道数的整数倍
	samples = samples[:len(samples)-len(samples)%int(c.channels)]

	buf := &Buffer{Samples: samples, Channels: int(c.channels), SampleRate: int(c.sampleRate)}
	logger.Debugf("[audio] 录音结束，%d 帧 (%.2fs)", buf.Frames(), buf.Duration().Seconds())

	if recErr != nil {
		return buf, recErr
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: 麦克风没有返回任何数据", ErrInvalidAudio)
	}
	return buf, nil
}

// Close 释放音频上下文。
func (c *Capture) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ctx != nil {
		_ = c.ctx.Uninit()
		c.ctx.Free()
		c.ctx = nil
	}
	logger.Info("[audio] 麦克风已释放")
}
