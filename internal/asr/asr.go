package asr

import (
	"context"
	"fmt"
	"time"

	"github.com/iabetor/pivoice/internal/audio"
	"github.com/iabetor/pivoice/internal/config"
	"github.com/iabetor/pivoice/internal/logger"
)

// New 按 asr.priority 创建识别链。缺少配置的引擎被跳过并记录警告；
// 一个引擎都没有时返回 Disabled。
func New(cfg config.ASRConfig) (Transcriber, error) {
	var engines []Transcriber
	for _, name := range cfg.Priority {
		engine, err := newEngine(EngineType(name), cfg)
		if err != nil {
			logger.Warnf("[asr] 跳过引擎 %s: %v", name, err)
			continue
		}
		engines = append(engines, engine)
	}

	if len(engines) == 0 {
		logger.Warn("[asr] 没有可用的识别引擎，语音指令将无法转写")
		return Disabled{}, nil
	}

	return NewFallback(FallbackConfig{
		Engines: engines,
		Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
	})
}

func newEngine(t EngineType, cfg config.ASRConfig) (Transcriber, error) {
	switch t {
	case EngineTencentFlash:
		return NewTencentFlash(TencentFlashConfig{
			SecretID:   cfg.Tencent.SecretID,
			SecretKey:  cfg.Tencent.SecretKey,
			Region:     cfg.Tencent.Region,
			EngineType: cfg.Tencent.EngineType,
			MaxRetries: cfg.MaxRetries,
		})
	case EngineTencentRT:
		return NewTencentRT(TencentRTConfig{
			SecretID:   cfg.Tencent.SecretID,
			SecretKey:  cfg.Tencent.SecretKey,
			AppID:      cfg.Tencent.AppID,
			EngineType: cfg.Tencent.EngineType,
		})
	case EngineSherpa:
		if cfg.Sherpa.ModelPath == "" {
			return nil, fmt.Errorf("未配置 sherpa 模型路径")
		}
		return NewSherpa(cfg.Sherpa.ModelPath, cfg.Sherpa.NumThreads)
	default:
		return nil, fmt.Errorf("未知引擎类型")
	}
}

// Disabled 在没有任何识别引擎时使用，总是返回 ErrUnavailable。
type Disabled struct{}

// Transcribe 实现 Transcriber 接口。
func (Disabled) Transcribe(context.Context, *audio.Buffer) (string, error) {
	return "", fmt.Errorf("%w: 未配置识别引擎", ErrUnavailable)
}

// Name 实现 Transcriber 接口。
func (Disabled) Name() string { return "disabled" }

// Close 实现 Transcriber 接口。
func (Disabled) Close() {}
