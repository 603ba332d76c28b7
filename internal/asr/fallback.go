package asr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/iabetor/pivoice/internal/audio"
	"github.com/iabetor/pivoice/internal/logger"
)

// Fallback 多层兜底识别。按优先级依次尝试各引擎，
// 服务不可用时切换到下一个；失败的引擎在冷却期内被跳过。
type Fallback struct {
	engines  []Transcriber
	timeout  time.Duration // 单个引擎的识别超时
	cooldown time.Duration

	mu       sync.Mutex
	failedAt map[int]time.Time
	now      func() time.Time
}

var _ Transcriber = (*Fallback)(nil)

// FallbackConfig 兜底引擎配置
type FallbackConfig struct {
	// 引擎列表（按优先级排序）
	Engines []Transcriber
	// 单个引擎的超时（默认 5 秒）
	Timeout time.Duration
	// 失败引擎的冷却时间（默认 5 分钟）
	Cooldown time.Duration
}

// NewFallback 创建多层兜底引擎。
func NewFallback(cfg FallbackConfig) (*Fallback, error) {
	if len(cfg.Engines) == 0 {
		return nil, errors.New("Fallback: 至少需要一个引擎")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = 5 * time.Minute
	}

	e := &Fallback{
		engines:  cfg.Engines,
		timeout:  timeout,
		cooldown: cooldown,
		failedAt: make(map[int]time.Time),
		now:      time.Now,
	}
	logger.Infof("[asr] Fallback 引擎已初始化: %s (timeout=%v)", e.Name(), timeout)
	return e, nil
}

// Transcribe 实现 Transcriber 接口。
// ErrNotUnderstood 和非法音频直接返回，不再尝试其他引擎。
// 全部引擎不可用（或都在冷却期）时返回 ErrUnavailable。
func (e *Fallback) Transcribe(ctx context.Context, buf *audio.Buffer) (string, error) {
	if err := buf.Validate(); err != nil {
		return "", err
	}

	order := e.candidates()
	var lastErr error
	for n, i := range order {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		engine := e.engines[i]

		engineCtx, cancel := context.WithTimeout(ctx, e.timeout)
		text, err := engine.Transcribe(engineCtx, buf)
		cancel()

		if err == nil {
			e.markRecovered(i)
			return text, nil
		}
		if errors.Is(err, ErrNotUnderstood) || errors.Is(err, audio.ErrInvalidAudio) {
			return "", err
		}

		lastErr = err
		e.markFailed(i)
		if n+1 < len(order) {
			logEngineSwitch(engine.Name(), e.engines[order[n+1]].Name(), err)
		} else {
			logger.Errorf("[asr] 无可用引擎，所有引擎均已失败: %v", err)
		}
	}

	if errors.Is(lastErr, ErrUnavailable) {
		return "", lastErr
	}
	return "", fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

// candidates 返回本次要尝试的引擎下标：跳过冷却期内的引擎；
// 如果全部都在冷却期，则全部重新尝试。
func (e *Fallback) candidates() []int {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	var order []int
	for i := range e.engines {
		if at, ok := e.failedAt[i]; ok && now.Sub(at) < e.cooldown {
			continue
		}
		order = append(order, i)
	}
	if len(order) == 0 {
		for i := range e.engines {
			order = append(order, i)
		}
	}
	return order
}

func (e *Fallback) markFailed(i int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failedAt[i] = e.now()
}

func (e *Fallback) markRecovered(i int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.failedAt[i]; ok {
		delete(e.failedAt, i)
		logger.Infof("[asr] 引擎已恢复: %s", e.engines[i].Name())
	}
}

// Name 实现 Transcriber 接口，返回按优先级排列的引擎名。
func (e *Fallback) Name() string {
	names := make([]string, len(e.engines))
	for i, engine := range e.engines {
		names[i] = engine.Name()
	}
	return strings.Join(names, ">")
}

// Close 实现 Transcriber 接口。
func (e *Fallback) Close() {
	for _, engine := range e.engines {
		engine.Close()
	}
	logger.Info("[asr] Fallback 引擎已关闭")
}
