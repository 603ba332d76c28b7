package voiceprint

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/iabetor/pivoice/internal/audio"
	"github.com/iabetor/pivoice/internal/config"
	"github.com/iabetor/pivoice/internal/features"
	"github.com/iabetor/pivoice/internal/logger"
)

// Manager 是声纹注册、验证和删除的统一入口。
type Manager struct {
	extractor *features.Extractor
	store     *Store
	verifier  Verifier
	rounds    int
	duration  time.Duration
	mu        sync.Mutex
}

// NewManager 根据配置创建特征提取器、打开特征表。
// 特征表损坏时返回错误，调用方应终止启动。
func NewManager(cfg *config.Config) (*Manager, error) {
	params := features.DefaultParams()
	params.FrameLength = cfg.Features.FrameLength
	params.HopLength = cfg.Features.HopLength
	params.NumMels = cfg.Features.NumMels
	params.PitchMinHz = cfg.Features.PitchMinHz
	params.PitchMaxHz = cfg.Features.PitchMaxHz
	params.YinThreshold = cfg.Features.YinThreshold

	extractor, err := features.NewExtractor(params)
	if err != nil {
		return nil, fmt.Errorf("创建特征提取器失败: %w", err)
	}

	mode, err := ParseMatchMode(cfg.Voiceprint.MatchMode)
	if err != nil {
		return nil, err
	}

	store, err := OpenStore(cfg.Voiceprint.StoreFile)
	if err != nil {
		return nil, fmt.Errorf("加载特征表失败: %w", err)
	}

	m := NewManagerWith(extractor, store, Verifier{Threshold: cfg.Voiceprint.Threshold, Mode: mode})
	m.rounds = cfg.Voiceprint.Rounds
	m.duration = time.Duration(cfg.Audio.RecordSeconds * float64(time.Second))

	logger.Infof("[voiceprint] 声纹管理器已初始化 (entries=%d, threshold=%.1f, mode=%s)",
		store.Len(), cfg.Voiceprint.Threshold, mode)
	return m, nil
}

// NewManagerWith 用已构造好的组件创建 Manager，注册默认 3 轮、每轮 2 秒。
func NewManagerWith(extractor *features.Extractor, store *Store, verifier Verifier) *Manager {
	return &Manager{
		extractor: extractor,
		store:     store,
		verifier:  verifier,
		rounds:    3,
		duration:  2 * time.Second,
	}
}

// Enroll 从 rec 录制多轮样本注册用户。
func (m *Manager) Enroll(ctx context.Context, name string, rec audio.Recorder, prompt func(round, total int)) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	en := &Enroller{
		Recorder:  rec,
		Extractor: m.extractor,
		Store:     m.store,
		Rounds:    m.rounds,
		Duration:  m.duration,
		Prompt:    prompt,
	}
	keys, err := en.Enroll(ctx, name)
	if err != nil {
		return keys, err
	}
	logger.Infof("[voiceprint] 用户 %s 注册成功 (%d 个样本)", name, len(keys))
	return keys, nil
}

// Identify 提取录音特征并在特征表中查找说话人。
func (m *Manager) Identify(buf *audio.Buffer) (Result, error) {
	probe, err := m.extractor.Extract(buf)
	if err != nil {
		return Result{Key: NoMatchKey}, err
	}
	probe.Timbre = RoundTimbre(probe.Timbre)

	m.mu.Lock()
	entries := m.store.Entries()
	m.mu.Unlock()

	res, err := m.verifier.Verify(probe, entries)
	if err != nil {
		return res, err
	}
	if res.Matched {
		logger.Infof("[voiceprint] 识别到用户: %s (key=%s, similarity=%.2f)", res.User, res.Key, res.Similarity)
	} else {
		logger.Infof("[voiceprint] 未识别到已注册用户 (similarity=%.2f, compared=%d)", res.Similarity, res.Compared)
	}
	return res, nil
}

// DeleteUser 删除用户的全部样本。
func (m *Manager) DeleteUser(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.store.RemoveUser(name); err != nil {
		return err
	}
	logger.Infof("[voiceprint] 用户 %s 已删除", name)
	return nil
}

// ListUsers 列出所有已注册用户。
func (m *Manager) ListUsers() []string {
	return m.store.Users()
}

// Rounds 返回每个用户的注册轮数。
func (m *Manager) Rounds() int {
	return m.rounds
}

// RecordDuration 返回每次录音的时长。
func (m *Manager) RecordDuration() time.Duration {
	return m.duration
}

// Store 返回底层特征表。
func (m *Manager) Store() *Store {
	return m.store
}
