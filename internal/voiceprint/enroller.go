package voiceprint

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/iabetor/pivoice/internal/audio"
	"github.com/iabetor/pivoice/internal/features"
	"github.com/iabetor/pivoice/internal/logger"
)

// ErrInvalidName 表示用户名为空。
var ErrInvalidName = errors.New("用户名无效")

// 条目键只用一位数字表示轮次。
const maxRounds = 10

// Enroller 为一个用户录制多轮样本并写入特征表。
type Enroller struct {
	Recorder  audio.Recorder
	Extractor *features.Extractor
	Store     *Store
	Rounds    int
	Duration  time.Duration
	// Prompt 在每轮录音前调用，round 从 1 开始。可为 nil。
	Prompt func(round, total int)
}

// Enroll 录制 Rounds 轮，每轮写入键 name0、name1…，已存在的键被替换。
// 某一轮失败时，之前成功的轮次保留在表中。返回写入的键。
func (e *Enroller) Enroll(ctx context.Context, name string) ([]string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	rounds := e.Rounds
	if rounds <= 0 {
		rounds = 3
	}
	if rounds > maxRounds {
		return nil, fmt.Errorf("注册轮数 %d 超过上限 %d", rounds, maxRounds)
	}

	keys := make([]string, 0, rounds)
	for i := 0; i < rounds; i++ {
		if e.Prompt != nil {
			e.Prompt(i+1, rounds)
		}

		buf, err := e.Recorder.Record(ctx, e.Duration)
		if err != nil {
			return keys, fmt.Errorf("第 %d 轮录音失败: %w", i+1, err)
		}
		rec, err := e.Extractor.Extract(buf)
		if err != nil {
			return keys, fmt.Errorf("第 %d 轮特征提取失败: %w", i+1, err)
		}

		key := name + strconv.Itoa(i)
		if err := e.Store.Put(key, rec); err != nil {
			return keys, fmt.Errorf("保存 %s 失败: %w", key, err)
		}
		keys = append(keys, key)
		logger.Infof("[voiceprint] %s 第 %d/%d 轮完成 (pitch=%.2fHz)", name, i+1, rounds, rec.PitchHz)
	}
	return keys, nil
}
