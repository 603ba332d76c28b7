package voiceprint

import (
	"fmt"
	"strings"

	"github.com/iabetor/pivoice/internal/features"
	"github.com/iabetor/pivoice/internal/similarity"
)

// NoMatchKey 是未匹配时 Result.Key 的取值。
const NoMatchKey = "none"

// DefaultThreshold 是默认的相似度阈值，得分必须严格大于它。
const DefaultThreshold = 70.0

// MatchMode 决定遍历特征表时选取哪个条目。
type MatchMode string

const (
	// MatchFirst 按插入顺序返回第一个超过阈值的条目。
	MatchFirst MatchMode = "first"
	// MatchBest 比较全部条目，返回超过阈值且得分最高的条目。
	MatchBest MatchMode = "best"
)

// ParseMatchMode 解析配置中的匹配模式，空字符串视为 first。
func ParseMatchMode(s string) (MatchMode, error) {
	switch MatchMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", MatchFirst:
		return MatchFirst, nil
	case MatchBest:
		return MatchBest, nil
	default:
		return "", fmt.Errorf("不支持的匹配模式: %s", s)
	}
}

// Result 是一次验证的结论。
type Result struct {
	Matched bool
	// Key 是命中的条目键，未命中时为 NoMatchKey。
	Key string
	// User 是命中条目对应的用户名，未命中时为空。
	User string
	// Similarity 在命中时为命中条目的得分。
	// 未命中时 first 模式报告最后一个比较的条目得分，best 模式报告最高分；空表为 0。
	Similarity float64
	// Compared 是实际比较过的条目数。
	Compared int
}

// Verifier 根据阈值和匹配模式在特征表中查找说话人。
type Verifier struct {
	Threshold float64
	Mode      MatchMode
}

// NewVerifier 使用默认阈值和 first 模式。
func NewVerifier() Verifier {
	return Verifier{Threshold: DefaultThreshold, Mode: MatchFirst}
}

// Verify 将探测记录与 entries 逐条比较。
// 条目损坏时返回 features.ErrCorruptRecord；空表返回未命中且不报错。
func (v Verifier) Verify(probe features.Record, entries []Entry) (Result, error) {
	res := Result{Key: NoMatchKey}
	if err := probe.Validate(); err != nil {
		return res, err
	}

	best := -1.0
	bestKey := ""
	for _, e := range entries {
		score, err := similarity.Similarity(e.Record, probe)
		if err != nil {
			return Result{Key: NoMatchKey}, fmt.Errorf("条目 %s: %w", e.Key, err)
		}
		res.Compared++

		if v.Mode == MatchBest {
			if score > best {
				best, bestKey = score, e.Key
			}
			continue
		}

		res.Similarity = score
		if score > v.Threshold {
			return matched(res, e.Key), nil
		}
	}

	if v.Mode == MatchBest && res.Compared > 0 {
		res.Similarity = best
		if best > v.Threshold {
			return matched(res, bestKey), nil
		}
	}
	return res, nil
}

func matched(res Result, key string) Result {
	res.Matched = true
	res.Key = key
	res.User = UserName(key)
	return res
}
