package asr

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"strings"

	"github.com/iabetor/pivoice/internal/audio"
	"github.com/iabetor/pivoice/internal/logger"
)

var (
	// ErrNotUnderstood 表示服务可用但没有识别出任何文字。
	ErrNotUnderstood = errors.New("未能识别语音内容")
	// ErrUnavailable 表示识别服务不可用（网络、鉴权、额度、超时等）。
	ErrUnavailable = errors.New("语音识别服务不可用")
)

// Transcriber 将一段录音转写为小写文本。
// 识别为空返回 ErrNotUnderstood，服务故障返回 ErrUnavailable。
type Transcriber interface {
	Transcribe(ctx context.Context, buf *audio.Buffer) (string, error)
	// Name 返回引擎名称，用于日志和调试。
	Name() string
	// Close 释放资源。
	Close()
}

// EngineType 引擎类型
type EngineType string

const (
	EngineSherpa       EngineType = "sherpa"        // 离线引擎
	EngineTencentFlash EngineType = "tencent-flash" // 腾讯云一句话识别
	EngineTencentRT    EngineType = "tencent-rt"    // 腾讯云实时语音识别
)

// IsOnline 返回是否为在线引擎
func (t EngineType) IsOnline() bool {
	return t == EngineTencentFlash || t == EngineTencentRT
}

// ASR 引擎都使用 16kHz 单声道输入。
const engineSampleRate = 16000

// normalizeTranscript 去掉首尾空白和句末标点并转为小写。
func normalizeTranscript(text string) (string, error) {
	text = strings.ToLower(strings.TrimSpace(text))
	text = strings.TrimRight(text, ".?!,;。？！，；")
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrNotUnderstood
	}
	return text, nil
}

// pcm16k 将录音转为 16kHz 单声道 16bit 小端 PCM。
func pcm16k(buf *audio.Buffer) ([]byte, error) {
	samples, err := audio.ResampleMono(buf, engineSampleRate)
	if err != nil {
		return nil, err
	}
	return audio.Float32ToBytes(samples), nil
}

// logEngineSwitch 记录引擎切换
func logEngineSwitch(from, to string, reason error) {
	logger.Named("asr").Warnw("引擎切换", "from", from, "to", to, "reason", reason)
}

// trimTrailingSilencePCM 裁剪 PCM 音频数据（16bit LE）的尾部静音。
// 从尾部向前扫描，找到最后一个超过阈值的采样点，保留其后 200ms 的数据。
func trimTrailingSilencePCM(audioData []byte, sampleRate int) []byte {
	if len(audioData) < 2 {
		return audioData
	}

	// 最少保留 500ms 的音频
	minBytes := sampleRate / 2 * 2
	if len(audioData) <= minBytes {
		return audioData
	}

	// 静音阈值约 -40dB
	const silenceThreshold = 300
	trailingSamples := sampleRate / 5

	numSamples := len(audioData) / 2
	lastNonSilent := -1
	for i := numSamples - 1; i >= 0; i-- {
		sample := int16(binary.LittleEndian.Uint16(audioData[i*2 : i*2+2]))
		if math.Abs(float64(sample)) > silenceThreshold {
			lastNonSilent = i
			break
		}
	}

	if lastNonSilent < 0 {
		// 全是静音，交给服务端判断
		return audioData
	}

	endSample := lastNonSilent + trailingSamples
	if endSample >= numSamples {
		return audioData
	}
	if endSample+1 < sampleRate/2 {
		endSample = sampleRate/2 - 1
	}

	trimmed := (endSample + 1) * 2
	logger.Debugf("[asr] 裁剪尾部静音: %.2fs → %.2fs",
		float64(numSamples)/float64(sampleRate), float64(endSample+1)/float64(sampleRate))
	return audioData[:trimmed]
}

// IsQuotaExhaustedError 判断是否为额度耗尽错误。
func IsQuotaExhaustedError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()

	quotaErrors := []string{
		"ResourceInsufficient",
		"QuotaExhausted",
		"InvalidParameter.Resource", // 免费额度用完时也可能返回
		"ResourceUnavailable",
	}
	for _, code := range quotaErrors {
		if strings.Contains(errStr, code) {
			return true
		}
	}
	return false
}

// IsNetworkError 判断是否为可重试的网络错误。
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())

	networkErrors := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"no such host",
		"network is unreachable",
		"i/o timeout",
		"eof",
		"requestlimitexceeded",
		"internalerror",
	}
	for _, pattern := range networkErrors {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
