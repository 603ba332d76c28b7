package asr

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	tcasr "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/asr/v20190614"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common"
	tcerr "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/errors"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/profile"

	"github.com/iabetor/pivoice/internal/audio"
	"github.com/iabetor/pivoice/internal/logger"
)

// TencentFlash 腾讯云一句话识别引擎。
// 适用于 ≤60 秒的短语音识别。
// 文档：https://cloud.tencent.com/document/product/1093/35646
type TencentFlash struct {
	client     *tcasr.Client
	engineType string
	maxRetries int
}

var _ Transcriber = (*TencentFlash)(nil)

// TencentFlashConfig 腾讯云一句话识别配置
type TencentFlashConfig struct {
	SecretID   string
	SecretKey  string
	Region     string // 默认 ap-guangzhou
	EngineType string // 默认 16k_en
	MaxRetries int    // 网络类错误的重试次数
}

// NewTencentFlash 创建腾讯云一句话识别引擎。
func NewTencentFlash(cfg TencentFlashConfig) (*TencentFlash, error) {
	if cfg.SecretID == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("腾讯云 SecretID 和 SecretKey 不能为空")
	}

	region := cfg.Region
	if region == "" {
		region = "ap-guangzhou"
	}
	engineType := cfg.EngineType
	if engineType == "" {
		engineType = "16k_en"
	}

	credential := common.NewCredential(cfg.SecretID, cfg.SecretKey)
	cpf := profile.NewClientProfile()
	cpf.HttpProfile.Endpoint = "asr.tencentcloudapi.com"

	client, err := tcasr.NewClient(credential, region, cpf)
	if err != nil {
		return nil, fmt.Errorf("创建腾讯云 ASR 客户端失败: %w", err)
	}

	logger.Infof("[asr] 腾讯云一句话识别引擎已初始化 (region=%s, engine=%s)", region, engineType)
	return &TencentFlash{client: client, engineType: engineType, maxRetries: cfg.MaxRetries}, nil
}

// Transcribe 实现 Transcriber 接口。
// 网络类错误按指数退避重试，重试受 ctx 截止时间约束。
func (e *TencentFlash) Transcribe(ctx context.Context, buf *audio.Buffer) (string, error) {
	pcm, err := pcm16k(buf)
	if err != nil {
		return "", err
	}
	// 裁剪尾部静音，减少发送给 API 的音频时长
	pcm = trimTrailingSilencePCM(pcm, engineSampleRate)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = 0

	var result string
	op := func() error {
		text, err := e.recognize(ctx, pcm)
		if err != nil {
			if ctx.Err() != nil || !IsNetworkError(err) {
				return backoff.Permanent(err)
			}
			logger.Warnf("[asr] 腾讯云一句话识别失败，准备重试: %v", err)
			return err
		}
		result = text
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(max(e.maxRetries, 0))), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		if errors.Is(err, ErrNotUnderstood) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return normalizeTranscript(result)
}

// recognize 调用腾讯云一句话识别 API。
func (e *TencentFlash) recognize(ctx context.Context, pcm []byte) (string, error) {
	req := tcasr.NewSentenceRecognitionRequest()
	req.EngSerViceType = common.StringPtr(e.engineType)
	sourceType := uint64(1) // 语音数据以 base64 放在请求体中
	req.SourceType = &sourceType
	req.VoiceFormat = common.StringPtr("pcm")
	req.Data = common.StringPtr(base64.StdEncoding.EncodeToString(pcm))
	req.DataLen = common.Int64Ptr(int64(len(pcm)))

	resp, err := e.client.SentenceRecognitionWithContext(ctx, req)
	if err != nil {
		var sdkErr *tcerr.TencentCloudSDKError
		if errors.As(err, &sdkErr) {
			return "", fmt.Errorf("腾讯云一句话识别 API 返回错误 (code=%s): %s", sdkErr.GetCode(), sdkErr.GetMessage())
		}
		return "", fmt.Errorf("调用腾讯云一句话识别 API 失败: %w", err)
	}
	if resp.Response == nil || resp.Response.Result == nil || *resp.Response.Result == "" {
		return "", ErrNotUnderstood
	}

	result := *resp.Response.Result
	logger.Debugf("[asr] 腾讯云一句话识别成功: %s (时长: %.2fs)", result, float64(len(pcm)/2)/engineSampleRate)
	return result, nil
}

// Name 实现 Transcriber 接口。
func (e *TencentFlash) Name() string {
	return string(EngineTencentFlash)
}

// Close 实现 Transcriber 接口。
func (e *TencentFlash) Close() {
	logger.Info("[asr] 腾讯云一句话识别引擎已关闭")
}
