package asr

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/iabetor/pivoice/internal/audio"
	"github.com/iabetor/pivoice/internal/logger"
)

// TencentRT 腾讯云实时语音识别引擎。
// 通过 WebSocket 一次性发送整段录音，等待最终结果。
// 文档：https://cloud.tencent.com/document/product/1093/48982
type TencentRT struct {
	secretID    string
	secretKey   string
	appID       string
	endpoint    string // 形如 wss://asr.cloud.tencent.com
	engineModel string
	dialer      *websocket.Dialer
}

var _ Transcriber = (*TencentRT)(nil)

// TencentRTConfig 腾讯云实时语音识别配置
type TencentRTConfig struct {
	SecretID   string
	SecretKey  string
	AppID      string
	EngineType string // 默认 16k_en
	Endpoint   string // 默认 wss://asr.cloud.tencent.com
}

// NewTencentRT 创建腾讯云实时语音识别引擎。
func NewTencentRT(cfg TencentRTConfig) (*TencentRT, error) {
	if cfg.SecretID == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("腾讯云 SecretID 和 SecretKey 不能为空")
	}
	if cfg.AppID == "" {
		return nil, fmt.Errorf("腾讯云 AppID 不能为空")
	}

	e := &TencentRT{
		secretID:    cfg.SecretID,
		secretKey:   cfg.SecretKey,
		appID:       cfg.AppID,
		endpoint:    strings.TrimSuffix(cfg.Endpoint, "/"),
		engineModel: cfg.EngineType,
		dialer:      &websocket.Dialer{HandshakeTimeout: 5 * time.Second},
	}
	if e.endpoint == "" {
		e.endpoint = "wss://asr.cloud.tencent.com"
	}
	if e.engineModel == "" {
		e.engineModel = "16k_en"
	}

	logger.Infof("[asr] 腾讯云实时语音识别引擎已初始化 (engine=%s)", e.engineModel)
	return e, nil
}

// RTASRResponse 实时语音识别响应结构
type RTASRResponse struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	VoiceID   string `json:"voice_id"`
	MessageID string `json:"message_id"`
	Result    *struct {
		VoiceTextStr string `json:"voice_text_str"`
		SliceType    int    `json:"slice_type"` // 0=一句话开始，1=中间结果，2=一句话结束
	} `json:"result"`
	Final int `json:"final"` // 1=最终结果
}

// Transcribe 实现 Transcriber 接口。
func (e *TencentRT) Transcribe(ctx context.Context, buf *audio.Buffer) (string, error) {
	pcm, err := pcm16k(buf)
	if err != nil {
		return "", err
	}
	pcm = trimTrailingSilencePCM(pcm, engineSampleRate)

	text, err := e.recognize(ctx, pcm)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return normalizeTranscript(text)
}

// recognize 建立 WebSocket 连接，分片发送音频并收集 slice_type=2 的句子结果。
func (e *TencentRT) recognize(ctx context.Context, pcm []byte) (string, error) {
	wsURL, err := e.buildWebSocketURL(time.Now())
	if err != nil {
		return "", err
	}

	conn, _, err := e.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return "", fmt.Errorf("WebSocket 连接失败: %w", err)
	}
	defer conn.Close()

	// ctx 结束时关闭连接，使阻塞的读写立即返回
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	type outcome struct {
		text string
		err  error
	}
	done := make(chan outcome, 1)

	go func() {
		var text strings.Builder
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				done <- outcome{err: err}
				return
			}

			var resp RTASRResponse
			if err := json.Unmarshal(message, &resp); err != nil {
				continue
			}
			if resp.Code != 0 {
				done <- outcome{err: fmt.Errorf("ASR 错误 (code=%d): %s", resp.Code, resp.Message)}
				return
			}
			if resp.Result != nil && resp.Result.SliceType == 2 {
				text.WriteString(resp.Result.VoiceTextStr)
			}
			if resp.Final == 1 {
				done <- outcome{text: text.String()}
				return
			}
		}
	}()

	// 200ms @ 16kHz 16bit；无需模拟实时率
	const chunkSize = 6400
	for i := 0; i < len(pcm); i += chunkSize {
		end := min(i+chunkSize, len(pcm))
		if err := conn.WriteMessage(websocket.BinaryMessage, pcm[i:end]); err != nil {
			return "", ctxErrOr(ctx, fmt.Errorf("发送音频失败: %w", err))
		}
	}

	endData, _ := json.Marshal(map[string]string{"type": "end"})
	if err := conn.WriteMessage(websocket.TextMessage, endData); err != nil {
		return "", ctxErrOr(ctx, fmt.Errorf("发送结束信号失败: %w", err))
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case out := <-done:
		if out.err != nil {
			return "", ctxErrOr(ctx, out.err)
		}
		logger.Debugf("[asr] 腾讯云实时语音识别结果: %s", out.text)
		return out.text, nil
	}
}

func ctxErrOr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// buildWebSocketURL 构建带签名的 WebSocket 连接 URL。
// 签名原文 = host + path + ? + 按字典序排列的参数（不含协议头）。
func (e *TencentRT) buildWebSocketURL(now time.Time) (string, error) {
	u, err := url.Parse(e.endpoint)
	if err != nil {
		return "", fmt.Errorf("解析识别服务地址失败: %w", err)
	}
	path := fmt.Sprintf("/asr/v2/%s", e.appID)

	ts := now.Unix()
	params := map[string]string{
		"secretid":          e.secretID,
		"timestamp":         fmt.Sprintf("%d", ts),
		"expired":           fmt.Sprintf("%d", ts+86400),
		"nonce":             fmt.Sprintf("%d", rand.Intn(99999-1000)+1000),
		"engine_model_type": e.engineModel,
		"voice_id":          uuid.New().String(),
		"voice_format":      "1", // PCM
		"needvad":           "1",
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sorted := make([]string, 0, len(keys))
	for _, k := range keys {
		sorted = append(sorted, fmt.Sprintf("%s=%s", k, params[k]))
	}
	queryStr := strings.Join(sorted, "&")

	signature := e.hmacSHA1(fmt.Sprintf("%s%s?%s", u.Host, path, queryStr))
	return fmt.Sprintf("%s://%s%s?%s&signature=%s", u.Scheme, u.Host, path, queryStr, url.QueryEscape(signature)), nil
}

// hmacSHA1 计算 HMAC-SHA1 签名并返回 Base64 编码。
func (e *TencentRT) hmacSHA1(data string) string {
	h := hmac.New(sha1.New, []byte(e.secretKey))
	h.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// Name 实现 Transcriber 接口。
func (e *TencentRT) Name() string {
	return string(EngineTencentRT)
}

// Close 实现 Transcriber 接口。
func (e *TencentRT) Close() {
	logger.Info("[asr] 腾讯云实时语音识别引擎已关闭")
}
