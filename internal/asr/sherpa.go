package asr

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"github.com/iabetor/pivoice/internal/audio"
	"github.com/iabetor/pivoice/internal/logger"
)

// Sherpa 封装 sherpa-onnx 流式识别器（Zipformer），以整段录音的方式使用：
// 每次识别新建一个 OnlineStream，送入全部样本后解码到底。
type Sherpa struct {
	recognizer *sherpa.OnlineRecognizer
	mu         sync.Mutex
}

var _ Transcriber = (*Sherpa)(nil)

// 尾部补静音，让模型输出最后几个词。
const sherpaTailPadding = engineSampleRate * 3 / 10

// NewSherpa 创建离线识别引擎。
// modelPath: 包含 encoder、decoder、joiner ONNX 文件和 tokens.txt 的目录
// numThreads: 推理引擎使用的 CPU 线程数
func NewSherpa(modelPath string, numThreads int) (*Sherpa, error) {
	config := sherpa.OnlineRecognizerConfig{}

	config.FeatConfig.SampleRate = engineSampleRate
	config.FeatConfig.FeatureDim = 80

	// Transducer 模型路径（流式 Zipformer 的常见文件命名）
	config.ModelConfig.Transducer.Encoder = filepath.Join(modelPath, "encoder-epoch-99-avg-1.onnx")
	config.ModelConfig.Transducer.Decoder = filepath.Join(modelPath, "decoder-epoch-99-avg-1.onnx")
	config.ModelConfig.Transducer.Joiner = filepath.Join(modelPath, "joiner-epoch-99-avg-1.onnx")

	config.ModelConfig.Tokens = filepath.Join(modelPath, "tokens.txt")
	config.ModelConfig.NumThreads = numThreads
	config.ModelConfig.Provider = "cpu"
	config.ModelConfig.ModelType = "zipformer"

	config.DecodingMethod = "greedy_search"
	// 整段识别，不需要端点检测
	config.EnableEndpoint = 0

	recognizer := sherpa.NewOnlineRecognizer(&config)
	if recognizer == nil {
		return nil, fmt.Errorf("创建在线识别器失败，模型路径: %s", modelPath)
	}

	logger.Infof("[asr] Sherpa 引擎已初始化 (model=%s, threads=%d)", modelPath, numThreads)
	return &Sherpa{recognizer: recognizer}, nil
}

// Transcribe 实现 Transcriber 接口。识别器不可并发解码，调用之间串行。
func (e *Sherpa) Transcribe(ctx context.Context, buf *audio.Buffer) (string, error) {
	samples, err := audio.ResampleMono(buf, engineSampleRate)
	if err != nil {
		return "", err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.recognizer == nil {
		return "", fmt.Errorf("%w: sherpa 引擎已关闭", ErrUnavailable)
	}

	stream := sherpa.NewOnlineStream(e.recognizer)
	if stream == nil {
		return "", fmt.Errorf("%w: 创建在线识别流失败", ErrUnavailable)
	}
	defer sherpa.DeleteOnlineStream(stream)

	stream.AcceptWaveform(engineSampleRate, samples)
	stream.AcceptWaveform(engineSampleRate, make([]float32, sherpaTailPadding))
	stream.InputFinished()

	for e.recognizer.IsReady(stream) {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		e.recognizer.Decode(stream)
	}

	text := e.recognizer.GetResult(stream).Text
	logger.Debugf("[asr] Sherpa 识别结果: %q", text)
	return normalizeTranscript(text)
}

// Name 实现 Transcriber 接口。
func (e *Sherpa) Name() string {
	return string(EngineSherpa)
}

// Close 释放底层 sherpa-onnx 资源。
func (e *Sherpa) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.recognizer != nil {
		sherpa.DeleteOnlineRecognizer(e.recognizer)
		e.recognizer = nil
	}
	logger.Info("[asr] Sherpa 引擎已关闭")
}
