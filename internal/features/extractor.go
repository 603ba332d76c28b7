package features

import (
	"github.com/iabetor/pivoice/internal/audio"
	"github.com/iabetor/pivoice/internal/logger"
)

// Extractor 从录音中提取声学指纹。创建后只读，可并发使用。
type Extractor struct {
	params Params
	window []float64
	dct    [][]float64
}

// NewExtractor 创建特征提取器。
func NewExtractor(params Params) (*Extractor, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	return &Extractor{
		params: params,
		window: hannWindow(params.FrameLength),
		dct:    dctMatrix(params.NumCoefficients, params.NumMels),
	}, nil
}

// Params 返回提取器使用的参数。
func (e *Extractor) Params() Params {
	return e.params
}

// Extract 计算音高、响度和音色。多声道输入先按帧平均混为单声道。
// 空缓冲或非正采样率返回 audio.ErrInvalidAudio。
// 采样率过低时音高搜索范围为空，结果为清音（NaN）。
func (e *Extractor) Extract(buf *audio.Buffer) (Record, error) {
	if err := buf.Validate(); err != nil {
		return Record{}, err
	}

	mono := buf.Mono()
	frames := frameSignal(mono, e.params.FrameLength, e.params.HopLength)

	rec := Record{
		PitchHz:    e.estimatePitch(frames, buf.SampleRate),
		LoudnessDB: e.estimateLoudness(frames),
		Timbre:     e.estimateTimbre(frames, buf.SampleRate),
	}

	logger.Debugf("[features] %d 帧: pitch=%.2fHz loudness=%.2fdB", len(frames), rec.PitchHz, rec.LoudnessDB)
	return rec, nil
}
