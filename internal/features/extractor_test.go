package features

import (
	"errors"
	"math"
	"testing"

	"github.com/iabetor/pivoice/internal/audio"
)

func sine(freq, amp float64, sampleRate int, seconds float64) []float32 {
	n := int(float64(sampleRate) * seconds)
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amp * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return out
}

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	ex, err := NewExtractor(DefaultParams())
	if err != nil {
		t.Fatalf("NewExtractor failed: %v", err)
	}
	return ex
}

func TestExtract_SinePitch(t *testing.T) {
	ex := newTestExtractor(t)
	buf := audio.NewMonoBuffer(sine(220, 0.8, 44100, 1), 44100)

	rec, err := ex.Extract(buf)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if !rec.HasPitch() {
		t.Fatal("expected a defined pitch for a pure tone")
	}
	if math.Abs(rec.PitchHz-220) > 3 {
		t.Errorf("PitchHz = %.2f, want 220 ± 3", rec.PitchHz)
	}
	if err := rec.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestExtract_SilenceHasNoPitch(t *testing.T) {
	ex := newTestExtractor(t)
	buf := audio.NewMonoBuffer(make([]float32, 44100), 44100)

	rec, err := ex.Extract(buf)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if rec.HasPitch() {
		t.Errorf("PitchHz = %v, want NaN for silence", rec.PitchHz)
	}
	if len(rec.Timbre) != TimbreSize {
		t.Errorf("len(Timbre) = %d, want %d", len(rec.Timbre), TimbreSize)
	}
	if math.Abs(rec.LoudnessDB-(-100)) > 1e-9 {
		t.Errorf("LoudnessDB = %v, want -100", rec.LoudnessDB)
	}
	if err := rec.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestExtract_Loudness(t *testing.T) {
	ex := newTestExtractor(t)
	buf := audio.NewMonoBuffer(sine(440, 1.0, 44100, 1), 44100)

	rec, err := ex.Extract(buf)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	// 满幅正弦的 RMS 约为 -3dB，首尾补零帧会略微拉低均值
	if rec.LoudnessDB < -5 || rec.LoudnessDB > -2.5 {
		t.Errorf("LoudnessDB = %.2f, want within [-5, -2.5]", rec.LoudnessDB)
	}

	quiet, err := ex.Extract(audio.NewMonoBuffer(sine(440, 0.1, 44100, 1), 44100))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if quiet.LoudnessDB >= rec.LoudnessDB {
		t.Errorf("quiet loudness %.2f should be below loud %.2f", quiet.LoudnessDB, rec.LoudnessDB)
	}
}

func TestExtract_TimbreLength(t *testing.T) {
	ex := newTestExtractor(t)
	for _, n := range []int{1, 100, 2048, 16000} {
		buf := audio.NewMonoBuffer(sine(300, 0.5, 16000, float64(n)/16000), 16000)
		if len(buf.Samples) == 0 {
			buf.Samples = []float32{0.1}
		}
		rec, err := ex.Extract(buf)
		if err != nil {
			t.Fatalf("Extract(%d samples) failed: %v", n, err)
		}
		if len(rec.Timbre) != TimbreSize {
			t.Errorf("Extract(%d samples): len(Timbre) = %d, want %d", n, len(rec.Timbre), TimbreSize)
		}
	}
}

func TestExtract_StereoMatchesMono(t *testing.T) {
	ex := newTestExtractor(t)
	mono := sine(330, 0.6, 22050, 0.5)
	stereo := make([]float32, 2*len(mono))
	for i, s := range mono {
		stereo[2*i] = s
		stereo[2*i+1] = s
	}

	a, err := ex.Extract(audio.NewMonoBuffer(mono, 22050))
	if err != nil {
		t.Fatalf("Extract mono failed: %v", err)
	}
	b, err := ex.Extract(&audio.Buffer{Samples: stereo, Channels: 2, SampleRate: 22050})
	if err != nil {
		t.Fatalf("Extract stereo failed: %v", err)
	}
	if a.PitchHz != b.PitchHz || a.LoudnessDB != b.LoudnessDB {
		t.Errorf("stereo record %+v differs from mono %+v", b, a)
	}
	for i := range a.Timbre {
		if a.Timbre[i] != b.Timbre[i] {
			t.Errorf("Timbre[%d]: stereo %v, mono %v", i, b.Timbre[i], a.Timbre[i])
		}
	}
}

func TestExtract_InvalidAudio(t *testing.T) {
	ex := newTestExtractor(t)
	tests := []struct {
		name string
		buf  *audio.Buffer
	}{
		{"nil buffer", nil},
		{"empty samples", audio.NewMonoBuffer(nil, 44100)},
		{"zero sample rate", audio.NewMonoBuffer([]float32{0.1, 0.2}, 0)},
		{"zero channels", &audio.Buffer{Samples: []float32{0.1}, SampleRate: 44100}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ex.Extract(tt.buf)
			if !errors.Is(err, audio.ErrInvalidAudio) {
				t.Errorf("Extract error = %v, want ErrInvalidAudio", err)
			}
		})
	}
}

func TestNewExtractor_InvalidParams(t *testing.T) {
	mutate := []func(*Params){
		func(p *Params) { p.HopLength = 0 },
		func(p *Params) { p.NumCoefficients = 0 },
		func(p *Params) { p.NumCoefficients = p.NumMels + 1 },
		func(p *Params) { p.PitchMinHz = p.PitchMaxHz },
		func(p *Params) { p.YinThreshold = 1.5 },
	}
	for i, m := range mutate {
		p := DefaultParams()
		m(&p)
		if _, err := NewExtractor(p); err == nil {
			t.Errorf("case %d: expected error for params %+v", i, p)
		}
	}
}

func TestRecord_Validate(t *testing.T) {
	good := Record{PitchHz: math.NaN(), LoudnessDB: -20, Timbre: make([]float64, TimbreSize)}
	if err := good.Validate(); err != nil {
		t.Errorf("Validate(undefined pitch) = %v, want nil", err)
	}

	short := Record{PitchHz: 100, LoudnessDB: -20, Timbre: make([]float64, 12)}
	if err := short.Validate(); !errors.Is(err, ErrCorruptRecord) {
		t.Errorf("Validate(short timbre) = %v, want ErrCorruptRecord", err)
	}

	bad := good.Clone()
	bad.Timbre[3] = math.Inf(1)
	if err := bad.Validate(); !errors.Is(err, ErrCorruptRecord) {
		t.Errorf("Validate(inf timbre) = %v, want ErrCorruptRecord", err)
	}
	if math.IsInf(good.Timbre[3], 0) {
		t.Error("Clone shares the timbre slice with the original")
	}
}

func TestExtract_LowSampleRate(t *testing.T) {
	ex := newTestExtractor(t)
	// 100Hz 采样时音高搜索范围为空，只得到清音
	rec, err := ex.Extract(audio.NewMonoBuffer(sine(20, 0.5, 100, 5), 100))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if rec.HasPitch() {
		t.Errorf("PitchHz = %v, want NaN", rec.PitchHz)
	}
	if err := rec.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}
