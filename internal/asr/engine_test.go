package asr

import (
	"errors"
	"testing"

	"github.com/iabetor/pivoice/internal/audio"
	"github.com/iabetor/pivoice/internal/config"
)

func TestNormalizeTranscript(t *testing.T) {
	tests := []struct {
		in   string
		want string
		err  error
	}{
		{"Turn on LED 1.", "turn on led 1", nil},
		{"  please TURN OFF led 2 now?  ", "please turn off led 2 now", nil},
		{"", "", ErrNotUnderstood},
		{" . ", "", ErrNotUnderstood},
		{"打开一号灯。", "打开一号灯", nil},
	}
	for _, tt := range tests {
		got, err := normalizeTranscript(tt.in)
		if !errors.Is(err, tt.err) || got != tt.want {
			t.Errorf("normalizeTranscript(%q) = %q, %v; want %q, %v", tt.in, got, err, tt.want, tt.err)
		}
	}
}

func TestTrimTrailingSilencePCM(t *testing.T) {
	const rate = 16000
	// 1 秒有声 + 1 秒静音
	samples := make([]float32, 2*rate)
	for i := 0; i < rate; i++ {
		samples[i] = 0.5
	}
	pcm := audio.Float32ToBytes(samples)

	trimmed := trimTrailingSilencePCM(pcm, rate)
	wantSamples := rate + rate/5
	if len(trimmed) != wantSamples*2 {
		t.Errorf("trimmed to %d samples, want %d", len(trimmed)/2, wantSamples)
	}

	// 全静音保持原样
	silent := make([]byte, 2*rate*2)
	if got := trimTrailingSilencePCM(silent, rate); len(got) != len(silent) {
		t.Errorf("silent audio trimmed to %d bytes", len(got))
	}

	// 过短的音频不裁剪
	short := pcm[:rate/4*2]
	if got := trimTrailingSilencePCM(short, rate); len(got) != len(short) {
		t.Errorf("short audio trimmed to %d bytes", len(got))
	}
}

func TestErrorClassification(t *testing.T) {
	if !IsNetworkError(errors.New("read tcp: i/o timeout")) {
		t.Error("i/o timeout should be a network error")
	}
	if IsNetworkError(errors.New("AuthFailure.SignatureFailure")) {
		t.Error("auth failure should not be retried")
	}
	if !IsQuotaExhaustedError(errors.New("code=ResourceInsufficient.Quota")) {
		t.Error("ResourceInsufficient should be quota exhausted")
	}
	if IsNetworkError(nil) || IsQuotaExhaustedError(nil) {
		t.Error("nil error classified")
	}
}

func TestNew_NoEnginesConfigured(t *testing.T) {
	tr, err := New(config.ASRConfig{Priority: []string{"tencent-flash", "sherpa", "bogus"}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := tr.(Disabled); !ok {
		t.Errorf("New returned %T, want Disabled", tr)
	}
}

func TestNew_TencentFlashConfigured(t *testing.T) {
	tr, err := New(config.ASRConfig{
		Priority:       []string{"tencent-flash"},
		TimeoutSeconds: 5,
		Tencent:        config.TencentConfig{SecretID: "id", SecretKey: "key", Region: "ap-guangzhou"},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer tr.Close()
	if tr.Name() != "tencent-flash" {
		t.Errorf("Name = %q, want tencent-flash", tr.Name())
	}
}
