package audio

import (
	"errors"
	"testing"
	"time"
)

func TestBufferValidate(t *testing.T) {
	cases := []struct {
		name string
		buf  *Buffer
		ok   bool
	}{
		{"nil", nil, false},
		{"empty", &Buffer{Channels: 1, SampleRate: 16000}, false},
		{"zero rate", &Buffer{Samples: []float32{0.1}, Channels: 1}, false},
		{"negative rate", &Buffer{Samples: []float32{0.1}, Channels: 1, SampleRate: -1}, false},
		{"no channels", &Buffer{Samples: []float32{0.1}, SampleRate: 16000}, false},
		{"ragged stereo", &Buffer{Samples: []float32{0.1, 0.2, 0.3}, Channels: 2, SampleRate: 16000}, false},
		{"mono", &Buffer{Samples: []float32{0.1}, Channels: 1, SampleRate: 16000}, true},
		{"stereo", &Buffer{Samples: []float32{0.1, 0.2}, Channels: 2, SampleRate: 44100}, true},
	}

	for _, c := range cases {
		err := c.buf.Validate()
		if c.ok && err != nil {
			t.Errorf("%s: unexpected error %v", c.name, err)
		}
		if !c.ok && !errors.Is(err, ErrInvalidAudio) {
			t.Errorf("%s: expected ErrInvalidAudio, got %v", c.name, err)
		}
	}
}

func TestBufferDuration(t *testing.T) {
	buf := &Buffer{Samples: make([]float32, 2*22050), Channels: 2, SampleRate: 44100}
	if buf.Frames() != 22050 {
		t.Errorf("expected 22050 frames, got %d", buf.Frames())
	}
	if buf.Duration() != 500*time.Millisecond {
		t.Errorf("expected 500ms, got %v", buf.Duration())
	}
}
