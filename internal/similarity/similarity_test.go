package similarity

import (
	"errors"
	"math"
	"testing"

	"github.com/iabetor/pivoice/internal/features"
)

func record(pitch, loudness float64, timbre ...float64) features.Record {
	t := make([]float64, features.TimbreSize)
	copy(t, timbre)
	return features.Record{PitchHz: pitch, LoudnessDB: loudness, Timbre: t}
}

func TestCompare_Identical(t *testing.T) {
	a := record(180, -22, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13)
	d, err := Compare(a, a)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if d != (Distances{}) {
		t.Errorf("Compare(a, a) = %+v, want zeros", d)
	}
	if s := Score(d); s != 100 {
		t.Errorf("Score = %v, want 100", s)
	}
}

func TestScore_Formula(t *testing.T) {
	tests := []struct {
		name string
		d    Distances
		want float64
	}{
		{"zero", Distances{}, 100},
		{"half pitch", Distances{Pitch: 15}, 85},
		{"half loudness", Distances{Loudness: 5}, 90},
		{"half timbre", Distances{Timbre: 50}, 75},
		{"all saturated", Distances{Pitch: 30, Loudness: 10, Timbre: 100}, 0},
		{"beyond limits", Distances{Pitch: 300, Loudness: 99, Timbre: 1e6}, 0},
		{"undefined pitch", Distances{Pitch: math.NaN()}, 70},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Score(tt.d); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Score(%+v) = %v, want %v", tt.d, got, tt.want)
			}
		})
	}
}

func TestScore_Monotonic(t *testing.T) {
	base := Distances{Pitch: 5, Loudness: 2, Timbre: 20}
	s0 := Score(base)

	for _, d := range []Distances{
		{Pitch: 6, Loudness: 2, Timbre: 20},
		{Pitch: 5, Loudness: 3, Timbre: 20},
		{Pitch: 5, Loudness: 2, Timbre: 21},
	} {
		if s := Score(d); s > s0 {
			t.Errorf("Score(%+v) = %v increased from %v", d, s, s0)
		}
	}
}

func TestSimilarity_Bounds(t *testing.T) {
	pairs := [][2]features.Record{
		{record(100, -10), record(2000, -90, 500, -500)},
		{record(150, -30, 3), record(152, -31, 4)},
		{record(math.NaN(), -30), record(150, -30)},
	}
	for i, p := range pairs {
		s, err := Similarity(p[0], p[1])
		if err != nil {
			t.Fatalf("pair %d: %v", i, err)
		}
		if s < 0 || s > 100 {
			t.Errorf("pair %d: similarity %v out of [0, 100]", i, s)
		}
	}
}

func TestSimilarity_UndefinedPitchNeverPasses(t *testing.T) {
	a := record(math.NaN(), -20, 1, 1, 1)
	s, err := Similarity(a, a)
	if err != nil {
		t.Fatalf("Similarity failed: %v", err)
	}
	if s > 70 {
		t.Errorf("similarity with undefined pitch = %v, want <= 70", s)
	}

	d, _ := Compare(a, record(200, -20, 1, 1, 1))
	if !math.IsNaN(d.Pitch) {
		t.Errorf("Pitch distance = %v, want NaN", d.Pitch)
	}
}

func TestCompare_CorruptRecord(t *testing.T) {
	good := record(100, -20)
	bad := features.Record{PitchHz: 100, LoudnessDB: -20, Timbre: []float64{1, 2}}
	if _, err := Compare(good, bad); !errors.Is(err, features.ErrCorruptRecord) {
		t.Errorf("Compare error = %v, want ErrCorruptRecord", err)
	}
}
