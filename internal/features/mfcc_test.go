package features

import (
	"math"
	"testing"
)

func TestMelScale_RoundTrip(t *testing.T) {
	for _, hz := range []float64{0, 200, 999, 1000, 4000, 22050} {
		got := melToHz(hzToMel(hz))
		if math.Abs(got-hz) > 1e-6 {
			t.Errorf("melToHz(hzToMel(%v)) = %v", hz, got)
		}
	}
	if hzToMel(1000) != 15 {
		t.Errorf("hzToMel(1000) = %v, want 15", hzToMel(1000))
	}
}

func TestMelFilterBank_Shape(t *testing.T) {
	bank := melFilterBank(44100, 2048, 128)
	if len(bank) != 128 {
		t.Fatalf("len(bank) = %d, want 128", len(bank))
	}
	for m, filter := range bank {
		if len(filter) != 1025 {
			t.Fatalf("filter %d has %d bins, want 1025", m, len(filter))
		}
		for k, w := range filter {
			if w < 0 {
				t.Fatalf("filter %d bin %d is negative: %v", m, k, w)
			}
		}
	}
	// 高频滤波器覆盖多个 FFT 频点，应当有非零权重
	var sum float64
	for _, w := range bank[127] {
		sum += w
	}
	if sum == 0 {
		t.Error("highest mel filter is empty")
	}
}

func TestDCTMatrix_Orthonormal(t *testing.T) {
	mat := dctMatrix(13, 128)
	for a := 0; a < 13; a++ {
		for b := 0; b < 13; b++ {
			var dot float64
			for i := range mat[a] {
				dot += mat[a][i] * mat[b][i]
			}
			want := 0.0
			if a == b {
				want = 1
			}
			if math.Abs(dot-want) > 1e-9 {
				t.Errorf("row %d · row %d = %v, want %v", a, b, dot, want)
			}
		}
	}
}

func TestFrameSignal(t *testing.T) {
	x := make([]float64, 44100)
	for i := range x {
		x[i] = 1
	}
	frames := frameSignal(x, 2048, 512)
	if len(frames) != 87 {
		t.Fatalf("len(frames) = %d, want 87", len(frames))
	}
	// 第一帧前半为补零
	if frames[0][0] != 0 || frames[0][1023] != 0 || frames[0][1024] != 1 {
		t.Errorf("first frame is not centered: %v %v %v", frames[0][0], frames[0][1023], frames[0][1024])
	}
	for i, f := range frames {
		if len(f) != 2048 {
			t.Fatalf("frame %d has length %d", i, len(f))
		}
	}
}

func TestClampTopDB(t *testing.T) {
	values := []float64{0, -50, -120, -79}
	clampTopDB(values, 80)
	want := []float64{0, -50, -80, -79}
	for i := range want {
		if values[i] != want[i] {
			t.Errorf("values[%d] = %v, want %v", i, values[i], want[i])
		}
	}
}

func TestYin_SilentFrameIsUnvoiced(t *testing.T) {
	ex := newTestExtractor(t)
	if _, ok := ex.yin(make([]float64, 2048), 44100); ok {
		t.Error("silent frame reported as voiced")
	}
}
