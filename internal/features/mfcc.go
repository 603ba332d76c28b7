package features

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// 功率谱转 dB 时的下限。
const powerFloor = 1e-10

// estimateTimbre 计算 MFCC 并在时间轴上取平均。
// 流程：Hann 窗 -> FFT 功率谱 -> Slaney 梅尔滤波器组 -> dB -> 正交 DCT-II。
func (e *Extractor) estimateTimbre(frames [][]float64, sampleRate int) []float64 {
	nMels := e.params.NumMels
	bank := melFilterBank(sampleRate, e.params.FrameLength, nMels)

	// 先求全部帧的对数梅尔谱，TopDB 截断以整段录音的最大值为参考
	logMel := make([]float64, len(frames)*nMels)
	windowed := make([]float64, e.params.FrameLength)
	for i, frame := range frames {
		floats.MulTo(windowed, frame, e.window)
		power := powerSpectrum(windowed)
		row := logMel[i*nMels : (i+1)*nMels]
		for m, filter := range bank {
			row[m] = 10 * math.Log10(math.Max(powerFloor, floats.Dot(filter, power)))
		}
	}
	clampTopDB(logMel, e.params.TopDB)

	nCoef := e.params.NumCoefficients
	coeffs := make([][]float64, nCoef)
	for k := range coeffs {
		coeffs[k] = make([]float64, len(frames))
	}
	for i := range frames {
		row := logMel[i*nMels : (i+1)*nMels]
		for k := 0; k < nCoef; k++ {
			coeffs[k][i] = floats.Dot(e.dct[k], row)
		}
	}

	timbre := make([]float64, nCoef)
	for k := range timbre {
		timbre[k] = stat.Mean(coeffs[k], nil)
	}
	return timbre
}

// powerSpectrum 返回实信号单边功率谱，长度 n/2+1。
func powerSpectrum(x []float64) []float64 {
	spec := fft.FFTReal(x)
	bins := len(x)/2 + 1
	power := make([]float64, bins)
	for i := 0; i < bins; i++ {
		m := cmplx.Abs(spec[i])
		power[i] = m * m
	}
	return power
}

// hannWindow 返回周期 Hann 窗（适用于 FFT 分析）。
func hannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

// Slaney 梅尔刻度：1kHz 以下线性，以上对数。
const (
	melFSp       = 200.0 / 3
	melMinLogHz  = 1000.0
	melMinLogMel = melMinLogHz / melFSp
)

var melLogStep = math.Log(6.4) / 27.0

func hzToMel(hz float64) float64 {
	if hz < melMinLogHz {
		return hz / melFSp
	}
	return melMinLogMel + math.Log(hz/melMinLogHz)/melLogStep
}

func melToHz(mel float64) float64 {
	if mel < melMinLogMel {
		return mel * melFSp
	}
	return melMinLogHz * math.Exp(melLogStep*(mel-melMinLogMel))
}

// melFilterBank 构造 0 ~ sr/2 的三角梅尔滤波器组，按带宽做面积归一化。
// 返回 nMels 行，每行长度 nFFT/2+1。
func melFilterBank(sampleRate, nFFT, nMels int) [][]float64 {
	bins := nFFT/2 + 1
	fftFreqs := make([]float64, bins)
	floats.Span(fftFreqs, 0, float64(sampleRate)/2)

	melPts := make([]float64, nMels+2)
	floats.Span(melPts, hzToMel(0), hzToMel(float64(sampleRate)/2))
	hzPts := make([]float64, len(melPts))
	for i, m := range melPts {
		hzPts[i] = melToHz(m)
	}

	bank := make([][]float64, nMels)
	for m := 0; m < nMels; m++ {
		lo, center, hi := hzPts[m], hzPts[m+1], hzPts[m+2]
		enorm := 2.0 / (hi - lo)
		filter := make([]float64, bins)
		for k, f := range fftFreqs {
			lower := (f - lo) / (center - lo)
			upper := (hi - f) / (hi - center)
			w := math.Min(lower, upper)
			if w > 0 {
				filter[k] = w * enorm
			}
		}
		bank[m] = filter
	}
	return bank
}

// dctMatrix 返回正交归一化 DCT-II 的前 nCoef 行。
func dctMatrix(nCoef, n int) [][]float64 {
	mat := make([][]float64, nCoef)
	for k := range mat {
		scale := math.Sqrt(2.0 / float64(n))
		if k == 0 {
			scale = math.Sqrt(1.0 / float64(n))
		}
		row := make([]float64, n)
		for i := range row {
			row[i] = scale * math.Cos(math.Pi*float64(k)*(2*float64(i)+1)/(2*float64(n)))
		}
		mat[k] = row
	}
	return mat
}
