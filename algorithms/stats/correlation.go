package stats

import (
	"fmt"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"

	"github.com/RyanBlaney/sonido-voz/algorithms/common"
)

// AutoCorrelation computes the linear (non-circular) autocorrelation of a
// frame through the Wiener-Khinchin theorem: r = IFFT(|FFT(x)|^2).
//
// The frame is zero-padded to fftSize, which must be at least twice the
// largest lag of interest for the result to be free of wrap-around.
type AutoCorrelation struct {
	fftSize int
}

// NewAutoCorrelation creates an autocorrelation calculator. fftSize is
// rounded up to a power of two.
func NewAutoCorrelation(fftSize int) *AutoCorrelation {
	return &AutoCorrelation{fftSize: common.NextPowerOfTwo(fftSize)}
}

// FFTSize returns the transform length used for every frame
func (ac *AutoCorrelation) FFTSize() int {
	return ac.fftSize
}

// Compute returns r[lag] = sum_i x[i]*x[i+lag] for lag in [0, fftSize/2)
func (ac *AutoCorrelation) Compute(frame []float64) ([]float64, error) {
	if len(frame) == 0 {
		return nil, fmt.Errorf("empty frame")
	}
	if len(frame) > ac.fftSize {
		return nil, fmt.Errorf("frame length (%d) exceeds fft size (%d)", len(frame), ac.fftSize)
	}

	padded := make([]float64, ac.fftSize)
	copy(padded, frame)

	spectrum := fft.FFTReal(padded)
	for i, c := range spectrum {
		mag := cmplx.Abs(c)
		spectrum[i] = complex(mag*mag, 0)
	}

	inverse := fft.IFFT(spectrum)
	half := ac.fftSize / 2
	r := make([]float64, half)
	for i := range half {
		r[i] = real(inverse[i])
	}

	return r, nil
}

// CrossCorrelation computes c[lag] = sum_{i<len(a)} a[i]*b[i+lag] for
// lag in [0, maxLag], the forward correlation of a short reference segment
// against a longer search segment.
type CrossCorrelation struct {
	maxLag int
}

// NewCrossCorrelation creates a forward cross-correlation calculator
func NewCrossCorrelation(maxLag int) *CrossCorrelation {
	return &CrossCorrelation{maxLag: maxLag}
}

// Compute correlates reference against search. search must hold at least
// len(reference)+maxLag samples.
func (cc *CrossCorrelation) Compute(reference, search []float64) ([]float64, error) {
	if len(reference) == 0 {
		return nil, fmt.Errorf("empty reference segment")
	}
	need := len(reference) + cc.maxLag
	if len(search) < need {
		return nil, fmt.Errorf("search segment too short: have %d samples, need %d", len(search), need)
	}

	n := common.NextPowerOfTwo(len(reference) + need)
	a := make([]float64, n)
	b := make([]float64, n)
	copy(a, reference)
	copy(b, search[:need])

	fa := fft.FFTReal(a)
	fb := fft.FFTReal(b)
	for i := range fa {
		fa[i] = cmplx.Conj(fa[i]) * fb[i]
	}

	inverse := fft.IFFT(fa)
	c := make([]float64, cc.maxLag+1)
	for lag := range c {
		c[lag] = real(inverse[lag])
	}

	return c, nil
}

// SlidingEnergy returns e[lag] = sum_{i<window} x[i+lag]^2 for lag in
// [0, maxLag], computed with a running sum.
func SlidingEnergy(x []float64, window, maxLag int) []float64 {
	e := make([]float64, maxLag+1)
	if window <= 0 || len(x) < window+maxLag {
		return e
	}

	sum := 0.0
	for i := range window {
		sum += x[i] * x[i]
	}
	e[0] = sum
	for lag := 1; lag <= maxLag; lag++ {
		out := x[lag-1]
		in := x[lag+window-1]
		sum += in*in - out*out
		if sum < 0 {
			sum = 0
		}
		e[lag] = sum
	}

	return e
}
