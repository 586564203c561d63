package windowing

import (
	"fmt"

	"github.com/mjibson/go-dsp/window"
)

// Hann represents a symmetric Hann window backed by go-dsp
type Hann struct {
	size         int
	coefficients []float64
}

// NewHann creates a new Hann window of the given size
func NewHann(size int) *Hann {
	if size < 1 {
		size = 1
	}
	return &Hann{
		size:         size,
		coefficients: window.Hann(size),
	}
}

// Apply multiplies signal by the window and writes the result into dst,
// which must be at least as long as the window. Samples of dst past the
// window length are left untouched so the caller can zero-pad in place.
func (h *Hann) Apply(dst, signal []float64) error {
	if len(signal) != h.size {
		return fmt.Errorf("signal length (%d) doesn't match window size (%d)", len(signal), h.size)
	}
	if len(dst) < h.size {
		return fmt.Errorf("destination length (%d) shorter than window size (%d)", len(dst), h.size)
	}

	for i, c := range h.coefficients {
		dst[i] = signal[i] * c
	}

	return nil
}

// GetCoefficients returns a copy of the window coefficients
func (h *Hann) GetCoefficients() []float64 {
	coeffs := make([]float64, len(h.coefficients))
	copy(coeffs, h.coefficients)
	return coeffs
}

// GetSize returns the window size
func (h *Hann) GetSize() int {
	return h.size
}
