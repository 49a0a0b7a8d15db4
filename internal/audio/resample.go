package audio

import (
	"fmt"
	"math"
)

// Resampler converts a mono sample buffer between sample rates. It must be
// the identity when the rates are equal, and a pure function otherwise.
type Resampler interface {
	Resample(samples []float32, fromRate, toRate int) ([]float32, error)
}

// LinearResampler converts between sample rates by linear interpolation.
// It is not a band-limited converter, but is adequate for speech handed to
// a recognition engine and has no external dependencies.
type LinearResampler struct{}

// NewLinearResampler creates a linear interpolation resampler.
func NewLinearResampler() *LinearResampler {
	return &LinearResampler{}
}

// Resample converts samples from fromRate to toRate. The output length is
// round(len(samples) * toRate / fromRate). When the rates match the input
// buffer is returned as-is.
func (r *LinearResampler) Resample(samples []float32, fromRate, toRate int) ([]float32, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("sample rates must be positive, got %d -> %d", fromRate, toRate)
	}

	if fromRate == toRate {
		return samples, nil
	}

	if len(samples) == 0 {
		return nil, nil
	}

	n := int(math.Round(float64(len(samples)) * float64(toRate) / float64(fromRate)))
	if n < 1 {
		n = 1
	}

	out := make([]float32, n)
	if len(samples) == 1 || n == 1 {
		for i := range out {
			out[i] = samples[0]
		}
		return out, nil
	}

	step := float64(len(samples)-1) / float64(n-1)
	for i := 0; i < n; i++ {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}

		frac := float32(pos - float64(idx))
		out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
	}

	return out, nil
}
