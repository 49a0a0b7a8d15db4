package audio

import "math"

// RMS computes the root-mean-square amplitude of a sample buffer.
// An empty buffer has zero energy.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}

	return math.Sqrt(sum / float64(len(samples)))
}

// MeanAbs computes the mean absolute amplitude of a sample buffer.
// An empty buffer has zero amplitude.
func MeanAbs(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		sum += math.Abs(float64(s))
	}

	return sum / float64(len(samples))
}

// MaxAbs returns the peak absolute amplitude of a sample buffer.
func MaxAbs(samples []float32) float64 {
	var max float64
	for _, s := range samples {
		if v := math.Abs(float64(s)); v > max {
			max = v
		}
	}

	return max
}

// NormalizePeak scales the buffer in place so its peak absolute value maps
// to full scale. A buffer whose peak is zero is left unchanged.
func NormalizePeak(samples []float32) {
	peak := MaxAbs(samples)
	if peak == 0 {
		return
	}

	scale := float32(1.0 / peak)
	for i := range samples {
		samples[i] *= scale
	}
}
