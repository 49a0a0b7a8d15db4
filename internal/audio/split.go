package audio

import "fmt"

// Deinterleave splits an interleaved multi-channel sample buffer into one
// mono buffer per channel, preserving sample order. For a single channel
// the input is passed through unchanged.
func Deinterleave(data []float32, channels int) ([][]float32, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot split empty frame")
	}

	if channels < 1 {
		return nil, fmt.Errorf("channel count must be at least 1, got %d", channels)
	}

	if len(data)%channels != 0 {
		return nil, fmt.Errorf("frame length %d is not divisible by %d channels", len(data), channels)
	}

	if channels == 1 {
		return [][]float32{data}, nil
	}

	perChannel := len(data) / channels
	out := make([][]float32, channels)
	for c := 0; c < channels; c++ {
		out[c] = make([]float32, perChannel)
	}

	for i := 0; i < perChannel; i++ {
		base := i * channels
		for c := 0; c < channels; c++ {
			out[c][i] = data[base+c]
		}
	}

	return out, nil
}
