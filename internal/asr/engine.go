package asr

import "context"

// Engine transcribes one mono PCM buffer at a fixed sample rate into text
// fragments. Implementations are shared read-only across sessions: one
// engine handle is constructed at startup and injected into every session
// worker. Latency is expected to be high relative to frame duration, so
// callers must not hold shared locks across Transcribe.
type Engine interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int) ([]string, error)
}

// EngineFunc adapts a function to the Engine interface.
type EngineFunc func(ctx context.Context, samples []float32, sampleRate int) ([]string, error)

// Transcribe calls f.
func (f EngineFunc) Transcribe(ctx context.Context, samples []float32, sampleRate int) ([]string, error) {
	return f(ctx, samples, sampleRate)
}
