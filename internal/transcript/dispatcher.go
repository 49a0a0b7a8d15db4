package transcript

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/clinivox/transcription-service/internal/asr"
	"github.com/clinivox/transcription-service/internal/audio"
	"github.com/clinivox/transcription-service/internal/vad"
)

// Dispatcher converts a finalized segment into a transcript line:
// peak-normalize, resample to the engine's rate, transcribe, and format.
// The segment itself is never mutated; normalization works on a copy.
type Dispatcher struct {
	engine     asr.Engine
	resampler  audio.Resampler
	engineRate int
	logger     *slog.Logger
}

// NewDispatcher creates a dispatcher around a shared engine handle.
func NewDispatcher(engine asr.Engine, resampler audio.Resampler, engineRate int, logger *slog.Logger) (*Dispatcher, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}

	if resampler == nil {
		return nil, fmt.Errorf("resampler cannot be nil")
	}

	if engineRate <= 0 {
		return nil, fmt.Errorf("engine sample rate must be positive, got %d", engineRate)
	}

	return &Dispatcher{
		engine:     engine,
		resampler:  resampler,
		engineRate: engineRate,
		logger:     logger,
	}, nil
}

// EngineRate returns the sample rate segments are converted to before
// being handed to the engine.
func (d *Dispatcher) EngineRate() int {
	return d.engineRate
}

// Dispatch transcribes one segment. It returns (nil, nil) when the engine
// produced no text; an error means the segment is dropped and the session
// continues.
func (d *Dispatcher) Dispatch(ctx context.Context, seg *vad.Segment) (*Line, error) {
	buf := make([]float32, len(seg.Samples))
	copy(buf, seg.Samples)
	audio.NormalizePeak(buf)

	buf, err := d.resampler.Resample(buf, seg.SampleRate, d.engineRate)
	if err != nil {
		return nil, fmt.Errorf("failed to resample segment %s: %w", seg.ID, err)
	}

	fragments, err := d.engine.Transcribe(ctx, buf, d.engineRate)
	if err != nil {
		return nil, fmt.Errorf("engine error for segment %s (%s): %w", seg.ID, seg.Speaker, err)
	}

	text := strings.TrimSpace(strings.Join(fragments, " "))
	if text == "" {
		d.logger.Debug("No text transcribed for segment",
			slog.String("segment_id", seg.ID),
			slog.String("speaker", seg.Speaker),
		)
		return nil, nil
	}

	line := &Line{
		StartTime: seg.StartTime,
		EndTime:   seg.EndTime,
		Speaker:   seg.Speaker,
		Text:      text,
	}

	d.logger.Info("Segment transcribed",
		slog.String("segment_id", seg.ID),
		slog.String("line", line.Format()),
	)

	return line, nil
}
