package capture

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by ReadFrame once a source has been closed and its
// queue drained.
var ErrClosed = errors.New("capture source closed")

// Frame is one timestamped block of interleaved multi-channel float
// samples. A frame is owned by the pipeline stage currently processing it
// and is not retained after segmentation consumes it.
type Frame struct {
	Seq       uint32
	Channels  int
	Data      []float32 // interleaved, len = samples * Channels
	Timestamp time.Time
}

// SamplesPerChannel returns the number of samples each channel contributes
// to this frame.
func (f *Frame) SamplesPerChannel() int {
	if f.Channels < 1 {
		return 0
	}

	return len(f.Data) / f.Channels
}

// Source produces audio frames for exactly one session. A source is owned
// by its session's worker and never shared.
type Source interface {
	// ReadFrame blocks until the next frame is available, the context is
	// done, or the source is closed. Frames are delivered in arrival order.
	ReadFrame(ctx context.Context) (*Frame, error)

	// Channels reports the channel count this source was opened with.
	Channels() int

	// Close releases the source. Safe to call more than once.
	Close() error
}

// OpenFunc opens a capture source for a session at the requested channel
// count. Opening may fail for the requested count while succeeding for
// mono; the session worker handles that fallback.
type OpenFunc func(sessionID string, channels int) (Source, error)
