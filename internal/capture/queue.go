package capture

import (
	"context"
	"sync"
	"sync/atomic"
)

// PushSource is a bounded frame queue fed by a producer callback and
// drained by a session worker. When the queue is full new frames are
// dropped and counted rather than blocking the producer.
type PushSource struct {
	channels int
	frames   chan *Frame

	closed    chan struct{}
	closeOnce sync.Once

	pushed  atomic.Uint64
	dropped atomic.Uint64
}

// NewPushSource creates a push source with the given channel count and
// queue depth.
func NewPushSource(channels, depth int) *PushSource {
	if channels < 1 {
		channels = 1
	}

	if depth < 1 {
		depth = 1
	}

	return &PushSource{
		channels: channels,
		frames:   make(chan *Frame, depth),
		closed:   make(chan struct{}),
	}
}

// Push enqueues a frame without blocking. It reports whether the frame was
// accepted; frames offered to a full or closed queue are dropped.
func (s *PushSource) Push(f *Frame) bool {
	select {
	case <-s.closed:
		s.dropped.Add(1)
		return false
	default:
	}

	select {
	case s.frames <- f:
		s.pushed.Add(1)
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// ReadFrame returns the next queued frame in arrival order. Frames queued
// before Close are still delivered; after the queue drains ReadFrame
// returns ErrClosed.
func (s *PushSource) ReadFrame(ctx context.Context) (*Frame, error) {
	// Drain queued frames ahead of observing close.
	select {
	case f := <-s.frames:
		return f, nil
	default:
	}

	select {
	case f := <-s.frames:
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.closed:
		// A frame may have raced in just before close.
		select {
		case f := <-s.frames:
			return f, nil
		default:
			return nil, ErrClosed
		}
	}
}

// Channels reports the channel count of frames this source carries.
func (s *PushSource) Channels() int {
	return s.channels
}

// Close stops the source. Pending frames remain readable.
func (s *PushSource) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
	})

	return nil
}

// Pushed returns the number of frames accepted so far.
func (s *PushSource) Pushed() uint64 {
	return s.pushed.Load()
}

// Dropped returns the number of frames discarded due to backpressure.
func (s *PushSource) Dropped() uint64 {
	return s.dropped.Load()
}
