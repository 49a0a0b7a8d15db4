package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/clinivox/transcription-service/internal/audio"
	"github.com/clinivox/transcription-service/internal/capture"
	"github.com/clinivox/transcription-service/internal/events"
	"github.com/clinivox/transcription-service/internal/metrics"
	"github.com/clinivox/transcription-service/internal/transcript"
	"github.com/clinivox/transcription-service/internal/vad"
)

// WorkerConfig contains per-session pipeline parameters.
type WorkerConfig struct {
	Channels               int
	SampleRate             int // capture rate, Hz
	ChunkSize              int // samples per chunk
	SilenceRMSThreshold    float64
	MinSpeechSeconds       float64
	SilenceDurationSeconds float64

	// ReadTimeout bounds each frame wait so the worker observes the stop
	// signal even with no incoming audio.
	ReadTimeout time.Duration

	// StopGrace bounds an in-flight engine call; past it the segment's
	// result is abandoned rather than blocking shutdown.
	StopGrace time.Duration
}

// Validate checks the worker configuration.
func (c WorkerConfig) Validate() error {
	if c.Channels < 1 || c.Channels > capture.MaxChannels {
		return fmt.Errorf("channels must be 1..%d, got %d", capture.MaxChannels, c.Channels)
	}

	segCfg := vad.Config{
		ChunkSize:              c.ChunkSize,
		SampleRate:             c.SampleRate,
		SilenceRMSThreshold:    c.SilenceRMSThreshold,
		MinSpeechSeconds:       c.MinSpeechSeconds,
		SilenceDurationSeconds: c.SilenceDurationSeconds,
	}
	if err := segCfg.Validate(); err != nil {
		return err
	}

	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read_timeout must be positive, got %s", c.ReadTimeout)
	}

	if c.StopGrace <= 0 {
		return fmt.Errorf("stop_grace must be positive, got %s", c.StopGrace)
	}

	return nil
}

// Worker owns one session's capture source and drives the full
// capture -> split -> segment -> dispatch pipeline on its own goroutine.
type Worker struct {
	id         string
	cfg        WorkerConfig
	open       capture.OpenFunc
	dispatcher *transcript.Dispatcher
	sink       events.Sink
	logger     *slog.Logger
	metrics    *metrics.Metrics

	state atomic.Int32

	source     capture.Source
	segmenters []*vad.Segmenter
	startTime  time.Time

	stop     chan struct{}
	stopFlag atomic.Bool
	done     chan struct{}

	mu    sync.Mutex
	lines []transcript.Line
}

// NewWorker creates a worker in the Idle state. The engine handle inside
// the dispatcher is shared read-only across sessions; everything else here
// is owned exclusively by this worker.
func NewWorker(id string, cfg WorkerConfig, open capture.OpenFunc, dispatcher *transcript.Dispatcher,
	sink events.Sink, logger *slog.Logger, m *metrics.Metrics) (*Worker, error) {

	if id == "" {
		return nil, fmt.Errorf("session id cannot be empty")
	}

	if open == nil {
		return nil, fmt.Errorf("capture opener cannot be nil")
	}

	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher cannot be nil")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("worker config: %w", err)
	}

	return &Worker{
		id:         id,
		cfg:        cfg,
		open:       open,
		dispatcher: dispatcher,
		sink:       sink,
		logger:     logger.With(slog.String("session_id", id)),
		metrics:    m,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}, nil
}

// ID returns the session id.
func (w *Worker) ID() string {
	return w.id
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// Running reports whether the worker is actively capturing.
func (w *Worker) Running() bool {
	s := w.State()
	return s == StateStarting || s == StateRunning
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
}

// Start opens the capture source and launches the pipeline goroutine. If
// the multi-channel open fails, a mono open is attempted before the
// session fails entirely with ErrDeviceUnavailable. Start returns once the
// worker is Running.
func (w *Worker) Start() error {
	if !w.state.CompareAndSwap(int32(StateIdle), int32(StateStarting)) {
		return fmt.Errorf("%w: worker is %s", ErrAlreadyActive, w.State())
	}

	channels := w.cfg.Channels
	src, err := w.open(w.id, channels)
	if err != nil && channels > 1 {
		w.logger.Warn("Multi-channel capture open failed, falling back to mono",
			slog.Int("channels", channels),
			slog.String("error", err.Error()),
		)

		channels = 1
		src, err = w.open(w.id, channels)
	}

	if err != nil {
		w.setState(StateStopped)
		close(w.done)
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	segmenters := make([]*vad.Segmenter, channels)
	for c := 0; c < channels; c++ {
		seg, err := vad.NewSegmenter(vad.Config{
			ChunkSize:              w.cfg.ChunkSize,
			SampleRate:             w.cfg.SampleRate,
			SilenceRMSThreshold:    w.cfg.SilenceRMSThreshold,
			MinSpeechSeconds:       w.cfg.MinSpeechSeconds,
			SilenceDurationSeconds: w.cfg.SilenceDurationSeconds,
		}, c)
		if err != nil {
			src.Close()
			w.setState(StateStopped)
			close(w.done)
			return fmt.Errorf("failed to create segmenter for channel %d: %w", c, err)
		}

		segmenters[c] = seg
	}

	w.source = src
	w.segmenters = segmenters
	w.mu.Lock()
	w.startTime = time.Now()
	w.mu.Unlock()
	w.setState(StateRunning)

	w.logger.Info("Session started",
		slog.Int("channels", channels),
		slog.Int("sample_rate", w.cfg.SampleRate),
		slog.Int("chunk_size", w.cfg.ChunkSize),
	)

	go w.run()

	return nil
}

// Stop signals the worker to shut down. It returns immediately; teardown
// is asynchronous and observed via Wait. Safe to call multiple times.
func (w *Worker) Stop() {
	w.requestStop()
}

// requestStop flips the stop flag exactly once and reports whether this
// caller was the one that flipped it.
func (w *Worker) requestStop() bool {
	if !w.stopFlag.CompareAndSwap(false, true) {
		return false
	}

	close(w.stop)
	return true
}

// StartedAt returns when the worker entered Running, or the zero time if
// the capture source never opened. A registry stop can race Start, so the
// read is synchronized with Start's write.
func (w *Worker) StartedAt() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.startTime
}

// Wait blocks until the worker has fully stopped or the timeout elapses.
// It reports whether the worker finished in time.
func (w *Worker) Wait(timeout time.Duration) bool {
	select {
	case <-w.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Transcript returns a snapshot of the transcript lines accumulated so
// far, in segment-finalization order. Safe to call from any state.
func (w *Worker) Transcript() []transcript.Line {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]transcript.Line, len(w.lines))
	copy(out, w.lines)
	return out
}

// LineCount returns the number of transcript lines accumulated so far.
func (w *Worker) LineCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return len(w.lines)
}

// run is the worker's pipeline loop. The stop signal is checked once per
// frame-read cycle; a segment already handed to the engine completes (or
// times out against StopGrace) before teardown.
func (w *Worker) run() {
	defer close(w.done)
	defer w.setState(StateStopped)
	defer w.source.Close()

	for {
		select {
		case <-w.stop:
			w.setState(StateStopping)
			w.logger.Info("Session stopping",
				slog.Duration("uptime", time.Since(w.startTime)),
				slog.Int("lines", w.LineCount()),
			)
			return
		default:
		}

		readCtx, cancel := context.WithTimeout(context.Background(), w.cfg.ReadTimeout)
		frame, err := w.source.ReadFrame(readCtx)
		cancel()

		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				// No audio yet; loop to observe the stop signal.
				continue
			}

			if errors.Is(err, capture.ErrClosed) {
				w.logger.Info("Capture source closed, stopping session")
			} else {
				w.logger.Error("Capture read failed, stopping session", slog.String("error", err.Error()))
			}

			w.setState(StateStopping)
			return
		}

		w.processFrame(frame)
	}
}

// processFrame runs one frame through split, classification, and each
// channel's segmenter, dispatching any finalized segments in detection
// order.
func (w *Worker) processFrame(frame *capture.Frame) {
	if len(frame.Data) == 0 {
		return
	}

	if frame.Channels != len(w.segmenters) {
		w.logger.Warn("Skipping frame with unexpected channel count",
			slog.Int("frame_channels", frame.Channels),
			slog.Int("session_channels", len(w.segmenters)),
		)

		if w.metrics != nil {
			w.metrics.FramesDropped.Inc()
		}
		return
	}

	channels, err := audio.Deinterleave(frame.Data, frame.Channels)
	if err != nil {
		w.logger.Warn("Skipping malformed frame", slog.String("error", err.Error()))

		if w.metrics != nil {
			w.metrics.FramesDropped.Inc()
		}
		return
	}

	if w.metrics != nil {
		w.metrics.FramesProcessed.Inc()
	}

	elapsed := time.Since(w.startTime).Seconds()
	energy := vad.Classify(channels, w.cfg.SilenceRMSThreshold)

	for c, chunk := range channels {
		seg := w.segmenters[c].Push(chunk, energy.Silent, elapsed)
		if seg != nil {
			w.dispatchSegment(seg)
		}
	}
}

// dispatchSegment filters silence misfires and hands one segment to the
// engine. Engine failures are logged and the segment dropped; the session
// continues.
func (w *Worker) dispatchSegment(seg *vad.Segment) {
	if w.metrics != nil {
		w.metrics.SegmentsDetected.Inc()
		w.metrics.SegmentDuration.Observe(seg.Duration())
	}

	if !seg.CarriesSpeech(w.cfg.SilenceRMSThreshold) {
		w.logger.Debug("Discarding silent segment",
			slog.String("segment_id", seg.ID),
			slog.String("speaker", seg.Speaker),
			slog.Float64("duration", seg.Duration()),
		)

		if w.metrics != nil {
			w.metrics.SegmentsDiscarded.Inc()
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.StopGrace)
	defer cancel()

	start := time.Now()
	if w.metrics != nil {
		w.metrics.TranscriptionRequests.Inc()
	}

	line, err := w.dispatcher.Dispatch(ctx, seg)

	if w.metrics != nil {
		w.metrics.TranscriptionDuration.Observe(time.Since(start).Seconds())
	}

	if err != nil {
		w.logger.Error("Transcription failed, dropping segment",
			slog.String("segment_id", seg.ID),
			slog.String("speaker", seg.Speaker),
			slog.String("error", err.Error()),
		)

		if w.metrics != nil {
			w.metrics.TranscriptionFailures.Inc()
		}
		return
	}

	if line == nil {
		return
	}

	w.mu.Lock()
	w.lines = append(w.lines, *line)
	fullText := transcript.Join(w.lines)
	w.mu.Unlock()

	if w.metrics != nil {
		w.metrics.LinesEmitted.Inc()
	}

	if w.sink != nil {
		w.sink.PublishLine(w.id, line.Format(), fullText)
	}
}
