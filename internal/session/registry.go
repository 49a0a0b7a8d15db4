package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clinivox/transcription-service/internal/capture"
	"github.com/clinivox/transcription-service/internal/events"
	"github.com/clinivox/transcription-service/internal/metrics"
	"github.com/clinivox/transcription-service/internal/transcript"
)

// Status is a point-in-time view of one session id.
type Status struct {
	Active          bool   `json:"active"`
	SessionID       string `json:"session_id"`
	TranscriptCount int    `json:"transcript_count"`
}

// Registry tracks all live session workers by id. A session id stays
// occupied from the moment a start is accepted until its worker has fully
// drained, so concurrent starts and a start racing a stop both resolve
// deterministically.
type Registry struct {
	cfg        WorkerConfig
	open       capture.OpenFunc
	dispatcher *transcript.Dispatcher
	sink       events.Sink
	logger     *slog.Logger
	metrics    *metrics.Metrics

	mu      sync.Mutex
	workers map[string]*Worker
}

// NewRegistry creates an empty session registry.
func NewRegistry(cfg WorkerConfig, open capture.OpenFunc, dispatcher *transcript.Dispatcher,
	sink events.Sink, logger *slog.Logger, m *metrics.Metrics) (*Registry, error) {

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("registry config: %w", err)
	}

	return &Registry{
		cfg:        cfg,
		open:       open,
		dispatcher: dispatcher,
		sink:       sink,
		logger:     logger,
		metrics:    m,
		workers:    make(map[string]*Worker),
	}, nil
}

// CreateAndStart starts a new session for id. Exactly one of any set of
// concurrent calls with the same id succeeds; the rest get
// ErrAlreadyActive. The id is reserved before the capture device is
// opened, so a slow open cannot admit a duplicate.
func (r *Registry) CreateAndStart(id string) error {
	if id == "" {
		return fmt.Errorf("session id cannot be empty")
	}

	w, err := NewWorker(id, r.cfg, r.open, r.dispatcher, r.sink, r.logger, r.metrics)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if _, exists := r.workers[id]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: session %q", ErrAlreadyActive, id)
	}
	r.workers[id] = w
	if r.metrics != nil {
		// The gauge tracks map occupancy, so it moves with the insert
		// rather than after Start returns; a stop racing a slow open
		// then cannot decrement before this increment lands.
		r.metrics.SessionsActive.Inc()
	}
	r.mu.Unlock()

	if err := w.Start(); err != nil {
		if r.remove(id, w) && r.metrics != nil {
			r.metrics.SessionsActive.Dec()
		}
		return err
	}

	if r.metrics != nil {
		r.metrics.SessionsStarted.Inc()
	}

	return nil
}

// remove deletes id from the map only if it still maps to w, and reports
// whether this caller performed the deletion. The guard keeps a stop that
// drained an old worker from evicting a newer session reusing the id, and
// gives every insert exactly one matching removal.
func (r *Registry) remove(id string, w *Worker) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.workers[id]; ok && cur == w {
		delete(r.workers, id)
		return true
	}

	return false
}

// Stop terminates the session for id, waits for its worker to drain, and
// returns the final joined transcript. Of two racing Stop calls exactly
// one receives the transcript; the other gets ErrNotFound.
func (r *Registry) Stop(id string) (string, error) {
	r.mu.Lock()
	w, exists := r.workers[id]
	r.mu.Unlock()

	if !exists {
		return "", fmt.Errorf("%w: session %q", ErrNotFound, id)
	}

	if !w.requestStop() {
		// Another caller already owns this worker's teardown.
		return "", fmt.Errorf("%w: session %q", ErrNotFound, id)
	}

	// Worker loops observe the stop signal once per read timeout; allow
	// one read cycle plus the engine grace before giving up.
	if !w.Wait(r.cfg.StopGrace + r.cfg.ReadTimeout + time.Second) {
		r.logger.Error("Session worker did not drain in time", slog.String("session_id", id))
	}

	startedAt := w.StartedAt()
	final := transcript.Join(w.Transcript())

	removed := r.remove(id, w)

	if removed && r.metrics != nil {
		r.metrics.SessionsStopped.Inc()
		r.metrics.SessionsActive.Dec()
		if !startedAt.IsZero() {
			r.metrics.SessionDuration.Observe(time.Since(startedAt).Seconds())
		}
	}

	if r.sink != nil {
		r.sink.PublishComplete(id, final)
	}

	r.logger.Info("Session stopped",
		slog.String("session_id", id),
		slog.Int("lines", w.LineCount()),
	)

	return final, nil
}

// Status reports the state of one session id. Unknown ids are reported as
// inactive rather than as errors. A worker whose capture source closed on
// its own also reads as inactive but stays tracked, holding its transcript,
// until an explicit stop collects it and frees the id.
func (r *Registry) Status(id string) Status {
	r.mu.Lock()
	w, exists := r.workers[id]
	r.mu.Unlock()

	if !exists {
		return Status{Active: false, SessionID: id}
	}

	return Status{
		Active:          w.Running(),
		SessionID:       id,
		TranscriptCount: w.LineCount(),
	}
}

// ActiveCount returns the number of tracked sessions.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.workers)
}

// Shutdown stops every live session in parallel. It returns once all
// workers have drained, the context expires, or a stop fails.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	ids := make([]string, 0, len(r.workers))
	for id := range r.workers {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	if len(ids) == 0 {
		return nil
	}

	r.logger.Info("Stopping all sessions", slog.Int("count", len(ids)))

	g, ctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			done := make(chan error, 1)
			go func() {
				_, err := r.Stop(id)
				done <- err
			}()

			select {
			case err := <-done:
				if err != nil {
					return fmt.Errorf("stopping session %q: %w", id, err)
				}
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}

	return g.Wait()
}
