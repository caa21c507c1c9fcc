package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/stationboard/stationboard/internal/transit"
)

// Kind identifies a poll loop.
type Kind string

const (
	KindPredictions Kind = "predictions"
	KindAlerts      Kind = "alerts"
)

// BoardLoader loads a station's departures.
type BoardLoader interface {
	LoadBoard(ctx context.Context, stationID string) (*transit.BoardData, error)
}

// AlertLoader loads a station's alerts.
type AlertLoader interface {
	LoadAlerts(ctx context.Context, stopID string) ([]*transit.Alert, error)
}

// Result is the outcome of one load.
type Result struct {
	Kind        Kind
	Generation  uint64
	StationID   string
	Board       *transit.BoardData
	Alerts      []*transit.Alert
	Err         error
	CompletedAt time.Time
}

// Sink receives results for the current generation only. Deliver is called
// with the scheduler's lock held and must not call back into the Scheduler.
type Sink interface {
	Deliver(Result)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Result)

// Deliver calls f.
func (f SinkFunc) Deliver(r Result) {
	f(r)
}

// SchedulerOptions holds dependencies for a Scheduler.
type SchedulerOptions struct {
	Config SchedulerConfig
	Board  BoardLoader

	// Alerts is optional; without it only the prediction loop runs.
	Alerts AlertLoader

	Sink    Sink
	Logger  zerolog.Logger
	Metrics *RefreshMetrics
}

// Scheduler polls the board and alerts for one station at a time. Watching a
// new station cancels the previous loops and bumps the generation, so results
// still in flight for the old station are discarded.
type Scheduler struct {
	config  SchedulerConfig
	board   BoardLoader
	alerts  AlertLoader
	sink    Sink
	logger  zerolog.Logger
	metrics *RefreshMetrics

	mu         sync.Mutex
	generation uint64
	stationID  string
	cancel     context.CancelFunc
	triggers   []chan struct{}
	stopped    bool

	wg sync.WaitGroup
}

// NewScheduler creates an idle scheduler.
func NewScheduler(opts SchedulerOptions) *Scheduler {
	metrics := opts.Metrics
	if metrics == nil {
		metrics = &RefreshMetrics{}
	}
	return &Scheduler{
		config:  opts.Config.withDefaults(),
		board:   opts.Board,
		alerts:  opts.Alerts,
		sink:    opts.Sink,
		logger:  opts.Logger,
		metrics: metrics,
	}
}

// Watch starts polling stationID, replacing any current station. Each loop
// runs once immediately. It returns the new generation, or 0 after Stop.
func (s *Scheduler) Watch(stationID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return 0
	}
	s.cancelLocked()

	s.generation++
	s.stationID = stationID
	s.metrics.stationChanged()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	gen := s.generation
	boardTrigger := make(chan struct{}, 1)
	s.triggers = []chan struct{}{boardTrigger}
	s.wg.Add(1)
	go s.loop(ctx, gen, stationID, KindPredictions, s.config.PredictionInterval, boardTrigger)

	if s.alerts != nil {
		alertTrigger := make(chan struct{}, 1)
		s.triggers = append(s.triggers, alertTrigger)
		s.wg.Add(1)
		go s.loop(ctx, gen, stationID, KindAlerts, s.config.AlertInterval, alertTrigger)
	}

	s.logger.Info().
		Str("station_id", stationID).
		Uint64("generation", gen).
		Msg("watching station")

	return gen
}

// Clear stops polling without selecting a new station.
func (s *Scheduler) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked()
	s.generation++
	s.stationID = ""
}

// RefreshNow triggers an immediate load in every running loop. Loads already
// in flight are not duplicated.
func (s *Scheduler) RefreshNow() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.triggers {
		select {
		case t <- struct{}{}:
		default:
		}
	}
}

// Stop cancels all loops and waits for them to exit. Results that complete
// afterwards are discarded. Stop is idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.cancelLocked()
	s.generation++
	s.stationID = ""
	s.mu.Unlock()

	s.wg.Wait()
}

// StationID returns the station currently watched, if any.
func (s *Scheduler) StationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stationID
}

// Generation returns the current generation.
func (s *Scheduler) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Metrics returns a copy of the refresh metrics.
func (s *Scheduler) Metrics() RefreshMetrics {
	return s.metrics.Snapshot()
}

func (s *Scheduler) cancelLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.triggers = nil
}

// loop runs loads sequentially, so a slow load delays the next tick instead
// of overlapping it.
func (s *Scheduler) loop(ctx context.Context, gen uint64, stationID string, kind Kind, interval time.Duration, trigger <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.runOnce(ctx, gen, stationID, kind)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-trigger:
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, gen uint64, stationID string, kind Kind) {
	loadCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	start := time.Now()
	result := Result{Kind: kind, Generation: gen, StationID: stationID}

	switch kind {
	case KindPredictions:
		result.Board, result.Err = s.board.LoadBoard(loadCtx, stationID)
	case KindAlerts:
		result.Alerts, result.Err = s.alerts.LoadAlerts(loadCtx, stationID)
	}
	result.CompletedAt = time.Now()
	duration := result.CompletedAt.Sub(start)

	s.mu.Lock()
	defer s.mu.Unlock()

	stale := gen != s.generation || ctx.Err() != nil
	s.metrics.record(kind, duration, result.Err, stale)

	if stale {
		s.logger.Debug().
			Str("kind", string(kind)).
			Str("station_id", stationID).
			Uint64("generation", gen).
			Msg("discarding stale result")
		return
	}

	if result.Err != nil {
		s.logger.Warn().Err(result.Err).
			Str("kind", string(kind)).
			Str("station_id", stationID).
			Dur("duration", duration).
			Msg("refresh failed")
	} else {
		s.logger.Debug().
			Str("kind", string(kind)).
			Str("station_id", stationID).
			Dur("duration", duration).
			Msg("refresh completed")
	}

	if s.sink != nil {
		s.sink.Deliver(result)
	}
}
