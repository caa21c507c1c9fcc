// Package widget composes location, station resolution, aggregation, alerts
// and the refresh scheduler into a live departure board session.
package widget

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/stationboard/stationboard/internal/location"
	"github.com/stationboard/stationboard/internal/transit"
	"github.com/stationboard/stationboard/internal/worker"
	"github.com/stationboard/stationboard/pkg/geo"
)

// Status is the board state shown to the user.
type Status string

const (
	StatusLocating  Status = "locating"
	StatusLoading   Status = "loading"
	StatusReady     Status = "ready"
	StatusEmpty     Status = "empty"
	StatusError     Status = "error"
	StatusNoStation Status = "no-station"
)

// Snapshot is a copy of a session's state at one instant.
type Snapshot struct {
	ID         string
	Status     Status
	Location   location.Snapshot
	Station    *transit.Station
	Board      *transit.Board
	Alerts     []*transit.Alert
	AlertBand  transit.SeverityBand
	Error      string
	UpdatedAt  *time.Time
	Generation uint64
}

// SessionConfig holds dependencies for a Session.
type SessionConfig struct {
	ID         string
	Provider   location.Provider
	Resolver   *transit.Resolver
	Aggregator *transit.Aggregator
	Alerts     *transit.AlertMonitor
	Scheduler  worker.SchedulerConfig
	Metrics    *worker.RefreshMetrics
	Logger     zerolog.Logger

	// BoardLimit caps rows per direction (default: transit.DefaultBoardLimit).
	BoardLimit int

	// LocateTimeout bounds each position request (default: location.DefaultTimeout).
	LocateTimeout time.Duration

	// Now is used for label formatting (default: time.Now).
	Now func() time.Time
}

// Session is one live departure board.
//
// Lock order is op, then the scheduler's lock, then mu. The scheduler calls
// Deliver with its lock held, so mu is never held while calling into it.
type Session struct {
	id         string
	resolver   *transit.Resolver
	aggregator *transit.Aggregator
	alerts     *transit.AlertMonitor
	scheduler  *worker.Scheduler
	logger     zerolog.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	limit      int
	timeout    time.Duration
	now        func() time.Time

	op sync.Mutex

	mu           sync.RWMutex
	position     *location.Fixed
	tracker      *location.Tracker
	status       Status
	station      *transit.Station
	data         *transit.BoardData
	activeAlerts []*transit.Alert
	errMsg       string
	updatedAt    *time.Time
	lastActivity time.Time
}

// NewSession creates an idle session. Call Locate to start it.
func NewSession(cfg SessionConfig) *Session {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger.With().Str("session_id", cfg.ID).Logger()
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		ctx:          ctx,
		cancel:       cancel,
		id:           cfg.ID,
		resolver:     cfg.Resolver,
		aggregator:   cfg.Aggregator,
		alerts:       cfg.Alerts,
		logger:       logger,
		limit:        cfg.BoardLimit,
		timeout:      cfg.LocateTimeout,
		now:          now,
		status:       StatusLocating,
		lastActivity: time.Now(),
	}
	if fixed, ok := cfg.Provider.(*location.Fixed); ok {
		s.position = fixed
	}
	s.tracker = s.newTracker(cfg.Provider)

	opts := worker.SchedulerOptions{
		Config:  cfg.Scheduler,
		Board:   cfg.Aggregator,
		Sink:    s,
		Logger:  logger,
		Metrics: cfg.Metrics,
	}
	if cfg.Alerts != nil {
		opts.Alerts = cfg.Alerts
	}
	s.scheduler = worker.NewScheduler(opts)

	return s
}

func (s *Session) newTracker(p location.Provider) *location.Tracker {
	return location.NewTracker(location.TrackerConfig{
		Provider: p,
		Logger:   s.logger,
		Timeout:  s.timeout,
	})
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Locate requests a position, resolves the nearest station and starts
// polling it. Any previous station, board and alerts are cleared first.
// A missing station is reported through the status, not as an error.
func (s *Session) Locate(ctx context.Context) error {
	s.op.Lock()
	defer s.op.Unlock()

	s.scheduler.Clear()

	s.mu.Lock()
	s.status = StatusLocating
	s.station = nil
	s.data = nil
	s.activeAlerts = nil
	s.errMsg = ""
	s.updatedAt = nil
	s.lastActivity = time.Now()
	tracker := s.tracker
	s.mu.Unlock()

	coord, err := tracker.Request(ctx)
	if err != nil {
		s.fail(err)
		return err
	}

	s.setStatus(StatusLoading)

	station, err := s.resolver.NearestStation(ctx, coord)
	if errors.Is(err, transit.ErrNoQualifyingStation) {
		s.logger.Info().Str("coordinate", coord.String()).Msg("no station nearby")
		s.setStatus(StatusNoStation)
		return nil
	}
	if err != nil {
		s.fail(err)
		return fmt.Errorf("resolving station: %w", err)
	}

	s.mu.Lock()
	s.station = station
	s.mu.Unlock()

	gen := s.scheduler.Watch(station.ID)
	s.logger.Info().
		Str("station_id", station.ID).
		Str("station", station.Name).
		Uint64("generation", gen).
		Msg("station selected")

	return nil
}

// ChangeLocation replaces the position and fully resets the session.
func (s *Session) ChangeLocation(ctx context.Context, c geo.Coordinate) error {
	if !c.Valid() {
		return fmt.Errorf("%w: %s", transit.ErrInvalidCoordinate, c)
	}

	s.mu.Lock()
	if s.position != nil {
		s.position.Set(c)
	} else {
		s.position = location.NewFixed(c)
		s.tracker = s.newTracker(s.position)
	}
	s.mu.Unlock()

	return s.Locate(ctx)
}

// RefreshNow triggers an immediate reload of the board and alerts. When no
// station is watched because locating or resolving failed, it retries Locate
// in the background instead.
func (s *Session) RefreshNow() {
	s.touch()

	s.mu.RLock()
	retry := s.station == nil && (s.status == StatusError || s.status == StatusNoStation)
	s.mu.RUnlock()

	if !retry {
		s.scheduler.RefreshNow()
		return
	}

	go func() {
		if s.ctx.Err() != nil {
			return
		}
		if err := s.Locate(s.ctx); err != nil {
			s.logger.Warn().Err(err).Msg("retrying locate failed")
		}
	}()
}

// Close stops polling. The session cannot be restarted.
func (s *Session) Close() {
	s.cancel()
	s.scheduler.Stop()
}

// Deliver applies a scheduler result. Alert failures hide the alert banner
// and leave the board untouched.
func (s *Session) Deliver(r worker.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.station == nil || s.station.ID != r.StationID {
		return
	}

	switch r.Kind {
	case worker.KindPredictions:
		if r.Err != nil {
			s.status = StatusError
			s.errMsg = r.Err.Error()
			s.data = nil
			return
		}
		s.data = r.Board
		s.errMsg = ""
		s.status = StatusReady
		completed := r.CompletedAt
		s.updatedAt = &completed
	case worker.KindAlerts:
		if r.Err != nil {
			s.activeAlerts = nil
			return
		}
		s.activeAlerts = r.Alerts
	}
}

// Snapshot renders the current state. The board is rebuilt at the current
// instant, so departures that have since left are dropped.
func (s *Session) Snapshot() Snapshot {
	gen := s.scheduler.Generation()

	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		ID:         s.id,
		Status:     s.status,
		Location:   s.tracker.Snapshot(),
		Error:      s.errMsg,
		Generation: gen,
	}
	if s.updatedAt != nil {
		t := *s.updatedAt
		snap.UpdatedAt = &t
	}
	if s.station != nil {
		st := *s.station
		st.Platforms = append([]*transit.Station(nil), s.station.Platforms...)
		snap.Station = &st
	}
	if len(s.activeAlerts) > 0 {
		snap.Alerts = append([]*transit.Alert(nil), s.activeAlerts...)
		snap.AlertBand = transit.MostSevere(snap.Alerts)
	}
	if s.station != nil && s.data != nil {
		snap.Board = transit.BuildBoard(snap.Station, s.data, s.now(), s.limit)
		if snap.Status == StatusReady && snap.Board.Empty() {
			snap.Status = StatusEmpty
		}
	}
	return snap
}

// LastActivity returns when the session was last used.
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) setStatus(status Status) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func (s *Session) fail(err error) {
	s.logger.Warn().Err(err).Msg("session failed")
	s.mu.Lock()
	s.status = StatusError
	s.errMsg = err.Error()
	s.mu.Unlock()
}
