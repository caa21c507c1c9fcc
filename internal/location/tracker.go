package location

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/stationboard/stationboard/pkg/geo"
)

// State is the lifecycle stage of a location request.
type State string

const (
	StateIdle       State = "idle"
	StateRequesting State = "requesting"
	StateGranted    State = "granted"
	StateDenied     State = "denied"
	StateError      State = "error"
)

// Snapshot is a copy of the tracker state.
type Snapshot struct {
	State       State
	Coordinate  *geo.Coordinate
	Error       string
	RequestedAt *time.Time
	ResolvedAt  *time.Time
}

// TrackerConfig holds configuration for a Tracker.
type TrackerConfig struct {
	Provider Provider
	Logger   zerolog.Logger

	// Timeout bounds each Request (default: DefaultTimeout).
	Timeout time.Duration
}

// Tracker runs location requests and records their outcome.
type Tracker struct {
	provider Provider
	logger   zerolog.Logger
	timeout  time.Duration

	mu    sync.RWMutex
	state Snapshot
}

// NewTracker creates a tracker in the idle state.
func NewTracker(cfg TrackerConfig) *Tracker {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	provider := cfg.Provider
	if provider == nil {
		provider = Unsupported{}
	}
	return &Tracker{
		provider: provider,
		logger:   cfg.Logger,
		timeout:  timeout,
		state:    Snapshot{State: StateIdle},
	}
}

// Request asks the provider for a position. It may be called again after a
// denial or error to retry.
func (t *Tracker) Request(ctx context.Context) (geo.Coordinate, error) {
	now := time.Now()
	t.mu.Lock()
	t.state.State = StateRequesting
	t.state.RequestedAt = &now
	t.state.Error = ""
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	coord, err := t.locate(ctx)
	if err == nil && !coord.Valid() {
		err = &UnavailableError{Reason: "provider returned an invalid coordinate"}
	}

	resolved := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.ResolvedAt = &resolved

	if err != nil {
		t.state.Coordinate = nil
		t.state.Error = err.Error()
		if IsDenied(err) {
			t.state.State = StateDenied
		} else {
			t.state.State = StateError
		}
		t.logger.Warn().Err(err).Str("state", string(t.state.State)).Msg("location request failed")
		return geo.Coordinate{}, err
	}

	t.state.State = StateGranted
	t.state.Coordinate = &coord
	t.logger.Debug().Str("coordinate", coord.String()).Msg("location granted")
	return coord, nil
}

// locate bounds the provider call by ctx even if the provider ignores it.
func (t *Tracker) locate(ctx context.Context) (geo.Coordinate, error) {
	type result struct {
		coord geo.Coordinate
		err   error
	}
	done := make(chan result, 1)
	go func() {
		c, err := t.provider.Locate(ctx)
		done <- result{c, err}
	}()

	select {
	case r := <-done:
		return r.coord, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return geo.Coordinate{}, &UnavailableError{Reason: "timed out waiting for position"}
		}
		return geo.Coordinate{}, ctx.Err()
	}
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := t.state
	if s.Coordinate != nil {
		c := *s.Coordinate
		s.Coordinate = &c
	}
	return s
}
