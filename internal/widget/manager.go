package widget

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stationboard/stationboard/internal/location"
	"github.com/stationboard/stationboard/internal/transit"
	"github.com/stationboard/stationboard/internal/worker"
	"github.com/stationboard/stationboard/pkg/geo"
)

// Manager errors.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrTooManySessions = errors.New("too many sessions")
	ErrManagerClosed   = errors.New("session manager closed")
)

const (
	DefaultIdleTimeout = 15 * time.Minute
	DefaultMaxSessions = 500

	defaultSweepPeriod = time.Minute
	sessionIDPrefix    = "ses_"
)

// ManagerConfig holds shared dependencies for all sessions.
type ManagerConfig struct {
	Resolver   *transit.Resolver
	Aggregator *transit.Aggregator
	Alerts     *transit.AlertMonitor
	Scheduler  worker.SchedulerConfig
	BoardLimit int
	Logger     zerolog.Logger

	// IdleTimeout closes sessions not used for this long (default: DefaultIdleTimeout).
	IdleTimeout time.Duration

	// MaxSessions caps concurrent sessions (default: DefaultMaxSessions).
	MaxSessions int
}

// Manager owns the live sessions behind the HTTP API.
type Manager struct {
	config  ManagerConfig
	logger  zerolog.Logger
	metrics *worker.RefreshMetrics

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewManager creates a session manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	return &Manager{
		config:   cfg,
		logger:   cfg.Logger,
		metrics:  &worker.RefreshMetrics{},
		sessions: make(map[string]*Session),
	}
}

// Create starts a session at c. The session is registered even when no
// station could be resolved; its status says why.
func (m *Manager) Create(ctx context.Context, c geo.Coordinate) (*Session, error) {
	if !c.Valid() {
		return nil, transit.ErrInvalidCoordinate
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	if len(m.sessions) >= m.config.MaxSessions {
		m.mu.Unlock()
		return nil, ErrTooManySessions
	}
	id := sessionIDPrefix + uuid.New().String()[:22]
	s := NewSession(SessionConfig{
		ID:         id,
		Provider:   location.NewFixed(c),
		Resolver:   m.config.Resolver,
		Aggregator: m.config.Aggregator,
		Alerts:     m.config.Alerts,
		Scheduler:  m.config.Scheduler,
		Metrics:    m.metrics,
		Logger:     m.logger,
		BoardLimit: m.config.BoardLimit,
	})
	m.sessions[id] = s
	m.mu.Unlock()

	m.logger.Info().Str("session_id", id).Str("coordinate", c.String()).Msg("session created")

	// The session outlives the request that created it.
	if err := s.Locate(context.WithoutCancel(ctx)); err != nil {
		m.logger.Warn().Err(err).Str("session_id", id).Msg("session start failed")
	}
	return s, nil
}

// Get returns a session and marks it active.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.touch()
	return s, nil
}

// Delete stops and removes a session.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.Close()
	m.logger.Info().Str("session_id", id).Msg("session deleted")
	return nil
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Metrics returns refresh metrics aggregated over all sessions.
func (m *Manager) Metrics() worker.RefreshMetrics {
	return m.metrics.Snapshot()
}

// Sweep closes sessions idle since before now minus the idle timeout and
// returns how many were removed.
func (m *Manager) Sweep(now time.Time) int {
	cutoff := now.Add(-m.config.IdleTimeout)

	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if s.LastActivity().Before(cutoff) {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		s.Close()
		m.logger.Info().Str("session_id", s.ID()).Msg("session expired")
	}
	return len(expired)
}

// Run sweeps idle sessions until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	period := defaultSweepPeriod
	if m.config.IdleTimeout < period {
		period = m.config.IdleTimeout
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Sweep(now)
		}
	}
}

// Close stops every session. Further Create calls fail.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
