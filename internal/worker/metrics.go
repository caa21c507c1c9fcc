package worker

import (
	"sync"
	"time"
)

// RefreshMetrics tracks scheduler statistics.
type RefreshMetrics struct {
	mu sync.RWMutex

	// Counters
	TotalRefreshes    int64
	SuccessfulRefresh int64
	FailedRefreshes   int64
	PredictionRefresh int64
	AlertRefresh      int64
	DiscardedStale    int64
	StationChanges    int64

	// Timings
	LastRefreshAt       time.Time
	LastRefreshDuration time.Duration
	TotalDuration       time.Duration
}

func (m *RefreshMetrics) record(kind Kind, duration time.Duration, err error, stale bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalRefreshes++
	if stale {
		m.DiscardedStale++
	}
	if err != nil {
		m.FailedRefreshes++
	} else {
		m.SuccessfulRefresh++
	}
	switch kind {
	case KindPredictions:
		m.PredictionRefresh++
	case KindAlerts:
		m.AlertRefresh++
	}
	m.LastRefreshAt = time.Now()
	m.LastRefreshDuration = duration
	m.TotalDuration += duration
}

func (m *RefreshMetrics) stationChanged() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StationChanges++
}

// Snapshot returns a copy of the current metrics.
func (m *RefreshMetrics) Snapshot() RefreshMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return RefreshMetrics{
		TotalRefreshes:      m.TotalRefreshes,
		SuccessfulRefresh:   m.SuccessfulRefresh,
		FailedRefreshes:     m.FailedRefreshes,
		PredictionRefresh:   m.PredictionRefresh,
		AlertRefresh:        m.AlertRefresh,
		DiscardedStale:      m.DiscardedStale,
		StationChanges:      m.StationChanges,
		LastRefreshAt:       m.LastRefreshAt,
		LastRefreshDuration: m.LastRefreshDuration,
		TotalDuration:       m.TotalDuration,
	}
}

// Add accumulates a snapshot into m.
func (m *RefreshMetrics) Add(other *RefreshMetrics) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalRefreshes += other.TotalRefreshes
	m.SuccessfulRefresh += other.SuccessfulRefresh
	m.FailedRefreshes += other.FailedRefreshes
	m.PredictionRefresh += other.PredictionRefresh
	m.AlertRefresh += other.AlertRefresh
	m.DiscardedStale += other.DiscardedStale
	m.StationChanges += other.StationChanges
	if other.LastRefreshAt.After(m.LastRefreshAt) {
		m.LastRefreshAt = other.LastRefreshAt
		m.LastRefreshDuration = other.LastRefreshDuration
	}
	m.TotalDuration += other.TotalDuration
}
