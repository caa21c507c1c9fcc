// Package worker drives periodic board refreshes and handles remote commands
// for a widget session.
package worker

import (
	"time"
)

// SchedulerConfig holds the refresh cadence.
type SchedulerConfig struct {
	// PredictionInterval is the board poll period.
	// Default: 30 seconds
	PredictionInterval time.Duration

	// AlertInterval is the alert poll period.
	// Default: 60 seconds
	AlertInterval time.Duration

	// Timeout bounds each individual load.
	// Default: 20 seconds
	Timeout time.Duration
}

// DefaultSchedulerConfig returns the default refresh cadence.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		PredictionInterval: 30 * time.Second,
		AlertInterval:      60 * time.Second,
		Timeout:            20 * time.Second,
	}
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	d := DefaultSchedulerConfig()
	if c.PredictionInterval <= 0 {
		c.PredictionInterval = d.PredictionInterval
	}
	if c.AlertInterval <= 0 {
		c.AlertInterval = d.AlertInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	return c
}
