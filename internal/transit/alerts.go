package transit

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// DefaultMinSeverity is the lowest alert severity shown.
const DefaultMinSeverity = 3

// AlertMonitorConfig holds configuration for the alert monitor.
type AlertMonitorConfig struct {
	// Provider is the transit data provider.
	Provider Provider

	// Logger for alert operations.
	Logger zerolog.Logger

	// MinSeverity is the display floor (default: DefaultMinSeverity).
	MinSeverity int

	// Now is the clock for active period checks (default: time.Now).
	Now func() time.Time
}

// AlertMonitor loads and filters service alerts.
type AlertMonitor struct {
	provider    Provider
	logger      zerolog.Logger
	minSeverity int
	now         func() time.Time
}

// NewAlertMonitor creates a new alert monitor.
func NewAlertMonitor(cfg AlertMonitorConfig) *AlertMonitor {
	minSeverity := cfg.MinSeverity
	if minSeverity <= 0 {
		minSeverity = DefaultMinSeverity
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &AlertMonitor{
		provider:    cfg.Provider,
		logger:      cfg.Logger,
		minSeverity: minSeverity,
		now:         now,
	}
}

// LoadAlerts returns alerts for a stop at or above the severity floor, most
// severe first. Errors are returned to the caller and never touch board state.
func (m *AlertMonitor) LoadAlerts(ctx context.Context, stopID string) ([]*Alert, error) {
	alerts, err := m.provider.AlertsForStop(ctx, stopID)
	if err != nil {
		m.logger.Warn().Err(err).Str("stop_id", stopID).Msg("failed to fetch stop alerts")
		return nil, fmt.Errorf("fetching alerts for stop %s: %w", stopID, err)
	}
	return m.Filter(alerts, m.now()), nil
}

// LoadRouteAlerts is LoadAlerts for a route.
func (m *AlertMonitor) LoadRouteAlerts(ctx context.Context, routeID string) ([]*Alert, error) {
	alerts, err := m.provider.AlertsForRoute(ctx, routeID)
	if err != nil {
		m.logger.Warn().Err(err).Str("route_id", routeID).Msg("failed to fetch route alerts")
		return nil, fmt.Errorf("fetching alerts for route %s: %w", routeID, err)
	}
	attached := make([]*Alert, 0, len(alerts))
	for _, a := range alerts {
		if len(a.RouteIDs) == 0 || a.AffectsRoute(routeID) {
			attached = append(attached, a)
		}
	}
	return m.Filter(attached, m.now()), nil
}

// Filter drops alerts below the severity floor or outside their active
// periods at now, and orders the rest by severity, descending. Ties keep
// service order.
func (m *AlertMonitor) Filter(alerts []*Alert, now time.Time) []*Alert {
	shown := make([]*Alert, 0, len(alerts))
	for _, a := range alerts {
		if a.Severity >= m.minSeverity && a.Band() != BandNone && a.IsActive(now) {
			shown = append(shown, a)
		}
	}
	sort.SliceStable(shown, func(i, j int) bool {
		return shown[i].Severity > shown[j].Severity
	})
	return shown
}

// MostSevere returns the highest band among alerts.
func MostSevere(alerts []*Alert) SeverityBand {
	highest := 0
	for _, a := range alerts {
		if a.Severity > highest {
			highest = a.Severity
		}
	}
	return SeverityBandFor(highest)
}
