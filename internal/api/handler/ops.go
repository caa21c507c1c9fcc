// Package handler provides HTTP handlers for the stationboard API.
package handler

import (
	"net/http"
	"time"

	"github.com/stationboard/stationboard/internal/api/models"
	"github.com/stationboard/stationboard/internal/api/response"
	"github.com/stationboard/stationboard/internal/provider/resilience"
	"github.com/stationboard/stationboard/internal/worker"
)

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	registry  *resilience.Registry
	refresh   func() worker.RefreshMetrics
	sessions  func() int
}

// OpsHandlerConfig holds dependencies for an OpsHandler. Registry, Refresh
// and Sessions are optional.
type OpsHandlerConfig struct {
	Version   string
	BuildTime string
	Registry  *resilience.Registry
	Refresh   func() worker.RefreshMetrics
	Sessions  func() int
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsHandlerConfig) *OpsHandler {
	return &OpsHandler{
		version:   cfg.Version,
		buildTime: cfg.BuildTime,
		registry:  cfg.Registry,
		refresh:   cfg.Refresh,
		sessions:  cfg.Sessions,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /v1/ops/status - provider circuits and refresh activity.
// Responds 503 when every provider circuit is open.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:    models.HealthStatusOK,
		Time:      models.Timestamp(time.Now()),
		Providers: []models.ProviderStatus{},
	}

	unhealthy := 0
	if h.registry != nil {
		for _, ph := range h.registry.GetAllHealth() {
			ps := models.ProviderStatus{
				Provider:      ph.Name,
				Status:        models.HealthStatusOK,
				CircuitState:  ph.CircuitState.String(),
				Requests:      ph.Counts.Requests,
				Failures:      ph.Counts.ConsecutiveFailures,
				LastSuccessAt: models.TimestampPtr(ph.LastSuccessAt),
				LastFailureAt: models.TimestampPtr(ph.LastFailureAt),
			}
			if ph.LastError != "" {
				msg := ph.LastError
				ps.Message = &msg
			}
			switch {
			case ph.IsUnhealthy():
				ps.Status = models.HealthStatusFail
				unhealthy++
			case ph.IsDegraded():
				ps.Status = models.HealthStatusDegraded
			}
			if ps.Status != models.HealthStatusOK && status.Status == models.HealthStatusOK {
				status.Status = models.HealthStatusDegraded
			}
			status.Providers = append(status.Providers, ps)
		}
	}
	if len(status.Providers) > 0 && unhealthy == len(status.Providers) {
		status.Status = models.HealthStatusFail
	}

	if h.refresh != nil {
		m := h.refresh()
		rs := &models.RefreshStatus{
			Total:          m.TotalRefreshes,
			Succeeded:      m.SuccessfulRefresh,
			Failed:         m.FailedRefreshes,
			Predictions:    m.PredictionRefresh,
			Alerts:         m.AlertRefresh,
			DiscardedStale: m.DiscardedStale,
			StationChanges: m.StationChanges,
		}
		if !m.LastRefreshAt.IsZero() {
			rs.LastRefreshAt = models.TimestampPtr(&m.LastRefreshAt)
		}
		if m.TotalRefreshes > 0 {
			rs.AvgDurationMs = float64(m.TotalDuration.Milliseconds()) / float64(m.TotalRefreshes)
		}
		status.Refresh = rs
	}

	if h.sessions != nil {
		n := h.sessions()
		status.Sessions = &n
	}

	code := http.StatusOK
	if status.Status == models.HealthStatusFail {
		code = http.StatusServiceUnavailable
	}
	response.JSON(w, r, code, status)
}
