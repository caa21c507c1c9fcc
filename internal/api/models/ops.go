package models

// Health represents the health status of the service.
type Health struct {
	Status  HealthStatus           `json:"status"`
	Time    Timestamp              `json:"time"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SystemStatus represents the overall system status.
type SystemStatus struct {
	Status    HealthStatus     `json:"status"`
	Time      Timestamp        `json:"time"`
	Providers []ProviderStatus `json:"providers"`
	Refresh   *RefreshStatus   `json:"refresh,omitempty"`
	Sessions  *int             `json:"sessions,omitempty"`
}

// ProviderStatus represents the status of an external provider.
type ProviderStatus struct {
	Provider      string       `json:"provider"`
	Status        HealthStatus `json:"status"`
	CircuitState  string       `json:"circuitState"`
	Requests      uint32       `json:"requests"`
	Failures      uint32       `json:"consecutiveFailures"`
	LastSuccessAt *Timestamp   `json:"lastSuccessAt,omitempty"`
	LastFailureAt *Timestamp   `json:"lastFailureAt,omitempty"`
	Message       *string      `json:"message,omitempty"`
}

// RefreshStatus summarizes refresh scheduler activity.
type RefreshStatus struct {
	Total          int64      `json:"total"`
	Succeeded      int64      `json:"succeeded"`
	Failed         int64      `json:"failed"`
	Predictions    int64      `json:"predictions"`
	Alerts         int64      `json:"alerts"`
	DiscardedStale int64      `json:"discardedStale"`
	StationChanges int64      `json:"stationChanges"`
	LastRefreshAt  *Timestamp `json:"lastRefreshAt,omitempty"`
	AvgDurationMs  float64    `json:"avgDurationMs"`
}
