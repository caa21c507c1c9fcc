package widget

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/stationboard/stationboard/internal/config"
	"github.com/stationboard/stationboard/internal/provider/resilience"
	"github.com/stationboard/stationboard/internal/telemetry"
	"github.com/stationboard/stationboard/internal/transit"
	"github.com/stationboard/stationboard/internal/transit/mbta"
	"github.com/stationboard/stationboard/internal/worker"
)

// Stack is the transit pipeline shared by every session in a process.
type Stack struct {
	Provider   transit.Provider
	Registry   *resilience.Registry
	Resolver   *transit.Resolver
	Aggregator *transit.Aggregator
	Alerts     *transit.AlertMonitor
	Scheduler  worker.SchedulerConfig
	BoardLimit int
}

// NewStack wires the MBTA gateway and core components from configuration.
func NewStack(cfg *config.Config, logger zerolog.Logger) (*Stack, error) {
	registry := resilience.NewRegistry()

	httpCfg := resilience.DefaultClientConfig(mbta.ProviderName)
	httpCfg.Timeout = cfg.MBTA.Timeout
	httpCfg.Registry = registry
	httpClient := resilience.NewClient(httpCfg)

	metrics, err := telemetry.NewProviderMetrics(mbta.ProviderName)
	if err != nil {
		return nil, fmt.Errorf("creating provider metrics: %w", err)
	}

	if cfg.MBTA.APIKey == "" {
		logger.Warn().Msg("MBTA API key not set - requests are anonymous and heavily rate limited")
	}

	provider := mbta.NewClient(mbta.ClientConfig{
		APIKey:     cfg.MBTA.APIKey,
		BaseURL:    cfg.MBTA.BaseURL,
		HTTPClient: httpClient,
		Metrics:    metrics,
		Logger:     logger,
	})

	branch := transit.BranchRule{
		Indicator: cfg.Board.BranchIndicator,
		Family:    cfg.Board.BranchFamily,
	}

	return &Stack{
		Provider: provider,
		Registry: registry,
		Resolver: transit.NewResolver(transit.ResolverConfig{
			Provider: provider,
			Logger:   logger,
			RadiusKm: cfg.MBTA.RadiusKm,
		}),
		Aggregator: transit.NewAggregator(transit.AggregatorConfig{
			Provider:         provider,
			Logger:           logger,
			Branch:           &branch,
			ScheduleFallback: cfg.Board.ScheduleFallback,
		}),
		Alerts: transit.NewAlertMonitor(transit.AlertMonitorConfig{
			Provider:    provider,
			Logger:      logger,
			MinSeverity: cfg.Board.MinSeverity,
		}),
		Scheduler: worker.SchedulerConfig{
			PredictionInterval: cfg.Refresh.PredictionInterval,
			AlertInterval:      cfg.Refresh.AlertInterval,
			Timeout:            cfg.Refresh.Timeout,
		},
		BoardLimit: cfg.Board.Limit,
	}, nil
}

// ManagerConfig returns a session manager configuration over the stack.
func (s *Stack) ManagerConfig(cfg *config.Config, logger zerolog.Logger) ManagerConfig {
	return ManagerConfig{
		Resolver:    s.Resolver,
		Aggregator:  s.Aggregator,
		Alerts:      s.Alerts,
		Scheduler:   s.Scheduler,
		BoardLimit:  s.BoardLimit,
		Logger:      logger,
		IdleTimeout: cfg.Sessions.IdleTimeout,
		MaxSessions: cfg.Sessions.Max,
	}
}
