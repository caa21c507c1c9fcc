// Package api provides the HTTP API for stationboard.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/stationboard/stationboard/internal/api/handler"
	"github.com/stationboard/stationboard/internal/api/middleware"
	"github.com/stationboard/stationboard/internal/provider/resilience"
	"github.com/stationboard/stationboard/internal/transit"
	"github.com/stationboard/stationboard/internal/widget"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	Provider   transit.Provider
	Registry   *resilience.Registry
	Resolver   *transit.Resolver
	Aggregator *transit.Aggregator
	Alerts     *transit.AlertMonitor
	Sessions   *widget.Manager
	BoardLimit int

	// CORSOrigins lists origins allowed to embed the widget. Empty allows any.
	CORSOrigins []string

	// RateLimit is lookup requests per minute per IP (default: StandardRateLimit).
	RateLimit int

	// RequireTLS rejects plain-HTTP requests forwarded by a load balancer.
	RequireTLS bool
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Set default service name if not provided
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "stationboard-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"Location", "Retry-After", "X-Request-Id"},
		MaxAge:         300,
	}))
	r.Use(middleware.SecurityHeaders) // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.ContentTypeJSON)

	// Initialize handlers
	opsCfg := handler.OpsHandlerConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Registry:  cfg.Registry,
	}
	if cfg.Sessions != nil {
		opsCfg.Refresh = cfg.Sessions.Metrics
		opsCfg.Sessions = cfg.Sessions.Count
	}
	opsHandler := handler.NewOpsHandler(opsCfg)

	lookupRateLimit := middleware.StandardRateLimit
	if cfg.RateLimit > 0 {
		lookupRateLimit = middleware.PerMinute(cfg.RateLimit)
	}
	standardRateLimit := middleware.RateLimitByIP(lookupRateLimit)

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		if cfg.Resolver != nil {
			stationHandler := handler.NewStationHandler(handler.StationHandlerConfig{
				Resolver:   cfg.Resolver,
				Aggregator: cfg.Aggregator,
				Alerts:     cfg.Alerts,
				BoardLimit: cfg.BoardLimit,
				Logger:     cfg.Logger,
			})

			r.Route("/stations", func(r chi.Router) {
				r.Use(standardRateLimit)
				r.Get("/nearest", stationHandler.Nearest)
				r.Route("/{stationId}", func(r chi.Router) {
					r.Get("/", stationHandler.Get)
					r.Get("/board", stationHandler.Board)
					r.Get("/alerts", stationHandler.Alerts)
				})
			})
		}

		if cfg.Provider != nil {
			branch := transit.DefaultBranchRule
			if cfg.Aggregator != nil {
				branch = cfg.Aggregator.Branch()
			}
			routeHandler := handler.NewRouteHandler(cfg.Provider, cfg.Alerts, branch, cfg.Logger)

			r.Route("/routes", func(r chi.Router) {
				r.Use(standardRateLimit)
				r.Get("/", routeHandler.List)
				r.Route("/{routeId}", func(r chi.Router) {
					r.Get("/", routeHandler.Get)
					r.Get("/alerts", routeHandler.Alerts)
				})
			})
		}

		if cfg.Sessions != nil {
			sessionHandler := handler.NewSessionHandler(cfg.Sessions, cfg.Logger)

			r.Route("/sessions", func(r chi.Router) {
				r.Use(middleware.RequireJSON)
				r.With(middleware.RateLimitByIP(middleware.SessionCreateRateLimit)).Post("/", sessionHandler.Create)
				r.Route("/{sessionId}", func(r chi.Router) {
					r.Use(standardRateLimit)
					r.Get("/", sessionHandler.Get)
					r.Delete("/", sessionHandler.Delete)
					r.With(middleware.RateLimitBySession(middleware.RefreshRateLimit)).Post("/refresh", sessionHandler.Refresh)
					r.Put("/location", sessionHandler.ChangeLocation)
				})
			})
		}
	})

	return r
}
