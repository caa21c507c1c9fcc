package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/stationboard/stationboard/internal/api/models"
	"github.com/stationboard/stationboard/internal/api/response"
	"github.com/stationboard/stationboard/internal/transit"
)

// RouteHandler serves route reference data.
type RouteHandler struct {
	provider transit.Provider
	alerts   *transit.AlertMonitor
	branch   transit.BranchRule
	logger   zerolog.Logger
}

// NewRouteHandler creates a new RouteHandler. Route labels follow branch.
func NewRouteHandler(provider transit.Provider, alerts *transit.AlertMonitor, branch transit.BranchRule, logger zerolog.Logger) *RouteHandler {
	return &RouteHandler{
		provider: provider,
		alerts:   alerts,
		branch:   branch,
		logger:   logger,
	}
}

// List handles GET /v1/routes - rapid transit routes.
func (h *RouteHandler) List(w http.ResponseWriter, r *http.Request) {
	routes, err := h.provider.RapidTransitRoutes(r.Context())
	if err != nil {
		writeTransitError(w, r, h.logger, err)
		return
	}

	list := models.RouteList{Items: make([]models.Route, 0, len(routes))}
	for _, route := range routes {
		list.Items = append(list.Items, toRoute(route, h.branch))
	}
	response.JSON(w, r, http.StatusOK, list)
}

// Get handles GET /v1/routes/{routeId}.
func (h *RouteHandler) Get(w http.ResponseWriter, r *http.Request) {
	routeID := chi.URLParam(r, "routeId")
	if routeID == "" {
		response.BadRequest(w, r, "routeId is required", nil)
		return
	}

	route, err := h.provider.Route(r.Context(), routeID)
	if err != nil {
		writeTransitError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, toRoute(route, h.branch))
}

// Alerts handles GET /v1/routes/{routeId}/alerts.
func (h *RouteHandler) Alerts(w http.ResponseWriter, r *http.Request) {
	routeID := chi.URLParam(r, "routeId")
	if routeID == "" {
		response.BadRequest(w, r, "routeId is required", nil)
		return
	}

	alerts, err := h.alerts.LoadRouteAlerts(r.Context(), routeID)
	if err != nil {
		writeTransitError(w, r, h.logger, err)
		return
	}

	response.JSON(w, r, http.StatusOK, models.AlertList{
		Band:  string(transit.MostSevere(alerts)),
		Items: toAlerts(alerts),
	})
}
