package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/stationboard/stationboard/internal/api/models"
	"github.com/stationboard/stationboard/internal/api/response"
	"github.com/stationboard/stationboard/internal/transit"
	"github.com/stationboard/stationboard/pkg/geo"
)

// maxRadiusKm bounds client-supplied search radii.
const maxRadiusKm = 50

// StationHandler serves stateless station lookups.
type StationHandler struct {
	resolver   *transit.Resolver
	aggregator *transit.Aggregator
	alerts     *transit.AlertMonitor
	boardLimit int
	logger     zerolog.Logger
	now        func() time.Time
}

// StationHandlerConfig holds dependencies for a StationHandler.
type StationHandlerConfig struct {
	Resolver   *transit.Resolver
	Aggregator *transit.Aggregator
	Alerts     *transit.AlertMonitor
	BoardLimit int
	Logger     zerolog.Logger
}

// NewStationHandler creates a new StationHandler.
func NewStationHandler(cfg StationHandlerConfig) *StationHandler {
	return &StationHandler{
		resolver:   cfg.Resolver,
		aggregator: cfg.Aggregator,
		alerts:     cfg.Alerts,
		boardLimit: cfg.BoardLimit,
		logger:     cfg.Logger,
		now:        time.Now,
	}
}

// Nearest handles GET /v1/stations/nearest - stations near a position, nearest first.
func (h *StationHandler) Nearest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var fieldErrors []models.FieldError
	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "lat", Message: "must be a number", Code: "INVALID"})
	}
	lon, err := strconv.ParseFloat(q.Get("lon"), 64)
	if err != nil {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "lon", Message: "must be a number", Code: "INVALID"})
	}
	radiusKm := h.resolver.RadiusKm()
	if v := q.Get("radiusKm"); v != "" {
		radiusKm, err = strconv.ParseFloat(v, 64)
		if err != nil || radiusKm <= 0 || radiusKm > maxRadiusKm {
			fieldErrors = append(fieldErrors, models.FieldError{Field: "radiusKm", Message: "must be between 0 and 50", Code: "OUT_OF_RANGE"})
		}
	}
	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "invalid query parameters", fieldErrors)
		return
	}

	origin := geo.Coordinate{Lat: lat, Lon: lon}
	stations, err := h.resolver.NearestStations(r.Context(), origin, radiusKm)
	if err != nil {
		writeTransitError(w, r, h.logger, err)
		return
	}
	if len(stations) == 0 {
		writeTransitError(w, r, h.logger, transit.ErrNoQualifyingStation)
		return
	}

	list := models.StationList{
		Origin:   models.Point{Lat: lat, Lon: lon},
		RadiusKm: radiusKm,
		Items:    make([]models.Station, 0, len(stations)),
	}
	for _, s := range stations {
		list.Items = append(list.Items, toStation(s))
	}
	response.JSON(w, r, http.StatusOK, list)
}

// Get handles GET /v1/stations/{stationId} - station with its platforms.
func (h *StationHandler) Get(w http.ResponseWriter, r *http.Request) {
	station, ok := h.station(w, r)
	if !ok {
		return
	}
	response.JSON(w, r, http.StatusOK, toStation(station))
}

// Board handles GET /v1/stations/{stationId}/board - one-shot departure board.
func (h *StationHandler) Board(w http.ResponseWriter, r *http.Request) {
	station, ok := h.station(w, r)
	if !ok {
		return
	}

	data, err := h.aggregator.LoadBoard(r.Context(), station.ID)
	if err != nil {
		writeTransitError(w, r, h.logger, err)
		return
	}

	board := transit.BuildBoard(station, data, h.now(), h.boardLimit)
	response.JSON(w, r, http.StatusOK, toBoard(board))
}

// Alerts handles GET /v1/stations/{stationId}/alerts - alerts at or above the severity floor.
func (h *StationHandler) Alerts(w http.ResponseWriter, r *http.Request) {
	stationID := chi.URLParam(r, "stationId")
	if stationID == "" {
		response.BadRequest(w, r, "stationId is required", nil)
		return
	}

	alerts, err := h.alerts.LoadAlerts(r.Context(), stationID)
	if err != nil {
		writeTransitError(w, r, h.logger, err)
		return
	}

	response.JSON(w, r, http.StatusOK, models.AlertList{
		Band:  string(transit.MostSevere(alerts)),
		Items: toAlerts(alerts),
	})
}

func (h *StationHandler) station(w http.ResponseWriter, r *http.Request) (*transit.Station, bool) {
	stationID := chi.URLParam(r, "stationId")
	if stationID == "" {
		response.BadRequest(w, r, "stationId is required", nil)
		return nil, false
	}

	station, err := h.resolver.Station(r.Context(), stationID)
	if err != nil {
		writeTransitError(w, r, h.logger, err)
		return nil, false
	}
	return station, true
}
