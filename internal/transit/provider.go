package transit

import (
	"context"

	"github.com/stationboard/stationboard/pkg/geo"
)

// Provider defines the interface for transit data gateways.
type Provider interface {
	// NearbyStops searches stops around origin, nearest first as ordered by the service.
	NearbyStops(ctx context.Context, origin geo.Coordinate, radiusKm float64) (*StopSearch, error)

	// Stop fetches a stop with its child platforms.
	Stop(ctx context.Context, id string) (*Station, error)

	// Predictions fetches predictions for a stop with included routes and trips.
	Predictions(ctx context.Context, stopID string) (*PredictionSet, error)

	// Schedules fetches scheduled departures in prediction shape.
	Schedules(ctx context.Context, stopID string) (*PredictionSet, error)

	// AlertsForStop fetches currently active alerts for a stop.
	AlertsForStop(ctx context.Context, stopID string) ([]*Alert, error)

	// AlertsForRoute fetches currently active alerts for a route.
	AlertsForRoute(ctx context.Context, routeID string) ([]*Alert, error)

	// RapidTransitRoutes fetches light rail and subway routes.
	RapidTransitRoutes(ctx context.Context) ([]*Route, error)

	// Route fetches a single route.
	Route(ctx context.Context, id string) (*Route, error)

	// Name returns the provider name for logging.
	Name() string
}

// StopSearch is the result of a coordinate stop search.
type StopSearch struct {
	// Stops in service order.
	Stops []*Station

	// Parents holds included parent station records keyed by id.
	Parents map[string]*Station
}

// PredictionSet is one prediction (or schedule) fetch with its included reference records.
type PredictionSet struct {
	Predictions []Prediction
	Routes      []*Route
	Trips       []*Trip
}
