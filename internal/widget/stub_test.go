package widget_test

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/stationboard/stationboard/internal/transit"
	"github.com/stationboard/stationboard/internal/widget"
	"github.com/stationboard/stationboard/internal/worker"
	"github.com/stationboard/stationboard/pkg/geo"
)

var (
	parkStreet = geo.Coordinate{Lat: 42.35639, Lon: -71.0624}
	harvard    = geo.Coordinate{Lat: 42.373362, Lon: -71.118956}
	openOcean  = geo.Coordinate{Lat: 41.0, Lon: -69.0}
)

// stubProvider serves one station per origin latitude.
type stubProvider struct {
	mu          sync.Mutex
	stations    map[float64]*transit.Station
	predictions map[string][]transit.Prediction
	alerts      map[string][]*transit.Alert
	predErr     error
	alertErr    error

	// stopFailures is the number of NearbyStops calls that fail before
	// the search succeeds.
	stopFailures int
}

func newStubProvider() *stubProvider {
	return &stubProvider{
		stations: map[float64]*transit.Station{
			parkStreet.Lat: {ID: "place-pktrm", Name: "Park Street", Lat: parkStreet.Lat, Lon: parkStreet.Lon, LocationType: transit.LocationStation},
			harvard.Lat:    {ID: "place-harsq", Name: "Harvard", Lat: harvard.Lat, Lon: harvard.Lon, LocationType: transit.LocationStation},
		},
		predictions: make(map[string][]transit.Prediction),
		alerts:      make(map[string][]*transit.Alert),
	}
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) NearbyStops(_ context.Context, origin geo.Coordinate, _ float64) (*transit.StopSearch, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopFailures > 0 {
		p.stopFailures--
		return nil, &transit.ServiceError{StatusCode: 500, Path: "/stops"}
	}
	search := &transit.StopSearch{}
	if s, ok := p.stations[origin.Lat]; ok {
		search.Stops = []*transit.Station{s}
	}
	return search, nil
}

func (p *stubProvider) Stop(_ context.Context, id string) (*transit.Station, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.stations {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, &transit.ServiceError{StatusCode: 404, Path: "/stops/" + id}
}

func (p *stubProvider) Predictions(_ context.Context, stopID string) (*transit.PredictionSet, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.predErr != nil {
		return nil, p.predErr
	}
	return &transit.PredictionSet{
		Predictions: append([]transit.Prediction(nil), p.predictions[stopID]...),
		Routes: []*transit.Route{
			{ID: "Red", LongName: "Red Line", Color: "DA291C", TextColor: "FFFFFF"},
		},
	}, nil
}

func (p *stubProvider) Schedules(_ context.Context, _ string) (*transit.PredictionSet, error) {
	return &transit.PredictionSet{}, nil
}

func (p *stubProvider) AlertsForStop(_ context.Context, stopID string) ([]*transit.Alert, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.alertErr != nil {
		return nil, p.alertErr
	}
	return p.alerts[stopID], nil
}

func (p *stubProvider) AlertsForRoute(_ context.Context, _ string) ([]*transit.Alert, error) {
	return nil, nil
}

func (p *stubProvider) RapidTransitRoutes(_ context.Context) ([]*transit.Route, error) {
	return nil, nil
}

func (p *stubProvider) Route(_ context.Context, id string) (*transit.Route, error) {
	return nil, &transit.ServiceError{StatusCode: 404, Path: "/routes/" + id}
}

func departing(id string, in time.Duration, direction int) transit.Prediction {
	t := time.Now().Add(in)
	return transit.Prediction{
		ID:            id,
		DepartureTime: &t,
		DirectionID:   direction,
		RouteID:       "Red",
	}
}

// idleScheduler runs each loop once and then waits for RefreshNow.
var idleScheduler = worker.SchedulerConfig{
	PredictionInterval: time.Hour,
	AlertInterval:      time.Hour,
}

func components(p transit.Provider) (*transit.Resolver, *transit.Aggregator, *transit.AlertMonitor) {
	logger := zerolog.Nop()
	return transit.NewResolver(transit.ResolverConfig{Provider: p, Logger: logger}),
		transit.NewAggregator(transit.AggregatorConfig{Provider: p, Logger: logger}),
		transit.NewAlertMonitor(transit.AlertMonitorConfig{Provider: p, Logger: logger})
}

func newManager(p transit.Provider) *widget.Manager {
	resolver, aggregator, alerts := components(p)
	return widget.NewManager(widget.ManagerConfig{
		Resolver:   resolver,
		Aggregator: aggregator,
		Alerts:     alerts,
		Scheduler:  idleScheduler,
		Logger:     zerolog.Nop(),
	})
}
