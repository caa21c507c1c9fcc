package transit_test

import (
	"context"
	"sync"
	"time"

	"github.com/stationboard/stationboard/internal/transit"
	"github.com/stationboard/stationboard/pkg/geo"
)

// mockProvider is a mock transit provider for testing.
type mockProvider struct {
	mu        sync.Mutex
	callCount map[string]int

	search      *transit.StopSearch
	stops       map[string]*transit.Station
	predictions *transit.PredictionSet
	schedules   *transit.PredictionSet
	stopAlerts  []*transit.Alert
	routeAlerts []*transit.Alert
	routes      []*transit.Route

	err         error
	scheduleErr error
}

func newMockProvider() *mockProvider {
	return &mockProvider{
		callCount:   make(map[string]int),
		search:      &transit.StopSearch{},
		stops:       make(map[string]*transit.Station),
		predictions: &transit.PredictionSet{},
		schedules:   &transit.PredictionSet{},
	}
}

func (m *mockProvider) Name() string {
	return "mock"
}

func (m *mockProvider) record(op string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount[op]++
	return m.err
}

func (m *mockProvider) calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount[op]
}

func (m *mockProvider) NearbyStops(_ context.Context, _ geo.Coordinate, _ float64) (*transit.StopSearch, error) {
	if err := m.record("stops"); err != nil {
		return nil, err
	}
	return m.search, nil
}

func (m *mockProvider) Stop(_ context.Context, id string) (*transit.Station, error) {
	if err := m.record("stop"); err != nil {
		return nil, err
	}
	if s, ok := m.stops[id]; ok {
		return s, nil
	}
	return nil, &transit.ServiceError{StatusCode: 404, Path: "/stops/" + id}
}

func (m *mockProvider) Predictions(_ context.Context, _ string) (*transit.PredictionSet, error) {
	if err := m.record("predictions"); err != nil {
		return nil, err
	}
	return m.predictions, nil
}

func (m *mockProvider) Schedules(_ context.Context, _ string) (*transit.PredictionSet, error) {
	m.record("schedules")
	if m.scheduleErr != nil {
		return nil, m.scheduleErr
	}
	return m.schedules, nil
}

func (m *mockProvider) AlertsForStop(_ context.Context, _ string) ([]*transit.Alert, error) {
	if err := m.record("stop_alerts"); err != nil {
		return nil, err
	}
	return m.stopAlerts, nil
}

func (m *mockProvider) AlertsForRoute(_ context.Context, _ string) ([]*transit.Alert, error) {
	if err := m.record("route_alerts"); err != nil {
		return nil, err
	}
	return m.routeAlerts, nil
}

func (m *mockProvider) RapidTransitRoutes(_ context.Context) ([]*transit.Route, error) {
	if err := m.record("routes"); err != nil {
		return nil, err
	}
	return m.routes, nil
}

func (m *mockProvider) Route(_ context.Context, id string) (*transit.Route, error) {
	if err := m.record("route"); err != nil {
		return nil, err
	}
	for _, r := range m.routes {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, &transit.ServiceError{StatusCode: 404, Path: "/routes/" + id}
}

func at(t time.Time) *time.Time {
	return &t
}

func prediction(id string, departure time.Time, direction int) transit.Prediction {
	return transit.Prediction{
		ID:            id,
		DepartureTime: at(departure),
		DirectionID:   direction,
		RouteID:       "Red",
		TripID:        "trip-" + id,
	}
}
