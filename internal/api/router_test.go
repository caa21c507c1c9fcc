package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stationboard/stationboard/internal/api"
	"github.com/stationboard/stationboard/internal/api/models"
	"github.com/stationboard/stationboard/internal/provider/resilience"
	"github.com/stationboard/stationboard/internal/transit"
	"github.com/stationboard/stationboard/internal/widget"
	"github.com/stationboard/stationboard/internal/worker"
	"github.com/stationboard/stationboard/pkg/geo"
)

const (
	parkLat = 42.35639
	parkLon = -71.0624
)

// fakeProvider serves Park Street and nothing else.
type fakeProvider struct {
	mu          sync.Mutex
	predictions []transit.Prediction
	alerts      []*transit.Alert
	err         error
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) failure() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *fakeProvider) parkStreet() *transit.Station {
	return &transit.Station{
		ID:           "place-pktrm",
		Name:         "Park Street",
		Lat:          parkLat,
		Lon:          parkLon,
		LocationType: transit.LocationStation,
		Platforms: []*transit.Station{
			{ID: "70075", Name: "Park Street", Lat: parkLat, Lon: parkLon, ParentStationID: "place-pktrm"},
		},
	}
}

func (p *fakeProvider) NearbyStops(_ context.Context, origin geo.Coordinate, _ float64) (*transit.StopSearch, error) {
	if err := p.failure(); err != nil {
		return nil, err
	}
	if geo.DistanceKm(origin, geo.Coordinate{Lat: parkLat, Lon: parkLon}) > 3 {
		return &transit.StopSearch{}, nil
	}
	return &transit.StopSearch{Stops: []*transit.Station{p.parkStreet()}}, nil
}

func (p *fakeProvider) Stop(_ context.Context, id string) (*transit.Station, error) {
	if err := p.failure(); err != nil {
		return nil, err
	}
	if id != "place-pktrm" {
		return nil, &transit.ServiceError{StatusCode: http.StatusNotFound, Path: "/stops/" + id}
	}
	return p.parkStreet(), nil
}

func (p *fakeProvider) Predictions(_ context.Context, _ string) (*transit.PredictionSet, error) {
	if err := p.failure(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return &transit.PredictionSet{
		Predictions: append([]transit.Prediction(nil), p.predictions...),
		Routes:      p.routes(),
		Trips:       []*transit.Trip{{ID: "t1", Headsign: "Alewife"}},
	}, nil
}

func (p *fakeProvider) Schedules(_ context.Context, _ string) (*transit.PredictionSet, error) {
	return &transit.PredictionSet{}, nil
}

func (p *fakeProvider) AlertsForStop(_ context.Context, _ string) ([]*transit.Alert, error) {
	if err := p.failure(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alerts, nil
}

func (p *fakeProvider) AlertsForRoute(ctx context.Context, stopID string) ([]*transit.Alert, error) {
	return p.AlertsForStop(ctx, stopID)
}

func (p *fakeProvider) RapidTransitRoutes(_ context.Context) ([]*transit.Route, error) {
	if err := p.failure(); err != nil {
		return nil, err
	}
	return p.routes(), nil
}

func (p *fakeProvider) Route(_ context.Context, id string) (*transit.Route, error) {
	for _, r := range p.routes() {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, &transit.ServiceError{StatusCode: http.StatusNotFound, Path: "/routes/" + id}
}

func (p *fakeProvider) routes() []*transit.Route {
	return []*transit.Route{
		{ID: "Red", LongName: "Red Line", Color: "DA291C", TextColor: "FFFFFF", Type: transit.RouteTypeSubway},
		{ID: "Green-B", ShortName: "B", LongName: "Green Line B", Color: "00843D", Type: transit.RouteTypeLightRail},
	}
}

type testEnv struct {
	router   http.Handler
	provider *fakeProvider
	registry *resilience.Registry
	sessions *widget.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zerolog.New(io.Discard)

	provider := &fakeProvider{}
	registry := resilience.NewRegistry()
	resilience.NewClient(resilience.ClientConfig{Name: "mbta", Registry: registry})

	resolver := transit.NewResolver(transit.ResolverConfig{Provider: provider, Logger: logger})
	aggregator := transit.NewAggregator(transit.AggregatorConfig{Provider: provider, Logger: logger})
	alerts := transit.NewAlertMonitor(transit.AlertMonitorConfig{Provider: provider, Logger: logger})
	sessions := widget.NewManager(widget.ManagerConfig{
		Resolver:   resolver,
		Aggregator: aggregator,
		Alerts:     alerts,
		Scheduler:  worker.SchedulerConfig{PredictionInterval: time.Hour, AlertInterval: time.Hour},
		Logger:     logger,
	})
	t.Cleanup(sessions.Close)

	router := api.NewRouter(api.RouterConfig{
		Version:     "test",
		BuildTime:   "2024-01-01T00:00:00Z",
		Logger:      logger,
		Provider:    provider,
		Registry:    registry,
		Resolver:    resolver,
		Aggregator:  aggregator,
		Alerts:      alerts,
		Sessions:    sessions,
		CORSOrigins: []string{"https://widget.example.com"},
	})

	return &testEnv{router: router, provider: provider, registry: registry, sessions: sessions}
}

func (e *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func departure(id string, in time.Duration, direction int) transit.Prediction {
	t := time.Now().Add(in)
	return transit.Prediction{ID: id, DepartureTime: &t, DirectionID: direction, RouteID: "Red", TripID: "t1"}
}

func TestRouter_HealthCheck(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/v1/ops/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	health := decode[models.Health](t, w)
	assert.Equal(t, models.HealthStatusOK, health.Status)
	assert.Equal(t, "test", health.Details["version"])
}

func TestRouter_SystemStatus(t *testing.T) {
	env := newTestEnv(t)
	env.registry.RecordSuccess("mbta")

	w := env.do(http.MethodGet, "/v1/ops/status", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	status := decode[models.SystemStatus](t, w)
	assert.Equal(t, models.HealthStatusOK, status.Status)
	require.Len(t, status.Providers, 1)
	assert.Equal(t, "mbta", status.Providers[0].Provider)
	assert.Equal(t, "closed", status.Providers[0].CircuitState)
	assert.NotNil(t, status.Providers[0].LastSuccessAt)
	require.NotNil(t, status.Refresh)
	require.NotNil(t, status.Sessions)
	assert.Equal(t, 0, *status.Sessions)
}

func TestRouter_NearestStations(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/v1/stations/nearest?lat=42.3564&lon=-71.0625", nil)

	require.Equal(t, http.StatusOK, w.Code)
	list := decode[models.StationList](t, w)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "place-pktrm", list.Items[0].ID)
	require.NotNil(t, list.Items[0].DistanceKm)
	assert.Less(t, *list.Items[0].DistanceKm, 0.1)
	assert.InDelta(t, transit.DefaultSearchRadiusKm, list.RadiusKm, 1e-9)
}

func TestRouter_NearestStations_NoStation(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/v1/stations/nearest?lat=41.0&lon=-69.0", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	problem := decode[models.Problem](t, w)
	assert.Equal(t, models.ProblemTypeNoStation, problem.Type)
}

func TestRouter_NearestStations_BadQuery(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name  string
		query string
	}{
		{"missing lat", "?lon=-71.06"},
		{"non-numeric lon", "?lat=42.35&lon=west"},
		{"latitude out of range", "?lat=95&lon=-71.06"},
		{"radius too large", "?lat=42.35&lon=-71.06&radiusKm=500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodGet, "/v1/stations/nearest"+tt.query, nil)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
		})
	}
}

func TestRouter_GetStation(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/v1/stations/place-pktrm", nil)

	require.Equal(t, http.StatusOK, w.Code)
	station := decode[models.Station](t, w)
	assert.Equal(t, "Park Street", station.Name)
	require.Len(t, station.Platforms, 1)
	assert.Equal(t, "70075", station.Platforms[0].ID)

	w = env.do(http.MethodGet, "/v1/stations/place-nowhere", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_StationBoard(t *testing.T) {
	env := newTestEnv(t)
	env.provider.predictions = []transit.Prediction{
		departure("p1", 5*time.Minute, transit.DirectionOutbound),
		departure("p2", 25*time.Minute, transit.DirectionOutbound),
	}

	w := env.do(http.MethodGet, "/v1/stations/place-pktrm/board", nil)

	require.Equal(t, http.StatusOK, w.Code)
	board := decode[models.Board](t, w)
	assert.Equal(t, "place-pktrm", board.Station.ID)

	require.Len(t, board.Outbound.Departures, 2)
	assert.Equal(t, models.DirectionOutbound, board.Outbound.Direction)
	assert.Equal(t, "Red Line", board.Outbound.Departures[0].RouteLabel)
	assert.Equal(t, "Alewife", board.Outbound.Departures[0].Headsign)
	assert.Contains(t, []string{"5 min", "6 min"}, board.Outbound.Departures[0].Label)
	assert.Equal(t, transit.LabelOverflow, board.Outbound.Departures[1].Label)

	assert.Empty(t, board.Inbound.Departures)
	assert.Equal(t, transit.LabelNoTrains, board.Inbound.Message)
}

func TestRouter_StationBoard_UpstreamFailure(t *testing.T) {
	env := newTestEnv(t)
	env.provider.err = &transit.ServiceError{StatusCode: http.StatusServiceUnavailable, Path: "/stops/place-pktrm"}

	w := env.do(http.MethodGet, "/v1/stations/place-pktrm/board", nil)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))
	problem := decode[models.Problem](t, w)
	assert.Equal(t, models.ProblemTypeUpstream, problem.Type)
}

func TestRouter_StationAlerts(t *testing.T) {
	env := newTestEnv(t)
	started := time.Now().Add(-time.Hour).Truncate(time.Second)
	env.provider.alerts = []*transit.Alert{
		{ID: "minor", Header: "Minor delays", Severity: 3},
		{ID: "hidden", Header: "Elevator note", Severity: 1},
		{ID: "major", Header: "Shuttle buses", Severity: 6, ActivePeriods: []transit.ActivePeriod{{Start: started}}},
	}

	w := env.do(http.MethodGet, "/v1/stations/place-pktrm/alerts", nil)

	require.Equal(t, http.StatusOK, w.Code)
	list := decode[models.AlertList](t, w)
	assert.Equal(t, string(transit.BandMajor), list.Band)
	require.Len(t, list.Items, 2)
	assert.Equal(t, "major", list.Items[0].ID)
	assert.Equal(t, string(transit.BandMinor), list.Items[1].Band)

	require.Len(t, list.Items[0].ActivePeriods, 1)
	period := list.Items[0].ActivePeriods[0]
	assert.True(t, started.Equal(period.Start.Time()))
	assert.Nil(t, period.End)
	assert.Empty(t, list.Items[1].ActivePeriods)
}

func TestRouter_Routes(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/v1/routes", nil)

	require.Equal(t, http.StatusOK, w.Code)
	list := decode[models.RouteList](t, w)
	require.Len(t, list.Items, 2)
	assert.Equal(t, "Red Line", list.Items[0].Label)
	assert.Equal(t, "Green-B", list.Items[1].Label)

	w = env.do(http.MethodGet, "/v1/routes/Green-B", nil)
	require.Equal(t, http.StatusOK, w.Code)
	route := decode[models.Route](t, w)
	assert.Equal(t, "00843D", route.Color)

	w = env.do(http.MethodGet, "/v1/routes/Purple", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_RouteAlerts(t *testing.T) {
	env := newTestEnv(t)
	env.provider.alerts = []*transit.Alert{{ID: "severe", Header: "Suspended", Severity: 9, RouteIDs: []string{"Red"}}}

	w := env.do(http.MethodGet, "/v1/routes/Red/alerts", nil)

	require.Equal(t, http.StatusOK, w.Code)
	list := decode[models.AlertList](t, w)
	assert.Equal(t, string(transit.BandSevere), list.Band)
	require.Len(t, list.Items, 1)
	assert.Equal(t, []string{"Red"}, list.Items[0].RouteIDs)
}

func TestRouter_SessionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.provider.predictions = []transit.Prediction{departure("p1", 8*time.Minute, transit.DirectionInbound)}

	w := env.do(http.MethodPost, "/v1/sessions", map[string]float64{"lat": parkLat, "lon": parkLon})
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode[models.Session](t, w)
	assert.Equal(t, "/v1/sessions/"+created.ID, w.Header().Get("Location"))
	require.NotNil(t, created.Station)
	assert.Equal(t, "place-pktrm", created.Station.ID)
	assert.Equal(t, "granted", created.Location.State)

	path := "/v1/sessions/" + created.ID
	require.Eventually(t, func() bool {
		w := env.do(http.MethodGet, path, nil)
		return w.Code == http.StatusOK && decode[models.Session](t, w).Status == string(widget.StatusReady)
	}, 2*time.Second, 10*time.Millisecond)

	w = env.do(http.MethodGet, path, nil)
	session := decode[models.Session](t, w)
	require.NotNil(t, session.Board)
	require.Len(t, session.Board.Inbound.Departures, 1)
	assert.Equal(t, transit.LabelNoTrains, session.Board.Outbound.Message)

	w = env.do(http.MethodPost, path+"/refresh", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = env.do(http.MethodPut, path+"/location", map[string]float64{"lat": 41.0, "lon": -69.0})
	require.Equal(t, http.StatusOK, w.Code)
	moved := decode[models.Session](t, w)
	assert.Equal(t, string(widget.StatusNoStation), moved.Status)
	assert.Nil(t, moved.Station)
	assert.Nil(t, moved.Board)
	assert.Greater(t, moved.Generation, created.Generation)

	w = env.do(http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = env.do(http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_CreateSession_Validation(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/v1/sessions", map[string]float64{"lat": 95})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	problem := decode[models.Problem](t, w)
	require.Len(t, problem.Errors, 2)
	fields := []string{problem.Errors[0].Field, problem.Errors[1].Field}
	assert.ElementsMatch(t, []string{"lat", "lon"}, fields)
	assert.Equal(t, 0, env.sessions.Count())
}

func TestRouter_CreateSession_InvalidJSON(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_CreateSession_RejectsFormBody(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", bytes.NewBufferString("lat=42.35&lon=-71.06"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	assert.Equal(t, models.ProblemTypeMediaType, decode[models.Problem](t, w).Type)
	assert.Equal(t, 0, env.sessions.Count())
}

func TestRouter_CORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/v1/sessions", http.NoBody)
	req.Header.Set("Origin", "https://widget.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, "https://widget.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_RequestID_Generated(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/v1/ops/health", nil)

	requestID := w.Header().Get("X-Request-Id")
	assert.NotEmpty(t, requestID)
	assert.Contains(t, requestID, "req_")
}

func TestRouter_RequestID_Preserved(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)
	req.Header.Set("X-Request-Id", "custom_request_id")
	w := httptest.NewRecorder()

	env.router.ServeHTTP(w, req)

	assert.Equal(t, "custom_request_id", w.Header().Get("X-Request-Id"))
}

func TestRouter_NotFound(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/v1/nonexistent", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
