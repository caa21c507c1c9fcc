package mbta_test

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stationboard/stationboard/internal/provider/resilience"
	"github.com/stationboard/stationboard/internal/telemetry"
	"github.com/stationboard/stationboard/internal/transit"
	"github.com/stationboard/stationboard/internal/transit/mbta"
	"github.com/stationboard/stationboard/pkg/geo"
)

type obj = map[string]interface{}

func newTestClient(t *testing.T, handler http.HandlerFunc) *mbta.Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	metrics, err := telemetry.NewProviderMetrics(mbta.ProviderName)
	require.NoError(t, err)

	return mbta.NewClient(mbta.ClientConfig{
		APIKey:     "test-key",
		BaseURL:    server.URL,
		HTTPClient: resilience.NewClient(resilience.DefaultClientConfig("mbta-test")),
		Metrics:    metrics,
		Logger:     zerolog.Nop(),
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/vnd.api+json")
	_ = json.NewEncoder(w).Encode(v)
}

func stop(id, name string, lat, lon float64, locationType int, parent string) obj {
	rel := obj{"parent_station": obj{"data": nil}}
	if parent != "" {
		rel["parent_station"] = obj{"data": obj{"id": parent, "type": "stop"}}
	}
	return obj{
		"id":   id,
		"type": "stop",
		"attributes": obj{
			"name":          name,
			"latitude":      lat,
			"longitude":     lon,
			"location_type": locationType,
		},
		"relationships": rel,
	}
}

func TestClient_Name(t *testing.T) {
	client := mbta.NewClient(mbta.ClientConfig{Logger: zerolog.Nop()})
	assert.Equal(t, "mbta", client.Name())
}

func TestClient_NearbyStops(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stops", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "gzip", r.Header.Get("Accept-Encoding"))

		q := r.URL.Query()
		assert.Equal(t, "42.356390", q.Get("filter[latitude]"))
		assert.Equal(t, "-71.062400", q.Get("filter[longitude]"))
		radius, err := strconv.ParseFloat(q.Get("filter[radius]"), 64)
		assert.NoError(t, err)
		assert.InDelta(t, 0.02, radius, 1e-9)
		assert.Equal(t, "distance", q.Get("sort"))
		assert.Equal(t, "parent_station", q.Get("include"))

		writeJSON(w, obj{
			"data": []obj{
				stop("70075", "Park Street", 42.35639, -71.0624, 0, "place-pktrm"),
				stop("place-dwnxg", "Downtown Crossing", 42.355518, -71.060225, 1, ""),
			},
			"included": []obj{
				stop("place-pktrm", "Park Street", 42.356395, -71.062424, 1, ""),
			},
		})
	})

	search, err := client.NearbyStops(context.Background(), geo.Coordinate{Lat: 42.35639, Lon: -71.0624}, 2.2264)
	require.NoError(t, err)
	require.Len(t, search.Stops, 2)

	assert.Equal(t, "70075", search.Stops[0].ID)
	assert.Equal(t, "place-pktrm", search.Stops[0].ParentStationID)
	assert.Equal(t, transit.LocationStop, search.Stops[0].LocationType)
	assert.True(t, search.Stops[1].IsStation())

	require.Contains(t, search.Parents, "place-pktrm")
	assert.Equal(t, "Park Street", search.Parents["place-pktrm"].Name)
}

func TestClient_GzipResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.api+json")
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		_ = json.NewEncoder(gz).Encode(obj{
			"data": []obj{stop("place-gover", "Government Center", 42.359705, -71.059215, 1, "")},
		})
		_ = gz.Close()
	})

	search, err := client.NearbyStops(context.Background(), geo.Coordinate{Lat: 42.36, Lon: -71.06}, 1)
	require.NoError(t, err)
	require.Len(t, search.Stops, 1)
	assert.Equal(t, "Government Center", search.Stops[0].Name)
}

func TestClient_Stop(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stops/place-pktrm", r.URL.Path)
		assert.Equal(t, "child_stops", r.URL.Query().Get("include"))

		station := stop("place-pktrm", "Park Street", 42.356395, -71.062424, 1, "")
		station["relationships"].(obj)["child_stops"] = obj{"data": []obj{
			{"id": "70075", "type": "stop"},
			{"id": "70076", "type": "stop"},
		}}
		writeJSON(w, obj{
			"data": station,
			"included": []obj{
				stop("70076", "Park Street", 42.35639, -71.0624, 0, "place-pktrm"),
				stop("70075", "Park Street", 42.35639, -71.0624, 0, "place-pktrm"),
			},
		})
	})

	station, err := client.Stop(context.Background(), "place-pktrm")
	require.NoError(t, err)
	assert.Equal(t, "Park Street", station.Name)
	require.Len(t, station.Platforms, 2)
	assert.Equal(t, "70075", station.Platforms[0].ID)
	assert.Equal(t, "70076", station.Platforms[1].ID)
}

func TestClient_Predictions(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predictions", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "place-pktrm", q.Get("filter[stop]"))
		assert.Equal(t, "route,trip", q.Get("include"))
		assert.Equal(t, "departure_time", q.Get("sort"))

		writeJSON(w, obj{
			"data": []obj{
				{
					"id":   "prediction-1",
					"type": "prediction",
					"attributes": obj{
						"arrival_time":          "2025-03-14T08:04:30-04:00",
						"departure_time":        "2025-03-14T08:05:00-04:00",
						"direction_id":          1,
						"schedule_relationship": nil,
						"status":                nil,
					},
					"relationships": obj{
						"route": obj{"data": obj{"id": "Green-C", "type": "route"}},
						"trip":  obj{"data": obj{"id": "trip-1", "type": "trip"}},
						"stop":  obj{"data": obj{"id": "70196", "type": "stop"}},
					},
				},
				{
					"id":   "prediction-2",
					"type": "prediction",
					"attributes": obj{
						"arrival_time":          nil,
						"departure_time":        nil,
						"direction_id":          0,
						"schedule_relationship": "SKIPPED",
						"status":                "Stopped 1 stop away",
					},
					"relationships": obj{
						"route": obj{"data": nil},
						"trip":  obj{"data": nil},
					},
				},
			},
			"included": []obj{
				{
					"id":   "Green-C",
					"type": "route",
					"attributes": obj{
						"short_name":      "C",
						"long_name":       "Green Line C",
						"color":           "00843D",
						"text_color":      "FFFFFF",
						"type":            0,
						"direction_names": []string{"West", "East"},
					},
				},
				{
					"id":         "trip-1",
					"type":       "trip",
					"attributes": obj{"headsign": "Government Center", "name": "", "direction_id": 1},
				},
				{
					"id":         "70196",
					"type":       "stop",
					"attributes": obj{"name": "Park Street"},
				},
			},
		})
	})

	set, err := client.Predictions(context.Background(), "place-pktrm")
	require.NoError(t, err)
	require.Len(t, set.Predictions, 2)

	p := set.Predictions[0]
	assert.Equal(t, "prediction-1", p.ID)
	require.NotNil(t, p.DepartureTime)
	assert.True(t, p.DepartureTime.Equal(time.Date(2025, 3, 14, 12, 5, 0, 0, time.UTC)))
	assert.Equal(t, 1, p.DirectionID)
	assert.Equal(t, "Green-C", p.RouteID)
	assert.Equal(t, "trip-1", p.TripID)
	assert.Equal(t, "70196", p.StopID)
	assert.Empty(t, p.Status)

	skipped := set.Predictions[1]
	assert.Nil(t, skipped.DepartureTime)
	assert.Equal(t, transit.RelationshipSkipped, skipped.ScheduleRelationship)
	assert.Equal(t, "Stopped 1 stop away", skipped.Status)
	assert.Empty(t, skipped.RouteID)

	require.Len(t, set.Routes, 1)
	assert.Equal(t, "Green-C", transit.RouteLabel(set.Routes[0]))
	assert.Equal(t, transit.RouteTypeLightRail, set.Routes[0].Type)
	require.Len(t, set.Trips, 1)
	assert.Equal(t, "Government Center", set.Trips[0].Headsign)
}

func TestClient_Schedules_DropsNullDepartures(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/schedules", r.URL.Path)
		writeJSON(w, obj{
			"data": []obj{
				{
					"id":         "schedule-1",
					"type":       "schedule",
					"attributes": obj{"arrival_time": "2025-03-14T08:10:00-04:00", "departure_time": "2025-03-14T08:11:00-04:00", "direction_id": 0},
				},
				{
					"id":         "schedule-terminal",
					"type":       "schedule",
					"attributes": obj{"arrival_time": "2025-03-14T08:20:00-04:00", "departure_time": nil, "direction_id": 0},
				},
			},
		})
	})

	set, err := client.Schedules(context.Background(), "place-pktrm")
	require.NoError(t, err)
	require.Len(t, set.Predictions, 1)
	assert.Equal(t, "schedule-1", set.Predictions[0].ID)
}

func TestClient_AlertsForStop(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/alerts", r.URL.Path)
		assert.Equal(t, "place-pktrm", r.URL.Query().Get("filter[stop]"))
		assert.Equal(t, "NOW", r.URL.Query().Get("filter[datetime]"))

		writeJSON(w, obj{
			"data": []obj{
				{
					"id":   "alert-1",
					"type": "alert",
					"attributes": obj{
						"header":      "Red Line delays of about 15 minutes",
						"description": nil,
						"severity":    5,
						"effect":      "DELAY",
						"lifecycle":   "NEW",
						"active_period": []obj{
							{"start": "2025-03-14T07:00:00-04:00", "end": nil},
						},
						"informed_entity": []obj{
							{"route": "Red", "stop": "place-pktrm"},
							{"route": "Red", "stop": "70075"},
						},
					},
				},
			},
		})
	})

	alerts, err := client.AlertsForStop(context.Background(), "place-pktrm")
	require.NoError(t, err)
	require.Len(t, alerts, 1)

	a := alerts[0]
	assert.Equal(t, 5, a.Severity)
	assert.Equal(t, transit.BandMajor, a.Band())
	assert.Equal(t, "DELAY", a.Effect)
	assert.Equal(t, []string{"Red"}, a.RouteIDs)
	require.Len(t, a.ActivePeriods, 1)
	assert.Nil(t, a.ActivePeriods[0].End)
}

func TestClient_AlertsForRoute(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Orange", r.URL.Query().Get("filter[route]"))
		writeJSON(w, obj{"data": []obj{}})
	})

	alerts, err := client.AlertsForRoute(context.Background(), "Orange")
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestClient_RapidTransitRoutes(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/routes", r.URL.Path)
		assert.Equal(t, "0,1", r.URL.Query().Get("filter[type]"))
		writeJSON(w, obj{
			"data": []obj{
				{"id": "Red", "type": "route", "attributes": obj{"short_name": "", "long_name": "Red Line", "color": "DA291C", "type": 1}},
				{"id": "Mattapan", "type": "route", "attributes": obj{"short_name": "", "long_name": "Mattapan Trolley", "color": "DA291C", "type": 0}},
			},
		})
	})

	routes, err := client.RapidTransitRoutes(context.Background())
	require.NoError(t, err)
	require.Len(t, routes, 2)
	assert.Equal(t, transit.RouteTypeSubway, routes[0].Type)
}

func TestClient_Route_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, obj{"errors": []obj{{"status": "404", "code": "not_found"}}})
	})

	_, err := client.Route(context.Background(), "Purple")
	se, ok := transit.AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Equal(t, "/routes/Purple", se.Path)
}

func TestClient_ServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	set, err := client.Predictions(context.Background(), "place-pktrm")
	require.Error(t, err)
	assert.Nil(t, set)

	se, ok := transit.AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
}

func TestClient_MalformedResponses(t *testing.T) {
	tests := []struct {
		name string
		body obj
	}{
		{"missing data", obj{"jsonapi": obj{"version": "1.0"}}},
		{"missing id", obj{"data": []obj{{"type": "prediction", "attributes": obj{"direction_id": 0}}}}},
		{"bad direction", obj{"data": []obj{{"id": "p", "type": "prediction", "attributes": obj{"direction_id": 2}}}}},
		{"bad time", obj{"data": []obj{{"id": "p", "type": "prediction", "attributes": obj{"direction_id": 0, "departure_time": "soon"}}}}},
		{"bad included route", obj{
			"data":     []obj{},
			"included": []obj{{"id": "Red", "type": "route", "attributes": obj{"color": "not-hex", "type": 1}}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, tt.body)
			})

			set, err := client.Predictions(context.Background(), "place-pktrm")
			require.Error(t, err)
			assert.ErrorIs(t, err, transit.ErrMalformedResponse)
			assert.Nil(t, set)
		})
	}
}

func TestClient_AlertWithoutHeaderIsMalformed(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, obj{"data": []obj{{"id": "a", "type": "alert", "attributes": obj{"severity": 3}}}})
	})

	_, err := client.AlertsForStop(context.Background(), "place-pktrm")
	assert.ErrorIs(t, err, transit.ErrMalformedResponse)
}

func TestClient_AggregatorErrorState(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	agg := transit.NewAggregator(transit.AggregatorConfig{
		Provider:         client,
		Logger:           zerolog.Nop(),
		ScheduleFallback: true,
	})

	data, err := agg.LoadBoard(context.Background(), "place-pktrm")
	require.Error(t, err)
	assert.Nil(t, data)

	_, ok := transit.AsServiceError(err)
	assert.True(t, ok)
}
