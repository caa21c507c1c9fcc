// Package mbta implements the transit data gateway for the MBTA v3 JSON:API.
package mbta

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stationboard/stationboard/internal/provider/resilience"
	"github.com/stationboard/stationboard/internal/telemetry"
	"github.com/stationboard/stationboard/internal/transit"
	"github.com/stationboard/stationboard/pkg/geo"
)

const (
	// ProviderName identifies this transit provider.
	ProviderName = "mbta"

	// DefaultBaseURL is the MBTA v3 API base URL.
	DefaultBaseURL = "https://api-v3.mbta.com"

	tracerName = "github.com/stationboard/stationboard/internal/transit/mbta"

	// maxBodyBytes bounds a decoded response body.
	maxBodyBytes = 16 << 20
)

// ClientConfig holds configuration for the MBTA client.
type ClientConfig struct {
	// APIKey is the static MBTA API key. Requests are anonymous (and rate limited) without it.
	APIKey string

	// BaseURL is the API base URL (optional, defaults to the MBTA API).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient *resilience.Client

	// Metrics records per-request metrics (optional).
	Metrics *telemetry.ProviderMetrics

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is an MBTA API client. It implements transit.Provider.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *resilience.Client
	metrics    *telemetry.ProviderMetrics
	validate   *validator.Validate
	tracer     trace.Tracer
	logger     zerolog.Logger
}

var _ transit.Provider = (*Client)(nil)

// NewClient creates a new MBTA client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultClientConfig(ProviderName))
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: httpClient,
		metrics:    cfg.Metrics,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		tracer:     otel.Tracer(tracerName),
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Request performs a GET against path with query and decodes the JSON body into out.
// Non-2xx responses fail with *transit.ServiceError. out is only meaningful when
// the returned error is nil.
func (c *Client) Request(ctx context.Context, path string, query url.Values, out any) error {
	operation := operationName(path)

	ctx, span := c.tracer.Start(ctx, "mbta "+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("provider.name", ProviderName),
			attribute.String("url.path", path),
			attribute.String("url.query", query.Encode()),
		),
	)
	defer span.End()

	start := time.Now()
	status, err := c.do(ctx, path, query, out)
	if c.metrics != nil {
		c.metrics.RecordRequest(operation, status, time.Since(start), err)
	}

	if status > 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", status))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (c *Client) do(ctx context.Context, path string, query url.Values, out any) (int, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)

	c.logger.Debug().
		Str("path", path).
		Str("query", query.Encode()).
		Msg("mbta request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		c.logger.Warn().
			Int("status", resp.StatusCode).
			Str("path", path).
			Msg("mbta request failed")
		return resp.StatusCode, &transit.ServiceError{StatusCode: resp.StatusCode, Path: path}
	}

	body := io.Reader(resp.Body)
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return resp.StatusCode, fmt.Errorf("opening gzip body: %w", err)
		}
		defer gz.Close()
		body = gz
	}

	if err := json.NewDecoder(io.LimitReader(body, maxBodyBytes)).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decoding response: %w", err)
	}

	return resp.StatusCode, nil
}

// setHeaders sets common request headers. Setting Accept-Encoding disables the
// transport's transparent decompression, so gzip bodies are handled in do.
func (c *Client) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	req.Header.Set("Accept", "application/vnd.api+json")
	req.Header.Set("Accept-Encoding", "gzip")
}

// fetch requests a JSON:API document and validates its envelope.
func (c *Client) fetch(ctx context.Context, path string, query url.Values) (*document, []resource, error) {
	var doc document
	if err := c.Request(ctx, path, query, &doc); err != nil {
		return nil, nil, err
	}
	if err := c.validate.Struct(&doc); err != nil {
		return nil, nil, malformed(path, err)
	}
	data, err := doc.primary(c.validate)
	if err != nil {
		return nil, nil, err
	}
	return &doc, data, nil
}

// NearbyStops searches stops within radiusKm of origin, sorted by distance,
// with parent stations included.
func (c *Client) NearbyStops(ctx context.Context, origin geo.Coordinate, radiusKm float64) (*transit.StopSearch, error) {
	query := url.Values{}
	query.Set("filter[latitude]", strconv.FormatFloat(origin.Lat, 'f', 6, 64))
	query.Set("filter[longitude]", strconv.FormatFloat(origin.Lon, 'f', 6, 64))
	query.Set("filter[radius]", strconv.FormatFloat(geo.KmToDegrees(radiusKm), 'f', -1, 64))
	query.Set("sort", "distance")
	query.Set("include", "parent_station")

	doc, data, err := c.fetch(ctx, "/stops", query)
	if err != nil {
		return nil, err
	}

	search := &transit.StopSearch{
		Stops:   make([]*transit.Station, 0, len(data)),
		Parents: make(map[string]*transit.Station),
	}
	for i := range data {
		station, err := toStation(c.validate, &data[i])
		if err != nil {
			return nil, err
		}
		search.Stops = append(search.Stops, station)
	}
	for i := range doc.Included {
		if doc.Included[i].Type != "stop" {
			continue
		}
		parent, err := toStation(c.validate, &doc.Included[i])
		if err != nil {
			return nil, err
		}
		search.Parents[parent.ID] = parent
	}

	return search, nil
}

// Stop fetches a stop and its child platforms.
func (c *Client) Stop(ctx context.Context, id string) (*transit.Station, error) {
	query := url.Values{}
	query.Set("include", "child_stops")

	doc, data, err := c.fetch(ctx, "/stops/"+url.PathEscape(id), query)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, &transit.ServiceError{StatusCode: http.StatusNotFound, Path: "/stops/" + id}
	}

	station, err := toStation(c.validate, &data[0])
	if err != nil {
		return nil, err
	}

	children := make(map[string]*transit.Station)
	for i := range doc.Included {
		if doc.Included[i].Type != "stop" {
			continue
		}
		child, err := toStation(c.validate, &doc.Included[i])
		if err != nil {
			return nil, err
		}
		children[child.ID] = child
	}
	if rel, ok := data[0].Relationships["child_stops"]; ok {
		for _, childID := range rel.ids() {
			if child, ok := children[childID]; ok {
				station.Platforms = append(station.Platforms, child)
			}
		}
	}

	return station, nil
}

// Predictions fetches predictions for a stop with included routes and trips.
func (c *Client) Predictions(ctx context.Context, stopID string) (*transit.PredictionSet, error) {
	doc, data, err := c.fetch(ctx, "/predictions", departureQuery(stopID))
	if err != nil {
		return nil, err
	}

	set := &transit.PredictionSet{Predictions: make([]transit.Prediction, 0, len(data))}
	for i := range data {
		p, err := toPrediction(c.validate, &data[i])
		if err != nil {
			return nil, err
		}
		set.Predictions = append(set.Predictions, *p)
	}
	if err := c.included(doc, set); err != nil {
		return nil, err
	}

	return set, nil
}

// Schedules fetches scheduled departures for a stop. Entries without a
// departure time (e.g., last stop of a trip) are dropped.
func (c *Client) Schedules(ctx context.Context, stopID string) (*transit.PredictionSet, error) {
	doc, data, err := c.fetch(ctx, "/schedules", departureQuery(stopID))
	if err != nil {
		return nil, err
	}

	set := &transit.PredictionSet{Predictions: make([]transit.Prediction, 0, len(data))}
	for i := range data {
		p, err := toScheduled(c.validate, &data[i])
		if err != nil {
			return nil, err
		}
		if p.DepartureTime == nil {
			continue
		}
		set.Predictions = append(set.Predictions, *p)
	}
	if err := c.included(doc, set); err != nil {
		return nil, err
	}

	return set, nil
}

// AlertsForStop fetches alerts active now for a stop.
func (c *Client) AlertsForStop(ctx context.Context, stopID string) ([]*transit.Alert, error) {
	query := url.Values{}
	query.Set("filter[stop]", stopID)
	query.Set("filter[datetime]", "NOW")
	return c.alerts(ctx, query)
}

// AlertsForRoute fetches alerts active now for a route.
func (c *Client) AlertsForRoute(ctx context.Context, routeID string) ([]*transit.Alert, error) {
	query := url.Values{}
	query.Set("filter[route]", routeID)
	query.Set("filter[datetime]", "NOW")
	return c.alerts(ctx, query)
}

func (c *Client) alerts(ctx context.Context, query url.Values) ([]*transit.Alert, error) {
	_, data, err := c.fetch(ctx, "/alerts", query)
	if err != nil {
		return nil, err
	}

	alerts := make([]*transit.Alert, 0, len(data))
	for i := range data {
		a, err := toAlert(c.validate, &data[i])
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}

// RapidTransitRoutes fetches light rail (type 0) and subway (type 1) routes.
func (c *Client) RapidTransitRoutes(ctx context.Context) ([]*transit.Route, error) {
	query := url.Values{}
	query.Set("filter[type]", "0,1")

	_, data, err := c.fetch(ctx, "/routes", query)
	if err != nil {
		return nil, err
	}

	routes := make([]*transit.Route, 0, len(data))
	for i := range data {
		r, err := toRoute(c.validate, &data[i])
		if err != nil {
			return nil, err
		}
		routes = append(routes, r)
	}
	return routes, nil
}

// Route fetches a single route.
func (c *Client) Route(ctx context.Context, id string) (*transit.Route, error) {
	_, data, err := c.fetch(ctx, "/routes/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, &transit.ServiceError{StatusCode: http.StatusNotFound, Path: "/routes/" + id}
	}
	return toRoute(c.validate, &data[0])
}

// included decodes route and trip records into set; other types are ignored.
func (c *Client) included(doc *document, set *transit.PredictionSet) error {
	for i := range doc.Included {
		r := &doc.Included[i]
		switch r.Type {
		case "route":
			route, err := toRoute(c.validate, r)
			if err != nil {
				return err
			}
			set.Routes = append(set.Routes, route)
		case "trip":
			trip, err := toTrip(c.validate, r)
			if err != nil {
				return err
			}
			set.Trips = append(set.Trips, trip)
		}
	}
	return nil
}

func departureQuery(stopID string) url.Values {
	query := url.Values{}
	query.Set("filter[stop]", stopID)
	query.Set("include", "route,trip")
	query.Set("sort", "departure_time")
	return query
}

// operationName derives a metric/span label from a resource path ("/stops/place-x" -> "stops").
func operationName(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(trimmed, '/'); i >= 0 {
		return trimmed[:i]
	}
	return trimmed
}
