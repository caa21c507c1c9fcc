package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// healthPath is polled by load balancers and logged at debug level only.
const healthPath = "/v1/ops/health"

// unmatchedRoute labels requests that did not match any route, keeping metric
// cardinality bounded.
const unmatchedRoute = "unmatched"

// resourceParam maps a chi URL parameter to its log field and span attribute.
type resourceParam struct {
	param   string
	logKey  string
	spanKey string
}

var resourceParams = []resourceParam{
	{param: "stationId", logKey: "station_id", spanKey: "transit.station.id"},
	{param: "routeId", logKey: "route_id", spanKey: "transit.route.id"},
	{param: "sessionId", logKey: "session_id", spanKey: "widget.session.id"},
}

// resourceID is a URL parameter value found on the matched route.
type resourceID struct {
	resourceParam
	value string
}

// routePattern returns the matched chi route pattern, or "" when the request
// was not routed by chi or matched nothing. Only valid after the request has
// been served.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return ""
	}
	return rctx.RoutePattern()
}

// resourceIDs returns the station, route and session identifiers addressed
// by the request.
func resourceIDs(r *http.Request) []resourceID {
	var ids []resourceID
	for _, p := range resourceParams {
		if v := chi.URLParam(r, p.param); v != "" {
			ids = append(ids, resourceID{resourceParam: p, value: v})
		}
	}
	return ids
}

// statusRecorder captures the status code and body size of a response.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	written     int64
	wroteHeader bool
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (rw *statusRecorder) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
