package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog"

	"github.com/stationboard/stationboard/internal/api/models"
)

// Recovery returns a middleware that turns handler panics into a 500 problem
// document. The panic is logged with the route and any station, route or
// session it addressed. http.ErrAbortHandler is re-raised so the server can
// drop the connection.
func Recovery(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := newStatusRecorder(w)

			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if err, ok := v.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(v)
				}

				requestID := GetRequestID(r.Context())
				event := log.Error().
					Str("request_id", requestID).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("route", routePattern(r)).
					Interface("panic", v).
					Str("stack", string(debug.Stack()))
				for _, id := range resourceIDs(r) {
					event = event.Str(id.logKey, id.value)
				}
				event.Msg("panic recovered")

				// A partially written response cannot be replaced.
				if rec.wroteHeader {
					return
				}
				problem := models.NewInternalError(requestID, "an unexpected error occurred")
				problem.Instance = r.URL.Path
				problem.Write(rec)
			}()

			next.ServeHTTP(rec, r)
		})
	}
}
