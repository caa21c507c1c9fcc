package middleware

import (
	"net/http"

	"github.com/stationboard/stationboard/internal/api/models"
)

// SecurityHeaders adds standard security headers to all HTTP responses.
// The API only serves JSON, so framing and every other content source are
// refused. The widget reads the API over CORS and is unaffected.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		// Positions arrive in request bodies; the API never asks the browser.
		h.Set("Permissions-Policy", "geolocation=(), camera=(), microphone=()")

		next.ServeHTTP(w, r)
	})
}

// RequireTLS rejects plain-HTTP requests forwarded by a load balancer when
// enabled. Requests without X-Forwarded-Proto (direct connections) and health
// checks pass through.
func RequireTLS(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			proto := r.Header.Get("X-Forwarded-Proto")
			if proto == "" || proto == "https" || r.URL.Path == healthPath {
				next.ServeHTTP(w, r)
				return
			}

			problem := models.NewProblem(
				models.ProblemTypeTLSRequired,
				"TLS required",
				http.StatusForbidden,
				GetRequestID(r.Context()),
			)
			problem.Detail = "Departure boards are only served over HTTPS"
			problem.Instance = r.URL.Path
			problem.Write(w)
		})
	}
}
