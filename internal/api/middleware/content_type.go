package middleware

import (
	"mime"
	"net/http"

	"github.com/stationboard/stationboard/internal/api/models"
)

// ContentTypeJSON defaults the response Content-Type to application/json.
// Handlers that set their own (problem documents) keep it.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/json")
		}
		next.ServeHTTP(w, r)
	})
}

// RequireJSON rejects POST, PUT and PATCH bodies declared as anything other
// than JSON with a 415 problem. Requests without a Content-Type pass, since
// session refresh posts carry no body.
func RequireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
		default:
			next.ServeHTTP(w, r)
			return
		}

		contentType := r.Header.Get("Content-Type")
		if contentType == "" {
			next.ServeHTTP(w, r)
			return
		}
		if mediaType, _, err := mime.ParseMediaType(contentType); err == nil && mediaType == "application/json" {
			next.ServeHTTP(w, r)
			return
		}

		problem := models.NewProblem(
			models.ProblemTypeMediaType,
			"Unsupported media type",
			http.StatusUnsupportedMediaType,
			GetRequestID(r.Context()),
		)
		problem.Detail = "Coordinates must be sent as application/json"
		problem.Instance = r.URL.Path
		problem.Write(w)
	})
}
