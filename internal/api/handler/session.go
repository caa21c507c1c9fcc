package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/stationboard/stationboard/internal/api/models"
	"github.com/stationboard/stationboard/internal/api/response"
	"github.com/stationboard/stationboard/internal/transit"
	"github.com/stationboard/stationboard/internal/widget"
	"github.com/stationboard/stationboard/pkg/geo"
)

// SessionHandler manages live widget sessions.
type SessionHandler struct {
	manager *widget.Manager
	logger  zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(manager *widget.Manager, logger zerolog.Logger) *SessionHandler {
	return &SessionHandler{manager: manager, logger: logger}
}

// Create handles POST /v1/sessions - start a session at a position.
// The session is created even if no station is nearby; its status reports
// no-station or error.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	c, ok := decodeCoordinate(w, r)
	if !ok {
		return
	}

	s, err := h.manager.Create(r.Context(), c)
	switch {
	case err == nil:
	case errors.Is(err, transit.ErrInvalidCoordinate):
		response.BadRequest(w, r, err.Error(), nil)
		return
	case errors.Is(err, widget.ErrTooManySessions), errors.Is(err, widget.ErrManagerClosed):
		response.ServiceUnavailable(w, r, "no session capacity available")
		return
	default:
		response.InternalError(w, r, "failed to create session")
		return
	}

	response.Created(w, r, "/v1/sessions/"+s.ID(), toSession(s.Snapshot()))
}

// Get handles GET /v1/sessions/{sessionId} - current session snapshot.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	response.JSON(w, r, http.StatusOK, toSession(s.Snapshot()))
}

// Refresh handles POST /v1/sessions/{sessionId}/refresh - reload now.
// The reload is asynchronous; poll the session for the result.
func (h *SessionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	s.RefreshNow()
	response.Accepted(w, r, "/v1/sessions/"+s.ID(), toSession(s.Snapshot()))
}

// ChangeLocation handles PUT /v1/sessions/{sessionId}/location - move the
// session and reset its station, board and alerts.
func (h *SessionHandler) ChangeLocation(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	c, ok := decodeCoordinate(w, r)
	if !ok {
		return
	}

	if err := s.ChangeLocation(r.Context(), c); err != nil {
		if errors.Is(err, transit.ErrInvalidCoordinate) {
			response.BadRequest(w, r, err.Error(), nil)
			return
		}
		// Resolution failures are reported through the session status.
		h.logger.Warn().Err(err).Str("session_id", s.ID()).Msg("location change failed")
	}
	response.JSON(w, r, http.StatusOK, toSession(s.Snapshot()))
}

// Delete handles DELETE /v1/sessions/{sessionId} - stop the session.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	if err := h.manager.Delete(sessionID); err != nil {
		response.NotFound(w, r, "session not found")
		return
	}
	response.NoContent(w, r)
}

func (h *SessionHandler) session(w http.ResponseWriter, r *http.Request) (*widget.Session, bool) {
	sessionID := chi.URLParam(r, "sessionId")
	if sessionID == "" {
		response.BadRequest(w, r, "sessionId is required", nil)
		return nil, false
	}
	s, err := h.manager.Get(sessionID)
	if err != nil {
		response.NotFound(w, r, "session not found")
		return nil, false
	}
	return s, true
}

func decodeCoordinate(w http.ResponseWriter, r *http.Request) (geo.Coordinate, bool) {
	var input models.SessionCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return geo.Coordinate{}, false
	}
	if !validateBody(w, r, &input) {
		return geo.Coordinate{}, false
	}
	return geo.Coordinate{Lat: *input.Lat, Lon: *input.Lon}, true
}
