package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/stationboard/stationboard/internal/api/models"
	"github.com/stationboard/stationboard/internal/api/response"
	"github.com/stationboard/stationboard/internal/provider/resilience"
	"github.com/stationboard/stationboard/internal/transit"
)

// upstreamRetryAfter is the Retry-After hint for transit data failures, in
// seconds. It matches the board refresh period.
const upstreamRetryAfter = 30

// writeTransitError maps a core error onto a problem response.
func writeTransitError(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, err error) {
	var svcErr *transit.ServiceError

	switch {
	case errors.Is(err, transit.ErrInvalidCoordinate):
		response.BadRequest(w, r, err.Error(), nil)
	case errors.Is(err, transit.ErrNoQualifyingStation):
		response.NoStation(w, r, "no station found near the given position")
	case errors.As(err, &svcErr) && svcErr.StatusCode == http.StatusNotFound:
		response.NotFound(w, r, "resource not found")
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to write.
		logger.Debug().Err(err).Msg("request cancelled")
	case errors.Is(err, resilience.ErrCircuitOpen):
		logger.Warn().Err(err).Msg("transit provider circuit open")
		response.BadGateway(w, r, "transit data service is temporarily unavailable", upstreamRetryAfter)
	default:
		logger.Error().Err(err).Msg("transit request failed")
		response.BadGateway(w, r, "transit data service request failed", upstreamRetryAfter)
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateBody validates a decoded request body and writes a 400 on failure.
func validateBody(w http.ResponseWriter, r *http.Request, body any) bool {
	err := validate.Struct(body)
	if err == nil {
		return true
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		response.BadRequest(w, r, "invalid request body", nil)
		return false
	}

	fieldErrors := make([]models.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fieldErrors = append(fieldErrors, models.FieldError{
			Field:   lowerFirst(fe.Field()),
			Message: fieldMessage(fe),
			Code:    strings.ToUpper(fe.Tag()),
		})
	}
	response.BadRequest(w, r, "request validation failed", fieldErrors)
	return false
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
