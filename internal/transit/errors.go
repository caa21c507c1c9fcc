package transit

import (
	"errors"
	"fmt"
)

// Transit errors.
var (
	// ErrNoQualifyingStation is returned when no station-level stop lies within the search radius.
	ErrNoQualifyingStation = errors.New("no qualifying station nearby")

	// ErrInvalidCoordinate is returned for out-of-range search origins.
	ErrInvalidCoordinate = errors.New("invalid coordinate")

	// ErrMalformedResponse is returned when a response fails schema validation.
	ErrMalformedResponse = errors.New("malformed transit response")
)

// ServiceError is a non-success response from the transit data service.
type ServiceError struct {
	StatusCode int
	Path       string
}

func (e *ServiceError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("transit service error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("transit service error: status %d for %s", e.StatusCode, e.Path)
}

// AsServiceError extracts a *ServiceError from err's chain.
func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
