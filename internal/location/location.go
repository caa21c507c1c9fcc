// Package location provides the coordinate source for a widget session and
// tracks the permission/request lifecycle around it.
package location

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stationboard/stationboard/pkg/geo"
)

// DefaultTimeout bounds a single locate attempt.
const DefaultTimeout = 10 * time.Second

// Provider yields the device position.
type Provider interface {
	// Locate returns the current coordinates or an error, typically *UnavailableError.
	Locate(ctx context.Context) (geo.Coordinate, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (geo.Coordinate, error)

// Locate calls f.
func (f ProviderFunc) Locate(ctx context.Context) (geo.Coordinate, error) {
	return f(ctx)
}

// UnavailableError reports why no position could be obtained.
type UnavailableError struct {
	Reason string

	// Denied is true when the user refused permission.
	Denied bool
}

func (e *UnavailableError) Error() string {
	return "location unavailable: " + e.Reason
}

// Common unavailable errors.
var (
	ErrUnsupported = &UnavailableError{Reason: "geolocation is not supported"}
	ErrDenied      = &UnavailableError{Reason: "permission denied", Denied: true}
)

// IsDenied reports whether err is a permission denial.
func IsDenied(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue) && ue.Denied
}

// Static always returns the configured coordinate.
type Static struct {
	Coordinate geo.Coordinate
}

// Locate returns the configured coordinate, or an error if it is out of range.
func (s Static) Locate(_ context.Context) (geo.Coordinate, error) {
	if !s.Coordinate.Valid() {
		return geo.Coordinate{}, &UnavailableError{Reason: fmt.Sprintf("invalid coordinate %s", s.Coordinate)}
	}
	return s.Coordinate, nil
}

// Fixed holds client-supplied coordinates that can be replaced at runtime.
type Fixed struct {
	mu    sync.RWMutex
	coord *geo.Coordinate
}

// NewFixed creates a Fixed provider seeded with c.
func NewFixed(c geo.Coordinate) *Fixed {
	f := &Fixed{}
	f.Set(c)
	return f
}

// Set replaces the coordinates.
func (f *Fixed) Set(c geo.Coordinate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.coord = &c
}

// Locate returns the last set coordinates.
func (f *Fixed) Locate(_ context.Context) (geo.Coordinate, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.coord == nil {
		return geo.Coordinate{}, &UnavailableError{Reason: "no position reported"}
	}
	if !f.coord.Valid() {
		return geo.Coordinate{}, &UnavailableError{Reason: fmt.Sprintf("invalid coordinate %s", *f.coord)}
	}
	return *f.coord, nil
}

// Unsupported never yields a position.
type Unsupported struct{}

// Locate always fails with ErrUnsupported.
func (Unsupported) Locate(_ context.Context) (geo.Coordinate, error) {
	return geo.Coordinate{}, ErrUnsupported
}
