package transit

import (
	"strings"
	"time"

	"github.com/stationboard/stationboard/pkg/geo"
)

// LocationType is the GTFS location_type of a stop record.
type LocationType int

const (
	LocationStop         LocationType = 0 // Platform or stop
	LocationStation      LocationType = 1 // Parent station
	LocationEntrance     LocationType = 2 // Entrance or exit
	LocationGenericNode  LocationType = 3
	LocationBoardingArea LocationType = 4
)

// placePrefix marks parent station identifiers ("place-pktrm").
const placePrefix = "place-"

// Station represents a stop record. Only parent stations qualify for a board.
type Station struct {
	// ID is the stop identifier (e.g., "place-pktrm").
	ID string `json:"id"`

	// Name is the display name.
	Name string `json:"name"`

	// Lat/Lon for geolocation.
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`

	// LocationType is the GTFS location type.
	LocationType LocationType `json:"locationType"`

	// ParentStationID links a platform to its station (empty for stations).
	ParentStationID string `json:"parentStationId,omitempty"`

	// DistanceKm is the client-side distance from the search origin, when known.
	DistanceKm *float64 `json:"distanceKm,omitempty"`

	// Platforms lists child stops, populated only by station detail lookups.
	Platforms []*Station `json:"platforms,omitempty"`
}

// IsStation reports whether the record is a parent/station-level entry.
func (s *Station) IsStation() bool {
	return s.LocationType == LocationStation || strings.HasPrefix(s.ID, placePrefix)
}

// Coordinate returns the station position.
func (s *Station) Coordinate() geo.Coordinate {
	return geo.Coordinate{Lat: s.Lat, Lon: s.Lon}
}

// Schedule relationships that remove a trip from service.
const (
	RelationshipCancelled = "CANCELLED"
	RelationshipSkipped   = "SKIPPED"
)

// Direction ids.
const (
	DirectionOutbound = 0
	DirectionInbound  = 1
)

// Prediction is a real-time (or scheduled) departure estimate at a stop.
// Only meaningful relative to the instant it was fetched.
type Prediction struct {
	ID                   string
	ArrivalTime          *time.Time
	DepartureTime        *time.Time
	DirectionID          int
	ScheduleRelationship string
	Status               string
	StopID               string
	RouteID              string
	TripID               string
}

// Displayable reports whether the prediction passes the validity filter at now:
// it has a departure time, is not cancelled or skipped, and has not departed.
func (p *Prediction) Displayable(now time.Time) bool {
	if p.DepartureTime == nil {
		return false
	}
	switch p.ScheduleRelationship {
	case RelationshipCancelled, RelationshipSkipped:
		return false
	}
	return !p.DepartureTime.Before(now)
}

// RouteType is the GTFS route type.
type RouteType int

const (
	RouteTypeLightRail RouteType = 0
	RouteTypeSubway    RouteType = 1
	RouteTypeRail      RouteType = 2
	RouteTypeBus       RouteType = 3
	RouteTypeFerry     RouteType = 4
)

// Route is reference data shared by many predictions within one fetch.
type Route struct {
	ID                    string    `json:"id"`
	ShortName             string    `json:"shortName"`
	LongName              string    `json:"longName"`
	Color                 string    `json:"color,omitempty"`
	TextColor             string    `json:"textColor,omitempty"`
	Type                  RouteType `json:"type"`
	DirectionNames        []string  `json:"directionNames,omitempty"`
	DirectionDestinations []string  `json:"directionDestinations,omitempty"`
}

// Trip is reference data for a single vehicle run.
type Trip struct {
	ID          string
	Headsign    string
	Name        string
	DirectionID int
}

// EnrichedPrediction joins a prediction with its route and trip. Route and
// Trip are nil when the reference record was not part of the fetch.
type EnrichedPrediction struct {
	Prediction Prediction

	Route *Route
	Trip  *Trip

	// RouteLabel is the display label for the route (branch rule applied).
	RouteLabel string
}

// Severity bands for alerts.
type SeverityBand string

const (
	BandNone   SeverityBand = ""
	BandMinor  SeverityBand = "minor"
	BandMajor  SeverityBand = "major"
	BandSevere SeverityBand = "severe"
)

// SeverityBandFor maps an alert severity (1-10) to its presentation band.
// Severities below 3 have no band and are never shown.
func SeverityBandFor(severity int) SeverityBand {
	switch {
	case severity >= 7:
		return BandSevere
	case severity >= 5:
		return BandMajor
	case severity >= 3:
		return BandMinor
	default:
		return BandNone
	}
}

// ActivePeriod is a window during which an alert applies. End is nil when open-ended.
type ActivePeriod struct {
	Start time.Time
	End   *time.Time
}

// Alert represents a service disruption notice.
type Alert struct {
	// ID is the unique identifier for this alert.
	ID string

	// Header is the short summary.
	Header string

	// Description provides detailed information.
	Description string

	// Severity ranges 1-10, higher is more severe.
	Severity int

	// Effect categorizes the alert (e.g., "DELAY", "SHUTTLE").
	Effect string

	// Lifecycle is the alert stage (e.g., "NEW", "ONGOING").
	Lifecycle string

	ActivePeriods []ActivePeriod

	// RouteIDs lists the routes the alert is attached to.
	RouteIDs []string
}

// Band returns the presentation band for the alert.
func (a *Alert) Band() SeverityBand {
	return SeverityBandFor(a.Severity)
}

// IsActive returns true if any active period covers t. Alerts without
// periods are treated as active.
func (a *Alert) IsActive(t time.Time) bool {
	if len(a.ActivePeriods) == 0 {
		return true
	}
	for _, p := range a.ActivePeriods {
		if t.Before(p.Start) {
			continue
		}
		if p.End != nil && t.After(*p.End) {
			continue
		}
		return true
	}
	return false
}

// AffectsRoute returns true if the alert is attached to the given route.
func (a *Alert) AffectsRoute(routeID string) bool {
	for _, r := range a.RouteIDs {
		if r == routeID {
			return true
		}
	}
	return false
}
