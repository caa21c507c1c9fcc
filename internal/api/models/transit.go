package models

// Station is a resolved transit station.
type Station struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Location     Point     `json:"location"`
	LocationType int       `json:"locationType"`
	ParentID     string    `json:"parentStationId,omitempty"`
	DistanceKm   *float64  `json:"distanceKm,omitempty"`
	Platforms    []Station `json:"platforms,omitempty"`
}

// StationList is the result of a nearest-station search, nearest first.
type StationList struct {
	Origin   Point     `json:"origin"`
	RadiusKm float64   `json:"radiusKm"`
	Items    []Station `json:"items"`
}

// Departure is one rendered board row.
type Departure struct {
	PredictionID  string    `json:"predictionId"`
	RouteID       string    `json:"routeId"`
	RouteLabel    string    `json:"routeLabel"`
	RouteColor    string    `json:"routeColor,omitempty"`
	TextColor     string    `json:"textColor,omitempty"`
	Headsign      string    `json:"headsign,omitempty"`
	DepartureTime Timestamp `json:"departureTime"`
	Label         string    `json:"label"`
}

// Direction names used on the board.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// DirectionBoard lists departures for one direction.
type DirectionBoard struct {
	DirectionID int         `json:"directionId"`
	Direction   string      `json:"direction"`
	Departures  []Departure `json:"departures"`
	Message     string      `json:"message,omitempty"`
}

// Board is a station departure board.
type Board struct {
	Station     Station        `json:"station"`
	Inbound     DirectionBoard `json:"inbound"`
	Outbound    DirectionBoard `json:"outbound"`
	Source      string         `json:"source,omitempty"`
	GeneratedAt Timestamp      `json:"generatedAt"`
}

// ActivePeriod is an alert's active window. An open end is omitted.
type ActivePeriod struct {
	Start Timestamp  `json:"start"`
	End   *Timestamp `json:"end,omitempty"`
}

// Alert is a service alert with its display band.
type Alert struct {
	ID            string         `json:"id"`
	Header        string         `json:"header"`
	Description   string         `json:"description,omitempty"`
	Severity      int            `json:"severity"`
	Band          string         `json:"band"`
	Effect        string         `json:"effect,omitempty"`
	Lifecycle     string         `json:"lifecycle,omitempty"`
	RouteIDs      []string       `json:"routeIds,omitempty"`
	ActivePeriods []ActivePeriod `json:"activePeriods,omitempty"`
}

// AlertList holds alerts, most severe first.
type AlertList struct {
	Band  string  `json:"band,omitempty"`
	Items []Alert `json:"items"`
}

// Route is a transit route.
type Route struct {
	ID                    string   `json:"id"`
	Label                 string   `json:"label"`
	ShortName             string   `json:"shortName,omitempty"`
	LongName              string   `json:"longName"`
	Color                 string   `json:"color,omitempty"`
	TextColor             string   `json:"textColor,omitempty"`
	Type                  int      `json:"type"`
	DirectionNames        []string `json:"directionNames,omitempty"`
	DirectionDestinations []string `json:"directionDestinations,omitempty"`
}

// RouteList holds routes.
type RouteList struct {
	Items []Route `json:"items"`
}
