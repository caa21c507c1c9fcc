package models

// SessionCreateRequest starts a widget session at a position.
type SessionCreateRequest struct {
	Lat *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lon *float64 `json:"lon" validate:"required,gte=-180,lte=180"`
}

// LocationUpdateRequest moves a session to a new position.
type LocationUpdateRequest = SessionCreateRequest

// SessionLocation is the location request state of a session.
type SessionLocation struct {
	State       string     `json:"state"`
	Coordinate  *Point     `json:"coordinate,omitempty"`
	Error       string     `json:"error,omitempty"`
	RequestedAt *Timestamp `json:"requestedAt,omitempty"`
	ResolvedAt  *Timestamp `json:"resolvedAt,omitempty"`
}

// Session is a snapshot of a live widget session.
type Session struct {
	ID         string          `json:"id"`
	Status     string          `json:"status"`
	Location   SessionLocation `json:"location"`
	Station    *Station        `json:"station,omitempty"`
	Board      *Board          `json:"board,omitempty"`
	Alerts     []Alert         `json:"alerts"`
	AlertBand  string          `json:"alertBand,omitempty"`
	Error      string          `json:"error,omitempty"`
	UpdatedAt  *Timestamp      `json:"updatedAt,omitempty"`
	Generation uint64          `json:"generation"`
}
