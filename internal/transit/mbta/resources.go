package mbta

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/stationboard/stationboard/internal/transit"
)

// JSON:API envelope.

type document struct {
	Data     json.RawMessage `json:"data" validate:"required"`
	Included []resource      `json:"included" validate:"dive"`
}

type resource struct {
	ID            string                  `json:"id" validate:"required"`
	Type          string                  `json:"type" validate:"required"`
	Attributes    json.RawMessage         `json:"attributes"`
	Relationships map[string]relationship `json:"relationships"`
}

type relationship struct {
	Data json.RawMessage `json:"data"`
}

type linkage struct {
	ID   string `json:"id" validate:"required"`
	Type string `json:"type"`
}

var (
	null                 = []byte("null")
	errMissingAttributes = errors.New("missing attributes")
)

// primary returns the document's data as a list; single-resource documents yield one element.
func (d *document) primary(v *validator.Validate) ([]resource, error) {
	raw := bytes.TrimSpace(d.Data)
	if len(raw) == 0 || bytes.Equal(raw, null) {
		return nil, nil
	}

	var list []resource
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, malformed("data", err)
		}
	} else {
		var one resource
		if err := json.Unmarshal(raw, &one); err != nil {
			return nil, malformed("data", err)
		}
		list = []resource{one}
	}

	for i := range list {
		if err := v.Struct(&list[i]); err != nil {
			return nil, malformed("data", err)
		}
	}
	return list, nil
}

// ids returns the linked resource ids; to-one and to-many linkages are both accepted.
func (r relationship) ids() []string {
	raw := bytes.TrimSpace(r.Data)
	if len(raw) == 0 || bytes.Equal(raw, null) {
		return nil
	}
	if raw[0] == '[' {
		var many []linkage
		if err := json.Unmarshal(raw, &many); err != nil {
			return nil
		}
		ids := make([]string, 0, len(many))
		for _, l := range many {
			if l.ID != "" {
				ids = append(ids, l.ID)
			}
		}
		return ids
	}
	var one linkage
	if err := json.Unmarshal(raw, &one); err != nil || one.ID == "" {
		return nil
	}
	return []string{one.ID}
}

func (r *resource) related(name string) string {
	rel, ok := r.Relationships[name]
	if !ok {
		return ""
	}
	if ids := rel.ids(); len(ids) > 0 {
		return ids[0]
	}
	return ""
}

// attributes decodes and validates r's attributes into T.
func attributes[T any](v *validator.Validate, r *resource) (*T, error) {
	var attrs T
	if len(r.Attributes) == 0 {
		return nil, malformed(r.Type+" "+r.ID, errMissingAttributes)
	}
	if err := json.Unmarshal(r.Attributes, &attrs); err != nil {
		return nil, malformed(r.Type+" "+r.ID, err)
	}
	if err := v.Struct(&attrs); err != nil {
		return nil, malformed(r.Type+" "+r.ID, err)
	}
	return &attrs, nil
}

func malformed(where string, err error) error {
	return fmt.Errorf("%w: %s: %v", transit.ErrMalformedResponse, where, err)
}

// Per-resource schemas.

type stopAttributes struct {
	Name         string  `json:"name" validate:"required"`
	Latitude     float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude    float64 `json:"longitude" validate:"gte=-180,lte=180"`
	LocationType int     `json:"location_type" validate:"gte=0,lte=4"`
}

type predictionAttributes struct {
	ArrivalTime          *string `json:"arrival_time"`
	DepartureTime        *string `json:"departure_time"`
	DirectionID          int     `json:"direction_id" validate:"oneof=0 1"`
	ScheduleRelationship *string `json:"schedule_relationship"`
	Status               *string `json:"status"`
}

type scheduleAttributes struct {
	ArrivalTime   *string `json:"arrival_time"`
	DepartureTime *string `json:"departure_time"`
	DirectionID   int     `json:"direction_id" validate:"oneof=0 1"`
}

type routeAttributes struct {
	ShortName             string   `json:"short_name"`
	LongName              string   `json:"long_name"`
	Color                 string   `json:"color" validate:"omitempty,hexadecimal"`
	TextColor             string   `json:"text_color" validate:"omitempty,hexadecimal"`
	Type                  int      `json:"type" validate:"gte=0"`
	DirectionNames        []string `json:"direction_names"`
	DirectionDestinations []string `json:"direction_destinations"`
}

type tripAttributes struct {
	Headsign    string `json:"headsign"`
	Name        string `json:"name"`
	DirectionID int    `json:"direction_id" validate:"oneof=0 1"`
}

type alertAttributes struct {
	Header         string           `json:"header" validate:"required"`
	Description    *string          `json:"description"`
	Severity       int              `json:"severity" validate:"gte=0,lte=10"`
	Effect         string           `json:"effect"`
	Lifecycle      string           `json:"lifecycle"`
	ActivePeriod   []activePeriod   `json:"active_period" validate:"dive"`
	InformedEntity []informedEntity `json:"informed_entity"`
}

type activePeriod struct {
	Start string  `json:"start" validate:"required"`
	End   *string `json:"end"`
}

type informedEntity struct {
	Route string `json:"route"`
	Stop  string `json:"stop"`
}

// Mapping to the domain model.

func toStation(v *validator.Validate, r *resource) (*transit.Station, error) {
	attrs, err := attributes[stopAttributes](v, r)
	if err != nil {
		return nil, err
	}
	return &transit.Station{
		ID:              r.ID,
		Name:            attrs.Name,
		Lat:             attrs.Latitude,
		Lon:             attrs.Longitude,
		LocationType:    transit.LocationType(attrs.LocationType),
		ParentStationID: r.related("parent_station"),
	}, nil
}

func toPrediction(v *validator.Validate, r *resource) (*transit.Prediction, error) {
	attrs, err := attributes[predictionAttributes](v, r)
	if err != nil {
		return nil, err
	}
	p := &transit.Prediction{
		ID:                   r.ID,
		DirectionID:          attrs.DirectionID,
		ScheduleRelationship: deref(attrs.ScheduleRelationship),
		Status:               deref(attrs.Status),
		StopID:               r.related("stop"),
		RouteID:              r.related("route"),
		TripID:               r.related("trip"),
	}
	if p.ArrivalTime, err = parseTime(attrs.ArrivalTime); err != nil {
		return nil, malformed("prediction "+r.ID, err)
	}
	if p.DepartureTime, err = parseTime(attrs.DepartureTime); err != nil {
		return nil, malformed("prediction "+r.ID, err)
	}
	return p, nil
}

func toScheduled(v *validator.Validate, r *resource) (*transit.Prediction, error) {
	attrs, err := attributes[scheduleAttributes](v, r)
	if err != nil {
		return nil, err
	}
	p := &transit.Prediction{
		ID:          r.ID,
		DirectionID: attrs.DirectionID,
		StopID:      r.related("stop"),
		RouteID:     r.related("route"),
		TripID:      r.related("trip"),
	}
	if p.ArrivalTime, err = parseTime(attrs.ArrivalTime); err != nil {
		return nil, malformed("schedule "+r.ID, err)
	}
	if p.DepartureTime, err = parseTime(attrs.DepartureTime); err != nil {
		return nil, malformed("schedule "+r.ID, err)
	}
	return p, nil
}

func toRoute(v *validator.Validate, r *resource) (*transit.Route, error) {
	attrs, err := attributes[routeAttributes](v, r)
	if err != nil {
		return nil, err
	}
	return &transit.Route{
		ID:                    r.ID,
		ShortName:             attrs.ShortName,
		LongName:              attrs.LongName,
		Color:                 attrs.Color,
		TextColor:             attrs.TextColor,
		Type:                  transit.RouteType(attrs.Type),
		DirectionNames:        attrs.DirectionNames,
		DirectionDestinations: attrs.DirectionDestinations,
	}, nil
}

func toTrip(v *validator.Validate, r *resource) (*transit.Trip, error) {
	attrs, err := attributes[tripAttributes](v, r)
	if err != nil {
		return nil, err
	}
	return &transit.Trip{
		ID:          r.ID,
		Headsign:    attrs.Headsign,
		Name:        attrs.Name,
		DirectionID: attrs.DirectionID,
	}, nil
}

func toAlert(v *validator.Validate, r *resource) (*transit.Alert, error) {
	attrs, err := attributes[alertAttributes](v, r)
	if err != nil {
		return nil, err
	}

	alert := &transit.Alert{
		ID:          r.ID,
		Header:      attrs.Header,
		Description: deref(attrs.Description),
		Severity:    attrs.Severity,
		Effect:      attrs.Effect,
		Lifecycle:   attrs.Lifecycle,
	}

	for _, ap := range attrs.ActivePeriod {
		start, err := time.Parse(time.RFC3339, ap.Start)
		if err != nil {
			return nil, malformed("alert "+r.ID, err)
		}
		end, err := parseTime(ap.End)
		if err != nil {
			return nil, malformed("alert "+r.ID, err)
		}
		alert.ActivePeriods = append(alert.ActivePeriods, transit.ActivePeriod{Start: start, End: end})
	}

	seen := make(map[string]bool)
	addRoute := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			alert.RouteIDs = append(alert.RouteIDs, id)
		}
	}
	for _, e := range attrs.InformedEntity {
		addRoute(e.Route)
	}
	if rel, ok := r.Relationships["routes"]; ok {
		for _, id := range rel.ids() {
			addRoute(id)
		}
	}

	return alert, nil
}

func parseTime(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
