package handler

import (
	"github.com/stationboard/stationboard/internal/api/models"
	"github.com/stationboard/stationboard/internal/transit"
	"github.com/stationboard/stationboard/internal/widget"
)

func toStation(s *transit.Station) models.Station {
	out := models.Station{
		ID:           s.ID,
		Name:         s.Name,
		Location:     models.Point{Lat: s.Lat, Lon: s.Lon},
		LocationType: int(s.LocationType),
		ParentID:     s.ParentStationID,
		DistanceKm:   s.DistanceKm,
	}
	for _, p := range s.Platforms {
		out.Platforms = append(out.Platforms, toStation(p))
	}
	return out
}

func toDirection(d transit.DirectionBoard) models.DirectionBoard {
	out := models.DirectionBoard{
		DirectionID: d.DirectionID,
		Direction:   models.DirectionOutbound,
		Departures:  make([]models.Departure, 0, len(d.Departures)),
		Message:     d.Message,
	}
	if d.DirectionID == transit.DirectionInbound {
		out.Direction = models.DirectionInbound
	}
	for _, row := range d.Departures {
		out.Departures = append(out.Departures, models.Departure{
			PredictionID:  row.PredictionID,
			RouteID:       row.RouteID,
			RouteLabel:    row.RouteLabel,
			RouteColor:    row.RouteColor,
			TextColor:     row.TextColor,
			Headsign:      row.Headsign,
			DepartureTime: models.Timestamp(row.DepartureTime),
			Label:         row.Label,
		})
	}
	return out
}

func toBoard(b *transit.Board) models.Board {
	out := models.Board{
		Inbound:     toDirection(b.Inbound),
		Outbound:    toDirection(b.Outbound),
		Source:      string(b.Source),
		GeneratedAt: models.Timestamp(b.GeneratedAt),
	}
	if b.Station != nil {
		out.Station = toStation(b.Station)
	}
	return out
}

func toAlerts(alerts []*transit.Alert) []models.Alert {
	out := make([]models.Alert, 0, len(alerts))
	for _, a := range alerts {
		alert := models.Alert{
			ID:          a.ID,
			Header:      a.Header,
			Description: a.Description,
			Severity:    a.Severity,
			Band:        string(a.Band()),
			Effect:      a.Effect,
			Lifecycle:   a.Lifecycle,
			RouteIDs:    a.RouteIDs,
		}
		for _, p := range a.ActivePeriods {
			alert.ActivePeriods = append(alert.ActivePeriods, models.ActivePeriod{
				Start: models.Timestamp(p.Start),
				End:   models.TimestampPtr(p.End),
			})
		}
		out = append(out, alert)
	}
	return out
}

func toRoute(r *transit.Route, branch transit.BranchRule) models.Route {
	return models.Route{
		ID:                    r.ID,
		Label:                 branch.Label(r),
		ShortName:             r.ShortName,
		LongName:              r.LongName,
		Color:                 r.Color,
		TextColor:             r.TextColor,
		Type:                  int(r.Type),
		DirectionNames:        r.DirectionNames,
		DirectionDestinations: r.DirectionDestinations,
	}
}

func toSession(s widget.Snapshot) models.Session {
	out := models.Session{
		ID:     s.ID,
		Status: string(s.Status),
		Location: models.SessionLocation{
			State:       string(s.Location.State),
			Error:       s.Location.Error,
			RequestedAt: models.TimestampPtr(s.Location.RequestedAt),
			ResolvedAt:  models.TimestampPtr(s.Location.ResolvedAt),
		},
		Alerts:     toAlerts(s.Alerts),
		AlertBand:  string(s.AlertBand),
		Error:      s.Error,
		UpdatedAt:  models.TimestampPtr(s.UpdatedAt),
		Generation: s.Generation,
	}
	if c := s.Location.Coordinate; c != nil {
		out.Location.Coordinate = &models.Point{Lat: c.Lat, Lon: c.Lon}
	}
	if s.Station != nil {
		st := toStation(s.Station)
		out.Station = &st
	}
	if s.Board != nil {
		b := toBoard(s.Board)
		out.Board = &b
	}
	return out
}
