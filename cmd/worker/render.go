package main

import (
	"github.com/rs/zerolog"

	"github.com/stationboard/stationboard/internal/transit"
	"github.com/stationboard/stationboard/internal/widget"
)

// logBoard writes one log line per direction row of the snapshot.
func logBoard(log zerolog.Logger, snap widget.Snapshot) {
	event := log.Info().Str("status", string(snap.Status))
	if snap.Station != nil {
		event = event.Str("station", snap.Station.Name)
	}
	if snap.AlertBand != transit.BandNone {
		event = event.Str("alert_band", string(snap.AlertBand)).Int("alerts", len(snap.Alerts))
	}
	if snap.Error != "" {
		event = event.Str("error", snap.Error)
	}
	event.Msg("board")

	if snap.Board == nil {
		return
	}
	logDirection(log, "inbound", snap.Board.Inbound)
	logDirection(log, "outbound", snap.Board.Outbound)
}

func logDirection(log zerolog.Logger, name string, d transit.DirectionBoard) {
	if len(d.Departures) == 0 {
		log.Info().Str("direction", name).Msg(d.Message)
		return
	}
	for _, row := range d.Departures {
		log.Info().
			Str("direction", name).
			Str("route", row.RouteLabel).
			Str("headsign", row.Headsign).
			Str("label", row.Label).
			Msg("departure")
	}
}
