package transit

import (
	"fmt"
	"math"
	"time"
)

// Departure labels.
const (
	LabelDeparted = "Departed"
	LabelArriving = "ARR"
	LabelBoarding = "BRD"
	LabelOverflow = "20+ min"
	LabelNoTrains = "No trains"
	LabelUnknown  = "-"
)

// DefaultBoardLimit is the number of departures shown per direction.
const DefaultBoardLimit = 3

const (
	arrivingWithin = 30 * time.Second
	boardingWithin = 90 * time.Second
	maxMinutes     = 20
)

// FormatDeparture returns the countdown label for p evaluated at now.
//
// Thresholds are checked smallest first: negative is Departed, up to 30s is
// ARR, up to 90s is BRD, then whole minutes rounded up, capped at "20+ min".
// A non-empty status is returned verbatim.
func FormatDeparture(p *Prediction, now time.Time) string {
	if p.Status != "" {
		return p.Status
	}
	if p.DepartureTime == nil {
		return LabelUnknown
	}

	until := p.DepartureTime.Sub(now)
	switch {
	case until < 0:
		return LabelDeparted
	case until <= arrivingWithin:
		return LabelArriving
	case until <= boardingWithin:
		return LabelBoarding
	}

	minutes := int(math.Ceil(until.Seconds() / 60))
	if minutes > maxMinutes {
		return LabelOverflow
	}
	return fmt.Sprintf("%d min", minutes)
}

// DepartureRow is one rendered board line.
type DepartureRow struct {
	PredictionID  string
	RouteID       string
	RouteLabel    string
	RouteColor    string
	TextColor     string
	Headsign      string
	DepartureTime time.Time
	Label         string
}

// DirectionBoard lists the soonest departures for one direction.
type DirectionBoard struct {
	DirectionID int
	Departures  []DepartureRow

	// Message is LabelNoTrains when Departures is empty.
	Message string
}

// Board is the rendered departure board for a station.
type Board struct {
	Station     *Station
	Inbound     DirectionBoard
	Outbound    DirectionBoard
	Source      Source
	GeneratedAt time.Time
}

// Empty reports whether neither direction has departures.
func (b *Board) Empty() bool {
	return len(b.Inbound.Departures) == 0 && len(b.Outbound.Departures) == 0
}

// BuildBoard partitions data into inbound (direction 1) and outbound
// (direction 0) boards of at most limit rows each. Entries that are no longer
// displayable at now are dropped. limit <= 0 uses DefaultBoardLimit.
func BuildBoard(station *Station, data *BoardData, now time.Time, limit int) *Board {
	if limit <= 0 {
		limit = DefaultBoardLimit
	}

	board := &Board{
		Station:     station,
		Inbound:     DirectionBoard{DirectionID: DirectionInbound},
		Outbound:    DirectionBoard{DirectionID: DirectionOutbound},
		GeneratedAt: now,
	}

	if data != nil {
		board.Source = data.Source
		for i := range data.Predictions {
			ep := &data.Predictions[i]
			if !ep.Prediction.Displayable(now) {
				continue
			}

			var target *DirectionBoard
			switch ep.Prediction.DirectionID {
			case DirectionInbound:
				target = &board.Inbound
			case DirectionOutbound:
				target = &board.Outbound
			default:
				continue
			}
			if len(target.Departures) >= limit {
				continue
			}
			target.Departures = append(target.Departures, row(ep, now))
		}
	}

	for _, d := range []*DirectionBoard{&board.Inbound, &board.Outbound} {
		if len(d.Departures) == 0 {
			d.Message = LabelNoTrains
		}
	}

	return board
}

func row(ep *EnrichedPrediction, now time.Time) DepartureRow {
	r := DepartureRow{
		PredictionID:  ep.Prediction.ID,
		RouteID:       ep.Prediction.RouteID,
		RouteLabel:    ep.RouteLabel,
		DepartureTime: *ep.Prediction.DepartureTime,
		Label:         FormatDeparture(&ep.Prediction, now),
	}
	if ep.Route != nil {
		r.RouteColor = ep.Route.Color
		r.TextColor = ep.Route.TextColor
	}
	if ep.Trip != nil {
		r.Headsign = ep.Trip.Headsign
	}
	return r
}
