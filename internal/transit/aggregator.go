package transit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// Source identifies where board entries came from.
type Source string

const (
	SourcePredictions Source = "predictions"
	SourceSchedules   Source = "schedules"
)

// BranchRule composes "Family-X" labels for one-letter branches of a multi-branch line.
type BranchRule struct {
	// Indicator is matched against the route long name (e.g., "Green Line").
	Indicator string

	// Family prefixes the branch letter (e.g., "Green").
	Family string
}

// DefaultBranchRule matches Green Line branches.
var DefaultBranchRule = BranchRule{Indicator: "Green Line", Family: "Green"}

// Label returns the display label for a route. Nil routes yield "".
func (b BranchRule) Label(route *Route) string {
	if route == nil {
		return ""
	}
	if b.Indicator != "" && strings.Contains(route.LongName, b.Indicator) &&
		utf8.RuneCountInString(route.ShortName) == 1 {
		return b.Family + "-" + route.ShortName
	}
	if route.ShortName != "" {
		return route.ShortName
	}
	return route.LongName
}

// RouteLabel applies DefaultBranchRule.
func RouteLabel(route *Route) string {
	return DefaultBranchRule.Label(route)
}

// BoardData is the enriched, filtered and sorted result of one aggregation.
type BoardData struct {
	StationID   string
	Predictions []EnrichedPrediction
	Source      Source
	EvaluatedAt time.Time
}

// AggregatorConfig holds configuration for the prediction aggregator.
type AggregatorConfig struct {
	// Provider is the transit data provider.
	Provider Provider

	// Logger for aggregator operations.
	Logger zerolog.Logger

	// Branch is the branch label rule (default: DefaultBranchRule).
	Branch *BranchRule

	// ScheduleFallback enables the schedules endpoint when no predictions exist.
	ScheduleFallback bool

	// Now returns the evaluation instant (default: time.Now).
	Now func() time.Time
}

// Aggregator loads and enriches departures for a station.
type Aggregator struct {
	provider         Provider
	logger           zerolog.Logger
	branch           BranchRule
	scheduleFallback bool
	now              func() time.Time
}

// NewAggregator creates a new prediction aggregator.
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	branch := DefaultBranchRule
	if cfg.Branch != nil {
		branch = *cfg.Branch
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Aggregator{
		provider:         cfg.Provider,
		logger:           cfg.Logger,
		branch:           branch,
		scheduleFallback: cfg.ScheduleFallback,
		now:              now,
	}
}

// Branch returns the branch label rule in use.
func (a *Aggregator) Branch() BranchRule {
	return a.branch
}

// LoadBoard fetches predictions for stationID and returns the displayable
// ones, enriched and sorted by departure. Gateway failures are returned as
// errors; no stale data is substituted.
func (a *Aggregator) LoadBoard(ctx context.Context, stationID string) (*BoardData, error) {
	set, err := a.provider.Predictions(ctx, stationID)
	if err != nil {
		a.logger.Error().Err(err).
			Str("station_id", stationID).
			Str("provider", a.provider.Name()).
			Msg("failed to fetch predictions")
		return nil, fmt.Errorf("fetching predictions: %w", err)
	}

	source := SourcePredictions
	if len(set.Predictions) == 0 && a.scheduleFallback {
		set, err = a.provider.Schedules(ctx, stationID)
		if err != nil {
			a.logger.Error().Err(err).
				Str("station_id", stationID).
				Msg("failed to fetch schedules")
			return nil, fmt.Errorf("fetching schedules: %w", err)
		}
		source = SourceSchedules
	}

	now := a.now()
	enriched := a.Enrich(set, now)

	a.logger.Debug().
		Str("station_id", stationID).
		Str("source", string(source)).
		Int("fetched", len(set.Predictions)).
		Int("displayable", len(enriched)).
		Msg("board loaded")

	return &BoardData{
		StationID:   stationID,
		Predictions: enriched,
		Source:      source,
		EvaluatedAt: now,
	}, nil
}

// Enrich filters set to predictions displayable at now, joins each with its
// route and trip, and sorts them by departure. Lookup maps are local to the call.
func (a *Aggregator) Enrich(set *PredictionSet, now time.Time) []EnrichedPrediction {
	routes := make(map[string]*Route, len(set.Routes))
	for _, r := range set.Routes {
		routes[r.ID] = r
	}
	trips := make(map[string]*Trip, len(set.Trips))
	for _, t := range set.Trips {
		trips[t.ID] = t
	}

	enriched := make([]EnrichedPrediction, 0, len(set.Predictions))
	for _, p := range set.Predictions {
		if !p.Displayable(now) {
			continue
		}
		ep := EnrichedPrediction{
			Prediction: p,
			Route:      routes[p.RouteID],
			Trip:       trips[p.TripID],
		}
		ep.RouteLabel = a.branch.Label(ep.Route)
		enriched = append(enriched, ep)
	}

	sort.SliceStable(enriched, func(i, j int) bool {
		return enriched[i].Prediction.DepartureTime.Before(*enriched[j].Prediction.DepartureTime)
	})

	return enriched
}
