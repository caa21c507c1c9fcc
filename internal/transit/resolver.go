package transit

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/stationboard/stationboard/pkg/geo"
)

// DefaultSearchRadiusKm matches a 0.02 degree stop search.
const DefaultSearchRadiusKm = 2.2264

// ResolverConfig holds configuration for the station resolver.
type ResolverConfig struct {
	// Provider is the transit data provider.
	Provider Provider

	// Logger for resolver operations.
	Logger zerolog.Logger

	// RadiusKm is the default search radius (default: DefaultSearchRadiusKm).
	RadiusKm float64
}

// Resolver maps coordinates to nearby stations.
type Resolver struct {
	provider Provider
	logger   zerolog.Logger
	radiusKm float64
}

// NewResolver creates a new station resolver.
func NewResolver(cfg ResolverConfig) *Resolver {
	radius := cfg.RadiusKm
	if radius <= 0 {
		radius = DefaultSearchRadiusKm
	}
	return &Resolver{
		provider: cfg.Provider,
		logger:   cfg.Logger,
		radiusKm: radius,
	}
}

// RadiusKm returns the default search radius.
func (r *Resolver) RadiusKm() float64 {
	return r.radiusKm
}

// NearestStations returns qualifying stations around origin, nearest first.
// Platforms collapse onto their parent station. An empty result is not an error.
// A radiusKm of zero uses the configured default.
func (r *Resolver) NearestStations(ctx context.Context, origin geo.Coordinate, radiusKm float64) ([]*Station, error) {
	if !origin.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCoordinate, origin)
	}
	if radiusKm <= 0 {
		radiusKm = r.radiusKm
	}

	search, err := r.provider.NearbyStops(ctx, origin, radiusKm)
	if err != nil {
		r.logger.Error().Err(err).
			Str("origin", origin.String()).
			Str("provider", r.provider.Name()).
			Msg("stop search failed")
		return nil, fmt.Errorf("searching stops: %w", err)
	}

	seen := make(map[string]bool, len(search.Stops))
	stations := make([]*Station, 0, len(search.Stops))
	dropped := 0

	for _, stop := range search.Stops {
		candidate := qualify(stop, search.Parents)
		if candidate == nil {
			dropped++
			continue
		}
		if seen[candidate.ID] {
			continue
		}
		seen[candidate.ID] = true

		station := *candidate
		station.Platforms = nil
		d := geo.DistanceKm(origin, station.Coordinate())
		station.DistanceKm = &d
		stations = append(stations, &station)
	}

	sort.SliceStable(stations, func(i, j int) bool {
		return *stations[i].DistanceKm < *stations[j].DistanceKm
	})

	r.logger.Debug().
		Str("origin", origin.String()).
		Int("stops", len(search.Stops)).
		Int("stations", len(stations)).
		Int("dropped", dropped).
		Msg("resolved nearby stations")

	return stations, nil
}

// NearestStation returns the closest qualifying station or ErrNoQualifyingStation.
func (r *Resolver) NearestStation(ctx context.Context, origin geo.Coordinate) (*Station, error) {
	stations, err := r.NearestStations(ctx, origin, 0)
	if err != nil {
		return nil, err
	}
	if len(stations) == 0 {
		return nil, ErrNoQualifyingStation
	}
	return stations[0], nil
}

// Station returns a station with its platforms.
func (r *Resolver) Station(ctx context.Context, id string) (*Station, error) {
	station, err := r.provider.Stop(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetching station %s: %w", id, err)
	}
	return station, nil
}

// qualify returns the station-level record a stop represents, or nil.
func qualify(stop *Station, parents map[string]*Station) *Station {
	if stop.IsStation() {
		return stop
	}
	if stop.ParentStationID == "" {
		return nil
	}
	if parent, ok := parents[stop.ParentStationID]; ok {
		return parent
	}
	return nil
}
