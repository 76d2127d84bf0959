package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	directory "fuelmap-cloud/internal/directory/domain"
	"fuelmap-cloud/internal/geo"
	"fuelmap-cloud/internal/observability/metrics"
)

// QueryPath tags which strategy produced a nearest-neighbor result, so
// the fallback trigger stays an explicit, testable branch instead of
// exception-driven control flow.
type QueryPath string

const (
	// QueryPathIndexed is the server-side ordered-by-distance query.
	QueryPathIndexed QueryPath = "indexed"
	// QueryPathScan is the full-fetch, client-side distance sort used
	// when the indexed query fails.
	QueryPathScan QueryPath = "scan"
)

// NearestResult is an ordered nearest-station answer. Stations are
// sorted ascending by distance and each carries DistanceMeters.
type NearestResult struct {
	Source   QueryPath           `json:"source"`
	Stations []directory.Station `json:"stations"`
}

// NearestService answers nearest-station queries with a fast remote
// query path and a manual full-scan fallback.
type NearestService struct {
	repo         directory.Repository
	logger       *log.Logger
	defaultLimit int
	maxLimit     int
}

// NearestOption configures the service.
type NearestOption func(*NearestService)

// WithNearestLimits overrides the default and maximum result limits.
func WithNearestLimits(defaultLimit, maxLimit int) NearestOption {
	return func(s *NearestService) {
		if defaultLimit > 0 {
			s.defaultLimit = defaultLimit
		}
		if maxLimit > 0 {
			s.maxLimit = maxLimit
		}
	}
}

// NewNearestService constructs a nearest-station service.
func NewNearestService(repo directory.Repository, logger *log.Logger, opts ...NearestOption) (*NearestService, error) {
	if repo == nil {
		return nil, errors.New("nearest service: nil repository")
	}
	s := &NearestService{
		repo:         repo,
		logger:       logger,
		defaultLimit: DefaultNearestLimit,
		maxLimit:     DefaultNearestMaxLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// FindNearest returns up to limit stations ordered ascending by
// great-circle distance from (lat, lon), each annotated with
// DistanceMeters. A maxDistanceMeters above zero filters the results to
// that radius on both paths.
//
// The indexed remote query is tried first; its ordering is trusted but
// distances are still recomputed client-side so both paths stay
// consistent and testable against each other. The full-scan fallback
// runs only when the indexed query errors, never on a merely empty
// result. The call fails only when both paths fail.
func (s *NearestService) FindNearest(ctx context.Context, lat, lon float64, limit int, maxDistanceMeters float64) (NearestResult, error) {
	if !geo.IsValidLatLon(lat, lon) {
		return NearestResult{}, fmt.Errorf("%w: query point (%v, %v) outside valid bounds",
			directory.ErrInvalidRecord, lat, lon)
	}
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}

	start := time.Now()
	stations, err := s.repo.FindOrderedByDistance(ctx, lat, lon, limit)
	if err == nil {
		annotated := annotateDistances(lat, lon, stations)
		if maxDistanceMeters > 0 {
			annotated = filterWithin(annotated, maxDistanceMeters)
		}
		metrics.ObserveNearest(metrics.PathIndexed, metrics.ResultSuccess, time.Since(start))
		return NearestResult{Source: QueryPathIndexed, Stations: annotated}, nil
	}

	if s.logger != nil {
		s.logger.Printf("nearest: indexed query failed, falling back to full scan: %v", err)
	}

	all, scanErr := s.repo.FetchAll(ctx)
	if scanErr != nil {
		metrics.ObserveNearest(metrics.PathScan, metrics.ResultError, time.Since(start))
		return NearestResult{}, fmt.Errorf("%w: indexed query failed (%v), full scan failed (%v)",
			directory.ErrQueryFailed, err, scanErr)
	}

	annotated := annotateDistances(lat, lon, all)
	sort.SliceStable(annotated, func(i, j int) bool {
		return annotated[i].DistanceMeters < annotated[j].DistanceMeters
	})
	if maxDistanceMeters > 0 {
		annotated = filterWithin(annotated, maxDistanceMeters)
	}
	if len(annotated) > limit {
		annotated = annotated[:limit]
	}
	metrics.ObserveNearest(metrics.PathScan, metrics.ResultSuccess, time.Since(start))
	return NearestResult{Source: QueryPathScan, Stations: annotated}, nil
}

func annotateDistances(lat, lon float64, stations []directory.Station) []directory.Station {
	annotated := make([]directory.Station, len(stations))
	for i, station := range stations {
		station.DistanceMeters = geo.DistanceKm(lat, lon, station.Latitude, station.Longitude) * 1000
		annotated[i] = station
	}
	return annotated
}

func filterWithin(stations []directory.Station, maxDistanceMeters float64) []directory.Station {
	filtered := stations[:0]
	for _, station := range stations {
		if station.DistanceMeters <= maxDistanceMeters {
			filtered = append(filtered, station)
		}
	}
	return filtered
}
