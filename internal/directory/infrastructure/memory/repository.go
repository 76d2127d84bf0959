package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	directory "fuelmap-cloud/internal/directory/domain"
	"fuelmap-cloud/internal/geo"
)

// StationRepository is an in-memory repository for stations, used by
// tests and by deployments that run without a backing store.
type StationRepository struct {
	mu   sync.RWMutex
	data map[string]directory.Station

	// OrderedByDistanceErr, when set, makes FindOrderedByDistance fail,
	// simulating a store without the geospatial ordering capability.
	OrderedByDistanceErr error
	// FetchAllErr, when set, makes FetchAll fail.
	FetchAllErr error
	// DeleteErrs maps station ids to forced per-item delete failures.
	DeleteErrs map[string]error
}

// NewStationRepository constructs a repository.
func NewStationRepository() *StationRepository {
	return &StationRepository{data: make(map[string]directory.Station)}
}

// Seed inserts stations without touching timestamps.
func (r *StationRepository) Seed(stations ...directory.Station) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, station := range stations {
		r.data[station.ID] = station
	}
}

// Get loads a station by id, (nil, nil) when absent.
func (r *StationRepository) Get(ctx context.Context, id string) (*directory.Station, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	station, ok := r.data[id]
	if !ok {
		return nil, nil
	}
	return &station, nil
}

// Save upserts a station, assigning timestamps the way the remote
// store would.
func (r *StationRepository) Save(ctx context.Context, station *directory.Station) error {
	_ = ctx
	if station == nil {
		return directory.ErrInvalidRecord
	}
	if err := station.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.data[station.ID]; ok {
		station.CreatedAt = existing.CreatedAt
	} else if station.CreatedAt.IsZero() {
		station.CreatedAt = now
	}
	station.UpdatedAt = now
	r.data[station.ID] = *station
	return nil
}

// FindByExactName returns a station whose name matches exactly.
func (r *StationRepository) FindByExactName(ctx context.Context, name string) (*directory.Station, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, station := range r.data {
		if station.Name == name {
			match := station
			return &match, nil
		}
	}
	return nil, nil
}

// FindOrderedByDistance returns up to limit stations ordered ascending
// by distance from (lat, lon).
func (r *StationRepository) FindOrderedByDistance(ctx context.Context, lat, lon float64, limit int) ([]directory.Station, error) {
	_ = ctx
	if r.OrderedByDistanceErr != nil {
		return nil, r.OrderedByDistanceErr
	}
	stations, err := r.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(stations, func(i, j int) bool {
		di := geo.DistanceKm(lat, lon, stations[i].Latitude, stations[i].Longitude)
		dj := geo.DistanceKm(lat, lon, stations[j].Latitude, stations[j].Longitude)
		return di < dj
	})
	if limit > 0 && len(stations) > limit {
		stations = stations[:limit]
	}
	return stations, nil
}

// FetchAll returns the entire dataset ordered by creation time.
func (r *StationRepository) FetchAll(ctx context.Context) ([]directory.Station, error) {
	_ = ctx
	if r.FetchAllErr != nil {
		return nil, r.FetchAllErr
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	stations := make([]directory.Station, 0, len(r.data))
	for _, station := range r.data {
		stations = append(stations, station)
	}
	sort.SliceStable(stations, func(i, j int) bool {
		if stations[i].CreatedAt.Equal(stations[j].CreatedAt) {
			return stations[i].ID < stations[j].ID
		}
		return stations[i].CreatedAt.Before(stations[j].CreatedAt)
	})
	return stations, nil
}

// DeleteByID removes a single station.
func (r *StationRepository) DeleteByID(ctx context.Context, id string) error {
	_ = ctx
	if err, forced := r.DeleteErrs[id]; forced {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[id]; !ok {
		return directory.ErrNotFound
	}
	delete(r.data, id)
	return nil
}
