package directory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"fuelmap-cloud/internal/geo"
)

// Station represents a fuel-station directory record.
//
// ID and the timestamps are assigned by the persistence layer; the core
// algorithms treat them as opaque. DistanceMeters is ephemeral: it is
// filled in when a record comes back from a nearest-neighbor query or a
// duplicate check, is never persisted and is not part of identity.
type Station struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Region         string    `json:"region,omitempty"`
	SubRegion      string    `json:"sub_region,omitempty"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	FuelTypes      string    `json:"fuel_types,omitempty"`
	AdditionalInfo string    `json:"additional_info,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	DistanceMeters float64   `json:"distance_meters,omitempty"`
}

// Validate checks station invariants at the persistence boundary.
func (s Station) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidRecord)
	}
	if !geo.IsValidLatLon(s.Latitude, s.Longitude) {
		return fmt.Errorf("%w: station %q has coordinates (%v, %v) outside valid bounds",
			ErrInvalidRecord, s.Name, s.Latitude, s.Longitude)
	}
	return nil
}

// NewID generates a random station id for records created through this
// service. Imported datasets keep the ids they carry.
func NewID() string {
	buf := make([]byte, 12)
	_, _ = rand.Read(buf)
	return "station-" + hex.EncodeToString(buf)
}

// Repository manages station persistence. It is the single external
// collaborator of the dedupe and nearest-neighbor services; every method
// is an independent network round-trip against the remote store.
type Repository interface {
	// Get loads a station by id, (nil, nil) when absent.
	Get(ctx context.Context, id string) (*Station, error)

	// Save upserts a station. The store assigns CreatedAt on insert and
	// refreshes UpdatedAt on every write.
	Save(ctx context.Context, station *Station) error

	// FindByExactName returns a single row whose name matches exactly,
	// using the store's own comparison semantics, or (nil, nil).
	FindByExactName(ctx context.Context, name string) (*Station, error)

	// FindOrderedByDistance returns up to limit rows ordered ascending by
	// distance from (lat, lon) using the store's own geospatial ordering.
	// It fails when that capability is unavailable in the deployment.
	FindOrderedByDistance(ctx context.Context, lat, lon float64, limit int) ([]Station, error)

	// FetchAll returns the entire dataset.
	FetchAll(ctx context.Context) ([]Station, error)

	// DeleteByID removes a single row. Deleting an absent row is an error
	// for that item; it does not corrupt state.
	DeleteByID(ctx context.Context, id string) error
}
