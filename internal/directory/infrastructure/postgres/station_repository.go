package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	directory "fuelmap-cloud/internal/directory/domain"
)

const defaultStationsTable = "stations"

const stationColumns = "id, name, region, sub_region, latitude, longitude, fuel_types, additional_info, created_at, updated_at"

// StationRepository is a Postgres implementation of the station store.
//
// FindOrderedByDistance relies on the cube and earthdistance extensions;
// on deployments without them the query errors and callers fall back to
// a full fetch with a client-side sort.
type StationRepository struct {
	db    DBTX
	table string
}

// NewStationRepository constructs a repository.
func NewStationRepository(db DBTX, opts ...StationOption) *StationRepository {
	repo := &StationRepository{db: db, table: defaultStationsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// StationOption configures the repository.
type StationOption func(*StationRepository)

// WithStationTable overrides the default table name.
func WithStationTable(table string) StationOption {
	return func(repo *StationRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Get loads a station by id, (nil, nil) when absent.
func (r *StationRepository) Get(ctx context.Context, id string) (*directory.Station, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("station repo: nil db")
	}
	if id == "" {
		return nil, errors.New("station repo: empty id")
	}

	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE id = $1
LIMIT 1`, stationColumns, r.table)

	station, err := scanStation(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return station, nil
}

// Save upserts a station.
func (r *StationRepository) Save(ctx context.Context, station *directory.Station) error {
	if r == nil || r.db == nil {
		return errors.New("station repo: nil db")
	}
	if station == nil {
		return errors.New("station repo: nil station")
	}
	if err := station.Validate(); err != nil {
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	name,
	region,
	sub_region,
	latitude,
	longitude,
	fuel_types,
	additional_info
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8
)
ON CONFLICT (id)
DO UPDATE SET
	name = EXCLUDED.name,
	region = EXCLUDED.region,
	sub_region = EXCLUDED.sub_region,
	latitude = EXCLUDED.latitude,
	longitude = EXCLUDED.longitude,
	fuel_types = EXCLUDED.fuel_types,
	additional_info = EXCLUDED.additional_info,
	updated_at = NOW()`, r.table)

	_, err := r.db.ExecContext(
		ctx,
		query,
		station.ID,
		station.Name,
		station.Region,
		station.SubRegion,
		station.Latitude,
		station.Longitude,
		station.FuelTypes,
		station.AdditionalInfo,
	)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if station.CreatedAt.IsZero() {
		station.CreatedAt = now
	}
	station.UpdatedAt = now
	return nil
}

// FindByExactName returns a single row with a byte-identical name, or
// (nil, nil). The comparison deliberately uses the store's plain
// equality, not the lowercased form the duplicate rule applies.
func (r *StationRepository) FindByExactName(ctx context.Context, name string) (*directory.Station, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("station repo: nil db")
	}
	if name == "" {
		return nil, errors.New("station repo: empty name")
	}

	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE name = $1
ORDER BY created_at
LIMIT 1`, stationColumns, r.table)

	station, err := scanStation(r.db.QueryRowContext(ctx, query, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return station, nil
}

// FindOrderedByDistance returns up to limit rows ordered ascending by
// distance from (lat, lon), computed server-side by earthdistance.
func (r *StationRepository) FindOrderedByDistance(ctx context.Context, lat, lon float64, limit int) ([]directory.Station, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("station repo: nil db")
	}
	if limit <= 0 {
		return nil, errors.New("station repo: non-positive limit")
	}

	query := fmt.Sprintf(`
SELECT %s
FROM %s
ORDER BY earth_distance(ll_to_earth($1, $2), ll_to_earth(latitude, longitude))
LIMIT $3`, stationColumns, r.table)

	rows, err := r.db.QueryContext(ctx, query, lat, lon, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectStations(rows)
}

// FetchAll returns every station, oldest first.
func (r *StationRepository) FetchAll(ctx context.Context) ([]directory.Station, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("station repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT %s
FROM %s
ORDER BY created_at, id`, stationColumns, r.table)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectStations(rows)
}

// DeleteByID removes a single row. A missing row reports
// directory.ErrNotFound.
func (r *StationRepository) DeleteByID(ctx context.Context, id string) error {
	if r == nil || r.db == nil {
		return errors.New("station repo: nil db")
	}
	if id == "" {
		return errors.New("station repo: empty id")
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", r.table)
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: station %s", directory.ErrNotFound, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStation(row rowScanner) (*directory.Station, error) {
	var station directory.Station
	if err := row.Scan(
		&station.ID,
		&station.Name,
		&station.Region,
		&station.SubRegion,
		&station.Latitude,
		&station.Longitude,
		&station.FuelTypes,
		&station.AdditionalInfo,
		&station.CreatedAt,
		&station.UpdatedAt,
	); err != nil {
		return nil, err
	}
	station.CreatedAt = station.CreatedAt.UTC()
	station.UpdatedAt = station.UpdatedAt.UTC()
	return &station, nil
}

func collectStations(rows *sql.Rows) ([]directory.Station, error) {
	stations := []directory.Station{}
	for rows.Next() {
		station, err := scanStation(rows)
		if err != nil {
			return nil, err
		}
		stations = append(stations, *station)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stations, nil
}
