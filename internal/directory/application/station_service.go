package application

import (
	"context"
	"errors"
	"fmt"
	"log"

	directory "fuelmap-cloud/internal/directory/domain"
)

// StationService provides directory CRUD commands. The duplicate gate
// for inserts lives in the dedupe service; callers run CheckCandidate
// before Create, matching the insert pipeline of the dashboard.
type StationService struct {
	repo   directory.Repository
	logger *log.Logger
}

// NewStationService constructs a station service.
func NewStationService(repo directory.Repository, logger *log.Logger) (*StationService, error) {
	if repo == nil {
		return nil, errors.New("station service: nil repository")
	}
	return &StationService{repo: repo, logger: logger}, nil
}

// Create validates and persists a new station, assigning an id when the
// caller did not bring one.
func (s *StationService) Create(ctx context.Context, station *directory.Station) error {
	if station == nil {
		return errors.New("station service: nil station")
	}
	if station.ID == "" {
		station.ID = directory.NewID()
	}
	if err := station.Validate(); err != nil {
		return err
	}
	if err := s.repo.Save(ctx, station); err != nil {
		return fmt.Errorf("%w: save station: %v", directory.ErrQueryFailed, err)
	}
	return nil
}

// Update validates and persists changes to an existing station.
func (s *StationService) Update(ctx context.Context, station *directory.Station) error {
	if station == nil {
		return errors.New("station service: nil station")
	}
	if station.ID == "" {
		return fmt.Errorf("%w: update without id", directory.ErrInvalidRecord)
	}
	if err := station.Validate(); err != nil {
		return err
	}
	existing, err := s.repo.Get(ctx, station.ID)
	if err != nil {
		return fmt.Errorf("%w: load station: %v", directory.ErrQueryFailed, err)
	}
	if existing == nil {
		return directory.ErrNotFound
	}
	if err := s.repo.Save(ctx, station); err != nil {
		return fmt.Errorf("%w: save station: %v", directory.ErrQueryFailed, err)
	}
	return nil
}

// Get loads one station.
func (s *StationService) Get(ctx context.Context, id string) (*directory.Station, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", directory.ErrInvalidRecord)
	}
	station, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: load station: %v", directory.ErrQueryFailed, err)
	}
	if station == nil {
		return nil, directory.ErrNotFound
	}
	return station, nil
}

// List returns the full directory.
func (s *StationService) List(ctx context.Context) ([]directory.Station, error) {
	stations, err := s.repo.FetchAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list stations: %v", directory.ErrQueryFailed, err)
	}
	return stations, nil
}

// Delete removes one station.
func (s *StationService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty id", directory.ErrInvalidRecord)
	}
	if err := s.repo.DeleteByID(ctx, id); err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return err
		}
		return fmt.Errorf("%w: delete station: %v", directory.ErrQueryFailed, err)
	}
	if s.logger != nil {
		s.logger.Printf("directory: deleted station %s", id)
	}
	return nil
}
