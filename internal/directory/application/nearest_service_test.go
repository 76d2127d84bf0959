package application

import (
	"context"
	"errors"
	"testing"
	"time"

	directory "fuelmap-cloud/internal/directory/domain"
	"fuelmap-cloud/internal/directory/infrastructure/memory"
)

func seedStations(repo *memory.StationRepository) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	repo.Seed(
		directory.Station{ID: "near", Name: "Near", Latitude: 24.7750, Longitude: 46.7390, CreatedAt: base},
		directory.Station{ID: "mid", Name: "Mid", Latitude: 24.8000, Longitude: 46.8000, CreatedAt: base.Add(time.Minute)},
		directory.Station{ID: "far", Name: "Far", Latitude: 25.5000, Longitude: 47.5000, CreatedAt: base.Add(2 * time.Minute)},
	)
}

func TestFindNearestIndexedPath(t *testing.T) {
	repo := memory.NewStationRepository()
	seedStations(repo)
	service, err := NewNearestService(repo, nil)
	if err != nil {
		t.Fatalf("new nearest service: %v", err)
	}

	result, err := service.FindNearest(context.Background(), 24.7740, 46.7380, 2, 0)
	if err != nil {
		t.Fatalf("find nearest: %v", err)
	}
	if result.Source != QueryPathIndexed {
		t.Fatalf("expected indexed path, got %q", result.Source)
	}
	if len(result.Stations) != 2 {
		t.Fatalf("expected 2 stations, got %d", len(result.Stations))
	}
	if result.Stations[0].ID != "near" || result.Stations[1].ID != "mid" {
		t.Fatalf("expected [near mid], got [%s %s]", result.Stations[0].ID, result.Stations[1].ID)
	}
	if result.Stations[0].DistanceMeters <= 0 {
		t.Fatalf("expected annotated distance, got %v", result.Stations[0].DistanceMeters)
	}
	if result.Stations[0].DistanceMeters >= result.Stations[1].DistanceMeters {
		t.Fatalf("expected ascending distances, got %v then %v",
			result.Stations[0].DistanceMeters, result.Stations[1].DistanceMeters)
	}
}

func TestFindNearestFallbackParity(t *testing.T) {
	fast := memory.NewStationRepository()
	seedStations(fast)
	broken := memory.NewStationRepository()
	seedStations(broken)
	broken.OrderedByDistanceErr = errors.New("earthdistance capability unavailable")

	fastService, err := NewNearestService(fast, nil)
	if err != nil {
		t.Fatalf("new nearest service: %v", err)
	}
	fallbackService, err := NewNearestService(broken, nil)
	if err != nil {
		t.Fatalf("new nearest service: %v", err)
	}

	indexed, err := fastService.FindNearest(context.Background(), 24.7740, 46.7380, 3, 0)
	if err != nil {
		t.Fatalf("indexed path: %v", err)
	}
	scanned, err := fallbackService.FindNearest(context.Background(), 24.7740, 46.7380, 3, 0)
	if err != nil {
		t.Fatalf("fallback path: %v", err)
	}

	if indexed.Source != QueryPathIndexed || scanned.Source != QueryPathScan {
		t.Fatalf("expected sources indexed/scan, got %q/%q", indexed.Source, scanned.Source)
	}
	if len(indexed.Stations) != len(scanned.Stations) {
		t.Fatalf("expected equal result lengths, got %d and %d", len(indexed.Stations), len(scanned.Stations))
	}
	for i := range indexed.Stations {
		if indexed.Stations[i].ID != scanned.Stations[i].ID {
			t.Fatalf("position %d: expected id %s, got %s", i, indexed.Stations[i].ID, scanned.Stations[i].ID)
		}
		diff := indexed.Stations[i].DistanceMeters - scanned.Stations[i].DistanceMeters
		if diff < -1e-6 || diff > 1e-6 {
			t.Fatalf("position %d: distance mismatch %v vs %v",
				i, indexed.Stations[i].DistanceMeters, scanned.Stations[i].DistanceMeters)
		}
	}
}

func TestFindNearestEmptyIndexedResultIsNotAFallbackTrigger(t *testing.T) {
	repo := memory.NewStationRepository()
	service, err := NewNearestService(repo, nil)
	if err != nil {
		t.Fatalf("new nearest service: %v", err)
	}
	result, err := service.FindNearest(context.Background(), 24.7740, 46.7380, 5, 0)
	if err != nil {
		t.Fatalf("find nearest: %v", err)
	}
	if result.Source != QueryPathIndexed {
		t.Fatalf("expected indexed path for empty dataset, got %q", result.Source)
	}
	if len(result.Stations) != 0 {
		t.Fatalf("expected no stations, got %d", len(result.Stations))
	}
}

func TestFindNearestMaxDistanceFilter(t *testing.T) {
	repo := memory.NewStationRepository()
	seedStations(repo)
	repo.OrderedByDistanceErr = errors.New("index unavailable")
	service, err := NewNearestService(repo, nil)
	if err != nil {
		t.Fatalf("new nearest service: %v", err)
	}

	// "near" is a couple hundred meters out; "mid" and "far" are
	// kilometers away.
	result, err := service.FindNearest(context.Background(), 24.7740, 46.7380, 10, 1000)
	if err != nil {
		t.Fatalf("find nearest: %v", err)
	}
	if len(result.Stations) != 1 || result.Stations[0].ID != "near" {
		t.Fatalf("expected only near within 1 km, got %+v", result.Stations)
	}
}

func TestFindNearestBothPathsFail(t *testing.T) {
	repo := memory.NewStationRepository()
	seedStations(repo)
	repo.OrderedByDistanceErr = errors.New("index unavailable")
	repo.FetchAllErr = errors.New("remote store unreachable")
	service, err := NewNearestService(repo, nil)
	if err != nil {
		t.Fatalf("new nearest service: %v", err)
	}

	_, err = service.FindNearest(context.Background(), 24.7740, 46.7380, 5, 0)
	if !errors.Is(err, directory.ErrQueryFailed) {
		t.Fatalf("expected ErrQueryFailed, got %v", err)
	}
}

func TestFindNearestRejectsInvalidQueryPoint(t *testing.T) {
	repo := memory.NewStationRepository()
	service, err := NewNearestService(repo, nil)
	if err != nil {
		t.Fatalf("new nearest service: %v", err)
	}
	if _, err := service.FindNearest(context.Background(), 0, 0, 5, 0); !errors.Is(err, directory.ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}
}
