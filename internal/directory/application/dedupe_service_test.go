package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	directory "fuelmap-cloud/internal/directory/domain"
	"fuelmap-cloud/internal/directory/infrastructure/memory"
)

func newDedupeService(t *testing.T, repo *memory.StationRepository, opts ...DedupeOption) *DedupeService {
	t.Helper()
	nearest, err := NewNearestService(repo, nil)
	if err != nil {
		t.Fatalf("new nearest service: %v", err)
	}
	service, err := NewDedupeService(repo, nearest, nil, opts...)
	if err != nil {
		t.Fatalf("new dedupe service: %v", err)
	}
	return service
}

func TestCheckCandidateNameDuplicate(t *testing.T) {
	repo := memory.NewStationRepository()
	repo.Seed(directory.Station{ID: "1", Name: "Noor Station", Latitude: 24.7740, Longitude: 46.7380})
	service := newDedupeService(t, repo)

	// The exact-name lookup is case-sensitive; far-away coordinates must
	// not matter.
	result, err := service.CheckCandidate(context.Background(), "Noor Station", 21.4858, 39.1925)
	if err != nil {
		t.Fatalf("check candidate: %v", err)
	}
	if !result.IsDuplicate || result.DuplicateType != directory.DuplicateTypeName {
		t.Fatalf("expected name duplicate, got %+v", result)
	}
	if result.DuplicateStation == nil || result.DuplicateStation.ID != "1" {
		t.Fatalf("expected duplicate station 1, got %+v", result.DuplicateStation)
	}
}

func TestCheckCandidateLocationDuplicate(t *testing.T) {
	repo := memory.NewStationRepository()
	repo.Seed(directory.Station{ID: "1", Name: "Noor Station", Latitude: 24.7740, Longitude: 46.7380})
	service := newDedupeService(t, repo)

	// Different name, about ten meters away.
	result, err := service.CheckCandidate(context.Background(), "Sahara Fuel", 24.7740, 46.7381)
	if err != nil {
		t.Fatalf("check candidate: %v", err)
	}
	if !result.IsDuplicate || result.DuplicateType != directory.DuplicateTypeLocation {
		t.Fatalf("expected location duplicate, got %+v", result)
	}
	if result.DuplicateStation == nil || result.DuplicateStation.DistanceMeters >= directory.DuplicateRadiusMeters {
		t.Fatalf("expected annotated distance under the radius, got %+v", result.DuplicateStation)
	}
}

func TestCheckCandidateClear(t *testing.T) {
	repo := memory.NewStationRepository()
	repo.Seed(directory.Station{ID: "1", Name: "Noor Station", Latitude: 24.7740, Longitude: 46.7380})
	service := newDedupeService(t, repo)

	result, err := service.CheckCandidate(context.Background(), "Sahara Fuel", 26.3260, 43.9750)
	if err != nil {
		t.Fatalf("check candidate: %v", err)
	}
	if result.IsDuplicate {
		t.Fatalf("expected clear candidate, got %+v", result)
	}
}

func TestCheckCandidateUsesFallbackWhenIndexUnavailable(t *testing.T) {
	repo := memory.NewStationRepository()
	repo.Seed(directory.Station{ID: "1", Name: "Noor Station", Latitude: 24.7740, Longitude: 46.7380})
	repo.OrderedByDistanceErr = errors.New("earthdistance capability unavailable")
	service := newDedupeService(t, repo)

	result, err := service.CheckCandidate(context.Background(), "Sahara Fuel", 24.7740, 46.7381)
	if err != nil {
		t.Fatalf("check candidate: %v", err)
	}
	if !result.IsDuplicate || result.DuplicateType != directory.DuplicateTypeLocation {
		t.Fatalf("expected location duplicate via fallback, got %+v", result)
	}
}

func TestCheckUpdateIgnoresOwnRecord(t *testing.T) {
	repo := memory.NewStationRepository()
	repo.Seed(
		directory.Station{ID: "1", Name: "Noor Station", Latitude: 24.7740, Longitude: 46.7380},
		directory.Station{ID: "2", Name: "Sahara Fuel", Latitude: 26.3260, Longitude: 43.9750},
	)
	service := newDedupeService(t, repo)

	// An unchanged update must not conflict with itself, on either
	// trigger of the rule.
	result, err := service.CheckUpdate(context.Background(), "1", "Noor Station", 24.7740, 46.7380)
	if err != nil {
		t.Fatalf("check update: %v", err)
	}
	if result.IsDuplicate {
		t.Fatalf("expected unchanged update to stay clear, got %+v", result)
	}
}

func TestCheckUpdateDetectsCollisionWithOtherRecord(t *testing.T) {
	repo := memory.NewStationRepository()
	repo.Seed(
		directory.Station{ID: "1", Name: "Noor Station", Latitude: 24.7740, Longitude: 46.7380},
		directory.Station{ID: "2", Name: "Sahara Fuel", Latitude: 26.3260, Longitude: 43.9750},
	)
	service := newDedupeService(t, repo)

	// Renaming station 2 onto station 1's name is a name duplicate.
	result, err := service.CheckUpdate(context.Background(), "2", "Noor Station", 26.3260, 43.9750)
	if err != nil {
		t.Fatalf("check update: %v", err)
	}
	if !result.IsDuplicate || result.DuplicateType != directory.DuplicateTypeName {
		t.Fatalf("expected name duplicate, got %+v", result)
	}
	if result.DuplicateStation == nil || result.DuplicateStation.ID != "1" {
		t.Fatalf("expected station 1 as the conflict, got %+v", result.DuplicateStation)
	}

	// Moving station 2 next to station 1 is a location duplicate, even
	// though station 2's stored row is the closest to its new point.
	repo.Seed(directory.Station{ID: "2", Name: "Sahara Fuel", Latitude: 24.7740, Longitude: 46.7381})
	result, err = service.CheckUpdate(context.Background(), "2", "Sahara Fuel", 24.7740, 46.7381)
	if err != nil {
		t.Fatalf("check update: %v", err)
	}
	if !result.IsDuplicate || result.DuplicateType != directory.DuplicateTypeLocation {
		t.Fatalf("expected location duplicate, got %+v", result)
	}
	if result.DuplicateStation == nil || result.DuplicateStation.ID != "1" {
		t.Fatalf("expected station 1 as the conflict, got %+v", result.DuplicateStation)
	}
}

func TestCheckCandidateFailsClosed(t *testing.T) {
	repo := memory.NewStationRepository()
	repo.Seed(directory.Station{ID: "1", Name: "Noor Station", Latitude: 24.7740, Longitude: 46.7380})
	repo.OrderedByDistanceErr = errors.New("index unavailable")
	repo.FetchAllErr = errors.New("remote store unreachable")
	service := newDedupeService(t, repo)

	_, err := service.CheckCandidate(context.Background(), "Sahara Fuel", 24.7740, 46.7381)
	if !errors.Is(err, directory.ErrQueryFailed) {
		t.Fatalf("expected ErrQueryFailed, got %v", err)
	}
}

func TestResolveSurvivorRule(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	records := []directory.Station{
		{ID: "2", Name: "Noor Station", Latitude: 24.7740, Longitude: 46.7380, CreatedAt: t0.Add(time.Hour)},
		{ID: "1", Name: "Noor Station", Latitude: 25.7740, Longitude: 47.7380, CreatedAt: t0},
		{ID: "3", Name: "noor station", Latitude: 26.7740, Longitude: 48.7380, CreatedAt: t0.Add(2 * time.Hour)},
	}
	repo := memory.NewStationRepository()
	repo.Seed(records...)
	service := newDedupeService(t, repo)

	result, err := service.Resolve(context.Background(), records)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if result.DeletedCount != 2 {
		t.Fatalf("expected 2 deletions, got %d", result.DeletedCount)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("expected no errors, got %v", result.Errors)
	}
	if len(result.Remaining) != 1 || result.Remaining[0].ID != "1" {
		t.Fatalf("expected only the earliest record to remain, got %+v", result.Remaining)
	}
	for _, id := range []string{"2", "3"} {
		station, err := repo.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
		if station != nil {
			t.Fatalf("expected station %s deleted from the store", id)
		}
	}
}

func TestResolveMissingTimestampSortsFirst(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	records := []directory.Station{
		{ID: "stamped", Name: "Noor Station", Latitude: 24.7740, Longitude: 46.7380, CreatedAt: t0},
		{ID: "unstamped", Name: "Noor Station", Latitude: 25.7740, Longitude: 47.7380},
	}
	repo := memory.NewStationRepository()
	repo.Seed(records...)
	service := newDedupeService(t, repo)

	result, err := service.Resolve(context.Background(), records)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(result.Remaining) != 1 || result.Remaining[0].ID != "unstamped" {
		t.Fatalf("expected the record without a timestamp to survive, got %+v", result.Remaining)
	}
}

func TestResolveIdempotence(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	records := []directory.Station{
		{ID: "1", Name: "Noor Station", Latitude: 24.7740, Longitude: 46.7380, CreatedAt: t0},
		{ID: "2", Name: "noor station", Latitude: 25.7740, Longitude: 47.7380, CreatedAt: t0.Add(time.Hour)},
		{ID: "3", Name: "Other", Latitude: 26.7740, Longitude: 48.7380, CreatedAt: t0},
	}
	repo := memory.NewStationRepository()
	repo.Seed(records...)
	service := newDedupeService(t, repo)

	first, err := service.Resolve(context.Background(), records)
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if first.DeletedCount != 1 {
		t.Fatalf("expected 1 deletion on first run, got %d", first.DeletedCount)
	}

	second, err := service.Resolve(context.Background(), first.Remaining)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if second.DeletedCount != 0 || len(second.Errors) != 0 {
		t.Fatalf("expected no-op second run, got %+v", second)
	}
	if len(second.Remaining) != len(first.Remaining) {
		t.Fatalf("expected remaining unchanged, got %d then %d", len(first.Remaining), len(second.Remaining))
	}
}

func TestResolvePartialFailureContainment(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	records := []directory.Station{
		{ID: "keep", Name: "Noor Station", Latitude: 24.7740, Longitude: 46.7380, CreatedAt: t0},
		{ID: "stuck", Name: "Noor Station", Latitude: 25.7740, Longitude: 47.7380, CreatedAt: t0.Add(time.Hour)},
		{ID: "gone", Name: "Noor Station", Latitude: 26.7740, Longitude: 48.7380, CreatedAt: t0.Add(2 * time.Hour)},
	}
	repo := memory.NewStationRepository()
	repo.Seed(records...)
	repo.DeleteErrs = map[string]error{"stuck": errors.New("row locked")}
	service := newDedupeService(t, repo)

	result, err := service.Resolve(context.Background(), records)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if result.DeletedCount != 1 {
		t.Fatalf("expected 1 deletion, got %d", result.DeletedCount)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 error, got %v", result.Errors)
	}
	for _, station := range result.Remaining {
		if station.ID == "stuck" {
			t.Fatalf("failed delete must not appear in remaining: %+v", result.Remaining)
		}
	}
	// The failed record is left untouched in the store, still flagged
	// for a future run.
	station, err := repo.Get(context.Background(), "stuck")
	if err != nil {
		t.Fatalf("get stuck: %v", err)
	}
	if station == nil {
		t.Fatalf("expected the failed record to stay in the store")
	}
}

func TestResolveEndToEndExample(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	records := []directory.Station{
		{ID: "1", Name: "A", Latitude: 24.7740, Longitude: 46.7380, CreatedAt: t0},
		{ID: "2", Name: "A", Latitude: 24.7740, Longitude: 46.7381, CreatedAt: t0.Add(time.Minute)},
	}
	repo := memory.NewStationRepository()
	repo.Seed(records...)
	service := newDedupeService(t, repo)

	flags, err := service.Index(records)
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if !flags["1"] || !flags["2"] {
		t.Fatalf("expected both records flagged, got %v", flags)
	}

	result, err := service.Resolve(context.Background(), records)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if result.DeletedCount != 1 {
		t.Fatalf("expected 1 deletion, got %d", result.DeletedCount)
	}
	if len(result.Remaining) != 1 || result.Remaining[0].ID != "1" {
		t.Fatalf("expected id 1 to remain, got %+v", result.Remaining)
	}
}

func TestResolveRejectsMalformedInput(t *testing.T) {
	repo := memory.NewStationRepository()
	service := newDedupeService(t, repo)

	_, err := service.Resolve(context.Background(), []directory.Station{
		{ID: "", Name: "Broken", Latitude: 24.7740, Longitude: 46.7380},
	})
	if !errors.Is(err, directory.ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []ResolutionEvent
}

func (n *recordingNotifier) NotifyResolution(_ context.Context, event ResolutionEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func TestResolveNotifiesAfterDeletions(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	records := []directory.Station{
		{ID: "1", Name: "Noor Station", Latitude: 24.7740, Longitude: 46.7380, CreatedAt: t0},
		{ID: "2", Name: "Noor Station", Latitude: 25.7740, Longitude: 47.7380, CreatedAt: t0.Add(time.Hour)},
	}
	repo := memory.NewStationRepository()
	repo.Seed(records...)
	notifier := &recordingNotifier{}
	service := newDedupeService(t, repo, WithResolutionNotifier(notifier))

	if _, err := service.Resolve(context.Background(), records); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(notifier.events) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifier.events))
	}
	event := notifier.events[0]
	if event.DeletedCount != 1 || event.Scanned != 2 {
		t.Fatalf("unexpected event %+v", event)
	}

	// A clean run stays quiet.
	clean := []directory.Station{
		{ID: "3", Name: "Quiet", Latitude: 26.3260, Longitude: 43.9750, CreatedAt: t0},
	}
	repo.Seed(clean...)
	if _, err := service.Resolve(context.Background(), clean); err != nil {
		t.Fatalf("clean resolve: %v", err)
	}
	if len(notifier.events) != 1 {
		t.Fatalf("expected no notification for a clean run, got %d", len(notifier.events))
	}
}
