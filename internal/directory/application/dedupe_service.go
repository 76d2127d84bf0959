package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"fuelmap-cloud/internal/audit"
	directory "fuelmap-cloud/internal/directory/domain"
	"fuelmap-cloud/internal/observability/metrics"
)

// CheckResult reports whether a proposed new station collides with a
// persisted record under the duplicate rule.
type CheckResult struct {
	IsDuplicate      bool                    `json:"is_duplicate"`
	DuplicateStation *directory.Station      `json:"duplicate_station,omitempty"`
	DuplicateType    directory.DuplicateType `json:"duplicate_type,omitempty"`
}

// ResolveResult reports the outcome of one duplicate resolution run.
// The operation is not transactional: each delete is an independent
// unit of work and partial failure is expected and tolerated.
type ResolveResult struct {
	DeletedCount int                 `json:"deleted_count"`
	Errors       []string            `json:"errors"`
	Remaining    []directory.Station `json:"remaining"`
}

// ResolutionEvent summarizes a finished resolution run for observers.
type ResolutionEvent struct {
	RanAt        time.Time `json:"ran_at"`
	Scanned      int       `json:"scanned"`
	Groups       int       `json:"groups"`
	DeletedCount int       `json:"deleted_count"`
	Errors       []string  `json:"errors,omitempty"`
}

// ResolutionNotifier publishes resolution run summaries.
type ResolutionNotifier interface {
	NotifyResolution(ctx context.Context, event ResolutionEvent)
}

// NearestFinder is the slice of NearestService the candidate checker
// needs for its proximity step.
type NearestFinder interface {
	FindNearest(ctx context.Context, lat, lon float64, limit int, maxDistanceMeters float64) (NearestResult, error)
}

// DedupeService detects and resolves duplicate station records.
type DedupeService struct {
	repo     directory.Repository
	nearest  NearestFinder
	logger   *log.Logger
	notifier ResolutionNotifier
	auditLog audit.Logger
}

// DedupeOption customizes the dedupe service.
type DedupeOption func(*DedupeService)

// WithResolutionNotifier assigns a notifier for resolution runs.
func WithResolutionNotifier(notifier ResolutionNotifier) DedupeOption {
	return func(s *DedupeService) {
		s.notifier = notifier
	}
}

// WithAuditLogger assigns an audit logger for deletes.
func WithAuditLogger(logger audit.Logger) DedupeOption {
	return func(s *DedupeService) {
		s.auditLog = logger
	}
}

// NewDedupeService constructs a dedupe service.
func NewDedupeService(repo directory.Repository, nearest NearestFinder, logger *log.Logger, opts ...DedupeOption) (*DedupeService, error) {
	if repo == nil {
		return nil, errors.New("dedupe service: nil repository")
	}
	if nearest == nil {
		return nil, errors.New("dedupe service: nil nearest finder")
	}
	s := &DedupeService{repo: repo, nearest: nearest, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CheckCandidate checks one proposed new record against the full
// persisted dataset before insertion. The exact-name lookup runs first
// and short-circuits; otherwise the single closest persisted record is
// fetched and compared against the duplicate radius.
//
// The check is read-only. A failed remote read wraps
// directory.ErrQueryFailed and propagates: an uncertain duplicate
// status must block the insert rather than allow a silent duplicate.
func (s *DedupeService) CheckCandidate(ctx context.Context, name string, lat, lon float64) (CheckResult, error) {
	return s.check(ctx, "", name, lat, lon)
}

// CheckUpdate runs the same duplicate gate for a modified record,
// ignoring matches against the record's own id so an unchanged update
// does not conflict with itself.
func (s *DedupeService) CheckUpdate(ctx context.Context, id, name string, lat, lon float64) (CheckResult, error) {
	return s.check(ctx, id, name, lat, lon)
}

func (s *DedupeService) check(ctx context.Context, excludeID, name string, lat, lon float64) (CheckResult, error) {
	start := time.Now()
	if name == "" {
		return CheckResult{}, fmt.Errorf("%w: empty candidate name", directory.ErrInvalidRecord)
	}

	match, err := s.repo.FindByExactName(ctx, name)
	if err != nil {
		metrics.ObserveCandidateCheck(metrics.ResultError, time.Since(start))
		return CheckResult{}, fmt.Errorf("%w: name lookup: %v", directory.ErrQueryFailed, err)
	}
	if match != nil && match.ID != excludeID {
		metrics.ObserveCandidateCheck(metrics.CheckResultNameDuplicate, time.Since(start))
		return CheckResult{
			IsDuplicate:      true,
			DuplicateStation: match,
			DuplicateType:    directory.DuplicateTypeName,
		}, nil
	}

	// When a record is excluded it may itself be the closest row, so
	// fetch one extra and skip it.
	limit := 1
	if excludeID != "" {
		limit = 2
	}
	nearest, err := s.nearest.FindNearest(ctx, lat, lon, limit, 0)
	if err != nil {
		metrics.ObserveCandidateCheck(metrics.ResultError, time.Since(start))
		return CheckResult{}, err
	}
	for _, closest := range nearest.Stations {
		if closest.ID == excludeID {
			continue
		}
		if closest.DistanceMeters < directory.DuplicateRadiusMeters {
			closest := closest
			metrics.ObserveCandidateCheck(metrics.CheckResultLocationDuplicate, time.Since(start))
			return CheckResult{
				IsDuplicate:      true,
				DuplicateStation: &closest,
				DuplicateType:    directory.DuplicateTypeLocation,
			}, nil
		}
		break
	}

	metrics.ObserveCandidateCheck(metrics.CheckResultClear, time.Since(start))
	return CheckResult{}, nil
}

// Index runs the pairwise duplicate pass over an already-loaded page of
// records, mapping every id to its duplicate flag.
func (s *DedupeService) Index(records []directory.Station) (map[string]bool, error) {
	flags, err := directory.FlagDuplicates(records)
	if err != nil {
		metrics.ObserveDuplicateIndex(metrics.ResultError, 0)
		return nil, err
	}
	flagged := 0
	for _, isDuplicate := range flags {
		if isDuplicate {
			flagged++
		}
	}
	metrics.ObserveDuplicateIndex(metrics.ResultSuccess, flagged)
	return flags, nil
}

// Resolve groups the flagged records and deletes all but the earliest
// created member of each group.
//
// Deletes are issued one at a time, sequentially: that bounds load on
// the remote store and keeps partial-failure accounting deterministic.
// A failed delete is recorded in Errors and the record stays in place,
// still flagged, for a future run to re-attempt; it appears in neither
// Remaining nor the deleted count. Only a failed indexing step fails
// the whole call.
func (s *DedupeService) Resolve(ctx context.Context, records []directory.Station) (ResolveResult, error) {
	start := time.Now()
	flags, err := directory.FlagDuplicates(records)
	if err != nil {
		metrics.ObserveResolve(metrics.ResultError, time.Since(start))
		return ResolveResult{}, err
	}

	groups := directory.GroupDuplicates(records, flags)

	result := ResolveResult{Errors: []string{}, Remaining: []directory.Station{}}
	kept := make(map[string]bool)
	for gi := range groups {
		members := groups[gi].Members
		sort.SliceStable(members, func(i, j int) bool {
			// A zero CreatedAt sorts first: a record without a
			// timestamp is treated as the oldest.
			return members[i].CreatedAt.Before(members[j].CreatedAt)
		})
		survivor := members[0]
		kept[survivor.ID] = true

		for _, duplicate := range members[1:] {
			if err := s.repo.DeleteByID(ctx, duplicate.ID); err != nil {
				metrics.IncResolveDelete(metrics.ResultError)
				result.Errors = append(result.Errors,
					fmt.Sprintf("delete station %s (%s): %v", duplicate.ID, duplicate.Name, err))
				continue
			}
			metrics.IncResolveDelete(metrics.ResultSuccess)
			result.DeletedCount++
			s.auditDelete(ctx, groups[gi].Key, survivor, duplicate)
		}
	}

	for _, record := range records {
		if !flags[record.ID] || kept[record.ID] {
			result.Remaining = append(result.Remaining, record)
		}
	}

	if s.logger != nil {
		s.logger.Printf("dedupe: resolved %d group(s), deleted %d, %d error(s)",
			len(groups), result.DeletedCount, len(result.Errors))
	}
	metrics.ObserveResolve(metrics.ResultSuccess, time.Since(start))

	if s.notifier != nil && (result.DeletedCount > 0 || len(result.Errors) > 0) {
		s.notifier.NotifyResolution(ctx, ResolutionEvent{
			RanAt:        time.Now().UTC(),
			Scanned:      len(records),
			Groups:       len(groups),
			DeletedCount: result.DeletedCount,
			Errors:       result.Errors,
		})
	}
	return result, nil
}

func (s *DedupeService) auditDelete(ctx context.Context, groupKey string, survivor, deleted directory.Station) {
	if s.auditLog == nil {
		return
	}
	metadata, _ := json.Marshal(map[string]string{
		"group":    groupKey,
		"survivor": survivor.ID,
	})
	entry := audit.Entry{
		Action:       "dedupe.delete",
		ResourceType: "station",
		ResourceID:   deleted.ID,
		Metadata:     metadata,
	}
	if err := s.auditLog.Log(ctx, entry); err != nil && s.logger != nil {
		s.logger.Printf("dedupe: audit log failed for station %s: %v", deleted.ID, err)
	}
}
