package directory

import (
	"fmt"
	"strings"

	"fuelmap-cloud/internal/geo"
)

// DuplicateRadiusMeters is the proximity threshold of the duplicate
// rule. Two stations strictly closer than this are location duplicates;
// a pair at exactly this distance is not.
const DuplicateRadiusMeters = 100.0

// DuplicateType labels which trigger of the duplicate rule matched.
type DuplicateType string

const (
	DuplicateTypeName     DuplicateType = "name"
	DuplicateTypeLocation DuplicateType = "location"
)

// AreDuplicates applies the pairwise duplicate rule: equal lowercased
// names, or great-circle distance strictly below DuplicateRadiusMeters.
// Either trigger alone is sufficient; the rule is symmetric.
func AreDuplicates(a, b Station) bool {
	if strings.ToLower(a.Name) == strings.ToLower(b.Name) {
		return true
	}
	return WithinDuplicateRadius(a, b)
}

// WithinDuplicateRadius reports whether two stations are strictly
// closer than the duplicate radius.
func WithinDuplicateRadius(a, b Station) bool {
	meters := geo.DistanceKm(a.Latitude, a.Longitude, b.Latitude, b.Longitude) * 1000
	return meters < DuplicateRadiusMeters
}

// FlagDuplicates checks an already-loaded list of stations against each
// other and maps every id to true when the record participates in at
// least one duplicate pair, else false.
//
// The pass is intentionally O(n²) over the supplied page: callers bound
// the list to a single page of results, and the dataset-wide check on
// insert is the candidate checker's job. The function is pure and does
// no I/O.
func FlagDuplicates(records []Station) (map[string]bool, error) {
	flags := make(map[string]bool, len(records))
	for _, record := range records {
		if record.ID == "" {
			return nil, fmt.Errorf("%w: record %q has no id", ErrInvalidRecord, record.Name)
		}
		if _, seen := flags[record.ID]; seen {
			return nil, fmt.Errorf("%w: id %q appears more than once", ErrInvalidRecord, record.ID)
		}
		if !geo.IsValidLatLon(record.Latitude, record.Longitude) {
			return nil, fmt.Errorf("%w: station %q has coordinates (%v, %v) outside valid bounds",
				ErrInvalidRecord, record.ID, record.Latitude, record.Longitude)
		}
		flags[record.ID] = false
	}

	for i := range records {
		for j := i + 1; j < len(records); j++ {
			if AreDuplicates(records[i], records[j]) {
				flags[records[i].ID] = true
				flags[records[j].ID] = true
			}
		}
	}
	return flags, nil
}

// DuplicateGroup is a transient set of stations considered equivalent
// under the duplicate rule. Groups are rebuilt on every resolution pass
// and discarded immediately after use, never cached.
type DuplicateGroup struct {
	Key     string
	Members []Station
}

// GroupDuplicates partitions the flagged records into duplicate groups.
//
// Flagged records are first grouped by lowercased name; every name with
// two or more flagged records forms a name group. Each remaining flagged
// record seeds a location group keyed by a coarse S2 cell of its
// coordinates, pulling in every other flagged, not-yet-grouped record
// strictly within the duplicate radius of the seed. Membership is
// anchored to the seed, which bounds a group's diameter to twice the
// radius instead of letting chains of pairwise-close records merge.
func GroupDuplicates(records []Station, flags map[string]bool) []DuplicateGroup {
	var flagged []Station
	for _, record := range records {
		if flags[record.ID] {
			flagged = append(flagged, record)
		}
	}

	grouped := make(map[string]bool, len(flagged))
	var groups []DuplicateGroup

	byName := make(map[string][]Station)
	var nameOrder []string
	for _, record := range flagged {
		key := strings.ToLower(record.Name)
		if _, seen := byName[key]; !seen {
			nameOrder = append(nameOrder, key)
		}
		byName[key] = append(byName[key], record)
	}
	for _, key := range nameOrder {
		members := byName[key]
		if len(members) < 2 {
			continue
		}
		for _, member := range members {
			grouped[member.ID] = true
		}
		groups = append(groups, DuplicateGroup{Key: "name:" + key, Members: members})
	}

	for _, seed := range flagged {
		if grouped[seed.ID] {
			continue
		}
		grouped[seed.ID] = true
		group := DuplicateGroup{
			Key:     geo.CellKey(seed.Latitude, seed.Longitude),
			Members: []Station{seed},
		}
		for _, other := range flagged {
			if grouped[other.ID] {
				continue
			}
			if WithinDuplicateRadius(seed, other) {
				grouped[other.ID] = true
				group.Members = append(group.Members, other)
			}
		}
		groups = append(groups, group)
	}
	return groups
}
