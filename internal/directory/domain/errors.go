package directory

import "errors"

var (
	// ErrNotFound indicates a missing station record.
	ErrNotFound = errors.New("directory: station not found")
	// ErrQueryFailed indicates a remote read failed. A failed duplicate
	// check must never be treated as "no duplicate found", so this error
	// always surfaces to the caller.
	ErrQueryFailed = errors.New("directory: query failed")
	// ErrInvalidRecord indicates malformed input to the duplicate indexer
	// or an invalid station at the persistence boundary.
	ErrInvalidRecord = errors.New("directory: invalid record")
	// ErrDuplicateStation indicates a candidate collides with a persisted
	// record under the duplicate rule.
	ErrDuplicateStation = errors.New("directory: duplicate station")
)
