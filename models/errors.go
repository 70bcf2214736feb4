package models

import "errors"

// Error taxonomy shared by the archive, transcoder and replay layers.
// Callers are expected to test with errors.Is; every error carrying extra
// context wraps one of these sentinels.
var (
	// ErrNotFound reports that no archive exists for the requested
	// symbol/date combination.
	ErrNotFound = errors.New("archive not found")

	// ErrMalformed reports an archive that violates the record format or
	// the strictly-increasing-timestamp invariant. It is fatal for the
	// affected archive load.
	ErrMalformed = errors.New("malformed archive")

	// ErrEndOfArchive signals a step past the last delta set. It is a
	// normal terminal condition, not a failure; the live book state is
	// left unchanged.
	ErrEndOfArchive = errors.New("end of archive")

	// ErrOutOfRange reports a goto target outside the archive's
	// [first, last] timestamp range.
	ErrOutOfRange = errors.New("timestamp out of archive range")

	// ErrInvalidDepth reports a transcoder target depth that is not
	// strictly smaller than the source archive's depth.
	ErrInvalidDepth = errors.New("invalid target depth")

	// ErrNoMarket reports a session operation issued before any market
	// was selected.
	ErrNoMarket = errors.New("no market selected")
)
