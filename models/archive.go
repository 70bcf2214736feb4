package models

import "time"

// Snapshot is the first record of an archive: a complete book state at
// one instant, materialized at the archive's stored depth. Bids are
// ordered by descending price, asks by ascending price.
type Snapshot struct {
	Timestamp int64
	Seq       int64
	Bids      []PriceLevel
	Asks      []PriceLevel
}

// DeltaSet carries every change that takes effect atomically at one
// instant. A zero-quantity level removes its price. Timestamps are
// strictly increasing across an archive's delta stream.
type DeltaSet struct {
	Timestamp int64
	Seq       int64
	Bids      []PriceLevel
	Asks      []PriceLevel
}

// Empty reports whether the set carries no changes on either side.
func (d DeltaSet) Empty() bool {
	return len(d.Bids) == 0 && len(d.Asks) == 0
}

// ArchiveID identifies an archive file: one symbol, one trading date, one
// stored depth. The on-disk name is {date}_{symbol}_ob{depth}.data; the
// transcoder rewrites only the depth marker.
type ArchiveID struct {
	Symbol string
	Date   string // YYYY-MM-DD
	Depth  int
}

// DateOf formats a timestamp in archive date notation (UTC).
func DateOf(ts time.Time) string {
	return ts.UTC().Format("2006-01-02")
}
