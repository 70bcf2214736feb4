// Package replay maintains a live order book projection over an archive
// and answers temporal navigation queries: step, skip, goto, reset.
// Delta sets only assert new quantities, so they cannot be inverted;
// every backward (or far-forward) seek restarts from the closest known
// full state at or before the target and replays forward. Checkpoints
// cached during forward play bound that replay cost.
package replay

import (
	"fmt"
	"sort"
	"time"

	"github.com/dzakarias/orderbook-replayer/internal/book"
	"github.com/dzakarias/orderbook-replayer/models"
)

// checkpoint is a cached full book state: the book after pos delta sets
// were applied, at its own timestamp. Purely in-memory, never persisted.
type checkpoint struct {
	ts   int64
	pos  int
	book *book.Book
}

// Traverser owns one live book over one fully loaded archive. It is not
// safe for concurrent use; the owning session serializes operations.
type Traverser struct {
	snapshot models.Snapshot
	deltas   []models.DeltaSet

	live    *book.Book
	pos     int   // index of the next delta set to apply
	current int64 // logical position, >= live book timestamp

	intervalMs  int64
	checkpoints []checkpoint // ordered by ts, unique
}

// NewTraverser positions a traverser at the archive's snapshot.
// checkpointInterval is the archive-time spacing between cached states;
// zero or negative disables caching (every backward seek restarts from
// the snapshot).
func NewTraverser(snap models.Snapshot, deltas []models.DeltaSet, checkpointInterval time.Duration) *Traverser {
	return &Traverser{
		snapshot:   snap,
		deltas:     deltas,
		live:       book.FromSnapshot(snap),
		current:    snap.Timestamp,
		intervalMs: checkpointInterval.Milliseconds(),
	}
}

// Start returns the snapshot timestamp t0.
func (t *Traverser) Start() int64 {
	return t.snapshot.Timestamp
}

// End returns the archive's last timestamp; t0 when it has no deltas.
func (t *Traverser) End() int64 {
	if len(t.deltas) == 0 {
		return t.snapshot.Timestamp
	}
	return t.deltas[len(t.deltas)-1].Timestamp
}

// Position returns the logical current timestamp.
func (t *Traverser) Position() int64 {
	return t.current
}

// State materializes the live book truncated to depth levels per side,
// stamped with the logical position.
func (t *Traverser) State(depth int) models.BookState {
	st := t.live.State(depth)
	st.Timestamp = t.current
	return st
}

// Step applies exactly the next delta set in archive order. At the end of
// the archive it returns models.ErrEndOfArchive and leaves the live book
// unchanged.
func (t *Traverser) Step() error {
	if t.pos >= len(t.deltas) {
		return models.ErrEndOfArchive
	}
	t.apply(t.deltas[t.pos])
	t.current = t.live.Timestamp
	return nil
}

// Skip moves the logical position by the signed number of seconds,
// clamped to the archive's [t0, tLast] range.
func (t *Traverser) Skip(seconds float64) {
	target := t.current + int64(seconds*1000)
	if target < t.Start() {
		target = t.Start()
	}
	if target > t.End() {
		target = t.End()
	}
	t.seek(target)
}

// Goto moves the logical position to an absolute timestamp. Targets
// strictly before t0 or after the last archive timestamp fail with
// models.ErrOutOfRange; no clamping is applied.
func (t *Traverser) Goto(timestampMillis int64) error {
	if timestampMillis < t.Start() || timestampMillis > t.End() {
		return fmt.Errorf("%w: %d not in [%d, %d]", models.ErrOutOfRange, timestampMillis, t.Start(), t.End())
	}
	t.seek(timestampMillis)
	return nil
}

// Reset restores the live book to the archive snapshot at t0. Cached
// checkpoints stay valid and are kept.
func (t *Traverser) Reset() {
	t.live = book.FromSnapshot(t.snapshot)
	t.pos = 0
	t.current = t.snapshot.Timestamp
}

// seek positions the live book at target. Backward targets restart from
// the closest checkpoint at or before target (or the snapshot) and
// replay forward; forward targets replay from the current position.
func (t *Traverser) seek(target int64) {
	if target < t.current {
		if cp, ok := t.nearestAtOrBefore(target); ok {
			t.live = cp.book.Clone()
			t.pos = cp.pos
		} else {
			t.live = book.FromSnapshot(t.snapshot)
			t.pos = 0
		}
	}
	for t.pos < len(t.deltas) && t.deltas[t.pos].Timestamp <= target {
		t.apply(t.deltas[t.pos])
	}
	t.current = target
}

// apply advances the live book by one delta set and caches a checkpoint
// when the last one is at least the configured interval behind.
func (t *Traverser) apply(d models.DeltaSet) {
	t.live.ApplyDeltaSet(d)
	t.pos++

	if t.intervalMs <= 0 {
		return
	}
	if cp, ok := t.nearestAtOrBefore(d.Timestamp); ok && d.Timestamp-cp.ts < t.intervalMs {
		return
	}
	t.insertCheckpoint(checkpoint{ts: d.Timestamp, pos: t.pos, book: t.live.Clone()})
}

func (t *Traverser) nearestAtOrBefore(ts int64) (checkpoint, bool) {
	idx := sort.Search(len(t.checkpoints), func(i int) bool {
		return t.checkpoints[i].ts > ts
	})
	if idx == 0 {
		return checkpoint{}, false
	}
	return t.checkpoints[idx-1], true
}

func (t *Traverser) insertCheckpoint(cp checkpoint) {
	idx := sort.Search(len(t.checkpoints), func(i int) bool {
		return t.checkpoints[i].ts >= cp.ts
	})
	if idx < len(t.checkpoints) && t.checkpoints[idx].ts == cp.ts {
		return
	}
	t.checkpoints = append(t.checkpoints, checkpoint{})
	copy(t.checkpoints[idx+1:], t.checkpoints[idx:])
	t.checkpoints[idx] = cp
}

// CheckpointCount reports how many full states are cached.
func (t *Traverser) CheckpointCount() int {
	return len(t.checkpoints)
}
