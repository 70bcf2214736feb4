// Package transcoder rewrites a full-depth order book archive into a
// reduced-depth archive that replays to the exact top-D slice of the
// original at every timestamp. It drives two books in lockstep: a shadow
// book at full depth and a visible book holding what the reduced stream
// has disclosed so far. Only changes that matter inside the top-D window
// are emitted, which is where the 3-10x size reduction comes from.
package transcoder

import (
	"fmt"

	"github.com/dzakarias/orderbook-replayer/internal/book"
	"github.com/dzakarias/orderbook-replayer/models"
)

// Reducer is the streaming core of the transcoder: snapshot first, then
// one ProcessDeltaSet call per incoming delta set, in archive order.
type Reducer struct {
	depth   int
	shadow  *book.Book
	visible *book.Book
	started bool

	// run counters
	deltasIn   int64
	deltasOut  int64
	changesIn  int64
	changesOut int64
	promotions int64
	suppressed int64
}

// NewReducer creates a reducer targeting depth levels per side.
func NewReducer(depth int) (*Reducer, error) {
	if depth <= 0 {
		return nil, fmt.Errorf("%w: %d", models.ErrInvalidDepth, depth)
	}
	return &Reducer{depth: depth}, nil
}

// Depth returns the target depth.
func (r *Reducer) Depth() int {
	return r.depth
}

// ProcessSnapshot seeds both books from the archive's snapshot and
// returns the reduced snapshot: the original truncated to the top D
// levels per side.
func (r *Reducer) ProcessSnapshot(s models.Snapshot) models.Snapshot {
	r.shadow = book.FromSnapshot(s)
	r.visible = book.FromSnapshot(r.shadow.Snapshot(r.depth))
	r.started = true
	return r.visible.Snapshot(0)
}

// ProcessDeltaSet applies d to the shadow book and returns the reduced
// delta set for the visible stream. ok is false when every change fell
// outside the top-D window and the set contributes nothing.
func (r *Reducer) ProcessDeltaSet(d models.DeltaSet) (models.DeltaSet, bool, error) {
	if !r.started {
		return models.DeltaSet{}, false, fmt.Errorf("%w: delta set before snapshot", models.ErrMalformed)
	}
	r.deltasIn++
	r.changesIn += int64(len(d.Bids) + len(d.Asks))

	outBids := r.reduceSide(r.shadow.Bids, r.visible.Bids, d.Bids)
	outAsks := r.reduceSide(r.shadow.Asks, r.visible.Asks, d.Asks)
	r.shadow.Timestamp = d.Timestamp
	r.shadow.Seq = d.Seq

	if len(outBids) == 0 && len(outAsks) == 0 {
		r.suppressed++
		return models.DeltaSet{}, false, nil
	}
	r.visible.Timestamp = d.Timestamp
	r.visible.Seq = d.Seq

	out := models.DeltaSet{Timestamp: d.Timestamp, Seq: d.Seq, Bids: outBids, Asks: outAsks}
	r.deltasOut++
	r.changesOut += int64(len(outBids) + len(outAsks))
	return out, true, nil
}

// reduceSide applies the incoming changes for one side to the shadow side
// and classifies each by its rank before and after the change. A change
// is emitted when either rank lies inside the top-D window; a change
// whose ranks both fall outside is suppressed and remembered only by the
// shadow. Emitted changes are mirrored into the visible side as they
// happen, then the two top-D windows are reconciled: promoted prices are
// disclosed even though they carried no change of their own, and prices
// no longer alive in the shadow are flushed out of the visible window.
func (r *Reducer) reduceSide(shadow, visible *book.Side, changes []models.PriceLevel) []models.PriceLevel {
	if len(changes) == 0 {
		return nil
	}

	var out []models.PriceLevel
	emitted := make(map[string]int) // price -> index in out

	emit := func(l models.PriceLevel) {
		visible.Apply(l)
		key := l.Price.String()
		if i, ok := emitted[key]; ok {
			out[i] = l
			return
		}
		emitted[key] = len(out)
		out = append(out, l)
	}

	for _, ch := range changes {
		rankBefore, foundBefore := shadow.Locate(ch.Price)
		inBefore := foundBefore && rankBefore < r.depth

		shadow.Apply(ch)

		rankAfter, foundAfter := shadow.Locate(ch.Price)
		inAfter := foundAfter && rankAfter < r.depth

		if !inBefore && !inAfter {
			continue
		}

		// ch.Qty is the shadow's resulting quantity at this price: Apply
		// stores it verbatim, and a tombstone already carries zero.
		emit(models.PriceLevel{Price: ch.Price, Qty: ch.Qty})
	}

	if len(out) == 0 {
		return nil
	}

	// Promotion pass: any price now inside the shadow's top-D window whose
	// visible quantity is missing or stale must be disclosed, even if it
	// carried no change at this timestamp. Without this a price silently
	// re-entering the window would never appear in the reduced stream.
	top := r.depth
	if top > shadow.Len() {
		top = shadow.Len()
	}
	for i := 0; i < top; i++ {
		l := shadow.Level(i)
		if q, ok := visible.Qty(l.Price); !ok || !q.Equal(l.Qty) {
			emit(l)
			r.promotions++
		}
	}

	// Ghost pass: a price removed from the shadow while it was out of the
	// window was suppressed, so the visible side may still carry it. When
	// the window shrinks, such a dead level would surface inside the top-D
	// slice; flush every one that does. Removing a ghost can surface the
	// next one, so repeat until the window is clean.
	for {
		var ghosts []models.PriceLevel
		vtop := r.depth
		if vtop > visible.Len() {
			vtop = visible.Len()
		}
		for i := 0; i < vtop; i++ {
			l := visible.Level(i)
			if _, alive := shadow.Qty(l.Price); !alive {
				ghosts = append(ghosts, models.PriceLevel{Price: l.Price})
			}
		}
		if len(ghosts) == 0 {
			return out
		}
		for _, g := range ghosts {
			emit(g)
		}
	}
}

// Stats reports run counters for logging.
func (r *Reducer) Stats() (deltasIn, deltasOut, changesIn, changesOut, promotions, suppressed int64) {
	return r.deltasIn, r.deltasOut, r.changesIn, r.changesOut, r.promotions, r.suppressed
}
