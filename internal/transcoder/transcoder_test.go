package transcoder

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/dzakarias/orderbook-replayer/internal/book"
	"github.com/dzakarias/orderbook-replayer/models"
)

func TestNewReducerRejectsBadDepth(t *testing.T) {
	for _, depth := range []int{0, -1} {
		if _, err := NewReducer(depth); !errors.Is(err, models.ErrInvalidDepth) {
			t.Errorf("NewReducer(%d) = %v, want ErrInvalidDepth", depth, err)
		}
	}
}

func TestProcessSnapshotTruncates(t *testing.T) {
	r, err := NewReducer(2)
	if err != nil {
		t.Fatalf("NewReducer failed: %v", err)
	}
	out := r.ProcessSnapshot(models.Snapshot{
		Timestamp: 1000,
		Bids: []models.PriceLevel{
			models.Level("100.00", "5"),
			models.Level("99.50", "3"),
			models.Level("99.00", "1"),
		},
		Asks: []models.PriceLevel{
			models.Level("100.50", "2"),
		},
	})
	if len(out.Bids) != 2 || len(out.Asks) != 1 {
		t.Fatalf("unexpected reduced snapshot: %d bids, %d asks", len(out.Bids), len(out.Asks))
	}
	if out.Bids[1].Price.String() != "99.5" {
		t.Fatalf("unexpected second bid: %v", out.Bids[1].Price)
	}
}

func TestOutOfWindowChangesAreSuppressed(t *testing.T) {
	r, _ := NewReducer(2)
	r.ProcessSnapshot(models.Snapshot{
		Timestamp: 1000,
		Bids: []models.PriceLevel{
			models.Level("100.00", "5"),
			models.Level("99.50", "3"),
			models.Level("99.00", "1"),
		},
		Asks: []models.PriceLevel{models.Level("100.50", "2")},
	})

	// rank 2 before and after: invisible at depth 2
	out, ok, err := r.ProcessDeltaSet(models.DeltaSet{
		Timestamp: 2000,
		Bids:      []models.PriceLevel{models.Level("99.00", "9")},
	})
	if err != nil {
		t.Fatalf("ProcessDeltaSet failed: %v", err)
	}
	if ok {
		t.Fatalf("out-of-window change must be suppressed, got %+v", out)
	}
	_, _, _, _, _, suppressed := r.Stats()
	if suppressed != 1 {
		t.Fatalf("suppressed counter = %d, want 1", suppressed)
	}
}

// A rank-(D-1) level is removed and the rank-D level is the only candidate
// to take its place: it must appear in the reduced output even though it
// carried no change at that timestamp.
func TestPromotionEmitsUntouchedLevel(t *testing.T) {
	r, _ := NewReducer(2)
	r.ProcessSnapshot(models.Snapshot{
		Timestamp: 1000,
		Bids: []models.PriceLevel{
			models.Level("100.00", "5"),
			models.Level("99.50", "3"),
			models.Level("99.00", "1"),
		},
		Asks: []models.PriceLevel{models.Level("100.50", "2")},
	})

	out, ok, err := r.ProcessDeltaSet(models.DeltaSet{
		Timestamp: 2000,
		Bids:      []models.PriceLevel{models.Level("99.50", "0")},
	})
	if err != nil {
		t.Fatalf("ProcessDeltaSet failed: %v", err)
	}
	if !ok {
		t.Fatal("in-window removal must be emitted")
	}

	var sawTombstone, sawPromotion bool
	for _, l := range out.Bids {
		if l.Price.String() == "99.5" && l.IsTombstone() {
			sawTombstone = true
		}
		if l.Price.String() == "99" && l.Qty.String() == "1" {
			sawPromotion = true
		}
	}
	if !sawTombstone {
		t.Fatalf("missing tombstone for removed level: %+v", out.Bids)
	}
	if !sawPromotion {
		t.Fatalf("missing promoted level: %+v", out.Bids)
	}
	_, _, _, _, promotions, _ := r.Stats()
	if promotions != 1 {
		t.Fatalf("promotions counter = %d, want 1", promotions)
	}
}

func TestDeltaBeforeSnapshotIsMalformed(t *testing.T) {
	r, _ := NewReducer(2)
	if _, _, err := r.ProcessDeltaSet(models.DeltaSet{Timestamp: 1}); !errors.Is(err, models.ErrMalformed) {
		t.Fatalf("ProcessDeltaSet = %v, want ErrMalformed", err)
	}
}

// randomArchive builds a synthetic archive with churn concentrated around
// the depth boundary so promotions and suppressions both occur.
func randomArchive(seed int64, deltas int) (models.Snapshot, []models.DeltaSet) {
	rng := rand.New(rand.NewSource(seed))

	bidPrice := func(i int) string { return fmt.Sprintf("%d.%d", 99-i/10, 9-i%10) }
	askPrice := func(i int) string { return fmt.Sprintf("%d.%d", 101+i/10, i%10) }

	snap := models.Snapshot{Timestamp: 1000}
	for i := 0; i < 8; i++ {
		if rng.Intn(4) > 0 {
			snap.Bids = append(snap.Bids, models.Level(bidPrice(i), fmt.Sprint(1+rng.Intn(9))))
		}
		if rng.Intn(4) > 0 {
			snap.Asks = append(snap.Asks, models.Level(askPrice(i), fmt.Sprint(1+rng.Intn(9))))
		}
	}

	out := make([]models.DeltaSet, deltas)
	ts := snap.Timestamp
	for i := range out {
		ts += int64(1 + rng.Intn(500))
		d := models.DeltaSet{Timestamp: ts, Seq: int64(i + 1)}
		for n := 1 + rng.Intn(3); n > 0; n-- {
			// qty 0 in one third of the cases: tombstone churn
			qty := fmt.Sprint(rng.Intn(3) * rng.Intn(5))
			if rng.Intn(2) == 0 {
				d.Bids = append(d.Bids, models.Level(bidPrice(rng.Intn(8)), qty))
			} else {
				d.Asks = append(d.Asks, models.Level(askPrice(rng.Intn(8)), qty))
			}
		}
		out[i] = d
	}
	return snap, out
}

func statesEqual(a, b models.BookState) bool {
	if len(a.Bids) != len(b.Bids) || len(a.Asks) != len(b.Asks) {
		return false
	}
	for i := range a.Bids {
		if !a.Bids[i].Price.Equal(b.Bids[i].Price) || !a.Bids[i].Qty.Equal(b.Bids[i].Qty) {
			return false
		}
	}
	for i := range a.Asks {
		if !a.Asks[i].Price.Equal(b.Asks[i].Price) || !a.Asks[i].Qty.Equal(b.Asks[i].Qty) {
			return false
		}
	}
	return true
}

// Replaying the reduced stream must reproduce the top-D slice of the
// full-depth replay at every original timestamp.
func TestReducedReplayMatchesTopD(t *testing.T) {
	const depth = 3

	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 100
	properties := gopter.NewProperties(params)

	properties.Property("top-D equivalence at every timestamp", prop.ForAll(
		func(seed int64) bool {
			snap, deltas := randomArchive(seed, 50)

			red, err := NewReducer(depth)
			if err != nil {
				return false
			}
			full := book.FromSnapshot(snap)
			visible := book.FromSnapshot(red.ProcessSnapshot(snap))

			for _, d := range deltas {
				out, ok, err := red.ProcessDeltaSet(d)
				if err != nil {
					return false
				}
				full.ApplyDeltaSet(d)
				if ok {
					visible.ApplyDeltaSet(out)
				}
				want := full.State(depth)
				got := visible.State(depth)
				got.Timestamp = want.Timestamp
				if !statesEqual(want, got) {
					return false
				}
			}
			return true
		},
		gen.Int64(),
	))

	properties.TestingRun(t)
}
