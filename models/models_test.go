package models

import (
	"testing"
	"time"
)

func TestPriceLevelTombstone(t *testing.T) {
	if !Level("100.00", "0").IsTombstone() {
		t.Fatal("zero quantity must be a tombstone")
	}
	if !Level("100.00", "0.000").IsTombstone() {
		t.Fatal("zero with trailing decimals must be a tombstone")
	}
	if Level("100.00", "0.0001").IsTombstone() {
		t.Fatal("non-zero quantity is not a tombstone")
	}
}

func TestBookStateBest(t *testing.T) {
	var empty BookState
	if _, ok := empty.BestBid(); ok {
		t.Fatal("empty side must report no best bid")
	}
	if _, ok := empty.BestAsk(); ok {
		t.Fatal("empty side must report no best ask")
	}

	st := BookState{
		Bids: []PriceLevel{Level("100.00", "5"), Level("99.50", "3")},
		Asks: []PriceLevel{Level("100.50", "4")},
	}
	if bid, ok := st.BestBid(); !ok || bid.Price.String() != "100" {
		t.Fatalf("unexpected best bid: %+v ok=%v", bid, ok)
	}
	if ask, ok := st.BestAsk(); !ok || ask.Price.String() != "100.5" {
		t.Fatalf("unexpected best ask: %+v ok=%v", ask, ok)
	}
}

func TestDeltaSetEmpty(t *testing.T) {
	if !(DeltaSet{Timestamp: 1}).Empty() {
		t.Fatal("set without changes must be empty")
	}
	if (DeltaSet{Bids: []PriceLevel{Level("1", "1")}}).Empty() {
		t.Fatal("set with a bid change is not empty")
	}
}

func TestDateOf(t *testing.T) {
	// one second before midnight UTC stays on the earlier date regardless
	// of the local zone
	ts := time.Date(2026, 8, 25, 23, 59, 59, 0, time.UTC)
	if got := DateOf(ts); got != "2026-08-25" {
		t.Fatalf("DateOf = %q, want 2026-08-25", got)
	}
	if got := DateOf(ts.In(time.FixedZone("E2", 2*3600))); got != "2026-08-25" {
		t.Fatalf("DateOf in non-UTC zone = %q, want 2026-08-25", got)
	}
}
