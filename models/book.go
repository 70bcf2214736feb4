package models

import (
	"github.com/shopspring/decimal"
)

// PriceLevel is a single price level on one side of the book. Quantity is
// never negative; a zero quantity is the deletion tombstone for its price
// and is never stored inside a book.
type PriceLevel struct {
	Price decimal.Decimal
	Qty   decimal.Decimal
}

// IsTombstone reports whether the level deletes its price.
func (l PriceLevel) IsTombstone() bool {
	return l.Qty.IsZero()
}

// Level constructs a PriceLevel from decimal strings. It panics on
// unparsable input and exists for tests and fixtures; production paths
// parse through the archive decoder.
func Level(price, qty string) PriceLevel {
	return PriceLevel{
		Price: decimal.RequireFromString(price),
		Qty:   decimal.RequireFromString(qty),
	}
}

// BookState is the exported projection of a book at one instant. Both
// sides are ordered best-first: bids by descending price, asks by
// ascending price. Instances are snapshots owned by the caller; mutating
// them never affects the live book they were taken from.
type BookState struct {
	Timestamp int64        `json:"timestamp"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
}

// BestBid returns the highest bid, or false when the side is empty.
func (s BookState) BestBid() (PriceLevel, bool) {
	if len(s.Bids) == 0 {
		return PriceLevel{}, false
	}
	return s.Bids[0], true
}

// BestAsk returns the lowest ask, or false when the side is empty.
func (s BookState) BestAsk() (PriceLevel, bool) {
	if len(s.Asks) == 0 {
		return PriceLevel{}, false
	}
	return s.Asks[0], true
}
