package book

import (
	"github.com/dzakarias/orderbook-replayer/models"
)

// Book is a live two-sided order book projection. Exactly one component
// owns a Book at a time; delta sets mutate it in place.
type Book struct {
	Bids *Side
	Asks *Side

	Timestamp int64
	Seq       int64
}

// New returns an empty book.
func New() *Book {
	return &Book{Bids: NewSide(true), Asks: NewSide(false)}
}

// FromSnapshot builds a book from an archive snapshot record. The record's
// level order is not trusted; both sides are re-sorted.
func FromSnapshot(s models.Snapshot) *Book {
	return &Book{
		Bids:      SideFromLevels(s.Bids, true),
		Asks:      SideFromLevels(s.Asks, false),
		Timestamp: s.Timestamp,
		Seq:       s.Seq,
	}
}

// ApplyDeltaSet applies every change in d atomically and advances the
// book's timestamp and sequence.
func (b *Book) ApplyDeltaSet(d models.DeltaSet) {
	for _, l := range d.Bids {
		b.Bids.Apply(l)
	}
	for _, l := range d.Asks {
		b.Asks.Apply(l)
	}
	b.Timestamp = d.Timestamp
	b.Seq = d.Seq
}

// State materializes the book as a BookState, each side truncated to
// depth levels. depth <= 0 returns every stored level.
func (b *Book) State(depth int) models.BookState {
	bd, ad := depth, depth
	if depth <= 0 {
		bd, ad = b.Bids.Len(), b.Asks.Len()
	}
	return models.BookState{
		Timestamp: b.Timestamp,
		Bids:      b.Bids.TopK(bd),
		Asks:      b.Asks.TopK(ad),
	}
}

// Snapshot materializes the book as an archive snapshot record truncated
// to depth levels per side. depth <= 0 keeps every level.
func (b *Book) Snapshot(depth int) models.Snapshot {
	st := b.State(depth)
	return models.Snapshot{
		Timestamp: b.Timestamp,
		Seq:       b.Seq,
		Bids:      st.Bids,
		Asks:      st.Asks,
	}
}

// Clone returns an independent deep copy, used for checkpointing.
func (b *Book) Clone() *Book {
	return &Book{
		Bids:      b.Bids.Clone(),
		Asks:      b.Asks.Clone(),
		Timestamp: b.Timestamp,
		Seq:       b.Seq,
	}
}
