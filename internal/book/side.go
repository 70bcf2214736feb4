// Package book implements the sorted two-sided price-level book shared by
// the depth-reduction transcoder and the temporal replay engine. All price
// arithmetic is exact decimal so that formatting round-trips losslessly and
// tombstone matches compare by value, never by binary-float approximation.
package book

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/dzakarias/orderbook-replayer/models"
)

// Side is one ordered half of a book. Prices are unique, the sequence is
// fully sorted after every operation and index 0 is the best price:
// descending for bids, ascending for asks. No stored level has zero
// quantity.
type Side struct {
	levels []models.PriceLevel
	bid    bool
}

// NewSide returns an empty side. bid selects descending price order.
func NewSide(bid bool) *Side {
	return &Side{bid: bid}
}

// SideFromLevels builds a side from an unsorted level slice. Tombstones in
// the input are dropped. The input slice is not retained.
func SideFromLevels(levels []models.PriceLevel, bid bool) *Side {
	s := &Side{bid: bid, levels: make([]models.PriceLevel, 0, len(levels))}
	for _, l := range levels {
		if !l.IsTombstone() {
			s.levels = append(s.levels, l)
		}
	}
	sort.Slice(s.levels, func(i, j int) bool {
		return s.less(s.levels[i].Price, s.levels[j].Price)
	})
	return s
}

func (s *Side) less(a, b decimal.Decimal) bool {
	if s.bid {
		return a.GreaterThan(b)
	}
	return a.LessThan(b)
}

// Locate returns the rank of price on this side and whether it is present.
// When absent, the returned index is the insertion point that keeps the
// side sorted.
func (s *Side) Locate(price decimal.Decimal) (int, bool) {
	idx := sort.Search(len(s.levels), func(i int) bool {
		return !s.less(s.levels[i].Price, price)
	})
	if idx < len(s.levels) && s.levels[idx].Price.Equal(price) {
		return idx, true
	}
	return idx, false
}

// Apply inserts, overwrites or removes the level at its price. A zero
// quantity removes the entry when present and is a no-op otherwise.
func (s *Side) Apply(level models.PriceLevel) {
	idx, found := s.Locate(level.Price)
	switch {
	case level.IsTombstone():
		if found {
			s.levels = append(s.levels[:idx], s.levels[idx+1:]...)
		}
	case found:
		s.levels[idx] = level
	default:
		s.levels = append(s.levels, models.PriceLevel{})
		copy(s.levels[idx+1:], s.levels[idx:])
		s.levels[idx] = level
	}
}

// Len returns the number of stored levels.
func (s *Side) Len() int {
	return len(s.levels)
}

// Level returns the level at rank i. i must be within [0, Len).
func (s *Side) Level(i int) models.PriceLevel {
	return s.levels[i]
}

// Qty returns the stored quantity at price, or false when the price is
// not present.
func (s *Side) Qty(price decimal.Decimal) (decimal.Decimal, bool) {
	idx, found := s.Locate(price)
	if !found {
		return decimal.Decimal{}, false
	}
	return s.levels[idx].Qty, true
}

// TopK returns the best-priced k levels as a fresh slice. It returns all
// levels when fewer than k are stored and never mutates the side.
func (s *Side) TopK(k int) []models.PriceLevel {
	if k > len(s.levels) {
		k = len(s.levels)
	}
	if k < 0 {
		k = 0
	}
	out := make([]models.PriceLevel, k)
	copy(out, s.levels[:k])
	return out
}

// Levels returns a copy of every stored level, best first.
func (s *Side) Levels() []models.PriceLevel {
	return s.TopK(len(s.levels))
}

// Clone returns an independent copy of the side.
func (s *Side) Clone() *Side {
	c := &Side{bid: s.bid, levels: make([]models.PriceLevel, len(s.levels))}
	copy(c.levels, s.levels)
	return c
}
