package core

import (
	"fmt"
	"strings"

	"github.com/google/btree"
	"github.com/nikolaydubina/fpdecimal"
)

const btreeDegree = 32

// BookSide is one side (bids or asks) of an order book: price levels ordered
// so that the best price comes first. Bids descend, asks ascend.
type BookSide struct {
	side   Side
	tree   *btree.BTreeG[*PriceLevel]
	levels map[string]*PriceLevel
}

// NewBookSide creates an empty side
func NewBookSide(side Side) *BookSide {
	less := func(a, b *PriceLevel) bool { return a.price.LessThan(b.price) }
	if side == Buy {
		less = func(a, b *PriceLevel) bool { return a.price.GreaterThan(b.price) }
	}

	return &BookSide{
		side:   side,
		tree:   btree.NewG[*PriceLevel](btreeDegree, less),
		levels: make(map[string]*PriceLevel),
	}
}

// Side returns which side of the book this is
func (s *BookSide) Side() Side {
	return s.side
}

// Len returns the number of price levels
func (s *BookSide) Len() int {
	return s.tree.Len()
}

// Best returns the level with the best price
func (s *BookSide) Best() (*PriceLevel, bool) {
	return s.tree.Min()
}

// BestPrice returns the best price, ok is false when the side is empty
func (s *BookSide) BestPrice() (price fpdecimal.Decimal, ok bool) {
	level, ok := s.tree.Min()
	if !ok {
		return fpdecimal.Zero, false
	}
	return level.price, true
}

// Level returns the level at exactly price
func (s *BookSide) Level(price fpdecimal.Decimal) (*PriceLevel, bool) {
	level, ok := s.levels[price.String()]
	return level, ok
}

// Ascend calls fn for each level from the best price outward until fn
// returns false. fn must not insert or remove levels.
func (s *BookSide) Ascend(fn func(level *PriceLevel) bool) {
	s.tree.Ascend(btree.ItemIteratorG[*PriceLevel](fn))
}

// InsertOrGet returns the level for price, creating an empty one if absent
func (s *BookSide) InsertOrGet(price fpdecimal.Decimal) *PriceLevel {
	key := price.String()
	if level, ok := s.levels[key]; ok {
		return level
	}

	level := NewPriceLevel(price)
	s.levels[key] = level
	s.tree.ReplaceOrInsert(level)
	return level
}

// RemoveIfEmpty deletes the level at price if it holds no orders.
// It reports whether a level was deleted.
func (s *BookSide) RemoveIfEmpty(price fpdecimal.Decimal) bool {
	key := price.String()
	level, ok := s.levels[key]
	if !ok || !level.Empty() {
		return false
	}

	delete(s.levels, key)
	s.tree.Delete(level)
	return true
}

// Volume returns the total remaining quantity on this side
func (s *BookSide) Volume() fpdecimal.Decimal {
	total := fpdecimal.Zero
	s.Ascend(func(level *PriceLevel) bool {
		total = total.Add(level.volume)
		return true
	})
	return total
}

// String implements fmt.Stringer interface
func (s *BookSide) String() string {
	sb := strings.Builder{}
	s.Ascend(func(level *PriceLevel) bool {
		sb.WriteString(fmt.Sprintf("\n%s -> orders: %d, volume: %s", level.price, level.count, level.volume))
		return true
	})
	return sb.String()
}
