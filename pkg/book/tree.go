package book

import (
	rbt "github.com/emirpasic/gods/trees/redblacktree"
	"github.com/shopspring/decimal"
)

// levelTree is one side of the book: a red-black tree of price levels keyed
// by exact price. The comparator fixes the sort order so that Left() is
// always the best level for the side (highest bid, lowest ask).
type levelTree struct {
	tree *rbt.Tree
}

func newLevelTree(side Side) *levelTree {
	cmp := func(a, b interface{}) int {
		return a.(decimal.Decimal).Cmp(b.(decimal.Decimal))
	}
	if side == Buy {
		// bids sort descending so the best bid is the tree minimum
		cmp = func(a, b interface{}) int {
			return b.(decimal.Decimal).Cmp(a.(decimal.Decimal))
		}
	}
	return &levelTree{tree: rbt.NewWith(cmp)}
}

func (t *levelTree) get(price decimal.Decimal) (*PriceLevel, bool) {
	v, found := t.tree.Get(price)
	if !found {
		return nil, false
	}
	return v.(*PriceLevel), true
}

func (t *levelTree) put(level *PriceLevel) {
	t.tree.Put(level.Price(), level)
}

func (t *levelTree) remove(price decimal.Decimal) {
	t.tree.Remove(price)
}

// best returns the first level in side order, nil when the side is empty
func (t *levelTree) best() *PriceLevel {
	node := t.tree.Left()
	if node == nil {
		return nil
	}
	return node.Value.(*PriceLevel)
}

func (t *levelTree) size() int {
	return t.tree.Size()
}

func (t *levelTree) clear() {
	t.tree.Clear()
}

// levels returns every level in side order (best first)
func (t *levelTree) levels() []*PriceLevel {
	out := make([]*PriceLevel, 0, t.tree.Size())
	it := t.tree.Iterator()
	for it.Next() {
		out = append(out, it.Value().(*PriceLevel))
	}
	return out
}
