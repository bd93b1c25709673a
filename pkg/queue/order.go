package queue

import (
	"cmp"
	"slices"
)

// Less reports whether a must be dispatched before b:
// priority ascending, then createdAt ascending, then insertion sequence.
func Less(a, b *Item) bool {
	return Compare(a, b) < 0
}

// Compare orders items by the dispatch contract.
func Compare(a, b *Item) int {
	if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
		return c
	}
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Seq, b.Seq); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// SortForDispatch sorts items in place in dispatch order.
func SortForDispatch(items []*Item) {
	slices.SortStableFunc(items, Compare)
}
