package segment

import (
	"cmp"
	"context"
	"slices"
	"sync"
)

// MemDirectory is an in-memory Directory.
type MemDirectory struct {
	members []Member
	mu      sync.RWMutex
}

// NewMemDirectory creates a directory holding members.
func NewMemDirectory(members ...Member) *MemDirectory {
	d := &MemDirectory{}
	d.Add(members...)
	return d
}

// Add inserts members, keeping id order.
func (d *MemDirectory) Add(members ...Member) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.members = append(d.members, members...)
	slices.SortStableFunc(d.members, func(a, b Member) int { return cmp.Compare(a.ID, b.ID) })
}

// QueryUsers implements Directory.
func (d *MemDirectory) QueryUsers(_ context.Context, f Filter) ([]Member, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []Member
	for _, m := range d.members {
		if !f.Match(m) {
			continue
		}
		out = append(out, m)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

// CountUsers implements Directory.
func (d *MemDirectory) CountUsers(_ context.Context, f Filter) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	n := 0
	for _, m := range d.members {
		if f.Match(m) {
			n++
		}
	}
	return n, nil
}
