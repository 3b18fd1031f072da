package reconstruct

import "image"

// Entry is one unplaced tile. Index is the tile's position in the slice the
// pool was built from and stays stable while other entries are evicted.
type Entry struct {
	Index int
	Tile  *image.NRGBA
}

// Pool is the shrinking set of tiles not yet committed to the canvas. Entries
// keep the order they were supplied in; that order only matters for breaking
// score ties.
type Pool struct {
	entries []Entry
}

// NewPool builds a pool over tiles. The pool takes ownership of the slice
// elements but not of the slice itself.
func NewPool(tiles []*image.NRGBA) *Pool {
	entries := make([]Entry, len(tiles))
	for i, tile := range tiles {
		entries[i] = Entry{Index: i, Tile: tile}
	}
	return &Pool{entries: entries}
}

// Len returns the number of remaining tiles.
func (p *Pool) Len() int {
	return len(p.entries)
}

// Snapshot returns a copy of the remaining entries in enumeration order.
// Scoring workers read the snapshot only, never the pool.
func (p *Pool) Snapshot() []Entry {
	return append([]Entry(nil), p.entries...)
}

// Remove evicts the entry with the given index. It reports false if no such
// entry remains.
func (p *Pool) Remove(index int) bool {
	for i, e := range p.entries {
		if e.Index == index {
			p.entries = append(p.entries[:i], p.entries[i+1:]...)
			return true
		}
	}
	return false
}
