package session

import "slices"

// Filled records that a word token occupies a blank position.
type Filled struct {
	Word     int `json:"word"`
	Position int `json:"position"`
}

// Snapshot is the full shared state of one challenge. It is always built
// fresh from the store, never cached.
type Snapshot struct {
	Locks     []int    `json:"locks"`
	Filled    []Filled `json:"filled"`
	Submitted bool     `json:"submitted"`
}

func EmptySnapshot() Snapshot {
	return Snapshot{Locks: []int{}, Filled: []Filled{}}
}

func (s Snapshot) IsLocked(word int) bool {
	return slices.Contains(s.Locks, word)
}

// PlacementAt returns the placement occupying position, if any.
func (s Snapshot) PlacementAt(position int) (Filled, bool) {
	i := slices.IndexFunc(s.Filled, func(f Filled) bool { return f.Position == position })
	if i < 0 {
		return Filled{}, false
	}
	return s.Filled[i], true
}

// IsPlaced reports whether word already sits in some position.
func (s Snapshot) IsPlaced(word int) bool {
	return slices.ContainsFunc(s.Filled, func(f Filled) bool { return f.Word == word })
}
