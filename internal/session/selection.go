package session

import "sort"

// Selection is the set of target indices the user has marked.
type Selection struct {
	members map[int]struct{}
}

// NewSelection creates an empty selection.
func NewSelection() *Selection {
	return &Selection{members: make(map[int]struct{})}
}

// Toggle flips membership of i. Indices outside [0, size) are ignored.
func (s *Selection) Toggle(i, size int) {
	if i < 0 || i >= size {
		return
	}
	if _, ok := s.members[i]; ok {
		delete(s.members, i)
		return
	}
	s.members[i] = struct{}{}
}

// All selects every index in [0, size).
func (s *Selection) All(size int) {
	for i := 0; i < size; i++ {
		s.members[i] = struct{}{}
	}
}

// Clear deselects everything.
func (s *Selection) Clear() {
	clear(s.members)
}

// Recompute rebuilds the set from scratch: index i is selected iff its
// outcome exists, is done, and its pass flag equals pass.
func (s *Selection) Recompute(size int, results *ResultTable, pass bool) {
	s.Clear()
	for i := 0; i < size; i++ {
		o, ok := results.Get(i)
		if ok && o.Done && o.Pass == pass {
			s.members[i] = struct{}{}
		}
	}
}

// Has reports whether i is selected.
func (s *Selection) Has(i int) bool {
	_, ok := s.members[i]
	return ok
}

// Len returns the number of selected indices.
func (s *Selection) Len() int {
	return len(s.members)
}

// Indices returns the selected indices in ascending order.
func (s *Selection) Indices() []int {
	out := make([]int, 0, len(s.members))
	for i := range s.members {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}
