package session

import (
	"sort"

	"latencyctl/internal/models"
)

// ResultTable is a sparse map from target index to its latest outcome.
// A missing entry means the target has not been tested.
type ResultTable struct {
	byIndex map[int]models.Outcome
}

// NewResultTable creates an empty table.
func NewResultTable() *ResultTable {
	return &ResultTable{byIndex: make(map[int]models.Outcome)}
}

// Upsert overwrites whatever is stored for outcome.Index.
func (t *ResultTable) Upsert(outcome models.Outcome) {
	t.byIndex[outcome.Index] = outcome.Clone()
}

// Get returns the stored outcome for index.
func (t *ResultTable) Get(index int) (models.Outcome, bool) {
	o, ok := t.byIndex[index]
	if !ok {
		return models.Outcome{}, false
	}
	return o.Clone(), true
}

// Clear empties the table.
func (t *ResultTable) Clear() {
	clear(t.byIndex)
}

// PassingCount counts outcomes marked as passing. It is recomputed on every
// call so that out-of-order upserts can never leave a stale tally.
func (t *ResultTable) PassingCount() int {
	n := 0
	for _, o := range t.byIndex {
		if o.Pass {
			n++
		}
	}
	return n
}

// Len returns the number of tested targets.
func (t *ResultTable) Len() int {
	return len(t.byIndex)
}

// Indices returns the tested indices in ascending order.
func (t *ResultTable) Indices() []int {
	out := make([]int, 0, len(t.byIndex))
	for i := range t.byIndex {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// All returns a copy of every stored outcome keyed by index.
func (t *ResultTable) All() map[int]models.Outcome {
	out := make(map[int]models.Outcome, len(t.byIndex))
	for i, o := range t.byIndex {
		out[i] = o.Clone()
	}
	return out
}
