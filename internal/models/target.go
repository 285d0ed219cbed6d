package models

// Target defines a single endpoint imported into the backend test engine.
// Index is assigned by the backend and is only meaningful for the target
// list it arrived with.
type Target struct {
	Index    int    `json:"index"`
	Name     string `json:"name"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Scheme   string `json:"scheme"`
	Region   string `json:"region"`
	Security string `json:"security"`
}

// Outcome captures the latest known test result of a target.
type Outcome struct {
	Index      int     `json:"index"`
	Done       bool    `json:"done"`
	Pass       bool    `json:"pass"`
	Err        string  `json:"err"`
	AvgMs      int64   `json:"avgMs"`
	MaxMs      int64   `json:"maxMs"`
	LatencyMs  []int64 `json:"latencyMs"`
	Attempts   int     `json:"attempts"`
	Successful int     `json:"successful"`
}

// ProbeProgress is the running tally of the primary probe phase.
type ProbeProgress struct {
	Total   int  `json:"total"`
	Done    int  `json:"done"`
	Passed  int  `json:"passed"`
	Running bool `json:"running"`
}

// LookupProgress tracks the secondary exit-IP lookup phase.
type LookupProgress struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

// Finished reports whether the lookup phase reached its total.
func (p LookupProgress) Finished() bool {
	return p.Total > 0 && p.Done >= p.Total
}

// CloneTargets returns an independent copy of targets, never nil.
func CloneTargets(targets []Target) []Target {
	out := make([]Target, len(targets))
	copy(out, targets)
	return out
}

// Clone returns a copy of the outcome that does not share LatencyMs.
func (o Outcome) Clone() Outcome {
	if o.LatencyMs != nil {
		o.LatencyMs = append([]int64(nil), o.LatencyMs...)
	}
	return o
}
