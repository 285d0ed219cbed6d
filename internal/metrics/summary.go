package metrics

import (
	"math"
	"sort"
	"strings"

	"latencyctl/internal/models"
)

// SchemeSummary summarises test outcomes of all targets sharing a scheme.
type SchemeSummary struct {
	Scheme       string  `json:"scheme"`
	Targets      int     `json:"targets"`
	Tested       int     `json:"tested"`
	Passing      int     `json:"passing"`
	Failing      int     `json:"failing"`
	PassPercent  float64 `json:"pass_percent"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	BestMs       int64   `json:"best_ms,omitempty"`
}

// Summary is the session-wide roll-up plus the per-scheme breakdown.
type Summary struct {
	Targets     int             `json:"targets"`
	Tested      int             `json:"tested"`
	Passing     int             `json:"passing"`
	Failing     int             `json:"failing"`
	PassPercent float64         `json:"pass_percent"`
	Schemes     []SchemeSummary `json:"schemes"`
}

// ComputeSummary aggregates finished outcomes per target scheme. Outcomes
// whose index is not in targets are ignored.
func ComputeSummary(targets []models.Target, results map[int]models.Outcome) Summary {
	type acc struct {
		targets  int
		tested   int
		passing  int
		failing  int
		latency  int64
		measured int
		best     int64
	}
	state := make(map[string]*acc)
	var total acc

	for i, target := range targets {
		scheme := strings.ToLower(target.Scheme)
		if scheme == "" {
			scheme = "unknown"
		}
		a := state[scheme]
		if a == nil {
			a = &acc{}
			state[scheme] = a
		}
		a.targets++
		total.targets++

		outcome, ok := results[i]
		if !ok || !outcome.Done {
			continue
		}
		a.tested++
		total.tested++
		if !outcome.Pass {
			a.failing++
			total.failing++
			continue
		}
		a.passing++
		total.passing++
		if outcome.AvgMs > 0 {
			a.latency += outcome.AvgMs
			a.measured++
			if a.best == 0 || outcome.AvgMs < a.best {
				a.best = outcome.AvgMs
			}
		}
	}

	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	summary := Summary{
		Targets:     total.targets,
		Tested:      total.tested,
		Passing:     total.passing,
		Failing:     total.failing,
		PassPercent: percent(total.passing, total.tested),
		Schemes:     make([]SchemeSummary, 0, len(keys)),
	}
	for _, scheme := range keys {
		data := state[scheme]
		s := SchemeSummary{
			Scheme:      scheme,
			Targets:     data.targets,
			Tested:      data.tested,
			Passing:     data.passing,
			Failing:     data.failing,
			PassPercent: percent(data.passing, data.tested),
			BestMs:      data.best,
		}
		if data.measured > 0 {
			s.AvgLatencyMs = round2(float64(data.latency) / float64(data.measured))
		}
		summary.Schemes = append(summary.Schemes, s)
	}
	return summary
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return round2(float64(part) / float64(whole) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
