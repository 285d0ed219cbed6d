package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"latencyctl/internal/models"
)

func TestComputeSummaryGroupsBySchemes(t *testing.T) {
	targets := []models.Target{
		{Index: 0, Scheme: "VLESS"},
		{Index: 1, Scheme: "vless"},
		{Index: 2, Scheme: "trojan"},
		{Index: 3, Scheme: ""},
		{Index: 4, Scheme: "vless"},
	}
	results := map[int]models.Outcome{
		0: {Index: 0, Done: true, Pass: true, AvgMs: 100},
		1: {Index: 1, Done: true, Pass: true, AvgMs: 51},
		2: {Index: 2, Done: true, Pass: false},
		4: {Index: 4, Done: false},
		9: {Index: 9, Done: true, Pass: true},
	}

	got := ComputeSummary(targets, results)

	assert.Equal(t, 5, got.Targets)
	assert.Equal(t, 3, got.Tested)
	assert.Equal(t, 2, got.Passing)
	assert.Equal(t, 1, got.Failing)
	assert.Equal(t, 66.67, got.PassPercent)

	require.Len(t, got.Schemes, 3)
	assert.Equal(t, SchemeSummary{Scheme: "trojan", Targets: 1, Tested: 1, Failing: 1}, got.Schemes[0])
	assert.Equal(t, SchemeSummary{Scheme: "unknown", Targets: 1}, got.Schemes[1])
	assert.Equal(t, SchemeSummary{
		Scheme: "vless", Targets: 3, Tested: 2, Passing: 2,
		PassPercent: 100, AvgLatencyMs: 75.5, BestMs: 51,
	}, got.Schemes[2])
}

func TestComputeSummaryEmpty(t *testing.T) {
	got := ComputeSummary(nil, nil)
	assert.Zero(t, got.Targets)
	assert.NotNil(t, got.Schemes)
	assert.Empty(t, got.Schemes)
}
