package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"latencyctl/internal/backend/backendtest"
	"latencyctl/internal/models"
)

func newTestStore(names ...string) *Store {
	s := NewStore(DefaultLogCapacity, fixedClock())
	if len(names) > 0 {
		s.ReplaceTargets(backendtest.Targets(names...))
	}
	return s
}

func TestReplaceTargetsResetsDependentState(t *testing.T) {
	s := newTestStore("a", "b", "c", "d")
	require.True(t, s.ApplyOutcome(models.Outcome{Index: 3, Done: true, Pass: true}))
	s.SelectAll()
	require.NoError(t, s.BeginSession())
	s.ApplyProbeProgress(models.ProbeProgress{Total: 4, Done: 2, Passed: 1, Running: true})

	s.ReplaceTargets(backendtest.Targets("x", "y"))

	snap := s.Snapshot()
	assert.Len(t, snap.Targets, 2)
	assert.Empty(t, snap.Results)
	assert.Empty(t, snap.Selected)
	assert.Equal(t, models.ProbeProgress{Total: 2}, snap.Progress)
	assert.Equal(t, PhaseIdle.String(), snap.Phase)
	assert.False(t, snap.Running)
}

func TestApplyOutcomeDropsOutOfRangeIndices(t *testing.T) {
	s := newTestStore("a", "b")

	assert.False(t, s.ApplyOutcome(models.Outcome{Index: 2, Done: true}))
	assert.False(t, s.ApplyOutcome(models.Outcome{Index: -1, Done: true}))
	assert.True(t, s.ApplyOutcome(models.Outcome{Index: 1, Done: true}))

	for i := range s.Snapshot().Results {
		assert.Less(t, i, s.TargetCount())
	}
}

func TestResultTableUpsertOverwrites(t *testing.T) {
	table := NewResultTable()
	table.Upsert(models.Outcome{Index: 1, Done: true, Pass: true, LatencyMs: []int64{10}})
	table.Upsert(models.Outcome{Index: 1, Done: false, Err: "timeout"})

	got, ok := table.Get(1)
	require.True(t, ok)
	assert.Equal(t, models.Outcome{Index: 1, Err: "timeout"}, got)
	assert.Zero(t, table.PassingCount())

	_, ok = table.Get(0)
	assert.False(t, ok)
}

func TestPassingCountIsRecomputed(t *testing.T) {
	s := newTestStore("a", "b", "c")
	s.ApplyOutcome(models.Outcome{Index: 0, Done: true, Pass: true})
	s.ApplyOutcome(models.Outcome{Index: 1, Done: true, Pass: true})
	s.ApplyOutcome(models.Outcome{Index: 0, Done: true, Pass: false})

	assert.Equal(t, 1, s.PassingCount())
}

func TestSelectFailedAndPassedPartitionTested(t *testing.T) {
	s := newTestStore("a", "b", "c", "d", "e")
	s.ApplyOutcome(models.Outcome{Index: 0, Done: true, Pass: true})
	s.ApplyOutcome(models.Outcome{Index: 1, Done: true, Pass: false})
	s.ApplyOutcome(models.Outcome{Index: 3, Done: true, Pass: true})
	s.ApplyOutcome(models.Outcome{Index: 4, Done: false, Pass: false})

	s.SelectFailed()
	failed := s.Selected()
	s.SelectPassed()
	passed := s.Selected()

	assert.Equal(t, []int{1}, failed)
	assert.Equal(t, []int{0, 3}, passed)

	covered := map[int]bool{}
	for _, i := range append(failed, passed...) {
		assert.False(t, covered[i], "index %d in both sets", i)
		covered[i] = true
	}
	for i := 0; i < s.TargetCount(); i++ {
		if covered[i] {
			continue
		}
		o, ok := s.Result(i)
		assert.True(t, !ok || !o.Done, "index %d is tested but unselected", i)
	}
}

func TestSelectionToggleAndBounds(t *testing.T) {
	s := newTestStore("a", "b", "c")
	s.Toggle(1)
	s.Toggle(2)
	s.Toggle(1)
	s.Toggle(7)
	s.Toggle(-1)

	assert.Equal(t, []int{2}, s.Selected())

	s.SelectAll()
	assert.Equal(t, 3, s.SelectedCount())
	s.DeselectAll()
	assert.Zero(t, s.SelectedCount())
}

func TestTerminalTransitionIsIdempotent(t *testing.T) {
	s := newTestStore("a", "b", "c", "d", "e")
	require.NoError(t, s.BeginSession())

	assert.True(t, s.ApplyLookupProgress(models.LookupProgress{Done: 5, Total: 5}))
	assert.False(t, s.Running())
	assert.False(t, s.Progress().Running)

	assert.False(t, s.Finish())
	assert.False(t, s.Finish())
	assert.False(t, s.ApplyLookupProgress(models.LookupProgress{Done: 5, Total: 5}))
	assert.Equal(t, PhaseCompleted, s.Phase())
	assert.False(t, s.Running())
}

func TestLookupWithZeroTotalDoesNotFinish(t *testing.T) {
	s := newTestStore("a")
	require.NoError(t, s.BeginSession())

	assert.False(t, s.ApplyLookupProgress(models.LookupProgress{}))
	assert.False(t, s.ApplyLookupProgress(models.LookupProgress{Done: 1, Total: 3}))
	assert.True(t, s.Running())
}

func TestLateProbeProgressCannotRestartSession(t *testing.T) {
	s := newTestStore("a", "b")
	require.NoError(t, s.BeginSession())
	s.Finish()

	s.ApplyProbeProgress(models.ProbeProgress{Total: 2, Done: 2, Passed: 1, Running: true})

	assert.Equal(t, models.ProbeProgress{Total: 2, Done: 2, Passed: 1}, s.Progress())
	assert.False(t, s.Running())
}

func TestBeginSessionRejectsSecondStart(t *testing.T) {
	s := newTestStore("a")
	require.NoError(t, s.BeginSession())
	s.ApplyOutcome(models.Outcome{Index: 0, Done: true, Pass: true})
	before := s.Snapshot()

	assert.ErrorIs(t, s.BeginSession(), ErrAlreadyRunning)
	assert.Equal(t, before, s.Snapshot())
}

func TestStopPhases(t *testing.T) {
	s := newTestStore("a")
	assert.False(t, s.BeginStop())

	require.NoError(t, s.BeginSession())
	assert.True(t, s.BeginStop())
	assert.Equal(t, PhaseStopping, s.Phase())
	assert.True(t, s.Running())

	s.AbortStop()
	assert.Equal(t, PhaseRunning, s.Phase())
}

func TestRefreshTargetsSameLengthKeepsResults(t *testing.T) {
	s := newTestStore("a", "b")
	s.ApplyOutcome(models.Outcome{Index: 1, Done: true, Pass: true})
	s.Toggle(1)

	renamed := backendtest.Targets("a", "b")
	renamed[1].Name = "HK-01"
	assert.False(t, s.RefreshTargets(renamed))

	assert.Equal(t, "HK-01", s.Targets()[1].Name)
	_, ok := s.Result(1)
	assert.True(t, ok)
	assert.Equal(t, []int{1}, s.Selected())
}

func TestRefreshTargetsNewLengthResetsButKeepsRunning(t *testing.T) {
	s := newTestStore("a", "b", "c")
	require.NoError(t, s.BeginSession())
	s.ApplyOutcome(models.Outcome{Index: 2, Done: true})
	s.Toggle(2)

	assert.True(t, s.RefreshTargets(backendtest.Targets("a")))

	snap := s.Snapshot()
	assert.Empty(t, snap.Results)
	assert.Empty(t, snap.Selected)
	assert.True(t, snap.Running)
	assert.Equal(t, 1, snap.Progress.Total)
}

func TestChangedFiresOnMutation(t *testing.T) {
	s := newTestStore()
	ch := s.Changed()
	v := s.Version()

	s.AppendLog("hello")

	select {
	case <-ch:
	default:
		t.Fatal("changed channel not closed")
	}
	assert.Equal(t, v+1, s.Version())
	assert.Equal(t, []string{"[13:04:05] hello"}, s.Logs(0))
}

func TestSettingsMirror(t *testing.T) {
	s := newTestStore()
	assert.Equal(t, models.DefaultSettings(), s.Settings())
	assert.False(t, s.Snapshot().SettingsLoaded)

	loaded := models.DefaultSettings()
	loaded.Attempts = 7
	loaded.ExcludeKeywords = []string{"expired"}
	s.LoadSettings(loaded)

	got := s.Settings()
	assert.Equal(t, 7, got.Attempts)
	got.ExcludeKeywords[0] = "mutated"
	assert.Equal(t, []string{"expired"}, s.Settings().ExcludeKeywords)
	assert.True(t, s.Snapshot().SettingsLoaded)
}
