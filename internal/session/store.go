package session

import (
	"errors"
	"sync"
	"time"

	"latencyctl/internal/models"
)

// ErrAlreadyRunning is returned when a session is started while another one
// is still active.
var ErrAlreadyRunning = errors.New("test session already running")

// Snapshot is a consistent, self-contained copy of the controller state.
type Snapshot struct {
	Version        uint64                 `json:"version"`
	Phase          string                 `json:"phase"`
	Running        bool                   `json:"running"`
	Targets        []models.Target        `json:"targets"`
	Results        map[int]models.Outcome `json:"results"`
	Progress       models.ProbeProgress   `json:"progress"`
	Lookup         models.LookupProgress  `json:"lookup"`
	Selected       []int                  `json:"selected"`
	PassingCount   int                    `json:"passing_count"`
	SelectedCount  int                    `json:"selected_count"`
	Settings       models.Settings        `json:"settings"`
	SettingsLoaded bool                   `json:"settings_loaded"`
}

// Store owns every piece of session state. All mutation goes through its
// methods, which serialise on a single lock; callers never see internal
// slices or maps.
type Store struct {
	mu        sync.RWMutex
	targets   []models.Target
	results   *ResultTable
	progress  Progress
	selection *Selection
	logs      *LogRing
	settings  *SettingsMirror

	version    uint64
	generation uint64
	changed    chan struct{}
}

// NewStore creates an empty store. now may be nil to use the wall clock.
func NewStore(logCapacity int, now func() time.Time) *Store {
	return &Store{
		targets:   []models.Target{},
		results:   NewResultTable(),
		selection: NewSelection(),
		logs:      NewLogRing(logCapacity, now),
		settings:  NewSettingsMirror(),
		changed:   make(chan struct{}),
	}
}

// touchLocked bumps the version and wakes everyone waiting on Changed.
func (s *Store) touchLocked() {
	s.version++
	close(s.changed)
	s.changed = make(chan struct{})
}

// Changed returns a channel that is closed on the next mutation.
func (s *Store) Changed() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.changed
}

// Version increases by one on every mutation.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// ReplaceTargets installs a new target list and, in the same step, clears
// results and selection and resets progress to an idle tally of the new
// size.
func (s *Store) ReplaceTargets(targets []models.Target) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceTargetsLocked(targets)
	s.touchLocked()
}

func (s *Store) replaceTargetsLocked(targets []models.Target) {
	s.generation++
	s.targets = models.CloneTargets(targets)
	s.results.Clear()
	s.selection.Clear()
	s.progress.Reset(len(s.targets))
}

// RefreshTargets applies a backend-driven list update. A list of the same
// length keeps indices intact and only swaps the records; anything else is
// treated as a full replacement. It reports whether dependent state was
// reset.
func (s *Store) RefreshTargets(targets []models.Target) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.touchLocked()

	if len(targets) == len(s.targets) {
		s.generation++
		s.targets = models.CloneTargets(targets)
		return false
	}
	phase := s.progress.Phase()
	s.replaceTargetsLocked(targets)
	if phase.Active() {
		s.progress.resume(phase)
	}
	return true
}

// Generation increases whenever the target list is replaced or refreshed.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Resync replaces the target list like ReplaceTargets and then restores the
// running phase reported by the backend. It does nothing and returns false
// when the list changed since generation was read, since targets is then
// older than what the store holds.
func (s *Store) Resync(generation uint64, targets []models.Target, running bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != generation {
		return false
	}
	s.replaceTargetsLocked(targets)
	if running {
		s.progress.Begin()
	}
	s.touchLocked()
	return true
}

// Targets returns a copy of the current target list.
func (s *Store) Targets() []models.Target {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.CloneTargets(s.targets)
}

// TargetCount returns the length of the current target list.
func (s *Store) TargetCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.targets)
}

// ApplyOutcome records a pushed outcome. Outcomes addressing an index
// outside the current list are dropped and false is returned.
func (s *Store) ApplyOutcome(o models.Outcome) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.Index < 0 || o.Index >= len(s.targets) {
		return false
	}
	s.results.Upsert(o)
	s.touchLocked()
	return true
}

// Result returns the latest outcome for index.
func (s *Store) Result(index int) (models.Outcome, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.results.Get(index)
}

// PassingCount returns the number of passing outcomes.
func (s *Store) PassingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.results.PassingCount()
}

// ApplyProbeProgress replaces the probe-phase snapshot.
func (s *Store) ApplyProbeProgress(p models.ProbeProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress.SetProbe(p)
	s.touchLocked()
}

// ApplyLookupProgress replaces the lookup-phase snapshot. It reports whether
// the update completed the session.
func (s *Store) ApplyLookupProgress(p models.LookupProgress) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	finished := s.progress.SetLookup(p)
	s.touchLocked()
	return finished
}

// Finish moves an active session to completed. Repeated calls are no-ops.
func (s *Store) Finish() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.progress.Finish() {
		return false
	}
	s.touchLocked()
	return true
}

// BeginSession marks a session as running, clears results and zeroes the
// lookup snapshot. It fails with ErrAlreadyRunning and leaves state alone
// when a session is already active.
func (s *Store) BeginSession() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.progress.Running() {
		return ErrAlreadyRunning
	}
	s.progress.Begin()
	s.results.Clear()
	s.touchLocked()
	return nil
}

// BeginStop records a pending stop. It reports false when no session is
// running.
func (s *Store) BeginStop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.progress.BeginStop() {
		return false
	}
	s.touchLocked()
	return true
}

// AbortStop undoes BeginStop after the backend rejected the request.
func (s *Store) AbortStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress.AbortStop()
	s.touchLocked()
}

// Phase returns the session phase.
func (s *Store) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress.Phase()
}

// Running reports whether a session is active.
func (s *Store) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress.Running()
}

// Progress returns the probe-phase snapshot.
func (s *Store) Progress() models.ProbeProgress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress.Probe()
}

// Lookup returns the lookup-phase snapshot.
func (s *Store) Lookup() models.LookupProgress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress.Lookup()
}

// Toggle flips selection of index i.
func (s *Store) Toggle(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection.Toggle(i, len(s.targets))
	s.touchLocked()
}

// SelectAll selects every target.
func (s *Store) SelectAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection.All(len(s.targets))
	s.touchLocked()
}

// DeselectAll clears the selection.
func (s *Store) DeselectAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection.Clear()
	s.touchLocked()
}

// SelectFailed selects exactly the targets whose finished outcome failed.
func (s *Store) SelectFailed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection.Recompute(len(s.targets), s.results, false)
	s.touchLocked()
}

// SelectPassed selects exactly the targets whose finished outcome passed.
func (s *Store) SelectPassed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection.Recompute(len(s.targets), s.results, true)
	s.touchLocked()
}

// Selected returns the selected indices in ascending order.
func (s *Store) Selected() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selection.Indices()
}

// SelectedCount returns the selection size.
func (s *Store) SelectedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selection.Len()
}

// AppendLog adds a diagnostic line to the log ring.
func (s *Store) AppendLog(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs.Append(line)
	s.touchLocked()
}

// Logs returns up to limit of the newest log lines; limit <= 0 returns all.
func (s *Store) Logs(limit int) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logs.Tail(limit)
}

// LoadSettings overwrites the mirror with backend settings.
func (s *Store) LoadSettings(settings models.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.Load(settings)
	s.touchLocked()
}

// WriteSettings stores locally edited settings.
func (s *Store) WriteSettings(settings models.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.Write(settings)
	s.touchLocked()
}

// Settings returns the mirrored settings.
func (s *Store) Settings() models.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.Get()
}

// Snapshot copies the whole state under one read lock.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Version:        s.version,
		Phase:          s.progress.Phase().String(),
		Running:        s.progress.Running(),
		Targets:        models.CloneTargets(s.targets),
		Results:        s.results.All(),
		Progress:       s.progress.Probe(),
		Lookup:         s.progress.Lookup(),
		Selected:       s.selection.Indices(),
		PassingCount:   s.results.PassingCount(),
		SelectedCount:  s.selection.Len(),
		Settings:       s.settings.Get(),
		SettingsLoaded: s.settings.Loaded(),
	}
}
