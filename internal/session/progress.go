package session

import "latencyctl/internal/models"

// Phase is the lifecycle state of a test session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhaseStopping
	PhaseCompleted
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRunning:
		return "running"
	case PhaseStopping:
		return "stopping"
	case PhaseCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Active reports whether the session is still considered running.
func (p Phase) Active() bool {
	return p == PhaseRunning || p == PhaseStopping
}

// Progress holds the probe-phase and lookup-phase snapshots together with
// the session phase. Every terminal trigger goes through Finish, which is a
// no-op once the session is no longer active.
type Progress struct {
	phase  Phase
	probe  models.ProbeProgress
	lookup models.LookupProgress
}

// Reset returns to idle with an empty probe tally sized for total targets.
func (p *Progress) Reset(total int) {
	p.phase = PhaseIdle
	p.probe = models.ProbeProgress{Total: total}
	p.lookup = models.LookupProgress{}
}

// Begin enters the running phase and zeroes the lookup snapshot.
func (p *Progress) Begin() {
	p.phase = PhaseRunning
	p.probe.Running = true
	p.lookup = models.LookupProgress{}
}

// resume restores an active phase after the tally was reset under a
// running session.
func (p *Progress) resume(phase Phase) {
	p.phase = phase
	p.probe.Running = phase.Active()
}

// BeginStop marks a pending stop request. It reports false when there is
// nothing to stop.
func (p *Progress) BeginStop() bool {
	if p.phase != PhaseRunning {
		return false
	}
	p.phase = PhaseStopping
	return true
}

// AbortStop returns a stopping session to running after a rejected stop.
func (p *Progress) AbortStop() {
	if p.phase == PhaseStopping {
		p.phase = PhaseRunning
	}
}

// Finish performs the terminal transition. It reports whether the state
// actually changed.
func (p *Progress) Finish() bool {
	if !p.phase.Active() {
		p.probe.Running = false
		return false
	}
	p.phase = PhaseCompleted
	p.probe.Running = false
	return true
}

// SetProbe replaces the probe snapshot. A snapshot arriving after the
// session ended cannot mark it running again.
func (p *Progress) SetProbe(snap models.ProbeProgress) {
	if !p.phase.Active() {
		snap.Running = false
	}
	p.probe = snap
}

// SetLookup replaces the lookup snapshot and finishes the session once the
// lookup phase reaches its total. It reports whether that finished it.
func (p *Progress) SetLookup(snap models.LookupProgress) bool {
	p.lookup = snap
	if snap.Finished() {
		return p.Finish()
	}
	return false
}

// Phase returns the current lifecycle phase.
func (p *Progress) Phase() Phase { return p.phase }

// Running reports whether a session is active.
func (p *Progress) Running() bool { return p.phase.Active() }

// Probe returns the probe-phase snapshot.
func (p *Progress) Probe() models.ProbeProgress { return p.probe }

// Lookup returns the lookup-phase snapshot.
func (p *Progress) Lookup() models.LookupProgress { return p.lookup }
