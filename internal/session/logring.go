package session

import "time"

// DefaultLogCapacity bounds the diagnostic log kept in memory.
const DefaultLogCapacity = 500

const logTimeLayout = "15:04:05"

// LogRing is a bounded FIFO of timestamped diagnostic lines. It is not safe
// for concurrent use on its own; the Store serialises access.
type LogRing struct {
	capacity int
	now      func() time.Time
	lines    []string
}

// NewLogRing creates a ring holding at most capacity lines.
func NewLogRing(capacity int, now func() time.Time) *LogRing {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	if now == nil {
		now = time.Now
	}
	return &LogRing{capacity: capacity, now: now}
}

// Append stamps line with the local wall-clock time and evicts the oldest
// entries once the ring is over capacity.
func (r *LogRing) Append(line string) {
	r.lines = append(r.lines, "["+r.now().Format(logTimeLayout)+"] "+line)
	if over := len(r.lines) - r.capacity; over > 0 {
		r.lines = append(r.lines[:0:0], r.lines[over:]...)
	}
}

// Lines returns a copy of every retained line, oldest first.
func (r *LogRing) Lines() []string {
	out := make([]string, len(r.lines))
	copy(out, r.lines)
	return out
}

// Tail returns up to n of the newest lines, oldest first.
func (r *LogRing) Tail(n int) []string {
	if n <= 0 || n >= len(r.lines) {
		return r.Lines()
	}
	out := make([]string, n)
	copy(out, r.lines[len(r.lines)-n:])
	return out
}

// Len returns the number of retained lines.
func (r *LogRing) Len() int {
	return len(r.lines)
}

// Capacity returns the ring's bound.
func (r *LogRing) Capacity() int {
	return r.capacity
}
