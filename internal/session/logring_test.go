package session

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() func() time.Time {
	t := time.Date(2024, 5, 1, 13, 4, 5, 0, time.Local)
	return func() time.Time { return t }
}

func TestLogRingPrefixesTimestamp(t *testing.T) {
	ring := NewLogRing(0, fixedClock())
	ring.Append("started")

	assert.Equal(t, []string{"[13:04:05] started"}, ring.Lines())
	assert.Equal(t, DefaultLogCapacity, ring.Capacity())
}

func TestLogRingEvictsOldestBeyondCapacity(t *testing.T) {
	ring := NewLogRing(DefaultLogCapacity, fixedClock())
	for i := 0; i < DefaultLogCapacity; i++ {
		ring.Append(fmt.Sprintf("line %d", i))
	}
	require.Equal(t, DefaultLogCapacity, ring.Len())
	require.Equal(t, "[13:04:05] line 0", ring.Lines()[0])

	ring.Append("line 500")

	lines := ring.Lines()
	require.Len(t, lines, DefaultLogCapacity)
	assert.Equal(t, "[13:04:05] line 1", lines[0])
	assert.Equal(t, "[13:04:05] line 500", lines[len(lines)-1])
}

func TestLogRingTail(t *testing.T) {
	ring := NewLogRing(10, fixedClock())
	for i := 0; i < 4; i++ {
		ring.Append(fmt.Sprint(i))
	}

	assert.Equal(t, []string{"[13:04:05] 2", "[13:04:05] 3"}, ring.Tail(2))
	assert.Len(t, ring.Tail(0), 4)
	assert.Len(t, ring.Tail(99), 4)
}

func TestLogRingLinesIsACopy(t *testing.T) {
	ring := NewLogRing(3, fixedClock())
	ring.Append("a")
	lines := ring.Lines()
	lines[0] = "mutated"

	assert.Equal(t, "[13:04:05] a", ring.Lines()[0])
}
