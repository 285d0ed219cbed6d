package session

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"latencyctl/internal/backend"
	"latencyctl/internal/eventbus"
	"latencyctl/internal/models"
)

func attached(t *testing.T, names ...string) (*Store, *eventbus.Bus, *Subscriber) {
	t.Helper()
	store := newTestStore(names...)
	bus := eventbus.New()
	sub := NewSubscriber(store, bus)
	sub.Attach()
	t.Cleanup(sub.Detach)
	return store, bus, sub
}

func emit(bus *eventbus.Bus, topic, payload string) {
	bus.Emit(topic, json.RawMessage(payload))
}

func TestAttachRegistersOncePerTopic(t *testing.T) {
	store := newTestStore()
	bus := eventbus.New()
	sub := NewSubscriber(store, bus)

	for cycle := 0; cycle < 3; cycle++ {
		first := sub.Attach()
		second := sub.Attach()
		require.Same(t, first, second)
		for _, topic := range backend.Topics {
			assert.Equal(t, 1, bus.Count(topic), topic)
		}

		sub.Detach()
		sub.Detach()
		first.Close()
		assert.False(t, sub.Attached())
		for _, topic := range backend.Topics {
			assert.Zero(t, bus.Count(topic), topic)
		}
	}
}

func TestClosingStaleHandleKeepsNewSubscription(t *testing.T) {
	store := newTestStore()
	bus := eventbus.New()
	sub := NewSubscriber(store, bus)

	old := sub.Attach()
	old.Close()
	fresh := sub.Attach()
	old.Close()

	assert.True(t, sub.Attached())
	assert.Equal(t, 1, bus.Count(backend.TopicLog))
	fresh.Close()
}

func TestResultEventUpserts(t *testing.T) {
	store, bus, _ := attached(t, "a", "b", "c")

	emit(bus, backend.TopicResult, `{"index":1,"done":true,"pass":true,"avgMs":120,"maxMs":180,"latencyMs":[100,120,140],"attempts":3,"successful":3}`)

	got, ok := store.Result(1)
	require.True(t, ok)
	assert.Equal(t, models.Outcome{
		Index: 1, Done: true, Pass: true, AvgMs: 120, MaxMs: 180,
		LatencyMs: []int64{100, 120, 140}, Attempts: 3, Successful: 3,
	}, got)
	_, ok = store.Result(0)
	assert.False(t, ok)
}

func TestMalformedEventsAreDropped(t *testing.T) {
	store, bus, _ := attached(t, "a", "b")
	before := store.Snapshot()

	emit(bus, backend.TopicResult, `{"done":true,"pass":true}`)
	emit(bus, backend.TopicResult, `{"index":"1"}`)
	emit(bus, backend.TopicResult, `{"index":9,"done":true}`)
	emit(bus, backend.TopicResult, `null`)
	emit(bus, backend.TopicProgress, `{"passed":1}`)
	emit(bus, backend.TopicProgress, `[]`)
	emit(bus, backend.TopicLog, `{"msg":"x"}`)
	emit(bus, backend.TopicLog, ``)
	emit(bus, backend.TopicTargetsUpdated, `{"index":0}`)
	emit(bus, backend.TopicTargetsUpdated, `null`)
	emit(bus, backend.TopicLookupProgress, `"half"`)

	assert.Equal(t, before, store.Snapshot())
}

func TestProgressEventReplacesSnapshot(t *testing.T) {
	store, bus, _ := attached(t, "a", "b", "c")
	require.NoError(t, store.BeginSession())

	emit(bus, backend.TopicProgress, `{"total":3,"done":1,"passed":1,"running":true}`)
	emit(bus, backend.TopicProgress, `{"total":3,"done":2,"running":true}`)

	assert.Equal(t, models.ProbeProgress{Total: 3, Done: 2, Running: true}, store.Progress())
}

func TestCompleteAfterLookupCompletionStaysStopped(t *testing.T) {
	store, bus, _ := attached(t, "a", "b", "c", "d", "e")
	require.NoError(t, store.BeginSession())

	emit(bus, backend.TopicLookupProgress, `{"done":5,"total":5}`)
	require.False(t, store.Running())

	assert.NotPanics(t, func() { emit(bus, backend.TopicComplete, ``) })
	assert.False(t, store.Running())
	assert.False(t, store.Progress().Running)
	assert.Equal(t, models.LookupProgress{Done: 5, Total: 5}, store.Lookup())
}

func TestLookupProgressMissingFieldsReadAsZero(t *testing.T) {
	store, bus, _ := attached(t, "a")
	require.NoError(t, store.BeginSession())

	emit(bus, backend.TopicLookupProgress, `{"done":2}`)

	assert.Equal(t, models.LookupProgress{Done: 2}, store.Lookup())
	assert.True(t, store.Running())
}

func TestLogEventAppends(t *testing.T) {
	store, bus, _ := attached(t)

	emit(bus, backend.TopicLog, `"probing 3 targets"`)

	assert.Equal(t, []string{"[13:04:05] probing 3 targets"}, store.Logs(0))
}

func TestTargetsUpdatedEvent(t *testing.T) {
	store, bus, _ := attached(t, "a", "b")
	store.ApplyOutcome(models.Outcome{Index: 0, Done: true, Pass: true})

	emit(bus, backend.TopicTargetsUpdated, `[{"index":0,"name":"US-1","host":"a.example","port":443,"scheme":"vless","region":"US"},{"index":1,"name":"b","host":"b.example","port":443,"scheme":"vless"}]`)

	targets := store.Targets()
	require.Len(t, targets, 2)
	assert.Equal(t, "US-1", targets[0].Name)
	assert.Equal(t, "US", targets[0].Region)
	_, ok := store.Result(0)
	assert.True(t, ok)

	emit(bus, backend.TopicTargetsUpdated, `[]`)
	assert.Zero(t, store.TargetCount())
	assert.Empty(t, store.Snapshot().Results)
}

func TestDetachedSubscriberIgnoresEvents(t *testing.T) {
	store, bus, sub := attached(t, "a")
	sub.Detach()

	emit(bus, backend.TopicResult, `{"index":0,"done":true,"pass":true}`)

	_, ok := store.Result(0)
	assert.False(t, ok)
}
