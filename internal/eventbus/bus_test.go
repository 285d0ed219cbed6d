package eventbus

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitReachesHandlersInOrder(t *testing.T) {
	bus := New()
	var got []string
	bus.On("log", func(p json.RawMessage) { got = append(got, "a:"+string(p)) })
	bus.On("log", func(p json.RawMessage) { got = append(got, "b:"+string(p)) })
	bus.On("other", func(json.RawMessage) { got = append(got, "other") })

	bus.Emit("log", json.RawMessage(`"x"`))

	assert.Equal(t, []string{`a:"x"`, `b:"x"`}, got)
}

func TestOffRemovesOnlyItsRegistration(t *testing.T) {
	bus := New()
	calls := 0
	offA := bus.On("result", func(json.RawMessage) { calls++ })
	bus.On("result", func(json.RawMessage) { calls += 10 })
	require.Equal(t, 2, bus.Count("result"))

	offA()
	offA()
	assert.Equal(t, 1, bus.Count("result"))

	bus.Emit("result", nil)
	assert.Equal(t, 10, calls)
}

func TestEmitWithoutHandlers(t *testing.T) {
	bus := New()
	assert.NotPanics(t, func() { bus.Emit("nobody", json.RawMessage(`{}`)) })
	assert.Zero(t, bus.Count("nobody"))
}

func TestHandlerMayUnregisterDuringEmit(t *testing.T) {
	bus := New()
	var off func()
	calls := 0
	off = bus.On("complete", func(json.RawMessage) {
		calls++
		off()
	})

	bus.Emit("complete", nil)
	bus.Emit("complete", nil)

	assert.Equal(t, 1, calls)
	assert.Zero(t, bus.Count("complete"))
}
