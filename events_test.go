package knot

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type Collision struct {
	A, B EntityId
}

func TestEvents_ReaderSeesEachEventOnce(t *testing.T) {
	var events Events[int]

	reader := events.Reader()

	events.Send(1)
	events.Send(2)
	require.Equal(t, []int{1, 2}, reader.Read())
	require.Empty(t, reader.Read())

	events.Update()
	events.Send(3)

	// a new reader sees both buffers
	require.Equal(t, []int{1, 2, 3}, events.Reader().Read())
	require.Equal(t, []int{3}, reader.Read())

	// events older than two updates are dropped
	events.Update()
	events.Update()
	require.Equal(t, 0, events.Len())
	require.Empty(t, events.Reader().Read())
}

func TestEvents_RotatedByUpdate(t *testing.T) {
	w := newTestWorld(t)

	AddEvent[Collision](w)
	AddEvent[int](w)

	// registering twice is fine
	AddEvent[Collision](w)

	first := w.Spawn()
	second := w.Spawn()

	var received []Collision

	reader := EventsOf[Collision](w).Reader()

	require.NoError(t, w.AddSystems(Update, func(w *World) {
		received = append(received, reader.Read()...)
	}))

	EventsOf[Collision](w).Send(Collision{A: first, B: second})
	EventsOf[int](w).Send(7)

	w.Update()
	require.Equal(t, []Collision{{A: first, B: second}}, received)

	w.Update()
	w.Update()
	require.Len(t, received, 1)

	require.Equal(t, 0, EventsOf[Collision](w).Len())
	require.Equal(t, 0, EventsOf[int](w).Len())

	require.Panics(t, func() { EventsOf[string](w) })
}
