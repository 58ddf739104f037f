package knot

import (
	"fmt"
)

// AddEvent registers the event type E. Its queue is rotated during the
// Last stage, so an event stays readable for the update it was sent in and
// the following one.
func AddEvent[E any](w *World) {
	if _, exists := ResourceOf[Events[E]](w); exists {
		return
	}

	w.InsertResource(Events[E]{})

	if len(w.eventQueues) == 0 {
		if err := w.AddSystems(Last, updateEventsSystem); err != nil {
			panic(err)
		}
	}

	w.eventQueues = append(w.eventQueues, EventsOf[E](w))
}

// EventsOf returns the queue of the registered event type E.
func EventsOf[E any](w *World) *Events[E] {
	events, ok := ResourceOf[Events[E]](w)
	if !ok {
		var eZero E
		panic(fmt.Sprintf("event type %T not registered", eZero))
	}

	return events
}

type eventQueue interface {
	Update()
}

func updateEventsSystem(w *World) {
	for _, queue := range w.eventQueues {
		queue.Update()
	}
}

type EventId int

type EventWithId[E any] struct {
	Id    EventId
	Event E
}

// Events is a double buffered event queue.
type Events[E any] struct {
	_ noCopy

	prevId EventId
	curr   []EventWithId[E]
	prev   []EventWithId[E]
}

func (e *Events[E]) AppendTo(target []EventWithId[E]) []EventWithId[E] {
	target = append(target, e.prev...)
	target = append(target, e.curr...)
	return target
}

func (e *Events[E]) Send(event E) {
	e.prevId += 1

	e.curr = append(e.curr, EventWithId[E]{
		Id:    e.prevId,
		Event: event,
	})
}

// Update swaps the buffers. Events sent before the previous Update are dropped.
func (e *Events[E]) Update() {
	e.curr, e.prev = e.prev, e.curr

	// reuse the memory of the current buffer
	clear(e.curr)
	e.curr = e.curr[:0]
}

func (e *Events[E]) Len() int {
	return len(e.prev) + len(e.curr)
}

// Reader creates a reader that returns each event at most once.
func (e *Events[E]) Reader() *EventReader[E] {
	return &EventReader[E]{events: e}
}

type EventReader[E any] struct {
	_ noCopy

	events *Events[E]
	lastId EventId

	scratch       []E
	scratchWithId []EventWithId[E]
}

// Read returns all events that were not yet returned by this reader. The
// slice is reused by the next call.
func (r *EventReader[E]) Read() []E {
	r.scratchWithId = r.events.AppendTo(r.scratchWithId[:0])

	buffer := r.scratchWithId

	// skip the events we've already read
	for len(buffer) > 0 {
		if buffer[0].Id > r.lastId {
			break
		}

		buffer = buffer[1:]
	}

	if len(buffer) > 0 {
		// store the last id we've seen
		r.lastId = buffer[len(buffer)-1].Id
	}

	// convert to event slice, reuse scratch buffer
	events := r.scratch[:0]
	for _, event := range buffer {
		events = append(events, event.Event)
	}

	// keep scratch buffer for reuse
	r.scratch = events

	return events
}
