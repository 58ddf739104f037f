package knot

import (
	"fmt"
	"reflect"
)

// InitState adds the State and NextState resources for S. Transitions are
// applied during the StateTransition stage, OnEnter of the initial value
// runs at the first update.
func InitState[S comparable](w *World, initial S) {
	if _, exists := ResourceOf[State[S]](w); exists {
		panic(fmt.Sprintf("state %T already initialized", initial))
	}

	w.InsertResource(State[S]{current: initial})
	w.InsertResource(NextState[S]{})

	if len(w.transitions) == 0 {
		if err := w.AddSystems(StateTransition, applyStateTransitions); err != nil {
			panic(err)
		}
	}

	w.transitions = append(w.transitions, performStateTransition[S])
}

// applyStateTransitions runs the transitions of all states in the order
// the states were initialized.
func applyStateTransitions(w *World) {
	for _, transition := range w.transitions {
		transition(w)
	}
}

type stateChangedScheduleId[S comparable] struct {
	stateType reflect.Type
	value     S

	enter bool
	exit  bool
}

func (stateChangedScheduleId[S]) isSchedule() {}

func (s stateChangedScheduleId[S]) String() string {
	kind := "OnExit"
	if s.enter {
		kind = "OnEnter"
	}

	return fmt.Sprintf("%s(%v)", kind, s.value)
}

// OnEnter is the schedule run when the state S changes to stateValue.
func OnEnter[S comparable](stateValue S) ScheduleId {
	return stateChangedScheduleId[S]{
		stateType: reflect.TypeFor[S](),
		value:     stateValue,
		enter:     true,
	}
}

// OnExit is the schedule run when the state S changes away from stateValue.
func OnExit[S comparable](stateValue S) ScheduleId {
	return stateChangedScheduleId[S]{
		stateType: reflect.TypeFor[S](),
		value:     stateValue,
		exit:      true,
	}
}

// StateIs is a predicate for Systems.RunIf, holding while the state S has
// the expected value.
func StateIs[S comparable](expectedState S) Predicate {
	return func(w *World) bool {
		state, ok := ResourceOf[State[S]](w)
		return ok && state.Current() == expectedState
	}
}

type State[S comparable] struct {
	current     S
	initialized bool
}

func (s State[S]) Current() S {
	return s.current
}

type NextState[S comparable] struct {
	isSet bool
	next  S
}

func (n *NextState[S]) Set(nextState S) {
	n.isSet = true
	n.next = nextState
}

func (n *NextState[S]) Clear() {
	var zeroState S

	n.isSet = false
	n.next = zeroState
}

// SetNextState requests a transition of S, applied at the next
// StateTransition stage.
func SetNextState[S comparable](w *World, nextState S) {
	next, ok := ResourceOf[NextState[S]](w)
	if !ok {
		panic(fmt.Sprintf("state %T not initialized", nextState))
	}

	next.Set(nextState)
}

// CurrentState returns the current value of S.
func CurrentState[S comparable](w *World) (S, bool) {
	state, ok := ResourceOf[State[S]](w)
	if !ok {
		var zeroState S
		return zeroState, false
	}

	return state.Current(), true
}

func performStateTransition[S comparable](w *World) {
	state, _ := ResourceOf[State[S]](w)
	nextState, _ := ResourceOf[NextState[S]](w)

	if !state.initialized {
		// we need to run the OnEnter schedule once
		state.initialized = true
		w.RunSchedule(OnEnter(state.current))
		return
	}

	if !nextState.isSet {
		return
	}

	if nextState.next == state.current {
		nextState.Clear()
		return
	}

	// keep the previous state value so we can trigger OnExit
	previousState := state.current

	// update the state resources
	state.current = nextState.next
	nextState.Clear()

	// run the OnExit / OnEnter schedules
	w.RunSchedule(OnExit(previousState))
	w.RunSchedule(OnEnter(state.current))
}
