package knot

import (
	"reflect"
	"runtime"

	"github.com/oliverbestmann/knot/internal/set"
)

// SystemFunc is the body of a system. It runs with exclusive access to the world.
type SystemFunc = func(w *World)

// Predicate decides whether a system runs.
type Predicate = func(w *World) bool

// SystemId identifies a system by the code of its function. Two closures
// created from the same function literal share an id.
type SystemId uintptr

func systemIdOf(system SystemFunc) SystemId {
	return SystemId(reflect.ValueOf(system).Pointer())
}

func (id SystemId) String() string {
	if fn := runtime.FuncForPC(uintptr(id)); fn != nil {
		return fn.Name()
	}

	return "unknown"
}

type SystemConfig struct {
	Id SystemId

	fn         SystemFunc
	before     set.Ordered[SystemId]
	after      set.Ordered[SystemId]
	predicates []Predicate
}

// Systems groups systems that share ordering constraints and predicates.
type Systems struct {
	systems []SystemFunc
	chained bool

	after      []SystemId
	before     []SystemId
	predicates []Predicate
}

// System groups the given system functions.
func System(systems ...SystemFunc) Systems {
	return Systems{systems: systems}
}

// Chain runs the systems in the order they are given.
func (s Systems) Chain() Systems {
	s.chained = true
	return s
}

// After orders the systems after all the other systems.
func (s Systems) After(others ...SystemFunc) Systems {
	for _, other := range others {
		s.after = append(s.after, systemIdOf(other))
	}

	return s
}

// Before orders the systems before all the other systems.
func (s Systems) Before(others ...SystemFunc) Systems {
	for _, other := range others {
		s.before = append(s.before, systemIdOf(other))
	}

	return s
}

// RunIf adds a predicate that must hold for the systems to run.
func (s Systems) RunIf(predicate Predicate) Systems {
	s.predicates = append(s.predicates, predicate)
	return s
}

func (s Systems) configs() []*SystemConfig {
	var configs []*SystemConfig

	for idx, fn := range s.systems {
		config := &SystemConfig{Id: systemIdOf(fn), fn: fn}

		for _, id := range s.after {
			config.after.Insert(id)
		}

		for _, id := range s.before {
			config.before.Insert(id)
		}

		if s.chained && idx > 0 {
			config.after.Insert(configs[idx-1].Id)
		}

		config.predicates = append(config.predicates, s.predicates...)

		configs = append(configs, config)
	}

	return configs
}
