package knot

import (
	"fmt"
	"log/slog"
	"slices"
)

// ScheduleId identifies a schedule. All implementing types must be comparable.
type ScheduleId interface {
	fmt.Stringer
	isSchedule()
}

type scheduleId struct {
	name string
}

func (*scheduleId) isSchedule() {}

func (s *scheduleId) String() string {
	return s.name
}

// MakeScheduleId creates a new unique ScheduleId.
// The name passed to the schedule is used for debugging
func MakeScheduleId(name string) ScheduleId {
	return &scheduleId{name: name}
}

var (
	First           = MakeScheduleId("First")
	PreUpdate       = MakeScheduleId("PreUpdate")
	StateTransition = MakeScheduleId("StateTransition")
	Update          = MakeScheduleId("Update")
	PostUpdate      = MakeScheduleId("PostUpdate")
	Last            = MakeScheduleId("Last")
)

var defaultStages = []ScheduleId{First, PreUpdate, StateTransition, Update, PostUpdate, Last}

// AddStage appends a stage to the stages run by World.Update. Adding a
// stage twice has no effect.
func (w *World) AddStage(stage ScheduleId) {
	if slices.Contains(w.stages, stage) {
		return
	}

	w.stages = append(w.stages, stage)
	w.scheduleOf(stage)
}

// AddStageAfter inserts a stage directly after an existing stage.
func (w *World) AddStageAfter(stage, after ScheduleId) {
	if slices.Contains(w.stages, stage) {
		return
	}

	idx := slices.Index(w.stages, after)
	if idx < 0 {
		panic(fmt.Sprintf("stage %q does not exist", after))
	}

	w.stages = slices.Insert(w.stages, idx+1, stage)
	w.scheduleOf(stage)
}

// Stages returns the stages run by World.Update in order.
func (w *World) Stages() []ScheduleId {
	return slices.Clone(w.stages)
}

// AddSystems adds systems to a schedule. Plain functions and System groups
// can be mixed.
func (w *World) AddSystems(scheduleId ScheduleId, systems ...any) error {
	schedule := w.scheduleOf(scheduleId)

	for _, system := range systems {
		var group Systems

		switch system := system.(type) {
		case Systems:
			group = system
		case SystemFunc:
			group = System(system)
		case func(*World):
			group = System(system)
		default:
			panic(fmt.Sprintf("not a system: %T", system))
		}

		for _, config := range group.configs() {
			if err := schedule.addSystem(&preparedSystem{SystemConfig: *config}); err != nil {
				return err
			}
		}
	}

	return schedule.updateSystemOrdering()
}

// Schedule returns the schedule with the given id, if it exists.
func (w *World) Schedule(scheduleId ScheduleId) (*Schedule, bool) {
	schedule, ok := w.schedules[scheduleId]
	return schedule, ok
}

func (w *World) scheduleOf(scheduleId ScheduleId) *Schedule {
	schedule, ok := w.schedules[scheduleId]
	if !ok {
		schedule = newSchedule(scheduleId)
		w.schedules[scheduleId] = schedule
	}

	return schedule
}

// Update runs all stages once, in order.
func (w *World) Update() {
	for _, stage := range w.stages {
		w.RunSchedule(stage)
	}
}

// RunSchedule runs the schedule identified by the given ScheduleId.
// If no schedule with this id exists, no action is performed.
func (w *World) RunSchedule(scheduleId ScheduleId) {
	schedule, ok := w.schedules[scheduleId]
	if !ok {
		return
	}

	if w.running[scheduleId] {
		panic(fmt.Sprintf("schedule %q is already running", scheduleId))
	}

	w.running[scheduleId] = true
	defer delete(w.running, scheduleId)

	if timings := w.timingStats(); timings != nil {
		defer timings.MeasureSchedule(scheduleId)()
	}

	for _, system := range schedule.systems {
		w.runSystem(system)
	}
}

// RunSystem runs a single system function outside of any schedule.
func (w *World) RunSystem(system SystemFunc) {
	w.runSystem(&preparedSystem{SystemConfig: SystemConfig{Id: systemIdOf(system), fn: system}})
}

func (w *World) runSystem(system *preparedSystem) {
	for _, predicate := range system.predicates {
		if !predicate(w) {
			// predicate evaluated to "do not run", stop execution here
			return
		}
	}

	if timings := w.timingStats(); timings != nil {
		defer timings.MeasureSystem(system.Id)()
	}

	system.fn(w)
	system.Runs++

	if w.storage.Locked() {
		w.logger.Warn("System returned with the world still locked", slog.String("system", system.Id.String()))
	}
}

func (w *World) timingStats() *TimingStats {
	stats, _ := ResourceOf[TimingStats](w)
	return stats
}
