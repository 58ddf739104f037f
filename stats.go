package knot

import (
	"cmp"
	"slices"
	"time"
)

// Timings aggregates the run times of a schedule or system.
type Timings struct {
	Count         int
	Latest        time.Duration
	Total         time.Duration
	MovingAverage time.Duration
	Min, Max      time.Duration
}

func (t Timings) Add(d time.Duration) Timings {
	if t.Count == 0 {
		t.Min, t.Max = d, d
		t.MovingAverage = d
	} else {
		t.Min = min(t.Min, d)
		t.Max = max(t.Max, d)
		t.MovingAverage = (95*t.MovingAverage + 5*d) / 100
	}

	t.Latest = d
	t.Total += d
	t.Count += 1

	return t
}

// Mean is the average over all samples, unlike MovingAverage.
func (t Timings) Mean() time.Duration {
	if t.Count == 0 {
		return 0
	}

	return t.Total / time.Duration(t.Count)
}

// TimingStats collects run times of schedules and systems while it is
// present as a resource in the world.
type TimingStats struct {
	BySchedule    map[ScheduleId]Timings
	ScheduleOrder []ScheduleId

	BySystem map[SystemId]Timings
}

type SystemTimings struct {
	SystemId SystemId
	Timings
}

func NewTimingStats() TimingStats {
	return TimingStats{
		BySchedule: map[ScheduleId]Timings{},
		BySystem:   map[SystemId]Timings{},
	}
}

// Systems returns the timings of all measured systems, slowest mean first.
func (t *TimingStats) Systems() []SystemTimings {
	var systems []SystemTimings
	for systemId, timings := range t.BySystem {
		systems = append(systems, SystemTimings{SystemId: systemId, Timings: timings})
	}

	slices.SortFunc(systems, func(a, b SystemTimings) int {
		if c := cmp.Compare(b.Mean(), a.Mean()); c != 0 {
			return c
		}

		return cmp.Compare(a.SystemId, b.SystemId)
	})

	return systems
}

// MeasureSchedule starts measuring a schedule run. Call the returned
// function once the schedule is done.
func (t *TimingStats) MeasureSchedule(scheduleId ScheduleId) (stop func()) {
	startTime := time.Now()

	if _, ok := t.BySchedule[scheduleId]; !ok {
		t.ScheduleOrder = append(t.ScheduleOrder, scheduleId)
	}

	return func() {
		t.BySchedule[scheduleId] = t.BySchedule[scheduleId].Add(time.Since(startTime))
	}
}

// MeasureSystem is the system counterpart of MeasureSchedule.
func (t *TimingStats) MeasureSystem(systemId SystemId) (stop func()) {
	startTime := time.Now()

	return func() {
		t.BySystem[systemId] = t.BySystem[systemId].Add(time.Since(startTime))
	}
}
