package main

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/oliverbestmann/knot"
)

type Position struct {
	X, Y float64
}

type Velocity struct {
	X, Y float64
}

type Health struct {
	Value int
}

// Frozen marks entities that left the bounds.
type Frozen struct{}

type Team uint8

const (
	TeamRed Team = iota
	TeamBlue
)

// Parents holds the entities that own children and are churned every frame.
type Parents struct {
	Items []knot.EntityId
}

type simulationState struct {
	Scenario Scenario
	Rng      *rand.Rand

	// tag relation between random entities
	Likes knot.EntityId
}

type WorldResult struct {
	Index      int
	Updates    int64
	FrameTime  Stats
	Entities   int
	Archetypes int
	Tables     int
	Systems    []SystemResult
}

type SystemResult struct {
	Name    string
	Average time.Duration
	Runs    int
}

func newSimulation(scenario Scenario, index int) *knot.World {
	w := knot.NewWorld()

	knot.Register[Position](w)
	knot.Register[Velocity](w)
	knot.Register[Health](w)
	knot.Register[Frozen](w)
	knot.RegisterEnum[Team](w)

	w.InsertResource(simulationState{
		Scenario: scenario,
		Rng:      rand.New(rand.NewPCG(scenario.Seed, uint64(index))),
		Likes:    w.NewTag("Likes"),
	})

	w.InsertResource(Parents{})
	w.InsertResource(knot.NewTimingStats())

	err := w.AddSystems(knot.Update, knot.System(moveSystem, damageSystem).Chain())
	if err != nil {
		panic(err)
	}

	if err := w.AddSystems(knot.PostUpdate, churnSystem); err != nil {
		panic(err)
	}

	populate(w, scenario.Entities)

	return w
}

func populate(w *knot.World, count int) {
	state, _ := knot.ResourceOf[simulationState](w)

	spawned := make([]knot.EntityId, 0, count)

	for range count {
		rng := state.Rng

		components := []any{
			Position{X: rng.Float64() * 10, Y: rng.Float64() * 10},
		}

		if rng.IntN(4) != 0 {
			components = append(components, Velocity{X: rng.NormFloat64(), Y: rng.NormFloat64()})
		}

		if rng.IntN(2) == 0 {
			components = append(components, Health{Value: 50 + rng.IntN(100)}, Team(rng.IntN(2)))
		}

		entityId := w.Spawn(components...)

		if len(spawned) > 0 && rng.IntN(8) == 0 {
			target := spawned[rng.IntN(len(spawned))]
			if err := w.Relate(entityId, state.Likes, target); err != nil {
				panic(err)
			}
		}

		spawned = append(spawned, entityId)
	}

	for range state.Scenario.Churn {
		spawnFamily(w)
	}
}

func spawnFamily(w *knot.World) {
	state, _ := knot.ResourceOf[simulationState](w)
	parents, _ := knot.ResourceOf[Parents](w)

	parent := w.Spawn(Position{})

	for range state.Scenario.Children {
		child := w.Spawn(Position{}, Velocity{X: state.Rng.NormFloat64()})
		if err := w.SetParent(child, parent); err != nil {
			panic(err)
		}
	}

	parents.Items = append(parents.Items, parent)
}

func moveSystem(w *knot.World) {
	state, _ := knot.ResourceOf[simulationState](w)
	bounds := state.Scenario.Bounds

	query := knot.NewQuery2[Position, Velocity](w, knot.Without[Frozen]())
	for query.Next() {
		pos, vel := query.Get()
		pos.X += vel.X
		pos.Y += vel.Y

		if pos.X < -bounds || pos.X > bounds || pos.Y < -bounds || pos.Y > bounds {
			entityId := query.Entity()

			// structural changes are applied once the query is done
			if err := knot.Remove[Velocity](w, entityId); err != nil {
				panic(err)
			}

			if err := knot.Set(w, entityId, Frozen{}); err != nil {
				panic(err)
			}
		}
	}
}

func damageSystem(w *knot.World) {
	query := knot.NewQuery1[Health](w, knot.InState(TeamRed))
	for query.Next() {
		health := query.Get()
		health.Value -= 1

		if health.Value <= 0 {
			if err := w.Destroy(query.Entity()); err != nil {
				panic(err)
			}
		}
	}
}

func churnSystem(w *knot.World) {
	state, _ := knot.ResourceOf[simulationState](w)
	parents, _ := knot.ResourceOf[Parents](w)

	for range min(state.Scenario.Churn, len(parents.Items)) {
		idx := state.Rng.IntN(len(parents.Items))
		parent := parents.Items[idx]

		// destroying the parent takes its children with it
		if err := w.Destroy(parent); err != nil {
			panic(err)
		}

		parents.Items[idx] = parents.Items[len(parents.Items)-1]
		parents.Items = parents.Items[:len(parents.Items)-1]

		spawnFamily(w)
	}
}

func runSimulation(ctx context.Context, w *knot.World, index int) WorldResult {
	result := WorldResult{Index: index}

	for ctx.Err() == nil {
		updateStart := time.Now()
		w.Update()
		result.FrameTime.Samples = append(result.FrameTime.Samples, time.Since(updateStart))
		result.Updates++
	}

	result.FrameTime.Finalize()

	graph := w.Storage().Graph()
	result.Entities = w.Storage().EntityCount()
	result.Archetypes = len(graph.All())
	result.Tables = len(graph.Tables())

	if stats, ok := knot.ResourceOf[knot.TimingStats](w); ok {
		for _, system := range stats.Systems() {
			result.Systems = append(result.Systems, SystemResult{
				Name:    system.SystemId.String(),
				Average: system.Mean(),
				Runs:    system.Count,
			})
		}
	}

	return result
}
