package knot

import (
	"github.com/oliverbestmann/knot/internal/set"
	"github.com/rotisserie/eris"
)

var (
	ErrSystemExists = eris.New("system already exists in schedule")
	ErrSystemCycle  = eris.New("cycle detected in system ordering")
)

// Schedule holds the systems of one stage in execution order.
type Schedule struct {
	id      ScheduleId
	lookup  map[SystemId]*preparedSystem
	added   []SystemId
	systems []*preparedSystem
}

func newSchedule(id ScheduleId) *Schedule {
	return &Schedule{
		id:     id,
		lookup: map[SystemId]*preparedSystem{},
	}
}

// Systems returns the ids of the systems in execution order.
func (s *Schedule) Systems() []SystemId {
	var ids []SystemId
	for _, system := range s.systems {
		ids = append(ids, system.Id)
	}

	return ids
}

func (s *Schedule) addSystem(system *preparedSystem) error {
	if _, exists := s.lookup[system.Id]; exists {
		return eris.Wrapf(ErrSystemExists, "system %s in %s", system.Id, s.id)
	}

	s.lookup[system.Id] = system
	s.added = append(s.added, system.Id)

	return nil
}

func (s *Schedule) updateSystemOrdering() error {
	var configs []*SystemConfig
	for _, id := range s.added {
		configs = append(configs, &s.lookup[id].SystemConfig)
	}

	// calculate ordering
	ordering, err := topologicalSystemOrder(configs)
	if err != nil {
		return eris.Wrapf(err, "order systems of %s", s.id)
	}

	// recreate list of ordered systems
	s.systems = s.systems[:0]

	for _, id := range ordering {
		system, ok := s.lookup[id]
		if !ok {
			// constraint on a system that lives in another schedule
			continue
		}

		s.systems = append(s.systems, system)
	}

	return nil
}

type preparedSystem struct {
	SystemConfig
	Runs int
}

// topologicalSystemOrder sorts the systems with Kahn's algorithm. Systems
// without constraints between them keep the order they were added in.
func topologicalSystemOrder(systems []*SystemConfig) ([]SystemId, error) {
	// graph and in-degree count for topological sorting
	graph := map[SystemId][]SystemId{}
	inDegree := map[SystemId]int{}

	// Ensure all nodes are in the graph
	var nodes set.Ordered[SystemId]
	for _, sys := range systems {
		nodes.Insert(sys.Id)
	}

	for _, sys := range systems {
		for b := range sys.before.Values() {
			nodes.Insert(b)
		}

		for a := range sys.after.Values() {
			nodes.Insert(a)
		}
	}

	// build graph
	for _, sys := range systems {
		for before := range sys.before.Values() {
			graph[sys.Id] = append(graph[sys.Id], before)
			inDegree[before]++
		}

		for after := range sys.after.Values() {
			graph[after] = append(graph[after], sys.Id)
			inDegree[sys.Id]++
		}
	}

	var queue []SystemId
	for node := range nodes.Values() {
		if inDegree[node] == 0 {
			queue = append(queue, node)
		}
	}

	var result []SystemId
	for idx := 0; idx < len(queue); idx++ {
		curr := queue[idx]
		result = append(result, curr)

		for _, neighbor := range graph[curr] {
			inDegree[neighbor]--

			if inDegree[neighbor] == 0 {
				queue = append(queue, neighbor)
			}
		}
	}

	// check for cycles
	if len(result) != nodes.Len() {
		return nil, ErrSystemCycle
	}

	return result, nil
}
