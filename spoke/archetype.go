package spoke

import (
	"fmt"
	"slices"
	"strings"

	"github.com/kamstrup/intmap"
	"github.com/oliverbestmann/knot/internal/set"
)

type ArchetypeId uint32

// Edge caches the archetypes reached by adding or removing one id.
type Edge struct {
	Add    *Archetype
	Remove *Archetype
}

// Archetype is the set of entities sharing exactly the same component ids.
// Its id set never changes after creation, and archetypes are never freed.
type Archetype struct {
	Id   ArchetypeId
	Hash uint64

	ids   []Id
	table *Table

	// entities maps an archetype row to the index of the entity
	entities []uint32

	edges *intmap.Map[Id, *Edge]

	relationships int
}

func makeArchetype(id ArchetypeId, hash uint64, sortedIds []Id, table *Table) *Archetype {
	// check that we do not have any duplicates in the ids
	var seen set.Set[Id]
	for _, componentId := range sortedIds {
		if !seen.Insert(componentId) {
			panic(fmt.Sprintf("archetype contains duplicate: %s", componentId))
		}
	}

	var relationships int
	for _, componentId := range sortedIds {
		if componentId.IsRelationship() {
			relationships++
		}
	}

	return &Archetype{
		Id:            id,
		Hash:          hash,
		ids:           sortedIds,
		table:         table,
		edges:         intmap.New[Id, *Edge](4),
		relationships: relationships,
	}
}

func (a *Archetype) String() string {
	var value strings.Builder

	value.WriteString("Archetype(")
	for idx, componentId := range a.ids {
		if idx > 0 {
			value.WriteString(", ")
		}

		value.WriteString(componentId.String())
	}

	value.WriteString(")")

	return value.String()
}

// Ids returns the sorted, stripped ids of the archetype. The slice must not be modified.
func (a *Archetype) Ids() []Id {
	return a.ids
}

func (a *Archetype) Table() *Table {
	return a.table
}

func (a *Archetype) Len() int {
	return len(a.entities)
}

// Entities returns the entity indices in archetype row order.
// The slice must not be modified.
func (a *Archetype) Entities() []uint32 {
	return a.entities
}

func (a *Archetype) HasRelationships() bool {
	return a.relationships > 0
}

// Contains reports whether any id of the archetype is matched by the pattern.
func (a *Archetype) Contains(pattern Id) bool {
	_, ok := a.Match(pattern)
	return ok
}

// Match returns the first id of the archetype matched by the pattern.
func (a *Archetype) Match(pattern Id) (Id, bool) {
	pattern = pattern.Strip()

	if !pattern.IsWildcard() {
		_, found := slices.BinarySearch(a.ids, pattern)
		return pattern, found
	}

	if a.relationships == 0 {
		return 0, false
	}

	for _, componentId := range a.ids {
		if Matches(pattern, componentId) {
			return componentId, true
		}
	}

	return 0, false
}

// MatchAll returns all ids of the archetype matched by the pattern.
func (a *Archetype) MatchAll(pattern Id) []Id {
	pattern = pattern.Strip()

	var matched []Id
	for _, componentId := range a.ids {
		if Matches(pattern, componentId) {
			matched = append(matched, componentId)
		}
	}

	return matched
}

func (a *Archetype) edge(id Id) *Edge {
	edge, ok := a.edges.Get(id)
	if !ok {
		edge = &Edge{}
		a.edges.Put(id, edge)
	}

	return edge
}

func (a *Archetype) push(entity uint32) Row {
	row := Row(len(a.entities))
	a.entities = append(a.entities, entity)
	return row
}

func (a *Archetype) swapRemove(row Row) (moved uint32, ok bool) {
	return swapRemoveEntity(&a.entities, row)
}
