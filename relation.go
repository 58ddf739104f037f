package knot

import (
	"github.com/oliverbestmann/knot/spoke"
)

// Relate adds the relationship (relation, target) to the entity. If the
// relation was made exclusive, other targets of the relation are removed.
func (w *World) Relate(entityId, relation, target EntityId) error {
	_, _, err := w.storage.AddRelationship(entityId, relation, target, nil)
	return err
}

// Unrelate removes the relationship. A Wildcard target removes all
// relationships of the relation, a Wildcard relation removes everything
// pointing at the target.
func (w *World) Unrelate(entityId, relation, target EntityId) error {
	_, err := w.storage.RemoveRelationship(entityId, relation, target)
	return err
}

// MakeExclusive allows at most one target per entity for the relation.
func (w *World) MakeExclusive(relation EntityId) error {
	return w.storage.SetExclusive(relation)
}

// Targets returns the targets of all (relation, *) relationships of the entity.
func (w *World) Targets(entityId, relation EntityId) []EntityId {
	return w.storage.Targets(entityId, relation)
}

// SetParent makes the entity a child of parent. Children are removed
// together with their parent.
func (w *World) SetParent(entityId, parent EntityId) error {
	return w.Relate(entityId, ChildOf, parent)
}

// ParentOf returns the parent of the entity, if it has one.
func (w *World) ParentOf(entityId EntityId) (EntityId, bool) {
	targets := w.storage.Targets(entityId, ChildOf)
	if len(targets) == 0 {
		return NoEntityId, false
	}

	return targets[0], true
}

// ChildrenOf returns the direct children of the parent, including
// inactive ones.
func (w *World) ChildrenOf(parent EntityId) []EntityId {
	if !w.storage.IsAlive(parent) {
		return nil
	}

	graph := w.storage.Graph()

	var children []EntityId
	for _, archetypeId := range graph.ArchetypesWith(spoke.Relationship(ChildOf, parent)) {
		for _, index := range graph.Archetype(archetypeId).Entities() {
			if child, ok := w.storage.Resolve(index); ok {
				children = append(children, child)
			}
		}
	}

	return children
}
