package spoke

import (
	"github.com/rotisserie/eris"
)

type scopedName struct {
	parent uint32
	name   string
}

// nameIndex maps entities to names that are unique within their parent.
// Entities without a parent share the scope of index 0.
type nameIndex struct {
	byEntity map[uint32]scopedName
	byName   map[scopedName]uint32
}

func newNameIndex() *nameIndex {
	return &nameIndex{
		byEntity: map[uint32]scopedName{},
		byName:   map[scopedName]uint32{},
	}
}

func (n *nameIndex) insert(entity uint32, key scopedName) bool {
	if owner, taken := n.byName[key]; taken && owner != entity {
		return false
	}

	n.remove(entity)

	n.byEntity[entity] = key
	n.byName[key] = entity

	return true
}

func (n *nameIndex) remove(entity uint32) {
	key, ok := n.byEntity[entity]
	if !ok {
		return
	}

	delete(n.byEntity, entity)
	delete(n.byName, key)
}

// SetName names the entity within the scope of its current parent. An empty
// name clears the name of the entity.
func (s *Storage) SetName(entity Id, name string) error {
	if !s.entities.IsAlive(entity) {
		return notAlive(entity)
	}

	if name == "" {
		s.names.remove(entity.Index())
		return nil
	}

	key := scopedName{parent: s.parentIndex(entity), name: name}

	if !s.names.insert(entity.Index(), key) {
		return eris.Wrapf(ErrNameTaken, "name %q for %s", name, entity)
	}

	return nil
}

func (s *Storage) ClearName(entity Id) {
	if s.entities.IsAlive(entity) {
		s.names.remove(entity.Index())
	}
}

func (s *Storage) Name(entity Id) (string, bool) {
	if !s.entities.IsAlive(entity) {
		return "", false
	}

	key, ok := s.names.byEntity[entity.Index()]
	return key.name, ok
}

// Lookup finds a named entity below parent. Pass EntityTag as parent to
// look up entities without a parent.
func (s *Storage) Lookup(parent Id, name string) (Id, bool) {
	if parent != EntityTag && !s.entities.IsAlive(parent) {
		return 0, false
	}

	entity, ok := s.names.byName[scopedName{parent: parent.Index(), name: name}]
	if !ok {
		return 0, false
	}

	return s.Resolve(entity)
}

// parentIndex returns the index of the ChildOf target of the entity, or 0.
func (s *Storage) parentIndex(entity Id) uint32 {
	archetype, ok := s.ArchetypeOf(entity)
	if !ok {
		return 0
	}

	if parent, ok := archetype.Match(Relationship(ChildOf, Wildcard)); ok {
		return parent.Target()
	}

	return 0
}
