package spoke

import (
	"github.com/rotisserie/eris"
)

// Kind describes how an id behaves when attached to an entity.
type Kind uint8

const (
	// Regular is a registered component with data.
	Regular Kind = iota

	// ComponentTagKind is a registered component without data.
	ComponentTagKind

	// EntityTagKind is a plain entity attached to other entities as a tag.
	EntityTagKind

	// EnumTag is a registered integer component usable in state predicates.
	EnumTag

	// RelationshipTag is a relationship between two plain entities.
	RelationshipTag

	// MixedRelationshipTag is a relationship without data where at least
	// one operand is a registered component.
	MixedRelationshipTag

	// DataRelationshipFirst carries the data of its relation.
	DataRelationshipFirst

	// DataRelationshipSecond carries the data of its target.
	DataRelationshipSecond
)

func (k Kind) String() string {
	switch k {
	case Regular:
		return "Regular"
	case ComponentTagKind:
		return "ComponentTag"
	case EntityTagKind:
		return "EntityTag"
	case EnumTag:
		return "EnumTag"
	case RelationshipTag:
		return "RelationshipTag"
	case MixedRelationshipTag:
		return "MixedRelationshipTag"
	case DataRelationshipFirst:
		return "DataRelationshipFirst"
	case DataRelationshipSecond:
		return "DataRelationshipSecond"
	default:
		return "Unknown"
	}
}

// IsRelationship reports whether the kind describes a relationship.
func (k Kind) IsRelationship() bool {
	return k >= RelationshipTag
}

// HasData reports whether ids of this kind occupy a column.
func (k Kind) HasData() bool {
	return k == Regular || k == EnumTag || k == DataRelationshipFirst || k == DataRelationshipSecond
}

// Classify derives the kind of an id from its flags and the registry.
func (s *Storage) Classify(id Id) (Kind, error) {
	if id == Wildcard {
		return 0, eris.Wrapf(ErrNotComponent, "classify %s", id)
	}

	if id.IsRelationship() {
		return s.classifyRelationship(id)
	}

	if !s.entities.IsAlive(id) {
		return 0, notAlive(id)
	}

	info, ok := s.registry.Info(id)
	switch {
	case !ok:
		return EntityTagKind, nil

	case info.Enum:
		return EnumTag, nil

	case info.IsTag():
		return ComponentTagKind, nil

	default:
		return Regular, nil
	}
}

func (s *Storage) classifyRelationship(id Id) (Kind, error) {
	switch WildcardKindOf(id) {
	case WildcardTarget, WildcardBoth:
		return 0, eris.Wrapf(ErrMissingTargetInTag, "classify %s", id)
	case WildcardRelation:
		return 0, eris.Wrapf(ErrMissingRelation, "classify %s", id)
	}

	relation, ok := s.entities.Resolve(id.Relation())
	if !ok {
		return 0, eris.Wrapf(ErrMissingRelation, "classify %s", id)
	}

	target, ok := s.entities.Resolve(id.Target())
	if !ok {
		return 0, eris.Wrapf(ErrMissingTarget, "classify %s", id)
	}

	relationInfo, relationIsComponent := s.registry.Info(relation)
	targetInfo, targetIsComponent := s.registry.Info(target)

	// the built-in relations behave like plain entities
	relationIsComponent = relationIsComponent && relation.Index() >= reservedEntities

	switch {
	case relationIsComponent && !relationInfo.IsTag():
		return DataRelationshipFirst, nil

	case targetIsComponent && !targetInfo.IsTag():
		return DataRelationshipSecond, nil

	case relationIsComponent || targetIsComponent:
		return MixedRelationshipTag, nil

	default:
		return RelationshipTag, nil
	}
}

// RelationshipOf splits a relationship id into the handles of its live operands.
func (s *Storage) RelationshipOf(id Id) (relation, target Id, err error) {
	if !id.IsRelationship() {
		return 0, 0, eris.Wrapf(ErrNotRelationship, "split %s", id)
	}

	relation, ok := s.Resolve(id.Relation())
	if !ok || id.Relation() == WildcardIndex {
		return 0, 0, eris.Wrapf(ErrMissingRelation, "split %s", id)
	}

	target, ok = s.Resolve(id.Target())
	if !ok || id.Target() == WildcardSecond {
		return 0, 0, eris.Wrapf(ErrMissingTarget, "split %s", id)
	}

	return relation, target, nil
}
