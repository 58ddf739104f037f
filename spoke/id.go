package spoke

import (
	"fmt"
	"log/slog"
	"strconv"
)

// Id identifies an entity, a component or a relationship.
//
// The lower 32 bits hold the index of the entity slot. The next 25 bits hold
// the second field: the generation of a plain entity, or the index of the
// target if the Id denotes a relationship. The upper 7 bits are flags.
type Id uint64

type Flags uint64

const (
	indexBits  = 32
	secondBits = 25

	secondShift = indexBits
	flagsShift  = indexBits + secondBits

	indexMask  = 1<<indexBits - 1
	secondMask = 1<<secondBits - 1
)

const (
	FlagActive Flags = 1 << (flagsShift + iota)
	FlagTag
	FlagRelation
	FlagTarget
	FlagRelationExclusive
	FlagTargetExclusive
	FlagRelationship

	// FlagWatched shares its bit with FlagTag. On a plain entity it marks
	// an entity that holds relationships.
	FlagWatched = FlagTag

	flagsMask Flags = ^Flags(0) << flagsShift
)

const (
	// WildcardIndex and WildcardSecond are the sentinels an operand of a
	// relationship takes when it matches anything.
	WildcardIndex  uint32 = indexMask
	WildcardSecond uint32 = secondMask

	// MaxEntities bounds the index of any entity, as every entity must be
	// usable as the target of a relationship.
	MaxEntities = secondMask - 1
)

const (
	// EntityTag is the implicit marker of the root archetype.
	EntityTag Id = 0

	// ComponentTag marks every entity that was registered as a component.
	ComponentTag Id = 1

	// ChildOf is the built-in child-of relation. Removing a parent removes
	// all entities that are (ChildOf, parent).
	ChildOf Id = 2

	// Wildcard matches any relation or any target.
	Wildcard Id = ^Id(0)

	reservedEntities = 3
)

// Pack builds an Id from its parts. second is truncated to 25 bits.
func Pack(index uint32, second uint32, flags Flags) Id {
	return Id(uint64(index)) |
		Id(uint64(second&secondMask)<<secondShift) |
		Id(flags&flagsMask)
}

func (id Id) Index() uint32 {
	return uint32(id & indexMask)
}

func (id Id) Second() uint32 {
	return uint32(id>>secondShift) & secondMask
}

// Generation is the same field as Second, read for a plain entity.
func (id Id) Generation() uint32 {
	return id.Second()
}

func (id Id) Flags() Flags {
	return Flags(id) & flagsMask
}

func (id Id) Has(flags Flags) bool {
	return Flags(id)&flags == flags
}

func (id Id) With(flags Flags) Id {
	return id | Id(flags&flagsMask)
}

func (id Id) Without(flags Flags) Id {
	return id &^ Id(flags&flagsMask)
}

// Strip removes all bookkeeping flags. The relationship bit survives, it is
// part of the identity of a relationship. Wildcard is returned unchanged.
func (id Id) Strip() Id {
	if id == Wildcard {
		return id
	}

	return id &^ Id(flagsMask&^FlagRelationship)
}

func (id Id) IsRelationship() bool {
	return id != Wildcard && id.Has(FlagRelationship)
}

// Relation returns the index of the relation operand of a relationship.
func (id Id) Relation() uint32 {
	return id.Index()
}

// Target returns the index of the target operand of a relationship.
func (id Id) Target() uint32 {
	return id.Second()
}

func (id Id) IsWildcard() bool {
	return WildcardKindOf(id) != WildcardNone
}

func (id Id) String() string {
	switch {
	case id == Wildcard:
		return "*"

	case id.IsRelationship():
		return fmt.Sprintf("(%s, %s)", operandString(id.Relation(), WildcardIndex), operandString(id.Target(), WildcardSecond))

	default:
		return strconv.FormatUint(uint64(id.Index()), 10) + "v" + strconv.FormatUint(uint64(id.Generation()), 10)
	}
}

func operandString(index, wildcard uint32) string {
	if index == wildcard {
		return "*"
	}

	return strconv.FormatUint(uint64(index), 10)
}

func (id Id) LogValue() slog.Value {
	return slog.StringValue(id.String())
}

// Relationship derives the id of the (relation, target) pair. Either operand
// may be Wildcard.
func Relationship(relation, target Id) Id {
	relIndex := relation.Index()
	if relation == Wildcard {
		relIndex = WildcardIndex
	}

	targetIndex := target.Index() & secondMask
	if target == Wildcard {
		targetIndex = WildcardSecond
	}

	return Pack(relIndex, targetIndex, FlagRelationship)
}

type WildcardKind uint8

const (
	WildcardNone WildcardKind = iota
	WildcardRelation
	WildcardTarget
	WildcardBoth
)

func (k WildcardKind) String() string {
	switch k {
	case WildcardRelation:
		return "Relation"
	case WildcardTarget:
		return "Target"
	case WildcardBoth:
		return "Both"
	default:
		return "None"
	}
}

// WildcardKindOf classifies the wildcard shape of an id. The bare Wildcard
// constant counts as WildcardBoth.
func WildcardKindOf(id Id) WildcardKind {
	if id == Wildcard {
		return WildcardBoth
	}

	if !id.IsRelationship() {
		return WildcardNone
	}

	relation := id.Relation() == WildcardIndex
	target := id.Target() == WildcardSecond

	switch {
	case relation && target:
		return WildcardBoth
	case relation:
		return WildcardRelation
	case target:
		return WildcardTarget
	default:
		return WildcardNone
	}
}

// Matches reports whether id is matched by pattern. A pattern without
// wildcards only matches itself. Flags other than the relationship bit are
// ignored on both sides.
func Matches(pattern, id Id) bool {
	pattern, id = pattern.Strip(), id.Strip()

	switch WildcardKindOf(pattern) {
	case WildcardNone:
		return pattern == id

	case WildcardBoth:
		return id.IsRelationship()

	case WildcardRelation:
		return id.IsRelationship() && id.Target() == pattern.Target()

	case WildcardTarget:
		return id.IsRelationship() && id.Relation() == pattern.Relation()
	}

	return false
}

// wildcardKeys returns the synthetic index keys a relationship is reachable by.
func wildcardKeys(id Id) [3]Id {
	relation := Pack(id.Relation(), 0, 0)
	target := Pack(id.Target(), 0, 0)

	return [3]Id{
		Relationship(Wildcard, target),
		Relationship(relation, Wildcard),
		Relationship(Wildcard, Wildcard),
	}
}
