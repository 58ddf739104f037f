package spoke

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestId_Pack(t *testing.T) {
	id := Pack(5, 7, FlagActive|FlagTarget)

	require.Equal(t, uint32(5), id.Index())
	require.Equal(t, uint32(7), id.Generation())
	require.True(t, id.Has(FlagActive))
	require.True(t, id.Has(FlagTarget))
	require.False(t, id.Has(FlagRelation))
	require.Equal(t, FlagActive|FlagTarget, id.Flags())

	require.Equal(t, Pack(5, 7, 0), id.Strip())
	require.Equal(t, Pack(5, 7, FlagActive), id.Without(FlagTarget))
	require.True(t, id.With(FlagRelation).Has(FlagRelation))

	// second is truncated to 25 bits
	require.Equal(t, uint32(0), Pack(1, 1<<25, 0).Second())
	require.Equal(t, uint32(secondMask), Pack(1, ^uint32(0), 0).Second())
}

func TestId_Relationship(t *testing.T) {
	relation := Pack(3, 2, FlagActive)
	target := Pack(9, 4, FlagActive|FlagTarget)

	id := Relationship(relation, target)
	require.True(t, id.IsRelationship())
	require.Equal(t, uint32(3), id.Relation())
	require.Equal(t, uint32(9), id.Target())

	// stripping keeps the relationship bit
	require.Equal(t, id, id.With(FlagActive).Strip())
	require.NotEqual(t, Pack(3, 9, 0), id.Strip())

	require.Equal(t, "(3, 9)", id.String())
	require.Equal(t, "(3, *)", Relationship(relation, Wildcard).String())
	require.Equal(t, "5v7", Pack(5, 7, FlagActive).String())
	require.Equal(t, "*", Wildcard.String())
}

func TestId_WildcardKind(t *testing.T) {
	relation := Pack(3, 0, 0)
	target := Pack(9, 0, 0)

	require.Equal(t, WildcardNone, WildcardKindOf(relation))
	require.Equal(t, WildcardNone, WildcardKindOf(Relationship(relation, target)))
	require.Equal(t, WildcardRelation, WildcardKindOf(Relationship(Wildcard, target)))
	require.Equal(t, WildcardTarget, WildcardKindOf(Relationship(relation, Wildcard)))
	require.Equal(t, WildcardBoth, WildcardKindOf(Relationship(Wildcard, Wildcard)))
	require.Equal(t, WildcardBoth, WildcardKindOf(Wildcard))

	require.False(t, Wildcard.IsRelationship())
	require.True(t, Wildcard.IsWildcard())
	require.Equal(t, Wildcard, Wildcard.Strip())
}

func TestId_Matches(t *testing.T) {
	relation := Pack(3, 0, 0)
	other := Pack(4, 0, 0)
	target := Pack(9, 0, 0)

	id := Relationship(relation, target)

	require.True(t, Matches(id, id))
	require.True(t, Matches(Relationship(relation, Wildcard), id))
	require.True(t, Matches(Relationship(Wildcard, target), id))
	require.True(t, Matches(Relationship(Wildcard, Wildcard), id))
	require.True(t, Matches(Wildcard, id))

	require.False(t, Matches(Relationship(other, Wildcard), id))
	require.False(t, Matches(Relationship(Wildcard, other), id))
	require.False(t, Matches(Wildcard, relation))

	// flags are ignored
	require.True(t, Matches(relation, relation.With(FlagActive)))
}

func TestId_WildcardKeys(t *testing.T) {
	id := Relationship(Pack(3, 0, 0), Pack(9, 0, 0))

	keys := wildcardKeys(id)
	require.Equal(t, WildcardRelation, WildcardKindOf(keys[0]))
	require.Equal(t, uint32(9), keys[0].Target())
	require.Equal(t, WildcardTarget, WildcardKindOf(keys[1]))
	require.Equal(t, uint32(3), keys[1].Relation())
	require.Equal(t, WildcardBoth, WildcardKindOf(keys[2]))
}
