package spoke

import (
	"reflect"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

type Position struct {
	X, Y float64
}

type Velocity struct {
	X, Y float64
}

type Health struct {
	Value int
	Label string
}

type testComponents struct {
	Position Id
	Velocity Id
	Health   Id
	Frozen   Id
}

func newTestStorage(t testing.TB, opts ...Option) (*Storage, testComponents) {
	t.Helper()

	s := NewStorage(opts...)

	components := testComponents{
		Position: s.Register(reflect.TypeFor[Position](), "Position"),
		Velocity: s.Register(reflect.TypeFor[Velocity](), "Velocity"),
		Health:   s.Register(reflect.TypeFor[Health](), "Health"),
		Frozen:   s.RegisterTag("Frozen"),
	}

	return s, components
}

func addValue[T any](t testing.TB, s *Storage, component, entity Id, value T) AddResult {
	t.Helper()

	_, result, err := s.AddComponent(component, entity, unsafe.Pointer(&value))
	require.NoError(t, err)

	return result
}

func getValue[T any](t testing.TB, s *Storage, component, entity Id) T {
	t.Helper()

	ptr, err := s.GetComponent(component, entity)
	require.NoError(t, err)
	require.NotNil(t, ptr)

	return *(*T)(ptr)
}

func TestStorage_AddGetRemove(t *testing.T) {
	s, c := newTestStorage(t)

	entity := s.NewEntity()

	result := addValue(t, s, c.Position, entity, Position{X: 1, Y: 2})
	require.Equal(t, AddNew, result)
	require.True(t, s.HasComponent(c.Position, entity))
	require.Equal(t, Position{X: 1, Y: 2}, getValue[Position](t, s, c.Position, entity))

	addValue(t, s, c.Health, entity, Health{Value: 10, Label: "full"})
	require.Equal(t, Health{Value: 10, Label: "full"}, getValue[Health](t, s, c.Health, entity))
	require.Equal(t, Position{X: 1, Y: 2}, getValue[Position](t, s, c.Position, entity))

	_, err := s.RemoveComponent(c.Position, entity)
	require.NoError(t, err)
	require.False(t, s.HasComponent(c.Position, entity))
	require.Equal(t, Health{Value: 10, Label: "full"}, getValue[Health](t, s, c.Health, entity))

	_, err = s.GetComponent(c.Position, entity)
	require.ErrorIs(t, err, ErrNoComponent)

	_, err = s.RemoveComponent(c.Position, entity)
	require.ErrorIs(t, err, ErrNoComponent)

	s.assertInvariants()
}

func TestStorage_AddExistingKeepsValue(t *testing.T) {
	s, c := newTestStorage(t)

	entity := s.NewEntity()
	addValue(t, s, c.Position, entity, Position{X: 1})

	result := addValue(t, s, c.Position, entity, Position{X: 2})
	require.Equal(t, AlreadyExists, result)
	require.Equal(t, Position{X: 1}, getValue[Position](t, s, c.Position, entity))

	value := Position{X: 3}
	require.NoError(t, s.SetComponent(c.Position, entity, unsafe.Pointer(&value)))
	require.Equal(t, Position{X: 3}, getValue[Position](t, s, c.Position, entity))

	// set also adds a missing component
	velocity := Velocity{Y: 4}
	require.NoError(t, s.SetComponent(c.Velocity, entity, unsafe.Pointer(&velocity)))
	require.Equal(t, Velocity{Y: 4}, getValue[Velocity](t, s, c.Velocity, entity))
}

func TestStorage_ZeroValueWithoutPointer(t *testing.T) {
	s, c := newTestStorage(t)

	entity := s.NewEntity()

	_, _, err := s.AddComponent(c.Health, entity, nil)
	require.NoError(t, err)
	require.Equal(t, Health{}, getValue[Health](t, s, c.Health, entity))
}

func TestStorage_DeadEntity(t *testing.T) {
	s, c := newTestStorage(t)

	entity := s.NewEntity()
	require.NoError(t, s.RemoveEntity(entity))

	_, _, err := s.AddComponent(c.Position, entity, nil)
	require.ErrorIs(t, err, ErrEntityNotAlive)

	_, err = s.GetComponent(c.Position, entity)
	require.ErrorIs(t, err, ErrEntityNotAlive)

	_, err = s.RemoveComponent(c.Position, entity)
	require.ErrorIs(t, err, ErrEntityNotAlive)

	require.ErrorIs(t, s.RemoveEntity(entity), ErrEntityNotAlive)
	require.False(t, s.HasComponent(c.Position, entity))
}

func TestStorage_NotAComponent(t *testing.T) {
	s, _ := newTestStorage(t)

	entity := s.NewEntity()
	removed := s.NewEntity()
	require.NoError(t, s.RemoveEntity(removed))

	_, _, err := s.AddComponent(removed, entity, nil)
	require.ErrorIs(t, err, ErrNotComponent)

	_, _, err = s.AddComponent(Wildcard, entity, nil)
	require.ErrorIs(t, err, ErrNotComponent)
}

func TestStorage_ArchetypeIdempotence(t *testing.T) {
	s, c := newTestStorage(t)

	first := s.NewEntity()
	addValue(t, s, c.Position, first, Position{})
	addValue(t, s, c.Velocity, first, Velocity{})

	// same set in a different order
	second := s.NewEntity()
	addValue(t, s, c.Velocity, second, Velocity{})
	addValue(t, s, c.Position, second, Position{})

	firstArchetype, _ := s.ArchetypeOf(first)
	secondArchetype, _ := s.ArchetypeOf(second)
	require.Same(t, firstArchetype, secondArchetype)

	archetype, created := s.Graph().Ensure([]Id{c.Velocity, c.Position}, ReuseTable)
	require.False(t, created)
	require.Equal(t, firstArchetype.Id, archetype.Id)

	count := len(s.Graph().All())
	s.Graph().Ensure([]Id{c.Position, c.Velocity, c.Position}, ReuseTable)
	require.Len(t, s.Graph().All(), count)
}

func TestStorage_RootArchetype(t *testing.T) {
	s, c := newTestStorage(t)

	entity := s.NewEntity()

	root := s.Graph().Root()
	archetype, _ := s.ArchetypeOf(entity)
	require.Same(t, root, archetype)
	require.Equal(t, []Id{EntityTag}, root.Ids())
	require.Empty(t, s.ComponentsOf(entity))

	addValue(t, s, c.Position, entity, Position{})
	archetype, _ = s.ArchetypeOf(entity)
	require.Equal(t, []Id{c.Position}, archetype.Ids())

	_, err := s.RemoveComponent(c.Position, entity)
	require.NoError(t, err)

	archetype, _ = s.ArchetypeOf(entity)
	require.Same(t, root, archetype)
}

func TestStorage_TableSharing(t *testing.T) {
	s, c := newTestStorage(t)

	entity := s.NewEntity()
	addValue(t, s, c.Position, entity, Position{X: 7})

	other := s.NewEntity()
	addValue(t, s, c.Position, other, Position{X: 8})

	before, _ := s.RecordOf(entity)
	withoutTag, _ := s.ArchetypeOf(entity)

	_, _, err := s.AddComponent(c.Frozen, entity, nil)
	require.NoError(t, err)

	withTag, _ := s.ArchetypeOf(entity)
	require.NotEqual(t, withoutTag.Id, withTag.Id)
	require.Same(t, withoutTag.Table(), withTag.Table())

	tagged, _ := s.RecordOf(entity)
	require.Equal(t, before.TableRow, tagged.TableRow)

	_, err = s.RemoveComponent(c.Frozen, entity)
	require.NoError(t, err)

	after, _ := s.RecordOf(entity)
	require.Equal(t, before.TableRow, after.TableRow)
	require.Equal(t, withoutTag.Id, after.Archetype)

	require.Equal(t, Position{X: 7}, getValue[Position](t, s, c.Position, entity))
	require.Equal(t, Position{X: 8}, getValue[Position](t, s, c.Position, other))

	s.assertInvariants()
}

func TestStorage_OwnTablePolicy(t *testing.T) {
	s, c := newTestStorage(t, WithReusePolicy(OwnTable))

	entity := s.NewEntity()
	addValue(t, s, c.Position, entity, Position{X: 7})

	withoutTag, _ := s.ArchetypeOf(entity)

	_, _, err := s.AddComponent(c.Frozen, entity, nil)
	require.NoError(t, err)

	withTag, _ := s.ArchetypeOf(entity)
	require.NotSame(t, withoutTag.Table(), withTag.Table())
	require.Equal(t, Position{X: 7}, getValue[Position](t, s, c.Position, entity))

	s.assertInvariants()
}

func TestStorage_SwapRemovePatchesRecords(t *testing.T) {
	s, c := newTestStorage(t)

	var entities []Id
	for idx := range 5 {
		entity := s.NewEntity()
		addValue(t, s, c.Position, entity, Position{X: float64(idx)})
		entities = append(entities, entity)
	}

	// moving the first entity out swaps the last one into its rows
	addValue(t, s, c.Velocity, entities[0], Velocity{})
	require.NoError(t, s.RemoveEntity(entities[2]))

	for idx, entity := range entities {
		if idx == 2 {
			require.False(t, s.IsAlive(entity))
			continue
		}

		require.Equal(t, Position{X: float64(idx)}, getValue[Position](t, s, c.Position, entity))
	}

	s.assertInvariants()
}

func TestStorage_StaleHandle(t *testing.T) {
	s, _ := newTestStorage(t)

	entity := s.NewEntity()
	require.True(t, s.IsAlive(entity))

	require.NoError(t, s.RemoveEntity(entity))
	require.False(t, s.IsAlive(entity))

	reused := s.NewEntity()
	require.Equal(t, entity.Index(), reused.Index())
	require.Equal(t, entity.Generation()+1, reused.Generation())

	require.True(t, s.IsAlive(reused))
	require.False(t, s.IsAlive(entity))
}

func TestStorage_Relationships(t *testing.T) {
	s, c := newTestStorage(t)

	likes := s.NewEntity()
	apple := s.NewEntity()
	pear := s.NewEntity()

	entity := s.NewEntity()

	_, result, err := s.AddRelationship(entity, likes, apple, nil)
	require.NoError(t, err)
	require.Equal(t, AddNew, result)

	_, _, err = s.AddRelationship(entity, likes, pear, nil)
	require.NoError(t, err)

	require.True(t, s.HasComponent(Relationship(likes, apple), entity))
	require.True(t, s.HasComponent(Relationship(likes, Wildcard), entity))
	require.True(t, s.HasComponent(Relationship(Wildcard, pear), entity))
	require.True(t, s.HasComponent(Wildcard, entity))
	require.False(t, s.HasComponent(Relationship(c.Position, Wildcard), entity))

	require.ElementsMatch(t, []Id{apple, pear}, s.Targets(entity, likes))

	record, _ := s.RecordOf(entity)
	require.True(t, record.Id.Has(FlagWatched))

	likesRecord, _ := s.RecordOf(likes)
	require.True(t, likesRecord.Id.Has(FlagRelation))

	appleRecord, _ := s.RecordOf(apple)
	require.True(t, appleRecord.Id.Has(FlagTarget))

	_, err = s.RemoveRelationship(entity, likes, apple)
	require.NoError(t, err)
	require.Equal(t, []Id{pear}, s.Targets(entity, likes))

	// removing by wildcard removes every match
	_, err = s.RemoveRelationship(entity, likes, Wildcard)
	require.NoError(t, err)
	require.Empty(t, s.Targets(entity, likes))

	record, _ = s.RecordOf(entity)
	require.False(t, record.Id.Has(FlagWatched))
}

func TestStorage_RelationshipOperandsMustBeAlive(t *testing.T) {
	s, _ := newTestStorage(t)

	likes := s.NewEntity()
	target := s.NewEntity()
	entity := s.NewEntity()

	require.NoError(t, s.RemoveEntity(target))

	_, _, err := s.AddRelationship(entity, likes, target, nil)
	require.ErrorIs(t, err, ErrMissingTarget)

	_, _, err = s.AddRelationship(entity, target, likes, nil)
	require.ErrorIs(t, err, ErrMissingRelation)

	_, _, err = s.AddComponent(Relationship(likes, Wildcard), entity, nil)
	require.ErrorIs(t, err, ErrMissingTarget)
}

func TestStorage_DataRelationship(t *testing.T) {
	s, c := newTestStorage(t)

	target := s.NewEntity()
	entity := s.NewEntity()

	// data on the relation side
	value := Health{Value: 3, Label: "bond"}
	_, _, err := s.AddRelationship(entity, c.Health, target, unsafe.Pointer(&value))
	require.NoError(t, err)

	require.Equal(t, value, getValue[Health](t, s, Relationship(c.Health, target), entity))
	require.Equal(t, value, getValue[Health](t, s, Relationship(c.Health, Wildcard), entity))

	// data on the target side
	relation := s.NewEntity()
	position := Position{X: 5}
	_, _, err = s.AddRelationship(entity, relation, c.Position, unsafe.Pointer(&position))
	require.NoError(t, err)

	require.Equal(t, position, getValue[Position](t, s, Relationship(relation, c.Position), entity))

	archetype, _ := s.ArchetypeOf(entity)
	require.NotNil(t, archetype.Table().Column(Relationship(c.Health, target)))
	require.NotNil(t, archetype.Table().Column(Relationship(relation, c.Position)))

	s.assertInvariants()
}

func TestStorage_ExclusiveChildOf(t *testing.T) {
	s, _ := newTestStorage(t)

	first := s.NewEntity()
	second := s.NewEntity()
	child := s.NewEntity()

	_, _, err := s.AddRelationship(child, ChildOf, first, nil)
	require.NoError(t, err)

	_, _, err = s.AddRelationship(child, ChildOf, second, nil)
	require.NoError(t, err)

	require.Equal(t, []Id{second}, s.Targets(child, ChildOf))
}

func TestStorage_DeletionCascade(t *testing.T) {
	s, c := newTestStorage(t)

	likes := s.NewEntity()

	parent := s.NewEntity()
	child := s.NewEntity()
	grandchild := s.NewEntity()
	sibling := s.NewEntity()
	unrelated := s.NewEntity()

	addValue(t, s, c.Position, grandchild, Position{X: 1})

	_, _, err := s.AddRelationship(child, ChildOf, parent, nil)
	require.NoError(t, err)

	_, _, err = s.AddRelationship(grandchild, ChildOf, child, nil)
	require.NoError(t, err)

	_, _, err = s.AddRelationship(sibling, likes, parent, nil)
	require.NoError(t, err)

	_, _, err = s.AddRelationship(unrelated, likes, sibling, nil)
	require.NoError(t, err)

	_, _, err = s.AddRelationship(unrelated, likes, grandchild, nil)
	require.NoError(t, err)

	require.NoError(t, s.RemoveEntity(parent))

	require.False(t, s.IsAlive(parent))
	require.False(t, s.IsAlive(child))
	require.False(t, s.IsAlive(grandchild))

	require.True(t, s.IsAlive(sibling))
	require.False(t, s.HasComponent(Relationship(Wildcard, parent), sibling))
	require.False(t, s.HasComponent(Relationship(likes, Wildcard), sibling))

	require.True(t, s.IsAlive(unrelated))
	require.Equal(t, []Id{sibling}, s.Targets(unrelated, likes))

	// removing the relation removes all of its relationships
	require.NoError(t, s.RemoveEntity(likes))
	require.False(t, s.HasComponent(Wildcard, unrelated))

	s.assertInvariants()
}

func TestStorage_RemoveEntityUsedAsComponent(t *testing.T) {
	s, _ := newTestStorage(t)

	marker := s.NewEntity()
	entity := s.NewEntity()

	_, _, err := s.AddComponent(marker, entity, nil)
	require.NoError(t, err)
	require.True(t, s.HasComponent(marker, entity))

	require.NoError(t, s.RemoveEntity(marker))
	require.True(t, s.IsAlive(entity))
	require.Empty(t, s.ComponentsOf(entity))
}

func TestStorage_RemoveComponentType(t *testing.T) {
	s, c := newTestStorage(t)

	entity := s.NewEntity()
	addValue(t, s, c.Health, entity, Health{Value: 1})

	require.NoError(t, s.RemoveEntity(c.Health))
	require.False(t, s.HasComponent(c.Health, entity))

	_, ok := s.Registry().ByName("Health")
	require.False(t, ok)
}

func TestStorage_SetActive(t *testing.T) {
	s, c := newTestStorage(t)

	entity := s.NewEntity()
	addValue(t, s, c.Position, entity, Position{})

	require.True(t, s.IsActive(entity))
	require.NoError(t, s.SetActive(entity, false))
	require.False(t, s.IsActive(entity))

	// components are kept on inactive entities
	require.True(t, s.HasComponent(c.Position, entity))
}

func TestStorage_Register(t *testing.T) {
	s, c := newTestStorage(t)

	require.Equal(t, c.Position, s.Register(reflect.TypeFor[Position](), ""))

	info, ok := s.Registry().Info(c.Position)
	require.True(t, ok)
	require.Equal(t, "Position", info.Name)
	require.Equal(t, reflect.TypeFor[Position]().Size(), info.Size)

	require.True(t, s.HasComponent(ComponentTag, c.Position))

	require.Panics(t, func() {
		s.Register(reflect.TypeFor[struct{ A int }](), "Position")
	})

	byName, ok := s.Registry().ByName("ChildOf")
	require.True(t, ok)
	require.Equal(t, ChildOf, byName)
}

func TestStorage_PositionVelocityExample(t *testing.T) {
	s, c := newTestStorage(t)

	entity := s.NewEntity()
	addValue(t, s, c.Position, entity, Position{X: 1, Y: 2})
	addValue(t, s, c.Velocity, entity, Velocity{X: 3, Y: 4})

	var both QueryBuilder
	both.Fetch(c.Position, ByRef)
	both.Fetch(c.Velocity, ByRef)

	var results int
	for it := range s.Query(both.Build()).All() {
		results++
		require.Equal(t, entity, it.Entity())
		require.Equal(t, Position{X: 1, Y: 2}, *(*Position)(it.Ptr(0)))
		require.Equal(t, Velocity{X: 3, Y: 4}, *(*Velocity)(it.Ptr(1)))
	}

	require.Equal(t, 1, results)

	_, err := s.RemoveComponent(c.Velocity, entity)
	require.NoError(t, err)

	var positions QueryBuilder
	positions.Fetch(c.Position, ByRef)
	require.Equal(t, 1, s.Query(positions.Build()).Count())

	var withVelocity QueryBuilder
	withVelocity.Fetch(c.Position, ByRef)
	withVelocity.With(c.Velocity)
	require.Equal(t, 0, s.Query(withVelocity.Build()).Count())
}

func BenchmarkStorageAddRemove(b *testing.B) {
	s, c := newTestStorage(b)

	entity := s.NewEntity()
	value := Velocity{X: 1}

	for b.Loop() {
		_, _, _ = s.AddComponent(c.Velocity, entity, unsafe.Pointer(&value))
		_, _ = s.RemoveComponent(c.Velocity, entity)
	}
}

func BenchmarkStorageNewEntity(b *testing.B) {
	s, c := newTestStorage(b)

	value := Position{X: 1}

	for b.Loop() {
		entity := s.NewEntity()
		_, _, _ = s.AddComponent(c.Position, entity, unsafe.Pointer(&value))
	}
}
