package spoke

import (
	"reflect"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

type Mode uint8

const (
	ModeIdle Mode = iota + 1
	ModeRunning
)

func spawnPositions(t *testing.T, s *Storage, c testComponents, count int) []Id {
	var entities []Id
	for idx := range count {
		entity := s.NewEntity()
		addValue(t, s, c.Position, entity, Position{X: float64(idx)})
		entities = append(entities, entity)
	}

	return entities
}

func TestQuery_WildcardMatching(t *testing.T) {
	s, _ := newTestStorage(t)

	likes := s.NewEntity()
	hates := s.NewEntity()
	first := s.NewEntity()
	second := s.NewEntity()

	withFirst := s.NewEntity()
	withSecond := s.NewEntity()
	hatesFirst := s.NewEntity()
	plain := s.NewEntity()

	_, _, err := s.AddRelationship(withFirst, likes, first, nil)
	require.NoError(t, err)

	_, _, err = s.AddRelationship(withSecond, likes, second, nil)
	require.NoError(t, err)

	_, _, err = s.AddRelationship(hatesFirst, hates, first, nil)
	require.NoError(t, err)

	_, _, err = s.AddComponent(likes, plain, nil)
	require.NoError(t, err)

	collect := func(pattern Id) []Id {
		var b QueryBuilder
		b.With(pattern)

		var entities []Id
		for it := range s.Query(b.Build()).All() {
			entities = append(entities, it.Entity())
		}

		return entities
	}

	require.ElementsMatch(t, []Id{withFirst, withSecond}, collect(Relationship(likes, Wildcard)))
	require.ElementsMatch(t, []Id{withFirst, hatesFirst}, collect(Relationship(Wildcard, first)))
	require.ElementsMatch(t, []Id{withFirst, withSecond, hatesFirst}, collect(Wildcard))
	require.ElementsMatch(t, []Id{withFirst}, collect(Relationship(likes, first)))
}

func TestQuery_WildcardTermResolvesMatch(t *testing.T) {
	s, c := newTestStorage(t)

	target := s.NewEntity()
	entity := s.NewEntity()

	value := Health{Value: 9}
	_, _, err := s.AddRelationship(entity, c.Health, target, unsafe.Pointer(&value))
	require.NoError(t, err)

	var b QueryBuilder
	term := b.Fetch(Relationship(c.Health, Wildcard), ByValue)

	var visited int
	for it := range s.Query(b.Build()).All() {
		visited++
		require.Equal(t, Relationship(c.Health, target), it.Matched(term))
		require.Equal(t, value, *(*Health)(it.Ptr(term)))
	}

	require.Equal(t, 1, visited)
}

func TestQuery_WildcardTermPrefersData(t *testing.T) {
	s, c := newTestStorage(t)

	target := s.NewEntity()
	entity := s.NewEntity()

	// the tag relationship sorts before the one carrying data
	_, _, err := s.AddRelationship(entity, ChildOf, target, nil)
	require.NoError(t, err)

	value := Health{Value: 7}
	_, _, err = s.AddRelationship(entity, c.Health, target, unsafe.Pointer(&value))
	require.NoError(t, err)

	var b QueryBuilder
	term := b.Fetch(Relationship(Wildcard, target), ByRef)

	var visited int
	for it := range s.Query(b.Build()).All() {
		visited++
		require.Equal(t, Relationship(c.Health, target), it.Matched(term))
		require.NotNil(t, it.Ptr(term))
		require.Equal(t, value, *(*Health)(it.Ptr(term)))
	}

	require.Equal(t, 1, visited)

	// a tag only match still resolves
	var tags QueryBuilder
	tagTerm := tags.Fetch(Relationship(ChildOf, Wildcard), ByRef)

	for it := range s.Query(tags.Build()).All() {
		require.Equal(t, Relationship(ChildOf, target), it.Matched(tagTerm))
		require.Nil(t, it.Ptr(tagTerm))
	}
}

func TestQuery_OptionalTerm(t *testing.T) {
	s, c := newTestStorage(t)

	moving := s.NewEntity()
	addValue(t, s, c.Position, moving, Position{X: 1})
	addValue(t, s, c.Velocity, moving, Velocity{X: 2})

	resting := s.NewEntity()
	addValue(t, s, c.Position, resting, Position{X: 3})

	var b QueryBuilder
	b.Fetch(c.Position, ByValue)
	velocity := b.FetchOptional(c.Velocity, ByValue)

	found := map[Id]bool{}
	for it := range s.Query(b.Build()).All() {
		found[it.Entity()] = it.Ptr(velocity) != nil
	}

	require.Equal(t, map[Id]bool{moving: true, resting: false}, found)
}

func TestQuery_Filters(t *testing.T) {
	s, c := newTestStorage(t)

	onlyPosition := s.NewEntity()
	addValue(t, s, c.Position, onlyPosition, Position{})

	frozen := s.NewEntity()
	addValue(t, s, c.Position, frozen, Position{})
	_, _, err := s.AddComponent(c.Frozen, frozen, nil)
	require.NoError(t, err)

	moving := s.NewEntity()
	addValue(t, s, c.Position, moving, Position{})
	addValue(t, s, c.Velocity, moving, Velocity{})

	collect := func(configure func(b *QueryBuilder)) []Id {
		var b QueryBuilder
		b.Fetch(c.Position, ByValue)
		configure(&b)

		var entities []Id
		for it := range s.Query(b.Build()).All() {
			entities = append(entities, it.Entity())
		}

		return entities
	}

	require.ElementsMatch(t,
		[]Id{onlyPosition, moving},
		collect(func(b *QueryBuilder) { b.Without(c.Frozen) }),
	)

	require.ElementsMatch(t,
		[]Id{frozen, moving},
		collect(func(b *QueryBuilder) { b.WithAny(c.Frozen, c.Velocity) }),
	)

	require.ElementsMatch(t,
		[]Id{onlyPosition, frozen},
		collect(func(b *QueryBuilder) { b.WithoutAny(c.Velocity) }),
	)

	require.ElementsMatch(t,
		[]Id{moving},
		collect(func(b *QueryBuilder) { b.With(c.Velocity).Without(c.Frozen) }),
	)
}

func TestQuery_States(t *testing.T) {
	s, c := newTestStorage(t)

	mode := s.RegisterEnum(reflect.TypeFor[Mode](), "Mode")

	idle := s.NewEntity()
	addValue(t, s, mode, idle, ModeIdle)
	addValue(t, s, c.Position, idle, Position{})

	running := s.NewEntity()
	addValue(t, s, mode, running, ModeRunning)

	var b QueryBuilder
	b.State(mode, uint64(ModeRunning))

	query := s.Query(b.Build())

	var entities []Id
	for it := range query.All() {
		entities = append(entities, it.Entity())
	}

	require.Equal(t, []Id{running}, entities)
	require.True(t, query.Matches(running))
	require.False(t, query.Matches(idle))

	value := ModeRunning
	require.NoError(t, s.SetComponent(mode, idle, unsafe.Pointer(&value)))
	require.Equal(t, 2, query.Count())
}

func TestQuery_SkipsInactive(t *testing.T) {
	s, c := newTestStorage(t)

	entities := spawnPositions(t, s, c, 3)
	require.NoError(t, s.SetActive(entities[1], false))

	var b QueryBuilder
	b.Fetch(c.Position, ByValue)

	var visited []Id
	for it := range s.Query(b.Build()).All() {
		visited = append(visited, it.Entity())
	}

	require.ElementsMatch(t, []Id{entities[0], entities[2]}, visited)

	require.NoError(t, s.SetActive(entities[1], true))
	require.Equal(t, 3, s.Query(b.Build()).Count())
}

func TestQuery_SharedCacheEntry(t *testing.T) {
	s, c := newTestStorage(t)

	var first QueryBuilder
	first.Fetch(c.Position, ByValue)
	first.With(c.Velocity, c.Health)
	first.Without(c.Frozen)

	var second QueryBuilder
	second.Without(c.Frozen)
	second.With(c.Health)
	second.Fetch(c.Position, ByValue)
	second.With(c.Velocity)

	firstShape := first.Build()
	secondShape := second.Build()
	require.Equal(t, firstShape.Hash(), secondShape.Hash())

	firstQuery := s.Query(firstShape)
	secondQuery := s.Query(secondShape)
	require.Same(t, firstQuery.cached, secondQuery.cached)

	var other QueryBuilder
	other.Fetch(c.Position, ByValue)
	other.With(c.Velocity, c.Health, c.Frozen)

	otherShape := other.Build()
	require.NotEqual(t, firstShape.Hash(), otherShape.Hash())
}

func TestQuery_IncrementalArchetypes(t *testing.T) {
	s, c := newTestStorage(t)

	var b QueryBuilder
	b.Fetch(c.Velocity, ByValue)

	query := s.Query(b.Build())
	require.Empty(t, query.Archetypes())
	require.Equal(t, 0, query.Count())

	entity := s.NewEntity()
	addValue(t, s, c.Position, entity, Position{})
	addValue(t, s, c.Velocity, entity, Velocity{X: 1})

	require.Len(t, query.Archetypes(), 1)
	require.Equal(t, 1, query.Count())

	// a different archetype with velocity
	other := s.NewEntity()
	addValue(t, s, c.Velocity, other, Velocity{X: 2})

	require.Len(t, query.Archetypes(), 2)
	require.Equal(t, 2, query.Count())
}

func TestQuery_MutationDuringIteration(t *testing.T) {
	s, c := newTestStorage(t)

	entities := spawnPositions(t, s, c, 10)

	var b QueryBuilder
	b.Fetch(c.Position, ByRef)

	visited := map[Id]int{}

	for it := range s.Query(b.Build()).All() {
		entity := it.Entity()
		visited[entity]++

		value := Velocity{X: 1}
		_, result, err := s.AddComponent(c.Velocity, entity, unsafe.Pointer(&value))
		require.NoError(t, err)
		require.Equal(t, Deferred, result)

		if entity.Index()%2 == 0 {
			_, err := s.RemoveComponent(c.Position, entity)
			require.NoError(t, err)
		}

		// nothing is observable until the loop completes
		require.False(t, s.HasComponent(c.Velocity, entity))
		require.True(t, s.HasComponent(c.Position, entity))
	}

	require.False(t, s.Locked())
	require.Len(t, visited, len(entities))

	for _, entity := range entities {
		require.Equal(t, 1, visited[entity])
		require.Equal(t, Velocity{X: 1}, getValue[Velocity](t, s, c.Velocity, entity))
		require.Equal(t, entity.Index()%2 != 0, s.HasComponent(c.Position, entity))
	}

	s.assertInvariants()
}

func TestQuery_EarlyBreakReleasesLock(t *testing.T) {
	s, c := newTestStorage(t)

	spawnPositions(t, s, c, 3)

	var b QueryBuilder
	b.Fetch(c.Position, ByValue)

	for range s.Query(b.Build()).All() {
		require.True(t, s.Locked())
		break
	}

	require.False(t, s.Locked())

	it := s.Query(b.Build()).Iter()
	require.True(t, it.Next())

	it.Close()
	it.Close()

	require.False(t, s.Locked())
	require.False(t, it.Next())
}

func TestQuery_NewEntitiesNotVisited(t *testing.T) {
	s, c := newTestStorage(t)

	spawnPositions(t, s, c, 3)

	var b QueryBuilder
	b.Fetch(c.Position, ByValue)

	var visited int
	for range s.Query(b.Build()).All() {
		visited++

		entity := s.NewEntity()
		_, result, err := s.AddComponent(c.Position, entity, nil)
		require.NoError(t, err)
		require.Equal(t, Deferred, result)
	}

	require.Equal(t, 3, visited)
	require.Equal(t, 6, s.Query(b.Build()).Count())
}

func BenchmarkQueryIter(b *testing.B) {
	s, c := newTestStorage(b)

	for idx := range 1000 {
		entity := s.NewEntity()
		position := Position{X: float64(idx)}
		velocity := Velocity{X: 1}

		_, _, _ = s.AddComponent(c.Position, entity, unsafe.Pointer(&position))
		_, _, _ = s.AddComponent(c.Velocity, entity, unsafe.Pointer(&velocity))
	}

	var builder QueryBuilder
	builder.Fetch(c.Position, ByRef)
	builder.Fetch(c.Velocity, ByValue)

	query := s.Query(builder.Build())

	for b.Loop() {
		it := query.Iter()
		for it.Next() {
			position := (*Position)(it.Ptr(0))
			velocity := (*Velocity)(it.Ptr(1))
			position.X += velocity.X
		}
	}
}
