package knot

import (
	"reflect"

	"github.com/oliverbestmann/knot/internal/set"
	"github.com/oliverbestmann/knot/spoke"
)

// QueryOption adds a filter to a query.
type QueryOption func(w *World, c *queryConfig)

type queryConfig struct {
	builder  spoke.QueryBuilder
	optional set.Set[EntityId]
}

// With requires the entity to have the component C.
func With[C any]() QueryOption {
	return func(w *World, c *queryConfig) {
		c.builder.With(IdOf[C](w))
	}
}

// Without excludes entities that have the component C.
func Without[C any]() QueryOption {
	return func(w *World, c *queryConfig) {
		c.builder.Without(IdOf[C](w))
	}
}

// WithId requires the entity to have all ids, which may be tags or
// relationships with Wildcard operands.
func WithId(ids ...EntityId) QueryOption {
	return func(w *World, c *queryConfig) {
		c.builder.With(ids...)
	}
}

// WithoutId excludes entities that have any of the ids.
func WithoutId(ids ...EntityId) QueryOption {
	return func(w *World, c *queryConfig) {
		c.builder.Without(ids...)
	}
}

// WithAny requires the entity to have at least one of the ids.
func WithAny(ids ...EntityId) QueryOption {
	return func(w *World, c *queryConfig) {
		c.builder.WithAny(ids...)
	}
}

// WithoutAny requires the entity to miss at least one of the ids.
func WithoutAny(ids ...EntityId) QueryOption {
	return func(w *World, c *queryConfig) {
		c.builder.WithoutAny(ids...)
	}
}

// Optional marks the fetched component C as optional. Get yields a nil
// pointer for entities without it.
func Optional[C any]() QueryOption {
	return func(w *World, c *queryConfig) {
		c.optional.Insert(IdOf[C](w))
	}
}

// InState requires the enum component C to hold the given value.
func InState[C integer](value C) QueryOption {
	return func(w *World, c *queryConfig) {
		c.builder.State(RegisterEnum[C](w), uint64(value))
	}
}

// typedQuery is the shared state of the typed query wrappers.
type typedQuery struct {
	world *World
	query *spoke.Query
	terms []int
	iter  *spoke.QueryIter
}

func newTypedQuery(w *World, types []reflect.Type, opts []QueryOption) typedQuery {
	var config queryConfig
	for _, opt := range opts {
		opt(w, &config)
	}

	var terms []int
	for _, componentType := range types {
		id := w.register(componentType)

		if config.optional.Has(id) {
			terms = append(terms, config.builder.FetchOptional(id, spoke.ByRef))
		} else {
			terms = append(terms, config.builder.Fetch(id, spoke.ByRef))
		}
	}

	return typedQuery{
		world: w,
		query: w.storage.Query(config.builder.Build()),
		terms: terms,
	}
}

// Next advances to the next entity. The world is locked from the first
// call to Next until it returns false or Close is called. Structural
// changes made in between are applied afterward.
func (q *typedQuery) Next() bool {
	if q.iter == nil {
		q.iter = q.query.Iter()
	}

	if q.iter.Next() {
		return true
	}

	q.iter = nil
	return false
}

// Entity returns the current entity.
func (q *typedQuery) Entity() EntityId {
	return q.iter.Entity()
}

// Close stops an iteration before it is exhausted.
func (q *typedQuery) Close() {
	if q.iter != nil {
		q.iter.Close()
		q.iter = nil
	}
}

// Count returns the number of entities the query currently matches.
func (q *typedQuery) Count() int {
	return q.query.Count()
}

// Contains reports whether the query would yield the entity.
func (q *typedQuery) Contains(entityId EntityId) bool {
	return q.query.Matches(entityId)
}

// Entities collects the matching entities.
func (q *typedQuery) Entities() []EntityId {
	var entities []EntityId
	for it := range q.query.All() {
		entities = append(entities, it.Entity())
	}

	return entities
}

func queryPtr[T any](q *typedQuery, term int) *T {
	return (*T)(q.iter.Ptr(q.terms[term]))
}

// Query1 iterates all entities with the component A.
type Query1[A any] struct {
	typedQuery
}

func NewQuery1[A any](w *World, opts ...QueryOption) *Query1[A] {
	types := []reflect.Type{reflect.TypeFor[A]()}
	return &Query1[A]{newTypedQuery(w, types, opts)}
}

func (q *Query1[A]) Get() *A {
	return queryPtr[A](&q.typedQuery, 0)
}

// Each calls fn for every matching entity.
func (q *Query1[A]) Each(fn func(entityId EntityId, a *A)) {
	for q.Next() {
		fn(q.Entity(), q.Get())
	}
}

// Query2 iterates all entities with the components A and B.
type Query2[A, B any] struct {
	typedQuery
}

func NewQuery2[A, B any](w *World, opts ...QueryOption) *Query2[A, B] {
	types := []reflect.Type{reflect.TypeFor[A](), reflect.TypeFor[B]()}
	return &Query2[A, B]{newTypedQuery(w, types, opts)}
}

func (q *Query2[A, B]) Get() (*A, *B) {
	return queryPtr[A](&q.typedQuery, 0), queryPtr[B](&q.typedQuery, 1)
}

func (q *Query2[A, B]) Each(fn func(entityId EntityId, a *A, b *B)) {
	for q.Next() {
		a, b := q.Get()
		fn(q.Entity(), a, b)
	}
}

// Query3 iterates all entities with the components A, B and C.
type Query3[A, B, C any] struct {
	typedQuery
}

func NewQuery3[A, B, C any](w *World, opts ...QueryOption) *Query3[A, B, C] {
	types := []reflect.Type{reflect.TypeFor[A](), reflect.TypeFor[B](), reflect.TypeFor[C]()}
	return &Query3[A, B, C]{newTypedQuery(w, types, opts)}
}

func (q *Query3[A, B, C]) Get() (*A, *B, *C) {
	return queryPtr[A](&q.typedQuery, 0), queryPtr[B](&q.typedQuery, 1), queryPtr[C](&q.typedQuery, 2)
}

func (q *Query3[A, B, C]) Each(fn func(entityId EntityId, a *A, b *B, c *C)) {
	for q.Next() {
		a, b, c := q.Get()
		fn(q.Entity(), a, b, c)
	}
}

// QueryIds iterates entities matching the filters without fetching data.
type QueryIds struct {
	typedQuery
}

func NewQueryIds(w *World, opts ...QueryOption) *QueryIds {
	return &QueryIds{newTypedQuery(w, nil, opts)}
}
