package spoke

import (
	"iter"
	"unsafe"
)

// Query is a prepared shape. Queries with structurally identical shapes
// share the same list of matching archetypes.
type Query struct {
	storage *Storage
	shape   Shape
	cached  *cachedShape
}

// Query prepares the shape for iteration.
func (s *Storage) Query(shape Shape) *Query {
	return &Query{
		storage: s,
		shape:   shape,
		cached:  s.queries.lookup(shape),
	}
}

func (q *Query) Shape() Shape {
	return q.shape
}

// Archetypes returns the archetypes currently matching the query, including
// empty ones. The slice must not be modified.
func (q *Query) Archetypes() []*Archetype {
	return q.cached.archetypes
}

// Iter starts a new iteration. The storage is locked until the iterator is
// exhausted or closed.
func (q *Query) Iter() *QueryIter {
	q.storage.Lock()

	it := &QueryIter{
		query:        q,
		storage:      q.storage,
		archetypes:   q.cached.archetypes,
		archetypeIdx: -1,
		columns:      make([]ColumnAccess, len(q.shape.Terms)),
		matched:      make([]Id, len(q.shape.Terms)),
		states:       make([]stateAccess, len(q.shape.Mask.States)),
		locked:       true,
	}

	return it
}

// All iterates the query as a sequence. The iterator is closed when the
// loop ends, also if it ends early.
func (q *Query) All() iter.Seq[*QueryIter] {
	return func(yield func(*QueryIter) bool) {
		it := q.Iter()
		defer it.Close()

		for it.Next() {
			if !yield(it) {
				return
			}
		}
	}
}

// Count returns the number of entities the query currently yields.
func (q *Query) Count() int {
	var count int

	it := q.Iter()
	for it.Next() {
		count++
	}

	return count
}

// Matches reports whether the entity would be yielded by the query.
func (q *Query) Matches(entity Id) bool {
	record, ok := q.storage.entities.Lookup(entity)
	if !ok || !record.Id.Has(FlagActive) {
		return false
	}

	archetype := q.storage.graph.Archetype(record.Archetype)
	if !q.shape.MatchesArchetype(archetype) {
		return false
	}

	for _, state := range q.shape.Mask.States {
		access, ok := makeStateAccess(q.storage.registry, archetype, state)
		if !ok || !access.matches(record.TableRow) {
			return false
		}
	}

	return true
}

type stateAccess struct {
	column ColumnAccess
	value  uint64
	read   func(ptr unsafe.Pointer) uint64
}

func makeStateAccess(registry *Registry, archetype *Archetype, state StatePredicate) (stateAccess, bool) {
	info, ok := registry.Info(state.Component)
	if !ok || info.EnumValue == nil {
		return stateAccess{}, false
	}

	column := archetype.table.Column(state.Component)
	if column == nil {
		return stateAccess{}, false
	}

	return stateAccess{column: column.Access(), value: state.Value, read: info.EnumValue}, true
}

func (s *stateAccess) matches(row Row) bool {
	return s.read(s.column.At(row)) == s.value
}

// QueryIter walks the rows of all matching archetypes. Archetypes and rows
// that are added while iterating are not visited.
type QueryIter struct {
	query   *Query
	storage *Storage

	archetypes   []*Archetype
	archetypeIdx int
	archetype    *Archetype

	row  Row
	rows Row

	entity   Id
	tableRow Row

	columns []ColumnAccess
	matched []Id
	states  []stateAccess

	locked bool
}

func (it *QueryIter) Next() bool {
	for {
		for it.row < it.rows {
			index := it.archetype.entities[it.row]
			it.row++

			record := it.storage.record(index)
			if !record.Id.Has(FlagActive) {
				continue
			}

			if !it.statesMatch(record.TableRow) {
				continue
			}

			it.entity = record.Id.Strip()
			it.tableRow = record.TableRow

			return true
		}

		if !it.nextArchetype() {
			it.Close()
			return false
		}
	}
}

func (it *QueryIter) nextArchetype() bool {
	for it.archetypeIdx+1 < len(it.archetypes) {
		it.archetypeIdx++

		archetype := it.archetypes[it.archetypeIdx]
		if archetype.Len() == 0 {
			continue
		}

		if !it.prepare(archetype) {
			continue
		}

		it.archetype = archetype
		it.row = 0
		it.rows = Row(archetype.Len())

		return true
	}

	it.archetype = nil
	it.row, it.rows = 0, 0

	return false
}

// prepare resolves the columns of all terms in the archetype.
func (it *QueryIter) prepare(archetype *Archetype) bool {
	for idx, term := range it.query.shape.Terms {
		matched, ok := resolveTerm(archetype, term.Id)
		if !ok {
			// an optional term without a match
			it.matched[idx] = 0
			it.columns[idx] = ColumnAccess{}
			continue
		}

		it.matched[idx] = matched
		it.columns[idx] = archetype.table.Column(matched).Access()
	}

	for idx, state := range it.query.shape.Mask.States {
		access, ok := makeStateAccess(it.storage.registry, archetype, state)
		if !ok {
			return false
		}

		it.states[idx] = access
	}

	return true
}

// resolveTerm finds the id a term fetches in the archetype. A wildcard
// term prefers the first matching relationship with data and falls back to
// the first match if all matches are tags.
func resolveTerm(archetype *Archetype, pattern Id) (Id, bool) {
	first, ok := archetype.Match(pattern)
	if !ok || !pattern.Strip().IsWildcard() || archetype.table.Column(first) != nil {
		return first, ok
	}

	for _, matched := range archetype.MatchAll(pattern) {
		if archetype.table.Column(matched) != nil {
			return matched, true
		}
	}

	return first, true
}

func (it *QueryIter) statesMatch(row Row) bool {
	for idx := range it.states {
		if !it.states[idx].matches(row) {
			return false
		}
	}

	return true
}

// Entity returns the current entity.
func (it *QueryIter) Entity() Id {
	return it.entity
}

// Archetype returns the archetype of the current entity.
func (it *QueryIter) Archetype() *Archetype {
	return it.archetype
}

// Ptr returns a pointer to the value of the term in the current row. It
// returns nil for an absent optional term and for tags.
func (it *QueryIter) Ptr(term int) unsafe.Pointer {
	return it.columns[term].At(it.tableRow)
}

// Matched returns the id the term resolved to in the current archetype.
// For a wildcard term this is the concrete relationship.
func (it *QueryIter) Matched(term int) Id {
	return it.matched[term]
}

// Close releases the lock taken by the iterator. Calling Close more than
// once has no effect.
func (it *QueryIter) Close() {
	if !it.locked {
		return
	}

	it.locked = false
	it.archetypes = nil
	it.archetype = nil
	it.row, it.rows = 0, 0
	it.storage.Unlock()
}
