package spoke

import (
	"cmp"
	"encoding/binary"
	"slices"

	"github.com/cespare/xxhash/v2"
)

// Access describes how a fetched column is used by the caller.
type Access uint8

const (
	ByValue Access = iota
	ByRef
)

// Term is one column a query fetches. The id may be a wildcard
// relationship, in which case the first matching relationship with data is
// fetched, or the first matching tag if there is none.
type Term struct {
	Id       Id
	Optional bool
	Access   Access
}

type RequiredIds []Term

// StatePredicate requires the enum component to hold the given value.
type StatePredicate struct {
	Component Id
	Value     uint64
}

// FilterMask restricts the archetypes a query matches.
type FilterMask struct {
	// The archetype needs to have all of these ids
	Has []Id

	// The archetype must not have any of these ids
	Not []Id

	// The archetype needs to have at least one of these ids
	AnyHas []Id

	// The archetype must miss at least one of these ids
	AnyNot []Id

	// Entity level checks of enum values
	States []StatePredicate
}

func (f *FilterMask) IsArchetypeOnly() bool {
	return len(f.States) == 0
}

func (f *FilterMask) MatchesArchetype(a *Archetype) bool {
	for _, id := range f.Has {
		if !a.Contains(id) {
			return false
		}
	}

	for _, id := range f.Not {
		if a.Contains(id) {
			return false
		}
	}

	if len(f.AnyHas) > 0 && !slices.ContainsFunc(f.AnyHas, a.Contains) {
		return false
	}

	if len(f.AnyNot) > 0 && !slices.ContainsFunc(f.AnyNot, func(id Id) bool { return !a.Contains(id) }) {
		return false
	}

	for _, state := range f.States {
		if !a.Contains(state.Component) {
			return false
		}
	}

	return true
}

// Shape is the full description of a query.
type Shape struct {
	Terms RequiredIds
	Mask  FilterMask
}

func (s *Shape) MatchesArchetype(a *Archetype) bool {
	for _, term := range s.Terms {
		if !term.Optional && !a.Contains(term.Id) {
			return false
		}
	}

	return s.Mask.MatchesArchetype(a)
}

// anchor returns the first required, non optional id of the shape.
func (s *Shape) anchor() (Id, bool) {
	for _, term := range s.Terms {
		if !term.Optional {
			return term.Id, true
		}
	}

	if len(s.Mask.Has) > 0 {
		return s.Mask.Has[0], true
	}

	return 0, false
}

// normalized returns a copy with all ids stripped and every list sorted, so
// that shapes built in a different order compare equal.
func (s *Shape) normalized() Shape {
	terms := make(RequiredIds, 0, len(s.Terms))
	for _, term := range s.Terms {
		term.Id = indexKey(term.Id)
		terms = append(terms, term)
	}

	slices.SortFunc(terms, func(a, b Term) int {
		return cmp.Or(
			cmp.Compare(a.Id, b.Id),
			cmp.Compare(boolInt(a.Optional), boolInt(b.Optional)),
			cmp.Compare(a.Access, b.Access),
		)
	})

	states := slices.Clone(s.Mask.States)
	slices.SortFunc(states, func(a, b StatePredicate) int {
		return cmp.Or(cmp.Compare(a.Component, b.Component), cmp.Compare(a.Value, b.Value))
	})

	return Shape{
		Terms: terms,
		Mask: FilterMask{
			Has:    normalizeIds(s.Mask.Has),
			Not:    normalizeIds(s.Mask.Not),
			AnyHas: normalizeIds(s.Mask.AnyHas),
			AnyNot: normalizeIds(s.Mask.AnyNot),
			States: states,
		},
	}
}

// Hash hashes the normalized shape.
func (s *Shape) Hash() uint64 {
	n := s.normalized()
	return n.hash()
}

func (s *Shape) hash() uint64 {
	var buf []byte

	for _, term := range s.Terms {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(term.Id))
		buf = append(buf, byte(boolInt(term.Optional)), byte(term.Access))
	}

	for _, ids := range [][]Id{s.Mask.Has, s.Mask.Not, s.Mask.AnyHas, s.Mask.AnyNot} {
		// separate the lists, so that moving an id between lists changes the hash
		buf = append(buf, 0xff)

		for _, id := range ids {
			buf = binary.LittleEndian.AppendUint64(buf, uint64(id))
		}
	}

	for _, state := range s.Mask.States {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(state.Component))
		buf = binary.LittleEndian.AppendUint64(buf, state.Value)
	}

	return xxhash.Sum64(buf)
}

func (s *Shape) equal(other *Shape) bool {
	return slices.Equal(s.Terms, other.Terms) &&
		slices.Equal(s.Mask.Has, other.Mask.Has) &&
		slices.Equal(s.Mask.Not, other.Mask.Not) &&
		slices.Equal(s.Mask.AnyHas, other.Mask.AnyHas) &&
		slices.Equal(s.Mask.AnyNot, other.Mask.AnyNot) &&
		slices.Equal(s.Mask.States, other.Mask.States)
}

func normalizeIds(ids []Id) []Id {
	if len(ids) == 0 {
		return nil
	}

	result := make([]Id, 0, len(ids))
	for _, id := range ids {
		result = append(result, indexKey(id))
	}

	slices.Sort(result)
	return slices.Compact(result)
}

func boolInt(value bool) int {
	if value {
		return 1
	}

	return 0
}

// QueryBuilder collects the terms and filters of a query.
type QueryBuilder struct {
	terms RequiredIds
	mask  FilterMask
}

// Fetch adds a column to fetch and returns the index of its term. Fetching
// the same id twice returns the existing term.
func (q *QueryBuilder) Fetch(id Id, access Access) int {
	return q.fetch(Term{Id: id, Access: access})
}

// FetchOptional adds a column that resolves to nil for archetypes without it.
func (q *QueryBuilder) FetchOptional(id Id, access Access) int {
	return q.fetch(Term{Id: id, Optional: true, Access: access})
}

func (q *QueryBuilder) fetch(term Term) int {
	for idx := range q.terms {
		existing := &q.terms[idx]
		if existing.Id == term.Id {
			existing.Optional = existing.Optional && term.Optional
			existing.Access = max(existing.Access, term.Access)
			return idx
		}
	}

	q.terms = append(q.terms, term)
	return len(q.terms) - 1
}

func (q *QueryBuilder) With(ids ...Id) *QueryBuilder {
	q.mask.Has = append(q.mask.Has, ids...)
	return q
}

func (q *QueryBuilder) Without(ids ...Id) *QueryBuilder {
	q.mask.Not = append(q.mask.Not, ids...)
	return q
}

func (q *QueryBuilder) WithAny(ids ...Id) *QueryBuilder {
	q.mask.AnyHas = append(q.mask.AnyHas, ids...)
	return q
}

func (q *QueryBuilder) WithoutAny(ids ...Id) *QueryBuilder {
	q.mask.AnyNot = append(q.mask.AnyNot, ids...)
	return q
}

// State requires the enum component to hold value.
func (q *QueryBuilder) State(component Id, value uint64) *QueryBuilder {
	q.mask.States = append(q.mask.States, StatePredicate{Component: component, Value: value})
	return q
}

func (q *QueryBuilder) Build() Shape {
	return Shape{
		Terms: slices.Clone(q.terms),
		Mask: FilterMask{
			Has:    slices.Clone(q.mask.Has),
			Not:    slices.Clone(q.mask.Not),
			AnyHas: slices.Clone(q.mask.AnyHas),
			AnyNot: slices.Clone(q.mask.AnyNot),
			States: slices.Clone(q.mask.States),
		},
	}
}
