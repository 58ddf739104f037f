package spoke

import (
	"encoding/binary"
	"log/slog"
	"slices"

	"github.com/cespare/xxhash/v2"
	"github.com/kamstrup/intmap"
	"github.com/oliverbestmann/knot/internal/set"
)

// ReusePolicy decides whether a new archetype may share an existing table.
type ReusePolicy uint8

const (
	// ReuseTable shares a table between all archetypes with identical data
	// bearing component sets.
	ReuseTable ReusePolicy = iota

	// OwnTable gives every new archetype a private table.
	OwnTable
)

func (p ReusePolicy) String() string {
	if p == OwnTable {
		return "OwnTable"
	}

	return "ReuseTable"
}

// ArchetypeGraph owns all archetypes and tables. Archetypes are created on
// demand while entities move between component sets, and are connected by
// cached add and remove edges.
type ArchetypeGraph struct {
	registry *Registry
	logger   *slog.Logger

	archetypes []*Archetype
	byHash     *intmap.Map[uint64, []*Archetype]

	tables       []*Table
	tablesByHash *intmap.Map[uint64, []*Table]

	// byComponent indexes archetypes by every id they contain, and every
	// relationship additionally by its wildcard keys.
	byComponent *intmap.Map[Id, *set.Ordered[ArchetypeId]]

	root *Archetype

	// policy is used for archetypes reached by removing an id
	policy ReusePolicy

	// onCreate is called for every newly created archetype
	onCreate func(a *Archetype)
}

func newArchetypeGraph(registry *Registry, logger *slog.Logger, policy ReusePolicy) *ArchetypeGraph {
	g := &ArchetypeGraph{
		registry:     registry,
		logger:       logger,
		policy:       policy,
		byHash:       intmap.New[uint64, []*Archetype](64),
		tablesByHash: intmap.New[uint64, []*Table](64),
		byComponent:  intmap.New[Id, *set.Ordered[ArchetypeId]](64),
	}

	g.root, _ = g.Ensure([]Id{EntityTag}, ReuseTable)

	return g
}

// Root returns the archetype of entities without any component.
func (g *ArchetypeGraph) Root() *Archetype {
	return g.root
}

func (g *ArchetypeGraph) Archetype(id ArchetypeId) *Archetype {
	return g.archetypes[id]
}

// All returns the archetypes in creation order. The slice must not be modified.
func (g *ArchetypeGraph) All() []*Archetype {
	return g.archetypes
}

func (g *ArchetypeGraph) Tables() []*Table {
	return g.tables
}

// ArchetypesWith returns the ids of all archetypes containing an id matched
// by the pattern, in creation order. The slice must not be modified.
func (g *ArchetypeGraph) ArchetypesWith(pattern Id) []ArchetypeId {
	archetypes, ok := g.byComponent.Get(indexKey(pattern))
	if !ok {
		return nil
	}

	return archetypes.Slice()
}

// Ensure returns the archetype of the given id set, creating it if needed.
func (g *ArchetypeGraph) Ensure(ids []Id, policy ReusePolicy) (*Archetype, bool) {
	sorted := make([]Id, 0, len(ids))
	for _, id := range ids {
		sorted = append(sorted, id.Strip())
	}

	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	if len(sorted) == 0 {
		return g.root, false
	}

	dataIds := g.dataIds(sorted)

	hash := hashIds(sorted)

	candidates, _ := g.byHash.Get(hash)
	for _, candidate := range candidates {
		if slices.Equal(candidate.ids, sorted) && slices.Equal(candidate.table.ids, dataIds) {
			return candidate, false
		}
	}

	table := g.ensureTable(dataIds, policy)

	archetype := makeArchetype(ArchetypeId(len(g.archetypes)), hash, sorted, table)
	g.archetypes = append(g.archetypes, archetype)
	g.byHash.Put(hash, append(candidates, archetype))

	for _, id := range sorted {
		g.index(id, archetype.Id)

		if id.IsRelationship() {
			for _, key := range wildcardKeys(id) {
				g.index(key, archetype.Id)
			}
		}
	}

	g.logger.Debug(
		"New archetype created",
		slog.Int("id", int(archetype.Id)),
		slog.String("archetype", archetype.String()),
		slog.Int("table", int(table.Id)),
	)

	if g.onCreate != nil {
		g.onCreate(archetype)
	}

	return archetype, true
}

// With follows the add edge of a for id.
func (g *ArchetypeGraph) With(a *Archetype, id Id, policy ReusePolicy) *Archetype {
	id = id.Strip()

	edge := a.edge(id)
	if next := edge.Add; next != nil && g.layoutMatches(next, id) {
		return next
	}

	// the root marker is dropped as soon as the first real id is added
	ids := make([]Id, 0, len(a.ids)+1)
	for _, existing := range a.ids {
		if existing != EntityTag {
			ids = append(ids, existing)
		}
	}

	next, _ := g.Ensure(append(ids, id), policy)

	edge.Add = next
	next.edge(id).Remove = a

	return next
}

// Without follows the remove edge of a for id.
func (g *ArchetypeGraph) Without(a *Archetype, id Id) *Archetype {
	id = id.Strip()

	edge := a.edge(id)
	if next := edge.Remove; next != nil {
		return next
	}

	var next *Archetype

	if len(a.ids) == 1 {
		// removing the only id leads back to the root
		next = g.root
	} else {
		ids := make([]Id, 0, len(a.ids))
		for _, existing := range a.ids {
			if existing != id {
				ids = append(ids, existing)
			}
		}

		next, _ = g.Ensure(ids, g.policy)
	}

	edge.Remove = next
	next.edge(id).Add = a

	return next
}

// layoutMatches checks that a cached transition still agrees with the
// registry on whether id carries data. This can change when a relationship
// id is reused after one of its operands was deleted.
func (g *ArchetypeGraph) layoutMatches(a *Archetype, id Id) bool {
	if !id.IsRelationship() {
		return true
	}

	return g.registry.HasData(id) == (a.table.Column(id) != nil)
}

func (g *ArchetypeGraph) dataIds(sorted []Id) []Id {
	var dataIds []Id
	for _, id := range sorted {
		if g.registry.HasData(id) {
			dataIds = append(dataIds, id)
		}
	}

	return dataIds
}

func (g *ArchetypeGraph) ensureTable(dataIds []Id, policy ReusePolicy) *Table {
	hash := hashIds(dataIds)

	candidates, _ := g.tablesByHash.Get(hash)

	if policy == ReuseTable {
		for _, candidate := range candidates {
			if slices.Equal(candidate.ids, dataIds) {
				return candidate
			}
		}
	}

	table := newTable(TableId(len(g.tables)), hash, dataIds, g.registry)
	g.tables = append(g.tables, table)
	g.tablesByHash.Put(hash, append(candidates, table))

	g.logger.Debug(
		"New table created",
		slog.Int("id", int(table.Id)),
		slog.String("table", table.String()),
		slog.String("policy", policy.String()),
	)

	return table
}

func (g *ArchetypeGraph) index(key Id, archetype ArchetypeId) {
	archetypes, ok := g.byComponent.Get(key)
	if !ok {
		archetypes = &set.Ordered[ArchetypeId]{}
		g.byComponent.Put(key, archetypes)
	}

	archetypes.Insert(archetype)
}

// indexKey maps a pattern onto the key used in the component index.
func indexKey(pattern Id) Id {
	if pattern == Wildcard {
		return Relationship(Wildcard, Wildcard)
	}

	return pattern.Strip()
}

func hashIds(sorted []Id) uint64 {
	var scratch [64]byte

	buf := scratch[:0]
	for _, id := range sorted {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(id))
	}

	return xxhash.Sum64(buf)
}
