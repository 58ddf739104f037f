package spoke

import (
	"log/slog"
	"weak"

	"github.com/kamstrup/intmap"
)

// cachedShape is the list of archetypes matching one normalized shape.
// The list only grows, in archetype creation order.
type cachedShape struct {
	shape      Shape
	hash       uint64
	archetypes []*Archetype
}

type queryCache struct {
	graph    *ArchetypeGraph
	registry *Registry

	byHash *intmap.Map[uint64, []weak.Pointer[cachedShape]]
	shapes []weak.Pointer[cachedShape]
}

func newQueryCache(graph *ArchetypeGraph, registry *Registry) *queryCache {
	return &queryCache{
		graph:    graph,
		registry: registry,
		byHash:   intmap.New[uint64, []weak.Pointer[cachedShape]](32),
	}
}

// lookup returns the cache entry of the shape, scanning the archetype graph
// if the shape was not seen before.
func (qc *queryCache) lookup(shape Shape) *cachedShape {
	normalized := shape.normalized()
	hash := normalized.hash()

	bucket, _ := qc.byHash.Get(hash)

	// reuse slice memory
	alive := bucket[:0]

	var found *cachedShape
	for _, weakEntry := range bucket {
		entry := weakEntry.Value()
		if entry == nil {
			continue
		}

		alive = append(alive, weakEntry)

		if found == nil && entry.shape.equal(&normalized) {
			found = entry
		}
	}

	if found != nil {
		qc.byHash.Put(hash, alive)
		return found
	}

	entry := &cachedShape{
		shape:      normalized,
		hash:       hash,
		archetypes: qc.scan(&normalized),
	}

	qc.byHash.Put(hash, append(alive, weak.Make(entry)))
	qc.shapes = append(qc.shapes, weak.Make(entry))

	qc.graph.logger.Debug(
		"New query shape cached",
		slog.Uint64("hash", hash),
		slog.Int("archetypes", len(entry.archetypes)),
	)

	return entry
}

// scan collects all archetypes matching the shape. The scan is anchored on
// the first required id to avoid looking at unrelated archetypes.
func (qc *queryCache) scan(shape *Shape) []*Archetype {
	var matching []*Archetype

	anchor, ok := shape.anchor()
	if !ok {
		for _, archetype := range qc.graph.All() {
			if shape.MatchesArchetype(archetype) {
				matching = append(matching, archetype)
			}
		}

		return matching
	}

	for _, archetypeId := range qc.graph.ArchetypesWith(anchor) {
		archetype := qc.graph.Archetype(archetypeId)
		if shape.MatchesArchetype(archetype) {
			matching = append(matching, archetype)
		}
	}

	return matching
}

// offer appends a newly created archetype to every cached shape it matches.
func (qc *queryCache) offer(archetype *Archetype) {
	// reuse slice memory
	alive := qc.shapes[:0]

	for _, weakEntry := range qc.shapes {
		entry := weakEntry.Value()
		if entry == nil {
			continue
		}

		alive = append(alive, weakEntry)

		if entry.shape.MatchesArchetype(archetype) {
			entry.archetypes = append(entry.archetypes, archetype)
		}
	}

	clear(qc.shapes[len(alive):])
	qc.shapes = alive
}

func (qc *queryCache) Len() int {
	return len(qc.shapes)
}
