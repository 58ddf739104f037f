package spoke

import (
	"fmt"
)

type Row uint32

// Record locates the data of an entity.
type Record struct {
	Archetype    ArchetypeId
	ArchetypeRow Row
	TableRow     Row

	// Id is the full identifier of the entity, including the current
	// generation and the bookkeeping flags.
	Id Id
}

type slot struct {
	record Record
	used   bool
}

// EntityIndex maps an entity index to its Record. Freed slots are reused,
// the generation of a reused slot is incremented to invalidate stale handles.
type EntityIndex struct {
	slots []slot
	free  []uint32
	alive int
}

func NewEntityIndex(capacity int) *EntityIndex {
	return &EntityIndex{
		slots: make([]slot, 0, capacity),
	}
}

// Alloc reserves a new slot. The returned Id carries FlagActive.
// The record is not yet placed in any archetype.
func (e *EntityIndex) Alloc() Id {
	var index uint32
	var generation uint32

	if n := len(e.free); n > 0 {
		index = e.free[n-1]
		e.free = e.free[:n-1]

		// the generation wraps around after 2^25 reuses of the same slot
		generation = (e.slots[index].record.Id.Generation() + 1) & secondMask
	} else {
		if len(e.slots) > MaxEntities {
			panic(fmt.Sprintf("entity index exhausted at %d entities", len(e.slots)))
		}

		index = uint32(len(e.slots))
		e.slots = append(e.slots, slot{})
	}

	id := Pack(index, generation, FlagActive)

	e.slots[index] = slot{
		record: Record{Id: id},
		used:   true,
	}

	e.alive += 1

	return id
}

// Free releases the slot. The generation stays in the slot until it is reused.
func (e *EntityIndex) Free(index uint32) {
	s := &e.slots[index]
	if !s.used {
		panic(fmt.Sprintf("double free of entity index %d", index))
	}

	s.used = false
	s.record = Record{Id: Pack(index, s.record.Id.Generation(), 0)}

	e.free = append(e.free, index)
	e.alive -= 1
}

// Get returns the record at index, ignoring generations.
func (e *EntityIndex) Get(index uint32) (*Record, bool) {
	if int(index) >= len(e.slots) {
		return nil, false
	}

	s := &e.slots[index]
	if !s.used {
		return nil, false
	}

	return &s.record, true
}

// Lookup returns the record of a plain entity if the generation matches.
func (e *EntityIndex) Lookup(id Id) (*Record, bool) {
	if id.IsRelationship() || id == Wildcard {
		return nil, false
	}

	record, ok := e.Get(id.Index())
	if !ok || record.Id.Generation() != id.Generation() {
		return nil, false
	}

	return record, true
}

// Resolve returns the live entity currently occupying index.
func (e *EntityIndex) Resolve(index uint32) (Id, bool) {
	record, ok := e.Get(index)
	if !ok {
		return 0, false
	}

	return record.Id, true
}

// IsAlive reports whether id still refers to a live entity. Relationships
// are alive if both operands resolve to live entities.
func (e *EntityIndex) IsAlive(id Id) bool {
	if id == Wildcard {
		return false
	}

	if id.IsRelationship() {
		if WildcardKindOf(id) != WildcardNone {
			return false
		}

		_, relOk := e.Get(id.Relation())
		_, targetOk := e.Get(id.Target())
		return relOk && targetOk
	}

	_, ok := e.Lookup(id)
	return ok
}

// Len returns the number of live entities.
func (e *EntityIndex) Len() int {
	return e.alive
}
