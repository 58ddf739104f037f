package spoke

import (
	"log/slog"
	"unsafe"

	"github.com/oliverbestmann/knot/internal/assert"
	"github.com/oliverbestmann/knot/internal/typedpool"
	"github.com/rotisserie/eris"
)

// AddResult describes the outcome of adding a component.
type AddResult uint8

const (
	// AddNew means the entity moved into an archetype containing the component.
	AddNew AddResult = iota

	// AlreadyExists means the entity already had the component.
	AlreadyExists

	// Deferred means the storage is locked and the operation was queued.
	Deferred
)

func (r AddResult) String() string {
	switch r {
	case AddNew:
		return "AddNew"
	case AlreadyExists:
		return "AlreadyExists"
	default:
		return "Deferred"
	}
}

type Option func(o *options)

type options struct {
	logger   *slog.Logger
	policy   ReusePolicy
	capacity int
}

// WithLogger sets the logger used for debug output of the storage.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func WithReusePolicy(policy ReusePolicy) Option {
	return func(o *options) {
		o.policy = policy
	}
}

// WithInitialCapacity reserves space for the given number of entities.
func WithInitialCapacity(capacity int) Option {
	return func(o *options) {
		o.capacity = capacity
	}
}

// Storage is the single owner of all entity, archetype and table state.
// It is not safe for concurrent use.
//
// Entity handles returned by the storage carry no flags, the flags of an
// entity are kept in its Record.
type Storage struct {
	logger *slog.Logger
	policy ReusePolicy

	entities *EntityIndex
	registry *Registry
	graph    *ArchetypeGraph
	queries  *queryCache
	deferred *deferredQueue
	names    *nameIndex

	handles *typedpool.Pool[[]Id]
}

func NewStorage(opts ...Option) *Storage {
	o := options{
		logger:   slog.Default(),
		policy:   ReuseTable,
		capacity: 256,
	}

	for _, opt := range opts {
		opt(&o)
	}

	registry := newRegistry()

	s := &Storage{
		logger:   o.logger,
		policy:   o.policy,
		entities: NewEntityIndex(o.capacity),
		registry: registry,
		graph:    newArchetypeGraph(registry, o.logger, o.policy),
		deferred: newDeferredQueue(),
		names:    newNameIndex(),
		handles:  typedpool.Slice[Id](),
	}

	s.queries = newQueryCache(s.graph, registry)
	s.graph.onCreate = s.queries.offer

	for idx, name := range []string{"Entity", "Component", "ChildOf"} {
		id := s.NewEntity()
		assert.Equal(uint32(idx), id.Index(), "index of reserved entity")

		s.registry.insert(&ComponentInfo{Id: id, Name: name})
	}

	// an entity has at most one parent
	if err := s.SetExclusive(ChildOf); err != nil {
		panic(err)
	}

	return s
}

func (s *Storage) Logger() *slog.Logger {
	return s.logger
}

func (s *Storage) Graph() *ArchetypeGraph {
	return s.graph
}

// NewEntity creates an entity without components.
func (s *Storage) NewEntity() Id {
	id := s.entities.Alloc()

	record, ok := s.entities.Get(id.Index())
	assert.That(ok, "record of new entity %s", id)

	root := s.graph.Root()

	record.Archetype = root.Id
	record.ArchetypeRow = root.push(id.Index())
	record.TableRow = root.table.push(id.Index())

	return id.Strip()
}

// SetExclusive marks relation as exclusive: adding (relation, target) to an
// entity replaces any other (relation, *) the entity has.
func (s *Storage) SetExclusive(relation Id) error {
	record, ok := s.entities.Lookup(relation)
	if !ok {
		return notAlive(relation)
	}

	record.Id = record.Id.With(FlagRelationExclusive)
	return nil
}

// AddComponent adds the component to the entity. If the component carries
// data, it is initialized by copying from value, or to its zero value if
// value is nil. If the entity already has the component, its value is not
// modified. Passing a relationship id is the same as calling AddRelationship.
func (s *Storage) AddComponent(component, entity Id, value unsafe.Pointer) (*Archetype, AddResult, error) {
	return s.add(opAdd, component, entity, value)
}

// SetComponent adds the component or overwrites its current value in place.
func (s *Storage) SetComponent(component, entity Id, value unsafe.Pointer) error {
	_, _, err := s.add(opSet, component, entity, value)
	return err
}

// AddRelationship adds the (relation, target) relationship to the entity.
// If one of the operands is a component with data, value initializes it.
func (s *Storage) AddRelationship(entity, relation, target Id, value unsafe.Pointer) (*Archetype, AddResult, error) {
	if !s.entities.IsAlive(relation) {
		return nil, AddNew, eris.Wrapf(ErrMissingRelation, "relation %s", relation)
	}

	if !s.entities.IsAlive(target) {
		return nil, AddNew, eris.Wrapf(ErrMissingTarget, "target %s", target)
	}

	return s.add(opAdd, Relationship(relation, target), entity, value)
}

// SetRelationship adds the relationship or overwrites its value in place.
func (s *Storage) SetRelationship(entity, relation, target Id, value unsafe.Pointer) error {
	if !s.entities.IsAlive(relation) {
		return eris.Wrapf(ErrMissingRelation, "relation %s", relation)
	}

	if !s.entities.IsAlive(target) {
		return eris.Wrapf(ErrMissingTarget, "target %s", target)
	}

	_, _, err := s.add(opSet, Relationship(relation, target), entity, value)
	return err
}

func (s *Storage) add(kind opKind, component, entity Id, value unsafe.Pointer) (*Archetype, AddResult, error) {
	record, ok := s.entities.Lookup(entity)
	if !ok {
		return nil, AddNew, notAlive(entity)
	}

	key := component.Strip()

	if key.IsRelationship() {
		if err := s.prepareRelationship(record, key); err != nil {
			return nil, AddNew, err
		}
	} else if !s.entities.IsAlive(key) {
		return nil, AddNew, eris.Wrapf(ErrNotComponent, "add %s to %s", component, entity)
	}

	locked := s.deferred.Locked()

	// with ops pending for the entity, the outcome is only known on replay
	current := s.graph.Archetype(record.Archetype)
	if current.Contains(key) && !(locked && s.deferred.hasPending(entity)) {
		if kind == opSet && value != nil {
			if column := current.table.Column(key); column != nil {
				column.ReplaceAt(record.TableRow, value)
			}
		}

		return current, AlreadyExists, nil
	}

	if locked {
		s.deferred.push(deferredOp{kind: kind, entity: entity, component: key}, s.registry, value)
		return nil, Deferred, nil
	}

	if key.IsRelationship() {
		s.removeExclusive(entity, key)
	}

	return s.addComponent(key, entity, value)
}

// addComponent performs the structural change without checking the lock.
func (s *Storage) addComponent(component, entity Id, value unsafe.Pointer) (*Archetype, AddResult, error) {
	record, ok := s.entities.Lookup(entity)
	if !ok {
		return nil, AddNew, notAlive(entity)
	}

	key := component.Strip()

	current := s.graph.Archetype(record.Archetype)
	if current.Contains(key) {
		return current, AlreadyExists, nil
	}

	next := s.graph.With(current, key, s.policy)
	s.move(record, current, next, key, value)

	return next, AddNew, nil
}

// prepareRelationship validates the operands of the relationship, marks
// them with their role, and lets the relationship inherit the layout of the
// operand that carries data. The relation takes precedence.
func (s *Storage) prepareRelationship(record *Record, relationship Id) error {
	if relationship.Relation() == WildcardIndex {
		return eris.Wrapf(ErrMissingRelation, "relationship %s", relationship)
	}

	if relationship.Target() == WildcardSecond {
		return eris.Wrapf(ErrMissingTarget, "relationship %s", relationship)
	}

	relation, ok := s.entities.Get(relationship.Relation())
	if !ok {
		return eris.Wrapf(ErrMissingRelation, "relationship %s", relationship)
	}

	target, ok := s.entities.Get(relationship.Target())
	if !ok {
		return eris.Wrapf(ErrMissingTarget, "relationship %s", relationship)
	}

	relation.Id = relation.Id.With(FlagRelation)
	target.Id = target.Id.With(FlagTarget)
	record.Id = record.Id.With(FlagWatched)

	if info, ok := s.registry.Info(relation.Id); ok && !info.IsTag() {
		s.registry.inherit(relationship, info)
	} else if info, ok := s.registry.Info(target.Id); ok && !info.IsTag() {
		s.registry.inherit(relationship, info)
	}

	return nil
}

// removeExclusive removes other targets of an exclusive relation before a
// new relationship is added.
func (s *Storage) removeExclusive(entity Id, relationship Id) {
	relation, ok := s.entities.Get(relationship.Relation())
	if !ok || !relation.Id.Has(FlagRelationExclusive) {
		return
	}

	pattern := Relationship(relation.Id, Wildcard)

	record, _ := s.entities.Lookup(entity)
	current := s.graph.Archetype(record.Archetype)

	for _, existing := range current.MatchAll(pattern) {
		if existing != relationship {
			_, _ = s.removeComponent(existing, entity)
		}
	}
}

// RemoveComponent removes the component from the entity. A wildcard
// relationship removes every matching relationship.
func (s *Storage) RemoveComponent(component, entity Id) (*Archetype, error) {
	if !s.entities.IsAlive(entity) {
		return nil, notAlive(entity)
	}

	if s.deferred.Locked() {
		s.deferred.push(deferredOp{kind: opRemove, entity: entity, component: component.Strip()}, s.registry, nil)
		return nil, nil
	}

	return s.removeComponent(component, entity)
}

func (s *Storage) RemoveRelationship(entity, relation, target Id) (*Archetype, error) {
	return s.RemoveComponent(Relationship(relation, target), entity)
}

func (s *Storage) removeComponent(component, entity Id) (*Archetype, error) {
	record, ok := s.entities.Lookup(entity)
	if !ok {
		return nil, notAlive(entity)
	}

	key := indexKey(component)

	current := s.graph.Archetype(record.Archetype)

	var matched []Id
	if key.IsWildcard() {
		matched = current.MatchAll(key)
	} else if current.Contains(key) {
		matched = []Id{key}
	}

	if len(matched) == 0 {
		return current, noComponent(component, entity)
	}

	next := current
	for _, componentId := range matched {
		next = s.graph.Without(next, componentId)
	}

	s.move(record, current, next, 0, nil)

	if !next.HasRelationships() {
		record.Id = record.Id.Without(FlagWatched)
	}

	return next, nil
}

// move relocates the entity of record from one archetype into another and
// patches the records of all entities that were swapped into vacated rows.
func (s *Storage) move(record *Record, from, to *Archetype, added Id, value unsafe.Pointer) {
	index := record.Id.Index()

	if from.table != to.table {
		previousRow := record.TableRow

		tableRow, moved, ok := from.table.moveRow(previousRow, to.table, added, value)
		if ok {
			s.record(moved).TableRow = previousRow
		}

		record.TableRow = tableRow
	}

	if moved, ok := from.swapRemove(record.ArchetypeRow); ok {
		s.record(moved).ArchetypeRow = record.ArchetypeRow
	}

	record.Archetype = to.Id
	record.ArchetypeRow = to.push(index)
}

func (s *Storage) record(index uint32) *Record {
	record, ok := s.entities.Get(index)
	return assert.Found(record, ok, "record of entity index %d", index)
}

// RemoveEntity deletes the entity, all of its children and every
// relationship referencing it.
func (s *Storage) RemoveEntity(entity Id) error {
	if !s.entities.IsAlive(entity) {
		return notAlive(entity)
	}

	if s.deferred.Locked() {
		s.deferred.push(deferredOp{kind: opRemoveEntity, entity: entity}, s.registry, nil)
		return nil
	}

	s.removeEntity(entity)
	return nil
}

func (s *Storage) removeEntity(entity Id) {
	if _, ok := s.entities.Lookup(entity); !ok {
		// already removed as part of the cascade
		return
	}

	s.names.remove(entity.Index())

	// children are removed before the references to the parent
	children := s.holders(Relationship(ChildOf, entity))
	for _, child := range *children {
		s.logger.Debug("Remove child of removed entity", slog.Any("parent", entity), slog.Any("child", child))
		s.removeEntity(child)
	}

	s.handles.Put(children)

	s.removeReferences(entity)

	record, ok := s.entities.Lookup(entity)
	assert.That(ok, "record of removed entity %s", entity)

	archetype := s.graph.Archetype(record.Archetype)

	if moved, ok := archetype.swapRemove(record.ArchetypeRow); ok {
		s.record(moved).ArchetypeRow = record.ArchetypeRow
	}

	if moved, ok := archetype.table.swapRemove(record.TableRow, true); ok {
		s.record(moved).TableRow = record.TableRow
	}

	s.registry.forget(entity)
	s.entities.Free(entity.Index())
}

// removeReferences removes every relationship the entity is an operand of,
// and the entity itself where it was used as a component.
func (s *Storage) removeReferences(entity Id) {
	patterns := [3]Id{
		Relationship(Wildcard, entity),
		Relationship(entity, Wildcard),
		entity.Strip(),
	}

	for _, pattern := range patterns {
		holders := s.holders(pattern)

		for _, holder := range *holders {
			_, _ = s.removeComponent(pattern, holder)
		}

		s.handles.Put(holders)
	}
}

// holders collects all live entities with an id matched by the pattern.
// The returned slice must be returned to the pool.
func (s *Storage) holders(pattern Id) *[]Id {
	result := s.handles.Get()

	for _, archetypeId := range s.graph.ArchetypesWith(pattern) {
		for _, index := range s.graph.Archetype(archetypeId).entities {
			*result = append(*result, s.record(index).Id.Strip())
		}
	}

	return result
}

// SetActive toggles the active flag of an entity. Inactive entities are
// skipped by queries but keep all of their components.
func (s *Storage) SetActive(entity Id, active bool) error {
	record, ok := s.entities.Lookup(entity)
	if !ok {
		return notAlive(entity)
	}

	if active {
		record.Id = record.Id.With(FlagActive)
	} else {
		record.Id = record.Id.Without(FlagActive)
	}

	return nil
}

func (s *Storage) IsActive(entity Id) bool {
	record, ok := s.entities.Lookup(entity)
	return ok && record.Id.Has(FlagActive)
}

func (s *Storage) IsAlive(entity Id) bool {
	return s.entities.IsAlive(entity)
}

// HasComponent reports whether the entity has an id matched by component,
// which may be a wildcard relationship.
func (s *Storage) HasComponent(component, entity Id) bool {
	archetype, ok := s.ArchetypeOf(entity)
	return ok && archetype.Contains(indexKey(component))
}

// GetComponent returns a pointer to the value of the component. The pointer
// is valid until the next structural change of the storage. Tags yield a nil
// pointer. For a wildcard relationship, the first match is returned.
func (s *Storage) GetComponent(component, entity Id) (unsafe.Pointer, error) {
	record, ok := s.entities.Lookup(entity)
	if !ok {
		return nil, notAlive(entity)
	}

	archetype := s.graph.Archetype(record.Archetype)

	matched, ok := archetype.Match(indexKey(component))
	if !ok {
		return nil, noComponent(component, entity)
	}

	column := archetype.table.Column(matched)
	if column == nil {
		return nil, nil
	}

	return column.PtrAt(record.TableRow), nil
}

// GetComponentMut is GetComponent for call sites that write through the pointer.
func (s *Storage) GetComponentMut(component, entity Id) (unsafe.Pointer, error) {
	return s.GetComponent(component, entity)
}

// ComponentsOf returns the ids of the entity's archetype without the root marker.
func (s *Storage) ComponentsOf(entity Id) []Id {
	archetype, ok := s.ArchetypeOf(entity)
	if !ok {
		return nil
	}

	var ids []Id
	for _, id := range archetype.ids {
		if id != EntityTag {
			ids = append(ids, id)
		}
	}

	return ids
}

// Targets returns the live targets of all (relation, *) relationships of the entity.
func (s *Storage) Targets(entity, relation Id) []Id {
	archetype, ok := s.ArchetypeOf(entity)
	if !ok {
		return nil
	}

	var targets []Id
	for _, id := range archetype.MatchAll(Relationship(relation, Wildcard)) {
		if target, ok := s.entities.Resolve(id.Target()); ok {
			targets = append(targets, target.Strip())
		}
	}

	return targets
}

// Resolve returns the handle of the live entity at index.
func (s *Storage) Resolve(index uint32) (Id, bool) {
	id, ok := s.entities.Resolve(index)
	return id.Strip(), ok
}

// RecordOf returns a copy of the entity's record.
func (s *Storage) RecordOf(entity Id) (Record, bool) {
	record, ok := s.entities.Lookup(entity)
	if !ok {
		return Record{}, false
	}

	return *record, true
}

func (s *Storage) ArchetypeOf(entity Id) (*Archetype, bool) {
	record, ok := s.entities.Lookup(entity)
	if !ok {
		return nil, false
	}

	return s.graph.Archetype(record.Archetype), true
}

func (s *Storage) EntityCount() int {
	return s.entities.Len()
}

// assertInvariants verifies that records, archetypes and tables agree.
func (s *Storage) assertInvariants() {
	for _, table := range s.graph.tables {
		table.assertInvariants()
	}

	for _, archetype := range s.graph.archetypes {
		for row, index := range archetype.entities {
			record := s.record(index)
			assert.Equal(archetype.Id, record.Archetype, "archetype of record")
			assert.Equal(Row(row), record.ArchetypeRow, "archetype row of record")
			assert.Equal(index, archetype.table.Entity(record.TableRow), "entity in table row")
		}
	}
}
