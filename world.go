package knot

import (
	"fmt"
	"log/slog"
	"reflect"

	"github.com/oliverbestmann/knot/spoke"
	"github.com/rotisserie/eris"
)

// EntityId is the handle of an entity. Handles carry the generation of the
// entity, a stale handle never resolves to a newer entity.
type EntityId = spoke.Id

const NoEntityId = EntityId(0)

// ChildOf is the built-in exclusive parent relation.
const ChildOf = spoke.ChildOf

type resourceValue struct {
	// Value is of kind Pointer and points to the value of the resource.
	Value reflect.Value
}

type AnyPtr = any

type Option func(o *worldOptions)

type worldOptions struct {
	logger  *slog.Logger
	storage []spoke.Option
}

// WithLogger sets the logger of the world and its storage.
func WithLogger(logger *slog.Logger) Option {
	return func(o *worldOptions) {
		o.logger = logger
	}
}

// WithStorageOptions passes options through to the underlying storage.
func WithStorageOptions(opts ...spoke.Option) Option {
	return func(o *worldOptions) {
		o.storage = append(o.storage, opts...)
	}
}

// World holds all entities and resources, schedules and systems.
type World struct {
	storage   *spoke.Storage
	logger    *slog.Logger
	resources map[reflect.Type]resourceValue

	schedules map[ScheduleId]*Schedule
	stages    []ScheduleId
	running   map[ScheduleId]bool

	transitions []SystemFunc
	eventQueues []eventQueue
}

// NewWorld creates a new empty world with the default stages.
func NewWorld(opts ...Option) *World {
	o := worldOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	storageOptions := append([]spoke.Option{spoke.WithLogger(o.logger)}, o.storage...)

	w := &World{
		storage:   spoke.NewStorage(storageOptions...),
		logger:    o.logger,
		resources: map[reflect.Type]resourceValue{},
		schedules: map[ScheduleId]*Schedule{},
		running:   map[ScheduleId]bool{},
	}

	for _, stage := range defaultStages {
		w.AddStage(stage)
	}

	return w
}

// Storage gives access to the untyped storage engine.
func (w *World) Storage() *spoke.Storage {
	return w.storage
}

func (w *World) Logger() *slog.Logger {
	return w.logger
}

// Spawn creates a new entity with the given components. A value of type
// EntityId is added as a tag or relationship id, every other value is
// added as a component of its type, which is registered if needed.
func (w *World) Spawn(components ...any) EntityId {
	entityId := w.storage.NewEntity()

	if err := w.Insert(entityId, components...); err != nil {
		panic(fmt.Sprintf("spawn %s: %s", entityId, err))
	}

	return entityId
}

// Insert adds or overwrites the given components on the entity, see Spawn.
func (w *World) Insert(entityId EntityId, components ...any) error {
	for _, component := range components {
		if id, ok := component.(EntityId); ok {
			if _, _, err := w.storage.AddComponent(id, entityId, nil); err != nil {
				return err
			}

			continue
		}

		componentType := reflect.TypeOf(component)
		if componentType == nil {
			return eris.Wrapf(ErrTypeMismatch, "nil component for %s", entityId)
		}

		componentId := w.register(componentType)

		// copy the value to the heap so it can be addressed
		ptr := reflect.New(componentType)
		ptr.Elem().Set(reflect.ValueOf(component))

		if err := w.storage.SetComponent(componentId, entityId, ptr.UnsafePointer()); err != nil {
			return err
		}
	}

	return nil
}

// Destroy removes the entity, its children and all relationships
// referencing it.
func (w *World) Destroy(entityId EntityId) error {
	return w.storage.RemoveEntity(entityId)
}

func (w *World) IsAlive(entityId EntityId) bool {
	return w.storage.IsAlive(entityId)
}

// SetActive enables or disables an entity. Inactive entities keep their
// components but are not visited by queries.
func (w *World) SetActive(entityId EntityId, active bool) error {
	return w.storage.SetActive(entityId, active)
}

// SetName names the entity. Names are unique among the children of a parent.
func (w *World) SetName(entityId EntityId, name string) error {
	return w.storage.SetName(entityId, name)
}

func (w *World) Name(entityId EntityId) (string, bool) {
	return w.storage.Name(entityId)
}

// Lookup finds an entity by its name. Pass NoEntityId as parent to look
// up entities without a parent.
func (w *World) Lookup(parent EntityId, name string) (EntityId, bool) {
	if parent == NoEntityId {
		parent = spoke.EntityTag
	}

	return w.storage.Lookup(parent, name)
}

// NewTag registers a named tag without a Go type.
func (w *World) NewTag(name string) EntityId {
	return w.storage.RegisterTag(name)
}

// AddTag adds a tag to the entity. Any live entity can be used as a tag.
func (w *World) AddTag(entityId, tag EntityId) error {
	_, _, err := w.storage.AddComponent(tag, entityId, nil)
	return err
}

func (w *World) RemoveTag(entityId, tag EntityId) error {
	_, err := w.storage.RemoveComponent(tag, entityId)
	return err
}

func (w *World) HasTag(entityId, tag EntityId) bool {
	return w.storage.HasComponent(tag, entityId)
}

// Lock defers all structural changes until the matching Unlock.
func (w *World) Lock() {
	w.storage.Lock()
}

func (w *World) Unlock() {
	w.storage.Unlock()
}

// InsertResource inserts a new resource into the world.
// The resource should be provided as a non-pointer type.
//
// If the resource does not yet exist, a new value of the resources type will
// be allocated on the heap and the value provided will be copied into that memory location.
//
// If the world already contains a resource of the same type, this value will
// just be updated with the newly provided one.
func (w *World) InsertResource(resource any) {
	resType := reflect.PointerTo(reflect.TypeOf(resource))

	if existing, ok := w.resources[resType]; ok {
		// update existing value in place
		existing.Value.Elem().Set(reflect.ValueOf(resource))
		return
	}

	// allocate the resource on the heap and copy the provided value to it
	ptr := reflect.New(resType.Elem())
	ptr.Elem().Set(reflect.ValueOf(resource))

	w.resources[ptr.Type()] = resourceValue{
		Value: ptr,
	}
}

// RemoveResource removes a resource previously added with InsertResource.
func (w *World) RemoveResource(resourceType reflect.Type) {
	resType := reflect.PointerTo(resourceType)
	delete(w.resources, resType)
}

// Resource returns a pointer to the resource of the given reflect type.
// The type must be the non-pointer type of the resource, i.e. the type of the resource
// as it was passed to InsertResource.
func (w *World) Resource(ty reflect.Type) (AnyPtr, bool) {
	resValue, ok := w.resources[reflect.PointerTo(ty)]
	if !ok {
		return nil, false
	}

	return resValue.Value.Interface(), true
}

// ResourceOf is a typed version of World.Resource.
func ResourceOf[T any](w *World) (*T, bool) {
	value, ok := w.Resource(reflect.TypeFor[T]())
	if !ok {
		return nil, false
	}

	return value.(*T), true
}
