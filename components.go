package knot

import (
	"reflect"
	"unsafe"

	"github.com/oliverbestmann/knot/spoke"
	"github.com/rotisserie/eris"
)

type integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// Register registers the component type C. Registering a type twice
// returns the same id. Zero sized types are registered as tags.
func Register[C any](w *World) EntityId {
	return w.register(reflect.TypeFor[C]())
}

// RegisterEnum registers an integer component whose value can be used by
// InState query filters.
func RegisterEnum[C integer](w *World) EntityId {
	componentType := reflect.TypeFor[C]()

	if id, ok := w.storage.Registry().ByType(componentType); ok {
		return id
	}

	return w.storage.RegisterEnum(componentType, typeName(componentType))
}

// IdOf returns the id of the component type C, registering it if needed.
func IdOf[C any](w *World) EntityId {
	return Register[C](w)
}

func (w *World) register(componentType reflect.Type) EntityId {
	if id, ok := w.storage.Registry().ByType(componentType); ok {
		return id
	}

	return w.storage.Register(componentType, typeName(componentType))
}

func typeName(t reflect.Type) string {
	if t.Name() != "" {
		return t.Name()
	}

	return t.String()
}

// Add adds the component to the entity unless it is already present.
func Add[C any](w *World, entityId EntityId, value C) (spoke.AddResult, error) {
	_, result, err := w.storage.AddComponent(IdOf[C](w), entityId, unsafe.Pointer(&value))
	return result, err
}

// Set adds the component to the entity or overwrites its value.
func Set[C any](w *World, entityId EntityId, value C) error {
	return w.storage.SetComponent(IdOf[C](w), entityId, unsafe.Pointer(&value))
}

// Get returns a pointer to the component value of the entity. The pointer
// is valid until the next structural change. Tags yield a nil pointer.
func Get[C any](w *World, entityId EntityId) (*C, error) {
	ptr, err := w.storage.GetComponent(IdOf[C](w), entityId)
	if err != nil {
		return nil, err
	}

	return (*C)(ptr), nil
}

func Has[C any](w *World, entityId EntityId) bool {
	return w.storage.HasComponent(IdOf[C](w), entityId)
}

func Remove[C any](w *World, entityId EntityId) error {
	_, err := w.storage.RemoveComponent(IdOf[C](w), entityId)
	return err
}

// SetPair sets the relationship (R, target) on the entity. The relation R
// owns the value.
func SetPair[R any](w *World, entityId, target EntityId, value R) error {
	return w.storage.SetRelationship(entityId, IdOf[R](w), target, unsafe.Pointer(&value))
}

// SetPairTarget sets the relationship (relation, T) on the entity, with the
// target T owning the value. If relation is itself a data component, the
// relationship takes the layout of the relation and the call fails.
func SetPairTarget[T any](w *World, entityId, relation EntityId, value T) error {
	if w.storage.Registry().HasData(relation) {
		return eris.Wrapf(ErrTypeMismatch, "relation %s owns the data of the pair", relation)
	}

	return w.storage.SetRelationship(entityId, relation, IdOf[T](w), unsafe.Pointer(&value))
}

// GetPair returns the value of the relationship (R, target). A Wildcard
// target returns the value of the first (R, *) relationship.
func GetPair[R any](w *World, entityId, target EntityId) (*R, error) {
	ptr, err := w.storage.GetComponent(spoke.Relationship(IdOf[R](w), target), entityId)
	if err != nil {
		return nil, err
	}

	return (*R)(ptr), nil
}

// GetPairTarget returns the value of the relationship (relation, T).
func GetPairTarget[T any](w *World, entityId, relation EntityId) (*T, error) {
	ptr, err := w.storage.GetComponent(spoke.Relationship(relation, IdOf[T](w)), entityId)
	if err != nil {
		return nil, err
	}

	return (*T)(ptr), nil
}
