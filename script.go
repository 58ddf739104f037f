package knot

import (
	"encoding/json"
	"math"
	"reflect"

	"github.com/oliverbestmann/knot/spoke"
	"github.com/rotisserie/eris"
)

// MarshalHandle converts an entity handle into its script representation,
// a one element array holding the raw identifier.
func MarshalHandle(entityId EntityId) []uint64 {
	return []uint64{uint64(entityId)}
}

// UnmarshalHandle converts a script value back into an entity handle. It
// accepts the result of MarshalHandle as well as its generic json shape.
func UnmarshalHandle(value any) (EntityId, error) {
	switch value := value.(type) {
	case []uint64:
		if len(value) == 1 {
			return EntityId(value[0]), nil
		}

	case [1]uint64:
		return EntityId(value[0]), nil

	case []any:
		if len(value) == 1 {
			return handleOf(value[0])
		}

	case json.RawMessage:
		var raw []json.Number
		if err := json.Unmarshal(value, &raw); err == nil && len(raw) == 1 {
			return handleOf(raw[0])
		}
	}

	return NoEntityId, eris.Wrapf(ErrTypeMismatch, "handle from %T", value)
}

func handleOf(value any) (EntityId, error) {
	switch value := value.(type) {
	case uint64:
		return EntityId(value), nil

	case int64:
		return EntityId(value), nil

	case json.Number:
		raw, err := value.Int64()
		if err != nil {
			return NoEntityId, eris.Wrap(ErrTypeMismatch, err.Error())
		}

		return EntityId(raw), nil

	case float64:
		// only handles that survived the conversion to float are accepted
		if value < 0 || value >= math.MaxUint64 || value != math.Trunc(value) {
			return NoEntityId, eris.Wrapf(ErrTypeMismatch, "handle %v", value)
		}

		return EntityId(uint64(value)), nil
	}

	return NoEntityId, eris.Wrapf(ErrTypeMismatch, "handle element %T", value)
}

// AddByName sets the component registered under name on the entity. The
// value may have the component's Go type or its generic json shape, as
// produced by GetByName. Tags accept a nil value.
func AddByName(w *World, entityId EntityId, name string, value any) error {
	id, ok := w.storage.Registry().ByName(name)
	if !ok {
		return eris.Wrapf(ErrUnknownType, "component %q", name)
	}

	info, _ := w.storage.Registry().Info(id)
	if info.IsTag() {
		_, _, err := w.storage.AddComponent(id, entityId, nil)
		return err
	}

	ptr := reflect.New(info.Type)

	if reflect.TypeOf(value) == info.Type {
		ptr.Elem().Set(reflect.ValueOf(value))
	} else if err := info.FromScript(value, ptr.UnsafePointer()); err != nil {
		return eris.Wrapf(ErrTypeMismatch, "value for %q: %s", name, err)
	}

	return w.storage.SetComponent(id, entityId, ptr.UnsafePointer())
}

// GetByName returns the value of the component registered under name in
// its generic json shape. Tags yield nil.
func GetByName(w *World, entityId EntityId, name string) (any, error) {
	id, ok := w.storage.Registry().ByName(name)
	if !ok {
		return nil, eris.Wrapf(ErrUnknownType, "component %q", name)
	}

	ptr, err := w.storage.GetComponent(id, entityId)
	if err != nil {
		return nil, err
	}

	if ptr == nil {
		return nil, nil
	}

	info, _ := w.storage.Registry().Info(id)
	return info.ToScript(ptr)
}

// RemoveByName removes the component registered under name.
func RemoveByName(w *World, entityId EntityId, name string) error {
	id, ok := w.storage.Registry().ByName(name)
	if !ok {
		return eris.Wrapf(ErrUnknownType, "component %q", name)
	}

	_, err := w.storage.RemoveComponent(id, entityId)
	return err
}

// KindByName classifies the component registered under name.
func KindByName(w *World, name string) (spoke.Kind, error) {
	id, ok := w.storage.Registry().ByName(name)
	if !ok {
		return 0, eris.Wrapf(ErrUnknownType, "component %q", name)
	}

	return w.storage.Classify(id)
}
