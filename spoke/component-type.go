package spoke

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"unsafe"

	"github.com/kamstrup/intmap"
	"github.com/rotisserie/eris"
)

// Dropper can be implemented by a component (on its pointer receiver) to
// release resources when a value is destroyed by the storage. A value that
// is only moved to another table is never dropped.
type Dropper interface {
	Drop()
}

// ComponentInfo is the capability table of a component. It is resolved once
// at registration time. Tags have a nil Type and a zero Size, all function
// values are nil for them.
type ComponentInfo struct {
	Id   Id
	Name string
	Type reflect.Type

	Size  uintptr
	Align uintptr

	// HasPointers indicates that a value of the type contains pointers, e.g.
	// by having a field of type *T, a string, a slice or a map value.
	HasPointers bool

	// Enum marks an integer component whose value can be used in
	// state predicates of a query.
	Enum bool

	Copy        func(to, from unsafe.Pointer)
	Drop        func(ptr unsafe.Pointer)
	Clone       func(ptr unsafe.Pointer) any
	Serialize   func(ptr unsafe.Pointer) ([]byte, error)
	Deserialize func(data []byte, ptr unsafe.Pointer) error
	ReflectAs   func(ptr unsafe.Pointer) reflect.Value
	Debug       func(ptr unsafe.Pointer) string
	ToScript    func(ptr unsafe.Pointer) (any, error)
	FromScript  func(value any, ptr unsafe.Pointer) error
	EnumValue   func(ptr unsafe.Pointer) uint64
}

// IsTag reports whether values of the component occupy no memory.
func (c *ComponentInfo) IsTag() bool {
	return c.Size == 0
}

func (c *ComponentInfo) String() string {
	return c.Name
}

// Registry holds the ComponentInfo of every registered component keyed by
// its stripped id, and of every relationship that carries data.
type Registry struct {
	infos  *intmap.Map[Id, *ComponentInfo]
	byType map[reflect.Type]Id
	byName map[string]Id

	// inherited lists the relationship keys that copied their layout
	// from an operand, keyed by the index of either operand.
	inherited map[uint32][]Id
}

func newRegistry() *Registry {
	return &Registry{
		infos:     intmap.New[Id, *ComponentInfo](64),
		byType:    map[reflect.Type]Id{},
		byName:    map[string]Id{},
		inherited: map[uint32][]Id{},
	}
}

// Info returns the capability table of the component or relationship.
func (r *Registry) Info(id Id) (*ComponentInfo, bool) {
	return r.infos.Get(id.Strip())
}

// HasData reports whether the id has a registered, non zero sized layout.
func (r *Registry) HasData(id Id) bool {
	info, ok := r.infos.Get(id.Strip())
	return ok && info.Size > 0
}

func (r *Registry) ByType(t reflect.Type) (Id, bool) {
	id, ok := r.byType[t]
	return id, ok
}

func (r *Registry) ByName(name string) (Id, bool) {
	id, ok := r.byName[name]
	return id, ok
}

func (r *Registry) Len() int {
	return len(r.byType)
}

func (r *Registry) insert(info *ComponentInfo) {
	r.infos.Put(info.Id.Strip(), info)

	if info.Type != nil {
		r.byType[info.Type] = info.Id.Strip()
	}

	if info.Name != "" {
		r.byName[info.Name] = info.Id.Strip()
	}
}

// inherit copies the layout and functions of the data carrying operand onto
// the relationship id, so that field access works uniformly.
func (r *Registry) inherit(relationship Id, operand *ComponentInfo) {
	key := relationship.Strip()
	if _, exists := r.infos.Get(key); exists {
		return
	}

	info := *operand
	info.Id = key
	info.Name = ""

	r.infos.Put(key, &info)

	r.inherited[key.Relation()] = append(r.inherited[key.Relation()], key)
	r.inherited[key.Target()] = append(r.inherited[key.Target()], key)
}

// forget removes everything registered for a deleted entity, including the
// layouts relationships inherited from it.
func (r *Registry) forget(entity Id) {
	key := entity.Strip()

	if info, ok := r.infos.Get(key); ok {
		r.infos.Del(key)

		if info.Type != nil {
			delete(r.byType, info.Type)
		}

		if info.Name != "" {
			delete(r.byName, info.Name)
		}
	}

	for _, relationship := range r.inherited[entity.Index()] {
		r.infos.Del(relationship)
	}

	delete(r.inherited, entity.Index())
}

// Register allocates a component entity for type t. Registering the same
// type twice returns the existing id. Zero sized types become tags.
func (s *Storage) Register(t reflect.Type, name string) Id {
	if id, ok := s.registry.ByType(t); ok {
		return id
	}

	if name == "" {
		name = t.String()
	}

	if existing, ok := s.registry.ByName(name); ok {
		panic(fmt.Sprintf("component name %q already used by %s", name, existing))
	}

	id := s.newComponentEntity()

	info := makeComponentInfo(id, t, name)
	s.registry.insert(info)

	s.logger.Debug(
		"New component type registered",
		slog.String("name", info.Name),
		slog.Any("id", id),
		slog.Int("size", int(info.Size)),
	)

	return id
}

// RegisterEnum registers an integer typed component whose value can be
// matched by state predicates.
func (s *Storage) RegisterEnum(t reflect.Type, name string) Id {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
	default:
		panic(fmt.Sprintf("enum component %s must have an integer kind", t))
	}

	id := s.Register(t, name)

	info, _ := s.registry.Info(id)
	info.Enum = true
	info.EnumValue = enumValueOf(t)

	return id
}

// RegisterTag registers a named tag that has no Go type.
func (s *Storage) RegisterTag(name string) Id {
	if existing, ok := s.registry.ByName(name); ok {
		return existing
	}

	id := s.newComponentEntity()

	s.registry.insert(&ComponentInfo{Id: id.Strip(), Name: name})

	s.logger.Debug("New tag registered", slog.String("name", name), slog.Any("id", id))

	return id
}

func (s *Storage) newComponentEntity() Id {
	id := s.NewEntity()

	// components are entities themselves, tagged as such
	if _, _, err := s.addComponent(ComponentTag, id, nil); err != nil {
		panic(err)
	}

	return id
}

func (s *Storage) Registry() *Registry {
	return s.registry
}

func makeComponentInfo(id Id, t reflect.Type, name string) *ComponentInfo {
	info := &ComponentInfo{
		Id:          id.Strip(),
		Name:        name,
		Type:        t,
		Size:        t.Size(),
		Align:       uintptr(t.Align()),
		HasPointers: typeHasPointers(t),
	}

	if info.Size == 0 {
		// tags carry no data and therefore need no functions
		return info
	}

	info.Copy = func(to, from unsafe.Pointer) {
		reflect.NewAt(t, to).Elem().Set(reflect.NewAt(t, from).Elem())
	}

	if !info.HasPointers {
		size := info.Size
		info.Copy = func(to, from unsafe.Pointer) {
			rawCopy(to, from, size)
		}
	}

	if reflect.PointerTo(t).Implements(reflect.TypeFor[Dropper]()) {
		info.Drop = func(ptr unsafe.Pointer) {
			reflect.NewAt(t, ptr).Interface().(Dropper).Drop()
		}
	}

	info.ReflectAs = func(ptr unsafe.Pointer) reflect.Value {
		return reflect.NewAt(t, ptr)
	}

	info.Clone = func(ptr unsafe.Pointer) any {
		clone := reflect.New(t)
		clone.Elem().Set(reflect.NewAt(t, ptr).Elem())
		return clone.Interface()
	}

	info.Serialize = func(ptr unsafe.Pointer) ([]byte, error) {
		data, err := json.Marshal(reflect.NewAt(t, ptr).Interface())
		if err != nil {
			return nil, eris.Wrapf(err, "serialize %s", name)
		}

		return data, nil
	}

	info.Deserialize = func(data []byte, ptr unsafe.Pointer) error {
		if err := json.Unmarshal(data, reflect.NewAt(t, ptr).Interface()); err != nil {
			return eris.Wrapf(err, "deserialize %s", name)
		}

		return nil
	}

	info.Debug = func(ptr unsafe.Pointer) string {
		return fmt.Sprintf("%s%+v", name, reflect.NewAt(t, ptr).Elem().Interface())
	}

	// values cross the scripting boundary in their generic json shape:
	// maps, slices, float64, strings and bools.
	info.ToScript = func(ptr unsafe.Pointer) (any, error) {
		data, err := info.Serialize(ptr)
		if err != nil {
			return nil, err
		}

		var value any
		if err := json.Unmarshal(data, &value); err != nil {
			return nil, eris.Wrapf(err, "convert %s for script", name)
		}

		return value, nil
	}

	info.FromScript = func(value any, ptr unsafe.Pointer) error {
		data, err := json.Marshal(value)
		if err != nil {
			return eris.Wrapf(err, "convert script value for %s", name)
		}

		return info.Deserialize(data, ptr)
	}

	return info
}

func enumValueOf(t reflect.Type) func(ptr unsafe.Pointer) uint64 {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return func(ptr unsafe.Pointer) uint64 {
			return uint64(reflect.NewAt(t, ptr).Elem().Int())
		}

	default:
		return func(ptr unsafe.Pointer) uint64 {
			return reflect.NewAt(t, ptr).Elem().Uint()
		}
	}
}

// typeHasPointers reports whether a value of t holds memory the garbage
// collector needs to know about.
func typeHasPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return false

	case reflect.Array:
		return t.Len() > 0 && typeHasPointers(t.Elem())

	case reflect.Struct:
		for idx := range t.NumField() {
			if typeHasPointers(t.Field(idx).Type) {
				return true
			}
		}

		return false

	default:
		return true
	}
}
