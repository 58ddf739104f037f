package knot

import (
	"bytes"
	"encoding/json"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/oliverbestmann/knot/spoke"
	"github.com/rotisserie/eris"
)

const (
	keyName = "Name"
	keyTags = "Tags"
)

// SerializeEntity writes the entity as a json object. Components are keyed
// by their registered name, tags are listed in "Tags" with entity tags
// prefixed by '#', and relationships are keyed as "(Rel, Target)" with a
// '$' marking the operand that owns the value. Entities are referenced by
// name if they have one at the root, or by their handle otherwise.
func SerializeEntity(w *World, entityId EntityId) ([]byte, error) {
	if !w.storage.IsAlive(entityId) {
		return nil, eris.Wrapf(ErrEntityNotAlive, "serialize %s", entityId)
	}

	object := map[string]json.RawMessage{}
	tags := []string{}

	if name, ok := w.storage.Name(entityId); ok {
		object[keyName], _ = json.Marshal(name)
	}

	registry := w.storage.Registry()

	for _, id := range w.storage.ComponentsOf(entityId) {
		kind, err := w.storage.Classify(id)
		if err != nil {
			return nil, eris.Wrapf(err, "serialize %s", entityId)
		}

		switch kind {
		case spoke.ComponentTagKind:
			info, _ := registry.Info(id)
			tags = append(tags, info.Name)

		case spoke.EntityTagKind:
			tags = append(tags, "#"+w.entityRef(id))

		case spoke.RelationshipTag, spoke.MixedRelationshipTag:
			object[w.relationshipKey(id, kind)] = json.RawMessage("null")

		case spoke.Regular, spoke.EnumTag, spoke.DataRelationshipFirst, spoke.DataRelationshipSecond:
			data, err := w.serializeValue(id, entityId)
			if err != nil {
				return nil, err
			}

			key := w.relationshipKey(id, kind)
			if !kind.IsRelationship() {
				info, _ := registry.Info(id)
				key = info.Name
			}

			object[key] = data
		}
	}

	if len(tags) > 0 {
		slices.Sort(tags)
		object[keyTags], _ = json.Marshal(tags)
	}

	return json.Marshal(object)
}

func (w *World) serializeValue(id, entityId EntityId) (json.RawMessage, error) {
	info, ok := w.storage.Registry().Info(id)
	if !ok || info.Serialize == nil {
		return nil, eris.Wrapf(ErrUnknownType, "layout of %s", id)
	}

	ptr, err := w.storage.GetComponent(id, entityId)
	if err != nil {
		return nil, err
	}

	return info.Serialize(ptr)
}

func (w *World) relationshipKey(id EntityId, kind spoke.Kind) string {
	relation, target, _ := w.storage.RelationshipOf(id)

	relationRef := w.operandRef(relation)
	targetRef := w.operandRef(target)

	switch kind {
	case spoke.DataRelationshipFirst:
		relationRef = "$" + relationRef
	case spoke.DataRelationshipSecond:
		targetRef = "$" + targetRef
	}

	return "(" + relationRef + ", " + targetRef + ")"
}

// operandRef names a relationship operand, preferring component names.
func (w *World) operandRef(id EntityId) string {
	if info, ok := w.storage.Registry().Info(id); ok && info.Name != "" {
		return info.Name
	}

	return w.entityRef(id)
}

// entityRef returns the root name of the entity or its handle.
func (w *World) entityRef(id EntityId) string {
	name, ok := w.storage.Name(id)
	if !ok || name == keyName || name == keyTags {
		return id.String()
	}

	if _, hasParent := w.ParentOf(id); hasParent {
		return id.String()
	}

	// a component of the same name would shadow the entity
	if _, shadowed := w.storage.Registry().ByName(name); shadowed {
		return id.String()
	}

	return name
}

// DebugName returns the name of the entity, or its handle if it has none.
func (w *World) DebugName(id EntityId) string {
	if name, ok := w.storage.Name(id); ok {
		return name
	}

	if info, ok := w.storage.Registry().Info(id); ok && info.Name != "" {
		return info.Name
	}

	return id.String()
}

// DeserializeEntity creates a new entity from json written by
// SerializeEntity. On error, no entity is created.
func DeserializeEntity(w *World, data []byte) (EntityId, error) {
	entityId := w.storage.NewEntity()

	if err := DeserializeInto(w, entityId, data); err != nil {
		_ = w.storage.RemoveEntity(entityId)
		return NoEntityId, err
	}

	return entityId, nil
}

// DeserializeInto adds the components described by data to an existing entity.
func DeserializeInto(w *World, entityId EntityId, data []byte) error {
	if !w.storage.IsAlive(entityId) {
		return eris.Wrapf(ErrEntityNotAlive, "deserialize into %s", entityId)
	}

	if trimmed := bytes.TrimSpace(data); len(trimmed) == 0 || trimmed[0] != '{' {
		return ErrJsonIsNotObject
	}

	var object map[string]json.RawMessage
	if err := json.Unmarshal(data, &object); err != nil {
		return eris.Wrap(ErrJsonIsNotObject, err.Error())
	}

	keys := make([]string, 0, len(object))
	for key := range object {
		keys = append(keys, key)
	}

	// relationships first, so that the name is scoped by the parent
	slices.SortFunc(keys, func(a, b string) int {
		return keyOrder(a) - keyOrder(b)
	})

	for _, key := range keys {
		value := object[key]

		var err error
		switch {
		case key == keyName:
			err = w.deserializeName(entityId, value)

		case key == keyTags:
			err = w.deserializeTags(entityId, value)

		case strings.HasPrefix(key, "("):
			err = w.deserializeRelationship(entityId, key, value)

		case strings.HasPrefix(key, "#"):
			err = w.deserializeEntityTag(entityId, key[1:])

		default:
			err = w.deserializeComponent(entityId, key, value)
		}

		if err != nil {
			return eris.Wrapf(err, "key %q", key)
		}
	}

	return nil
}

func keyOrder(key string) int {
	switch {
	case strings.HasPrefix(key, "("):
		return 0
	case key == keyName:
		return 3
	case key == keyTags:
		return 2
	default:
		return 1
	}
}

func (w *World) deserializeName(entityId EntityId, value json.RawMessage) error {
	var name string
	if err := json.Unmarshal(value, &name); err != nil {
		return eris.Wrap(err, "name is not a string")
	}

	return w.storage.SetName(entityId, name)
}

func (w *World) deserializeTags(entityId EntityId, value json.RawMessage) error {
	var tags []string
	if err := json.Unmarshal(value, &tags); err != nil {
		return eris.Wrap(ErrTagsIsNotArray, err.Error())
	}

	for _, tag := range tags {
		if name, ok := strings.CutPrefix(tag, "#"); ok {
			if err := w.deserializeEntityTag(entityId, name); err != nil {
				return err
			}

			continue
		}

		id, ok := w.storage.Registry().ByName(tag)
		if !ok {
			return eris.Wrapf(ErrUnknownType, "tag %q", tag)
		}

		if _, _, err := w.storage.AddComponent(id, entityId, nil); err != nil {
			return err
		}
	}

	return nil
}

func (w *World) deserializeEntityTag(entityId EntityId, ref string) error {
	tag, err := w.resolveEntity(ref)
	if err != nil {
		return err
	}

	_, _, err = w.storage.AddComponent(tag, entityId, nil)
	return err
}

func (w *World) deserializeComponent(entityId EntityId, name string, value json.RawMessage) error {
	id, ok := w.storage.Registry().ByName(name)
	if !ok {
		return eris.Wrapf(ErrUnknownType, "component %q", name)
	}

	info, _ := w.storage.Registry().Info(id)
	if info.IsTag() {
		_, _, err := w.storage.AddComponent(id, entityId, nil)
		return err
	}

	ptr, err := decodeValue(info, value)
	if err != nil {
		return err
	}

	return w.storage.SetComponent(id, entityId, ptr.UnsafePointer())
}

func (w *World) deserializeRelationship(entityId EntityId, key string, value json.RawMessage) error {
	relationRef, targetRef, err := parseRelationshipKey(key)
	if err != nil {
		return err
	}

	relationOwns := strings.HasPrefix(relationRef, "$")
	targetOwns := strings.HasPrefix(targetRef, "$")

	relation, err := w.resolveOperand(strings.TrimPrefix(relationRef, "$"))
	if err != nil {
		return err
	}

	target, err := w.resolveOperand(strings.TrimPrefix(targetRef, "$"))
	if err != nil {
		return err
	}

	registry := w.storage.Registry()

	var owner EntityId
	switch {
	case relationOwns && targetOwns:
		return eris.Wrapf(ErrInvalidKey, "both operands of %q own the value", key)

	case relationOwns:
		owner = relation

	case targetOwns:
		if registry.HasData(relation) {
			return eris.Wrapf(ErrTypeMismatch, "relation of %q owns the value", key)
		}

		owner = target

	default:
		if registry.HasData(relation) || registry.HasData(target) {
			return eris.Wrapf(ErrTypeMismatch, "relationship %q carries data", key)
		}

		_, _, err := w.storage.AddRelationship(entityId, relation, target, nil)
		return err
	}

	info, ok := registry.Info(owner)
	if !ok || info.IsTag() {
		return eris.Wrapf(ErrTypeMismatch, "owner of %q carries no data", key)
	}

	ptr, err := decodeValue(info, value)
	if err != nil {
		return err
	}

	return w.storage.SetRelationship(entityId, relation, target, ptr.UnsafePointer())
}

func decodeValue(info *spoke.ComponentInfo, value json.RawMessage) (reflect.Value, error) {
	ptr := reflect.New(info.Type)

	if err := info.Deserialize(value, ptr.UnsafePointer()); err != nil {
		return reflect.Value{}, err
	}

	return ptr, nil
}

func parseRelationshipKey(key string) (relation, target string, err error) {
	inner, ok := strings.CutPrefix(key, "(")
	if ok {
		inner, ok = strings.CutSuffix(inner, ")")
	}

	if ok {
		relation, target, ok = strings.Cut(inner, ",")
	}

	relation = strings.TrimSpace(relation)
	target = strings.TrimSpace(target)

	if !ok || relation == "" || target == "" {
		return "", "", eris.Wrapf(ErrInvalidKey, "key %q", key)
	}

	return relation, target, nil
}

// resolveOperand resolves a component name, an entity name or a handle.
func (w *World) resolveOperand(ref string) (EntityId, error) {
	if id, ok := w.storage.Registry().ByName(ref); ok {
		return id, nil
	}

	return w.resolveEntity(ref)
}

// resolveEntity resolves a root entity name or a handle like "12v3".
func (w *World) resolveEntity(ref string) (EntityId, error) {
	if id, ok := w.storage.Lookup(spoke.EntityTag, ref); ok {
		return id, nil
	}

	if id, ok := parseHandle(ref); ok {
		if !w.storage.IsAlive(id) {
			return NoEntityId, eris.Wrapf(ErrEntityNotAlive, "entity %q", ref)
		}

		return id, nil
	}

	return NoEntityId, eris.Wrapf(ErrUnknownType, "entity %q", ref)
}

func parseHandle(ref string) (EntityId, bool) {
	indexText, generationText, ok := strings.Cut(ref, "v")
	if !ok {
		return NoEntityId, false
	}

	index, err := strconv.ParseUint(indexText, 10, 32)
	if err != nil {
		return NoEntityId, false
	}

	generation, err := strconv.ParseUint(generationText, 10, 32)
	if err != nil {
		return NoEntityId, false
	}

	return spoke.Pack(uint32(index), uint32(generation), 0), true
}
