package spoke

import "github.com/rotisserie/eris"

var (
	ErrEntityNotAlive = eris.New("entity is not alive")
	ErrNoComponent    = eris.New("entity does not have the component")

	ErrNotComponent       = eris.New("id is not a component")
	ErrNotRelationship    = eris.New("id is not a relationship")
	ErrMissingRelation    = eris.New("relation of relationship is not alive")
	ErrMissingTarget      = eris.New("target of relationship is not alive")
	ErrMissingTargetInTag = eris.New("relationship does not name a concrete target")

	ErrNameTaken    = eris.New("name already taken within parent")
	ErrTypeMismatch = eris.New("value type does not match component type")
)

func notAlive(entity Id) error {
	return eris.Wrapf(ErrEntityNotAlive, "entity %s", entity)
}

func noComponent(component, entity Id) error {
	return eris.Wrapf(ErrNoComponent, "component %s on entity %s", component, entity)
}
