package knot

import (
	"github.com/oliverbestmann/knot/spoke"
	"github.com/rotisserie/eris"
)

var (
	ErrUnknownType     = eris.New("unknown component or entity name")
	ErrJsonIsNotObject = eris.New("entity json is not an object")
	ErrTagsIsNotArray  = eris.New("entity json tags are not an array")
	ErrInvalidKey      = eris.New("invalid relationship key")
)

// re-exported so callers of the facade do not need to import spoke
var (
	ErrEntityNotAlive = spoke.ErrEntityNotAlive
	ErrNoComponent    = spoke.ErrNoComponent
	ErrNotComponent   = spoke.ErrNotComponent
	ErrNameTaken      = spoke.ErrNameTaken
	ErrTypeMismatch   = spoke.ErrTypeMismatch
)
