package knot

// noCopy can be embedded to provide "go vet" linting
// when a type must not be copied
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
