// Package assert contains checks for internal invariants. A failed check
// means that one of the storage indices is corrupted, which can not be
// recovered from. All functions panic instead of returning an error.
package assert

import (
	"fmt"
	"reflect"
)

func That(cond bool, format string, args ...any) {
	if !cond {
		panic("invariant violated: " + fmt.Sprintf(format, args...))
	}
}

func Equal[T comparable](expected, actual T, what string) {
	if expected != actual {
		panic(fmt.Sprintf("invariant violated: %s: expected %v, got %v", what, expected, actual))
	}
}

// Found unwraps the result of a lookup that must succeed.
func Found[V any](value V, ok bool, format string, args ...any) V {
	if !ok {
		panic("invariant violated: not found: " + fmt.Sprintf(format, args...))
	}

	return value
}

func IsPointerType(t reflect.Type) {
	if t.Kind() != reflect.Pointer {
		panic(fmt.Sprintf("expected pointer type, got %s", t))
	}
}
