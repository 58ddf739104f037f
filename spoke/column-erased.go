package spoke

import (
	"fmt"
	"math"
	"reflect"
	"unsafe"

	"github.com/oliverbestmann/knot/internal/assert"
)

// Column stores the values of one component in a contiguous, type erased
// buffer. The buffer is backed by a reflect slice of the component type, so
// the garbage collector knows about pointers within the values.
type Column struct {
	Info *ComponentInfo

	// capacity and length of the slice
	len, cap int

	// memory points to the data of an unsafe slice of component instances
	memory unsafe.Pointer

	itemSize uintptr

	// slice of values
	slice reflect.Value

	trivialCopy bool
}

func newColumn(info *ComponentInfo) *Column {
	assert.That(info.Type != nil && info.Size > 0, "column for tag %s", info)

	sliceType := reflect.SliceOf(info.Type)
	slice := reflect.New(sliceType).Elem()

	return &Column{
		Info:        info,
		itemSize:    info.Size,
		slice:       slice,
		len:         slice.Len(),
		cap:         slice.Cap(),
		memory:      slice.UnsafePointer(),
		trivialCopy: !info.HasPointers,
	}
}

type buf *[math.MaxInt32]byte

func rawCopy(to, from unsafe.Pointer, size uintptr) {
	dst := (*buf(to))[:size]
	src := (*buf(from))[:size]
	copy(dst, src)
}

func (c *Column) ptrTo(row Row) unsafe.Pointer {
	if int(row) >= c.len {
		panic(fmt.Sprintf("row %d out of bounds in column %s of length %d", row, c.Info, c.len))
	}

	return unsafe.Add(c.memory, uintptr(row)*c.itemSize)
}

func (c *Column) copyValue(to, from unsafe.Pointer) {
	if c.trivialCopy {
		rawCopy(to, from, c.itemSize)
	} else {
		c.Info.Copy(to, from)
	}
}

func (c *Column) zeroValue(ptr unsafe.Pointer) {
	if c.trivialCopy {
		clear((*buf(ptr))[:c.itemSize])
	} else {
		// go through reflect to get the write barriers right
		reflect.NewAt(c.Info.Type, ptr).Elem().SetZero()
	}
}

func (c *Column) ensureSpace() {
	if c.cap == c.len {
		// need to allocate memory
		c.slice.SetLen(c.len)
		c.slice.Grow(max(16, c.len*2/3))
		c.memory = c.slice.UnsafePointer()
		c.cap = c.slice.Cap()
	}
}

// PushFrom appends a copy of the value at src. A nil src appends the zero value.
func (c *Column) PushFrom(src unsafe.Pointer) Row {
	c.ensureSpace()

	row := Row(c.len)
	c.len += 1

	target := c.ptrTo(row)

	// the slot might still hold memory from before a truncation
	c.zeroValue(target)

	if src != nil {
		c.copyValue(target, src)
	}

	return row
}

func (c *Column) PushZero() Row {
	return c.PushFrom(nil)
}

// Push appends a typed value. T must be the type of the column.
func Push[T any](c *Column, value T) Row {
	assert.Equal(c.Info.Type, reflect.TypeFor[T](), "column type")
	return c.PushFrom(unsafe.Pointer(&value))
}

// ReplaceAt overwrites the value at row in place. The previous value is dropped.
func (c *Column) ReplaceAt(row Row, src unsafe.Pointer) {
	target := c.ptrTo(row)

	if drop := c.Info.Drop; drop != nil {
		drop(target)
	}

	c.copyValue(target, src)
}

// PtrAt returns a pointer to the value in row. The pointer is valid until
// the next structural change of the column.
func (c *Column) PtrAt(row Row) unsafe.Pointer {
	return c.ptrTo(row)
}

// SwapRemoveForget removes the value at row without dropping it, as it was
// moved somewhere else. The last value of the column takes its place.
func (c *Column) SwapRemoveForget(row Row) {
	last := Row(c.len - 1)

	if row != last {
		c.copyValue(c.ptrTo(row), c.ptrTo(last))
	}

	c.zeroValue(c.ptrTo(last))
	c.len -= 1
}

// SwapRemoveDrop destroys the value at row. The last value of the column
// takes its place.
func (c *Column) SwapRemoveDrop(row Row) {
	if drop := c.Info.Drop; drop != nil {
		drop(c.ptrTo(row))
	}

	c.SwapRemoveForget(row)
}

// Truncate drops all values starting at row n.
func (c *Column) Truncate(n Row) {
	if drop := c.Info.Drop; drop != nil {
		for row := n; int(row) < c.len; row++ {
			drop(c.ptrTo(row))
		}
	}

	c.Forget(n)
}

// Forget discards all values starting at row n without dropping them,
// as they are now owned by someone else.
func (c *Column) Forget(n Row) {
	for row := n; int(row) < c.len; row++ {
		c.zeroValue(c.ptrTo(row))
	}

	c.len = min(c.len, int(n))
}

// DropAt runs the drop hook on the value in row. The value stays in place.
func (c *Column) DropAt(row Row) {
	if drop := c.Info.Drop; drop != nil {
		drop(c.ptrTo(row))
	}
}

func (c *Column) Len() int {
	return c.len
}

// Access creates a ColumnAccess over the current buffer.
// This method can also be called on a nil instance. The resulting ColumnAccess
// instance will return only nil pointers.
func (c *Column) Access() ColumnAccess {
	if c == nil {
		return ColumnAccess{}
	}

	return ColumnAccess{
		base:   c.memory,
		stride: c.itemSize,
	}
}
