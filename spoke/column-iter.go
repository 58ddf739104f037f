package spoke

import (
	"unsafe"
)

// ColumnAccess is a view of a column's buffer. It stays valid as long as
// the column does not grow, which is guaranteed while the storage is locked.
type ColumnAccess struct {
	base   unsafe.Pointer
	stride uintptr
}

// At returns a pointer to the value in row, or nil for an absent column.
func (c *ColumnAccess) At(row Row) unsafe.Pointer {
	if c.base == nil {
		return nil
	}

	return unsafe.Add(c.base, c.stride*uintptr(row))
}

func (c *ColumnAccess) IsAbsent() bool {
	return c.base == nil
}
