package spoke

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/kamstrup/intmap"
	"github.com/oliverbestmann/knot/internal/assert"
)

type TableId uint32

// Table holds one column per data bearing component. A table can be shared
// by multiple archetypes whose component sets only differ in tags, so its
// rows are independent of the rows of any single archetype.
type Table struct {
	Id   TableId
	Hash uint64

	ids     []Id
	columns []*Column
	index   *intmap.Map[Id, int]

	// entities maps a table row to the index of the entity stored in it
	entities []uint32
}

func newTable(id TableId, hash uint64, sortedIds []Id, registry *Registry) *Table {
	table := &Table{
		Id:    id,
		Hash:  hash,
		ids:   sortedIds,
		index: intmap.New[Id, int](len(sortedIds)),
	}

	for idx, componentId := range sortedIds {
		info, ok := registry.Info(componentId)
		info = assert.Found(info, ok, "layout of %s", componentId)

		table.columns = append(table.columns, newColumn(info))
		table.index.Put(componentId, idx)
	}

	return table
}

func (t *Table) String() string {
	var value strings.Builder

	value.WriteString("Table(")
	for idx, column := range t.columns {
		if idx > 0 {
			value.WriteString(", ")
		}

		value.WriteString(column.Info.String())
	}

	value.WriteString(")")

	return value.String()
}

// Ids returns the sorted data bearing ids. The slice must not be modified.
func (t *Table) Ids() []Id {
	return t.ids
}

func (t *Table) Len() int {
	return len(t.entities)
}

// Column returns the column for the id, or nil if the table has none.
func (t *Table) Column(id Id) *Column {
	idx, ok := t.index.Get(id.Strip())
	if !ok {
		return nil
	}

	return t.columns[idx]
}

func (t *Table) Entity(row Row) uint32 {
	return t.entities[row]
}

// push appends a row of zero values for the entity.
func (t *Table) push(entity uint32) Row {
	for _, column := range t.columns {
		column.PushZero()
	}

	row := Row(len(t.entities))
	t.entities = append(t.entities, entity)

	return row
}

// swapRemove removes the row. If another entity was moved into the vacated
// row, its index is returned so that the caller can patch its record.
func (t *Table) swapRemove(row Row, drop bool) (moved uint32, ok bool) {
	for _, column := range t.columns {
		if drop {
			column.SwapRemoveDrop(row)
		} else {
			column.SwapRemoveForget(row)
		}
	}

	return swapRemoveEntity(&t.entities, row)
}

// moveRow relocates row into dst. Values of components present in both
// tables are moved, values only present in t are dropped. The column of
// added is initialized from value, all other new columns with zero values.
func (t *Table) moveRow(row Row, dst *Table, added Id, value unsafe.Pointer) (dstRow Row, moved uint32, ok bool) {
	entity := t.entities[row]

	for _, column := range dst.columns {
		componentId := column.Info.Id

		switch source := t.Column(componentId); {
		case source != nil:
			column.PushFrom(source.PtrAt(row))

		case componentId == added.Strip():
			column.PushFrom(value)

		default:
			column.PushZero()
		}
	}

	dstRow = Row(len(dst.entities))
	dst.entities = append(dst.entities, entity)

	for _, column := range t.columns {
		if dst.Column(column.Info.Id) != nil {
			column.SwapRemoveForget(row)
		} else {
			column.SwapRemoveDrop(row)
		}
	}

	moved, ok = swapRemoveEntity(&t.entities, row)
	return dstRow, moved, ok
}

func (t *Table) assertInvariants() {
	for _, column := range t.columns {
		if column.Len() != len(t.entities) {
			panic(fmt.Sprintf("%s: expected %d values in column %s, got %d", t, len(t.entities), column.Info, column.Len()))
		}
	}
}

func swapRemoveEntity(entities *[]uint32, row Row) (moved uint32, ok bool) {
	values := *entities
	last := Row(len(values) - 1)

	if row != last {
		values[row] = values[last]
		moved, ok = values[row], true
	}

	*entities = values[:last]
	return moved, ok
}
