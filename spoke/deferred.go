package spoke

import (
	"context"
	"errors"
	"log/slog"
	"unsafe"

	"github.com/kamstrup/intmap"
)

type opKind uint8

const (
	opAdd opKind = iota
	opSet
	opRemove
	opRemoveEntity
)

func (k opKind) String() string {
	switch k {
	case opAdd:
		return "add"
	case opSet:
		return "set"
	case opRemove:
		return "remove"
	default:
		return "remove entity"
	}
}

// deferredOp is a structural change recorded while the storage is locked.
type deferredOp struct {
	kind      opKind
	entity    Id
	component Id

	// row of the pending value in the side column of component, or -1
	valueRow int

	// the value was moved into a table when the op was applied
	consumed bool
}

// deferredQueue records structural changes while iterators are alive.
// Values to add are copied into side columns, one per component id. The
// queue owns these values until an applied op moves them into a table.
type deferredQueue struct {
	depth int
	ops   []deferredOp

	values  *intmap.Map[Id, *Column]
	columns []*Column

	// entity indices with at least one queued op
	pending *intmap.Map[uint32, bool]

	draining bool
}

func newDeferredQueue() *deferredQueue {
	return &deferredQueue{
		values:  intmap.New[Id, *Column](16),
		pending: intmap.New[uint32, bool](16),
	}
}

func (q *deferredQueue) Locked() bool {
	return q.depth > 0
}

func (q *deferredQueue) Len() int {
	return len(q.ops)
}

func (q *deferredQueue) push(op deferredOp, registry *Registry, value unsafe.Pointer) {
	op.valueRow = -1

	if value != nil {
		if info, ok := registry.Info(op.component); ok && !info.IsTag() {
			column, ok := q.values.Get(op.component)
			if !ok {
				column = newColumn(info)
				q.values.Put(op.component, column)
				q.columns = append(q.columns, column)
			}

			op.valueRow = int(column.PushFrom(value))
		}
	}

	q.ops = append(q.ops, op)
	q.pending.Put(op.entity.Index(), true)
}

func (q *deferredQueue) hasPending(entity Id) bool {
	_, ok := q.pending.Get(entity.Index())
	return ok
}

func (q *deferredQueue) valueOf(op deferredOp) unsafe.Pointer {
	if op.valueRow < 0 {
		return nil
	}

	column, _ := q.values.Get(op.component)
	return column.PtrAt(Row(op.valueRow))
}

// reset drops the values no applied op took ownership of and clears the queue.
func (q *deferredQueue) reset() {
	for _, op := range q.ops {
		if op.valueRow >= 0 && !op.consumed {
			column, _ := q.values.Get(op.component)
			column.DropAt(Row(op.valueRow))
		}
	}

	q.ops = q.ops[:0]
	q.pending.Clear()

	for _, column := range q.columns {
		column.Forget(0)
	}
}

// Lock increments the iteration lock. While locked, structural changes
// are queued and applied once the last lock is released.
func (s *Storage) Lock() {
	s.deferred.depth++
}

// Unlock decrements the iteration lock and applies all queued operations
// once it reaches zero.
func (s *Storage) Unlock() {
	q := s.deferred

	if q.depth == 0 {
		panic("unlock of an unlocked storage")
	}

	q.depth--

	if q.depth == 0 {
		s.Flush()
	}
}

func (s *Storage) Locked() bool {
	return s.deferred.Locked()
}

// Flush applies all queued operations in the order they were recorded.
// Operations queued while flushing are applied in the same pass.
func (s *Storage) Flush() {
	q := s.deferred

	if q.depth > 0 || q.draining || len(q.ops) == 0 {
		return
	}

	q.draining = true
	defer func() { q.draining = false }()

	for idx := 0; idx < len(q.ops); idx++ {
		op := q.ops[idx]

		consumed, err := s.apply(op, q.valueOf(op))
		q.ops[idx].consumed = consumed

		if err != nil {
			level := slog.LevelWarn
			if isStale(err) {
				level = slog.LevelDebug
			}

			s.logger.Log(context.Background(), level,
				"Dropped deferred operation",
				slog.String("op", op.kind.String()),
				slog.Any("entity", op.entity),
				slog.Any("component", op.component),
				slog.String("reason", err.Error()),
			)
		}
	}

	q.reset()
}

// apply executes a queued op. It reports whether value was moved into a
// table, either by adding the component or by overwriting it.
func (s *Storage) apply(op deferredOp, value unsafe.Pointer) (consumed bool, err error) {
	switch op.kind {
	case opAdd, opSet:
		_, result, err := s.add(op.kind, op.component, op.entity, value)
		if err != nil {
			return false, err
		}

		return value != nil && (result == AddNew || op.kind == opSet), nil

	case opRemove:
		_, err := s.removeComponent(op.component, op.entity)
		return false, err

	default:
		return false, s.RemoveEntity(op.entity)
	}
}

// isStale reports whether an operation failed only because an entity it
// referenced died before it could be applied.
func isStale(err error) bool {
	return errors.Is(err, ErrEntityNotAlive) ||
		errors.Is(err, ErrMissingRelation) ||
		errors.Is(err, ErrMissingTarget) ||
		errors.Is(err, ErrNotComponent) ||
		errors.Is(err, ErrNoComponent)
}
