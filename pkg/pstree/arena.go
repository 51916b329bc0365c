package pstree

import (
	"errors"
	"fmt"
	"math"
)

// ErrArenaFull is returned when an update would allocate more nodes than a
// uint32 handle can address.
var ErrArenaFull = errors.New("node arena is full")

// nilHandle is the reserved handle of the zero node. Leaves point their
// children at it.
const nilHandle uint32 = 0

// maxHandle is the largest handle the arena hands out. [math.MaxUint32] is reserved.
const maxHandle = math.MaxUint32 - 1

// node is a single immutable tree node. A node is a leaf when lo == hi.
type node[V any] struct {
	value  V
	lo, hi int
	left   uint32
	right  uint32
	set    bool
}

// arena stores the nodes of every version. Nodes are appended and never
// modified or freed, so a handle stays valid for the lifetime of the arena.
type arena[V any] struct {
	storage []node[V]
}

// newArena creates an arena with room for capacity nodes besides the
// reserved zero node.
func newArena[V any](capacity int) *arena[V] {
	storage := make([]node[V], 1, capacity+1)

	return &arena[V]{storage: storage}
}

// used returns the number of allocated nodes, excluding the zero node.
func (a *arena[V]) used() int {
	return len(a.storage) - 1
}

// reserve checks that count more nodes can be allocated.
func (a *arena[V]) reserve(count int) error {
	if len(a.storage)-1+count > maxHandle {
		return fmt.Errorf("%w: %d nodes allocated, %d requested", ErrArenaFull, a.used(), count)
	}

	return nil
}

// alloc appends nd and returns its handle. Callers reserve room first.
func (a *arena[V]) alloc(nd node[V]) uint32 {
	handle := uint32(len(a.storage)) //nolint:gosec // bounded by reserve.
	a.storage = append(a.storage, nd)

	return handle
}

// snapshot returns the current storage. Handles below its length never change,
// so the slice can be read without holding the tree lock.
func (a *arena[V]) snapshot() []node[V] {
	return a.storage
}
