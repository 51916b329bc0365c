// Package pstree provides a fully persistent segment tree over a fixed index
// range [0, size-1].
//
// Every Update produces a new version and leaves the old one untouched. The new
// version allocates only the nodes on the root-to-leaf path of the updated
// index and shares every other node with its parent version, so an update
// costs O(log size) time and memory. Internal nodes carry no aggregate: only
// leaves hold observable values, and range queries enumerate them.
//
// Nodes live in an append-only arena addressed by uint32 handles; a version is
// a root handle. Readers of any version never block each other, and writers
// are serialized.
package pstree

import (
	"errors"
	"fmt"
	"math/bits"
	"sync"
)

// Sentinel errors.
var (
	// ErrInvalidSize indicates a tree was built with a non-positive size.
	ErrInvalidSize = errors.New("tree size must be positive")
	// ErrInvalidVersion indicates a version id outside [0, Versions()).
	ErrInvalidVersion = errors.New("invalid version")
	// ErrIndexOutOfRange indicates an index outside [0, Size()).
	ErrIndexOutOfRange = errors.New("index out of range")
)

// rootParent is the parent recorded for version 0.
const rootParent = -1

// maxLeaves is the largest size whose 2*size-1 nodes fit in the arena.
const maxLeaves = (maxHandle + 1) / 2

// Entry is the observable content of one leaf. Set is false for a leaf that no
// update on the version's ancestry line has targeted.
type Entry[V any] struct {
	Value V
	Set   bool
}

// Unset reports whether the leaf was never assigned.
func (e Entry[V]) Unset() bool {
	return !e.Set
}

// Tree is a persistent segment tree. The zero value is not usable; call Build.
type Tree[V any] struct {
	mu      sync.RWMutex
	nodes   *arena[V]
	roots   []uint32
	parents []int
	size    int
	depth   int
}

// Build constructs version 0 over [0, size-1] with every leaf unset.
func Build[V any](size int) (*Tree[V], error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}

	if size > maxLeaves {
		return nil, fmt.Errorf("%w: %d leaves exceed the limit of %d", ErrArenaFull, size, maxLeaves)
	}

	depth := maxDepth(size)
	nodeCount := 2*size - 1

	tree := &Tree[V]{
		nodes: newArena[V](nodeCount + depth),
		size:  size,
		depth: depth,
	}

	root := tree.build(0, size-1)
	tree.roots = append(tree.roots, root)
	tree.parents = append(tree.parents, rootParent)

	return tree, nil
}

func (t *Tree[V]) build(lo, hi int) uint32 {
	if lo == hi {
		return t.nodes.alloc(node[V]{lo: lo, hi: hi})
	}

	mid := (lo + hi) / 2
	left := t.build(lo, mid)
	right := t.build(mid+1, hi)

	return t.nodes.alloc(node[V]{lo: lo, hi: hi, left: left, right: right})
}

// Size returns the number of indexable slots.
func (t *Tree[V]) Size() int {
	return t.size
}

// Versions returns the number of versions, including version 0.
func (t *Tree[V]) Versions() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.roots)
}

// Latest returns the id of the most recently created version.
func (t *Tree[V]) Latest() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.roots) - 1
}

// Nodes returns the number of nodes allocated across all versions.
func (t *Tree[V]) Nodes() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.nodes.used()
}

// MaxDepth returns the number of nodes on the longest root-to-leaf path, which
// is the most nodes a single Update allocates.
func (t *Tree[V]) MaxDepth() int {
	return t.depth
}

// Parent returns the version that version was derived from, or -1 for version 0.
func (t *Tree[V]) Parent(version int) (int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	err := t.checkVersion(version)
	if err != nil {
		return 0, err
	}

	return t.parents[version], nil
}

// Lineage returns the ancestry of version, starting with version itself and
// ending with version 0.
func (t *Tree[V]) Lineage(version int) ([]int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	err := t.checkVersion(version)
	if err != nil {
		return nil, err
	}

	var line []int

	for v := version; v != rootParent; v = t.parents[v] {
		line = append(line, v)
	}

	return line, nil
}

// Update assigns value to idx on top of version and returns the id of the new
// version. version itself is left unchanged. On error no version is created.
func (t *Tree[V]) Update(version, idx int, value V) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	err := t.checkVersion(version)
	if err != nil {
		return 0, err
	}

	err = t.checkIndex(idx)
	if err != nil {
		return 0, err
	}

	err = t.nodes.reserve(t.depth)
	if err != nil {
		return 0, err
	}

	root := t.update(t.roots[version], idx, value)
	t.roots = append(t.roots, root)
	t.parents = append(t.parents, version)

	return len(t.roots) - 1, nil
}

// update copies the path from handle down to idx. The child that is not on the
// path keeps its handle, which is what shares it with the parent version.
func (t *Tree[V]) update(handle uint32, idx int, value V) uint32 {
	nd := t.nodes.storage[handle]

	if nd.lo == nd.hi {
		return t.nodes.alloc(node[V]{lo: nd.lo, hi: nd.hi, value: value, set: true})
	}

	mid := (nd.lo + nd.hi) / 2
	if idx <= mid {
		nd.left = t.update(nd.left, idx, value)
	} else {
		nd.right = t.update(nd.right, idx, value)
	}

	return t.nodes.alloc(nd)
}

// Query returns the entries of version for every index in [l, r] that lies
// inside the tree, in ascending index order. l > r yields an empty slice.
func (t *Tree[V]) Query(version, l, r int) ([]Entry[V], error) {
	entries := make([]Entry[V], 0, spanLen(l, r, t.size))

	err := t.Walk(version, l, r, func(_ int, entry Entry[V]) bool {
		entries = append(entries, entry)

		return true
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

// Get returns the entry at idx in version.
func (t *Tree[V]) Get(version, idx int) (Entry[V], error) {
	entries, err := t.Query(version, idx, idx)
	if err != nil {
		return Entry[V]{}, err
	}

	if len(entries) == 0 {
		return Entry[V]{}, t.checkIndex(idx)
	}

	return entries[0], nil
}

// Walk calls fn for every leaf of version in [l, r] in ascending index order
// until fn returns false. fn may call back into the tree, including Update.
func (t *Tree[V]) Walk(version, l, r int, fn func(idx int, entry Entry[V]) bool) error {
	t.mu.RLock()

	err := t.checkVersion(version)
	if err != nil {
		t.mu.RUnlock()

		return err
	}

	storage := t.nodes.snapshot()
	root := t.roots[version]

	t.mu.RUnlock()

	if l > r {
		return nil
	}

	walk(storage, root, l, r, fn)

	return nil
}

// walk visits the leaves under handle that overlap [l, r]. It reports false
// once fn asked to stop.
func walk[V any](storage []node[V], handle uint32, l, r int, fn func(int, Entry[V]) bool) bool {
	nd := &storage[handle]

	if nd.hi < l || nd.lo > r {
		return true
	}

	if nd.lo == nd.hi {
		return fn(nd.lo, Entry[V]{Value: nd.value, Set: nd.set})
	}

	if !walk(storage, nd.left, l, r, fn) {
		return false
	}

	return walk(storage, nd.right, l, r, fn)
}

func (t *Tree[V]) checkVersion(version int) error {
	if version < 0 || version >= len(t.roots) {
		return fmt.Errorf("%w: %d (have %d)", ErrInvalidVersion, version, len(t.roots))
	}

	return nil
}

func (t *Tree[V]) checkIndex(idx int) error {
	if idx < 0 || idx >= t.size {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, idx, t.size)
	}

	return nil
}

// maxDepth returns ceil(log2(size)) + 1, the node count of the longest
// root-to-leaf path of a tree over size leaves.
func maxDepth(size int) int {
	return bits.Len(uint(size-1)) + 1
}

// spanLen returns how many indexes of [0, size) fall inside [l, r].
func spanLen(l, r, size int) int {
	l = max(l, 0)
	r = min(r, size-1)

	if l > r {
		return 0
	}

	return r - l + 1
}
