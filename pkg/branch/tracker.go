// Package branch tracks a fixed number of branches on top of a persistent
// segment tree. Each branch is a (params, result) record bound to its own
// slot; recording one performs a single point update and yields a new version.
//
// Versions may fork from any earlier version. Divergent lines stay valid and
// queryable side by side; they are never merged.
package branch

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Sumatoshi-tech/branchtrack/pkg/pstree"
)

// Sentinel errors.
var (
	// ErrCapacityExceeded indicates every branch slot is already allocated.
	ErrCapacityExceeded = errors.New("branch capacity exceeded")
	// ErrNotFound indicates a slot that was not allocated as of the requested version.
	ErrNotFound = errors.New("branch not found")
)

// Branch is one recorded (params, result) pair.
type Branch[P, R any] struct {
	Params P
	Result R
	// Slot is the index permanently associated with the branch.
	Slot int
	// Version is the version created by recording the branch.
	Version int
	// Parent is the version the branch was recorded on top of.
	Parent int
}

// Deps holds injectable dependencies for a Tracker.
type Deps struct {
	// Logger is an optional structured logger. Nil uses slog default.
	Logger *slog.Logger
}

// Stats is a point-in-time summary of a Tracker.
type Stats struct {
	Capacity       int `json:"capacity"`
	Slots          int `json:"slots"`
	Versions       int `json:"versions"`
	CurrentVersion int `json:"current_version"`
	Nodes          int `json:"nodes"`
}

// Tracker records branches. It is safe for concurrent use: recording is
// serialized and reads proceed in parallel.
type Tracker[P, R any] struct {
	mu       sync.RWMutex
	tree     *pstree.Tree[R]
	logger   *slog.Logger
	branches []Branch[P, R]
	// slotsAt[v] is the number of allocated slots when version v was created.
	slotsAt  []int
	current  int
	capacity int
}

// New creates a Tracker with room for maxBranches branches.
func New[P, R any](maxBranches int, deps Deps) (*Tracker[P, R], error) {
	tree, err := pstree.Build[R](maxBranches)
	if err != nil {
		return nil, fmt.Errorf("build branch tree: %w", err)
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Tracker[P, R]{
		tree:     tree,
		logger:   logger,
		branches: make([]Branch[P, R], 0, maxBranches),
		slotsAt:  []int{0},
		capacity: maxBranches,
	}, nil
}

// AddBranch records a branch on top of the current version and returns the new version.
func (t *Tracker[P, R]) AddBranch(params P, result R) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.record(t.current, params, result)
}

// ForkBranch records a branch on top of from, which need not be the current
// version. The line the current version belonged to is left as it was.
func (t *Tracker[P, R]) ForkBranch(from int, params P, result R) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.record(from, params, result)
}

func (t *Tracker[P, R]) record(from int, params P, result R) (int, error) {
	slot := len(t.branches)
	if slot >= t.capacity {
		return 0, fmt.Errorf("%w: all %d slots in use", ErrCapacityExceeded, t.capacity)
	}

	version, err := t.tree.Update(from, slot, result)
	if err != nil {
		return 0, fmt.Errorf("record branch %d: %w", slot, err)
	}

	t.branches = append(t.branches, Branch[P, R]{
		Params:  params,
		Result:  result,
		Slot:    slot,
		Version: version,
		Parent:  from,
	})
	t.slotsAt = append(t.slotsAt, len(t.branches))
	t.current = version

	t.logger.Debug("branch recorded",
		slog.Int("slot", slot),
		slog.Int("version", version),
		slog.Int("from", from),
	)

	return version, nil
}

// BranchResult returns the result stored in slot as of version. The entry is
// unset when the slot was allocated on another line. ErrNotFound is returned
// when the slot had not been allocated yet when version was created.
func (t *Tracker[P, R]) BranchResult(version, slot int) (pstree.Entry[R], error) {
	count, err := t.SlotCount(version)
	if err != nil {
		return pstree.Entry[R]{}, err
	}

	if slot < 0 || slot >= count {
		return pstree.Entry[R]{}, fmt.Errorf("%w: slot %d at version %d (%d allocated)", ErrNotFound, slot, version, count)
	}

	return t.tree.Get(version, slot)
}

// AllResults returns the entries of every slot allocated as of version, in
// slot order. Slots allocated after version was created are not included.
func (t *Tracker[P, R]) AllResults(version int) ([]pstree.Entry[R], error) {
	count, err := t.SlotCount(version)
	if err != nil {
		return nil, err
	}

	return t.tree.Query(version, 0, count-1)
}

// SlotCount returns the number of slots allocated when version was created.
func (t *Tracker[P, R]) SlotCount(version int) (int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if version < 0 || version >= len(t.slotsAt) {
		return 0, fmt.Errorf("%w: %d (have %d)", pstree.ErrInvalidVersion, version, len(t.slotsAt))
	}

	return t.slotsAt[version], nil
}

// Branch returns the record stored in slot.
func (t *Tracker[P, R]) Branch(slot int) (Branch[P, R], error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if slot < 0 || slot >= len(t.branches) {
		return Branch[P, R]{}, fmt.Errorf("%w: slot %d (%d allocated)", ErrNotFound, slot, len(t.branches))
	}

	return t.branches[slot], nil
}

// CreatedBy returns the branch whose recording created version. Every version
// except 0 is created by exactly one branch, the one in slot version-1.
func (t *Tracker[P, R]) CreatedBy(version int) (Branch[P, R], error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if version < 1 || version > len(t.branches) {
		return Branch[P, R]{}, fmt.Errorf("%w: no branch created version %d", ErrNotFound, version)
	}

	return t.branches[version-1], nil
}

// Lineage returns the versions from version back to version 0.
func (t *Tracker[P, R]) Lineage(version int) ([]int, error) {
	line, err := t.tree.Lineage(version)
	if err != nil {
		return nil, fmt.Errorf("lineage: %w", err)
	}

	return line, nil
}

// Diff returns the slots whose entries differ between versions a and b. Slots
// allocated in only one of them are compared against an unset entry.
func (t *Tracker[P, R]) Diff(a, b int, equal func(x, y R) bool) ([]int, error) {
	left, err := t.AllResults(a)
	if err != nil {
		return nil, err
	}

	right, err := t.AllResults(b)
	if err != nil {
		return nil, err
	}

	var slots []int

	for slot := range max(len(left), len(right)) {
		x := entryAt(left, slot)
		y := entryAt(right, slot)

		if x.Set != y.Set || (x.Set && !equal(x.Value, y.Value)) {
			slots = append(slots, slot)
		}
	}

	return slots, nil
}

func entryAt[R any](entries []pstree.Entry[R], slot int) pstree.Entry[R] {
	if slot < len(entries) {
		return entries[slot]
	}

	return pstree.Entry[R]{}
}

// CurrentVersion returns the most recently created version.
func (t *Tracker[P, R]) CurrentVersion() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.current
}

// NextSlot returns the slot the next recorded branch will occupy.
func (t *Tracker[P, R]) NextSlot() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.branches)
}

// Capacity returns the maximum number of branches.
func (t *Tracker[P, R]) Capacity() int {
	return t.capacity
}

// Stats returns a summary of the tracker.
func (t *Tracker[P, R]) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return Stats{
		Capacity:       t.capacity,
		Slots:          len(t.branches),
		Versions:       len(t.slotsAt),
		CurrentVersion: t.current,
		Nodes:          t.tree.Nodes(),
	}
}
