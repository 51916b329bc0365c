package pstree_test

import (
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/branchtrack/pkg/pstree"
)

// Test constants.
const (
	testSize4    = 4
	testSize5    = 5
	testSize100  = 100
	testWriters  = 8
	testPerGorot = 50
)

func set(value string) pstree.Entry[string] {
	return pstree.Entry[string]{Value: value, Set: true}
}

func unset() pstree.Entry[string] {
	return pstree.Entry[string]{}
}

// TestBuild_InvalidSize verifies that non-positive sizes are rejected.
func TestBuild_InvalidSize(t *testing.T) {
	t.Parallel()

	for _, size := range []int{0, -1, -100} {
		tree, err := pstree.Build[string](size)
		require.ErrorIs(t, err, pstree.ErrInvalidSize)
		assert.Nil(t, tree)
	}
}

// TestBuild_TooLarge verifies that sizes beyond the arena are rejected
// before any node count is computed.
func TestBuild_TooLarge(t *testing.T) {
	t.Parallel()

	for _, size := range []int{math.MaxInt, math.MaxInt/2 + 1} {
		tree, err := pstree.Build[string](size)
		require.ErrorIs(t, err, pstree.ErrArenaFull)
		assert.Nil(t, tree)
	}
}

// TestBuild_VersionZero verifies the freshly built tree.
func TestBuild_VersionZero(t *testing.T) {
	t.Parallel()

	tree, err := pstree.Build[string](testSize4)
	require.NoError(t, err)

	assert.Equal(t, testSize4, tree.Size())
	assert.Equal(t, 1, tree.Versions())
	assert.Equal(t, 0, tree.Latest())
	assert.Equal(t, 2*testSize4-1, tree.Nodes())

	entries, err := tree.Query(0, 0, testSize4-1)
	require.NoError(t, err)
	assert.Equal(t, []pstree.Entry[string]{unset(), unset(), unset(), unset()}, entries)
}

// TestBuild_SingleLeaf verifies a tree with one slot.
func TestBuild_SingleLeaf(t *testing.T) {
	t.Parallel()

	tree, err := pstree.Build[int](1)
	require.NoError(t, err)
	assert.Equal(t, 1, tree.MaxDepth())

	v1, err := tree.Update(0, 0, 7)
	require.NoError(t, err)

	entry, err := tree.Get(v1, 0)
	require.NoError(t, err)
	assert.Equal(t, 7, entry.Value)
	assert.True(t, entry.Set)

	entry, err = tree.Get(0, 0)
	require.NoError(t, err)
	assert.True(t, entry.Unset())
}

// TestScenario_TwoUpdates walks three versions of a size-4 tree.
func TestScenario_TwoUpdates(t *testing.T) {
	t.Parallel()

	tree, err := pstree.Build[string](testSize4)
	require.NoError(t, err)

	v1, err := tree.Update(0, 0, "A")
	require.NoError(t, err)
	assert.Equal(t, 1, v1)

	v2, err := tree.Update(v1, 2, "B")
	require.NoError(t, err)
	assert.Equal(t, 2, v2)

	got, err := tree.Query(v1, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, []pstree.Entry[string]{set("A"), unset(), unset(), unset()}, got)

	got, err = tree.Query(v2, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, []pstree.Entry[string]{set("A"), unset(), set("B"), unset()}, got)

	got, err = tree.Query(0, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, []pstree.Entry[string]{unset(), unset(), unset(), unset()}, got)
}

// TestUpdate_PointRoundTrip verifies that every index reads back what was written.
func TestUpdate_PointRoundTrip(t *testing.T) {
	t.Parallel()

	tree, err := pstree.Build[int](testSize100)
	require.NoError(t, err)

	version := 0

	for idx := range testSize100 {
		version, err = tree.Update(version, idx, idx*idx)
		require.NoError(t, err)

		got, queryErr := tree.Query(version, idx, idx)
		require.NoError(t, queryErr)
		require.Len(t, got, 1)
		assert.Equal(t, idx*idx, got[0].Value)
	}

	assert.Equal(t, testSize100+1, tree.Versions())
}

// TestUpdate_ParentUnchanged verifies persistence: older versions keep their values.
func TestUpdate_ParentUnchanged(t *testing.T) {
	t.Parallel()

	tree, err := pstree.Build[string](testSize5)
	require.NoError(t, err)

	v1, err := tree.Update(0, 3, "first")
	require.NoError(t, err)

	before, err := tree.Query(v1, 0, testSize5-1)
	require.NoError(t, err)

	_, err = tree.Update(v1, 3, "second")
	require.NoError(t, err)

	_, err = tree.Update(v1, 1, "other")
	require.NoError(t, err)

	after, err := tree.Query(v1, 0, testSize5-1)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

// TestUpdate_Overwrite verifies that the most recent write on a line wins.
func TestUpdate_Overwrite(t *testing.T) {
	t.Parallel()

	tree, err := pstree.Build[string](testSize4)
	require.NoError(t, err)

	v1, err := tree.Update(0, 1, "old")
	require.NoError(t, err)

	v2, err := tree.Update(v1, 1, "new")
	require.NoError(t, err)

	entry, err := tree.Get(v2, 1)
	require.NoError(t, err)
	assert.Equal(t, "new", entry.Value)

	entry, err = tree.Get(v1, 1)
	require.NoError(t, err)
	assert.Equal(t, "old", entry.Value)
}

// TestUpdate_Fork verifies that two lines derived from the same version stay independent.
func TestUpdate_Fork(t *testing.T) {
	t.Parallel()

	tree, err := pstree.Build[string](testSize4)
	require.NoError(t, err)

	v1, err := tree.Update(0, 0, "left")
	require.NoError(t, err)

	v2, err := tree.Update(0, 0, "right")
	require.NoError(t, err)

	left, err := tree.Get(v1, 0)
	require.NoError(t, err)
	assert.Equal(t, "left", left.Value)

	right, err := tree.Get(v2, 0)
	require.NoError(t, err)
	assert.Equal(t, "right", right.Value)

	parent, err := tree.Parent(v2)
	require.NoError(t, err)
	assert.Equal(t, 0, parent)
}

// TestUpdate_Errors verifies validation and that failures create no version.
func TestUpdate_Errors(t *testing.T) {
	t.Parallel()

	tree, err := pstree.Build[string](testSize4)
	require.NoError(t, err)

	tests := []struct {
		name    string
		version int
		idx     int
		want    error
	}{
		{name: "negative_version", version: -1, idx: 0, want: pstree.ErrInvalidVersion},
		{name: "future_version", version: 1, idx: 0, want: pstree.ErrInvalidVersion},
		{name: "negative_index", version: 0, idx: -1, want: pstree.ErrIndexOutOfRange},
		{name: "index_past_end", version: 0, idx: testSize4, want: pstree.ErrIndexOutOfRange},
	}

	for _, tc := range tests {
		_, updateErr := tree.Update(tc.version, tc.idx, "x")
		require.ErrorIs(t, updateErr, tc.want, tc.name)
	}

	assert.Equal(t, 1, tree.Versions())
	assert.Equal(t, 2*testSize4-1, tree.Nodes())
}

// TestQuery_EmptyRange verifies that l > r yields an empty, non-nil slice.
func TestQuery_EmptyRange(t *testing.T) {
	t.Parallel()

	tree, err := pstree.Build[string](testSize4)
	require.NoError(t, err)

	v1, err := tree.Update(0, 2, "x")
	require.NoError(t, err)

	for _, version := range []int{0, v1} {
		got, queryErr := tree.Query(version, 3, 1)
		require.NoError(t, queryErr)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	}
}

// TestQuery_InvalidVersion verifies that queries validate the version.
func TestQuery_InvalidVersion(t *testing.T) {
	t.Parallel()

	tree, err := pstree.Build[string](testSize4)
	require.NoError(t, err)

	_, err = tree.Query(1, 0, 3)
	require.ErrorIs(t, err, pstree.ErrInvalidVersion)

	_, err = tree.Query(-1, 3, 1)
	require.ErrorIs(t, err, pstree.ErrInvalidVersion)
}

// TestQuery_PartialRanges verifies ordering and clipping of sub-ranges.
func TestQuery_PartialRanges(t *testing.T) {
	t.Parallel()

	tree, err := pstree.Build[int](testSize5)
	require.NoError(t, err)

	version := 0
	for idx := range testSize5 {
		version, err = tree.Update(version, idx, idx+10)
		require.NoError(t, err)
	}

	tests := []struct {
		l, r int
		want []int
	}{
		{l: 0, r: 4, want: []int{10, 11, 12, 13, 14}},
		{l: 1, r: 3, want: []int{11, 12, 13}},
		{l: 4, r: 4, want: []int{14}},
		{l: -3, r: 1, want: []int{10, 11}},
		{l: 3, r: 99, want: []int{13, 14}},
		{l: 7, r: 9, want: []int{}},
	}

	for _, tc := range tests {
		got, queryErr := tree.Query(version, tc.l, tc.r)
		require.NoError(t, queryErr)

		values := make([]int, 0, len(got))
		for _, entry := range got {
			values = append(values, entry.Value)
		}

		assert.Equal(t, tc.want, values, "range [%d, %d]", tc.l, tc.r)
	}
}

// TestGet_OutOfRange verifies single-point reads outside the tree.
func TestGet_OutOfRange(t *testing.T) {
	t.Parallel()

	tree, err := pstree.Build[string](testSize4)
	require.NoError(t, err)

	_, err = tree.Get(0, testSize4)
	require.ErrorIs(t, err, pstree.ErrIndexOutOfRange)

	_, err = tree.Get(3, testSize4)
	require.ErrorIs(t, err, pstree.ErrInvalidVersion)
}

// TestWalk_StopsEarly verifies that returning false ends the walk.
func TestWalk_StopsEarly(t *testing.T) {
	t.Parallel()

	tree, err := pstree.Build[string](testSize100)
	require.NoError(t, err)

	var visited []int

	err = tree.Walk(0, 10, 90, func(idx int, _ pstree.Entry[string]) bool {
		visited = append(visited, idx)

		return len(visited) < 3
	})
	require.NoError(t, err)
	assert.Equal(t, []int{10, 11, 12}, visited)
}

// TestWalk_UpdateFromCallback verifies that the callback may write to the tree.
func TestWalk_UpdateFromCallback(t *testing.T) {
	t.Parallel()

	tree, err := pstree.Build[int](testSize4)
	require.NoError(t, err)

	err = tree.Walk(0, 0, testSize4-1, func(idx int, _ pstree.Entry[int]) bool {
		_, updateErr := tree.Update(tree.Latest(), idx, idx)
		require.NoError(t, updateErr)

		return true
	})
	require.NoError(t, err)
	assert.Equal(t, testSize4+1, tree.Versions())
}

// TestLineage verifies ancestry across a fork.
func TestLineage(t *testing.T) {
	t.Parallel()

	tree, err := pstree.Build[string](testSize4)
	require.NoError(t, err)

	v1, err := tree.Update(0, 0, "a")
	require.NoError(t, err)

	v2, err := tree.Update(v1, 1, "b")
	require.NoError(t, err)

	v3, err := tree.Update(v1, 2, "c")
	require.NoError(t, err)

	line, err := tree.Lineage(v2)
	require.NoError(t, err)
	assert.Equal(t, []int{v2, v1, 0}, line)

	line, err = tree.Lineage(v3)
	require.NoError(t, err)
	assert.Equal(t, []int{v3, v1, 0}, line)

	line, err = tree.Lineage(0)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, line)

	parent, err := tree.Parent(0)
	require.NoError(t, err)
	assert.Equal(t, -1, parent)

	_, err = tree.Lineage(v3 + 1)
	require.ErrorIs(t, err, pstree.ErrInvalidVersion)
}

// TestMaxDepth verifies the longest path length for several sizes.
func TestMaxDepth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		size  int
		depth int
	}{
		{size: 1, depth: 1},
		{size: 2, depth: 2},
		{size: 3, depth: 3},
		{size: 4, depth: 3},
		{size: 5, depth: 4},
		{size: 8, depth: 4},
		{size: 100, depth: 8},
	}

	for _, tc := range tests {
		tree, err := pstree.Build[int](tc.size)
		require.NoError(t, err)
		assert.Equal(t, tc.depth, tree.MaxDepth(), "size %d", tc.size)
	}
}

// TestConcurrent_ReadersAndWriters exercises the tree from many goroutines.
func TestConcurrent_ReadersAndWriters(t *testing.T) {
	t.Parallel()

	tree, err := pstree.Build[string](testSize100)
	require.NoError(t, err)

	var wg sync.WaitGroup

	for writer := range testWriters {
		wg.Add(2)

		go func() {
			defer wg.Done()

			for i := range testPerGorot {
				_, updateErr := tree.Update(0, (writer*testPerGorot+i)%testSize100, fmt.Sprintf("w%d-%d", writer, i))
				assert.NoError(t, updateErr)
			}
		}()

		go func() {
			defer wg.Done()

			for range testPerGorot {
				got, queryErr := tree.Query(tree.Latest(), 0, testSize100-1)
				assert.NoError(t, queryErr)
				assert.Len(t, got, testSize100)
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, testWriters*testPerGorot+1, tree.Versions())

	// Every version derived from 0 holds exactly one value.
	for version := 1; version < tree.Versions(); version++ {
		got, queryErr := tree.Query(version, 0, testSize100-1)
		require.NoError(t, queryErr)

		count := 0

		for _, entry := range got {
			if entry.Set {
				count++
			}
		}

		assert.Equal(t, 1, count, "version %d", version)
	}
}
