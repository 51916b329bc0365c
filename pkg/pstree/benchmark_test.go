package pstree_test

import (
	"testing"

	"github.com/Sumatoshi-tech/branchtrack/pkg/pstree"
)

// Benchmark constants.
const (
	benchSize      = 1 << 16
	benchQueryLow  = 1000
	benchQueryHigh = 1100
)

// BenchmarkBuild benchmarks building version 0.
func BenchmarkBuild(b *testing.B) {
	for range b.N {
		_, err := pstree.Build[int](benchSize)
		if err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkUpdate benchmarks chained point updates.
func BenchmarkUpdate(b *testing.B) {
	tree, err := pstree.Build[int](benchSize)
	if err != nil {
		b.Fatal(err)
	}

	version := 0

	b.ResetTimer()

	for i := range b.N {
		version, err = tree.Update(version, i%benchSize, i)
		if err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkQuery benchmarks a narrow range query on a populated version.
func BenchmarkQuery(b *testing.B) {
	tree, err := pstree.Build[int](benchSize)
	if err != nil {
		b.Fatal(err)
	}

	version := 0
	for idx := benchQueryLow; idx <= benchQueryHigh; idx++ {
		version, err = tree.Update(version, idx, idx)
		if err != nil {
			b.Fatal(err)
		}
	}

	b.ResetTimer()

	for range b.N {
		_, err = tree.Query(version, benchQueryLow, benchQueryHigh)
		if err != nil {
			b.Fatal(err)
		}
	}
}
