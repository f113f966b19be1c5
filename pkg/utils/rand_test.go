package utils

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRandSourceUniformFloat64(t *testing.T) {
	rng := NewRandSource(12345)
	for i := 0; i < 1000; i++ {
		v := rng.UniformFloat64(-10, 10)
		assert.GreaterOrEqual(t, v, -10.0)
		assert.Less(t, v, 10.0)
	}
}

func TestRandSourceLogUniformFloat64(t *testing.T) {
	rng := NewRandSource(12345)
	below := 0
	for i := 0; i < 2000; i++ {
		v := rng.LogUniformFloat64(1e-5, 1e-1)
		assert.GreaterOrEqual(t, v, 1e-5)
		assert.LessOrEqual(t, v, 1e-1)
		if v < 1e-3 {
			below++
		}
	}
	// Half of the log range lies below 1e-3.
	assert.InDelta(t, 1000, below, 150)
}

func TestRandSourceUniformInt64(t *testing.T) {
	rng := NewRandSource(7)
	seen := map[int64]bool{}
	for i := 0; i < 500; i++ {
		v := rng.UniformInt64(1, 4)
		assert.GreaterOrEqual(t, v, int64(1))
		assert.LessOrEqual(t, v, int64(4))
		seen[v] = true
	}
	assert.Len(t, seen, 4)
	assert.Equal(t, int64(3), rng.UniformInt64(3, 3))
}

func TestRandSourceWeightedIndex(t *testing.T) {
	rng := NewRandSource(99)
	assert.Equal(t, -1, rng.WeightedIndex(nil))
	assert.Equal(t, -1, rng.WeightedIndex([]float64{0, -1}))

	counts := make([]int, 3)
	for i := 0; i < 3000; i++ {
		counts[rng.WeightedIndex([]float64{1, 0, 3})]++
	}
	assert.Zero(t, counts[1])
	assert.InDelta(t, 0.75, float64(counts[2])/3000, 0.05)
}

func TestRandSourceConcurrentUse(t *testing.T) {
	rng := NewRandSource(1)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				v := rng.NormFloat64(0, 1)
				assert.False(t, math.IsNaN(v))
			}
		}()
	}
	wg.Wait()
}
