package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeStats(t *testing.T) {
	stats := ComputeStats([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.Equal(t, 8, stats.Count)
	assert.InDelta(t, 5.0, stats.Mean, 0.001)
	assert.InDelta(t, 2.0, stats.StdDev, 0.001)

	empty := ComputeStats(nil)
	assert.Equal(t, 0, empty.Count)
	assert.Zero(t, empty.Mean)
	assert.Zero(t, empty.StdDev)
}

func TestCorpusStats_Outlier(t *testing.T) {
	stats := CorpusStats{Count: 30, Mean: -5, StdDev: 8}

	// abs(-50 - (-5)) = 45 > 16.
	assert.True(t, stats.Outlier(-50))
	// abs(10 - (-5)) = 15 <= 16.
	assert.False(t, stats.Outlier(10))
	// Exactly at the threshold does not flag.
	assert.False(t, stats.Outlier(11))
	assert.True(t, stats.Outlier(11.5))
}

func TestCorpusStats_ShiftInvariance(t *testing.T) {
	diffs := []float64{-12, -3, 0, 4, 4, 7, 15, 22, -8, 1}
	const shift = 37.0

	shifted := make([]float64, len(diffs))
	for i, d := range diffs {
		shifted[i] = d + shift
	}

	base := ComputeStats(diffs)
	moved := ComputeStats(shifted)

	assert.InDelta(t, base.Mean+shift, moved.Mean, 1e-9)
	assert.InDelta(t, base.StdDev, moved.StdDev, 1e-9)

	// Shifting every diff by a constant must leave flags unchanged.
	for _, d := range diffs {
		assert.Equal(t, base.Outlier(d), moved.Outlier(d+shift), "diff %v", d)
	}
}

func TestCorpusStats_TinyCorpusNeverFlags(t *testing.T) {
	assert.False(t, CorpusStats{}.Outlier(100))
	assert.False(t, CorpusStats{Count: 1, Mean: 0, StdDev: 0}.Outlier(100))
}
