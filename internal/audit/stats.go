// Package audit compares automated consensus scores against ground
// truth signals and classifies reviews by how much manual attention
// they need.
package audit

import "math"

// CorpusStats is an immutable snapshot of the consensus-vs-ground-truth
// deviation across the corpus. It is computed once per audit run and
// passed by value, never recomputed mid-run, so the outlier threshold
// cannot drift within a single batch.
type CorpusStats struct {
	// Count is the number of reviews that carried both signals.
	Count int

	// Mean is the average of (consensus - ground truth) diffs.
	Mean float64

	// StdDev is the population standard deviation of the diffs.
	StdDev float64
}

// ComputeStats builds a CorpusStats snapshot from raw diffs.
func ComputeStats(diffs []float64) CorpusStats {
	n := len(diffs)
	if n == 0 {
		return CorpusStats{}
	}

	sum := 0.0
	for _, d := range diffs {
		sum += d
	}
	mean := sum / float64(n)

	variance := 0.0
	for _, d := range diffs {
		variance += (d - mean) * (d - mean)
	}
	variance /= float64(n)

	return CorpusStats{Count: n, Mean: mean, StdDev: math.Sqrt(variance)}
}

// Outlier reports whether a diff deviates from the corpus mean by more
// than two standard deviations. The threshold is population-relative,
// not a fixed cutoff, so it adapts as the corpus grows. Snapshots built
// from fewer than two diffs never flag: there is no population to
// deviate from.
func (s CorpusStats) Outlier(diff float64) bool {
	if s.Count < 2 {
		return false
	}
	return math.Abs(diff-s.Mean) > 2*s.StdDev
}
