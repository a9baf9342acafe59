package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketTable_BucketFor(t *testing.T) {
	tests := []struct {
		name     string
		score    int
		expected Bucket
	}{
		{name: "zero is pan", score: 0, expected: BucketPan},
		{name: "pan upper bound", score: 34, expected: BucketPan},
		{name: "negative lower bound", score: 35, expected: BucketNegative},
		{name: "negative upper bound", score: 54, expected: BucketNegative},
		{name: "mixed lower bound", score: 55, expected: BucketMixed},
		{name: "mixed upper bound", score: 69, expected: BucketMixed},
		{name: "positive lower bound", score: 70, expected: BucketPositive},
		{name: "positive upper bound", score: 84, expected: BucketPositive},
		{name: "rave lower bound", score: 85, expected: BucketRave},
		{name: "perfect score", score: 100, expected: BucketRave},
		{name: "below scale clamps to pan", score: -10, expected: BucketPan},
		{name: "above scale clamps to rave", score: 140, expected: BucketRave},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, BucketTableV1.BucketFor(tt.score))
		})
	}
}

func TestBucketTable_IntervalsCoverScale(t *testing.T) {
	// Every score on the scale must land in exactly one bucket whose
	// interval contains it.
	for score := 0; score <= 100; score++ {
		b := BucketTableV1.BucketFor(score)
		iv, ok := BucketTableV1.Interval(b)
		require.True(t, ok)
		assert.True(t, iv.Contains(score), "score %d not in %s interval", score, b)
	}
}

func TestBucketTable_Clamp(t *testing.T) {
	score, err := BucketTableV1.Clamp(BucketPositive, 92)
	require.NoError(t, err)
	assert.Equal(t, 84, score)

	score, err = BucketTableV1.Clamp(BucketPositive, 12)
	require.NoError(t, err)
	assert.Equal(t, 70, score)

	score, err = BucketTableV1.Clamp(BucketPositive, 75)
	require.NoError(t, err)
	assert.Equal(t, 75, score)

	_, err = BucketTableV1.Clamp(Bucket("lukewarm"), 50)
	assert.ErrorIs(t, err, ErrUnknownBucket)
}

func TestInterval_Midpoint(t *testing.T) {
	iv, ok := BucketTableV1.Interval(BucketPositive)
	require.True(t, ok)
	assert.InDelta(t, 77.0, iv.Midpoint(), 0.001)
}
