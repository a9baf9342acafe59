// Package domain contains pure, dependency-free domain models and types
// for the reception scoring pipeline.
package domain

import "fmt"

// Bucket is one of the five ordered sentiment categories a review can
// land in. Each bucket owns a closed interval on the 0-100 score scale.
type Bucket string

// The five sentiment buckets, ordered from worst to best reception.
const (
	BucketPan      Bucket = "pan"
	BucketNegative Bucket = "negative"
	BucketMixed    Bucket = "mixed"
	BucketPositive Bucket = "positive"
	BucketRave     Bucket = "rave"
)

// bucketOrder fixes the iteration order for deterministic tallies.
var bucketOrder = []Bucket{BucketPan, BucketNegative, BucketMixed, BucketPositive, BucketRave}

// IsValid reports whether b is one of the five known buckets.
func (b Bucket) IsValid() bool {
	switch b {
	case BucketPan, BucketNegative, BucketMixed, BucketPositive, BucketRave:
		return true
	}
	return false
}

// Interval is a closed numeric range [Lo, Hi] on the 0-100 scale.
type Interval struct {
	Lo int
	Hi int
}

// Contains reports whether score falls inside the closed interval.
func (iv Interval) Contains(score int) bool { return score >= iv.Lo && score <= iv.Hi }

// Midpoint returns the center of the interval.
func (iv Interval) Midpoint() float64 { return float64(iv.Lo+iv.Hi) / 2 }

// Clamp pulls score into the interval. Out-of-range scores are never
// rejected; they are snapped to the nearest bound.
func (iv Interval) Clamp(score int) int {
	if score < iv.Lo {
		return iv.Lo
	}
	if score > iv.Hi {
		return iv.Hi
	}
	return score
}

// BucketTable maps each bucket to its score interval. A table is
// immutable for the lifetime of a scoring run, and every pipeline stage
// consumes the same versioned table so boundary drift between stages
// cannot occur.
type BucketTable struct {
	// Version identifies the boundary set so persisted scores can be
	// traced back to the table that produced them.
	Version string

	intervals map[Bucket]Interval
}

// BucketTableV1 is the single shared boundary set used by all stages.
var BucketTableV1 = BucketTable{
	Version: "v1",
	intervals: map[Bucket]Interval{
		BucketRave:     {Lo: 85, Hi: 100},
		BucketPositive: {Lo: 70, Hi: 84},
		BucketMixed:    {Lo: 55, Hi: 69},
		BucketNegative: {Lo: 35, Hi: 54},
		BucketPan:      {Lo: 0, Hi: 34},
	},
}

// Interval returns the score range for the given bucket.
func (t BucketTable) Interval(b Bucket) (Interval, bool) {
	iv, ok := t.intervals[b]
	return iv, ok
}

// BucketFor returns the bucket whose interval contains the given score.
// Scores outside 0-100 are clamped to the scale before lookup.
func (t BucketTable) BucketFor(score int) Bucket {
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	for _, b := range bucketOrder {
		if t.intervals[b].Contains(score) {
			return b
		}
	}
	// Unreachable with a well-formed table covering [0,100].
	return BucketMixed
}

// Clamp pulls score into bucket's interval.
// It returns an error only when the bucket is unknown to this table.
func (t BucketTable) Clamp(b Bucket, score int) (int, error) {
	iv, ok := t.intervals[b]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownBucket, b)
	}
	return iv.Clamp(score), nil
}

// Buckets returns the buckets in ascending sentiment order.
// The returned slice is a copy and safe to modify.
func (t BucketTable) Buckets() []Bucket {
	out := make([]Bucket, len(bucketOrder))
	copy(out, bucketOrder)
	return out
}
