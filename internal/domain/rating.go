package domain

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Thumb is a coarse ternary verdict from an aggregator site.
// Thumbs exist only as fallback ground truth when a review carries no
// explicit critic rating.
type Thumb string

// Supported thumb values.
const (
	ThumbUp   Thumb = "up"
	ThumbFlat Thumb = "flat"
	ThumbDown Thumb = "down"
)

// Representative scores for thumb values. Deliberately coarse: a thumb
// pins the bucket, not a precise point on the scale.
var thumbScores = map[Thumb]int{
	ThumbUp:   78,
	ThumbFlat: 55,
	ThumbDown: 35,
}

// letterScores maps letter grades to representative 0-100 scores.
// Grades outside A+..F fail normalization.
var letterScores = map[string]int{
	"A+": 98, "A": 95, "A-": 91,
	"B+": 88, "B": 85, "B-": 81,
	"C+": 78, "C": 74, "C-": 70,
	"D+": 65, "D": 60, "D-": 55,
	"F": 50,
}

// Rating is a normalized ground-truth signal: a canonical 0-100 score
// and the bucket whose interval contains it.
type Rating struct {
	Score  int
	Bucket Bucket
}

// starPattern accepts "<v>/<d>", "<v> stars", "<v> star" and a bare
// numeric value. The denominator group is optional.
var starPattern = regexp.MustCompile(`^([0-9]+(?:\.[0-9]+)?)\s*(?:/\s*([0-9]+(?:\.[0-9]+)?)|\s*stars?)?$`)

// gradePattern accepts a single letter grade, optionally signed.
var gradePattern = regexp.MustCompile(`^([A-DF])([+-])?$`)

// Normalizer converts heterogeneous rating representations into
// canonical Ratings against one bucket table. The bare-denominator
// policy is an explicit configuration choice: the source data is
// genuinely ambiguous about whether "3 stars" means 3/4 or 3/5, so the
// answer is configured, never inferred.
type Normalizer struct {
	table BucketTable

	// bareDenominator is the denominator applied to a whole-number star
	// value in 1-4 with no explicit denominator. Must be 4 or 5.
	bareDenominator int
}

// NewNormalizer creates a Normalizer over the given bucket table.
// bareDenominator must be 4 or 5.
func NewNormalizer(table BucketTable, bareDenominator int) (*Normalizer, error) {
	if bareDenominator != 4 && bareDenominator != 5 {
		return nil, fmt.Errorf("bare denominator must be 4 or 5, got %d", bareDenominator)
	}
	return &Normalizer{table: table, bareDenominator: bareDenominator}, nil
}

// Table returns the bucket table this normalizer scores against.
func (n *Normalizer) Table() BucketTable { return n.table }

// Normalize converts a raw rating representation into a Rating.
// It tries star forms first, then letter grades. The boolean is false
// when the representation is unparseable; callers must treat that as
// "no ground truth available", never as score zero.
func (n *Normalizer) Normalize(raw string) (Rating, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Rating{}, false
	}
	if r, ok := n.NormalizeStars(raw); ok {
		return r, true
	}
	return n.NormalizeGrade(raw)
}

// NormalizeStars parses a star rating of the form "<v>/<d>" or
// "<v> stars". A missing denominator defaults to 5, except for bare
// whole numbers in 1-4 where the configured policy denominator applies.
func (n *Normalizer) NormalizeStars(raw string) (Rating, bool) {
	m := starPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return Rating{}, false
	}

	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Rating{}, false
	}

	denom := 5.0
	if m[2] != "" {
		denom, err = strconv.ParseFloat(m[2], 64)
		if err != nil || denom <= 0 {
			return Rating{}, false
		}
	} else if value == math.Trunc(value) && value >= 1 && value <= 4 {
		denom = float64(n.bareDenominator)
	}

	if value < 0 || value > denom {
		return Rating{}, false
	}

	score := int(math.Round(value / denom * 100))
	return n.rate(score), true
}

// NormalizeGrade parses a letter grade in A+..F.
// F+ and F- are not grades; only plain F maps.
func (n *Normalizer) NormalizeGrade(raw string) (Rating, bool) {
	grade := strings.ToUpper(strings.TrimSpace(raw))
	if m := gradePattern.FindStringSubmatch(grade); m == nil || (m[1] == "F" && m[2] != "") {
		return Rating{}, false
	}
	score, ok := letterScores[grade]
	if !ok {
		return Rating{}, false
	}
	return n.rate(score), true
}

// NormalizeThumb converts an aggregator thumb into its representative
// Rating.
func (n *Normalizer) NormalizeThumb(t Thumb) (Rating, bool) {
	score, ok := thumbScores[t]
	if !ok {
		return Rating{}, false
	}
	return n.rate(score), true
}

// rate clamps score to the 0-100 scale and pairs it with its bucket so
// the score/bucket invariant holds by construction.
func (n *Normalizer) rate(score int) Rating {
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return Rating{Score: score, Bucket: n.table.BucketFor(score)}
}
