package domain

// Confidence is an oracle's self-reported certainty about a judgment.
type Confidence string

// Confidence levels ordered high > medium > low.
const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Weight returns the tie-breaking weight for a confidence level
// (high=3, medium=2, low=1). Unknown labels weigh zero.
func (c Confidence) Weight() int {
	switch c {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	case ConfidenceLow:
		return 1
	}
	return 0
}

// IsValid reports whether c is a known confidence level.
func (c Confidence) IsValid() bool { return c.Weight() > 0 }

// Adequate reports whether the confidence level is strong enough to
// resolve an adjudication without further attempts.
func (c Confidence) Adequate() bool { return c == ConfidenceHigh || c == ConfidenceMedium }

// Judgment is one oracle's opinion about one review text. Judgments are
// created fresh on every invocation, never mutated, and owned
// exclusively by the invocation that produced them.
type Judgment struct {
	// OracleName identifies which oracle produced this judgment.
	OracleName string

	// Bucket is the sentiment category the oracle assigned.
	Bucket Bucket

	// Score lies inside Bucket's interval; out-of-range oracle scores
	// are clamped at construction, never rejected.
	Score int

	// Confidence is the oracle's self-reported certainty.
	Confidence Confidence

	// Rationale is the oracle's free-text explanation. Advisory only.
	Rationale string
}

// NewJudgment builds a Judgment against the given table, clamping the
// score into the bucket's interval. It fails only on an unknown bucket
// or confidence label, which callers treat as a malformed response.
func NewJudgment(table BucketTable, oracleName string, bucket Bucket, score int, conf Confidence, rationale string) (Judgment, error) {
	clamped, err := table.Clamp(bucket, score)
	if err != nil {
		return Judgment{}, err
	}
	if !conf.IsValid() {
		return Judgment{}, ErrInvalidConfidence
	}
	return Judgment{
		OracleName: oracleName,
		Bucket:     bucket,
		Score:      clamped,
		Confidence: conf,
		Rationale:  rationale,
	}, nil
}

// Rejection is an oracle's substantive judgment that the input is
// unscoreable (wrong production, insufficient content). It is distinct
// from a transport or format failure.
type Rejection struct {
	// OracleName identifies which oracle rejected the text.
	OracleName string

	// Reason explains why the text cannot be scored.
	Reason string
}

// Consensus is the merged result of multiple oracle judgments for one
// review: the majority bucket and the mean score of its voters. It is
// derived, not separately persisted.
type Consensus struct {
	// Bucket is the winning bucket of the vote tally.
	Bucket Bucket

	// Score is the rounded mean of the majority voters' scores, clamped
	// into Bucket's interval.
	Score int

	// Votes is the number of judgments that voted for Bucket.
	Votes int

	// Judgments holds every non-rejected, non-failed judgment that took
	// part in the tally, for traceability.
	Judgments []Judgment
}
