package domain

import (
	"fmt"
	"time"
)

// ReviewState tracks a review's position in the adjudication lifecycle.
type ReviewState string

// Review lifecycle states. ResolvedConfident and AutoAccepted are
// terminal: a review carrying either must never be reprocessed.
const (
	StateUnflagged         ReviewState = "unflagged"
	StateQueued            ReviewState = "queued"
	StateResolvedConfident ReviewState = "resolved_confident"
	StateAutoAccepted      ReviewState = "auto_accepted"
)

// Terminal reports whether the state admits no further transitions.
func (s ReviewState) Terminal() bool {
	return s == StateResolvedConfident || s == StateAutoAccepted
}

// Signal names which ground-truth side an adjudication attempt agreed
// with.
type Signal string

// Ground-truth signals an attempt can side with.
const (
	SignalThumb     Signal = "thumb"
	SignalAutomated Signal = "automated"
)

// AdjudicationAttempt is an immutable record of one re-judgment of a
// flagged review. Attempts are appended to a review's history in order
// and never removed or edited.
type AdjudicationAttempt struct {
	// ID is a ULID assigned when the attempt is created.
	ID string

	// At records when the oracle was invoked.
	At time.Time

	// Bucket and Score are the attempt's resulting judgment.
	Bucket Bucket
	Score  int

	// Confidence is the oracle's certainty for this attempt.
	Confidence Confidence

	// SidedWith names the ground-truth signal the attempt agreed with.
	SidedWith Signal

	// Rationale is the oracle's explanation. A forced resolution note is
	// appended here when the attempt ceiling ends the loop.
	Rationale string

	// Forced marks an attempt recorded as part of a forced resolution at
	// the ceiling, where the original automated score was kept.
	Forced bool
}

// Review is one critic's assessment of one production at one outlet.
// A review is uniquely keyed by (ShowID, OutletID, Critic).
type Review struct {
	// ID is a ULID assigned on creation.
	ID string

	// ShowID identifies the staged production.
	ShowID string

	// OutletID identifies the publication.
	OutletID string

	// Critic is the reviewer's name; nil when unattributed.
	Critic *string

	// RawRating is the unnormalized rating representation (star string
	// or letter grade); nil when the review carries no explicit rating.
	RawRating *string

	// Thumbs holds per-aggregator ternary verdicts, keyed by aggregator
	// name. Empty when no aggregator covers the review.
	Thumbs map[string]Thumb

	// Excerpt is review text or an aggregator excerpt; nil when no text
	// was captured.
	Excerpt *string

	// Score and Bucket form the persisted consensus value. They are
	// always written together via SetScore and are either both nil or
	// both present and mutually consistent.
	Score  *int
	Bucket *Bucket

	// State is the review's adjudication lifecycle position.
	State ReviewState

	// AttemptCount is incremented exactly once per AdjudicationAttempt
	// created for this review.
	AttemptCount int

	// History is the ordered sequence of adjudication attempts.
	History []AdjudicationAttempt

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Key returns the (show, outlet, critic) identity of the review.
func (r *Review) Key() ReviewKey {
	critic := ""
	if r.Critic != nil {
		critic = *r.Critic
	}
	return ReviewKey{ShowID: r.ShowID, OutletID: r.OutletID, Critic: critic}
}

// ReviewKey is the structural identity of a review. More than one
// record sharing a key is a data error surfaced by the auditor.
type ReviewKey struct {
	ShowID   string
	OutletID string
	Critic   string
}

// SetScore writes the score/bucket pair, enforcing the invariant that
// the bucket's interval contains the score. Score and bucket are never
// written independently.
func (r *Review) SetScore(table BucketTable, score int, bucket Bucket) error {
	iv, ok := table.Interval(bucket)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownBucket, bucket)
	}
	if !iv.Contains(score) {
		return fmt.Errorf("%w: score %d not in %s [%d,%d]", ErrScoreBucketMismatch, score, bucket, iv.Lo, iv.Hi)
	}
	r.Score = &score
	b := bucket
	r.Bucket = &b
	return nil
}

// Scored reports whether the review carries a persisted consensus value.
func (r *Review) Scored() bool { return r.Score != nil && r.Bucket != nil }

// RecordAttempt appends an attempt to the history and increments the
// attempt counter. This is the only way attempts enter a review.
func (r *Review) RecordAttempt(a AdjudicationAttempt) {
	r.History = append(r.History, a)
	r.AttemptCount++
}

// GroundTruth resolves the review's best ground-truth signal: the
// explicit rating when one normalizes, otherwise agreement between
// thumbs. The boolean is false when no usable signal exists.
func (r *Review) GroundTruth(n *Normalizer) (Rating, Signal, bool) {
	if r.RawRating != nil {
		if rating, ok := n.Normalize(*r.RawRating); ok {
			return rating, SignalAutomated, true
		}
	}
	if t, ok := r.AgreedThumb(); ok {
		if rating, ok := n.NormalizeThumb(t); ok {
			return rating, SignalThumb, true
		}
	}
	return Rating{}, "", false
}

// AgreedThumb returns the thumb value shared by all aggregators that
// rated this review. Disagreeing or absent thumbs yield no signal; a
// single thumb counts as (trivial) agreement only when it stands alone,
// since one curator is not corroboration for overriding purposes but is
// still usable as fallback ground truth.
func (r *Review) AgreedThumb() (Thumb, bool) {
	var agreed Thumb
	for _, t := range r.Thumbs {
		if agreed == "" {
			agreed = t
			continue
		}
		if t != agreed {
			return "", false
		}
	}
	return agreed, agreed != ""
}
