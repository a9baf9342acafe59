// Package adjudicate owns the lifecycle of flagged reviews: bounded
// re-judgment with a forced terminal state so the queue always drains.
package adjudicate

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/marbeek/stagescore/internal/domain"
	"github.com/marbeek/stagescore/internal/ports"
)

// DefaultMaxAttempts is the attempt ceiling: a review stuck at low
// confidence is forced to AutoAccepted after this many attempts.
const DefaultMaxAttempts = 3

// Config defines the state machine's tunables.
type Config struct {
	// MaxAttempts is the attempt ceiling. Zero selects
	// DefaultMaxAttempts. The ceiling is what guarantees termination:
	// every queued review either resolves confidently or is forced out
	// after a bounded number of attempts.
	MaxAttempts int `yaml:"max_attempts" validate:"omitempty,min=1,max=10"`
}

// Outcome describes what one adjudication pass did with a review.
type Outcome string

// Adjudication outcomes.
const (
	// OutcomeResolved means the fresh judgment had adequate confidence
	// and its score was persisted as authoritative.
	OutcomeResolved Outcome = "resolved"

	// OutcomeAutoAccepted means the attempt ceiling was reached and the
	// original automated score was kept as a forced resolution.
	OutcomeAutoAccepted Outcome = "auto_accepted"

	// OutcomeRequeued means the judgment was low confidence and the
	// review stays queued for another attempt.
	OutcomeRequeued Outcome = "requeued"

	// OutcomeSkipped means the review already carried a terminal
	// resolution and was not reprocessed.
	OutcomeSkipped Outcome = "skipped"
)

// Result reports one adjudication pass.
type Result struct {
	ReviewID string
	Outcome  Outcome

	// Attempt is the record created by this pass; nil for skips.
	Attempt *domain.AdjudicationAttempt
}

// Summary aggregates a queue run. Requeued reviews are a normal
// outcome, not an error.
type Summary struct {
	Resolved     int
	AutoAccepted int
	Requeued     int
	Skipped      int
	Failed       int
}

// Machine is the adjudication escalation state machine. It re-invokes a
// single oracle on flagged reviews, records immutable attempts, and
// forces termination at the attempt ceiling.
//
// Attempts for one review are serialized through a per-review lock so
// the counter can never double-increment; different reviews proceed
// independently.
type Machine struct {
	store   ports.ReviewStore
	oracle  ports.Oracle
	norm    *domain.Normalizer
	config  Config
	metrics ports.MetricsCollector
	tracer  trace.Tracer

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an adjudication Machine.
func New(store ports.ReviewStore, oracle ports.Oracle, norm *domain.Normalizer, config Config, metrics ports.MetricsCollector) *Machine {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultMaxAttempts
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &Machine{
		store:   store,
		oracle:  oracle,
		norm:    norm,
		config:  config,
		metrics: metrics,
		tracer:  otel.Tracer("adjudication-machine"),
		locks:   make(map[string]*sync.Mutex),
	}
}

// ProcessQueue runs one adjudication pass over a queue snapshot.
// Per-review failures are counted and do not abort the run. With dryRun
// set, all computation happens but nothing is persisted.
func (m *Machine) ProcessQueue(ctx context.Context, entries []ports.QueueEntry, dryRun bool) (Summary, error) {
	var summary Summary
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		result, err := m.Adjudicate(ctx, entry, dryRun)
		if err != nil {
			summary.Failed++
			continue
		}
		switch result.Outcome {
		case OutcomeResolved:
			summary.Resolved++
		case OutcomeAutoAccepted:
			summary.AutoAccepted++
		case OutcomeRequeued:
			summary.Requeued++
		case OutcomeSkipped:
			summary.Skipped++
		}
	}
	m.metrics.RecordGauge("adjudication_queue_remaining", float64(summary.Requeued), nil)
	return summary, nil
}

// Adjudicate runs a single re-judgment attempt for one queued review.
//
// The queue snapshot may lag the store, so the review's current state
// is re-checked under the per-review lock before anything happens:
// terminal reviews are skipped, never reprocessed.
func (m *Machine) Adjudicate(ctx context.Context, entry ports.QueueEntry, dryRun bool) (Result, error) {
	unlock := m.lockReview(entry.ReviewID)
	defer unlock()

	ctx, span := m.tracer.Start(ctx, "Machine.Adjudicate",
		trace.WithAttributes(attribute.String("review.id", entry.ReviewID)),
	)
	defer span.End()

	review, err := m.store.GetReview(ctx, entry.ReviewID)
	if err != nil {
		span.RecordError(err)
		return Result{}, fmt.Errorf("load review %s: %w", entry.ReviewID, err)
	}

	if review.State.Terminal() {
		span.SetAttributes(attribute.String("adjudication.outcome", string(OutcomeSkipped)))
		return Result{ReviewID: review.ID, Outcome: OutcomeSkipped}, nil
	}

	text := ""
	if review.Excerpt != nil {
		text = *review.Excerpt
	}

	judgment, rejection, err := m.oracle.Judge(ctx, text, m.briefing(review, entry))
	if err != nil {
		// Transport failures create no attempt and no increment; the
		// review simply stays queued for the next run.
		span.RecordError(err)
		return Result{}, fmt.Errorf("adjudicate review %s: %w", review.ID, err)
	}
	if rejection != nil {
		err := fmt.Errorf("adjudicate review %s: oracle rejected: %s", review.ID, rejection.Reason)
		span.RecordError(err)
		return Result{}, err
	}

	attempt := domain.AdjudicationAttempt{
		ID:         ulid.Make().String(),
		At:         time.Now().UTC(),
		Bucket:     judgment.Bucket,
		Score:      judgment.Score,
		Confidence: judgment.Confidence,
		SidedWith:  m.sidedWith(review, judgment),
		Rationale:  judgment.Rationale,
	}

	outcome := OutcomeRequeued
	switch {
	case judgment.Confidence.Adequate():
		if err := review.SetScore(m.norm.Table(), judgment.Score, judgment.Bucket); err != nil {
			span.RecordError(err)
			return Result{}, fmt.Errorf("persist adjudicated score for %s: %w", review.ID, err)
		}
		review.State = domain.StateResolvedConfident
		review.RecordAttempt(attempt)
		outcome = OutcomeResolved

	case review.AttemptCount+1 >= m.config.MaxAttempts:
		// Ceiling reached: force the terminal state, keeping the
		// ORIGINAL automated score rather than the low-confidence
		// attempt's score.
		attempt.Forced = true
		attempt.Rationale = forcedNote(attempt.Rationale, m.config.MaxAttempts)
		review.State = domain.StateAutoAccepted
		review.RecordAttempt(attempt)
		outcome = OutcomeAutoAccepted

	default:
		review.State = domain.StateQueued
		review.RecordAttempt(attempt)
	}

	if !dryRun {
		if err := m.store.UpdateReview(ctx, review); err != nil {
			span.RecordError(err)
			return Result{}, fmt.Errorf("update review %s: %w", review.ID, err)
		}
	}

	span.SetAttributes(
		attribute.String("adjudication.outcome", string(outcome)),
		attribute.Int("adjudication.attempts", review.AttemptCount),
	)
	m.metrics.RecordCounter("adjudication_outcomes_total", 1, map[string]string{"outcome": string(outcome)})

	return Result{ReviewID: review.ID, Outcome: outcome, Attempt: &attempt}, nil
}

// briefing builds the disagreement context handed to the oracle: the
// automated score, the ground-truth signals, and why the review was
// flagged.
func (m *Machine) briefing(review *domain.Review, entry ports.QueueEntry) string {
	var b strings.Builder
	b.WriteString("This review was flagged for re-adjudication.")
	if review.Score != nil {
		fmt.Fprintf(&b, " Automated consensus score: %d.", *review.Score)
	} else {
		b.WriteString(" No automated score could be produced.")
	}
	if rating, signal, ok := review.GroundTruth(m.norm); ok {
		fmt.Fprintf(&b, " Ground truth (%s): %d.", signal, rating.Score)
	}
	if len(entry.Flags) > 0 {
		fmt.Fprintf(&b, " Flags: %s.", strings.Join(entry.Flags, ", "))
	}
	return b.String()
}

// sidedWith records which ground-truth signal the attempt's score sits
// closer to. With no thumb signal the attempt trivially sides with the
// automated analysis.
func (m *Machine) sidedWith(review *domain.Review, judgment domain.Judgment) domain.Signal {
	thumb, ok := review.AgreedThumb()
	if !ok {
		return domain.SignalAutomated
	}
	thumbRating, ok := m.norm.NormalizeThumb(thumb)
	if !ok {
		return domain.SignalAutomated
	}
	if review.Score == nil {
		return domain.SignalThumb
	}
	thumbDist := math.Abs(float64(judgment.Score - thumbRating.Score))
	autoDist := math.Abs(float64(judgment.Score - *review.Score))
	if thumbDist < autoDist {
		return domain.SignalThumb
	}
	return domain.SignalAutomated
}

// lockReview serializes adjudication per review ID.
func (m *Machine) lockReview(id string) func() {
	m.mu.Lock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	m.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func forcedNote(rationale string, ceiling int) string {
	note := fmt.Sprintf("[forced resolution: attempt ceiling of %d reached; original automated score retained]", ceiling)
	if rationale == "" {
		return note
	}
	return rationale + " " + note
}
