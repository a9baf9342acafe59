package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/marbeek/stagescore/internal/adjudicate"
	"github.com/marbeek/stagescore/internal/audit"
	"github.com/marbeek/stagescore/internal/domain"
	"github.com/marbeek/stagescore/internal/ensemble"
	"github.com/marbeek/stagescore/internal/ports"
)

// DefaultReviewConcurrency caps how many reviews are scored at once.
// Each review fans out to the full panel, so the effective call
// parallelism is this times the ensemble concurrency.
const DefaultReviewConcurrency = 4

// Pipeline wires the scoring stages against the persistence and oracle
// ports. One Pipeline serves one run configuration.
type Pipeline struct {
	store   ports.ReviewStore
	queue   ports.QueueStore
	scorer  *ensemble.Scorer
	oracles []ports.Oracle

	// adjudicator is the single oracle the state machine re-invokes.
	adjudicator ports.Oracle

	auditor *audit.Auditor
	machine *adjudicate.Machine
	norm    *domain.Normalizer
	logger  *slog.Logger

	reviewConcurrency int
}

// PipelineParams collects the dependencies for NewPipeline.
type PipelineParams struct {
	Store       ports.ReviewStore
	Queue       ports.QueueStore
	Scorer      *ensemble.Scorer
	Oracles     []ports.Oracle
	Adjudicator ports.Oracle
	Auditor     *audit.Auditor
	Machine     *adjudicate.Machine
	Normalizer  *domain.Normalizer
	Logger      *slog.Logger

	// ReviewConcurrency caps concurrent review scoring. Zero selects
	// DefaultReviewConcurrency.
	ReviewConcurrency int
}

// NewPipeline assembles a Pipeline from its parts.
func NewPipeline(p PipelineParams) (*Pipeline, error) {
	switch {
	case p.Store == nil:
		return nil, errors.New("pipeline requires a review store")
	case p.Queue == nil:
		return nil, errors.New("pipeline requires a queue store")
	case p.Scorer == nil:
		return nil, errors.New("pipeline requires an ensemble scorer")
	case p.Auditor == nil:
		return nil, errors.New("pipeline requires an auditor")
	case p.Machine == nil:
		return nil, errors.New("pipeline requires an adjudication machine")
	case p.Normalizer == nil:
		return nil, errors.New("pipeline requires a normalizer")
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	if p.ReviewConcurrency <= 0 {
		p.ReviewConcurrency = DefaultReviewConcurrency
	}
	return &Pipeline{
		store:             p.Store,
		queue:             p.Queue,
		scorer:            p.Scorer,
		oracles:           p.Oracles,
		adjudicator:       p.Adjudicator,
		auditor:           p.Auditor,
		machine:           p.Machine,
		norm:              p.Normalizer,
		logger:            p.Logger,
		reviewConcurrency: p.ReviewConcurrency,
	}, nil
}

// ScoreSummary reports one scoring run.
type ScoreSummary struct {
	Scored   int
	Rejected int
	Failed   int
	Skipped  int
	NoText   int
}

// scoreResult carries one review's outcome out of the fan-out. Each
// goroutine writes only its own index.
type scoreResult struct {
	consensus domain.Consensus
	err       error
}

// ScoreAll runs ensemble consensus over every review that has excerpt
// text and no persisted score. Reviews are scored concurrently;
// persistence happens sequentially afterwards so a failed run never
// leaves half a batch written.
func (p *Pipeline) ScoreAll(ctx context.Context, dryRun bool) (ScoreSummary, error) {
	var summary ScoreSummary

	reviews, err := p.store.ListReviews(ctx, ports.ReviewFilter{})
	if err != nil {
		return summary, fmt.Errorf("list reviews: %w", err)
	}

	var pending []*domain.Review
	for _, r := range reviews {
		switch {
		case r.Scored():
			summary.Skipped++
		case r.Excerpt == nil || *r.Excerpt == "":
			summary.NoText++
		default:
			pending = append(pending, r)
		}
	}

	results := make([]scoreResult, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.reviewConcurrency)
	for i, r := range pending {
		g.Go(func() error {
			consensus, err := p.scorer.Score(gctx, *r.Excerpt, p.scoringBackground(r), p.oracles)
			results[i] = scoreResult{consensus: consensus, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}

	for i, r := range pending {
		res := results[i]
		if res.err != nil {
			var rejErr *ensemble.RejectionError
			if errors.As(res.err, &rejErr) {
				summary.Rejected++
				p.logger.Warn("review rejected by panel",
					"review_id", r.ID, "reason", rejErr.Reason, "rejections", rejErr.Rejections)
			} else {
				summary.Failed++
				p.logger.Warn("scoring failed", "review_id", r.ID, "error", res.err)
			}
			continue
		}

		if err := r.SetScore(p.norm.Table(), res.consensus.Score, res.consensus.Bucket); err != nil {
			return summary, fmt.Errorf("apply consensus to review %s: %w", r.ID, err)
		}
		if !dryRun {
			if err := p.store.UpdateReview(ctx, r); err != nil {
				return summary, fmt.Errorf("persist review %s: %w", r.ID, err)
			}
		}
		summary.Scored++
	}

	return summary, nil
}

// scoringBackground gives the panel the production context without
// leaking any ground-truth signal that could anchor the judgment.
func (p *Pipeline) scoringBackground(r *domain.Review) string {
	return fmt.Sprintf("Theater review of production %q published by %q.", r.ShowID, r.OutletID)
}

// AuditSummary reports one audit run.
type AuditSummary struct {
	TierA  int
	TierB  int
	TierC  int
	Queued int
	Stats  audit.CorpusStats
}

// AuditAll audits the whole corpus against a single statistics
// snapshot, marks Tier-C reviews as queued, and writes the queue
// snapshot consumed by the adjudication run.
func (p *Pipeline) AuditAll(ctx context.Context, dryRun bool) (AuditSummary, []audit.Finding, error) {
	var summary AuditSummary

	reviews, err := p.store.ListReviews(ctx, ports.ReviewFilter{})
	if err != nil {
		return summary, nil, fmt.Errorf("list reviews: %w", err)
	}

	findings, stats := p.auditor.AuditCorpus(reviews)
	summary.Stats = stats

	var entries []ports.QueueEntry
	for i, finding := range findings {
		r := reviews[i]
		switch finding.Tier {
		case audit.TierA:
			summary.TierA++
		case audit.TierB:
			summary.TierB++
		case audit.TierC:
			summary.TierC++
			// Resolved reviews keep their terminal state even when a
			// fresh audit would flag them again.
			if r.State.Terminal() {
				continue
			}
			entries = append(entries, p.queueEntry(r, finding))
			summary.Queued++
			if r.State != domain.StateQueued {
				r.State = domain.StateQueued
				if !dryRun {
					if err := p.store.UpdateReview(ctx, r); err != nil {
						return summary, findings, fmt.Errorf("queue review %s: %w", r.ID, err)
					}
				}
			}
		}
	}

	if !dryRun {
		if err := p.queue.WriteQueue(ctx, entries); err != nil {
			return summary, findings, fmt.Errorf("write adjudication queue: %w", err)
		}
	}

	return summary, findings, nil
}

// queueEntry captures the disagreement as seen at audit time for the
// re-adjudication briefing.
func (p *Pipeline) queueEntry(r *domain.Review, finding audit.Finding) ports.QueueEntry {
	entry := ports.QueueEntry{
		ReviewID: r.ID,
		Tier:     string(finding.Tier),
	}
	for _, f := range finding.Flags {
		entry.Flags = append(entry.Flags, string(f))
	}
	if r.Score != nil {
		score := *r.Score
		entry.AutomatedScore = &score
	}
	if rating, _, ok := r.GroundTruth(p.norm); ok {
		gt := rating.Score
		entry.GroundTruthScore = &gt
	}
	return entry
}

// AdjudicateAll consumes the current queue snapshot through the state
// machine. Requeued reviews in the summary are a normal outcome.
func (p *Pipeline) AdjudicateAll(ctx context.Context, dryRun bool) (adjudicate.Summary, error) {
	entries, err := p.queue.ReadQueue(ctx)
	if err != nil {
		return adjudicate.Summary{}, fmt.Errorf("read adjudication queue: %w", err)
	}
	return p.machine.ProcessQueue(ctx, entries, dryRun)
}

// Report aggregates the corpus by bucket and lifecycle state.
type Report struct {
	Total    int
	Scored   int
	ByBucket map[domain.Bucket]int
	ByState  map[domain.ReviewState]int
}

// BuildReport summarizes the current corpus.
func (p *Pipeline) BuildReport(ctx context.Context) (Report, error) {
	return BuildCorpusReport(ctx, p.store)
}

// BuildCorpusReport is BuildReport against a bare store, for callers
// that have no scoring pipeline configured.
func BuildCorpusReport(ctx context.Context, store ports.ReviewStore) (Report, error) {
	reviews, err := store.ListReviews(ctx, ports.ReviewFilter{})
	if err != nil {
		return Report{}, fmt.Errorf("list reviews: %w", err)
	}

	report := Report{
		Total:    len(reviews),
		ByBucket: make(map[domain.Bucket]int),
		ByState:  make(map[domain.ReviewState]int),
	}
	for _, r := range reviews {
		state := r.State
		if state == "" {
			state = domain.StateUnflagged
		}
		report.ByState[state]++
		if r.Scored() {
			report.Scored++
			report.ByBucket[*r.Bucket]++
		}
	}
	return report, nil
}
