// Package ensemble merges independent oracle judgments over the same
// review text into a single consensus judgment.
package ensemble

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/marbeek/stagescore/internal/domain"
	"github.com/marbeek/stagescore/internal/ports"
)

// Default configuration values for the consensus scorer.
const (
	// DefaultMaxConcurrency bounds simultaneous oracle invocations.
	DefaultMaxConcurrency = 5

	// DefaultOracleTimeout is applied per oracle call when the config
	// does not specify one. A timed-out oracle is a missing vote, not a
	// consensus failure.
	DefaultOracleTimeout = 60 * time.Second
)

// Errors returned by the consensus scorer. Callers must not substitute
// a default score for either condition.
var (
	// ErrNoOracles is returned when Score is called with an empty
	// oracle set.
	ErrNoOracles = errors.New("no oracles provided")

	// ErrAllOraclesFailed is returned when every oracle failed and none
	// produced a judgment or rejection.
	ErrAllOraclesFailed = errors.New("all oracles failed")
)

// RejectionError reports that the oracle ensemble rejected the text as
// unscoreable. It carries the first rejection's reason in oracle input
// order so the outcome is deterministic.
type RejectionError struct {
	// OracleName identifies the first rejecting oracle.
	OracleName string

	// Reason is the first rejection's explanation.
	Reason string

	// Rejections counts how many oracles rejected.
	Rejections int
}

// Error implements the error interface.
func (e *RejectionError) Error() string {
	return fmt.Sprintf("ensemble rejected text (%d rejections, first from %s): %s",
		e.Rejections, e.OracleName, e.Reason)
}

// Config defines the tunables for a consensus scoring run.
type Config struct {
	// OracleTimeout bounds each individual oracle invocation. Zero
	// selects DefaultOracleTimeout.
	OracleTimeout time.Duration `yaml:"oracle_timeout"`

	// MaxConcurrency limits simultaneous oracle calls.
	MaxConcurrency int `yaml:"max_concurrency" validate:"omitempty,min=1,max=20"`
}

// Scorer invokes N independent oracles concurrently on the same review
// text and merges their judgments into one consensus judgment using the
// shared bucket table. The merge is a pure vote tally plus mean, so it
// is commutative and independent of oracle completion order.
//
// The scorer is stateless and safe for concurrent use.
type Scorer struct {
	table   domain.BucketTable
	config  Config
	metrics ports.MetricsCollector
	tracer  trace.Tracer
}

// NewScorer creates a consensus Scorer over the given bucket table.
// A nil metrics collector disables metrics.
func NewScorer(table domain.BucketTable, config Config, metrics ports.MetricsCollector) *Scorer {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = DefaultMaxConcurrency
	}
	if config.OracleTimeout <= 0 {
		config.OracleTimeout = DefaultOracleTimeout
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &Scorer{
		table:   table,
		config:  config,
		metrics: metrics,
		tracer:  otel.Tracer("ensemble-scorer"),
	}
}

// Score invokes every oracle on the review text and merges the results.
//
// Outcome mapping:
//   - a domain.Consensus when at least one judgment survived and fewer
//     than two oracles rejected,
//   - a *RejectionError when at least two oracles rejected, or when the
//     only substantive responses were rejections,
//   - ErrAllOraclesFailed when no oracle produced anything usable.
//
// A single rejection among three or more oracles is a missing vote, not
// a veto. Transport failures and timeouts are absorbed as missing votes
// unless nothing else survives.
func (s *Scorer) Score(ctx context.Context, text, background string, oracles []ports.Oracle) (domain.Consensus, error) {
	if len(oracles) == 0 {
		return domain.Consensus{}, ErrNoOracles
	}

	ctx, span := s.tracer.Start(ctx, "Scorer.Score",
		trace.WithAttributes(
			attribute.Int("ensemble.oracles", len(oracles)),
			attribute.Int("ensemble.text_length", len(text)),
		),
	)
	defer span.End()

	start := time.Now()

	// Results are collected by input index: no shared mutable state
	// between invocations, and the final pass over the slices is
	// deterministic regardless of completion order.
	judgments := make([]*domain.Judgment, len(oracles))
	rejections := make([]*domain.Rejection, len(oracles))
	failures := make([]error, len(oracles))

	g := &errgroup.Group{}
	g.SetLimit(s.config.MaxConcurrency)

	for i, oracle := range oracles {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, s.config.OracleTimeout)
			defer cancel()

			j, rej, err := oracle.Judge(callCtx, text, background)
			switch {
			case err != nil:
				failures[i] = fmt.Errorf("oracle %s: %w", oracle.Name(), err)
				s.metrics.RecordCounter("oracle_failures_total", 1, map[string]string{"oracle": oracle.Name()})
			case rej != nil:
				rejections[i] = rej
				s.metrics.RecordCounter("oracle_rejections_total", 1, map[string]string{"oracle": oracle.Name()})
			default:
				judgments[i] = &j
			}
			return nil
		})
	}
	// Individual failures never cancel the group; the consensus proceeds
	// with whatever subset completed.
	_ = g.Wait()

	s.metrics.RecordLatency("ensemble_score", time.Since(start), map[string]string{"oracles": fmt.Sprint(len(oracles))})

	var (
		completed     []domain.Judgment
		rejectedCount int
		firstRejected *domain.Rejection
	)
	for i := range oracles {
		if judgments[i] != nil {
			completed = append(completed, *judgments[i])
		}
		if rejections[i] != nil {
			rejectedCount++
			if firstRejected == nil {
				firstRejected = rejections[i]
			}
		}
	}

	span.SetAttributes(
		attribute.Int("ensemble.judgments", len(completed)),
		attribute.Int("ensemble.rejections", rejectedCount),
	)

	if rejectedCount >= 2 || (len(completed) == 0 && rejectedCount > 0) {
		err := &RejectionError{
			OracleName: firstRejected.OracleName,
			Reason:     firstRejected.Reason,
			Rejections: rejectedCount,
		}
		span.RecordError(err)
		return domain.Consensus{}, err
	}

	if len(completed) == 0 {
		err := ErrAllOraclesFailed
		for _, f := range failures {
			if f != nil {
				err = fmt.Errorf("%w: %v", ErrAllOraclesFailed, f)
				break
			}
		}
		span.RecordError(err)
		return domain.Consensus{}, err
	}

	consensus := s.merge(completed)
	s.metrics.RecordCounter("consensus_total", 1, map[string]string{"bucket": string(consensus.Bucket)})
	return consensus, nil
}

// merge tallies bucket votes and computes the consensus score. Ties in
// vote count break on combined confidence weight, then on the bucket
// whose midpoint is closest to the mean of all raw scores. Iteration
// follows the fixed bucket order, so the result is deterministic for
// any permutation of the input.
func (s *Scorer) merge(judgments []domain.Judgment) domain.Consensus {
	votes := make(map[domain.Bucket][]domain.Judgment)
	scoreSum := 0
	for _, j := range judgments {
		votes[j.Bucket] = append(votes[j.Bucket], j)
		scoreSum += j.Score
	}
	overallMean := float64(scoreSum) / float64(len(judgments))

	var (
		winner     domain.Bucket
		winnerSet  bool
		bestVotes  int
		bestWeight int
		bestDist   float64
	)
	for _, b := range s.table.Buckets() {
		voters, ok := votes[b]
		if !ok {
			continue
		}
		weight := 0
		for _, j := range voters {
			weight += j.Confidence.Weight()
		}
		iv, _ := s.table.Interval(b)
		dist := math.Abs(iv.Midpoint() - overallMean)

		better := false
		switch {
		case !winnerSet:
			better = true
		case len(voters) != bestVotes:
			better = len(voters) > bestVotes
		case weight != bestWeight:
			better = weight > bestWeight
		default:
			better = dist < bestDist
		}
		if better {
			winner = b
			winnerSet = true
			bestVotes = len(voters)
			bestWeight = weight
			bestDist = dist
		}
	}

	winning := votes[winner]
	sum := 0
	for _, j := range winning {
		sum += j.Score
	}
	mean := int(math.Round(float64(sum) / float64(len(winning))))
	score, _ := s.table.Clamp(winner, mean)

	return domain.Consensus{
		Bucket:    winner,
		Score:     score,
		Votes:     len(winning),
		Judgments: judgments,
	}
}
