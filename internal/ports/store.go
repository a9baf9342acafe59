package ports

import (
	"context"

	"github.com/marbeek/stagescore/internal/domain"
)

// ReviewFilter narrows ListReviews results. Zero values match all.
type ReviewFilter struct {
	ShowID   string
	OutletID string
	State    domain.ReviewState
}

// ReviewStore is the persistence boundary for review records. One
// record exists per (show, outlet, critic) key. Implementations must
// map missing optional fields to nil ("unknown"), never to zero values.
type ReviewStore interface {
	CreateReview(ctx context.Context, r *domain.Review) error
	GetReview(ctx context.Context, id string) (*domain.Review, error)
	GetReviewByKey(ctx context.Context, key domain.ReviewKey) (*domain.Review, error)
	ListReviews(ctx context.Context, filter ReviewFilter) ([]*domain.Review, error)

	// UpdateReview persists score/bucket, state, attempt counter, and
	// history together so a review is never observed half-written.
	UpdateReview(ctx context.Context, r *domain.Review) error

	// Lifecycle.
	Migrate(ctx context.Context) error
	Close() error
}

// QueueEntry is one Tier-C review captured in an audit-time snapshot.
// The snapshot may lag the store; consumers must re-check the review's
// current resolution state before acting on an entry.
type QueueEntry struct {
	ReviewID string   `yaml:"review_id"`
	Tier     string   `yaml:"tier"`
	Flags    []string `yaml:"flags"`

	// AutomatedScore and GroundTruthScore capture the disagreement as
	// seen at audit time, for the re-adjudication briefing.
	AutomatedScore   *int `yaml:"automated_score,omitempty"`
	GroundTruthScore *int `yaml:"ground_truth_score,omitempty"`
}

// QueueStore reads and writes batch snapshots of flagged reviews.
// A snapshot is consumed once per adjudication run.
type QueueStore interface {
	WriteQueue(ctx context.Context, entries []QueueEntry) error
	ReadQueue(ctx context.Context) ([]QueueEntry, error)
}
