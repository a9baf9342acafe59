package adjudicate

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marbeek/stagescore/internal/domain"
	"github.com/marbeek/stagescore/internal/ports"
)

// memStore is an in-memory ReviewStore that clones on read and write so
// tests observe only what was explicitly persisted.
type memStore struct {
	mu      sync.Mutex
	reviews map[string]*domain.Review
	updates int
}

var _ ports.ReviewStore = (*memStore)(nil)

func newMemStore(reviews ...*domain.Review) *memStore {
	s := &memStore{reviews: make(map[string]*domain.Review)}
	for _, r := range reviews {
		s.reviews[r.ID] = cloneReview(r)
	}
	return s
}

func cloneReview(r *domain.Review) *domain.Review {
	c := *r
	c.History = append([]domain.AdjudicationAttempt(nil), r.History...)
	if r.Score != nil {
		score := *r.Score
		c.Score = &score
	}
	if r.Bucket != nil {
		bucket := *r.Bucket
		c.Bucket = &bucket
	}
	return &c
}

func (s *memStore) CreateReview(_ context.Context, r *domain.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reviews[r.ID] = cloneReview(r)
	return nil
}

func (s *memStore) GetReview(_ context.Context, id string) (*domain.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reviews[id]
	if !ok {
		return nil, domain.ErrReviewNotFound
	}
	return cloneReview(r), nil
}

func (s *memStore) GetReviewByKey(_ context.Context, key domain.ReviewKey) (*domain.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reviews {
		if r.Key() == key {
			return cloneReview(r), nil
		}
	}
	return nil, domain.ErrReviewNotFound
}

func (s *memStore) ListReviews(_ context.Context, _ ports.ReviewFilter) ([]*domain.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Review, 0, len(s.reviews))
	for _, r := range s.reviews {
		out = append(out, cloneReview(r))
	}
	return out, nil
}

func (s *memStore) UpdateReview(_ context.Context, r *domain.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reviews[r.ID] = cloneReview(r)
	s.updates++
	return nil
}

func (s *memStore) Migrate(context.Context) error { return nil }
func (s *memStore) Close() error                  { return nil }

// scriptOracle replays a fixed sequence of outcomes; the last entry
// repeats once the script runs out.
type scriptOracle struct {
	judgments []domain.Judgment
	rejection *domain.Rejection
	err       error
	calls     int
}

var _ ports.Oracle = (*scriptOracle)(nil)

func (o *scriptOracle) Name() string { return "script" }

func (o *scriptOracle) Judge(context.Context, string, string) (domain.Judgment, *domain.Rejection, error) {
	o.calls++
	if o.err != nil {
		return domain.Judgment{}, nil, o.err
	}
	if o.rejection != nil {
		return domain.Judgment{}, o.rejection, nil
	}
	i := o.calls - 1
	if i >= len(o.judgments) {
		i = len(o.judgments) - 1
	}
	return o.judgments[i], nil, nil
}

func judgment(t *testing.T, score int, conf domain.Confidence) domain.Judgment {
	t.Helper()
	j, err := domain.NewJudgment(domain.BucketTableV1, "script", domain.BucketTableV1.BucketFor(score), score, conf, "because")
	require.NoError(t, err)
	return j
}

func queuedReview(t *testing.T, id string, score int) *domain.Review {
	t.Helper()
	r := &domain.Review{ID: id, ShowID: "hamlet", OutletID: "gazette", State: domain.StateQueued}
	if score >= 0 {
		require.NoError(t, r.SetScore(domain.BucketTableV1, score, domain.BucketTableV1.BucketFor(score)))
	}
	return r
}

func newTestMachine(t *testing.T, store ports.ReviewStore, oracle ports.Oracle, config Config) *Machine {
	t.Helper()
	norm, err := domain.NewNormalizer(domain.BucketTableV1, 5)
	require.NoError(t, err)
	return New(store, oracle, norm, config, nil)
}

func TestMachine_AdequateConfidenceResolves(t *testing.T) {
	store := newMemStore(queuedReview(t, "r1", 40))
	oracle := &scriptOracle{judgments: []domain.Judgment{judgment(t, 75, domain.ConfidenceHigh)}}
	m := newTestMachine(t, store, oracle, Config{})

	result, err := m.Adjudicate(context.Background(), ports.QueueEntry{ReviewID: "r1"}, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeResolved, result.Outcome)

	r, err := store.GetReview(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateResolvedConfident, r.State)
	require.NotNil(t, r.Score)
	assert.Equal(t, 75, *r.Score)
	assert.Equal(t, 1, r.AttemptCount)
	require.Len(t, r.History, 1)
	assert.False(t, r.History[0].Forced)
}

func TestMachine_LowConfidenceHitsCeilingAtExactlyThreeAttempts(t *testing.T) {
	store := newMemStore(queuedReview(t, "r1", 40))
	oracle := &scriptOracle{judgments: []domain.Judgment{judgment(t, 75, domain.ConfidenceLow)}}
	m := newTestMachine(t, store, oracle, Config{MaxAttempts: 3})

	ctx := context.Background()
	entry := ports.QueueEntry{ReviewID: "r1"}

	for i := 1; i <= 2; i++ {
		result, err := m.Adjudicate(ctx, entry, false)
		require.NoError(t, err)
		assert.Equal(t, OutcomeRequeued, result.Outcome, "attempt %d", i)
	}

	result, err := m.Adjudicate(ctx, entry, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAutoAccepted, result.Outcome)

	r, err := store.GetReview(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateAutoAccepted, r.State)
	assert.Equal(t, 3, r.AttemptCount)
	require.Len(t, r.History, 3)

	// The forced resolution keeps the original automated score, not the
	// low-confidence attempt's 75.
	require.NotNil(t, r.Score)
	assert.Equal(t, 40, *r.Score)

	last := r.History[2]
	assert.True(t, last.Forced)
	assert.Contains(t, last.Rationale, "attempt ceiling")

	// A fourth pass must skip: the state is terminal, never reprocessed.
	result, err = m.Adjudicate(ctx, entry, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, result.Outcome)
	assert.Equal(t, 3, oracle.calls)
}

func TestMachine_UnscoredReviewStaysUnscoredWhenForced(t *testing.T) {
	store := newMemStore(queuedReview(t, "r1", -1))
	oracle := &scriptOracle{judgments: []domain.Judgment{judgment(t, 75, domain.ConfidenceLow)}}
	m := newTestMachine(t, store, oracle, Config{MaxAttempts: 1})

	result, err := m.Adjudicate(context.Background(), ports.QueueEntry{ReviewID: "r1"}, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAutoAccepted, result.Outcome)

	r, err := store.GetReview(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateAutoAccepted, r.State)
	assert.Nil(t, r.Score)
}

func TestMachine_TransportErrorCreatesNoAttempt(t *testing.T) {
	store := newMemStore(queuedReview(t, "r1", 40))
	oracle := &scriptOracle{err: errors.New("connection reset")}
	m := newTestMachine(t, store, oracle, Config{})

	_, err := m.Adjudicate(context.Background(), ports.QueueEntry{ReviewID: "r1"}, false)
	require.Error(t, err)

	r, getErr := store.GetReview(context.Background(), "r1")
	require.NoError(t, getErr)
	assert.Equal(t, domain.StateQueued, r.State)
	assert.Zero(t, r.AttemptCount)
	assert.Empty(t, r.History)
}

func TestMachine_RejectionCreatesNoAttempt(t *testing.T) {
	store := newMemStore(queuedReview(t, "r1", 40))
	oracle := &scriptOracle{rejection: &domain.Rejection{OracleName: "script", Reason: "wrong production"}}
	m := newTestMachine(t, store, oracle, Config{})

	_, err := m.Adjudicate(context.Background(), ports.QueueEntry{ReviewID: "r1"}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wrong production")

	r, getErr := store.GetReview(context.Background(), "r1")
	require.NoError(t, getErr)
	assert.Zero(t, r.AttemptCount)
}

func TestMachine_TerminalReviewIsSkipped(t *testing.T) {
	resolved := queuedReview(t, "r1", 40)
	resolved.State = domain.StateResolvedConfident
	store := newMemStore(resolved)
	oracle := &scriptOracle{judgments: []domain.Judgment{judgment(t, 75, domain.ConfidenceHigh)}}
	m := newTestMachine(t, store, oracle, Config{})

	result, err := m.Adjudicate(context.Background(), ports.QueueEntry{ReviewID: "r1"}, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, result.Outcome)
	assert.Nil(t, result.Attempt)
	assert.Zero(t, oracle.calls)
}

func TestMachine_DryRunPersistsNothing(t *testing.T) {
	store := newMemStore(queuedReview(t, "r1", 40))
	oracle := &scriptOracle{judgments: []domain.Judgment{judgment(t, 75, domain.ConfidenceHigh)}}
	m := newTestMachine(t, store, oracle, Config{})

	result, err := m.Adjudicate(context.Background(), ports.QueueEntry{ReviewID: "r1"}, true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeResolved, result.Outcome)
	assert.Zero(t, store.updates)

	r, err := store.GetReview(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateQueued, r.State)
	assert.Equal(t, 40, *r.Score)
	assert.Zero(t, r.AttemptCount)
}

func TestMachine_SidedWith(t *testing.T) {
	tests := []struct {
		name      string
		score     int
		judgment  int
		thumbs    map[string]domain.Thumb
		sidedWith domain.Signal
	}{
		{
			name:      "judgment near thumb sides with thumb",
			score:     40,
			judgment:  75,
			thumbs:    map[string]domain.Thumb{"agg": domain.ThumbUp}, // 78
			sidedWith: domain.SignalThumb,
		},
		{
			name:      "judgment near automated score sides with automated",
			score:     40,
			judgment:  42,
			thumbs:    map[string]domain.Thumb{"agg": domain.ThumbUp},
			sidedWith: domain.SignalAutomated,
		},
		{
			name:      "no thumb signal defaults to automated",
			score:     40,
			judgment:  75,
			sidedWith: domain.SignalAutomated,
		},
		{
			name:     "disagreeing thumbs yield no thumb signal",
			score:    40,
			judgment: 75,
			thumbs: map[string]domain.Thumb{
				"agg1": domain.ThumbUp,
				"agg2": domain.ThumbDown,
			},
			sidedWith: domain.SignalAutomated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := queuedReview(t, "r1", tt.score)
			r.Thumbs = tt.thumbs
			store := newMemStore(r)
			oracle := &scriptOracle{judgments: []domain.Judgment{judgment(t, tt.judgment, domain.ConfidenceHigh)}}
			m := newTestMachine(t, store, oracle, Config{})

			result, err := m.Adjudicate(context.Background(), ports.QueueEntry{ReviewID: "r1"}, false)
			require.NoError(t, err)
			require.NotNil(t, result.Attempt)
			assert.Equal(t, tt.sidedWith, result.Attempt.SidedWith)
		})
	}
}

func TestMachine_ProcessQueueSummary(t *testing.T) {
	resolved := queuedReview(t, "done", 40)
	resolved.State = domain.StateAutoAccepted
	store := newMemStore(
		queuedReview(t, "r1", 40),
		queuedReview(t, "r2", 60),
		resolved,
	)
	oracle := &scriptOracle{judgments: []domain.Judgment{
		judgment(t, 75, domain.ConfidenceHigh),
		judgment(t, 60, domain.ConfidenceLow),
		judgment(t, 60, domain.ConfidenceLow),
	}}
	m := newTestMachine(t, store, oracle, Config{MaxAttempts: 3})

	entries := []ports.QueueEntry{
		{ReviewID: "r1"},
		{ReviewID: "r2"},
		{ReviewID: "done"},
		{ReviewID: "missing"},
	}
	summary, err := m.ProcessQueue(context.Background(), entries, false)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Resolved)
	assert.Equal(t, 1, summary.Requeued)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Failed)
	assert.Zero(t, summary.AutoAccepted)
}
