package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marbeek/stagescore/internal/domain"
)

func newTestAuditor(t *testing.T) *Auditor {
	t.Helper()
	norm, err := domain.NewNormalizer(domain.BucketTableV1, 5)
	require.NoError(t, err)
	return New(norm, Config{}, nil)
}

func strPtr(s string) *string { return &s }

func scoredReview(t *testing.T, id string, score int, rawRating string) *domain.Review {
	t.Helper()
	r := &domain.Review{ID: id, ShowID: "hamlet", OutletID: "gazette", Critic: strPtr("critic-" + id)}
	require.NoError(t, r.SetScore(domain.BucketTableV1, score, domain.BucketTableV1.BucketFor(score)))
	if rawRating != "" {
		r.RawRating = strPtr(rawRating)
	}
	return r
}

func TestAuditor_HighDisagreement(t *testing.T) {
	a := newTestAuditor(t)
	stats := CorpusStats{Count: 30, Mean: -5, StdDev: 8}

	// Ground truth 90 ("4.5/5") vs automated 40: diff = -50,
	// abs(-50 - (-5)) = 45 > 2*8.
	r := scoredReview(t, "r1", 40, "4.5/5")
	finding := a.AuditReview(r, stats, false)

	require.NotNil(t, finding.Diff)
	assert.InDelta(t, -50.0, *finding.Diff, 0.001)
	assert.True(t, finding.Has(FlagHighDisagreement))
	assert.Equal(t, TierC, finding.Tier)
}

func TestAuditor_TierA(t *testing.T) {
	a := newTestAuditor(t)
	stats := CorpusStats{Count: 30, Mean: 0, StdDev: 8}

	// Automated 78 vs ground truth 80 ("4/5"): diff -2, no flags.
	r := scoredReview(t, "r1", 78, "4/5")
	finding := a.AuditReview(r, stats, false)

	assert.Empty(t, finding.Flags)
	assert.Equal(t, TierA, finding.Tier)
}

func TestAuditor_TierB_DeviationBeyondToleranceButNotOutlier(t *testing.T) {
	a := newTestAuditor(t)
	stats := CorpusStats{Count: 30, Mean: 0, StdDev: 8}

	// diff = 68 - 80 = -12: beyond the Tier-A tolerance of 5 but inside
	// the 2-sigma band.
	r := scoredReview(t, "r1", 68, "4/5")
	finding := a.AuditReview(r, stats, false)

	assert.Empty(t, finding.Flags)
	assert.Equal(t, TierB, finding.Tier)
}

func TestAuditor_NoGroundTruthIsTierB(t *testing.T) {
	a := newTestAuditor(t)
	r := scoredReview(t, "r1", 78, "")

	finding := a.AuditReview(r, CorpusStats{Count: 30, StdDev: 8}, false)
	assert.Nil(t, finding.Diff)
	assert.Empty(t, finding.Flags)
	assert.Equal(t, TierB, finding.Tier)
}

func TestAuditor_UnscoredIsTierC(t *testing.T) {
	a := newTestAuditor(t)
	r := &domain.Review{ID: "r1", ShowID: "hamlet", OutletID: "gazette"}

	finding := a.AuditReview(r, CorpusStats{}, false)
	assert.True(t, finding.Has(FlagUnscored))
	assert.Equal(t, TierC, finding.Tier)
}

func TestAuditor_AggregatorConflict(t *testing.T) {
	a := newTestAuditor(t)

	tests := []struct {
		name     string
		score    int
		excerpt  string
		conflict bool
	}{
		{
			name:     "embedded star fraction contradicts stored score",
			score:    40,
			excerpt:  "A dazzling night out. 4/5 stars from our critic.",
			conflict: true,
		},
		{
			name:     "embedded grade marker contradicts stored score",
			score:    95,
			excerpt:  "The magazine settled on a grade: C+ for this revival.",
			conflict: true,
		},
		{
			name:     "embedded rating agrees within tolerance",
			score:    75,
			excerpt:  "Solid work, 4 out of 5 stars.",
			conflict: false,
		},
		{
			name:     "incidental capital letters are not grades",
			score:    40,
			excerpt:  "Directed by F. Murray Abraham with A-list energy.",
			conflict: false,
		},
		{
			name:     "bare numerals are not star ratings",
			score:    40,
			excerpt:  "The ensemble of 5 never flags across 3 hours.",
			conflict: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := scoredReview(t, "r1", tt.score, "")
			r.Excerpt = strPtr(tt.excerpt)
			finding := a.AuditReview(r, CorpusStats{}, false)
			assert.Equal(t, tt.conflict, finding.Has(FlagAggregatorConflict))
			if tt.conflict {
				assert.Equal(t, TierC, finding.Tier)
			}
		})
	}
}

func TestAuditor_DuplicateDetection(t *testing.T) {
	a := newTestAuditor(t)

	dupe1 := scoredReview(t, "r1", 78, "4/5")
	dupe1.Critic = strPtr("Ben Brantley")
	dupe2 := scoredReview(t, "r2", 80, "4/5")
	dupe2.Critic = strPtr("ben brantly") // case fold + one edit away
	distinct := scoredReview(t, "r3", 78, "4/5")
	distinct.Critic = strPtr("Jesse Green")

	findings, _ := a.AuditCorpus([]*domain.Review{dupe1, dupe2, distinct})
	require.Len(t, findings, 3)

	assert.True(t, findings[0].Has(FlagDuplicate))
	assert.True(t, findings[1].Has(FlagDuplicate))
	assert.False(t, findings[2].Has(FlagDuplicate))

	// A lone duplicate flag is minor: spot-check, not adjudication.
	assert.Equal(t, TierB, findings[0].Tier)
}

func TestAuditor_DuplicateWithConflictForcesTierC(t *testing.T) {
	a := newTestAuditor(t)

	// One record in the duplicate pair also carries a conflicting
	// excerpt, stacking a serious flag on top of the minor one.
	r1 := scoredReview(t, "r1", 40, "")
	r1.Critic = strPtr("Same Critic")
	r1.Excerpt = strPtr("Still, 4/5 stars overall.")
	r2 := scoredReview(t, "r2", 40, "")
	r2.Critic = strPtr("Same Critic")

	findings, _ := a.AuditCorpus([]*domain.Review{r1, r2})
	assert.Equal(t, TierC, findings[0].Tier)
	assert.Equal(t, TierB, findings[1].Tier)
}

func TestAuditor_SnapshotSkipsMissingSignals(t *testing.T) {
	a := newTestAuditor(t)

	withBoth := scoredReview(t, "r1", 70, "4/5")     // diff -10
	alsoBoth := scoredReview(t, "r2", 84, "4/5")     // diff +4
	noRating := scoredReview(t, "r3", 84, "")        // no ground truth
	unscored := &domain.Review{ID: "r4", RawRating: strPtr("4/5")}
	badRating := scoredReview(t, "r5", 84, "superb") // unparseable

	stats := a.Snapshot([]*domain.Review{withBoth, alsoBoth, noRating, unscored, badRating})
	assert.Equal(t, 2, stats.Count)
	assert.InDelta(t, -3.0, stats.Mean, 0.001)
}
