package audit

import (
	"math"
	"strings"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"

	"github.com/marbeek/stagescore/internal/domain"
	"github.com/marbeek/stagescore/internal/ports"
)

// foldCaser is a package-level Unicode case folder so duplicate keys
// compare the same way regardless of source casing.
var foldCaser = cases.Fold()

// Flag marks one audit concern on a review.
type Flag string

// Audit flags, from most to least serious.
const (
	// FlagHighDisagreement marks a consensus score that deviates from
	// ground truth by more than the population threshold.
	FlagHighDisagreement Flag = "high_disagreement"

	// FlagAggregatorConflict marks an aggregator excerpt whose embedded
	// rating contradicts the stored score.
	FlagAggregatorConflict Flag = "aggregator_conflict"

	// FlagUnscored marks a review with no automated score at all.
	FlagUnscored Flag = "unscored"

	// FlagDuplicate marks a structural data error: multiple records for
	// one (show, outlet, critic) key.
	FlagDuplicate Flag = "duplicate"
)

// Serious reports whether the flag alone forces adjudication.
func (f Flag) Serious() bool {
	return f == FlagHighDisagreement || f == FlagAggregatorConflict || f == FlagUnscored
}

// Tier classifies how much manual attention a review needs.
type Tier string

// Confidence tiers.
const (
	// TierA reviews are safe to skip: no flags and the automated score
	// tracks ground truth within a small absolute tolerance.
	TierA Tier = "A"

	// TierB reviews get a spot-check sample: at most one minor flag.
	TierB Tier = "B"

	// TierC reviews require the adjudication state machine.
	TierC Tier = "C"
)

// Finding is the audit outcome for one review.
type Finding struct {
	ReviewID string
	Flags    []Flag
	Tier     Tier

	// Diff is consensus minus ground truth; nil when either signal is
	// missing.
	Diff *float64
}

// Has reports whether the finding carries the given flag.
func (f Finding) Has(flag Flag) bool {
	for _, existing := range f.Flags {
		if existing == flag {
			return true
		}
	}
	return false
}

// Config defines the auditor's fixed tolerances.
type Config struct {
	// DeviationTolerance is the absolute consensus-vs-ground-truth gap
	// (in points) still considered Tier A.
	DeviationTolerance float64 `yaml:"deviation_tolerance" validate:"omitempty,min=0,max=100"`

	// ConflictTolerance is the gap (in points) between a stored score
	// and a rating extracted from an aggregator excerpt before the two
	// are considered in conflict.
	ConflictTolerance float64 `yaml:"conflict_tolerance" validate:"omitempty,min=0,max=100"`

	// MaxCriticEditDistance is the Levenshtein distance at or below
	// which two critic names in the same (show, outlet) group count as
	// the same person.
	MaxCriticEditDistance int `yaml:"max_critic_edit_distance" validate:"omitempty,min=0,max=5"`
}

// Default tolerances.
const (
	DefaultDeviationTolerance    = 5.0
	DefaultConflictTolerance     = 10.0
	DefaultMaxCriticEditDistance = 1
)

// Auditor detects disagreement between automated scores and ground
// truth and assigns confidence tiers. It holds no mutable state and is
// safe for concurrent use; all population statistics arrive as an
// explicit CorpusStats snapshot.
type Auditor struct {
	norm    *domain.Normalizer
	config  Config
	metrics ports.MetricsCollector
}

// New creates an Auditor over the given normalizer.
// Zero-valued config fields select the package defaults.
func New(norm *domain.Normalizer, config Config, metrics ports.MetricsCollector) *Auditor {
	if config.DeviationTolerance <= 0 {
		config.DeviationTolerance = DefaultDeviationTolerance
	}
	if config.ConflictTolerance <= 0 {
		config.ConflictTolerance = DefaultConflictTolerance
	}
	if config.MaxCriticEditDistance <= 0 {
		config.MaxCriticEditDistance = DefaultMaxCriticEditDistance
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &Auditor{norm: norm, config: config, metrics: metrics}
}

// Snapshot computes the corpus deviation statistics from every review
// carrying both an automated score and an explicit, normalizable
// rating. Callers compute it once per run and pass it by value into
// AuditReview.
func (a *Auditor) Snapshot(reviews []*domain.Review) CorpusStats {
	var diffs []float64
	for _, r := range reviews {
		if d, ok := a.diff(r); ok {
			diffs = append(diffs, d)
		}
	}
	return ComputeStats(diffs)
}

// AuditCorpus audits every review against a single stats snapshot and
// one duplicate-key pass. Findings come back in input order.
func (a *Auditor) AuditCorpus(reviews []*domain.Review) ([]Finding, CorpusStats) {
	stats := a.Snapshot(reviews)
	dupes := a.duplicateIDs(reviews)

	findings := make([]Finding, 0, len(reviews))
	for _, r := range reviews {
		findings = append(findings, a.AuditReview(r, stats, dupes[r.ID]))
	}
	return findings, stats
}

// AuditReview audits a single review against the corpus snapshot.
// isDuplicate carries the result of the corpus-wide duplicate pass,
// which cannot be derived from one review in isolation.
func (a *Auditor) AuditReview(r *domain.Review, stats CorpusStats, isDuplicate bool) Finding {
	finding := Finding{ReviewID: r.ID}

	if !r.Scored() {
		finding.Flags = append(finding.Flags, FlagUnscored)
	}

	if d, ok := a.diff(r); ok {
		finding.Diff = &d
		if stats.Outlier(d) {
			finding.Flags = append(finding.Flags, FlagHighDisagreement)
		}
	}

	if r.Scored() && r.Excerpt != nil {
		if extracted, ok := extractExcerptRating(a.norm, *r.Excerpt); ok {
			if math.Abs(float64(extracted.Score-*r.Score)) > a.config.ConflictTolerance {
				finding.Flags = append(finding.Flags, FlagAggregatorConflict)
			}
		}
	}

	if isDuplicate {
		finding.Flags = append(finding.Flags, FlagDuplicate)
	}

	finding.Tier = a.tier(finding)

	for _, f := range finding.Flags {
		a.metrics.RecordCounter("audit_flags_total", 1, map[string]string{"flag": string(f)})
	}
	a.metrics.RecordCounter("audit_tier_total", 1, map[string]string{"tier": string(finding.Tier)})

	return finding
}

// diff returns consensus minus explicit ground truth for reviews that
// carry both signals.
func (a *Auditor) diff(r *domain.Review) (float64, bool) {
	if !r.Scored() || r.RawRating == nil {
		return 0, false
	}
	rating, ok := a.norm.Normalize(*r.RawRating)
	if !ok {
		return 0, false
	}
	return float64(*r.Score - rating.Score), true
}

// tier applies the classification rules: any serious flag or two or
// more flags force Tier C; a clean review tracking ground truth within
// tolerance is Tier A; everything else is Tier B.
func (a *Auditor) tier(f Finding) Tier {
	for _, flag := range f.Flags {
		if flag.Serious() {
			return TierC
		}
	}
	if len(f.Flags) >= 2 {
		return TierC
	}
	if len(f.Flags) == 0 && f.Diff != nil && math.Abs(*f.Diff) <= a.config.DeviationTolerance {
		return TierA
	}
	return TierB
}

// duplicateIDs finds structural duplicates: more than one record per
// (show, outlet, critic) key. Keys are Unicode case-folded, and critic
// names within one (show, outlet) group that sit within a small edit
// distance of each other are treated as the same person, so "Ben
// Brantley" and "Ben Brantly" collide.
func (a *Auditor) duplicateIDs(reviews []*domain.Review) map[string]bool {
	type member struct {
		id     string
		critic string
	}
	groups := make(map[domain.ReviewKey][]member)
	for _, r := range reviews {
		key := r.Key()
		critic := foldCaser.String(strings.TrimSpace(key.Critic))
		groupKey := domain.ReviewKey{
			ShowID:   foldCaser.String(key.ShowID),
			OutletID: foldCaser.String(key.OutletID),
		}
		groups[groupKey] = append(groups[groupKey], member{id: r.ID, critic: critic})
	}

	dupes := make(map[string]bool)
	for _, members := range groups {
		for i := 0; i < len(members); i++ {
			for j := i + 1; j < len(members); j++ {
				if a.sameCritic(members[i].critic, members[j].critic) {
					dupes[members[i].id] = true
					dupes[members[j].id] = true
				}
			}
		}
	}
	return dupes
}

// sameCritic reports whether two folded critic names identify the same
// person. Unattributed reviews (empty names) only collide with each
// other exactly: edit distance against "" is just name length.
func (a *Auditor) sameCritic(x, y string) bool {
	if x == y {
		return true
	}
	if x == "" || y == "" {
		return false
	}
	return levenshtein.ComputeDistance(x, y) <= a.config.MaxCriticEditDistance
}
