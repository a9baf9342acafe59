package application

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/oklog/ulid/v2"
	"gopkg.in/yaml.v3"

	"github.com/marbeek/stagescore/internal/domain"
	"github.com/marbeek/stagescore/internal/ports"
)

// ReviewRecord is the YAML ingestion shape for one raw review. Optional
// fields left empty become nil on the stored review; "unknown" is never
// written as a zero value.
type ReviewRecord struct {
	ShowID   string `yaml:"show_id" validate:"required,min=1"`
	OutletID string `yaml:"outlet_id" validate:"required,min=1"`
	Critic   string `yaml:"critic"`

	// Rating is the raw, unnormalized rating string ("4/5", "B+").
	Rating string `yaml:"rating"`

	// Excerpt is review text or an aggregator excerpt.
	Excerpt string `yaml:"excerpt"`

	// Thumbs maps aggregator name to up/flat/down.
	Thumbs map[string]string `yaml:"thumbs" validate:"omitempty,dive,oneof=up flat down"`
}

// reviewImportFile is the top-level ingestion document.
type reviewImportFile struct {
	Reviews []ReviewRecord `yaml:"reviews" validate:"required,min=1,dive"`
}

// LoadReviewRecords reads and validates an ingestion YAML file.
func LoadReviewRecords(path string) ([]ReviewRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read import file: %w", err)
	}
	var doc reviewImportFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse import file %s: %w", path, err)
	}
	if err := validate.Struct(&doc); err != nil {
		return nil, fmt.Errorf("invalid import file %s: %w", path, err)
	}
	return doc.Reviews, nil
}

// ImportSummary reports one ingestion run.
type ImportSummary struct {
	Created int
	Updated int
}

// Import upserts raw review records by their (show, outlet, critic)
// key. Existing records keep their score, state, and history; only the
// raw signals are refreshed.
func (p *Pipeline) Import(ctx context.Context, records []ReviewRecord, dryRun bool) (ImportSummary, error) {
	return ImportRecords(ctx, p.store, records, dryRun)
}

// ImportRecords is Import against a bare store, for callers that have
// no scoring pipeline configured.
func ImportRecords(ctx context.Context, store ports.ReviewStore, records []ReviewRecord, dryRun bool) (ImportSummary, error) {
	var summary ImportSummary
	now := time.Now().UTC()

	for _, rec := range records {
		key := domain.ReviewKey{ShowID: rec.ShowID, OutletID: rec.OutletID, Critic: rec.Critic}

		existing, err := store.GetReviewByKey(ctx, key)
		switch {
		case err == nil:
			applyRecord(existing, rec, now)
			if !dryRun {
				if err := store.UpdateReview(ctx, existing); err != nil {
					return summary, fmt.Errorf("update review %s: %w", existing.ID, err)
				}
			}
			summary.Updated++

		case errors.Is(err, domain.ErrReviewNotFound):
			r := &domain.Review{
				ID:        ulid.Make().String(),
				ShowID:    rec.ShowID,
				OutletID:  rec.OutletID,
				State:     domain.StateUnflagged,
				CreatedAt: now,
			}
			if rec.Critic != "" {
				critic := rec.Critic
				r.Critic = &critic
			}
			applyRecord(r, rec, now)
			if !dryRun {
				if err := store.CreateReview(ctx, r); err != nil {
					return summary, fmt.Errorf("create review for %s/%s: %w", rec.ShowID, rec.OutletID, err)
				}
			}
			summary.Created++

		default:
			return summary, fmt.Errorf("look up review for %s/%s: %w", rec.ShowID, rec.OutletID, err)
		}
	}

	return summary, nil
}

// applyRecord copies the raw signals from a record onto a review.
func applyRecord(r *domain.Review, rec ReviewRecord, now time.Time) {
	if rec.Rating != "" {
		rating := rec.Rating
		r.RawRating = &rating
	}
	if rec.Excerpt != "" {
		excerpt := rec.Excerpt
		r.Excerpt = &excerpt
	}
	if len(rec.Thumbs) > 0 {
		r.Thumbs = make(map[string]domain.Thumb, len(rec.Thumbs))
		for agg, t := range rec.Thumbs {
			r.Thumbs[agg] = domain.Thumb(t)
		}
	}
	r.UpdatedAt = now
}
