// Package ports defines the interfaces that connect the domain and
// application layers to infrastructure. These interfaces enable
// dependency inversion and make the pipeline testable without live
// oracles or storage.
package ports

import (
	"context"

	"github.com/marbeek/stagescore/internal/domain"
)

// Oracle is any component that, given review text and optional context,
// returns a bucket/score/confidence judgment. The pipeline assumes
// nothing about the vendor behind it.
//
// Exactly one of the three results is meaningful per call:
//   - a Judgment when the oracle scored the text,
//   - a non-nil Rejection when the oracle substantively declares the
//     text unscoreable (wrong production, insufficient content),
//   - an error for transport or format failures, which callers absorb
//     as a missing vote rather than a veto.
//
// Implementations must tolerate structured answers embedded in free
// text (delimiter-fenced or bare) and must return malformed responses
// as errors, never panic.
type Oracle interface {
	// Name returns a stable identifier for this oracle, used in
	// judgments, logs, and metrics.
	Name() string

	// Judge scores the review text. background carries optional context
	// such as the production's title or a disagreement summary during
	// re-adjudication.
	Judge(ctx context.Context, text, background string) (domain.Judgment, *domain.Rejection, error)
}
