package audit

import (
	"regexp"

	"github.com/marbeek/stagescore/internal/domain"
)

// Excerpt extraction is deliberately conservative: it only matches
// unambiguous rating shapes so an incidental capital letter in a name
// ("directed by F. Murray Abraham") never reads as a grade. Missing a
// real rating costs a cross-check; inventing one manufactures a
// conflict.
var (
	// excerptStarPattern matches "4/5", "3.5 out of 5 stars", "2 of 4
	// stars" and similar explicit star fractions.
	excerptStarPattern = regexp.MustCompile(`(?i)\b([0-5](?:\.[0-9])?)\s*(?:/|\s+(?:out\s+)?of\s+)([45])(?:\s*stars?)?\b`)

	// excerptBareStarPattern matches "3 stars" and "3.5 stars" with the
	// word attached, but never a bare numeral.
	excerptBareStarPattern = regexp.MustCompile(`(?i)\b([0-5](?:\.[0-9])?)\s+stars?\b`)

	// excerptGradePattern matches a grade only behind an explicit
	// "grade" marker.
	// A trailing word boundary would drop the +/- sign, so the grade is
	// bounded by end-of-string or a non-grade character instead.
	excerptGradePattern = regexp.MustCompile(`(?i)\bgrade\s*(?::|of)?\s+([A-DF][+-]?)(?:[^A-Za-z0-9+-]|$)`)
)

// extractExcerptRating scans aggregator excerpt text for an embedded
// rating and normalizes it. The boolean is false when no high-precision
// pattern matched.
func extractExcerptRating(norm *domain.Normalizer, text string) (domain.Rating, bool) {
	if m := excerptStarPattern.FindStringSubmatch(text); m != nil {
		if r, ok := norm.NormalizeStars(m[1] + "/" + m[2]); ok {
			return r, true
		}
	}
	if m := excerptBareStarPattern.FindStringSubmatch(text); m != nil {
		if r, ok := norm.NormalizeStars(m[1] + " stars"); ok {
			return r, true
		}
	}
	if m := excerptGradePattern.FindStringSubmatch(text); m != nil {
		if r, ok := norm.NormalizeGrade(m[1]); ok {
			return r, true
		}
	}
	return domain.Rating{}, false
}
