package domain

import "errors"

// Common domain errors returned by normalization and review operations.
var (
	// ErrUnknownBucket indicates a bucket name that is not part of the
	// shared bucket table.
	ErrUnknownBucket = errors.New("unknown bucket")

	// ErrScoreBucketMismatch indicates an attempt to write a score and
	// bucket pair where the score falls outside the bucket's interval.
	ErrScoreBucketMismatch = errors.New("score outside bucket interval")

	// ErrReviewResolved indicates an attempt to re-adjudicate a review
	// that already carries a terminal resolution.
	ErrReviewResolved = errors.New("review already resolved")

	// ErrInvalidConfidence indicates a confidence label outside the
	// high/medium/low set.
	ErrInvalidConfidence = errors.New("invalid confidence")

	// ErrReviewNotFound indicates a lookup for a review that does not
	// exist in the store.
	ErrReviewNotFound = errors.New("review not found")
)
