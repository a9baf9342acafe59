// Package store provides the SQLite-backed review store and the YAML
// adjudication queue snapshot.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/marbeek/stagescore/internal/domain"
	"github.com/marbeek/stagescore/internal/ports"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements ports.ReviewStore using modernc.org/sqlite
// (pure Go, no CGO). One row exists per (show, outlet, critic) key,
// enforced by a unique index.
type SQLiteStore struct {
	db *sql.DB
}

var _ ports.ReviewStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at the given
// path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite supports one concurrent writer. A single connection
	// serializes all access through Go's pool and avoids "database is
	// locked" errors under concurrent scoring.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Migrate runs all embedded SQL migration files in filename order,
// tracking applied migrations so re-runs are no-ops.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var count int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

const reviewColumns = `id, show_id, outlet_id, critic, raw_rating, thumbs, excerpt,
	score, bucket, state, attempt_count, history, created_at, updated_at`

// CreateReview inserts a new review, assigning a ULID when the record
// has none.
func (s *SQLiteStore) CreateReview(ctx context.Context, r *domain.Review) error {
	if r.ID == "" {
		r.ID = ulid.Make().String()
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	if r.State == "" {
		r.State = domain.StateUnflagged
	}

	thumbs, history, err := encodeJSONFields(r)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reviews (`+reviewColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ShowID, r.OutletID, r.Critic, r.RawRating, thumbs, r.Excerpt,
		r.Score, bucketArg(r.Bucket), string(r.State), r.AttemptCount, history,
		r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create review: %w", err)
	}
	return nil
}

// GetReview loads a review by ID.
func (s *SQLiteStore) GetReview(ctx context.Context, id string) (*domain.Review, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+reviewColumns+` FROM reviews WHERE id = ?`, id)
	r, err := scanReview(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrReviewNotFound, id)
	}
	return r, err
}

// GetReviewByKey loads a review by its (show, outlet, critic) key.
// An empty critic matches the unattributed record for the pair.
func (s *SQLiteStore) GetReviewByKey(ctx context.Context, key domain.ReviewKey) (*domain.Review, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+reviewColumns+` FROM reviews
		WHERE show_id = ? AND outlet_id = ? AND COALESCE(critic, '') = ?`,
		key.ShowID, key.OutletID, key.Critic)
	r, err := scanReview(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s/%s", domain.ErrReviewNotFound, key.ShowID, key.OutletID, key.Critic)
	}
	return r, err
}

// ListReviews returns reviews matching the filter, ordered by ID for
// deterministic output.
func (s *SQLiteStore) ListReviews(ctx context.Context, filter ports.ReviewFilter) ([]*domain.Review, error) {
	query := `SELECT ` + reviewColumns + ` FROM reviews WHERE 1=1`
	var args []any
	if filter.ShowID != "" {
		query += " AND show_id = ?"
		args = append(args, filter.ShowID)
	}
	if filter.OutletID != "" {
		query += " AND outlet_id = ?"
		args = append(args, filter.OutletID)
	}
	if filter.State != "" {
		query += " AND state = ?"
		args = append(args, string(filter.State))
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var reviews []*domain.Review
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		reviews = append(reviews, r)
	}
	return reviews, rows.Err()
}

// UpdateReview persists the full record so score, state, counter, and
// history are never observed half-written.
func (s *SQLiteStore) UpdateReview(ctx context.Context, r *domain.Review) error {
	r.UpdatedAt = time.Now().UTC()

	thumbs, history, err := encodeJSONFields(r)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE reviews SET show_id=?, outlet_id=?, critic=?, raw_rating=?, thumbs=?,
		excerpt=?, score=?, bucket=?, state=?, attempt_count=?, history=?, updated_at=?
		WHERE id=?`,
		r.ShowID, r.OutletID, r.Critic, r.RawRating, thumbs,
		r.Excerpt, r.Score, bucketArg(r.Bucket), string(r.State), r.AttemptCount, history,
		r.UpdatedAt, r.ID,
	)
	if err != nil {
		return fmt.Errorf("update review: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrReviewNotFound, r.ID)
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanReview maps one row onto a Review, keeping NULL columns as nil
// pointers so "unknown" never becomes a zero value.
func scanReview(row scanner) (*domain.Review, error) {
	var (
		r         domain.Review
		critic    sql.NullString
		rawRating sql.NullString
		excerpt   sql.NullString
		score     sql.NullInt64
		bucket    sql.NullString
		state     string
		thumbs    string
		history   string
	)
	err := row.Scan(
		&r.ID, &r.ShowID, &r.OutletID, &critic, &rawRating, &thumbs, &excerpt,
		&score, &bucket, &state, &r.AttemptCount, &history, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan review: %w", err)
	}

	if critic.Valid {
		r.Critic = &critic.String
	}
	if rawRating.Valid {
		r.RawRating = &rawRating.String
	}
	if excerpt.Valid {
		r.Excerpt = &excerpt.String
	}
	if score.Valid {
		v := int(score.Int64)
		r.Score = &v
	}
	if bucket.Valid {
		b := domain.Bucket(bucket.String)
		r.Bucket = &b
	}
	r.State = domain.ReviewState(state)

	if thumbs != "" {
		if err := json.Unmarshal([]byte(thumbs), &r.Thumbs); err != nil {
			return nil, fmt.Errorf("decode thumbs for %s: %w", r.ID, err)
		}
	}
	if len(r.Thumbs) == 0 {
		r.Thumbs = nil
	}
	if history != "" {
		if err := json.Unmarshal([]byte(history), &r.History); err != nil {
			return nil, fmt.Errorf("decode history for %s: %w", r.ID, err)
		}
	}
	if len(r.History) == 0 {
		r.History = nil
	}

	return &r, nil
}

// encodeJSONFields serializes the thumbs map and attempt history.
func encodeJSONFields(r *domain.Review) (thumbs, history string, err error) {
	t := r.Thumbs
	if t == nil {
		t = map[string]domain.Thumb{}
	}
	tb, err := json.Marshal(t)
	if err != nil {
		return "", "", fmt.Errorf("encode thumbs: %w", err)
	}

	h := r.History
	if h == nil {
		h = []domain.AdjudicationAttempt{}
	}
	hb, err := json.Marshal(h)
	if err != nil {
		return "", "", fmt.Errorf("encode history: %w", err)
	}
	return string(tb), string(hb), nil
}

// bucketArg converts the optional bucket to a driver-friendly value.
func bucketArg(b *domain.Bucket) any {
	if b == nil {
		return nil
	}
	return string(*b)
}
