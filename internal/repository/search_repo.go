package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/pricewatch-api/internal/models"
)

// SQLiteSearchRepository implements SearchRepository for SQLite/libsql.
type SQLiteSearchRepository struct {
	db *sql.DB
}

// NewSQLiteSearchRepository creates a new SQLite search repository.
func NewSQLiteSearchRepository(db *sql.DB) *SQLiteSearchRepository {
	return &SQLiteSearchRepository{db: db}
}

const searchColumns = `id, user_id, query, normalized_query, results, insights, trace, archive_key, created_at`

// Create stores a completed search.
func (r *SQLiteSearchRepository) Create(ctx context.Context, s *models.Search) error {
	if s.ID == "" {
		s.ID = ulid.Make().String()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}

	results, err := json.Marshal(s.Results)
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	insights, err := json.Marshal(s.Insights)
	if err != nil {
		return fmt.Errorf("failed to encode insights: %w", err)
	}
	trace, err := json.Marshal(s.Trace)
	if err != nil {
		return fmt.Errorf("failed to encode trace: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO searches (`+searchColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		s.ID,
		s.UserID,
		s.Query,
		s.NormalizedQuery,
		string(results),
		string(insights),
		string(trace),
		sql.NullString{String: s.ArchiveKey, Valid: s.ArchiveKey != ""},
		formatTime(s.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert search: %w", err)
	}
	return nil
}

// GetByID retrieves a search by ID. Returns nil if not found.
func (r *SQLiteSearchRepository) GetByID(ctx context.Context, id string) (*models.Search, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+searchColumns+` FROM searches WHERE id = ?`, id)
	return r.scanSearch(row)
}

// FindRecent returns the newest matching search created at or after since.
func (r *SQLiteSearchRepository) FindRecent(ctx context.Context, userID, normalizedQuery string, since time.Time) (*models.Search, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+searchColumns+`
		FROM searches
		WHERE user_id = ? AND normalized_query = ? AND created_at >= ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, userID, normalizedQuery, formatTime(since))
	return r.scanSearch(row)
}

// ListByUser returns the user's searches, newest first.
func (r *SQLiteSearchRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*models.Search, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+searchColumns+`
		FROM searches
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list searches: %w", err)
	}
	defer rows.Close()

	var out []*models.Search
	for rows.Next() {
		s, err := r.scanSearch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SetArchiveKey records where the search was archived in object storage.
func (r *SQLiteSearchRepository) SetArchiveKey(ctx context.Context, id, key string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE searches SET archive_key = ? WHERE id = ?`, key, id)
	return err
}

// DeleteOlderThan removes searches created before the cutoff.
func (r *SQLiteSearchRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM searches WHERE created_at < ?`, formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("failed to delete old searches: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SQLiteSearchRepository) scanSearch(row rowScanner) (*models.Search, error) {
	var s models.Search
	var results, insights, trace, createdAt string
	var archiveKey sql.NullString

	err := row.Scan(&s.ID, &s.UserID, &s.Query, &s.NormalizedQuery, &results, &insights, &trace, &archiveKey, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan search: %w", err)
	}

	if err := json.Unmarshal([]byte(results), &s.Results); err != nil {
		return nil, fmt.Errorf("failed to decode results for search %s: %w", s.ID, err)
	}
	if err := json.Unmarshal([]byte(insights), &s.Insights); err != nil {
		return nil, fmt.Errorf("failed to decode insights for search %s: %w", s.ID, err)
	}
	_ = json.Unmarshal([]byte(trace), &s.Trace)
	s.ArchiveKey = archiveKey.String
	s.CreatedAt = parseTime(createdAt)
	return &s, nil
}
