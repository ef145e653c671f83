package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmylchreest/pricewatch-api/internal/models"
)

// SQLiteUserRepository implements UserRepository for SQLite/libsql.
type SQLiteUserRepository struct {
	db *sql.DB
}

// NewSQLiteUserRepository creates a new SQLite user repository.
func NewSQLiteUserRepository(db *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db}
}

// EnsureUser upserts the user. A non-empty email replaces the stored one.
func (r *SQLiteUserRepository) EnsureUser(ctx context.Context, id, email string) (*models.User, error) {
	now := formatTime(time.Now())
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, email, search_count, created_at, updated_at)
		VALUES (?, ?, 0, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = CASE WHEN excluded.email != '' THEN excluded.email ELSE users.email END
	`, id, email, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return r.GetByID(ctx, id)
}

// GetByID retrieves a user by ID. Returns nil if not found.
func (r *SQLiteUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	var resetsAt sql.NullString
	var createdAt, updatedAt string

	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, search_count, search_limit_resets_at, created_at, updated_at
		FROM users WHERE id = ?
	`, id).Scan(&u.ID, &u.Email, &u.SearchCount, &resetsAt, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	u.SearchLimitResetsAt = parseNullTime(resetsAt)
	u.CreatedAt = parseTime(createdAt)
	u.UpdatedAt = parseTime(updatedAt)
	return &u, nil
}

// ResetSearchQuota zeroes an expired counter and clears its reset time.
func (r *SQLiteUserRepository) ResetSearchQuota(ctx context.Context, id string, now time.Time) (bool, error) {
	ts := formatTime(now)
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET
			search_count = 0,
			search_limit_resets_at = NULL,
			updated_at = ?
		WHERE id = ?
			AND search_limit_resets_at IS NOT NULL
			AND search_limit_resets_at <= ?
	`, ts, id, ts)
	if err != nil {
		return false, fmt.Errorf("failed to reset search quota: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// IncrementSearchCount counts one search. An expired window is restarted in
// the same statement so the counter never carries over a stale window.
func (r *SQLiteUserRepository) IncrementSearchCount(ctx context.Context, id string, limit int, window time.Duration, now time.Time) (bool, error) {
	ts := formatTime(now)
	resetsAt := formatTime(now.Add(window))

	// SET expressions see the pre-update row.
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET
			search_count = CASE
				WHEN search_limit_resets_at IS NOT NULL AND search_limit_resets_at <= ? THEN 1
				ELSE search_count + 1
			END,
			search_limit_resets_at = CASE
				WHEN search_count = 0 OR search_limit_resets_at IS NULL OR search_limit_resets_at <= ? THEN ?
				ELSE search_limit_resets_at
			END,
			updated_at = ?
		WHERE id = ?
			AND (search_count < ? OR (search_limit_resets_at IS NOT NULL AND search_limit_resets_at <= ?))
	`, ts, ts, resetsAt, ts, id, limit, ts)
	if err != nil {
		return false, fmt.Errorf("failed to increment search count: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ReleaseSearch decrements the counter of a search that did not complete.
func (r *SQLiteUserRepository) ReleaseSearch(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET
			search_count = search_count - 1,
			updated_at = ?
		WHERE id = ? AND search_count > 0
	`, formatTime(time.Now()), id)
	if err != nil {
		return false, fmt.Errorf("failed to release search: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
