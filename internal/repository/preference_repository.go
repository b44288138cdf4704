package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"pomodoro/focusd/internal/preferences"
)

// PreferenceRepository stores preferences as (owner, key, value) rows. It
// implements preferences.Store.
type PreferenceRepository struct {
	db *sql.DB
}

func NewPreferenceRepository(db *sql.DB) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

var _ preferences.Store = (*PreferenceRepository)(nil)

func (r *PreferenceRepository) Load(ctx context.Context, owner string) (preferences.Preferences, error) {
	values, err := loadPreferences(ctx, r.db, owner)
	if err != nil {
		return preferences.Preferences{}, fmt.Errorf("%w: %v", preferences.ErrStorageUnavailable, err)
	}
	return preferences.New(values), nil
}

func (r *PreferenceRepository) Edit(
	ctx context.Context,
	owner string,
	fn func(p preferences.Preferences) error,
) (preferences.Preferences, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return preferences.Preferences{}, fmt.Errorf("%w: begin tx: %v", preferences.ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	values, err := loadPreferences(ctx, tx, owner)
	if err != nil {
		return preferences.Preferences{}, fmt.Errorf("%w: %v", preferences.ErrStorageUnavailable, err)
	}

	prefs := preferences.New(values)
	if err := fn(prefs); err != nil {
		return preferences.Preferences{}, err
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for key, value := range prefs.Changed() {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO preferences (owner, key, value, updated_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT(owner, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			owner,
			key,
			value,
			now,
		); err != nil {
			return preferences.Preferences{}, fmt.Errorf("%w: write %s: %v", preferences.ErrStorageUnavailable, key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return preferences.Preferences{}, fmt.Errorf("%w: commit: %v", preferences.ErrStorageUnavailable, err)
	}

	return preferences.New(prefs.Values()), nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func loadPreferences(ctx context.Context, q queryer, owner string) (map[string]string, error) {
	rows, err := q.QueryContext(
		ctx,
		`SELECT key, value FROM preferences WHERE owner = ?`,
		owner,
	)
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate preferences: %w", err)
	}
	return values, nil
}
