package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pscheid92/buildnotify/internal/domain"
)

const (
	getDisplayTimeoutSQL = `SELECT display_timeout FROM user_notification_settings WHERE user_id = $1`

	setDisplayTimeoutSQL = `
INSERT INTO user_notification_settings (user_id, display_timeout, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (user_id) DO UPDATE
SET display_timeout = EXCLUDED.display_timeout, updated_at = EXCLUDED.updated_at`
)

// SettingsRepo stores per-user notification settings. Values are kept as text so
// malformed legacy entries survive and are handled by the reader.
type SettingsRepo struct {
	pool *pgxpool.Pool
}

func NewSettingsRepo(pool *pgxpool.Pool) *SettingsRepo {
	return &SettingsRepo{pool: pool}
}

func (r *SettingsRepo) GetDisplayTimeout(ctx context.Context, user domain.UserID) (string, error) {
	var value string
	err := r.pool.QueryRow(ctx, getDisplayTimeoutSQL, string(user)).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrSettingsNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get display timeout: %w", err)
	}
	return value, nil
}

func (r *SettingsRepo) SetDisplayTimeout(ctx context.Context, user domain.UserID, value string) error {
	if _, err := r.pool.Exec(ctx, setDisplayTimeoutSQL, string(user), value); err != nil {
		return fmt.Errorf("failed to set display timeout: %w", err)
	}
	return nil
}
