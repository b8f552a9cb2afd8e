package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PrivacyRepository handles privacy setting database operations.
type PrivacyRepository struct {
	pool *pgxpool.Pool
}

// Upsert creates or updates the privacy setting for a user.
func (r *PrivacyRepository) Upsert(ctx context.Context, setting *PrivacySetting) error {
	if !ValidPrivacyStatus(setting.Status) {
		return fmt.Errorf("invalid privacy status %q", setting.Status)
	}
	query := `
		INSERT INTO privacy_settings (user_id, status, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = NOW()
		RETURNING updated_at
	`
	err := r.pool.QueryRow(ctx, query, setting.UserID, setting.Status).Scan(&setting.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting privacy setting: %w", err)
	}
	return nil
}

// Get retrieves the privacy setting for a user.
func (r *PrivacyRepository) Get(ctx context.Context, userID uuid.UUID) (*PrivacySetting, error) {
	query := `
		SELECT user_id, status, updated_at
		FROM privacy_settings
		WHERE user_id = $1
	`
	var setting PrivacySetting
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&setting.UserID,
		&setting.Status,
		&setting.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying privacy setting: %w", err)
	}
	return &setting, nil
}
