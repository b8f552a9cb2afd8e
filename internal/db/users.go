package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepository handles user database operations.
type UserRepository struct {
	pool *pgxpool.Pool
}

// Get retrieves a user by ID.
func (r *UserRepository) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	query := `
		SELECT id, email, spotify_id, name, avatar_url, total_listened_ms, last_played_at, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

// GetBySpotifyID retrieves a user by their Spotify account ID.
func (r *UserRepository) GetBySpotifyID(ctx context.Context, spotifyID string) (*User, error) {
	query := `
		SELECT id, email, spotify_id, name, avatar_url, total_listened_ms, last_played_at, created_at, updated_at
		FROM users
		WHERE spotify_id = $1
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, spotifyID))
}

// GetByEmail retrieves a user by email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	query := `
		SELECT id, email, spotify_id, name, avatar_url, total_listened_ms, last_played_at, created_at, updated_at
		FROM users
		WHERE email = $1
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, email))
}

// GetByName retrieves a user by display name, case-insensitively.
// Used by the public profile lookup.
func (r *UserRepository) GetByName(ctx context.Context, name string) (*User, error) {
	query := `
		SELECT id, email, spotify_id, name, avatar_url, total_listened_ms, last_played_at, created_at, updated_at
		FROM users
		WHERE LOWER(name) = LOWER($1)
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, name))
}

// Upsert creates or updates a user keyed on spotify_id, writing the
// profile fields and the accumulator columns.
func (r *UserRepository) Upsert(ctx context.Context, user *User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	query := `
		INSERT INTO users (id, email, spotify_id, name, avatar_url, total_listened_ms, last_played_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (spotify_id) DO UPDATE SET
			email = EXCLUDED.email,
			name = EXCLUDED.name,
			avatar_url = EXCLUDED.avatar_url,
			total_listened_ms = EXCLUDED.total_listened_ms,
			last_played_at = EXCLUDED.last_played_at,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		user.ID,
		user.Email,
		user.SpotifyID,
		user.Name,
		user.AvatarURL,
		user.TotalListenedMs,
		user.LastPlayedAt,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting user: %w", err)
	}
	return nil
}

func (r *UserRepository) scanOne(row pgx.Row) (*User, error) {
	var user User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.SpotifyID,
		&user.Name,
		&user.AvatarURL,
		&user.TotalListenedMs,
		&user.LastPlayedAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return &user, nil
}
