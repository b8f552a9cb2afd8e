package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SnapshotRepository handles stats snapshot database operations.
// Snapshots are append-only and never mutated.
type SnapshotRepository struct {
	pool *pgxpool.Pool
}

// Insert stores a new snapshot. The top-lists are stored as jsonb.
func (r *SnapshotRepository) Insert(ctx context.Context, snap *StatsSnapshot) error {
	if snap.ID == uuid.Nil {
		snap.ID = uuid.New()
	}

	topArtists, err := json.Marshal(snap.TopArtists)
	if err != nil {
		return fmt.Errorf("marshaling top artists: %w", err)
	}
	topTracks, err := json.Marshal(snap.TopTracks)
	if err != nil {
		return fmt.Errorf("marshaling top tracks: %w", err)
	}
	topGenres, err := json.Marshal(snap.TopGenres)
	if err != nil {
		return fmt.Errorf("marshaling top genres: %w", err)
	}

	query := `
		INSERT INTO stats_snapshots (id, user_id, snapshot_date, total_minutes_listened, total_tracks_played, top_artists, top_tracks, top_genres, diversity_score, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		RETURNING created_at
	`
	err = r.pool.QueryRow(ctx, query,
		snap.ID,
		snap.UserID,
		snap.SnapshotDate,
		snap.TotalMinutesListened,
		snap.TotalTracksPlayed,
		topArtists,
		topTracks,
		topGenres,
		snap.DiversityScore,
	).Scan(&snap.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}
	return nil
}

// GetLatest retrieves the most recent snapshot for a user.
func (r *SnapshotRepository) GetLatest(ctx context.Context, userID uuid.UUID) (*StatsSnapshot, error) {
	query := `
		SELECT id, user_id, snapshot_date, total_minutes_listened, total_tracks_played, top_artists, top_tracks, top_genres, diversity_score, created_at
		FROM stats_snapshots
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	var snap StatsSnapshot
	var topArtists, topTracks, topGenres []byte
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&snap.ID,
		&snap.UserID,
		&snap.SnapshotDate,
		&snap.TotalMinutesListened,
		&snap.TotalTracksPlayed,
		&topArtists,
		&topTracks,
		&topGenres,
		&snap.DiversityScore,
		&snap.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest snapshot: %w", err)
	}

	if err := json.Unmarshal(topArtists, &snap.TopArtists); err != nil {
		return nil, fmt.Errorf("unmarshaling top artists: %w", err)
	}
	if err := json.Unmarshal(topTracks, &snap.TopTracks); err != nil {
		return nil, fmt.Errorf("unmarshaling top tracks: %w", err)
	}
	if err := json.Unmarshal(topGenres, &snap.TopGenres); err != nil {
		return nil, fmt.Errorf("unmarshaling top genres: %w", err)
	}
	return &snap, nil
}

// CountForUser returns the number of snapshots accumulated for a user.
func (r *SnapshotRepository) CountForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stats_snapshots WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting snapshots: %w", err)
	}
	return count, nil
}
