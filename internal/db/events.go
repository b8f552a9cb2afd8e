package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EventRepository handles play event database operations.
type EventRepository struct {
	pool *pgxpool.Pool
}

// InsertBatch appends a batch of play events. The table carries no
// uniqueness constraint, so re-inserting the same events produces
// duplicate rows (duplicate-tolerant import semantics).
func (r *EventRepository) InsertBatch(ctx context.Context, events []PlayEvent) error {
	if len(events) == 0 {
		return nil
	}

	query := `
		INSERT INTO play_events (id, user_id, played_at, artist_name, track_name, album_name, ms_played, spotify_track_uri, platform)
		SELECT * FROM unnest($1::uuid[], $2::uuid[], $3::timestamptz[], $4::text[], $5::text[], $6::text[], $7::bigint[], $8::text[], $9::text[])
	`

	ids := make([]uuid.UUID, len(events))
	userIDs := make([]uuid.UUID, len(events))
	playedAts := make([]time.Time, len(events))
	artists := make([]string, len(events))
	tracks := make([]string, len(events))
	albums := make([]*string, len(events))
	msPlayed := make([]int64, len(events))
	uris := make([]*string, len(events))
	platforms := make([]string, len(events))

	for i, e := range events {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		ids[i] = e.ID
		userIDs[i] = e.UserID
		playedAts[i] = e.PlayedAt
		artists[i] = e.ArtistName
		tracks[i] = e.TrackName
		albums[i] = e.AlbumName
		msPlayed[i] = e.MsPlayed
		uris[i] = e.SpotifyTrackURI
		platforms[i] = e.Platform
	}

	_, err := r.pool.Exec(ctx, query, ids, userIDs, playedAts, artists, tracks, albums, msPlayed, uris, platforms)
	if err != nil {
		return fmt.Errorf("batch inserting play events: %w", err)
	}
	return nil
}

// CountForUser returns the number of stored play events for a user.
func (r *EventRepository) CountForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM play_events WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting play events: %w", err)
	}
	return count, nil
}

// HistoryArtist is an artist aggregated from stored history.
type HistoryArtist struct {
	Name      string
	PlayCount int
}

// HistoryTrack is a track aggregated from stored history.
type HistoryTrack struct {
	Name      string
	Artist    string
	PlayCount int
}

// HistoryStats is a live recomputation of listening statistics from the
// accumulated play events, independent of any snapshot.
type HistoryStats struct {
	TotalMinutes int
	TopArtists   []HistoryArtist
	TopTracks    []HistoryTrack
}

// ComputeFromHistory aggregates stored play events into listening
// statistics: cumulative minutes plus top-10 artists and tracks by play
// count.
func (r *EventRepository) ComputeFromHistory(ctx context.Context, userID uuid.UUID) (*HistoryStats, error) {
	stats := &HistoryStats{}

	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(ROUND(SUM(ms_played) / 60000.0), 0) FROM play_events WHERE user_id = $1`,
		userID,
	).Scan(&stats.TotalMinutes)
	if err != nil {
		return nil, fmt.Errorf("summing listening time: %w", err)
	}

	artistRows, err := r.pool.Query(ctx, `
		SELECT artist_name, COUNT(*) AS plays
		FROM play_events
		WHERE user_id = $1
		GROUP BY artist_name
		ORDER BY plays DESC, artist_name
		LIMIT 10
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying top artists: %w", err)
	}
	defer artistRows.Close()

	for artistRows.Next() {
		var a HistoryArtist
		if err := artistRows.Scan(&a.Name, &a.PlayCount); err != nil {
			return nil, fmt.Errorf("scanning top artist: %w", err)
		}
		stats.TopArtists = append(stats.TopArtists, a)
	}
	if err := artistRows.Err(); err != nil {
		return nil, err
	}

	trackRows, err := r.pool.Query(ctx, `
		SELECT track_name, artist_name, COUNT(*) AS plays
		FROM play_events
		WHERE user_id = $1
		GROUP BY track_name, artist_name
		ORDER BY plays DESC, track_name
		LIMIT 10
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying top tracks: %w", err)
	}
	defer trackRows.Close()

	for trackRows.Next() {
		var t HistoryTrack
		if err := trackRows.Scan(&t.Name, &t.Artist, &t.PlayCount); err != nil {
			return nil, fmt.Errorf("scanning top track: %w", err)
		}
		stats.TopTracks = append(stats.TopTracks, t)
	}
	return stats, trackRows.Err()
}
