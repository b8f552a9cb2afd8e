// Package sync implements the incremental synchronization and
// aggregation engine: it merges fresh Spotify data with the accumulated
// per-user state and produces point-in-time statistical snapshots.
package sync

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/soundprint/soundprint/internal/db"
	"github.com/soundprint/soundprint/internal/spotify"
)

// DefaultTimeout bounds the concurrent upstream fetches of one sync.
const DefaultTimeout = 30 * time.Second

const (
	fetchLimit    = 50
	topListSize   = 10
	topGenresSize = 5
)

// Catalog is the slice of the Spotify client the engine consumes.
type Catalog interface {
	GetProfile(ctx context.Context) (*spotify.Profile, error)
	GetTopArtists(ctx context.Context, window spotify.Window, limit int) ([]spotify.Artist, error)
	GetTopTracks(ctx context.Context, window spotify.Window, limit int) ([]spotify.Track, error)
	GetRecentlyPlayed(ctx context.Context, limit int) ([]spotify.RecentlyPlayedItem, error)
}

// UserStore persists the per-user accumulator record.
type UserStore interface {
	GetBySpotifyID(ctx context.Context, spotifyID string) (*db.User, error)
	Upsert(ctx context.Context, user *db.User) error
}

// SnapshotStore persists immutable stats snapshots.
type SnapshotStore interface {
	Insert(ctx context.Context, snap *db.StatsSnapshot) error
}

// Service orchestrates user data syncs.
type Service struct {
	users     UserStore
	snapshots SnapshotStore
	logger    *zap.Logger
	timeout   time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithTimeout sets the request-level timeout for the upstream fetches.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.timeout = d
	}
}

// New creates a new sync service.
func New(users UserStore, snapshots SnapshotStore, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		users:     users,
		snapshots: snapshots,
		logger:    logger,
		timeout:   DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result contains the result of a sync operation.
type Result struct {
	UserID uuid.UUID
}

// SyncUserData performs one full sync for the identified account:
// concurrent fetch of profile, top artists/tracks (medium window) and the
// recently-played page; delta of newly-played listening time against the
// stored high-water mark; accumulator upsert; snapshot insert.
//
// Any upstream fetch failure aborts the sync before any write. A snapshot
// insert failure is returned even though the user upsert already landed;
// that non-atomic window is accepted.
func (s *Service) SyncUserData(ctx context.Context, catalog Catalog, spotifyID, email string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		profile    *spotify.Profile
		topArtists []spotify.Artist
		topTracks  []spotify.Track
		recent     []spotify.RecentlyPlayedItem
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		profile, err = catalog.GetProfile(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		topArtists, err = catalog.GetTopArtists(gctx, spotify.MediumTerm, fetchLimit)
		return err
	})
	g.Go(func() error {
		var err error
		topTracks, err = catalog.GetTopTracks(gctx, spotify.MediumTerm, fetchLimit)
		return err
	})
	g.Go(func() error {
		var err error
		recent, err = catalog.GetRecentlyPlayed(gctx, fetchLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetching spotify data: %w", err)
	}

	existing, err := s.users.GetBySpotifyID(ctx, spotifyID)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("loading user: %w", err)
	}

	var (
		oldTotal int64
		oldMark  time.Time
	)
	if existing != nil {
		oldTotal = existing.TotalListenedMs
		if existing.LastPlayedAt != nil {
			oldMark = *existing.LastPlayedAt
		}
	}

	newMs, newMark := computeDelta(recent, oldMark)

	user := &db.User{
		Email:           email,
		SpotifyID:       spotifyID,
		Name:            profile.DisplayName,
		AvatarURL:       profile.AvatarURL,
		TotalListenedMs: oldTotal + newMs,
	}
	if existing != nil {
		user.ID = existing.ID
	}
	if !newMark.IsZero() {
		user.LastPlayedAt = &newMark
	}
	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, fmt.Errorf("upserting user: %w", err)
	}

	snap := &db.StatsSnapshot{
		UserID:               user.ID,
		SnapshotDate:         time.Now(),
		TotalMinutesListened: int(math.Round(float64(user.TotalListenedMs) / 60000.0)),
		TotalTracksPlayed:    len(recent),
		TopArtists:           snapshotArtists(topArtists),
		TopTracks:            snapshotTracks(topTracks),
		TopGenres:            topGenres(topArtists, topGenresSize),
		DiversityScore:       diversityScore(topArtists),
	}
	if err := s.snapshots.Insert(ctx, snap); err != nil {
		return nil, fmt.Errorf("creating snapshot: %w", err)
	}

	s.logger.Info("sync complete",
		zap.String("spotify_id", spotifyID),
		zap.Int64("new_ms", newMs),
		zap.Int64("total_ms", user.TotalListenedMs))

	return &Result{UserID: user.ID}, nil
}

// computeDelta sums the duration of plays newer than the high-water mark
// and returns the newest timestamp seen, seeded with the old mark so it
// never regresses. The whole page is scanned: no ordering is assumed.
func computeDelta(items []spotify.RecentlyPlayedItem, mark time.Time) (newMs int64, newest time.Time) {
	newest = mark
	for _, item := range items {
		if item.PlayedAt.After(mark) {
			newMs += int64(item.Track.DurationMs)
		}
		if item.PlayedAt.After(newest) {
			newest = item.PlayedAt
		}
	}
	return newMs, newest
}

// diversityScore is the ratio of unique genres to fetched top artists,
// rounded to two decimals. Zero artists yields 0, not an error.
func diversityScore(artists []spotify.Artist) float64 {
	if len(artists) == 0 {
		return 0
	}
	unique := make(map[string]struct{})
	for _, a := range artists {
		for _, g := range a.Genres {
			unique[g] = struct{}{}
		}
	}
	score := float64(len(unique)) / float64(len(artists))
	return math.Round(score*100) / 100
}

// topGenres counts every genre across the fetched top artists and returns
// the n most frequent, descending by count with name as tiebreaker.
func topGenres(artists []spotify.Artist, n int) []db.GenreCount {
	counts := make(map[string]int)
	for _, a := range artists {
		for _, g := range a.Genres {
			counts[g]++
		}
	}

	genres := make([]db.GenreCount, 0, len(counts))
	for name, count := range counts {
		genres = append(genres, db.GenreCount{Name: name, Count: count})
	}
	sort.Slice(genres, func(i, j int) bool {
		if genres[i].Count != genres[j].Count {
			return genres[i].Count > genres[j].Count
		}
		return genres[i].Name < genres[j].Name
	})

	if len(genres) > n {
		genres = genres[:n]
	}
	return genres
}

func snapshotArtists(artists []spotify.Artist) []db.TopArtist {
	top := make([]db.TopArtist, 0, topListSize)
	for _, a := range artists {
		if len(top) == topListSize {
			break
		}
		top = append(top, db.TopArtist{Name: a.Name, ID: a.ID, Image: a.ImageURL})
	}
	return top
}

func snapshotTracks(tracks []spotify.Track) []db.TopTrack {
	top := make([]db.TopTrack, 0, topListSize)
	for _, t := range tracks {
		if len(top) == topListSize {
			break
		}
		top = append(top, db.TopTrack{Name: t.Name, Artist: t.ArtistName, Album: t.AlbumImageURL})
	}
	return top
}
