package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/soundprint/soundprint/internal/db"
	"github.com/soundprint/soundprint/internal/spotify"
)

type fakeCatalog struct {
	profile  *spotify.Profile
	artists  []spotify.Artist
	tracks   []spotify.Track
	recent   []spotify.RecentlyPlayedItem
	fetchErr error // returned by GetRecentlyPlayed when set
}

func (f *fakeCatalog) GetProfile(context.Context) (*spotify.Profile, error) {
	return f.profile, nil
}

func (f *fakeCatalog) GetTopArtists(context.Context, spotify.Window, int) ([]spotify.Artist, error) {
	return f.artists, nil
}

func (f *fakeCatalog) GetTopTracks(context.Context, spotify.Window, int) ([]spotify.Track, error) {
	return f.tracks, nil
}

func (f *fakeCatalog) GetRecentlyPlayed(context.Context, int) ([]spotify.RecentlyPlayedItem, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.recent, nil
}

type fakeUserStore struct {
	users   map[string]*db.User
	upserts []*db.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]*db.User)}
}

func (f *fakeUserStore) GetBySpotifyID(_ context.Context, spotifyID string) (*db.User, error) {
	user, ok := f.users[spotifyID]
	if !ok {
		return nil, db.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (f *fakeUserStore) Upsert(_ context.Context, user *db.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	copied := *user
	f.users[user.SpotifyID] = &copied
	f.upserts = append(f.upserts, &copied)
	return nil
}

type fakeSnapshotStore struct {
	snapshots []*db.StatsSnapshot
	insertErr error
}

func (f *fakeSnapshotStore) Insert(_ context.Context, snap *db.StatsSnapshot) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.snapshots = append(f.snapshots, snap)
	return nil
}

func testProfile() *spotify.Profile {
	return &spotify.Profile{SpotifyID: "spotify-user", DisplayName: "Test User", Email: "test@example.com"}
}

func newTestService(users UserStore, snapshots SnapshotStore) *Service {
	return New(users, snapshots, zap.NewNop())
}

func recentAt(at time.Time, durationMs int) spotify.RecentlyPlayedItem {
	return spotify.RecentlyPlayedItem{
		Track:    spotify.Track{Name: "track", ArtistName: "artist", DurationMs: durationMs},
		PlayedAt: at,
	}
}

func TestSyncFirstSync(t *testing.T) {
	now := time.Now()
	catalog := &fakeCatalog{
		profile: testProfile(),
		artists: []spotify.Artist{
			{ID: "a1", Name: "Artist One", Genres: []string{"indie rock", "shoegaze"}},
			{ID: "a2", Name: "Artist Two", Genres: []string{"indie rock"}},
		},
		tracks: []spotify.Track{{ID: "t1", Name: "Track One", ArtistName: "Artist One"}},
		recent: []spotify.RecentlyPlayedItem{
			recentAt(now.Add(-1*time.Hour), 180000),
			recentAt(now.Add(-30*time.Minute), 240000),
		},
	}
	users := newFakeUserStore()
	snapshots := &fakeSnapshotStore{}

	result, err := newTestService(users, snapshots).SyncUserData(context.Background(), catalog, "spotify-user", "test@example.com")
	if err != nil {
		t.Fatalf("SyncUserData: %v", err)
	}

	user := users.users["spotify-user"]
	if user == nil {
		t.Fatal("user was not upserted")
	}
	if result.UserID != user.ID {
		t.Errorf("result UserID = %v, want %v", result.UserID, user.ID)
	}
	// No prior high-water mark: every play counts.
	if user.TotalListenedMs != 420000 {
		t.Errorf("TotalListenedMs = %d, want 420000", user.TotalListenedMs)
	}
	if user.LastPlayedAt == nil || !user.LastPlayedAt.Equal(now.Add(-30*time.Minute)) {
		t.Errorf("LastPlayedAt = %v, want %v", user.LastPlayedAt, now.Add(-30*time.Minute))
	}

	if len(snapshots.snapshots) != 1 {
		t.Fatalf("got %d snapshots, want 1", len(snapshots.snapshots))
	}
	snap := snapshots.snapshots[0]
	if snap.TotalMinutesListened != 7 {
		t.Errorf("TotalMinutesListened = %d, want 7", snap.TotalMinutesListened)
	}
	if snap.TotalTracksPlayed != 2 {
		t.Errorf("TotalTracksPlayed = %d, want 2", snap.TotalTracksPlayed)
	}
	// 3 unique genres / 2 artists = 1.5
	if snap.DiversityScore != 1.5 {
		t.Errorf("DiversityScore = %v, want 1.5", snap.DiversityScore)
	}
}

func TestSyncDeltaCorrectness(t *testing.T) {
	now := time.Now()
	mark := now.Add(-90 * time.Minute)

	users := newFakeUserStore()
	existingID := uuid.New()
	users.users["spotify-user"] = &db.User{
		ID:              existingID,
		SpotifyID:       "spotify-user",
		TotalListenedMs: 1000000,
		LastPlayedAt:    &mark,
	}

	catalog := &fakeCatalog{
		profile: testProfile(),
		recent: []spotify.RecentlyPlayedItem{
			recentAt(now.Add(-2*time.Hour), 100000),   // before mark, skipped
			recentAt(now.Add(-1*time.Hour), 200000),   // after mark, counted
			recentAt(now.Add(-30*time.Minute), 50000), // after mark, counted
		},
	}
	snapshots := &fakeSnapshotStore{}

	_, err := newTestService(users, snapshots).SyncUserData(context.Background(), catalog, "spotify-user", "test@example.com")
	if err != nil {
		t.Fatalf("SyncUserData: %v", err)
	}

	user := users.users["spotify-user"]
	if user.ID != existingID {
		t.Errorf("user ID changed across sync: %v -> %v", existingID, user.ID)
	}
	if user.TotalListenedMs != 1250000 {
		t.Errorf("TotalListenedMs = %d, want 1250000", user.TotalListenedMs)
	}
	if user.LastPlayedAt == nil || !user.LastPlayedAt.Equal(now.Add(-30*time.Minute)) {
		t.Errorf("LastPlayedAt = %v, want %v", user.LastPlayedAt, now.Add(-30*time.Minute))
	}
}

func TestSyncMonotonicity(t *testing.T) {
	now := time.Now()
	catalog := &fakeCatalog{
		profile: testProfile(),
		recent:  []spotify.RecentlyPlayedItem{recentAt(now.Add(-1*time.Hour), 180000)},
	}
	users := newFakeUserStore()
	snapshots := &fakeSnapshotStore{}
	svc := newTestService(users, snapshots)

	for i := 0; i < 3; i++ {
		var prevTotal int64
		var prevMark time.Time
		if user := users.users["spotify-user"]; user != nil {
			prevTotal = user.TotalListenedMs
			if user.LastPlayedAt != nil {
				prevMark = *user.LastPlayedAt
			}
		}

		if _, err := svc.SyncUserData(context.Background(), catalog, "spotify-user", "test@example.com"); err != nil {
			t.Fatalf("sync %d: %v", i, err)
		}

		user := users.users["spotify-user"]
		if user.TotalListenedMs < prevTotal {
			t.Errorf("sync %d: accumulator regressed %d -> %d", i, prevTotal, user.TotalListenedMs)
		}
		if user.LastPlayedAt != nil && user.LastPlayedAt.Before(prevMark) {
			t.Errorf("sync %d: high-water mark regressed", i)
		}
	}

	// Repeat syncs over the same page must not double count.
	if users.users["spotify-user"].TotalListenedMs != 180000 {
		t.Errorf("TotalListenedMs = %d, want 180000", users.users["spotify-user"].TotalListenedMs)
	}
}

func TestSyncUpstreamFailureAborts(t *testing.T) {
	catalog := &fakeCatalog{
		profile:  testProfile(),
		fetchErr: &spotify.UpstreamError{Status: 429, Body: "rate limited"},
	}
	users := newFakeUserStore()
	snapshots := &fakeSnapshotStore{}

	_, err := newTestService(users, snapshots).SyncUserData(context.Background(), catalog, "spotify-user", "test@example.com")
	if err == nil {
		t.Fatal("expected error")
	}
	var upstream *spotify.UpstreamError
	if !errors.As(err, &upstream) {
		t.Errorf("err = %v, want UpstreamError", err)
	}
	if len(users.upserts) != 0 {
		t.Error("user was upserted despite fetch failure")
	}
	if len(snapshots.snapshots) != 0 {
		t.Error("snapshot was written despite fetch failure")
	}
}

func TestSyncSnapshotFailureSurfaces(t *testing.T) {
	now := time.Now()
	catalog := &fakeCatalog{
		profile: testProfile(),
		recent:  []spotify.RecentlyPlayedItem{recentAt(now, 60000)},
	}
	users := newFakeUserStore()
	snapshots := &fakeSnapshotStore{insertErr: errors.New("disk full")}

	_, err := newTestService(users, snapshots).SyncUserData(context.Background(), catalog, "spotify-user", "test@example.com")
	if err == nil {
		t.Fatal("expected error")
	}
	// The user upsert already landed; this inconsistency window is accepted.
	if len(users.upserts) != 1 {
		t.Errorf("got %d upserts, want 1", len(users.upserts))
	}
}

func TestComputeDelta(t *testing.T) {
	now := time.Now()
	mark := now.Add(-90 * time.Minute)

	tests := []struct {
		name       string
		items      []spotify.RecentlyPlayedItem
		mark       time.Time
		wantMs     int64
		wantNewest time.Time
	}{
		{
			name:       "empty page keeps mark",
			items:      nil,
			mark:       mark,
			wantMs:     0,
			wantNewest: mark,
		},
		{
			name: "only items after mark count",
			items: []spotify.RecentlyPlayedItem{
				recentAt(now.Add(-2*time.Hour), 100000),
				recentAt(now.Add(-1*time.Hour), 200000),
				recentAt(now.Add(-30*time.Minute), 50000),
			},
			mark:       mark,
			wantMs:     250000,
			wantNewest: now.Add(-30 * time.Minute),
		},
		{
			name: "all items older than mark",
			items: []spotify.RecentlyPlayedItem{
				recentAt(now.Add(-3*time.Hour), 100000),
			},
			mark:       mark,
			wantMs:     0,
			wantNewest: mark,
		},
		{
			name: "unsorted page is handled",
			items: []spotify.RecentlyPlayedItem{
				recentAt(now.Add(-30*time.Minute), 50000),
				recentAt(now.Add(-2*time.Hour), 100000),
				recentAt(now.Add(-1*time.Hour), 200000),
			},
			mark:       mark,
			wantMs:     250000,
			wantNewest: now.Add(-30 * time.Minute),
		},
		{
			name: "zero mark counts everything",
			items: []spotify.RecentlyPlayedItem{
				recentAt(now.Add(-2*time.Hour), 100000),
			},
			wantMs:     100000,
			wantNewest: now.Add(-2 * time.Hour),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotMs, gotNewest := computeDelta(tt.items, tt.mark)
			if gotMs != tt.wantMs {
				t.Errorf("newMs = %d, want %d", gotMs, tt.wantMs)
			}
			if !gotNewest.Equal(tt.wantNewest) {
				t.Errorf("newest = %v, want %v", gotNewest, tt.wantNewest)
			}
		})
	}
}

func TestDiversityScore(t *testing.T) {
	tests := []struct {
		name    string
		artists []spotify.Artist
		want    float64
	}{
		{
			name:    "no artists yields zero",
			artists: nil,
			want:    0,
		},
		{
			name: "unique genres over artist count",
			artists: []spotify.Artist{
				{Name: "A", Genres: []string{"rock", "pop"}},
				{Name: "B", Genres: []string{"rock"}},
			},
			want: 1,
		},
		{
			name: "rounds to two decimals",
			artists: []spotify.Artist{
				{Name: "A", Genres: []string{"rock"}},
				{Name: "B", Genres: []string{"rock"}},
				{Name: "C", Genres: []string{"rock"}},
			},
			want: 0.33,
		},
		{
			name: "artists without genres",
			artists: []spotify.Artist{
				{Name: "A"},
				{Name: "B"},
			},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := diversityScore(tt.artists); got != tt.want {
				t.Errorf("diversityScore = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTopGenres(t *testing.T) {
	artists := []spotify.Artist{
		{Name: "A", Genres: []string{"rock", "pop", "jazz"}},
		{Name: "B", Genres: []string{"rock", "pop"}},
		{Name: "C", Genres: []string{"rock", "folk"}},
		{Name: "D", Genres: []string{"ambient"}},
		{Name: "E", Genres: []string{"blues"}},
		{Name: "F", Genres: []string{"metal"}},
	}

	genres := topGenres(artists, 5)
	if len(genres) != 5 {
		t.Fatalf("got %d genres, want 5", len(genres))
	}
	if genres[0].Name != "rock" || genres[0].Count != 3 {
		t.Errorf("genres[0] = %+v, want rock/3", genres[0])
	}
	if genres[1].Name != "pop" || genres[1].Count != 2 {
		t.Errorf("genres[1] = %+v, want pop/2", genres[1])
	}
	// Singles tie-break alphabetically.
	if genres[2].Name != "ambient" {
		t.Errorf("genres[2] = %+v, want ambient first among singles", genres[2])
	}
	for i := 1; i < len(genres); i++ {
		if genres[i].Count > genres[i-1].Count {
			t.Errorf("genres not sorted descending at %d", i)
		}
	}
}

func TestSnapshotTopListsCappedAtTen(t *testing.T) {
	var artists []spotify.Artist
	for i := 0; i < 50; i++ {
		artists = append(artists, spotify.Artist{ID: uuid.NewString(), Name: "Artist"})
	}
	if got := len(snapshotArtists(artists)); got != 10 {
		t.Errorf("snapshotArtists len = %d, want 10", got)
	}

	var tracks []spotify.Track
	for i := 0; i < 50; i++ {
		tracks = append(tracks, spotify.Track{Name: "Track"})
	}
	if got := len(snapshotTracks(tracks)); got != 10 {
		t.Errorf("snapshotTracks len = %d, want 10", got)
	}
}
