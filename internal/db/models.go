package db

import (
	"time"

	"github.com/google/uuid"
)

// User is the per-account accumulator record. TotalListenedMs only grows
// across syncs; LastPlayedAt is the timestamp of the newest play already
// folded into it (the high-water mark).
type User struct {
	ID              uuid.UUID
	Email           string
	SpotifyID       string
	Name            string
	AvatarURL       *string // nullable
	TotalListenedMs int64
	LastPlayedAt    *time.Time // nullable, high-water mark
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// PlayEvent is one normalized record of a track having been played.
// Events are append-only and carry no uniqueness constraint.
type PlayEvent struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	PlayedAt        time.Time
	ArtistName      string
	TrackName       string
	AlbumName       *string // nullable
	MsPlayed        int64
	SpotifyTrackURI *string // nullable
	Platform        string
}

// TopArtist is one entry of a snapshot's top-artists rollup.
type TopArtist struct {
	Name  string  `json:"name"`
	ID    string  `json:"id"`
	Image *string `json:"image"`
}

// TopTrack is one entry of a snapshot's top-tracks rollup. Album holds the
// album artwork URL, matching the display shape.
type TopTrack struct {
	Name   string  `json:"name"`
	Artist string  `json:"artist"`
	Album  *string `json:"album"`
}

// GenreCount is one entry of a snapshot's genre frequency rollup.
type GenreCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// StatsSnapshot is an immutable point-in-time rollup of aggregate
// statistics, one per successful sync. The most recent snapshot is the
// current one for read paths.
type StatsSnapshot struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	SnapshotDate time.Time
	// TotalTracksPlayed is sized from the fetched recently-played page
	// (up to 50), not a lifetime count.
	TotalTracksPlayed    int
	TotalMinutesListened int
	TopArtists           []TopArtist
	TopTracks            []TopTrack
	TopGenres            []GenreCount
	DiversityScore       float64
	CreatedAt            time.Time
}

// Privacy statuses.
const (
	PrivacyPrivate = "private"
	PrivacyMixed   = "mixed"
	PrivacyPublic  = "public"
)

// PrivacySetting controls public-profile visibility, at most one per user.
type PrivacySetting struct {
	UserID    uuid.UUID
	Status    string
	UpdatedAt time.Time
}

// ValidPrivacyStatus reports whether s is a recognized privacy status.
func ValidPrivacyStatus(s string) bool {
	switch s {
	case PrivacyPrivate, PrivacyMixed, PrivacyPublic:
		return true
	}
	return false
}
