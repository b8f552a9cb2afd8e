package spotify

import "time"

// Window selects the Spotify top-items time range.
type Window string

// Supported time ranges.
const (
	ShortTerm  Window = "short_term"
	MediumTerm Window = "medium_term"
	LongTerm   Window = "long_term"
)

// Profile contains the current user's account details.
type Profile struct {
	SpotifyID   string
	DisplayName string
	Email       string
	AvatarURL   *string // nullable
}

// Artist contains artist metadata including genre labels.
type Artist struct {
	ID       string
	Name     string
	Genres   []string
	ImageURL *string // nullable
}

// Track contains track metadata with album artwork when available.
type Track struct {
	ID            string
	Name          string
	ArtistName    string // primary artist
	AlbumName     string
	AlbumImageURL *string // nullable
	DurationMs    int
}

// RecentlyPlayedItem is one entry of the recently-played history page.
type RecentlyPlayedItem struct {
	Track    Track
	PlayedAt time.Time
}

// NowPlaying describes the current playback state.
type NowPlaying struct {
	IsPlaying  bool
	ProgressMs int
	Track      Track
}
