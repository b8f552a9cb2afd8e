// Package spotify provides a typed wrapper around the Spotify Web API.
package spotify

import (
	"context"
	"fmt"

	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"
)

// Client wraps the Spotify API client with convenience methods.
type Client struct {
	api *spotify.Client
}

// New creates a new Spotify client wrapper.
// The underlying client should already be authenticated.
func New(api *spotify.Client) *Client {
	return &Client{api: api}
}

// NewWithToken creates a client from a bearer access token. Token refresh
// is the caller's concern; an expired token surfaces as an UpstreamError.
func NewWithToken(ctx context.Context, accessToken string) *Client {
	src := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	})
	return New(spotify.New(oauth2.NewClient(ctx, src)))
}

// GetProfile returns the current user's account profile.
func (c *Client) GetProfile(ctx context.Context) (*Profile, error) {
	user, err := c.api.CurrentUser(ctx)
	if err != nil {
		return nil, wrapErr("fetching profile", err)
	}

	profile := &Profile{
		SpotifyID:   user.ID,
		DisplayName: user.DisplayName,
		Email:       user.Email,
	}
	if len(user.Images) > 0 && user.Images[0].URL != "" {
		url := user.Images[0].URL
		profile.AvatarURL = &url
	}
	return profile, nil
}

// GetTopArtists returns the user's top artists for the given window.
func (c *Client) GetTopArtists(ctx context.Context, window Window, limit int) ([]Artist, error) {
	page, err := c.api.CurrentUsersTopArtists(ctx, spotify.Timerange(timerange(window)), spotify.Limit(limit))
	if err != nil {
		return nil, wrapErr("fetching top artists", err)
	}

	artists := make([]Artist, 0, len(page.Artists))
	for _, a := range page.Artists {
		artists = append(artists, convertArtist(a))
	}
	return artists, nil
}

// GetTopTracks returns the user's top tracks for the given window.
func (c *Client) GetTopTracks(ctx context.Context, window Window, limit int) ([]Track, error) {
	page, err := c.api.CurrentUsersTopTracks(ctx, spotify.Timerange(timerange(window)), spotify.Limit(limit))
	if err != nil {
		return nil, wrapErr("fetching top tracks", err)
	}

	tracks := make([]Track, 0, len(page.Tracks))
	for _, t := range page.Tracks {
		tracks = append(tracks, convertFullTrack(t))
	}
	return tracks, nil
}

// GetRecentlyPlayed returns the most recent plays, newest first per the
// API, though callers should not rely on ordering.
func (c *Client) GetRecentlyPlayed(ctx context.Context, limit int) ([]RecentlyPlayedItem, error) {
	items, err := c.api.PlayerRecentlyPlayedOpt(ctx, &spotify.RecentlyPlayedOptions{Limit: spotify.Numeric(limit)})
	if err != nil {
		return nil, wrapErr("fetching recently played", err)
	}

	result := make([]RecentlyPlayedItem, 0, len(items))
	for _, item := range items {
		result = append(result, RecentlyPlayedItem{
			Track:    convertSimpleTrack(item.Track),
			PlayedAt: item.PlayedAt,
		})
	}
	return result, nil
}

// GetCurrentlyPlaying returns the current playback state, or (nil, nil)
// when nothing is playing. An empty player is not an error.
func (c *Client) GetCurrentlyPlaying(ctx context.Context) (*NowPlaying, error) {
	playing, err := c.api.PlayerCurrentlyPlaying(ctx)
	if err != nil {
		return nil, wrapErr("fetching currently playing", err)
	}
	if playing == nil || playing.Item == nil {
		return nil, nil
	}

	return &NowPlaying{
		IsPlaying:  playing.Playing,
		ProgressMs: int(playing.Progress),
		Track:      convertFullTrack(*playing.Item),
	}, nil
}

// SearchArtist searches the catalog for an artist by name and returns the
// best match, or nil if there is none.
func (c *Client) SearchArtist(ctx context.Context, name string) (*Artist, error) {
	result, err := c.api.Search(ctx, name, spotify.SearchTypeArtist, spotify.Limit(1))
	if err != nil {
		return nil, wrapErr("searching artist", err)
	}
	if result.Artists == nil || len(result.Artists.Artists) == 0 {
		return nil, nil
	}
	artist := convertArtist(result.Artists.Artists[0])
	return &artist, nil
}

// SearchTrack searches the catalog for a track by name and returns the
// best match, or nil if there is none.
func (c *Client) SearchTrack(ctx context.Context, name string) (*Track, error) {
	result, err := c.api.Search(ctx, name, spotify.SearchTypeTrack, spotify.Limit(1))
	if err != nil {
		return nil, wrapErr("searching track", err)
	}
	if result.Tracks == nil || len(result.Tracks.Tracks) == 0 {
		return nil, nil
	}
	track := convertFullTrack(result.Tracks.Tracks[0])
	return &track, nil
}

// GetTracksByIDs looks up full track metadata for a batch of track IDs.
func (c *Client) GetTracksByIDs(ctx context.Context, ids []string) ([]Track, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	spotifyIDs := make([]spotify.ID, len(ids))
	for i, id := range ids {
		spotifyIDs[i] = spotify.ID(id)
	}

	full, err := c.api.GetTracks(ctx, spotifyIDs)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("fetching %d tracks", len(ids)), err)
	}

	tracks := make([]Track, 0, len(full))
	for _, t := range full {
		if t == nil {
			continue
		}
		tracks = append(tracks, convertFullTrack(*t))
	}
	return tracks, nil
}

// convertArtist converts a Spotify FullArtist to an Artist.
func convertArtist(a spotify.FullArtist) Artist {
	artist := Artist{
		ID:     a.ID.String(),
		Name:   a.Name,
		Genres: a.Genres,
	}
	if len(a.Images) > 0 && a.Images[0].URL != "" {
		url := a.Images[0].URL
		artist.ImageURL = &url
	}
	return artist
}

// convertFullTrack converts a Spotify FullTrack to a Track.
func convertFullTrack(t spotify.FullTrack) Track {
	track := convertSimpleTrack(t.SimpleTrack)
	track.AlbumName = t.Album.Name
	if len(t.Album.Images) > 0 && t.Album.Images[0].URL != "" {
		url := t.Album.Images[0].URL
		track.AlbumImageURL = &url
	}
	return track
}

// convertSimpleTrack converts a Spotify SimpleTrack to a Track. Simple
// tracks carry no album artwork.
func convertSimpleTrack(t spotify.SimpleTrack) Track {
	track := Track{
		ID:         t.ID.String(),
		Name:       t.Name,
		DurationMs: int(t.Duration),
	}
	if len(t.Artists) > 0 {
		track.ArtistName = t.Artists[0].Name
	}
	return track
}

func timerange(w Window) spotify.Range {
	switch w {
	case ShortTerm:
		return spotify.ShortTermRange
	case LongTerm:
		return spotify.LongTermRange
	default:
		return spotify.MediumTermRange
	}
}
