package spotify

import (
	"errors"
	"fmt"
	"testing"

	api "github.com/zmb3/spotify/v2"
)

func TestConvertArtist(t *testing.T) {
	full := api.FullArtist{
		SimpleArtist: api.SimpleArtist{ID: "abc123", Name: "Boards of Canada"},
		Genres:       []string{"idm", "downtempo"},
		Images: []api.Image{
			{URL: "https://img.example/large.jpg"},
			{URL: "https://img.example/small.jpg"},
		},
	}

	got := convertArtist(full)
	if got.ID != "abc123" || got.Name != "Boards of Canada" {
		t.Errorf("identity = %q/%q", got.ID, got.Name)
	}
	if len(got.Genres) != 2 {
		t.Errorf("Genres = %v", got.Genres)
	}
	if got.ImageURL == nil || *got.ImageURL != "https://img.example/large.jpg" {
		t.Errorf("ImageURL = %v, want first image", got.ImageURL)
	}
}

func TestConvertArtistNoImages(t *testing.T) {
	got := convertArtist(api.FullArtist{
		SimpleArtist: api.SimpleArtist{ID: "x", Name: "Obscure Act"},
	})
	if got.ImageURL != nil {
		t.Errorf("ImageURL = %q, want nil", *got.ImageURL)
	}
}

func TestConvertSimpleTrack(t *testing.T) {
	simple := api.SimpleTrack{
		ID:       "track1",
		Name:     "Roygbiv",
		Duration: 150000,
		Artists: []api.SimpleArtist{
			{Name: "Boards of Canada"},
			{Name: "Someone Else"},
		},
	}

	got := convertSimpleTrack(simple)
	if got.Name != "Roygbiv" || got.DurationMs != 150000 {
		t.Errorf("track = %q/%d", got.Name, got.DurationMs)
	}
	// Primary artist only.
	if got.ArtistName != "Boards of Canada" {
		t.Errorf("ArtistName = %q", got.ArtistName)
	}
	if got.AlbumImageURL != nil {
		t.Error("simple track should carry no album artwork")
	}
}

func TestConvertSimpleTrackNoArtists(t *testing.T) {
	got := convertSimpleTrack(api.SimpleTrack{ID: "t", Name: "Untitled"})
	if got.ArtistName != "" {
		t.Errorf("ArtistName = %q, want empty", got.ArtistName)
	}
}

func TestConvertFullTrack(t *testing.T) {
	full := api.FullTrack{
		SimpleTrack: api.SimpleTrack{
			ID:       "track2",
			Name:     "Dayvan Cowboy",
			Duration: 300000,
			Artists:  []api.SimpleArtist{{Name: "Boards of Canada"}},
		},
		Album: api.SimpleAlbum{
			Name:   "The Campfire Headphase",
			Images: []api.Image{{URL: "https://img.example/album.jpg"}},
		},
	}

	got := convertFullTrack(full)
	if got.AlbumName != "The Campfire Headphase" {
		t.Errorf("AlbumName = %q", got.AlbumName)
	}
	if got.AlbumImageURL == nil || *got.AlbumImageURL != "https://img.example/album.jpg" {
		t.Errorf("AlbumImageURL = %v", got.AlbumImageURL)
	}
}

func TestTimerange(t *testing.T) {
	tests := []struct {
		window Window
		want   api.Range
	}{
		{ShortTerm, api.ShortTermRange},
		{MediumTerm, api.MediumTermRange},
		{LongTerm, api.LongTermRange},
		{Window("bogus"), api.MediumTermRange},
	}

	for _, tt := range tests {
		if got := timerange(tt.window); got != tt.want {
			t.Errorf("timerange(%q) = %v, want %v", tt.window, got, tt.want)
		}
	}
}

func TestWrapErrUpstream(t *testing.T) {
	err := wrapErr("fetching profile", api.Error{Status: 429, Message: "rate limited"})

	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("err = %v, want UpstreamError in chain", err)
	}
	if upstream.Status != 429 || upstream.Body != "rate limited" {
		t.Errorf("upstream = %+v", upstream)
	}
}

func TestWrapErrPlain(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := wrapErr("fetching profile", cause)

	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		t.Errorf("plain error became UpstreamError: %v", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("cause lost: %v", err)
	}
}
