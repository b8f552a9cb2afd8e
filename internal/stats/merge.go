// Package stats implements the read-time merge of the latest durable
// snapshot with a live recomputation from stored play events, including
// artwork backfill.
package stats

import (
	"context"
	"strings"
	"sync"

	"github.com/soundprint/soundprint/internal/db"
	"github.com/soundprint/soundprint/internal/spotify"
)

// Searcher is the catalog-search slice of the Spotify client used for
// best-effort artwork backfill. A nil Searcher disables the fallback.
type Searcher interface {
	SearchArtist(ctx context.Context, name string) (*spotify.Artist, error)
	SearchTrack(ctx context.Context, name string) (*spotify.Track, error)
}

// Stats is the display-ready merge result.
type Stats struct {
	TotalMinutesListened int             `json:"total_minutes_listened"`
	TotalTracksPlayed    int             `json:"total_tracks_played"`
	TopArtists           []db.TopArtist  `json:"top_artists"`
	TopTracks            []db.TopTrack   `json:"top_tracks"`
	TopGenres            []db.GenreCount `json:"top_genres"`
	DiversityScore       float64         `json:"diversity_score"`
}

// Merge combines the latest snapshot with a live recompute from stored
// events. Live totals win when positive; live top lists replace the
// snapshot's, with missing artwork backfilled first by case-insensitive
// name lookup against the snapshot and then, when a searcher is
// available, by one best-effort catalog search per missing item. Either
// input may be nil.
func Merge(ctx context.Context, snap *db.StatsSnapshot, live *db.HistoryStats, searcher Searcher) *Stats {
	result := &Stats{}
	if snap != nil {
		result.TotalMinutesListened = snap.TotalMinutesListened
		result.TotalTracksPlayed = snap.TotalTracksPlayed
		result.TopArtists = snap.TopArtists
		result.TopTracks = snap.TopTracks
		result.TopGenres = snap.TopGenres
		result.DiversityScore = snap.DiversityScore
	}

	if live != nil {
		if live.TotalMinutes > 0 {
			result.TotalMinutesListened = live.TotalMinutes
		}
		if len(live.TopArtists) > 0 {
			result.TopArtists = mergeArtists(live.TopArtists, snap)
		}
		if len(live.TopTracks) > 0 {
			result.TopTracks = mergeTracks(live.TopTracks, snap)
		}
	}

	if searcher != nil {
		backfillArtwork(ctx, result, searcher)
	}
	return result
}

// mergeArtists maps the live top artists, attaching images from the
// snapshot by lowercased name where available.
func mergeArtists(live []db.HistoryArtist, snap *db.StatsSnapshot) []db.TopArtist {
	images := make(map[string]*string)
	if snap != nil {
		for _, a := range snap.TopArtists {
			if a.Name != "" && a.Image != nil {
				images[strings.ToLower(a.Name)] = a.Image
			}
		}
	}

	merged := make([]db.TopArtist, len(live))
	for i, a := range live {
		merged[i] = db.TopArtist{
			Name:  a.Name,
			Image: images[strings.ToLower(a.Name)],
		}
	}
	return merged
}

// mergeTracks maps the live top tracks, attaching album art from the
// snapshot by lowercased name where available.
func mergeTracks(live []db.HistoryTrack, snap *db.StatsSnapshot) []db.TopTrack {
	art := make(map[string]*string)
	if snap != nil {
		for _, t := range snap.TopTracks {
			if t.Name != "" && t.Album != nil {
				art[strings.ToLower(t.Name)] = t.Album
			}
		}
	}

	merged := make([]db.TopTrack, len(live))
	for i, t := range live {
		merged[i] = db.TopTrack{
			Name:   t.Name,
			Artist: t.Artist,
			Album:  art[strings.ToLower(t.Name)],
		}
	}
	return merged
}

// backfillArtwork fills still-missing artist images and album art with at
// most one catalog search per item. Searches run concurrently and each is
// independently best-effort: a failing search leaves its item untouched
// and never affects the others.
func backfillArtwork(ctx context.Context, stats *Stats, searcher Searcher) {
	var wg sync.WaitGroup

	for i := range stats.TopArtists {
		if stats.TopArtists[i].Image != nil {
			continue
		}
		wg.Add(1)
		go func(artist *db.TopArtist) {
			defer wg.Done()
			found, err := searcher.SearchArtist(ctx, artist.Name)
			if err != nil || found == nil || found.ImageURL == nil {
				return
			}
			// Guard against false positives from fuzzy search results.
			if !namesMatch(artist.Name, found.Name) {
				return
			}
			artist.Image = found.ImageURL
			if artist.ID == "" {
				artist.ID = found.ID
			}
		}(&stats.TopArtists[i])
	}

	for i := range stats.TopTracks {
		if stats.TopTracks[i].Album != nil {
			continue
		}
		wg.Add(1)
		go func(track *db.TopTrack) {
			defer wg.Done()
			found, err := searcher.SearchTrack(ctx, track.Name)
			if err != nil || found == nil || found.AlbumImageURL == nil {
				return
			}
			track.Album = found.AlbumImageURL
		}(&stats.TopTracks[i])
	}

	wg.Wait()
}

// namesMatch accepts a search result when either lowercased name contains
// the other.
func namesMatch(want, got string) bool {
	w := strings.ToLower(want)
	g := strings.ToLower(got)
	return strings.Contains(g, w) || strings.Contains(w, g)
}
