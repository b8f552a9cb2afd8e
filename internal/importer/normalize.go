// Package importer converts exported listening-history archives into
// canonical play events and persists them in chunks.
package importer

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/soundprint/soundprint/internal/db"
)

// minPlayMs is the signal threshold: plays at or under 30 seconds are
// noise (skips, previews) and are dropped during normalization.
const minPlayMs = 30000

// Platforms recorded on imported events.
const (
	PlatformStandard = "import_standard"
	PlatformExtended = "import_extended"
)

// Timestamp layouts per export schema.
const (
	standardTimeLayout = "2006-01-02 15:04"
)

// rawRecord is the field superset across both documented export schemas.
// Detection happens per record; a file is not assumed homogeneous.
type rawRecord struct {
	// Standard schema (StreamingHistoryN.json)
	EndTime    string `json:"endTime"`
	ArtistName string `json:"artistName"`
	TrackName  string `json:"trackName"`
	MsPlayed   int64  `json:"msPlayed"`

	// Extended schema (endsong / Streaming_History_Audio)
	TS              string  `json:"ts"`
	MasterTrack     *string `json:"master_metadata_track_name"`
	MasterArtist    *string `json:"master_metadata_album_artist_name"`
	MasterAlbum     *string `json:"master_metadata_album_album_name"`
	MsPlayedExt     int64   `json:"ms_played"`
	SpotifyTrackURI *string `json:"spotify_track_uri"`
	Platform        *string `json:"platform"`
}

// recordKind classifies a raw record's shape.
type recordKind int

const (
	kindUnrecognized recordKind = iota
	kindStandard
	kindExtended
)

// classify detects the schema of a single record. Standard wins when a
// record somehow carries both shapes' markers.
func classify(r *rawRecord) recordKind {
	if r.EndTime != "" && r.ArtistName != "" && r.TrackName != "" {
		return kindStandard
	}
	if r.TS != "" {
		return kindExtended
	}
	return kindUnrecognized
}

// Normalize maps raw export records to canonical play events for the
// given user. Records matching neither schema, extended records without a
// track name (podcasts, videos), records with unparseable timestamps, and
// plays at or under the 30s threshold are all dropped silently.
func Normalize(userID uuid.UUID, records []json.RawMessage) []db.PlayEvent {
	var events []db.PlayEvent
	for _, raw := range records {
		var r rawRecord
		if err := json.Unmarshal(raw, &r); err != nil {
			continue
		}

		var event *db.PlayEvent
		switch classify(&r) {
		case kindStandard:
			event = normalizeStandard(userID, &r)
		case kindExtended:
			event = normalizeExtended(userID, &r)
		default:
			continue
		}

		if event == nil || event.MsPlayed <= minPlayMs {
			continue
		}
		events = append(events, *event)
	}
	return events
}

func normalizeStandard(userID uuid.UUID, r *rawRecord) *db.PlayEvent {
	playedAt, err := parseTimestamp(r.EndTime)
	if err != nil {
		return nil
	}
	return &db.PlayEvent{
		ID:         uuid.New(),
		UserID:     userID,
		PlayedAt:   playedAt,
		ArtistName: r.ArtistName,
		TrackName:  r.TrackName,
		MsPlayed:   r.MsPlayed,
		Platform:   PlatformStandard,
	}
}

func normalizeExtended(userID uuid.UUID, r *rawRecord) *db.PlayEvent {
	// Entries without a track name are non-music (podcast/video).
	if r.MasterTrack == nil || *r.MasterTrack == "" {
		return nil
	}
	playedAt, err := parseTimestamp(r.TS)
	if err != nil {
		return nil
	}

	artist := "Unknown Artist"
	if r.MasterArtist != nil && *r.MasterArtist != "" {
		artist = *r.MasterArtist
	}
	platform := PlatformExtended
	if r.Platform != nil && *r.Platform != "" {
		platform = *r.Platform
	}

	return &db.PlayEvent{
		ID:              uuid.New(),
		UserID:          userID,
		PlayedAt:        playedAt,
		ArtistName:      artist,
		TrackName:       *r.MasterTrack,
		AlbumName:       r.MasterAlbum,
		MsPlayed:        r.MsPlayedExt,
		SpotifyTrackURI: r.SpotifyTrackURI,
		Platform:        platform,
	}
}

// parseTimestamp accepts the extended schema's RFC3339 timestamps and the
// standard schema's minute-resolution "2006-01-02 15:04" form.
func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(standardTimeLayout, s)
}
