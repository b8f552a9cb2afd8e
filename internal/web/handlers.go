package web

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"go.uber.org/zap"

	"github.com/soundprint/soundprint/internal/db"
	"github.com/soundprint/soundprint/internal/importer"
	"github.com/soundprint/soundprint/internal/spotify"
	"github.com/soundprint/soundprint/internal/stats"
	"github.com/soundprint/soundprint/internal/sync"
)

// Handlers contains HTTP handlers for the JSON API.
type Handlers struct {
	auth           *spotifyauth.Authenticator
	sessions       *SessionStore
	database       *db.DB
	importer       *importer.Importer
	sync           *sync.Service
	logger         *zap.Logger
	importMaxBytes int64
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(auth *spotifyauth.Authenticator, sessions *SessionStore, database *db.DB, imp *importer.Importer, syncSvc *sync.Service, logger *zap.Logger, importMaxBytes int64) *Handlers {
	return &Handlers{
		auth:           auth,
		sessions:       sessions,
		database:       database,
		importer:       imp,
		sync:           syncSvc,
		logger:         logger,
		importMaxBytes: importMaxBytes,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// requireSession resolves the request's session or writes a 401.
func (h *Handlers) requireSession(w http.ResponseWriter, r *http.Request) *Session {
	session := h.sessions.GetFromRequest(r)
	if session == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return nil
	}
	return session
}

// Health reports liveness (GET /healthz).
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Login initiates the Spotify OAuth flow (GET /auth/login).
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	state, err := generateOAuthState()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate state")
		return
	}

	// Store state in cookie for validation on callback
	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   300,
	})

	http.Redirect(w, r, h.auth.AuthURL(state), http.StatusTemporaryRedirect)
}

// Callback handles the OAuth callback from Spotify (GET /callback).
// A successful login triggers a best-effort sync; its failure is logged
// and swallowed so login itself never breaks on upstream trouble.
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie("oauth_state")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing state cookie")
		return
	}

	state := r.URL.Query().Get("state")
	if state != stateCookie.Value {
		writeError(w, http.StatusBadRequest, "state mismatch")
		return
	}

	// Clear state cookie
	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})

	if errMsg := r.URL.Query().Get("error"); errMsg != "" {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("spotify auth error: %s", errMsg))
		return
	}

	token, err := h.auth.Token(r.Context(), state, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get token")
		return
	}

	client := spotify.NewWithToken(r.Context(), token.AccessToken)
	profile, err := client.GetProfile(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get user info")
		return
	}

	session, err := h.sessions.Create(token, profile.SpotifyID, profile.Email, profile.DisplayName)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	h.sessions.SetCookie(w, session)

	if _, err := h.sync.SyncUserData(r.Context(), client, profile.SpotifyID, profile.Email); err != nil {
		h.logger.Warn("login sync failed", zap.String("spotify_id", profile.SpotifyID), zap.Error(err))
	}

	http.Redirect(w, r, "/api/stats", http.StatusTemporaryRedirect)
}

// Logout clears the session (POST /auth/logout).
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if session := h.sessions.GetFromRequest(r); session != nil {
		h.sessions.Delete(session.ID)
	}
	h.sessions.ClearCookie(w)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Import accepts a history upload, a .zip archive or single .json
// document in the multipart field "file" (POST /api/import).
func (h *Handlers) Import(w http.ResponseWriter, r *http.Request) {
	session := h.requireSession(w, r)
	if session == nil {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.importMaxBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	user, err := h.database.Users().GetByEmail(r.Context(), session.Email)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "user not found, sync your account first")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	result, err := h.importer.Import(r.Context(), user.ID, header.Filename, data)
	switch {
	case err == nil:
	case errors.Is(err, importer.ErrUnsupportedFile),
		errors.Is(err, importer.ErrInvalidArchive),
		errors.Is(err, importer.ErrNoHistoryFound),
		errors.Is(err, importer.ErrNoQualifyingTracks):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	default:
		h.logger.Error("import failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "import failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   result.Inserted,
		"message": fmt.Sprintf("Imported %d tracks successfully", result.Inserted),
	})
}

// Sync triggers an explicit refresh for the logged-in user
// (POST /api/sync). Unlike the login-time sync, failures surface.
func (h *Handlers) Sync(w http.ResponseWriter, r *http.Request) {
	session := h.requireSession(w, r)
	if session == nil {
		return
	}

	client := spotify.NewWithToken(r.Context(), session.Token.AccessToken)
	result, err := h.sync.SyncUserData(r.Context(), client, session.SpotifyID, session.Email)
	if err != nil {
		var upstream *spotify.UpstreamError
		if errors.As(err, &upstream) {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		h.logger.Error("sync failed", zap.String("spotify_id", session.SpotifyID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "sync failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user_id": result.UserID,
	})
}

// Stats returns the merged view of the latest snapshot and a live
// recompute from stored history (GET /api/stats).
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	session := h.requireSession(w, r)
	if session == nil {
		return
	}

	user, err := h.database.Users().GetByEmail(r.Context(), session.Email)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "user not found, sync your account first")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	snap, err := h.database.Snapshots().GetLatest(r.Context(), user.ID)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "failed to load snapshot")
		return
	}

	live, err := h.database.Events().ComputeFromHistory(r.Context(), user.ID)
	if err != nil {
		// The snapshot alone is still a valid answer.
		h.logger.Warn("history recompute failed", zap.Error(err))
		live = nil
	}

	searcher := spotify.NewWithToken(r.Context(), session.Token.AccessToken)
	merged := stats.Merge(r.Context(), snap, live, searcher)
	writeJSON(w, http.StatusOK, merged)
}

// NowPlaying reports current playback (GET /api/now-playing). Mirrors the
// upstream tolerance rules: no session, nothing playing and upstream
// errors all collapse to {"is_playing": false}.
func (h *Handlers) NowPlaying(w http.ResponseWriter, r *http.Request) {
	session := h.sessions.GetFromRequest(r)
	if session == nil {
		writeJSON(w, http.StatusOK, map[string]bool{"is_playing": false})
		return
	}

	client := spotify.NewWithToken(r.Context(), session.Token.AccessToken)
	playing, err := client.GetCurrentlyPlaying(r.Context())
	if err != nil {
		h.logger.Warn("now-playing fetch failed", zap.Error(err))
		writeJSON(w, http.StatusOK, map[string]bool{"is_playing": false})
		return
	}
	if playing == nil {
		writeJSON(w, http.StatusOK, map[string]bool{"is_playing": false})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"is_playing":  playing.IsPlaying,
		"progress_ms": playing.ProgressMs,
		"track": map[string]any{
			"id":          playing.Track.ID,
			"name":        playing.Track.Name,
			"artist":      playing.Track.ArtistName,
			"album":       playing.Track.AlbumName,
			"image":       playing.Track.AlbumImageURL,
			"duration_ms": playing.Track.DurationMs,
		},
	})
}

const topItemsLimit = 20

// Top returns the user's top artists, tracks or albums
// (GET /api/top?type=artists|tracks|albums&range=medium_term).
func (h *Handlers) Top(w http.ResponseWriter, r *http.Request) {
	session := h.requireSession(w, r)
	if session == nil {
		return
	}

	window := spotify.Window(r.URL.Query().Get("range"))
	switch window {
	case spotify.ShortTerm, spotify.MediumTerm, spotify.LongTerm:
	default:
		window = spotify.MediumTerm
	}

	client := spotify.NewWithToken(r.Context(), session.Token.AccessToken)

	var items any
	var err error
	switch r.URL.Query().Get("type") {
	case "artists":
		items, err = client.GetTopArtists(r.Context(), window, topItemsLimit)
	case "tracks":
		items, err = client.GetTopTracks(r.Context(), window, topItemsLimit)
	case "albums":
		items, err = topAlbums(r, client, window)
	default:
		writeError(w, http.StatusBadRequest, "invalid type")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type albumCount struct {
	Name   string  `json:"name"`
	Artist string  `json:"artist"`
	Image  *string `json:"image"`
	Count  int     `json:"count"`
}

// topAlbums emulates a top-albums list, which Spotify has no endpoint
// for, by aggregating a larger top-tracks page per album.
func topAlbums(r *http.Request, client *spotify.Client, window spotify.Window) ([]albumCount, error) {
	tracks, err := client.GetTopTracks(r.Context(), window, 50)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]*albumCount)
	var order []string
	for _, t := range tracks {
		if t.AlbumName == "" {
			continue
		}
		if album, ok := byName[t.AlbumName]; ok {
			album.Count++
			continue
		}
		byName[t.AlbumName] = &albumCount{
			Name:   t.AlbumName,
			Artist: t.ArtistName,
			Image:  t.AlbumImageURL,
			Count:  1,
		}
		order = append(order, t.AlbumName)
	}

	albums := make([]albumCount, 0, len(byName))
	for _, name := range order {
		albums = append(albums, *byName[name])
	}
	sort.SliceStable(albums, func(i, j int) bool {
		return albums[i].Count > albums[j].Count
	})
	if len(albums) > topItemsLimit {
		albums = albums[:topItemsLimit]
	}
	return albums, nil
}

// UpdateSettings upserts the user's privacy setting (POST /api/settings).
func (h *Handlers) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	session := h.requireSession(w, r)
	if session == nil {
		return
	}

	var body struct {
		Privacy string `json:"privacy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !db.ValidPrivacyStatus(body.Privacy) {
		writeError(w, http.StatusBadRequest, "invalid privacy setting")
		return
	}

	user, err := h.database.Users().GetByEmail(r.Context(), session.Email)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	setting := &db.PrivacySetting{UserID: user.ID, Status: body.Privacy}
	if err := h.database.Privacy().Upsert(r.Context(), setting); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// PublicStats serves a public profile by display name
// (GET /api/users/{name}/stats). Only the durable snapshot is exposed:
// no live credential is available for other people's accounts.
func (h *Handlers) PublicStats(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	user, err := h.database.Users().GetByName(r.Context(), name)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	privacy, err := h.database.Privacy().Get(r.Context(), user.ID)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "failed to load privacy settings")
		return
	}
	if privacy != nil && privacy.Status == db.PrivacyPrivate {
		writeJSON(w, http.StatusForbidden, map[string]any{
			"is_private": true,
			"user":       map[string]any{"name": user.Name, "avatar_url": user.AvatarURL},
		})
		return
	}

	snap, err := h.database.Snapshots().GetLatest(r.Context(), user.ID)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "failed to load snapshot")
		return
	}

	merged := stats.Merge(r.Context(), snap, nil, nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"is_private": false,
		"user":       map[string]any{"name": user.Name, "avatar_url": user.AvatarURL},
		"stats":      merged,
	})
}

// generateOAuthState creates a random state string for OAuth.
func generateOAuthState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
