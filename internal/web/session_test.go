package web

import (
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func TestSessionCreateAndGet(t *testing.T) {
	store := NewSessionStore()

	token := &oauth2.Token{AccessToken: "tok"}
	session, err := store.Create(token, "spotify-id", "user@example.com", "User")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if session.ID == "" {
		t.Fatal("empty session ID")
	}

	got := store.Get(session.ID)
	if got == nil {
		t.Fatal("session not found")
	}
	if got.SpotifyID != "spotify-id" || got.Email != "user@example.com" {
		t.Errorf("session = %+v", got)
	}
	if got.Token.AccessToken != "tok" {
		t.Errorf("Token = %+v", got.Token)
	}
}

func TestSessionGetUnknown(t *testing.T) {
	store := NewSessionStore()
	if got := store.Get("nonexistent"); got != nil {
		t.Errorf("Get(unknown) = %+v, want nil", got)
	}
}

func TestSessionExpiry(t *testing.T) {
	store := NewSessionStore()
	session, err := store.Create(&oauth2.Token{}, "id", "e", "n")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Backdate past the TTL instead of sleeping.
	store.sessions[session.ID].CreatedAt = time.Now().Add(-sessionTTL - time.Minute)

	if got := store.Get(session.ID); got != nil {
		t.Errorf("expired session returned: %+v", got)
	}
}

func TestSessionDelete(t *testing.T) {
	store := NewSessionStore()
	session, err := store.Create(&oauth2.Token{}, "id", "e", "n")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	store.Delete(session.ID)
	if got := store.Get(session.ID); got != nil {
		t.Errorf("deleted session returned: %+v", got)
	}
}

func TestSessionCookieRoundTrip(t *testing.T) {
	store := NewSessionStore()
	session, err := store.Create(&oauth2.Token{}, "id", "e", "n")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	rec := httptest.NewRecorder()
	store.SetCookie(rec, session)

	req := httptest.NewRequest("GET", "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}

	got := store.GetFromRequest(req)
	if got == nil || got.ID != session.ID {
		t.Errorf("GetFromRequest = %+v, want session %q", got, session.ID)
	}
}

func TestSessionIDsUnique(t *testing.T) {
	store := NewSessionStore()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		session, err := store.Create(&oauth2.Token{}, "id", "e", "n")
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if seen[session.ID] {
			t.Fatalf("duplicate session ID %q", session.ID)
		}
		seen[session.ID] = true
	}
}
