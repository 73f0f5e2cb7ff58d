package auth

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"eve-dealfinder/internal/esi"

	_ "modernc.org/sqlite"
)

func openSessionStore(t *testing.T) *SessionStore {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	_, err = sqlDB.Exec(`
		CREATE TABLE auth_session (
			character_id    INTEGER PRIMARY KEY,
			character_name  TEXT NOT NULL,
			access_token    TEXT NOT NULL,
			expires_at      INTEGER NOT NULL,
			is_active       INTEGER NOT NULL DEFAULT 0
		)`)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	return NewSessionStore(sqlDB)
}

func TestSessionStore_FirstSaveBecomesActive(t *testing.T) {
	s := openSessionStore(t)
	exp := time.Now().Add(time.Hour).Truncate(time.Second)

	if err := s.Save(&Session{CharacterID: 1, CharacterName: "Alpha", AccessToken: "a", ExpiresAt: exp}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save(&Session{CharacterID: 2, CharacterName: "Beta", AccessToken: "b", ExpiresAt: exp}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got := s.Get()
	if got == nil || got.CharacterID != 1 || !got.Active {
		t.Fatalf("Get = %+v, want active character 1", got)
	}
	if !got.ExpiresAt.Equal(exp) {
		t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, exp)
	}

	if err := s.SetActive(2); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	if got := s.Get(); got == nil || got.CharacterID != 2 {
		t.Fatalf("Get after SetActive = %+v", got)
	}
	if err := s.SetActive(99); !errors.Is(err, ErrUnknownCharacter) {
		t.Errorf("SetActive(unknown) = %v, want ErrUnknownCharacter", err)
	}
	if err := s.Save(&Session{CharacterID: 3}); err == nil {
		t.Error("Save without access token = nil, want error")
	}

	if err := s.DeleteByCharacterID(2); err != nil {
		t.Fatalf("DeleteByCharacterID: %v", err)
	}
	if s.GetByCharacterID(2) != nil {
		t.Error("session 2 still present after delete")
	}
}

func TestTokenFor(t *testing.T) {
	s := openSessionStore(t)
	now := time.Now()
	s.Save(&Session{CharacterID: 1, CharacterName: "Alpha", AccessToken: "fresh", ExpiresAt: now.Add(20 * time.Minute)})
	s.Save(&Session{CharacterID: 2, CharacterName: "Beta", AccessToken: "stale", ExpiresAt: now.Add(30 * time.Second)})

	tok, err := s.TokenFor(0).AccessToken(context.Background())
	if err != nil || tok != "fresh" {
		t.Fatalf("active token = %q, %v", tok, err)
	}
	if _, err := s.TokenFor(2).AccessToken(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Fatalf("near-expiry token err = %v, want ErrNoSession", err)
	}
	if _, err := s.TokenFor(3).AccessToken(context.Background()); !errors.Is(err, esi.ErrUnauthorized) {
		t.Fatalf("unknown character err = %v, want ErrUnauthorized", err)
	}
}

func TestStaticToken(t *testing.T) {
	if tok, err := StaticToken("abc").AccessToken(context.Background()); err != nil || tok != "abc" {
		t.Fatalf("StaticToken = %q, %v", tok, err)
	}
	if _, err := StaticToken("").AccessToken(context.Background()); !errors.Is(err, esi.ErrUnauthorized) {
		t.Fatalf("empty StaticToken err = %v", err)
	}
}
