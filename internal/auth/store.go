// Package auth stores character sessions and hands their access tokens to
// the ESI client. Obtaining and refreshing tokens happens elsewhere.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"eve-dealfinder/internal/esi"
)

// ErrNoSession means no usable access token is held. It matches
// esi.ErrUnauthorized under errors.Is.
var ErrNoSession = fmt.Errorf("auth: no valid session: %w", esi.ErrUnauthorized)

// ErrUnknownCharacter means no session is stored for the character.
var ErrUnknownCharacter = errors.New("auth: character not found")

// expiryBuffer treats tokens this close to expiry as already expired.
const expiryBuffer = 60 * time.Second

// Session represents a stored auth session.
type Session struct {
	CharacterID   int64
	CharacterName string
	AccessToken   string
	ExpiresAt     time.Time
	Active        bool
}

// Valid reports whether the access token can still be used at now.
func (s *Session) Valid(now time.Time) bool {
	return s != nil && s.AccessToken != "" && now.Before(s.ExpiresAt.Add(-expiryBuffer))
}

// SessionStore handles session persistence in SQLite (table auth_session).
type SessionStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSessionStore creates a store backed by the given SQL database.
func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db, now: time.Now}
}

// Save stores or updates a character session while preserving active selection.
// If there is no active character yet, this session becomes active.
func (s *SessionStore) Save(sess *Session) error {
	if sess == nil {
		return fmt.Errorf("nil session")
	}
	if sess.CharacterID <= 0 || sess.AccessToken == "" {
		return fmt.Errorf("session needs a character id and an access token")
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO auth_session (character_id, character_name, access_token, expires_at, is_active)
		VALUES (?, ?, ?, ?, 0)
		ON CONFLICT(character_id) DO UPDATE SET
			character_name = excluded.character_name,
			access_token = excluded.access_token,
			expires_at = excluded.expires_at`,
		sess.CharacterID, sess.CharacterName, sess.AccessToken, sess.ExpiresAt.Unix(),
	)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		UPDATE auth_session
		   SET is_active = 1
		 WHERE character_id = ?
		   AND NOT EXISTS (SELECT 1 FROM auth_session WHERE is_active = 1)`,
		sess.CharacterID,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// Get returns the active session, or nil if none.
func (s *SessionStore) Get() *Session {
	return s.querySession(`
		SELECT character_id, character_name, access_token, expires_at, is_active
		FROM auth_session
		WHERE is_active = 1
		LIMIT 1`)
}

// GetByCharacterID returns a specific character session.
func (s *SessionStore) GetByCharacterID(characterID int64) *Session {
	return s.querySession(`
		SELECT character_id, character_name, access_token, expires_at, is_active
		FROM auth_session
		WHERE character_id = ?
		LIMIT 1`, characterID)
}

func (s *SessionStore) querySession(query string, args ...any) *Session {
	var sess Session
	var expiresUnix int64
	var activeInt int
	err := s.db.QueryRow(query, args...).
		Scan(&sess.CharacterID, &sess.CharacterName, &sess.AccessToken, &expiresUnix, &activeInt)
	if err != nil {
		return nil
	}
	sess.ExpiresAt = time.Unix(expiresUnix, 0)
	sess.Active = activeInt == 1
	return &sess
}

// SetActive marks a stored character as active.
func (s *SessionStore) SetActive(characterID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE auth_session SET is_active = 0`); err != nil {
		return err
	}
	res, err := tx.Exec(`UPDATE auth_session SET is_active = 1 WHERE character_id = ?`, characterID)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("set active %d: %w", characterID, ErrUnknownCharacter)
	}
	return tx.Commit()
}

// DeleteByCharacterID removes a specific character session.
func (s *SessionStore) DeleteByCharacterID(characterID int64) error {
	_, err := s.db.Exec(`DELETE FROM auth_session WHERE character_id = ?`, characterID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	return err
}

// TokenFor returns a TokenSource bound to one character; characterID 0
// follows whichever session is active.
func (s *SessionStore) TokenFor(characterID int64) esi.TokenSource {
	return storedToken{store: s, characterID: characterID}
}

type storedToken struct {
	store       *SessionStore
	characterID int64
}

func (t storedToken) AccessToken(context.Context) (string, error) {
	var sess *Session
	if t.characterID == 0 {
		sess = t.store.Get()
	} else {
		sess = t.store.GetByCharacterID(t.characterID)
	}
	if !sess.Valid(t.store.now()) {
		return "", ErrNoSession
	}
	return sess.AccessToken, nil
}

// StaticToken is a fixed token, e.g. supplied through the environment.
type StaticToken string

func (t StaticToken) AccessToken(context.Context) (string, error) {
	if t == "" {
		return "", ErrNoSession
	}
	return string(t), nil
}
