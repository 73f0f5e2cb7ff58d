package api

import (
	"errors"
	"net/http"
	"time"

	"eve-dealfinder/internal/auth"
	"eve-dealfinder/internal/logger"
)

// SessionManager stores the character sessions whose tokens discovery uses.
type SessionManager interface {
	Save(sess *auth.Session) error
	SetActive(characterID int64) error
	DeleteByCharacterID(characterID int64) error
	Get() *auth.Session
}

// SetSessions enables the /api/session routes. Call before Handler.
func (s *Server) SetSessions(sessions SessionManager) {
	s.sessions = sessions
}

type sessionRequest struct {
	CharacterID   int64     `json:"character_id"`
	CharacterName string    `json:"character_name"`
	AccessToken   string    `json:"access_token"`
	ExpiresIn     int64     `json:"expires_in"` // seconds, as returned by EVE SSO
	ExpiresAt     time.Time `json:"expires_at"`
	Activate      bool      `json:"activate"`
}

// sessionView never carries the token.
type sessionView struct {
	CharacterID   int64     `json:"character_id"`
	CharacterName string    `json:"character_name"`
	ExpiresAt     time.Time `json:"expires_at"`
	Active        bool      `json:"active"`
	Valid         bool      `json:"valid"`
}

func viewOf(sess *auth.Session) sessionView {
	return sessionView{
		CharacterID:   sess.CharacterID,
		CharacterName: sess.CharacterName,
		ExpiresAt:     sess.ExpiresAt,
		Active:        sess.Active,
		Valid:         sess.Valid(time.Now()),
	}
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Get()
	if sess == nil {
		writeError(w, http.StatusNotFound, "no active session")
		return
	}
	writeJSON(w, viewOf(sess))
}

func (s *Server) handleSaveSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.CharacterID <= 0 || req.AccessToken == "" {
		writeError(w, http.StatusBadRequest, "character_id and access_token are required")
		return
	}
	expires := req.ExpiresAt
	if req.ExpiresIn > 0 {
		expires = time.Now().Add(time.Duration(req.ExpiresIn) * time.Second)
	}
	if expires.IsZero() {
		writeError(w, http.StatusBadRequest, "expires_in or expires_at is required")
		return
	}

	sess := &auth.Session{
		CharacterID:   req.CharacterID,
		CharacterName: req.CharacterName,
		AccessToken:   req.AccessToken,
		ExpiresAt:     expires,
	}
	if err := s.sessions.Save(sess); err != nil {
		logger.Error("Auth", "save session failed", logger.Err(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if req.Activate {
		if err := s.sessions.SetActive(req.CharacterID); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	logger.Success("Auth", "session stored", "character_id", req.CharacterID)

	saved := *sess
	if active := s.sessions.Get(); active != nil && active.CharacterID == req.CharacterID {
		saved.Active = true
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(viewOf(&saved))
}

func (s *Server) handleActivateSession(w http.ResponseWriter, r *http.Request) {
	id, ok := parseCharacterID(w, r)
	if !ok {
		return
	}
	err := s.sessions.SetActive(id)
	switch {
	case errors.Is(err, auth.ErrUnknownCharacter):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, map[string]int64{"active": id})
	}
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := parseCharacterID(w, r)
	if !ok {
		return
	}
	if err := s.sessions.DeleteByCharacterID(id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
