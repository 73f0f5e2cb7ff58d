package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"

	"eve-dealfinder/internal/db"
	"eve-dealfinder/internal/engine"
	"eve-dealfinder/internal/esi"
	"eve-dealfinder/internal/logger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DealFinder runs one discovery.
type DealFinder interface {
	FindDealsReport(ctx context.Context) (*engine.RunReport, error)
	CachedStats() int
}

// RunStore records and lists discovery runs.
type RunStore interface {
	InsertRun(characterID int64, r *engine.RunReport) (int64, error)
	GetRuns(limit int) []db.RunRecord
	GetRun(id int64) *db.RunRecord
	GetRunDeals(runID int64) []engine.Deal
}

// HealthChecker reports upstream availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) bool
}

// Server is the HTTP API over the deal finder and its run history.
type Server struct {
	finder      DealFinder
	runs        RunStore
	esi         HealthChecker  // optional
	sessions    SessionManager // optional, see SetSessions
	characterID int64

	// One discovery at a time; overlapping runs would race on the persisted cache.
	scanMu sync.Mutex
}

// NewServer creates a Server. health may be nil.
func NewServer(finder DealFinder, runs RunStore, health HealthChecker, characterID int64) *Server {
	return &Server{finder: finder, runs: runs, esi: health, characterID: characterID}
}

// Handler returns the HTTP handler with all API routes and CORS middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(corsMiddleware)
	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/deals", s.handleDeals)
		r.Get("/runs", s.handleGetRuns)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Get("/runs/{id}/deals", s.handleGetRunDeals)
		if s.sessions != nil {
			r.Get("/session", s.handleGetSession)
			r.Post("/session", s.handleSaveSession)
			r.Put("/session/{id}/active", s.handleActivateSession)
			r.Delete("/session/{id}", s.handleDeleteSession)
		}
	})
	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"character_id": s.characterID,
		"cached_stats": s.finder.CachedStats(),
	}
	if s.esi != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		status["esi_ok"] = s.esi.HealthCheck(ctx)
	}
	writeJSON(w, status)
}

type dealsResponse struct {
	RunID  int64             `json:"run_id"`
	Report *engine.RunReport `json:"report"`
}

func (s *Server) handleDeals(w http.ResponseWriter, r *http.Request) {
	id, report, ok, err := s.Discover(r.Context())
	if !ok {
		writeError(w, http.StatusConflict, "discovery already running")
		return
	}
	if err != nil {
		logger.Error("API", "discovery failed", logger.Err(err))
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, dealsResponse{RunID: id, Report: report})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, esi.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, engine.ErrInvariant):
		return http.StatusInternalServerError
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func (s *Server) handleGetRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	writeJSON(w, s.runs.GetRuns(limit))
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, ok := parseRunID(w, r)
	if !ok {
		return
	}
	run := s.runs.GetRun(id)
	if run == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("run %d not found", id))
		return
	}
	writeJSON(w, run)
}

func (s *Server) handleGetRunDeals(w http.ResponseWriter, r *http.Request) {
	id, ok := parseRunID(w, r)
	if !ok {
		return
	}
	if s.runs.GetRun(id) == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("run %d not found", id))
		return
	}
	writeJSON(w, s.runs.GetRunDeals(id))
}

func parseRunID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	return parseIDParam(w, r, "invalid run id")
}

func parseCharacterID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	return parseIDParam(w, r, "invalid character id")
}

func parseIDParam(w http.ResponseWriter, r *http.Request, msg string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, msg)
		return 0, false
	}
	return id, true
}
