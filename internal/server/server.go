// Package server exposes the training workflow over a JSON HTTP API. Each
// API session owns one workflow engine; backend failures surface in the
// returned session state, not as transport errors.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/abdulachik/promptgym/internal/align"
	"github.com/abdulachik/promptgym/internal/db"
	"github.com/abdulachik/promptgym/internal/imaging"
	"github.com/abdulachik/promptgym/internal/session"
)

const defaultRequestTimeout = 3 * time.Minute

// Server routes API requests to per-session workflow engines.
type Server struct {
	gen     session.Generator
	store   *db.Store
	health  *Health
	timeout time.Duration

	mu       sync.Mutex
	sessions map[string]*session.Engine
}

// Config holds server dependencies.
type Config struct {
	Generator session.Generator
	Store     *db.Store // optional; attempts are persisted when set
	Timeout   time.Duration
}

// New creates a server.
func New(cfg Config) (*Server, error) {
	if cfg.Generator == nil {
		return nil, errors.New("generator required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultRequestTimeout
	}

	return &Server{
		gen:      cfg.Generator,
		store:    cfg.Store,
		health:   NewHealth(),
		timeout:  timeout,
		sessions: make(map[string]*session.Engine),
	}, nil
}

// Health returns the server's health tracker.
func (s *Server) Health() *Health {
	return s.health
}

// Routes builds the API handler.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/sessions", s.handleSessionCreate)
	mux.HandleFunc("/api/sessions/", s.handleSessionByID)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/health", s.handleHealth)
	return logMiddleware(mux)
}

// --- Payloads ---

type challengeReq struct {
	Difficulty string `json:"difficulty"`
}

type uploadReq struct {
	DataURL string `json:"data_url"`
}

type promptReq struct {
	Prompt string `json:"prompt"`
}

type sessionResp struct {
	SessionID         string               `json:"session_id"`
	Phase             session.Phase        `json:"phase"`
	Difficulty        string               `json:"difficulty,omitempty"`
	TargetDescription string               `json:"target_description,omitempty"`
	UserPrompt        string               `json:"user_prompt,omitempty"`
	ReferenceImage    string               `json:"reference_image,omitempty"`
	UserImage         string               `json:"user_image,omitempty"`
	Score             *int                 `json:"score,omitempty"`
	Feedback          []align.FeedbackItem `json:"feedback,omitempty"`
	TargetSegments    []align.Segment      `json:"target_segments,omitempty"`
	UserSegments      []align.Segment      `json:"user_segments,omitempty"`
	Error             string               `json:"error,omitempty"`
}

func sessionPayload(id string, sess session.Session) sessionResp {
	resp := sessionResp{
		SessionID:         id,
		Phase:             sess.Phase,
		Difficulty:        sess.Difficulty,
		TargetDescription: sess.TargetDescription,
		UserPrompt:        sess.UserPrompt,
		ReferenceImage:    sess.ReferenceImage.DataURL(),
		UserImage:         sess.UserImage.DataURL(),
		Error:             sess.ErrorMessage,
	}

	// Score, feedback and alignment exist only once the attempt is scored.
	if sess.Phase == session.PhaseResults {
		score := sess.Score
		resp.Score = &score
		resp.Feedback = sess.Feedback
		resp.TargetSegments = align.Segments(sess.TargetDescription,
			align.Align(sess.TargetDescription, sess.Feedback, align.SideTarget))
		resp.UserSegments = align.Segments(sess.UserPrompt,
			align.Align(sess.UserPrompt, sess.Feedback, align.SideUser))
	}

	return resp
}

// --- Handlers ---

func (s *Server) handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := uuid.NewString()
	eng := session.NewEngine(session.Config{Generator: s.gen})

	s.mu.Lock()
	s.sessions[id] = eng
	s.mu.Unlock()

	slog.Info("session created", "session_id", id)
	writeJSON(w, http.StatusCreated, sessionPayload(id, eng.Snapshot()))
}

func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		http.NotFound(w, r)
		return
	}

	s.mu.Lock()
	eng, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, sessionPayload(id, eng.Snapshot()))
	case action == "challenge" && r.Method == http.MethodPost:
		s.handleChallenge(w, r, id, eng)
	case action == "upload" && r.Method == http.MethodPost:
		s.handleUpload(w, r, id, eng)
	case action == "prompt" && r.Method == http.MethodPost:
		s.handlePrompt(w, r, id, eng)
	case action == "reset" && r.Method == http.MethodPost:
		eng.Reset()
		writeJSON(w, http.StatusOK, sessionPayload(id, eng.Snapshot()))
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request, id string, eng *session.Engine) {
	var req challengeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Difficulty == "" {
		http.Error(w, "difficulty required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	err := eng.StartChallenge(ctx, req.Difficulty)
	s.finishTransition(w, id, eng, err)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, id string, eng *session.Engine) {
	var req uploadReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	img, err := imaging.ParseDataURL(req.DataURL)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	err = eng.StartFromImage(ctx, img)
	s.finishTransition(w, id, eng, err)
}

func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request, id string, eng *session.Engine) {
	var req promptReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		http.Error(w, "prompt required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	err := eng.SubmitPrompt(ctx, req.Prompt)
	if err == nil {
		s.recordAttempt(ctx, eng.Snapshot())
	}
	s.finishTransition(w, id, eng, err)
}

// finishTransition maps engine guard errors to HTTP statuses. Backend
// failures are session state (the engine already returned to selection with
// an error message), so they still produce a normal snapshot response.
func (s *Server) finishTransition(w http.ResponseWriter, id string, eng *session.Engine, err error) {
	switch {
	case errors.Is(err, session.ErrBusy), errors.Is(err, session.ErrWrongPhase):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil && !errors.Is(err, session.ErrStale):
		s.health.SetUnhealthy("gemini", err)
	case err == nil:
		s.health.SetHealthy("gemini", "last call succeeded")
	}
	writeJSON(w, http.StatusOK, sessionPayload(id, eng.Snapshot()))
}

// recordAttempt persists a scored attempt. Best effort: history must not
// fail the response.
func (s *Server) recordAttempt(ctx context.Context, sess session.Session) {
	if s.store == nil || sess.Phase != session.PhaseResults {
		return
	}

	kind := db.KindChallenge
	if sess.Difficulty == "custom" {
		kind = db.KindUpload
	}

	_, err := s.store.SaveAttempt(ctx, db.Attempt{
		Kind:              kind,
		Difficulty:        sess.Difficulty,
		TargetDescription: sess.TargetDescription,
		UserPrompt:        sess.UserPrompt,
		Score:             sess.Score,
		Feedback:          sess.Feedback,
		ReferenceImage:    sess.ReferenceImage,
		UserImage:         sess.UserImage,
	})
	if err != nil {
		s.health.SetUnhealthy("db", err)
		slog.Warn("failed to record attempt", "error", err)
		return
	}
	s.health.SetHealthy("db", "attempt recorded")
}

type historyEntry struct {
	ID                int64                `json:"id"`
	CreatedAt         time.Time            `json:"created_at"`
	Kind              string               `json:"kind"`
	Difficulty        string               `json:"difficulty"`
	TargetDescription string               `json:"target_description"`
	UserPrompt        string               `json:"user_prompt"`
	Score             int                  `json:"score"`
	Feedback          []align.FeedbackItem `json:"feedback"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		writeJSON(w, http.StatusOK, []historyEntry{})
		return
	}

	attempts, err := s.store.ListAttempts(r.Context(), 50)
	if err != nil {
		s.health.SetUnhealthy("db", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	entries := make([]historyEntry, 0, len(attempts))
	for _, a := range attempts {
		entries = append(entries, historyEntry{
			ID:                a.ID,
			CreatedAt:         a.CreatedAt,
			Kind:              a.Kind,
			Difficulty:        a.Difficulty,
			TargetDescription: a.TargetDescription,
			UserPrompt:        a.UserPrompt,
			Score:             a.Score,
			Feedback:          a.Feedback,
		})
	}
	writeJSON(w, http.StatusOK, entries)
}

type healthResp struct {
	Healthy    bool                     `json:"healthy"`
	Components map[string]*HealthStatus `json:"components"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, healthResp{
		Healthy:    s.health.IsOverallHealthy(),
		Components: s.health.GetAllStatuses(),
	})
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}
