// Package api implements the HTTP chat API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/g3ntl3Giants/glitch/internal/archive"
	"github.com/g3ntl3Giants/glitch/internal/bot"
	"github.com/g3ntl3Giants/glitch/internal/buildinfo"
	"github.com/g3ntl3Giants/glitch/internal/llm"
	"github.com/g3ntl3Giants/glitch/internal/retry"
	"github.com/g3ntl3Giants/glitch/internal/tools"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response,
// which is not actionable but worth tracking for debugging.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// SessionFactory creates a fresh chat session. The server calls it
// once per conversation it has not seen before.
type SessionFactory func() *bot.Session

// maxLiveSessions caps the in-memory session map. Creating a session
// beyond the cap evicts the least recently used one; its history stays
// readable through the archive endpoints.
const maxLiveSessions = 128

// liveSession tracks a session and when it last handled a request.
type liveSession struct {
	session  *bot.Session
	lastUsed time.Time
}

// Server is the HTTP API server.
type Server struct {
	address      string
	port         int
	newSession   SessionFactory
	registry     *tools.Registry
	archiveStore *archive.Store
	webUI        RouteRegistrar
	logger       *slog.Logger
	server       *http.Server

	mu       sync.Mutex
	sessions map[string]*liveSession
}

// NewServer creates a new API server.
func NewServer(address string, port int, newSession SessionFactory, registry *tools.Registry, logger *slog.Logger) *Server {
	return &Server{
		address:    address,
		port:       port,
		newSession: newSession,
		registry:   registry,
		logger:     logger,
		sessions:   make(map[string]*liveSession),
	}
}

// SetArchiveStore configures the archive store for history endpoints.
func (s *Server) SetArchiveStore(as *archive.Store) {
	s.archiveStore = as
}

// RouteRegistrar mounts additional routes on the server mux.
type RouteRegistrar interface {
	RegisterRoutes(mux *http.ServeMux)
}

// SetWebUI mounts the chat web interface on the API server.
func (s *Server) SetWebUI(ui RouteRegistrar) {
	s.webUI = ui
}

// Handler builds the route table. Split out from Start so tests can
// exercise the mux without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /chat", s.handleChat)

	// Health endpoints
	mux.HandleFunc("GET /version", s.handleVersion)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /", s.handleRoot)

	// Capability introspection
	mux.HandleFunc("GET /tools", s.handleTools)

	// Archive endpoints
	mux.HandleFunc("GET /sessions", s.handleSessions)
	mux.HandleFunc("GET /sessions/{id}", s.handleSessionGet)

	// Chat web UI
	if s.webUI != nil {
		s.webUI.RegisterRoutes(mux)
	}

	return s.withLogging(mux)
}

// Start begins serving HTTP requests.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // completions can be slow
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "Glitch",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.RuntimeInfo(), s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "healthy"}, s.logger)
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	names := s.registry.Names()
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"tools": names,
		"count": len(names),
	}, s.logger)
}

// ChatRequest is the chat endpoint's request body.
type ChatRequest struct {
	UserInput string `json:"user_input"`
	SessionID string `json:"session_id,omitempty"`
}

// ChatResponse is the chat endpoint's response body.
type ChatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
}

// handleChat runs one exchange. Omitting session_id starts a new
// conversation; passing one back continues it.
// POST /chat {"user_input": "hello"}
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.UserInput == "" {
		s.errorResponse(w, http.StatusBadRequest, "user_input is required")
		return
	}

	session, err := s.session(req.SessionID)
	if err != nil {
		s.errorResponse(w, http.StatusNotFound, err.Error())
		return
	}

	response, err := session.Chat(r.Context(), req.UserInput)
	if err != nil {
		s.logger.Error("chat failed", "session", session.ID(), "error", err)
		s.errorResponse(w, statusFor(err), "chat: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, ChatResponse{
		Response:  response,
		SessionID: session.ID(),
	}, s.logger)
}

// session returns the named live session, or creates a fresh one when
// id is empty. Unknown ids are an error rather than a silent restart
// so clients notice when the server has forgotten their history.
func (s *Server) session(id string) (*bot.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		for len(s.sessions) >= maxLiveSessions {
			s.evictOldestLocked()
		}
		session := s.newSession()
		s.sessions[session.ID()] = &liveSession{
			session:  session,
			lastUsed: time.Now(),
		}
		return session, nil
	}

	ls, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("unknown session %s", id)
	}
	ls.lastUsed = time.Now()
	return ls.session, nil
}

// evictOldestLocked removes the least recently used session. Caller
// holds the lock and guarantees the map is non-empty.
func (s *Server) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, ls := range s.sessions {
		if oldestID == "" || ls.lastUsed.Before(oldest) {
			oldestID = id
			oldest = ls.lastUsed
		}
	}
	s.logger.Info("evicting idle session", "session", oldestID, "last_used", oldest)
	delete(s.sessions, oldestID)
}

// statusFor maps an exchange failure to an HTTP status. Exhausted
// retries and rate limits surface as 503 so clients know to back off;
// upstream API rejections come back as 502.
func statusFor(err error) int {
	var rle *llm.RateLimitError
	var se *llm.ServerError
	var apiErr *llm.APIError
	switch {
	case errors.Is(err, retry.ErrRetriesExhausted), errors.As(err, &rle), errors.As(err, &se):
		return http.StatusServiceUnavailable
	case errors.As(err, &apiErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.archiveStore == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "archive not configured")
		return
	}

	sessions, err := s.archiveStore.Sessions()
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "list sessions: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	}, s.logger)
}

func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	if s.archiveStore == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "archive not configured")
		return
	}

	id := r.PathValue("id")

	turns, err := s.archiveStore.SessionTurns(id)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "get session: "+err.Error())
		return
	}
	if len(turns) == 0 {
		s.errorResponse(w, http.StatusNotFound, "session not found")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"session_id": id,
		"turns":      turns,
	}, s.logger)
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    "invalid_request_error",
			"code":    code,
		},
	}, s.logger)
}
