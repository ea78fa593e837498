// Package web provides the chat web interface for Glitch.
package web

import (
	"html/template"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/g3ntl3Giants/glitch/internal/bot"
)

// SessionFactory creates a fresh chat session for one browser
// connection.
type SessionFactory func() *bot.Session

// WebServer serves the chat page and its websocket endpoint.
type WebServer struct {
	brandName  string
	newSession SessionFactory
	templates  map[string]*template.Template
	upgrader   websocket.Upgrader
	logger     *slog.Logger
}

// NewServer creates the web UI server.
func NewServer(brandName string, newSession SessionFactory, logger *slog.Logger) *WebServer {
	return &WebServer{
		brandName:  brandName,
		newSession: newSession,
		templates:  loadTemplates(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		logger: logger,
	}
}

// RegisterRoutes adds the chat UI routes to a mux.
func (s *WebServer) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /chat", s.handleChat)
	mux.HandleFunc("GET /chat/ws", s.handleSocket)
}

// PageData is the template context shared by all pages.
type PageData struct {
	BrandName string
}

// handleChat renders the chat page.
func (s *WebServer) handleChat(w http.ResponseWriter, r *http.Request) {
	s.render(w, "chat.html", PageData{BrandName: s.brandName})
}
