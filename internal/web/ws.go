package web

import (
	"net/http"

	"github.com/gorilla/websocket"
)

// wsRequest is one user message from the browser.
type wsRequest struct {
	UserInput string `json:"user_input"`
}

// wsReply carries the bot's answer back to the browser. HTML holds the
// markdown-rendered response ready for insertion into the transcript.
type wsReply struct {
	Response  string `json:"response,omitempty"`
	HTML      string `json:"html,omitempty"`
	SessionID string `json:"session_id"`
	Error     string `json:"error,omitempty"`
}

// handleSocket upgrades the connection and runs one chat session for
// its lifetime. Each websocket connection is its own conversation;
// closing the tab ends the session.
func (s *WebServer) handleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	session := s.newSession()
	logger := s.logger.With("session", session.ID())
	logger.Info("websocket session started", "remote", r.RemoteAddr)

	for {
		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		if req.UserInput == "" {
			continue
		}

		reply := wsReply{SessionID: session.ID()}
		response, err := session.Chat(r.Context(), req.UserInput)
		if err != nil {
			logger.Error("chat failed", "error", err)
			reply.Error = err.Error()
		} else {
			reply.Response = response
			reply.HTML = string(renderMarkdown(response))
		}

		if err := conn.WriteJSON(reply); err != nil {
			logger.Warn("websocket write failed", "error", err)
			return
		}
	}
}
