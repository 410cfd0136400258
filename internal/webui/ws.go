package webui

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	wsReadTimeout = 10 * time.Minute
	wsTurnTimeout = 30 * time.Second
)

// handleWebsocket runs a chat loop: each frame is a chatRequest (or plain
// text) and each reply a chatResponse. The connection is one session.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	if s.processor == nil {
		writeError(w, http.StatusServiceUnavailable, "processor is not initialized")
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WebUI] websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		sessionID = "ws-" + uuid.New().String()
	}
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	log.Printf("[WebUI] websocket session %s connected", sessionID)

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	for {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[WebUI] websocket session %s read error: %v", sessionID, err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		req := decodeFrame(data)
		req.SessionID = sessionID
		if req.UserID == "" {
			req.UserID = userID
		}
		req.normalize()
		if req.Text == "" {
			continue
		}

		ctx, cancel := context.WithTimeout(r.Context(), wsTurnTimeout)
		resp, err := s.processor.HandleMessage(ctx, req.message())
		cancel()

		out := toChatResponse(resp)
		if err != nil {
			out = chatResponse{Error: err.Error()}
		}
		if err := conn.WriteJSON(out); err != nil {
			log.Printf("[WebUI] websocket session %s write error: %v", sessionID, err)
			return
		}
	}
}

// decodeFrame accepts {"text": ...} or a bare string.
func decodeFrame(data []byte) chatRequest {
	var req chatRequest
	if err := json.Unmarshal(data, &req); err == nil {
		return req
	}
	return chatRequest{Text: string(data)}
}
