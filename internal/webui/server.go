// Package webui serves the HTTP and websocket front end: a small chat page,
// a chat endpoint that goes through the same turn handler as the bots, and
// a JSON API over engine sessions.
package webui

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"github.com/kayz/scribe/internal/engine"
	"github.com/kayz/scribe/internal/router"
	"github.com/kayz/scribe/internal/templates"
)

// MessageProcessor answers one chat message.
type MessageProcessor interface {
	HandleMessage(ctx context.Context, msg router.Message) (router.Response, error)
}

// TemplateSource lists and loads templates for the session API.
type TemplateSource interface {
	List() ([]templates.Node, error)
	Load(path string) (*templates.Template, error)
}

// Config wires a Server. Engine and Templates may be nil, which disables
// the session API.
type Config struct {
	Processor      MessageProcessor
	Engine         *engine.Engine
	Templates      TemplateSource
	AllowedOrigins []string
	// Allow, when set, filters session API callers by user ID.
	Allow func(platform, userID string) bool
	// APIToken, when set, is required as a bearer token on the session API.
	APIToken string
}

// Server is the web front end.
type Server struct {
	processor MessageProcessor
	engine    *engine.Engine
	templates TemplateSource
	origins   []string
	allow     func(platform, userID string) bool
	apiToken  string
	upgrader  websocket.Upgrader
	startedAt time.Time
}

// NewServer creates a Server.
func NewServer(cfg Config) *Server {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Server{
		processor: cfg.Processor,
		engine:    cfg.Engine,
		templates: cfg.Templates,
		origins:   origins,
		allow:     cfg.Allow,
		apiToken:  cfg.APIToken,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		startedAt: time.Now().UTC(),
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))
	RegisterRoutes(r, s)
	return r
}

// RegisterRoutes mounts the server's endpoints on r.
func RegisterRoutes(r chi.Router, s *Server) {
	r.Get("/", s.handleIndex)
	r.Get("/api/status", s.handleStatus)
	r.Post("/api/chat", s.handleChat)
	r.Get("/ws", s.handleWebsocket)

	r.Group(func(r chi.Router) {
		r.Use(s.requireToken)
		r.Get("/api/templates", s.handleTemplates)
		r.Post("/api/sessions", s.handleStartSession)
		r.Get("/api/sessions/{key}", s.handleGetSession)
		r.Post("/api/sessions/{key}/answer", s.handleAnswer)
		r.Delete("/api/sessions/{key}", s.handleDeleteSession)
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(defaultIndexHTML))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":          true,
		"started_at":  s.startedAt.Format(time.RFC3339),
		"uptime_sec":  int(time.Since(s.startedAt).Seconds()),
		"session_api": s.engine != nil && s.templates != nil,
	})
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Text      string `json:"text"`
}

type chatResponse struct {
	Text     string   `json:"text"`
	Options  []string `json:"options,omitempty"`
	Document string   `json:"document,omitempty"`
	Error    string   `json:"error,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.processor == nil {
		writeError(w, http.StatusServiceUnavailable, "processor is not initialized")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.normalize()
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	resp, err := s.processor.HandleMessage(r.Context(), req.message())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toChatResponse(resp))
}

func (req *chatRequest) normalize() {
	req.Text = strings.TrimSpace(req.Text)
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.UserID = strings.TrimSpace(req.UserID)
	if req.SessionID == "" {
		req.SessionID = "web-default"
	}
	if req.UserID == "" {
		req.UserID = "web-user"
	}
}

func (req *chatRequest) message() router.Message {
	return router.Message{
		Platform:  "web",
		ChannelID: req.SessionID,
		UserID:    req.UserID,
		Username:  req.UserID,
		Text:      req.Text,
		Metadata:  map[string]string{"chat_type": "private"},
	}
}

func toChatResponse(resp router.Response) chatResponse {
	return chatResponse{Text: resp.Text, Options: resp.Options, Document: resp.Document}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

const defaultIndexHTML = `<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>scribe</title>
  <style>
    body { font-family: "Segoe UI", sans-serif; margin: 0; background: #f4f6f9; color: #1f2937; }
    .wrap { max-width: 860px; margin: 0 auto; padding: 20px; }
    .panel { background: #fff; border-radius: 10px; box-shadow: 0 6px 24px rgba(15,23,42,.08); padding: 16px; }
    #log { min-height: 320px; max-height: 60vh; overflow: auto; white-space: pre-wrap; border: 1px solid #d1d5db; border-radius: 8px; padding: 12px; background: #f9fafb; }
    #options { display: flex; flex-wrap: wrap; gap: 6px; margin-top: 10px; }
    .row { display: flex; gap: 8px; margin-top: 10px; }
    input { flex: 1; padding: 10px; border: 1px solid #cbd5e1; border-radius: 8px; }
    button { padding: 8px 14px; border: 0; border-radius: 8px; background: #1d4ed8; color: #fff; cursor: pointer; }
    pre.doc { background: #fffbea; border: 1px solid #facc15; padding: 12px; border-radius: 8px; }
  </style>
</head>
<body>
  <div class="wrap">
    <div class="panel">
      <h2>scribe</h2>
      <div id="log"></div>
      <div id="options"></div>
      <div class="row">
        <input id="msg" placeholder="Type an answer, or /start" />
        <button id="send">Send</button>
      </div>
    </div>
  </div>
  <script>
    const log = document.getElementById('log');
    const msg = document.getElementById('msg');
    const opts = document.getElementById('options');
    const sessionId = 'web-' + Date.now();
    const proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
    const ws = new WebSocket(proto + location.host + '/ws?session_id=' + sessionId);
    const append = (role, text) => { log.textContent += role + ': ' + text + '\n\n'; log.scrollTop = log.scrollHeight; };
    ws.onopen = () => ws.send(JSON.stringify({ text: '/start' }));
    ws.onmessage = (ev) => {
      const data = JSON.parse(ev.data);
      append('scribe', data.text || data.error || '');
      if (data.document) append('document', data.document);
      opts.innerHTML = '';
      (data.options || []).forEach((o) => {
        const b = document.createElement('button');
        b.textContent = o;
        b.onclick = () => sendText(o);
        opts.appendChild(b);
      });
    };
    function sendText(text) {
      if (!text) return;
      append('You', text);
      ws.send(JSON.stringify({ text }));
    }
    document.getElementById('send').addEventListener('click', () => { sendText(msg.value.trim()); msg.value = ''; });
    msg.addEventListener('keydown', (e) => { if (e.key === 'Enter') { sendText(msg.value.trim()); msg.value = ''; } });
  </script>
</body>
</html>`
