package webui

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kayz/scribe/internal/engine"
	"github.com/kayz/scribe/internal/templates"
)

// Session API keys live in their own namespace so API callers can never
// address a chat platform's session.
const apiKeyPrefix = "api:"

type startSessionRequest struct {
	Key          string         `json:"key"`
	UserID       string         `json:"user_id"`
	TemplatePath string         `json:"template_path"`
	TemplateText string         `json:"template_text"`
	RequiredKeys []string       `json:"required_keys"`
	Seed         map[string]any `json:"seed"`
}

type sessionResponse struct {
	Key string `json:"key"`
	engine.Turn
}

type answerRequest struct {
	Answer string `json:"answer"`
}

func (s *Server) sessionAPIReady(w http.ResponseWriter) bool {
	if s.engine == nil || s.templates == nil {
		writeError(w, http.StatusServiceUnavailable, "session api is not configured")
		return false
	}
	return true
}

// requireToken rejects requests without the configured bearer token.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiToken != "" {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(s.apiToken)) != 1 {
				writeError(w, http.StatusUnauthorized, "missing or invalid api token")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// sessionKey returns the {key} URL parameter if it names an API session.
func sessionKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	key := chi.URLParam(r, "key")
	if !strings.HasPrefix(key, apiKeyPrefix) {
		writeError(w, http.StatusForbidden, "not an api session")
		return "", false
	}
	return key, true
}

func (s *Server) handleTemplates(w http.ResponseWriter, _ *http.Request) {
	if !s.sessionAPIReady(w) {
		return
	}
	nodes, err := s.templates.List()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": nodes})
}

// handleStartSession starts a session from a stored template, or from inline
// template text when no path is given.
func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	if !s.sessionAPIReady(w) {
		return
	}

	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(req.Key) != "" {
		writeError(w, http.StatusForbidden, "session keys are assigned by the server")
		return
	}
	req.Key = apiKeyPrefix + uuid.New().String()

	userID := strings.TrimSpace(req.UserID)
	if s.allow != nil && !s.allow("web", userID) {
		log.Printf("[WebUI] rejected session for web:%s", userID)
		writeError(w, http.StatusForbidden, "user is not allowed")
		return
	}
	// Profiles are keyed by platform, so a web caller only ever sees web profiles.
	if userID != "" {
		userID = "web:" + userID
	}

	start := engine.StartRequest{
		UserID:       userID,
		TemplateText: req.TemplateText,
		RequiredKeys: req.RequiredKeys,
		Seed:         req.Seed,
	}
	if req.TemplatePath != "" {
		tpl, err := s.templates.Load(req.TemplatePath)
		var missing *templates.MissingTemplateError
		if errors.As(err, &missing) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		start.TemplatePath = tpl.Path
		start.TemplateText = tpl.Text
		start.Override = tpl.Override
		if len(start.RequiredKeys) == 0 {
			start.RequiredKeys = tpl.RequiredKeys
		}
	}
	if start.TemplateText == "" {
		writeError(w, http.StatusBadRequest, "template_path or template_text is required")
		return
	}

	turn, err := s.engine.StartSession(r.Context(), req.Key, start)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{Key: req.Key, Turn: turn})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if !s.sessionAPIReady(w) {
		return
	}
	key, ok := sessionKey(w, r)
	if !ok {
		return
	}
	st, err := s.engine.GetState(r.Context(), key)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	turn, err := s.engine.CurrentTurn(r.Context(), key)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"key":           key,
		"status":        st.Status,
		"template_path": st.TemplatePath,
		"question":      turn.Question,
		"data":          st.Data,
		"warnings":      st.Warnings,
	})
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	if !s.sessionAPIReady(w) {
		return
	}
	key, ok := sessionKey(w, r)
	if !ok {
		return
	}
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	turn, err := s.engine.SubmitAnswer(r.Context(), key, req.Answer)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Key: key, Turn: turn})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.sessionAPIReady(w) {
		return
	}
	key, ok := sessionKey(w, r)
	if !ok {
		return
	}
	if err := s.engine.DeleteState(r.Context(), key); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrNotCollecting):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
