// Package engine drives a document-assembly conversation: it decides which
// question to ask next, validates answers into the collected data and renders
// the finished document.
//
// The planning, answer and rendering functions are pure over a session.State.
// Engine wraps them with a session.Store so each turn is one atomic update.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kayz/scribe/internal/keypath"
	"github.com/kayz/scribe/internal/logger"
	"github.com/kayz/scribe/internal/schema"
	"github.com/kayz/scribe/internal/session"
)

// ProfileStore keeps a user's collected data between sessions.
type ProfileStore interface {
	Load(ctx context.Context, userID string) (map[string]any, error)
	Save(ctx context.Context, userID string, flat map[string]any) error
}

// InputKind tells a transport how to present a question.
type InputKind string

const (
	InputText    InputKind = "text"
	InputBoolean InputKind = "boolean"
	InputChoice  InputKind = "choice"
)

// InputHint is the presentation side channel for a question.
type InputHint struct {
	Kind     InputKind `json:"kind"`
	Options  []string  `json:"options,omitempty"`
	Optional bool      `json:"optional,omitempty"`
}

// Question is a prompt ready to send to the user.
type Question struct {
	Key    string    `json:"key"`
	Prompt string    `json:"prompt"`
	Hint   InputHint `json:"hint"`
}

// Turn is the outcome of one engine step.
type Turn struct {
	Question  *Question      `json:"question,omitempty"`
	Rejection string         `json:"rejection,omitempty"`
	Document  string         `json:"document,omitempty"`
	Done      bool           `json:"done"`
	Status    session.Status `json:"status"`
	Warnings  []string       `json:"warnings,omitempty"`
}

// StartRequest describes the document a new session collects data for.
type StartRequest struct {
	UserID       string
	TemplatePath string
	TemplateText string
	// RequiredKeys in asking order. Empty means "scan the template text".
	RequiredKeys []string
	// Override is a raw JSON or YAML schema patch for this template.
	Override []byte
	// Seed pre-fills data. Keys may be tree roots or flat key paths.
	Seed map[string]any
}

// Option configures an Engine.
type Option func(*Engine)

// WithProfileStore seeds sessions from, and saves answers to, profiles.
func WithProfileStore(p ProfileStore) Option {
	return func(e *Engine) {
		e.profiles = p
	}
}

// Engine runs conversations against a base schema.
type Engine struct {
	store    session.Store
	base     *schema.Schema
	profiles ProfileStore
}

// New creates an Engine.
func New(store session.Store, base *schema.Schema, opts ...Option) *Engine {
	if base == nil {
		base = schema.New()
	}
	e := &Engine{store: store, base: base}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Schema returns the base schema.
func (e *Engine) Schema() *schema.Schema {
	return e.base
}

// BeginSelection records that the user is choosing a template.
func (e *Engine) BeginSelection(ctx context.Context, key, userID string) error {
	st := session.NewState(key, userID)
	st.Status = session.StatusSelectingTemplate
	return e.store.Put(ctx, st)
}

// StartSession begins collecting data for a template and returns the first
// question. A session whose keys are already satisfied completes at once.
func (e *Engine) StartSession(ctx context.Context, key string, req StartRequest) (Turn, error) {
	st := session.NewState(key, req.UserID)
	st.TemplatePath = req.TemplatePath
	st.TemplateText = req.TemplateText

	merged, err := schema.MergeOverride(e.base, req.Override)
	if err != nil {
		logger.Warn("[Engine] schema override for %s ignored: %v", req.TemplatePath, err)
		st.Warnings = append(st.Warnings, err.Error())
	}
	st.Schema = merged
	st.SystemPrompt = merged.SystemPrompt
	st.Descriptions = merged.Descriptions()

	st.RequiredKeys = req.RequiredKeys
	if len(st.RequiredKeys) == 0 {
		st.RequiredKeys = ScanRequiredKeys(req.TemplateText)
	}

	if e.profiles != nil && req.UserID != "" {
		flat, err := e.profiles.Load(ctx, req.UserID)
		if err != nil {
			logger.Warn("[Engine] failed to load profile for %s: %v", req.UserID, err)
		} else if len(flat) > 0 {
			tree, skipped := keypath.Unflatten(flat)
			if len(skipped) > 0 {
				logger.Debug("[Engine] skipped profile keys: %v", skipped)
			}
			st.Data = tree
		}
	}
	seedKeys := make([]string, 0, len(req.Seed))
	for k := range req.Seed {
		seedKeys = append(seedKeys, k)
	}
	keypath.SortKeys(seedKeys)
	for _, k := range seedKeys {
		if strings.ContainsAny(k, ".[") {
			if err := keypath.SetKey(st.Data, k, req.Seed[k]); err != nil {
				logger.Warn("[Engine] ignoring seed %s: %v", k, err)
			}
			continue
		}
		st.Data[k] = req.Seed[k]
	}

	st.Status = session.StatusCollectingData
	turn := advance(st)
	turn.Warnings = st.Warnings
	if turn.Done {
		logger.Info("[Engine] session %s completed without questions", key)
		_ = e.store.Delete(ctx, key)
		return turn, nil
	}
	if err := e.store.Put(ctx, st); err != nil {
		return Turn{}, fmt.Errorf("failed to save session: %w", err)
	}
	logger.Info("[Engine] session %s started for %s (%d required keys)", key, req.TemplatePath, len(st.RequiredKeys))
	return turn, nil
}

// SubmitAnswer applies raw to the pending question and returns what comes
// next: a re-ask with a rejection reason, the next question, or the rendered
// document. A completed session is removed from the store.
func (e *Engine) SubmitAnswer(ctx context.Context, key, raw string) (Turn, error) {
	var (
		turn     Turn
		accepted bool
		userID   string
		snapshot map[string]any
	)
	err := e.store.Update(ctx, key, func(st *session.State) error {
		if st.Status != session.StatusCollectingData {
			return fmt.Errorf("%w: status is %s", ErrNotCollecting, st.Status)
		}
		if st.CurrentQuestionKey == "" {
			if _, done := FindNextQuestion(st); done {
				turn = finish(st)
				return nil
			}
		}

		pending := st.CurrentQuestionKey
		if err := ApplyAnswer(raw, st); err != nil {
			var ve *ValidationError
			if !errors.As(err, &ve) {
				return err
			}
			turn = Turn{
				Question:  BuildQuestion(pending, st.Schema),
				Rejection: ve.Reason,
				Status:    st.Status,
			}
			return nil
		}

		accepted = true
		userID = st.UserID
		snapshot = keypath.Clone(st.Data)
		turn = advance(st)
		return nil
	})
	if err != nil {
		return Turn{}, err
	}

	if accepted && e.profiles != nil && userID != "" {
		if err := e.profiles.Save(ctx, userID, keypath.Flatten(snapshot)); err != nil {
			logger.Warn("[Engine] failed to save profile for %s: %v", userID, err)
		}
	}
	if turn.Done {
		if err := e.store.Delete(ctx, key); err != nil {
			logger.Warn("[Engine] failed to delete finished session %s: %v", key, err)
		}
		logger.Info("[Engine] session %s completed", key)
	}
	return turn, nil
}

// CurrentTurn returns the pending question of a session without changing it.
func (e *Engine) CurrentTurn(ctx context.Context, key string) (Turn, error) {
	st, err := e.store.Get(ctx, key)
	if err != nil {
		return Turn{}, err
	}
	turn := Turn{Status: st.Status, Warnings: st.Warnings}
	if st.CurrentQuestionKey != "" {
		turn.Question = BuildQuestion(st.CurrentQuestionKey, st.Schema)
	}
	return turn, nil
}

// GetState returns a snapshot of a session.
func (e *Engine) GetState(ctx context.Context, key string) (*session.State, error) {
	return e.store.Get(ctx, key)
}

// DeleteState drops a session. Unknown keys are not an error.
func (e *Engine) DeleteState(ctx context.Context, key string) error {
	return e.store.Delete(ctx, key)
}

// advance plans the next question, rendering the document when none is left.
func advance(st *session.State) Turn {
	key, done := FindNextQuestion(st)
	if done {
		return finish(st)
	}
	return Turn{Question: BuildQuestion(key, st.Schema), Status: st.Status}
}

func finish(st *session.State) Turn {
	st.Status = session.StatusGeneratingDocument
	return Turn{
		Document: Render(st.TemplateText, st),
		Done:     true,
		Status:   st.Status,
	}
}

// BuildQuestion turns a key into a prompt with its presentation hint.
func BuildQuestion(key string, sch *schema.Schema) *Question {
	q := &Question{Key: key, Hint: InputHint{Kind: InputText}}
	def, ok := ResolveField(key, sch)
	if !ok {
		q.Prompt = fmt.Sprintf("Please provide %s.", humanize(lastSegment(key)))
		return q
	}

	q.Prompt = def.Ask.Text
	if q.Prompt == "" {
		label := def.Description
		if label == "" {
			label = humanize(lastSegment(key))
		}
		q.Prompt = fmt.Sprintf("Please provide %s.", label)
	}
	switch def.Type {
	case schema.TypeBoolean:
		q.Hint.Kind = InputBoolean
		q.Hint.Options = []string{"Yes", "No"}
	case schema.TypeChoice:
		q.Hint.Kind = InputChoice
		q.Hint.Options = append([]string(nil), def.Options...)
	}
	q.Hint.Optional = def.Optional
	return q
}

// ScanRequiredKeys lists the placeholders of a template in order, with array
// indices collapsed to "[]".
func ScanRequiredKeys(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, k := range keypath.Markers(text) {
		k = keypath.Template(k)
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}
