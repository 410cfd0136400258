// Package session holds per-conversation collection state and the stores
// that keep it between turns.
package session

import (
	"time"

	"github.com/kayz/scribe/internal/keypath"
	"github.com/kayz/scribe/internal/schema"
)

// Status is the lifecycle phase of a document-assembly conversation.
type Status string

const (
	StatusIdle                  Status = "idle"
	StatusSelectingTemplate     Status = "selecting_template"
	StatusCollectingData        Status = "collecting_data"
	StatusGeneratingDocument    Status = "generating_document"
	StatusAwaitingExternalInput Status = "awaiting_external_input"
	StatusError                 Status = "error"
)

// ArrayCursor tracks collection of one repeating entity.
type ArrayCursor struct {
	// Index is the item currently being filled.
	Index int `json:"index"`
	// Asked is the last index whose "add another?" was answered yes, or -1.
	Asked int `json:"asked"`
	// Done is set once the user declined to add another item.
	Done bool `json:"done"`
}

// State is the mutable record of one conversation. It is owned by the engine
// and only changed inside Store.Update.
type State struct {
	Key    string `json:"key"`
	UserID string `json:"user_id,omitempty"`
	Status Status `json:"status"`

	TemplatePath string   `json:"template_path,omitempty"`
	TemplateText string   `json:"template_text,omitempty"`
	RequiredKeys []string `json:"required_keys,omitempty"`

	Data               map[string]any `json:"data"`
	CurrentQuestionKey string         `json:"current_question_key,omitempty"`

	// CurrentEntity names the array entity the cursor currently points into.
	CurrentEntity string                  `json:"current_entity,omitempty"`
	Cursors       map[string]*ArrayCursor `json:"cursors,omitempty"`

	Schema       *schema.Schema    `json:"schema,omitempty"`
	SystemPrompt string            `json:"system_prompt,omitempty"`
	Descriptions map[string]string `json:"descriptions,omitempty"`
	Warnings     []string          `json:"warnings,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewState returns an idle state for key.
func NewState(key, userID string) *State {
	now := time.Now().UTC()
	return &State{
		Key:       key,
		UserID:    userID,
		Status:    StatusIdle,
		Data:      map[string]any{},
		Cursors:   map[string]*ArrayCursor{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Cursor returns the cursor for entity, creating it on first use.
func (s *State) Cursor(entity string) *ArrayCursor {
	if s.Cursors == nil {
		s.Cursors = map[string]*ArrayCursor{}
	}
	c, ok := s.Cursors[entity]
	if !ok {
		c = &ArrayCursor{Asked: -1}
		s.Cursors[entity] = c
	}
	return c
}

// CurrentEntityIndex returns the index of the open array entity, if any.
func (s *State) CurrentEntityIndex() (int, bool) {
	if s.CurrentEntity == "" {
		return 0, false
	}
	c, ok := s.Cursors[s.CurrentEntity]
	if !ok {
		return 0, false
	}
	return c.Index, true
}

// Clone deep-copies the state. The schema is shared; it is immutable once merged.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := *s
	out.RequiredKeys = append([]string(nil), s.RequiredKeys...)
	out.Data = keypath.Clone(s.Data)
	if out.Data == nil {
		out.Data = map[string]any{}
	}
	out.Cursors = make(map[string]*ArrayCursor, len(s.Cursors))
	for k, c := range s.Cursors {
		cc := *c
		out.Cursors[k] = &cc
	}
	if s.Descriptions != nil {
		out.Descriptions = make(map[string]string, len(s.Descriptions))
		for k, v := range s.Descriptions {
			out.Descriptions[k] = v
		}
	}
	out.Warnings = append([]string(nil), s.Warnings...)
	return &out
}
