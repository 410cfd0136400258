// Package schema holds the declarative description of what a document needs:
// entities and their fields, global placeholders and generation rules.
//
// A Schema is read-mostly. It is loaded once, optionally merged with a
// template-specific override, and then shared read-only between sessions.
package schema

import (
	"encoding/json"
	"strings"
)

// FieldType tags how an answer is validated and presented.
type FieldType string

const (
	TypeText       FieldType = "text"
	TypeDate       FieldType = "date"
	TypeYear       FieldType = "year"
	TypeDayOfMonth FieldType = "day_of_month"
	TypeNumber     FieldType = "number"
	TypeChoice     FieldType = "choice"
	TypeName       FieldType = "name"
	TypeAddress    FieldType = "address"
	TypeBoolean    FieldType = "boolean"
)

// Valid reports whether t is one of the known field types.
func (t FieldType) Valid() bool {
	switch t {
	case TypeText, TypeDate, TypeYear, TypeDayOfMonth, TypeNumber,
		TypeChoice, TypeName, TypeAddress, TypeBoolean:
		return true
	}
	return false
}

// compositeParts lists the sub-fields of structured types in asking order.
var compositeParts = map[FieldType][]string{
	TypeName:    {"first", "middle", "last"},
	TypeAddress: {"line1", "line2", "city", "postcode", "country"},
}

var optionalParts = map[FieldType]map[string]bool{
	TypeName:    {"middle": true},
	TypeAddress: {"line2": true},
}

// IsComposite reports whether t is stored as a group of sub-fields.
func (t FieldType) IsComposite() bool {
	_, ok := compositeParts[t]
	return ok
}

// Parts returns the sub-field names of a composite type.
func (t FieldType) Parts() []string {
	return append([]string(nil), compositeParts[t]...)
}

// OptionalPart reports whether part of a composite t may be left blank.
func (t FieldType) OptionalPart(part string) bool {
	return optionalParts[t][part]
}

// Prompt is the "ask" text of a field. Simple fields carry one string;
// composite fields may carry one prompt per sub-field.
type Prompt struct {
	Text  string
	Parts map[string]string
}

// For returns the prompt for a composite sub-field.
func (p Prompt) For(part string) (string, bool) {
	s, ok := p.Parts[part]
	return s, ok && strings.TrimSpace(s) != ""
}

// IsZero reports whether the prompt is empty.
func (p Prompt) IsZero() bool {
	return p.Text == "" && len(p.Parts) == 0
}

func (p Prompt) clone() Prompt {
	out := Prompt{Text: p.Text}
	if p.Parts != nil {
		out.Parts = make(map[string]string, len(p.Parts))
		for k, v := range p.Parts {
			out.Parts[k] = v
		}
	}
	return out
}

func (p Prompt) MarshalJSON() ([]byte, error) {
	if len(p.Parts) > 0 {
		return json.Marshal(p.Parts)
	}
	return json.Marshal(p.Text)
}

func (p *Prompt) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*p = Prompt{Text: text}
		return nil
	}
	var parts map[string]string
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	*p = Prompt{Parts: parts}
	return nil
}

// FieldDef describes one answerable value.
type FieldDef struct {
	Type           FieldType `yaml:"type" json:"type"`
	Description    string    `yaml:"description,omitempty" json:"description,omitempty"`
	Ask            Prompt    `yaml:"ask,omitempty" json:"ask,omitempty"`
	Options        []string  `yaml:"options,omitempty" json:"options,omitempty"`
	ValidationRule string    `yaml:"validation_rule,omitempty" json:"validation_rule,omitempty"`
	// Optional is only set on synthesized composite sub-field definitions.
	Optional bool `yaml:"-" json:"optional,omitempty"`
}

// Clone returns a deep copy of f.
func (f *FieldDef) Clone() *FieldDef {
	if f == nil {
		return nil
	}
	out := *f
	out.Ask = f.Ask.clone()
	out.Options = append([]string(nil), f.Options...)
	return &out
}

// Entity is a named group of fields, singular or repeating.
type Entity struct {
	Name          string `yaml:"-" json:"name"`
	Description   string `yaml:"description,omitempty" json:"description,omitempty"`
	AllowMultiple bool   `yaml:"allow_multiple,omitempty" json:"allow_multiple,omitempty"`
	// Conditional names the boolean gate key (e.g. "user.is_married") that
	// must be true before any of this entity's fields are asked.
	Conditional string               `yaml:"conditional,omitempty" json:"conditional,omitempty"`
	Fields      map[string]*FieldDef `yaml:"fields" json:"fields"`
}

// Clone returns a deep copy of e.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	out := *e
	out.Fields = make(map[string]*FieldDef, len(e.Fields))
	for k, f := range e.Fields {
		out.Fields[k] = f.Clone()
	}
	return &out
}

// GateKey returns the question key of the entity's gate, e.g. "user.is_married?".
func (e *Entity) GateKey() string {
	if e == nil || e.Conditional == "" {
		return ""
	}
	return e.Conditional + "?"
}

// GenerationRule derives the Target placeholder from the Uses inputs.
type GenerationRule struct {
	Target    string         `yaml:"target" json:"target"`
	Uses      []string       `yaml:"uses" json:"uses"`
	Operation string         `yaml:"operation" json:"operation"`
	Params    map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
}

// Clone returns a deep copy of r.
func (r *GenerationRule) Clone() *GenerationRule {
	if r == nil {
		return nil
	}
	out := *r
	out.Uses = append([]string(nil), r.Uses...)
	if r.Params != nil {
		out.Params = make(map[string]any, len(r.Params))
		for k, v := range r.Params {
			out.Params[k] = v
		}
	}
	return &out
}

// Param returns a string parameter or def when unset.
func (r *GenerationRule) Param(name, def string) string {
	v, ok := r.Params[name]
	if !ok || v == nil {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return def
}

// Schema is the full, merged description of collectable data.
type Schema struct {
	SystemPrompt string               `json:"system_prompt,omitempty"`
	Description  string               `json:"description,omitempty"`
	Entities     []*Entity            `json:"entities"`
	Globals      map[string]*FieldDef `json:"global_placeholders,omitempty"`
	Rules        []*GenerationRule    `json:"generation_rules,omitempty"`
}

// New returns an empty schema.
func New() *Schema {
	return &Schema{Globals: map[string]*FieldDef{}}
}

// Entity looks up an entity by name.
func (s *Schema) Entity(name string) (*Entity, bool) {
	if s == nil {
		return nil, false
	}
	for _, e := range s.Entities {
		if e.Name == name {
			return e, true
		}
	}
	return nil, false
}

// Global looks up a global placeholder by its full key.
func (s *Schema) Global(key string) (*FieldDef, bool) {
	if s == nil {
		return nil, false
	}
	f, ok := s.Globals[key]
	return f, ok && f != nil
}

// RuleFor returns the generation rule targeting key.
func (s *Schema) RuleFor(key string) (*GenerationRule, bool) {
	if s == nil {
		return nil, false
	}
	for _, r := range s.Rules {
		if r.Target == key {
			return r, true
		}
	}
	return nil, false
}

// ConditionalEntities returns gated entities in declaration order.
func (s *Schema) ConditionalEntities() []*Entity {
	if s == nil {
		return nil
	}
	var out []*Entity
	for _, e := range s.Entities {
		if e.Conditional != "" {
			out = append(out, e)
		}
	}
	return out
}

// Clone returns a deep copy of s.
func (s *Schema) Clone() *Schema {
	if s == nil {
		return nil
	}
	out := &Schema{
		SystemPrompt: s.SystemPrompt,
		Description:  s.Description,
		Entities:     make([]*Entity, 0, len(s.Entities)),
		Globals:      make(map[string]*FieldDef, len(s.Globals)),
		Rules:        make([]*GenerationRule, 0, len(s.Rules)),
	}
	for _, e := range s.Entities {
		out.Entities = append(out.Entities, e.Clone())
	}
	for k, f := range s.Globals {
		out.Globals[k] = f.Clone()
	}
	for _, r := range s.Rules {
		out.Rules = append(out.Rules, r.Clone())
	}
	return out
}

// Descriptions maps entity names and global keys to their human descriptions.
func (s *Schema) Descriptions() map[string]string {
	out := make(map[string]string)
	if s == nil {
		return out
	}
	for _, e := range s.Entities {
		if e.Description != "" {
			out[e.Name] = e.Description
		}
	}
	for k, f := range s.Globals {
		if f != nil && f.Description != "" {
			out[k] = f.Description
		}
	}
	return out
}
