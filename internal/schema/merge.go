package schema

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Patch types use pointers so an override can tell "unset" from "false" or "".

type fieldPatch struct {
	Type           *FieldType `yaml:"type"`
	Description    *string    `yaml:"description"`
	Ask            *Prompt    `yaml:"ask"`
	Options        []string   `yaml:"options"`
	ValidationRule *string    `yaml:"validation_rule"`
}

type entityPatch struct {
	Description   *string               `yaml:"description"`
	AllowMultiple *bool                 `yaml:"allow_multiple"`
	Conditional   *string               `yaml:"conditional"`
	Fields        map[string]fieldPatch `yaml:"fields"`
}

type schemaPatch struct {
	SystemPrompt *string               `yaml:"system_prompt"`
	Description  *string               `yaml:"description"`
	Entities     yaml.Node             `yaml:"entities"`
	Globals      map[string]fieldPatch `yaml:"global_placeholders"`
	Rules        []*GenerationRule     `yaml:"generation_rules"`
}

// MergeOverride deep-merges a template-specific override fragment (YAML or
// JSON) onto base and returns the result. base is never modified.
//
// On a malformed fragment the returned schema is base itself, together with
// a *ConfigError; callers keep using base and record the warning.
func MergeOverride(base *Schema, override []byte) (*Schema, error) {
	if base == nil {
		base = New()
	}
	if len(bytes.TrimSpace(override)) == 0 {
		return base, nil
	}

	var patch schemaPatch
	if err := yaml.Unmarshal(override, &patch); err != nil {
		return base, &ConfigError{Source: "override", Err: err}
	}

	out := base.Clone()
	if patch.SystemPrompt != nil {
		out.SystemPrompt = *patch.SystemPrompt
	}
	if patch.Description != nil {
		out.Description = *patch.Description
	}

	err := eachMapEntry(&patch.Entities, func(name string, node *yaml.Node) error {
		var ep entityPatch
		if err := node.Decode(&ep); err != nil {
			return fmt.Errorf("entity %s: %w", name, err)
		}
		e, ok := out.Entity(name)
		if !ok {
			e = &Entity{Name: name, Fields: map[string]*FieldDef{}}
			out.Entities = append(out.Entities, e)
		}
		applyEntityPatch(e, ep)
		return nil
	})
	if err != nil {
		return base, &ConfigError{Source: "override", Err: err}
	}

	for key, fp := range patch.Globals {
		f, ok := out.Globals[key]
		if !ok || f == nil {
			f = &FieldDef{}
			out.Globals[key] = f
		}
		applyFieldPatch(f, fp)
	}

	for _, r := range patch.Rules {
		if r == nil || r.Target == "" {
			continue
		}
		replaced := false
		for i, existing := range out.Rules {
			if existing.Target == r.Target {
				out.Rules[i] = r.Clone()
				replaced = true
				break
			}
		}
		if !replaced {
			out.Rules = append(out.Rules, r.Clone())
		}
	}

	return out, nil
}

func applyEntityPatch(e *Entity, p entityPatch) {
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.AllowMultiple != nil {
		e.AllowMultiple = *p.AllowMultiple
	}
	if p.Conditional != nil {
		e.Conditional = *p.Conditional
	}
	if e.Fields == nil {
		e.Fields = map[string]*FieldDef{}
	}
	for name, fp := range p.Fields {
		f, ok := e.Fields[name]
		if !ok || f == nil {
			f = &FieldDef{}
			e.Fields[name] = f
		}
		applyFieldPatch(f, fp)
	}
}

func applyFieldPatch(f *FieldDef, p fieldPatch) {
	if p.Type != nil {
		f.Type = *p.Type
	}
	if p.Description != nil {
		f.Description = *p.Description
	}
	if p.Ask != nil {
		f.Ask = mergePrompt(f.Ask, *p.Ask)
	}
	if p.Options != nil {
		f.Options = append([]string(nil), p.Options...)
	}
	if p.ValidationRule != nil {
		f.ValidationRule = *p.ValidationRule
	}
}

// mergePrompt merges per-part prompts key by key; anything else replaces.
func mergePrompt(base, over Prompt) Prompt {
	if len(base.Parts) == 0 || len(over.Parts) == 0 {
		return over.clone()
	}
	out := base.clone()
	for k, v := range over.Parts {
		out.Parts[k] = v
	}
	return out
}
