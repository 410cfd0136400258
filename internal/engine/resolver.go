package engine

import (
	"fmt"
	"strings"

	"github.com/kayz/scribe/internal/keypath"
	"github.com/kayz/scribe/internal/logger"
	"github.com/kayz/scribe/internal/schema"
)

const addAnotherSuffix = ".add_another"

// ResolveField returns the definition that applies to key.
//
// Keys ending in "?" are boolean flags: either an entity gate such as
// "user.is_married?" or the "<entity>.add_another?" prompt of an array
// entity. Sub-paths of composite fields ("user.base_name.first") get a
// derived definition carrying the sub-field prompt.
//
// A miss is not fatal; callers ask with a generic prompt.
func ResolveField(key string, sch *schema.Schema) (*schema.FieldDef, bool) {
	if strings.HasSuffix(key, "?") {
		return resolveFlag(strings.TrimSuffix(key, "?"), sch), true
	}

	if f, ok := sch.Global(key); ok {
		return f.Clone(), true
	}

	parts := strings.Split(key, ".")
	if len(parts) < 2 {
		logger.Debug("[Resolver] no definition for %q", key)
		return nil, false
	}
	ent, ok := sch.Entity(keypath.Root(key))
	if !ok {
		logger.Debug("[Resolver] unknown entity for %q", key)
		return nil, false
	}
	fieldName := stripIndex(parts[1])
	parent, ok := ent.Fields[fieldName]
	if !ok || parent == nil {
		logger.Debug("[Resolver] entity %s has no field %q", ent.Name, fieldName)
		return nil, false
	}
	if len(parts) == 2 {
		return parent.Clone(), true
	}
	if !parent.Type.IsComposite() {
		logger.Debug("[Resolver] %q addresses into non-composite field %s", key, fieldName)
		return nil, false
	}

	sub := stripIndex(parts[2])
	derived := parent.Clone()
	prompt, ok := parent.Ask.For(sub)
	if !ok {
		prompt = fmt.Sprintf("Please provide the %s for %s.", humanize(sub), humanize(fieldName))
	}
	derived.Ask = schema.Prompt{Text: prompt}
	derived.Optional = parent.Type.OptionalPart(sub)
	if parent.Description != "" {
		derived.Description = parent.Description + " (" + humanize(sub) + ")"
	}
	return derived, true
}

func resolveFlag(base string, sch *schema.Schema) *schema.FieldDef {
	if strings.HasSuffix(base, addAnotherSuffix) {
		name := keypath.Root(base)
		label := humanize(name)
		if ent, ok := sch.Entity(name); ok && ent.Description != "" {
			label = ent.Description
		}
		text := fmt.Sprintf("Would you like to add another %s?", label)
		return &schema.FieldDef{
			Type:        schema.TypeBoolean,
			Description: text,
			Ask:         schema.Prompt{Text: text},
		}
	}

	// A gate usually points at a declared boolean field; reuse its wording.
	if def, ok := ResolveField(base, sch); ok && def.Type == schema.TypeBoolean {
		if def.Ask.Text == "" {
			def.Ask = schema.Prompt{Text: flagPrompt(base)}
		}
		return def
	}
	text := flagPrompt(base)
	return &schema.FieldDef{
		Type:        schema.TypeBoolean,
		Description: humanize(lastSegment(base)),
		Ask:         schema.Prompt{Text: text},
	}
}

func flagPrompt(base string) string {
	return fmt.Sprintf("Is the following true: %s?", humanize(lastSegment(base)))
}

func stripIndex(segment string) string {
	if i := strings.IndexByte(segment, '['); i >= 0 {
		return segment[:i]
	}
	return segment
}

func lastSegment(key string) string {
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		return key[i+1:]
	}
	return key
}

func humanize(name string) string {
	return strings.ReplaceAll(stripIndex(name), "_", " ")
}
