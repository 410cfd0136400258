package engine

import (
	"strings"

	"github.com/kayz/scribe/internal/keypath"
	"github.com/kayz/scribe/internal/schema"
	"github.com/kayz/scribe/internal/session"
)

// maxRuleDepth bounds back-chaining through rules whose inputs are themselves
// rule targets. Validate rejects cycles; this guards unvalidated schemas.
const maxRuleDepth = 8

// FindNextQuestion picks the next key to ask and records it as the state's
// current question. done is true once every required key is satisfied; the
// state's question and open entity are cleared in that case.
//
// Gates of conditional entities come first, in declaration order. Required
// keys are then scanned in order. An array entity stays open while the scan
// visits its "[]" keys; when the scan leaves it, or reaches the end, the
// entity's "add_another?" question is due once per index.
func FindNextQuestion(st *session.State) (key string, done bool) {
	sch := st.Schema

	for _, ent := range sch.ConditionalEntities() {
		if !requiresEntity(st.RequiredKeys, ent.Name) {
			continue
		}
		if _, known := gateValue(st.Data, ent); !known {
			return ask(st, ent.GateKey(), ""), false
		}
	}

	open := ""
	for _, req := range st.RequiredKeys {
		root := keypath.Root(req)
		if ent, ok := sch.Entity(root); ok && ent.Conditional != "" {
			if v, _ := gateValue(st.Data, ent); !v {
				continue
			}
		}

		isArray := keypath.IsTemplate(req)
		if open != "" && (root != open || !isArray) {
			if addAnotherDue(st, open) {
				return ask(st, open+addAnotherSuffix+"?", open), false
			}
			open = ""
		}

		idx := 0
		concrete := req
		if isArray {
			if c := st.Cursors[root]; c != nil {
				if c.Done {
					continue
				}
				idx = c.Index
			}
			open = root
			concrete = keypath.BindKey(req, idx)
		}

		if rule, ok := sch.RuleFor(req); ok {
			if missing, entity, found := missingInput(st, rule, idx, 0); found {
				return ask(st, missing, entity), false
			}
			continue
		}

		if needsAnswer(st, concrete) {
			entity := ""
			if isArray {
				entity = root
			}
			return ask(st, concrete, entity), false
		}
	}

	if open != "" && addAnotherDue(st, open) {
		return ask(st, open+addAnotherSuffix+"?", open), false
	}

	st.CurrentQuestionKey = ""
	st.CurrentEntity = ""
	return "", true
}

func ask(st *session.State, key, entity string) string {
	st.CurrentQuestionKey = key
	if entity != "" {
		st.CurrentEntity = entity
		st.Cursor(entity)
	}
	return key
}

// requiresEntity reports whether any required key lives under entity.
func requiresEntity(required []string, entity string) bool {
	for _, k := range required {
		if keypath.Root(k) == entity {
			return true
		}
	}
	return false
}

// gateValue reads the boolean that governs a conditional entity.
func gateValue(data map[string]any, ent *schema.Entity) (value, known bool) {
	v, ok := keypath.Lookup(data, ent.Conditional)
	if !ok || !keypath.IsPresent(v) {
		return false, false
	}
	return asBool(v)
}

func addAnotherDue(st *session.State, entity string) bool {
	c := st.Cursors[entity]
	if c == nil {
		return true
	}
	return !c.Done && c.Asked != c.Index
}

// missingInput walks a rule's inputs and returns the first one that still has
// to be asked, descending into inputs that are targets of other rules.
func missingInput(st *session.State, rule *schema.GenerationRule, idx, depth int) (key, entity string, found bool) {
	sch := st.Schema
	for _, in := range rule.Uses {
		bound := in
		if keypath.IsTemplate(in) {
			bound = keypath.BindKey(in, idx)
		}

		if sub, ok := sch.RuleFor(in); ok && in != rule.Target && depth < maxRuleDepth {
			if k, e, ok := missingInput(st, sub, idx, depth+1); ok {
				return k, e, true
			}
			continue
		}

		root := keypath.Root(in)
		if ent, ok := sch.Entity(root); ok && ent.Conditional != "" {
			v, known := gateValue(st.Data, ent)
			if !known {
				return ent.GateKey(), "", true
			}
			if !v {
				continue
			}
		}

		if isOptionalPart(sch, in) {
			continue
		}
		if needsAnswer(st, bound) {
			if keypath.IsTemplate(in) {
				return bound, root, true
			}
			return bound, "", true
		}
	}
	return "", "", false
}

// needsAnswer reports whether key is absent or blank in the collected data.
// A blank optional composite part counts as answered.
func needsAnswer(st *session.State, key string) bool {
	base := strings.TrimSuffix(key, "?")
	v, ok := keypath.Lookup(st.Data, base)
	if !ok || v == nil {
		return true
	}
	if keypath.IsPresent(v) {
		return false
	}
	return !isOptionalPart(st.Schema, base)
}

// isOptionalPart reports whether key addresses an optional sub-field of a
// composite type, such as a middle name.
func isOptionalPart(sch *schema.Schema, key string) bool {
	parts := strings.Split(key, ".")
	if len(parts) < 3 {
		return false
	}
	ent, ok := sch.Entity(keypath.Root(key))
	if !ok {
		return false
	}
	f, ok := ent.Fields[stripIndex(parts[1])]
	if !ok || f == nil {
		return false
	}
	return f.Type.OptionalPart(stripIndex(parts[2]))
}
