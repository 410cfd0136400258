package engine

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kayz/scribe/internal/keypath"
	"github.com/kayz/scribe/internal/schema"
	"github.com/kayz/scribe/internal/session"
)

// Render substitutes every {{placeholder}} in text from the session's data.
// It never fails: unresolvable placeholders become inline markers.
func Render(text string, st *session.State) string {
	return RenderData(text, st.Data, st.Schema)
}

// RenderData is Render over a bare data tree.
func RenderData(text string, data map[string]any, sch *schema.Schema) string {
	resolved := make(map[string]string)
	for _, key := range keypath.Markers(text) {
		resolved[key] = resolvePlaceholder(key, data, sch)
	}
	return keypath.MarkerPattern.ReplaceAllStringFunc(text, func(m string) string {
		key := keypath.MarkerPattern.FindStringSubmatch(m)[1]
		return resolved[key]
	})
}

func resolvePlaceholder(key string, data map[string]any, sch *schema.Schema) string {
	if rule, ok := sch.RuleFor(key); ok {
		return applyRuleAt(rule, data, sch, 0, 0)
	}
	// "property[1].summary" is produced by the rule for "property[].summary".
	if tmpl := keypath.Template(key); tmpl != key {
		if rule, ok := sch.RuleFor(tmpl); ok {
			idx, _ := keypath.FirstIndex(key)
			return applyRuleAt(rule, data, sch, idx, 0)
		}
	}

	v, ok := keypath.Lookup(data, key)
	if !ok || v == nil {
		return missingMarker(key)
	}
	if m, ok := v.(map[string]any); ok {
		return joinComposite(key, m, sch)
	}
	return stringValue(v)
}

// joinComposite renders a name or address stored as sub-fields.
func joinComposite(key string, m map[string]any, sch *schema.Schema) string {
	sep := " "
	var order []string
	if def, ok := ResolveField(keypath.Template(key), sch); ok && def.Type.IsComposite() {
		order = def.Type.Parts()
		if def.Type == schema.TypeAddress {
			sep = ", "
		}
	}
	if order == nil {
		for k := range m {
			order = append(order, k)
		}
		sort.Strings(order)
	}

	parts := make([]string, 0, len(order))
	for _, p := range order {
		if s := strings.TrimSpace(stringValue(m[p])); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, sep)
}

func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "Yes"
		}
		return "No"
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
