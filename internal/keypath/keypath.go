// Package keypath addresses values inside the collected-data tree.
//
// A key such as "property[0].address.line1" is parsed once into a Path of
// field and index tokens. The tree itself is plain map[string]any / []any so
// it round-trips through JSON without custom codecs.
package keypath

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Wildcard marks an unbound "[]" index in a key template.
const Wildcard = -1

// Token is one step of a Path: either a map field or a slice index.
type Token struct {
	Field   string
	Index   int
	IsIndex bool
}

// Path is a parsed key.
type Path []Token

// Parse splits key into tokens. "[]" parses to a Wildcard index.
func Parse(key string) (Path, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("empty key")
	}

	var path Path
	for _, segment := range strings.Split(key, ".") {
		if segment == "" {
			return nil, fmt.Errorf("empty segment in key %q", key)
		}
		name := segment
		rest := ""
		if i := strings.IndexByte(segment, '['); i >= 0 {
			name, rest = segment[:i], segment[i:]
		}
		if name == "" {
			return nil, fmt.Errorf("missing field name in key %q", key)
		}
		path = append(path, Token{Field: name})

		for rest != "" {
			if rest[0] != '[' {
				return nil, fmt.Errorf("unexpected %q in key %q", rest, key)
			}
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return nil, fmt.Errorf("unclosed index in key %q", key)
			}
			raw := rest[1:end]
			idx := Wildcard
			if raw != "" {
				n, err := strconv.Atoi(raw)
				if err != nil || n < 0 {
					return nil, fmt.Errorf("invalid index %q in key %q", raw, key)
				}
				idx = n
			}
			path = append(path, Token{Index: idx, IsIndex: true})
			rest = rest[end+1:]
		}
	}
	return path, nil
}

// MustParse is Parse for keys known at compile time.
func MustParse(key string) Path {
	p, err := Parse(key)
	if err != nil {
		panic(err)
	}
	return p
}

// String renders the canonical key form.
func (p Path) String() string {
	var b strings.Builder
	for i, tok := range p {
		if tok.IsIndex {
			if tok.Index == Wildcard {
				b.WriteString("[]")
			} else {
				b.WriteString("[" + strconv.Itoa(tok.Index) + "]")
			}
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(tok.Field)
	}
	return b.String()
}

// Fields returns the field names of p, dropping index tokens.
func (p Path) Fields() []string {
	out := make([]string, 0, len(p))
	for _, tok := range p {
		if !tok.IsIndex {
			out = append(out, tok.Field)
		}
	}
	return out
}

// HasWildcard reports whether p still contains an unbound "[]".
func (p Path) HasWildcard() bool {
	for _, tok := range p {
		if tok.IsIndex && tok.Index == Wildcard {
			return true
		}
	}
	return false
}

// Bind replaces every wildcard index with idx.
func (p Path) Bind(idx int) Path {
	out := make(Path, len(p))
	copy(out, p)
	for i := range out {
		if out[i].IsIndex && out[i].Index == Wildcard {
			out[i].Index = idx
		}
	}
	return out
}

// IsTemplate reports whether key contains an unbound "[]".
func IsTemplate(key string) bool {
	return strings.Contains(key, "[]")
}

// BindKey substitutes idx into every "[]" of a key template.
func BindKey(key string, idx int) string {
	return strings.ReplaceAll(key, "[]", "["+strconv.Itoa(idx)+"]")
}

// Root returns the first field name of key with any index stripped.
func Root(key string) string {
	root := key
	if i := strings.IndexByte(root, '.'); i >= 0 {
		root = root[:i]
	}
	if i := strings.IndexByte(root, '['); i >= 0 {
		root = root[:i]
	}
	return root
}

// Get walks tree along p.
func Get(tree map[string]any, p Path) (any, bool) {
	var cur any = tree
	for _, tok := range p {
		if tok.IsIndex {
			list, ok := cur.([]any)
			if !ok || tok.Index < 0 || tok.Index >= len(list) {
				return nil, false
			}
			cur = list[tok.Index]
			continue
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[tok.Field]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// Lookup parses key and reads it from tree. Unparseable keys are absent.
func Lookup(tree map[string]any, key string) (any, bool) {
	p, err := Parse(key)
	if err != nil {
		return nil, false
	}
	return Get(tree, p)
}

// Set writes v at p, creating intermediate maps as needed. An index may
// address an existing slot or append one at the end; anything further is
// rejected so arrays stay contiguous and cannot be grown by a stray index.
func Set(tree map[string]any, p Path, v any) error {
	if len(p) == 0 {
		return fmt.Errorf("empty path")
	}
	if p[0].IsIndex {
		return fmt.Errorf("path %s must start with a field", p)
	}
	if p.HasWildcard() {
		return fmt.Errorf("path %s has an unbound index", p)
	}
	_, err := setIn(tree, p, v)
	return err
}

func setIn(node any, p Path, v any) (any, error) {
	tok := p[0]
	last := len(p) == 1

	if tok.IsIndex {
		list, _ := node.([]any)
		if node != nil && list == nil {
			return nil, fmt.Errorf("cannot index non-array at [%d]", tok.Index)
		}
		if tok.Index > len(list) {
			return nil, fmt.Errorf("index [%d] is past the end of an array of %d", tok.Index, len(list))
		}
		if tok.Index == len(list) {
			list = append(list, map[string]any{})
		}
		if last {
			list[tok.Index] = v
			return list, nil
		}
		child, err := setIn(list[tok.Index], p[1:], v)
		if err != nil {
			return nil, err
		}
		list[tok.Index] = child
		return list, nil
	}

	m, _ := node.(map[string]any)
	if m == nil {
		if node != nil {
			return nil, fmt.Errorf("cannot set field %q on non-object", tok.Field)
		}
		m = map[string]any{}
	}
	if last {
		m[tok.Field] = v
		return m, nil
	}
	child, err := setIn(m[tok.Field], p[1:], v)
	if err != nil {
		return nil, err
	}
	m[tok.Field] = child
	return m, nil
}

// SetKey parses key and writes v into tree.
func SetKey(tree map[string]any, key string, v any) error {
	p, err := Parse(key)
	if err != nil {
		return err
	}
	return Set(tree, p, v)
}

// Len returns the length of the array stored at key, or 0.
func Len(tree map[string]any, key string) int {
	v, ok := Lookup(tree, key)
	if !ok {
		return 0
	}
	list, _ := v.([]any)
	return len(list)
}

// IsPresent reports whether v counts as an answered value:
// non-nil, and not a blank string.
func IsPresent(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	default:
		return true
	}
}

// Flatten converts tree into a flat key-value snapshot with leaf keys such as
// "property[0].address.line1".
func Flatten(tree map[string]any) map[string]any {
	out := make(map[string]any)
	flattenInto(out, "", tree)
	return out
}

func flattenInto(out map[string]any, prefix string, node any) {
	switch t := node.(type) {
	case map[string]any:
		for k, v := range t {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flattenInto(out, key, v)
		}
	case []any:
		for i, v := range t {
			flattenInto(out, prefix+"["+strconv.Itoa(i)+"]", v)
		}
	default:
		if prefix != "" {
			out[prefix] = node
		}
	}
}

// Unflatten rebuilds a tree from a flat snapshot. Keys that fail to parse are
// skipped and returned so callers can log them.
func Unflatten(flat map[string]any) (map[string]any, []string) {
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	SortKeys(keys)

	tree := make(map[string]any)
	var skipped []string
	for _, k := range keys {
		if err := SetKey(tree, k, flat[k]); err != nil {
			skipped = append(skipped, k)
		}
	}
	return tree, skipped
}

// SortKeys orders keys so that writing them in turn fills every array in
// index order: "x[2]" sorts before "x[10]". Keys that fail to parse go last.
func SortKeys(keys []string) {
	paths := make(map[string]Path, len(keys))
	for _, k := range keys {
		if p, err := Parse(k); err == nil {
			paths[k] = p
		}
	}
	sort.SliceStable(keys, func(i, j int) bool {
		a, aok := paths[keys[i]]
		b, bok := paths[keys[j]]
		if aok != bok {
			return aok
		}
		if !aok {
			return keys[i] < keys[j]
		}
		return comparePaths(a, b) < 0
	})
}

func comparePaths(a, b Path) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		x, y := a[i], b[i]
		switch {
		case x.IsIndex && y.IsIndex:
			if x.Index != y.Index {
				return x.Index - y.Index
			}
		case x.IsIndex != y.IsIndex:
			if x.IsIndex {
				return -1
			}
			return 1
		default:
			if c := strings.Compare(x.Field, y.Field); c != 0 {
				return c
			}
		}
	}
	return len(a) - len(b)
}

// Clone deep-copies a tree of maps, slices and scalars.
func Clone(tree map[string]any) map[string]any {
	if tree == nil {
		return nil
	}
	out, _ := cloneValue(tree).(map[string]any)
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = cloneValue(val)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, val := range t {
			s[i] = cloneValue(val)
		}
		return s
	default:
		return v
	}
}

// MarkerPattern matches a {{placeholder}} whose key is made of word
// characters, dots and bracketed integer indices.
var MarkerPattern = regexp.MustCompile(`\{\{\s*(\w+(?:\[\d+\])*(?:\.\w+(?:\[\d+\])*)*)\s*\}\}`)

var indexPattern = regexp.MustCompile(`\[\d+\]`)

// Markers returns the distinct placeholder keys in text, in first-seen order.
func Markers(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range MarkerPattern.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

// Template collapses concrete indices back to "[]":
// "property[2].address" becomes "property[].address".
func Template(key string) string {
	return indexPattern.ReplaceAllString(key, "[]")
}

// FirstIndex returns the first concrete index in key.
func FirstIndex(key string) (int, bool) {
	loc := indexPattern.FindStringIndex(key)
	if loc == nil {
		return 0, false
	}
	n, err := strconv.Atoi(key[loc[0]+1 : loc[1]-1])
	if err != nil {
		return 0, false
	}
	return n, true
}
