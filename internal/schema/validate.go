package schema

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Validate checks structural consistency: known field types, choice options,
// compilable validation rules, resolvable rule inputs and gates, and the
// absence of cycles between generation rules.
func Validate(s *Schema) error {
	if s == nil {
		return &ConfigError{Err: errors.New("schema is nil")}
	}

	var problems []string
	check := func(where string, f *FieldDef) {
		if f == nil {
			problems = append(problems, where+": empty definition")
			return
		}
		if !f.Type.Valid() {
			problems = append(problems, fmt.Sprintf("%s: unknown type %q", where, f.Type))
		}
		if f.Type == TypeChoice && len(f.Options) == 0 {
			problems = append(problems, where+": choice field without options")
		}
		if f.ValidationRule != "" {
			if _, err := regexp.Compile(f.ValidationRule); err != nil {
				problems = append(problems, fmt.Sprintf("%s: bad validation_rule: %v", where, err))
			}
		}
	}

	seen := make(map[string]bool)
	for _, e := range s.Entities {
		if seen[e.Name] {
			problems = append(problems, "duplicate entity "+e.Name)
		}
		seen[e.Name] = true
		for name, f := range e.Fields {
			check(e.Name+"."+name, f)
		}
		if e.Conditional != "" && !s.Knows(e.Conditional) {
			problems = append(problems, fmt.Sprintf("entity %s: gate %q does not resolve", e.Name, e.Conditional))
		}
	}
	for key, f := range s.Globals {
		check(key, f)
	}

	for _, r := range s.Rules {
		if r.Target == "" {
			problems = append(problems, "generation rule without target")
			continue
		}
		if strings.TrimSpace(r.Operation) == "" {
			problems = append(problems, fmt.Sprintf("rule %s: operation is required", r.Target))
		}
		for _, in := range r.Uses {
			if _, isRule := s.RuleFor(in); isRule {
				continue
			}
			if !s.Knows(in) {
				problems = append(problems, fmt.Sprintf("rule %s: input %q does not resolve", r.Target, in))
			}
		}
	}

	if cycle := s.ruleCycle(); len(cycle) > 0 {
		problems = append(problems, "generation rule cycle: "+strings.Join(cycle, " -> "))
	}

	if len(problems) > 0 {
		return &ConfigError{Err: errors.New(strings.Join(problems, "; "))}
	}
	return nil
}

// Knows reports whether key resolves to a field definition: a global
// placeholder, an entity field, a composite sub-field or a "?" flag.
func (s *Schema) Knows(key string) bool {
	if strings.HasSuffix(key, "?") {
		return true
	}
	if _, ok := s.Global(key); ok {
		return true
	}
	parts := strings.Split(key, ".")
	if len(parts) < 2 {
		return false
	}
	entityName := parts[0]
	if i := strings.IndexByte(entityName, '['); i >= 0 {
		entityName = entityName[:i]
	}
	e, ok := s.Entity(entityName)
	if !ok {
		return false
	}
	fieldName := parts[1]
	if i := strings.IndexByte(fieldName, '['); i >= 0 {
		fieldName = fieldName[:i]
	}
	f, ok := e.Fields[fieldName]
	if !ok || f == nil {
		return false
	}
	if len(parts) == 2 {
		return true
	}
	return f.Type.IsComposite()
}

// ruleCycle returns one dependency cycle between rules, or nil.
func (s *Schema) ruleCycle() []string {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int)
	var stack []string
	var cycle []string

	var visit func(target string) bool
	visit = func(target string) bool {
		switch state[target] {
		case visiting:
			for i, t := range stack {
				if t == target {
					cycle = append(append([]string(nil), stack[i:]...), target)
					break
				}
			}
			return true
		case done:
			return false
		}
		state[target] = visiting
		stack = append(stack, target)
		r, _ := s.RuleFor(target)
		for _, in := range r.Uses {
			// A rule reading its own target reads the raw collected value.
			if in == target {
				continue
			}
			if _, isRule := s.RuleFor(in); isRule && visit(in) {
				return true
			}
		}
		stack = stack[:len(stack)-1]
		state[target] = done
		return false
	}

	for _, r := range s.Rules {
		if visit(r.Target) {
			return cycle
		}
	}
	return nil
}
