package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kayz/scribe/internal/keypath"
	"github.com/kayz/scribe/internal/logger"
	"github.com/kayz/scribe/internal/schema"
)

// Operation is the closed set of generation-rule operations.
type Operation int

const (
	OpUnknown Operation = iota
	OpCombineNames
	OpFormatDate
	OpConditionalText
)

var operationNames = map[string]Operation{
	"combine_names":    OpCombineNames,
	"format_date":      OpFormatDate,
	"conditional_text": OpConditionalText,
}

// ParseOperation maps a rule's operation name to its tag.
func ParseOperation(name string) Operation {
	return operationNames[strings.TrimSpace(name)]
}

func (o Operation) String() string {
	for name, op := range operationNames {
		if op == o {
			return name
		}
	}
	return "unknown"
}

// Output layouts accepted by format_date.
var dateLayouts = map[string]string{
	"DD MMMM YYYY":      "02 January 2006",
	"DD MonthName YYYY": "02 January 2006",
	"YYYY-MM-DD":        "2006-01-02",
	"MM/DD/YYYY":        "01/02/2006",
}

var errMissingInput = errors.New("missing input")

// input is one gathered rule argument.
type input struct {
	key     string
	value   any
	present bool
}

// ApplyRule evaluates rule against data. It always returns a string; failures
// come back as inline markers such as "[INVALID_DATE:1990-5-12]".
func ApplyRule(rule *schema.GenerationRule, data map[string]any, sch *schema.Schema) string {
	return applyRuleAt(rule, data, sch, 0, 0)
}

func applyRuleAt(rule *schema.GenerationRule, data map[string]any, sch *schema.Schema, idx, depth int) string {
	out, err := evalRule(rule, data, sch, idx, depth)
	if err != nil {
		var re *RuleExecutionError
		if errors.As(err, &re) {
			logger.Debug("[Rules] %v", re)
			return re.Marker
		}
		return "[" + rule.Target + "_ERROR]"
	}
	return out
}

func evalRule(rule *schema.GenerationRule, data map[string]any, sch *schema.Schema, idx, depth int) (string, error) {
	op := ParseOperation(rule.Operation)
	args := gather(rule, data, sch, idx, depth)

	if op != OpConditionalText {
		for _, a := range args {
			if !a.present && !isOptionalPart(sch, a.key) {
				return "", &RuleExecutionError{
					Target: rule.Target,
					Marker: missingMarker(a.key),
					Err:    fmt.Errorf("%w %s", errMissingInput, a.key),
				}
			}
		}
	}

	switch op {
	case OpCombineNames:
		return combineNames(rule, args), nil
	case OpFormatDate:
		return formatDate(rule, args)
	case OpConditionalText:
		return conditionalText(rule, args), nil
	case OpUnknown:
		return "", &RuleExecutionError{
			Target: rule.Target,
			Marker: "[UNKNOWN_RULE_OP:" + rule.Operation + "]",
			Err:    fmt.Errorf("unknown operation %q", rule.Operation),
		}
	}
	return "", fmt.Errorf("unhandled operation %v", op)
}

// gather reads rule inputs, binding "[]" to idx and evaluating inputs that are
// themselves rule targets.
func gather(rule *schema.GenerationRule, data map[string]any, sch *schema.Schema, idx, depth int) []input {
	args := make([]input, 0, len(rule.Uses))
	for _, in := range rule.Uses {
		key := in
		if keypath.IsTemplate(in) {
			key = keypath.BindKey(in, idx)
		}
		if sub, ok := sch.RuleFor(in); ok && in != rule.Target && depth < maxRuleDepth {
			out, err := evalRule(sub, data, sch, idx, depth+1)
			args = append(args, input{key: key, value: out, present: err == nil})
			continue
		}
		v, ok := keypath.Lookup(data, key)
		args = append(args, input{key: key, value: v, present: ok && keypath.IsPresent(v)})
	}
	return args
}

func combineNames(rule *schema.GenerationRule, args []input) string {
	var first, middle, last string
	switch len(args) {
	case 0:
	case 1:
		first = stringValue(args[0].value)
	case 2:
		first, last = stringValue(args[0].value), stringValue(args[1].value)
	default:
		first, middle, last = stringValue(args[0].value), stringValue(args[1].value), stringValue(args[2].value)
	}

	var order []string
	switch rule.Param("format", "first_middle_last") {
	case "last_first_middle":
		order = []string{last, first, middle}
	case "first_last":
		order = []string{first, last}
	default:
		order = []string{first, middle, last}
	}

	parts := make([]string, 0, len(order))
	for _, p := range order {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, rule.Param("separator", " "))
}

func formatDate(rule *schema.GenerationRule, args []input) (string, error) {
	if len(args) == 0 {
		return "", &RuleExecutionError{Target: rule.Target, Marker: missingMarker(rule.Target), Err: errMissingInput}
	}
	raw := strings.TrimSpace(stringValue(args[0].value))
	invalid := &RuleExecutionError{
		Target: rule.Target,
		Marker: "[INVALID_DATE:" + raw + "]",
	}
	if !datePattern.MatchString(raw) {
		invalid.Err = fmt.Errorf("date %q is not YYYY-MM-DD", raw)
		return "", invalid
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		invalid.Err = err
		return "", invalid
	}

	format := rule.Param("outputFormat", rule.Param("output_format", "DD MMMM YYYY"))
	layout, ok := dateLayouts[format]
	if !ok {
		return "", &RuleExecutionError{
			Target: rule.Target,
			Marker: "[UNSUPPORTED_DATE_FORMAT:" + format + "]",
			Err:    fmt.Errorf("unsupported output format %q", format),
		}
	}
	return t.Format(layout), nil
}

func conditionalText(rule *schema.GenerationRule, args []input) string {
	fallback := rule.Param("ifNullOrUndefined", rule.Param("if_null", ""))
	if len(args) == 0 || !args[0].present {
		return fallback
	}
	b, ok := asBool(args[0].value)
	if !ok {
		return fallback
	}
	if b {
		return rule.Param("ifTrue", rule.Param("if_true", ""))
	}
	return rule.Param("ifFalse", rule.Param("if_false", ""))
}

func missingMarker(key string) string {
	return "[" + key + "_MISSING]"
}
