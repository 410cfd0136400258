package engine

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kayz/scribe/internal/keypath"
	"github.com/kayz/scribe/internal/logger"
	"github.com/kayz/scribe/internal/schema"
	"github.com/kayz/scribe/internal/session"
)

// SkipToken lets chat users leave an optional field blank.
const SkipToken = "-"

var (
	datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	yearPattern = regexp.MustCompile(`^\d{4}$`)
	// Plain decimals only: no NaN, Inf, exponents or hex floats.
	numberPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d+)?|\.\d+)$`)
)

var boolTokens = map[string]bool{
	"yes": true, "y": true, "true": true, "1": true, "да": true,
	"no": false, "n": false, "false": false, "0": false, "нет": false,
}

// ParseBool recognizes affirmative and negative answer tokens, case-insensitively.
func ParseBool(raw string) (value, ok bool) {
	value, ok = boolTokens[strings.ToLower(strings.TrimSpace(raw))]
	return value, ok
}

// asBool interprets a stored value as a boolean. Seeded profile values may be
// strings rather than bools.
func asBool(v any) (value, ok bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		return ParseBool(t)
	case float64:
		return t != 0, true
	case int:
		return t != 0, true
	}
	return false, false
}

// ApplyAnswer validates raw against the pending question and writes it into
// the collected data. A rejection is a *ValidationError and leaves the state
// untouched.
func ApplyAnswer(raw string, st *session.State) error {
	key := st.CurrentQuestionKey
	if key == "" {
		return fmt.Errorf("no question is pending")
	}

	if strings.HasSuffix(key, "?") {
		b, ok := ParseBool(raw)
		if !ok {
			return &ValidationError{Key: key, Reason: "Please answer yes or no."}
		}
		base := strings.TrimSuffix(key, "?")
		if strings.HasSuffix(base, addAnotherSuffix) {
			entity := keypath.Root(base)
			c := st.Cursor(entity)
			if b {
				c.Asked = c.Index
				c.Index++
				st.CurrentEntity = entity
			} else {
				c.Asked = -1
				c.Done = true
				st.CurrentEntity = ""
			}
		} else if err := keypath.SetKey(st.Data, base, b); err != nil {
			return fmt.Errorf("failed to store %s: %w", base, err)
		}
		st.CurrentQuestionKey = ""
		return nil
	}

	def, ok := ResolveField(key, st.Schema)
	if !ok {
		def = &schema.FieldDef{Type: schema.TypeText}
	}
	value, reason := validateAnswer(raw, def)
	if reason != "" {
		return &ValidationError{Key: key, Reason: reason}
	}
	if err := keypath.SetKey(st.Data, key, value); err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	st.CurrentQuestionKey = ""
	return nil
}

// validateAnswer checks raw against def and returns the value to store, or a
// user-facing rejection reason.
func validateAnswer(raw string, def *schema.FieldDef) (any, string) {
	v := strings.TrimSpace(raw)
	if def.Optional && v == SkipToken {
		v = ""
	}
	if v == "" {
		if def.Optional {
			return "", ""
		}
		return nil, "An answer is required."
	}

	switch def.Type {
	case schema.TypeDate:
		if !datePattern.MatchString(v) {
			return nil, "Please enter the date as YYYY-MM-DD."
		}
		if _, err := time.Parse("2006-01-02", v); err != nil {
			return nil, "That is not a valid calendar date."
		}
	case schema.TypeYear:
		if !yearPattern.MatchString(v) {
			return nil, "Please enter a four-digit year."
		}
	case schema.TypeDayOfMonth:
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 31 {
			return nil, "Please enter a day of the month between 1 and 31."
		}
	case schema.TypeNumber:
		if !numberPattern.MatchString(v) {
			return nil, "Please enter a number."
		}
		if f, err := strconv.ParseFloat(v, 64); err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, "Please enter a number."
		}
	case schema.TypeChoice:
		if !containsString(def.Options, v) {
			return nil, "Please choose one of: " + strings.Join(def.Options, ", ") + "."
		}
	case schema.TypeBoolean:
		b, ok := ParseBool(v)
		if !ok {
			return nil, "Please answer yes or no."
		}
		return b, ""
	}

	if def.ValidationRule != "" {
		re, err := regexp.Compile(def.ValidationRule)
		if err != nil {
			logger.Warn("[Answer] ignoring invalid validation rule %q: %v", def.ValidationRule, err)
		} else if !re.MatchString(v) {
			return nil, "The answer does not match the expected format."
		}
	}
	return v, ""
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
