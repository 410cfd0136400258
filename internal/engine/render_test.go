package engine

import (
	"strings"
	"testing"

	"github.com/kayz/scribe/internal/schema"
)

func TestRenderFormatsDateEverywhere(t *testing.T) {
	sch := schema.New()
	sch.Rules = []*schema.GenerationRule{{
		Target:    "user.dob",
		Uses:      []string{"user.dob"},
		Operation: "format_date",
		Params:    map[string]any{"outputFormat": "DD MMMM YYYY"},
	}}
	data := map[string]any{"user": map[string]any{"dob": "1990-05-12"}}

	got := RenderData("Born {{user.dob}}. Again: {{ user.dob }}.", data, sch)
	if got != "Born 12 May 1990. Again: 12 May 1990." {
		t.Fatalf("Render = %q", got)
	}
}

func TestRenderMarksMissingValues(t *testing.T) {
	got := RenderData("Hello {{user.nickname}}, {{user.nickname}}!", map[string]any{}, schema.New())
	if got != "Hello [user.nickname_MISSING], [user.nickname_MISSING]!" {
		t.Fatalf("Render = %q", got)
	}
}

func TestRenderValuesAndComposites(t *testing.T) {
	sch := loadWill(t)
	data := map[string]any{
		"user": map[string]any{
			"base_name":  map[string]any{"first": "Ada", "middle": "", "last": "Lovelace"},
			"is_married": true,
		},
		"property": []any{
			map[string]any{"address": map[string]any{"line1": "1 Main St", "city": "London"}},
		},
		"count": 2.5,
	}

	tests := []struct {
		text string
		want string
	}{
		{"{{user.base_name}}", "Ada Lovelace"},
		{"{{property[0].address}}", "1 Main St, London"},
		{"{{user.is_married}}", "Yes"},
		{"{{count}}", "2.5"},
		{"{{user.full_name}}", "Ada Lovelace"},
		{"{{marital_clause}}", "I am married."},
		{"{{property[3].address}}", "[property[3].address_MISSING]"},
		{"{{ not a marker }}", "{{ not a marker }}"},
	}
	for _, tt := range tests {
		if got := RenderData(tt.text, data, sch); got != tt.want {
			t.Errorf("RenderData(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestRenderArrayRuleBindsIndex(t *testing.T) {
	sch := schema.New()
	sch.Rules = []*schema.GenerationRule{{
		Target:    "child[].full_name",
		Uses:      []string{"child[].first", "child[].last"},
		Operation: "combine_names",
		Params:    map[string]any{"format": "first_last"},
	}}
	data := map[string]any{"child": []any{
		map[string]any{"first": "Ann", "last": "Byron"},
		map[string]any{"first": "Ralph", "last": "King"},
	}}

	got := RenderData("{{child[0].full_name}} and {{child[1].full_name}}", data, sch)
	if got != "Ann Byron and Ralph King" {
		t.Fatalf("Render = %q", got)
	}
}

func TestApplyRuleOperations(t *testing.T) {
	data := map[string]any{
		"n":    map[string]any{"first": "Ada", "middle": "King", "last": "Lovelace"},
		"d":    "1990-05-12",
		"bad":  "1990-5-12",
		"flag": false,
	}
	names := []string{"n.first", "n.middle", "n.last"}

	tests := []struct {
		name string
		rule schema.GenerationRule
		want string
	}{
		{"first middle last", schema.GenerationRule{Target: "x", Uses: names, Operation: "combine_names"}, "Ada King Lovelace"},
		{"last first middle", schema.GenerationRule{Target: "x", Uses: names, Operation: "combine_names",
			Params: map[string]any{"format": "last_first_middle", "separator": ", "}}, "Lovelace, Ada, King"},
		{"first last", schema.GenerationRule{Target: "x", Uses: names, Operation: "combine_names",
			Params: map[string]any{"format": "first_last"}}, "Ada Lovelace"},
		{"iso date", schema.GenerationRule{Target: "x", Uses: []string{"d"}, Operation: "format_date",
			Params: map[string]any{"outputFormat": "YYYY-MM-DD"}}, "1990-05-12"},
		{"us date", schema.GenerationRule{Target: "x", Uses: []string{"d"}, Operation: "format_date",
			Params: map[string]any{"outputFormat": "MM/DD/YYYY"}}, "05/12/1990"},
		{"invalid date", schema.GenerationRule{Target: "x", Uses: []string{"bad"}, Operation: "format_date"}, "[INVALID_DATE:1990-5-12]"},
		{"missing input", schema.GenerationRule{Target: "x", Uses: []string{"nope"}, Operation: "format_date"}, "[nope_MISSING]"},
		{"conditional false", schema.GenerationRule{Target: "x", Uses: []string{"flag"}, Operation: "conditional_text",
			Params: map[string]any{"ifTrue": "T", "ifFalse": "F", "ifNullOrUndefined": "N"}}, "F"},
		{"conditional absent", schema.GenerationRule{Target: "x", Uses: []string{"nope"}, Operation: "conditional_text",
			Params: map[string]any{"ifTrue": "T", "ifFalse": "F", "ifNullOrUndefined": "N"}}, "N"},
		{"unknown op", schema.GenerationRule{Target: "x", Uses: []string{"d"}, Operation: "shout"}, "[UNKNOWN_RULE_OP:shout]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := tt.rule
			if got := ApplyRule(&rule, data, schema.New()); got != tt.want {
				t.Fatalf("ApplyRule = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCombineNamesSkipsOptionalMiddle(t *testing.T) {
	sch := loadWill(t)
	rule, _ := sch.RuleFor("user.full_name")
	data := map[string]any{"user": map[string]any{
		"base_name": map[string]any{"first": "Ada", "last": "Lovelace"},
	}}
	if got := ApplyRule(rule, data, sch); got != "Ada Lovelace" {
		t.Fatalf("ApplyRule = %q", got)
	}
}

func TestParseOperation(t *testing.T) {
	if ParseOperation("format_date") != OpFormatDate || ParseOperation("nope") != OpUnknown {
		t.Fatalf("unexpected operation mapping")
	}
	if !strings.Contains(OpCombineNames.String(), "combine") {
		t.Fatalf("String = %q", OpCombineNames.String())
	}
}

func TestRenderUnknownMapIsStable(t *testing.T) {
	sch := schema.New()
	data := map[string]any{"office": map[string]any{
		"room": "12", "building": "B", "floor": "3", "annex": "East", "wing": "North",
	}}
	for i := 0; i < 20; i++ {
		if got := RenderData("{{office}}", data, sch); got != "East B 3 12 North" {
			t.Fatalf("run %d: Render = %q", i, got)
		}
	}
}
