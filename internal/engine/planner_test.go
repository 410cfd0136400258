package engine

import (
	"errors"
	"testing"

	"github.com/kayz/scribe/internal/keypath"
	"github.com/kayz/scribe/internal/schema"
	"github.com/kayz/scribe/internal/session"
)

func loadWill(t *testing.T) *schema.Schema {
	t.Helper()
	sch, err := schema.Load("testdata/will.yaml")
	if err != nil {
		t.Fatalf("load schema: %v", err)
	}
	return sch
}

func newState(t *testing.T, sch *schema.Schema, keys ...string) *session.State {
	t.Helper()
	st := session.NewState("test", "u1")
	st.Status = session.StatusCollectingData
	st.Schema = sch
	st.RequiredKeys = keys
	return st
}

func set(t *testing.T, st *session.State, key string, v any) {
	t.Helper()
	if err := keypath.SetKey(st.Data, key, v); err != nil {
		t.Fatalf("set %s: %v", key, err)
	}
}

func next(t *testing.T, st *session.State) string {
	t.Helper()
	key, done := FindNextQuestion(st)
	if done {
		t.Fatalf("expected a question, planner reported done")
	}
	return key
}

func answer(t *testing.T, st *session.State, raw string) {
	t.Helper()
	if err := ApplyAnswer(raw, st); err != nil {
		t.Fatalf("answer %q for %s: %v", raw, st.CurrentQuestionKey, err)
	}
}

func TestGateIsAskedBeforeDependentFields(t *testing.T) {
	st := newState(t, loadWill(t), "user.dob", "spouse.full_name")

	if got := next(t, st); got != "user.is_married?" {
		t.Fatalf("first question = %q, want user.is_married?", got)
	}
	answer(t, st, "Yes")
	if v, _ := keypath.Lookup(st.Data, "user.is_married"); v != true {
		t.Fatalf("gate value not stored: %v", v)
	}

	if got := next(t, st); got != "user.dob" {
		t.Fatalf("second question = %q, want user.dob", got)
	}
	answer(t, st, "1990-05-12")
	if got := next(t, st); got != "spouse.full_name" {
		t.Fatalf("third question = %q, want spouse.full_name", got)
	}
}

func TestClosedGateSkipsEntity(t *testing.T) {
	st := newState(t, loadWill(t), "spouse.full_name", "user.dob")
	set(t, st, "user.is_married", false)

	if got := next(t, st); got != "user.dob" {
		t.Fatalf("question = %q, want user.dob", got)
	}
	answer(t, st, "1990-05-12")
	if _, done := FindNextQuestion(st); !done {
		t.Fatalf("expected completion with gate closed, got %q", st.CurrentQuestionKey)
	}
}

func TestRuleBackChainsToMissingInput(t *testing.T) {
	st := newState(t, loadWill(t), "user.full_name")
	set(t, st, "user.base_name.first", "Ada")

	got := next(t, st)
	if got != "user.base_name.last" {
		t.Fatalf("question = %q, want user.base_name.last", got)
	}
	answer(t, st, "Lovelace")

	if key, done := FindNextQuestion(st); !done {
		t.Fatalf("rule target must never be asked, got %q", key)
	}
}

func TestRequiredOptionalPartIsAskedOnce(t *testing.T) {
	st := newState(t, loadWill(t), "user.base_name.middle")

	if got := next(t, st); got != "user.base_name.middle" {
		t.Fatalf("question = %q", got)
	}
	answer(t, st, "")
	if _, done := FindNextQuestion(st); !done {
		t.Fatalf("blank optional part should count as answered")
	}
}

func TestArrayCycle(t *testing.T) {
	st := newState(t, loadWill(t), "property[].address", "property[].kind", "user.dob")
	set(t, st, "user.has_property_to_record", true)

	steps := []struct {
		want   string
		answer string
	}{
		{"property[0].address", "1 Main St"},
		{"property[0].kind", "House"},
		{"property.add_another?", "yes"},
		{"property[1].address", "2 High St"},
		{"property[1].kind", "Flat"},
		{"property.add_another?", "no"},
		{"user.dob", "1990-05-12"},
	}
	for i, step := range steps {
		if got := next(t, st); got != step.want {
			t.Fatalf("step %d: question = %q, want %q", i, got, step.want)
		}
		answer(t, st, step.answer)
	}
	if _, done := FindNextQuestion(st); !done {
		t.Fatalf("expected completion, got %q", st.CurrentQuestionKey)
	}
	if n := keypath.Len(st.Data, "property"); n != 2 {
		t.Fatalf("expected 2 properties, got %d", n)
	}
	if st.CurrentEntity != "" {
		t.Fatalf("open entity should be cleared, got %q", st.CurrentEntity)
	}
}

func TestArrayAtEndOfKeysAsksAddAnotherOncePerIndex(t *testing.T) {
	st := newState(t, loadWill(t), "property[].kind")
	set(t, st, "user.has_property_to_record", true)

	if got := next(t, st); got != "property[0].kind" {
		t.Fatalf("question = %q", got)
	}
	if st.CurrentEntity != "property" {
		t.Fatalf("open entity = %q", st.CurrentEntity)
	}
	answer(t, st, "Land")
	if got := next(t, st); got != "property.add_another?" {
		t.Fatalf("question = %q", got)
	}
	answer(t, st, "y")
	if idx, ok := st.CurrentEntityIndex(); !ok || idx != 1 {
		t.Fatalf("cursor = %d %v, want 1", idx, ok)
	}
	if got := next(t, st); got != "property[1].kind" {
		t.Fatalf("question = %q", got)
	}
}

// Two array entities interleaved in the required keys: leaving the first
// entity for the second closes it, so "add another" for property is offered
// before property[0].address was collected. Declining it ends the entity.
func TestInterleavedArrayEntitiesCloseEarly(t *testing.T) {
	sch := schema.New()
	sch.Entities = []*schema.Entity{
		{Name: "property", AllowMultiple: true, Fields: map[string]*schema.FieldDef{
			"kind":    {Type: schema.TypeText},
			"address": {Type: schema.TypeText},
		}},
		{Name: "child", AllowMultiple: true, Fields: map[string]*schema.FieldDef{
			"name": {Type: schema.TypeText},
		}},
	}
	st := newState(t, sch, "property[].kind", "child[].name", "property[].address")

	if got := next(t, st); got != "property[0].kind" {
		t.Fatalf("question = %q", got)
	}
	answer(t, st, "House")
	if got := next(t, st); got != "property.add_another?" {
		t.Fatalf("question = %q, want early property.add_another?", got)
	}
	answer(t, st, "no")
	if got := next(t, st); got != "child[0].name" {
		t.Fatalf("question = %q, want child[0].name", got)
	}
	answer(t, st, "Ann")
	if got := next(t, st); got != "child.add_another?" {
		t.Fatalf("question = %q", got)
	}
	answer(t, st, "no")
	if _, done := FindNextQuestion(st); !done {
		t.Fatalf("expected completion, got %q", st.CurrentQuestionKey)
	}
	if _, ok := keypath.Lookup(st.Data, "property[0].address"); ok {
		t.Fatalf("property[0].address should never have been asked")
	}
}

func TestRuleInputUnderGateAsksGateFirst(t *testing.T) {
	sch := loadWill(t)
	sch.Rules = append(sch.Rules, &schema.GenerationRule{
		Target:    "spouse_clause",
		Uses:      []string{"spouse.full_name"},
		Operation: "combine_names",
	})
	st := newState(t, sch, "spouse_clause")

	if got := next(t, st); got != "user.is_married?" {
		t.Fatalf("question = %q", got)
	}
	answer(t, st, "no")
	if _, done := FindNextQuestion(st); !done {
		t.Fatalf("input under closed gate should count as satisfied")
	}
}

func TestAnswerRejectionLeavesStateUntouched(t *testing.T) {
	st := newState(t, loadWill(t), "user.dob")
	next(t, st)

	err := ApplyAnswer("12/05/1990", st)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve.Key != "user.dob" || ve.Reason == "" {
		t.Fatalf("unexpected rejection: %+v", ve)
	}
	if st.CurrentQuestionKey != "user.dob" {
		t.Fatalf("pending question changed to %q", st.CurrentQuestionKey)
	}
	if _, ok := keypath.Lookup(st.Data, "user.dob"); ok {
		t.Fatalf("rejected answer was stored")
	}
}

func TestAddAnotherRejectsUnknownToken(t *testing.T) {
	st := newState(t, loadWill(t), "property[].kind")
	set(t, st, "user.has_property_to_record", true)
	set(t, st, "property[0].kind", "House")

	if got := next(t, st); got != "property.add_another?" {
		t.Fatalf("question = %q", got)
	}
	if err := ApplyAnswer("maybe", st); err == nil {
		t.Fatalf("expected rejection")
	}
	if c := st.Cursors["property"]; c.Index != 0 || c.Done {
		t.Fatalf("cursor changed on rejection: %+v", c)
	}
}
