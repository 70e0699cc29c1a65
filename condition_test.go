package bastion

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/xraph/bastion/grant"
)

func TestEvaluate_Scopes(t *testing.T) {
	ev := DefaultEvaluator()

	cases := []struct {
		name  string
		scope grant.Scope
		rc    *RequestContext
		want  bool
	}{
		{"all without context", grant.ScopeAll, nil, true},
		{"own matches", grant.ScopeOwn, &RequestContext{ResourceOwnerID: "u1"}, true},
		{"own other owner", grant.ScopeOwn, &RequestContext{ResourceOwnerID: "u2"}, false},
		{"own without owner", grant.ScopeOwn, &RequestContext{}, false},
		{"own nil context", grant.ScopeOwn, nil, false},
		{"org matches", grant.ScopeOrganization, &RequestContext{SubjectOrgID: "o1", ResourceOrgID: "o1"}, true},
		{"org differs", grant.ScopeOrganization, &RequestContext{SubjectOrgID: "o1", ResourceOrgID: "o2"}, false},
		{"org missing subject org", grant.ScopeOrganization, &RequestContext{ResourceOrgID: "o1"}, false},
		{"org both empty", grant.ScopeOrganization, &RequestContext{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ev.Evaluate(tc.scope, nil, "u1", tc.rc)
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestEvaluate_Conditions(t *testing.T) {
	ev := DefaultEvaluator()
	rc := &RequestContext{
		ResourceOwnerID: "u1",
		ResourceOrgID:   "o1",
		Attributes: map[string]any{
			"stage":    "draft",
			"priority": json.Number("3"),
			"archived": false,
		},
	}

	cases := []struct {
		name  string
		conds map[string]any
		want  bool
	}{
		{"empty", nil, true},
		{"string", map[string]any{"stage": "draft"}, true},
		{"string mismatch", map[string]any{"stage": "final"}, false},
		{"number normalized", map[string]any{"priority": 3}, true},
		{"float vs int", map[string]any{"priority": 3.0}, true},
		{"bool", map[string]any{"archived": false}, true},
		{"type mismatch", map[string]any{"archived": "false"}, false},
		{"missing key", map[string]any{"region": "eu"}, false},
		{"well-known key", map[string]any{KeyResourceOrgID: "o1"}, true},
		{"subject id", map[string]any{KeySubjectID: "u1"}, true},
		{"all must hold", map[string]any{"stage": "draft", "priority": 4}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ev.Evaluate(grant.ScopeAll, tc.conds, "u1", rc)
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestEvaluate_ScopeAndConditionsCompose(t *testing.T) {
	ev := DefaultEvaluator()
	rc := &RequestContext{ResourceOwnerID: "u2", Attributes: map[string]any{"stage": "draft"}}
	got, err := ev.Evaluate(grant.ScopeOwn, map[string]any{"stage": "draft"}, "u1", rc)
	if err != nil {
		t.Fatal(err)
	}
	if got {
		t.Fatal("expected scope own to fail for another owner even when conditions hold")
	}
}

func TestEvaluate_Malformed(t *testing.T) {
	ev := DefaultEvaluator()

	if _, err := ev.Evaluate("team", nil, "u1", nil); !errors.Is(err, ErrInvalidScope) {
		t.Fatalf("expected ErrInvalidScope, got %v", err)
	}
	if _, err := ev.Evaluate(grant.ScopeAll, map[string]any{"tags": []any{"a"}}, "u1", nil); !errors.Is(err, ErrInvalidCondition) {
		t.Fatalf("expected ErrInvalidCondition, got %v", err)
	}
	if _, err := ev.Evaluate(grant.ScopeAll, map[string]any{"": "x"}, "u1", nil); !errors.Is(err, ErrInvalidCondition) {
		t.Fatalf("expected ErrInvalidCondition for empty key, got %v", err)
	}
}

func TestEvaluate_NonScalarAttributeNeverMatches(t *testing.T) {
	ev := DefaultEvaluator()
	rc := &RequestContext{Attributes: map[string]any{"stage": []string{"draft"}}}
	got, err := ev.Evaluate(grant.ScopeAll, map[string]any{"stage": "draft"}, "u1", rc)
	if err != nil {
		t.Fatal(err)
	}
	if got {
		t.Fatal("expected a list attribute not to match a scalar condition")
	}
}
