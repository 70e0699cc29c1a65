package bastion

import (
	"encoding/json"
	"fmt"

	"github.com/xraph/bastion/grant"
)

// Well-known condition keys resolved from RequestContext when the
// attributes map does not carry them.
const (
	KeySubjectID       = "subject_id"
	KeySubjectOrgID    = "subject_org_id"
	KeyResourceOwnerID = "resource_owner_id"
	KeyResourceOrgID   = "resource_org_id"
)

// Evaluator decides whether a rule's scope and conditions hold for a
// request. Scope and conditions compose with AND.
type Evaluator interface {
	Evaluate(scope grant.Scope, conditions map[string]any, subjectID string, rc *RequestContext) (bool, error)
}

// DefaultEvaluator returns the built-in evaluator: own, organization and
// all scopes plus exact-match key/value conditions.
func DefaultEvaluator() Evaluator { return conditionEvaluator{} }

type conditionEvaluator struct{}

func (conditionEvaluator) Evaluate(scope grant.Scope, conditions map[string]any, subjectID string, rc *RequestContext) (bool, error) {
	if err := ValidateScope(scope); err != nil {
		return false, err
	}
	if err := ValidateConditions(conditions); err != nil {
		return false, err
	}
	if rc == nil {
		rc = &RequestContext{}
	}

	switch scope {
	case grant.ScopeOwn:
		if rc.ResourceOwnerID == "" || rc.ResourceOwnerID != subjectID {
			return false, nil
		}
	case grant.ScopeOrganization:
		if rc.ResourceOrgID == "" || rc.SubjectOrgID == "" || rc.ResourceOrgID != rc.SubjectOrgID {
			return false, nil
		}
	}

	for key, want := range conditions {
		got, ok := lookupCondition(key, subjectID, rc)
		if !ok {
			return false, nil
		}
		gotN, ok := normalizeScalar(got)
		if !ok {
			return false, nil
		}
		wantN, _ := normalizeScalar(want)
		if gotN != wantN {
			return false, nil
		}
	}
	return true, nil
}

// ValidateScope rejects anything but own, organization and all.
func ValidateScope(scope grant.Scope) error {
	if !scope.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidScope, scope)
	}
	return nil
}

// ValidateConditions rejects empty keys and non-scalar values.
func ValidateConditions(conditions map[string]any) error {
	for key, v := range conditions {
		if key == "" {
			return fmt.Errorf("%w: empty key", ErrInvalidCondition)
		}
		if _, ok := normalizeScalar(v); !ok {
			return fmt.Errorf("%w: %q has non-scalar value %T", ErrInvalidCondition, key, v)
		}
	}
	return nil
}

func lookupCondition(key, subjectID string, rc *RequestContext) (any, bool) {
	if v, ok := rc.Attributes[key]; ok {
		return v, true
	}
	var v string
	switch key {
	case KeySubjectID:
		v = subjectID
	case KeySubjectOrgID:
		v = rc.SubjectOrgID
	case KeyResourceOwnerID:
		v = rc.ResourceOwnerID
	case KeyResourceOrgID:
		v = rc.ResourceOrgID
	default:
		return nil, false
	}
	return v, v != ""
}

// normalizeScalar maps strings, bools and every numeric kind onto a
// comparable value. Numbers become float64 so 3 and 3.0 match.
func normalizeScalar(v any) (any, bool) {
	switch x := v.(type) {
	case string, bool:
		return x, true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return nil, false
		}
		return f, true
	default:
		return nil, false
	}
}
