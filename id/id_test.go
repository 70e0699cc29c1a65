package id_test

import (
	"strings"
	"testing"

	"github.com/xraph/bastion/id"
)

func TestConstructorsCarryPrefix(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"RoleID", id.NewRoleID, "role_"},
		{"PermissionID", id.NewPermissionID, "perm_"},
		{"AssignmentID", id.NewAssignmentID, "asgn_"},
		{"GrantID", id.NewGrantID, "grant_"},
		{"OverrideID", id.NewOverrideID, "ovr_"},
		{"AuditID", id.NewAuditID, "audit_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestTypedParsersRejectOtherKinds(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		parseFn func(string) (id.ID, error)
	}{
		{"role rejects perm", id.NewPermissionID().String(), id.ParseRoleID},
		{"perm rejects grant", id.NewGrantID().String(), id.ParsePermissionID},
		{"asgn rejects role", id.NewRoleID().String(), id.ParseAssignmentID},
		{"grant rejects ovr", id.NewOverrideID().String(), id.ParseGrantID},
		{"ovr rejects audit", id.NewAuditID().String(), id.ParseOverrideID},
		{"audit rejects asgn", id.NewAssignmentID().String(), id.ParseAuditID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.parseFn(tt.input); err == nil {
				t.Errorf("expected error parsing %q", tt.input)
			}
		})
	}
}

func TestParseRejectsEmpty(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Fatal("expected error for empty string")
	}
}

func TestNilIDStoresNull(t *testing.T) {
	var i id.ID
	if !i.IsNil() || i.String() != "" || i.Prefix() != "" {
		t.Fatalf("zero value should be nil, got %q", i.String())
	}
	v, err := i.Value()
	if err != nil {
		t.Fatal(err)
	}
	if v != nil {
		t.Fatalf("expected NULL, got %v", v)
	}

	var scanned id.ID
	if err := scanned.Scan(""); err != nil {
		t.Fatal(err)
	}
	if !scanned.IsNil() {
		t.Fatal("empty string should scan to Nil")
	}
}

func TestScanFromDriverValue(t *testing.T) {
	original := id.NewGrantID()
	v, err := original.Value()
	if err != nil {
		t.Fatal(err)
	}
	var scanned id.ID
	if err := scanned.Scan([]byte(v.(string))); err != nil {
		t.Fatal(err)
	}
	if scanned != original {
		t.Fatalf("expected %s, got %s", original, scanned)
	}
	if err := scanned.Scan(42); err == nil {
		t.Fatal("expected error scanning an int")
	}
}
