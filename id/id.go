// Package id defines the TypeID identifiers used by every Bastion entity.
//
// An ID renders as "prefix_suffix" where the prefix names the entity kind
// and the suffix is a UUIDv7, so IDs sort by creation time.
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity kind encoded in an ID.
type Prefix string

// Entity prefixes.
const (
	PrefixRole       Prefix = "role"
	PrefixPermission Prefix = "perm"
	PrefixAssignment Prefix = "asgn"
	PrefixGrant      Prefix = "grant"
	PrefixOverride   Prefix = "ovr"
	PrefixAudit      Prefix = "audit"
)

// ID wraps a TypeID. The zero value is Nil and serializes as empty text
// or SQL NULL.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// RoleID identifies a role (prefix: "role").
type RoleID = ID

// PermissionID identifies a catalog permission (prefix: "perm").
type PermissionID = ID

// AssignmentID identifies a user role assignment (prefix: "asgn").
type AssignmentID = ID

// GrantID identifies a role permission grant (prefix: "grant").
type GrantID = ID

// OverrideID identifies a resource permission override (prefix: "ovr").
type OverrideID = ID

// AuditID identifies an audit log entry (prefix: "audit").
type AuditID = ID

// New generates an ID with the given prefix. An invalid prefix is a
// programming error and panics.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return ID{inner: tid, valid: true}
}

// NewRoleID generates a role ID.
func NewRoleID() ID { return New(PrefixRole) }

// NewPermissionID generates a permission ID.
func NewPermissionID() ID { return New(PrefixPermission) }

// NewAssignmentID generates an assignment ID.
func NewAssignmentID() ID { return New(PrefixAssignment) }

// NewGrantID generates a grant ID.
func NewGrantID() ID { return New(PrefixGrant) }

// NewOverrideID generates an override ID.
func NewOverrideID() ID { return New(PrefixOverride) }

// NewAuditID generates an audit entry ID.
func NewAuditID() ID { return New(PrefixAudit) }

// Parse parses any TypeID string.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses s and requires the given prefix.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}
	return parsed, nil
}

// MustParse is like Parse but panics on error. Use for fixed IDs in tests
// and seed data.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}
	return parsed
}

// ParseRoleID parses a role ID.
func ParseRoleID(s string) (ID, error) { return ParseWithPrefix(s, PrefixRole) }

// ParsePermissionID parses a permission ID.
func ParsePermissionID(s string) (ID, error) { return ParseWithPrefix(s, PrefixPermission) }

// ParseAssignmentID parses an assignment ID.
func ParseAssignmentID(s string) (ID, error) { return ParseWithPrefix(s, PrefixAssignment) }

// ParseGrantID parses a grant ID.
func ParseGrantID(s string) (ID, error) { return ParseWithPrefix(s, PrefixGrant) }

// ParseOverrideID parses an override ID.
func ParseOverrideID(s string) (ID, error) { return ParseWithPrefix(s, PrefixOverride) }

// ParseAuditID parses an audit entry ID.
func ParseAuditID(s string) (ID, error) { return ParseWithPrefix(s, PrefixAudit) }

// String returns "prefix_suffix", or "" for Nil.
func (i ID) String() string {
	if !i.valid {
		return ""
	}
	return i.inner.String()
}

// Prefix returns the entity prefix, or "" for Nil.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}
	return Prefix(i.inner.Prefix())
}

// IsNil reports whether i is the zero value.
func (i ID) IsNil() bool { return !i.valid }

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}
	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// Value implements driver.Valuer. Nil stores as NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // NULL for optional columns
	}
	return i.inner.String(), nil
}

// Scan implements sql.Scanner.
func (i *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = Nil
		return nil
	case string:
		return i.UnmarshalText([]byte(v))
	case []byte:
		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
