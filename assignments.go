package bastion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/bastion/assignment"
	"github.com/xraph/bastion/id"
)

// AssignRoleInput describes a role assignment. AssignedBy defaults to the
// PerformedBy of the request metadata.
type AssignRoleInput struct {
	UserID     string     `json:"user_id"`
	RoleID     id.RoleID  `json:"role_id"`
	AssignedBy string     `json:"assigned_by,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// AssignRole gives a user a role. The role must exist and be active, and
// the user must not already hold it through an effective assignment.
func (e *Engine) AssignRole(ctx context.Context, in AssignRoleInput) (*assignment.Assignment, error) {
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return nil, fmt.Errorf("bastion: assign role: %w: user id is required", ErrInvalidRequest)
	}
	now := e.clock.Now()
	if in.ExpiresAt != nil && !in.ExpiresAt.After(now) {
		return nil, fmt.Errorf("bastion: assign role: %w: expiry is in the past", ErrInvalidRequest)
	}

	r, err := e.store.GetRole(ctx, in.RoleID)
	if err != nil {
		return nil, fmt.Errorf("bastion: assign role: %w", storeErr(err, ErrRoleNotFound))
	}
	if !r.IsActive {
		return nil, fmt.Errorf("bastion: assign role: %w: %s", ErrRoleInactive, r.Name)
	}

	current, err := e.store.ListActiveAssignments(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("bastion: assign role: %w: %w", ErrPersistence, err)
	}
	for _, a := range current {
		if a.RoleID.String() == r.ID.String() {
			return nil, fmt.Errorf("bastion: assign role: %w: %s", ErrDuplicateAssignment, r.Name)
		}
	}

	assignedBy := in.AssignedBy
	if assignedBy == "" {
		assignedBy = RequestMetaFrom(ctx).PerformedBy
	}
	a := &assignment.Assignment{
		ID:         id.NewAssignmentID(),
		UserID:     userID,
		RoleID:     r.ID,
		AssignedBy: assignedBy,
		Reason:     in.Reason,
		ExpiresAt:  copyTime(in.ExpiresAt),
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := e.store.CreateAssignment(ctx, a); err != nil {
		return nil, fmt.Errorf("bastion: assign role: %w: %w", ErrPersistence, err)
	}

	e.invalidateSubject(ctx, userID)
	e.recordAssignment(ctx, "role.assign", a, r.Name)
	if e.plugins != nil {
		e.plugins.EmitRoleAssigned(ctx, a)
	}
	return a, nil
}

// RevokeRole deactivates every effective assignment of the role to the
// user. Revoked rows are kept for history.
func (e *Engine) RevokeRole(ctx context.Context, userID string, roleID id.RoleID) error {
	now := e.clock.Now()
	current, err := e.store.ListActiveAssignments(ctx, userID, now)
	if err != nil {
		return fmt.Errorf("bastion: revoke role: %w: %w", ErrPersistence, err)
	}

	var revoked []*assignment.Assignment
	for _, a := range current {
		if a.RoleID.String() != roleID.String() {
			continue
		}
		a.IsActive = false
		a.UpdatedAt = now
		if err := e.store.UpdateAssignment(ctx, a); err != nil {
			if len(revoked) > 0 {
				e.invalidateSubject(ctx, userID)
			}
			return fmt.Errorf("bastion: revoke role: %w", storeErr(err, ErrAssignmentNotFound))
		}
		revoked = append(revoked, a)
	}
	if len(revoked) == 0 {
		return fmt.Errorf("bastion: revoke role: %w: user %s does not hold %s", ErrAssignmentNotFound, userID, roleID)
	}

	e.invalidateSubject(ctx, userID)
	for _, a := range revoked {
		e.recordAssignment(ctx, "role.revoke", a, "")
		if e.plugins != nil {
			e.plugins.EmitRoleRevoked(ctx, a)
		}
	}
	return nil
}

// ListUserRoles returns the user's effective assignments.
func (e *Engine) ListUserRoles(ctx context.Context, userID string) ([]*assignment.Assignment, error) {
	as, err := e.store.ListActiveAssignments(ctx, userID, e.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("bastion: list user roles: %w: %w", ErrPersistence, err)
	}
	return as, nil
}

func (e *Engine) recordAssignment(ctx context.Context, action string, a *assignment.Assignment, roleName string) {
	details := map[string]any{"assignment_id": a.ID.String()}
	if roleName != "" {
		details["role_name"] = roleName
	}
	if a.Reason != "" {
		details["reason"] = a.Reason
	}
	if a.ExpiresAt != nil {
		details["expires_at"] = a.ExpiresAt.Format(time.RFC3339)
	}
	entry := e.mutationEntry(ctx, action, details)
	entry.SubjectType = "user"
	entry.SubjectID = a.UserID
	entry.RoleID = a.RoleID
	e.audit.record(ctx, entry)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
