package bastion

import (
	"errors"
	"fmt"

	"github.com/xraph/bastion/store"
)

var (
	// ErrAccessDenied is returned by Enforce when a check denies.
	ErrAccessDenied = errors.New("bastion: access denied")

	// ErrInvalidRequest is returned when a request is missing required fields.
	ErrInvalidRequest = errors.New("bastion: invalid request")

	// ErrUnknownPermission is returned when a resource type and action have
	// no catalog entry.
	ErrUnknownPermission = errors.New("bastion: unknown permission")

	// ErrRoleNotFound is returned when a role cannot be found.
	ErrRoleNotFound = errors.New("bastion: role not found")

	// ErrPermissionNotFound is returned when a permission cannot be found.
	ErrPermissionNotFound = errors.New("bastion: permission not found")

	// ErrAssignmentNotFound is returned when an assignment cannot be found.
	ErrAssignmentNotFound = errors.New("bastion: assignment not found")

	// ErrGrantNotFound is returned when a grant cannot be found.
	ErrGrantNotFound = errors.New("bastion: grant not found")

	// ErrOverrideNotFound is returned when an override cannot be found.
	ErrOverrideNotFound = errors.New("bastion: override not found")

	// ErrCyclicRoleHierarchy is returned when reparenting would create a cycle.
	ErrCyclicRoleHierarchy = errors.New("bastion: cyclic role hierarchy")

	// ErrRoleDepthExceeded is returned when a role chain would exceed MaxRoleDepth.
	ErrRoleDepthExceeded = errors.New("bastion: role hierarchy depth exceeded")

	// ErrRoleInactive is returned when assigning or parenting to an inactive role.
	ErrRoleInactive = errors.New("bastion: role is inactive")

	// ErrRoleInUse is returned when deleting a role that is still referenced.
	ErrRoleInUse = errors.New("bastion: role is in use")

	// ErrPermissionInUse is returned when deleting a referenced permission.
	ErrPermissionInUse = errors.New("bastion: permission is in use")

	// ErrSystemRoleImmutable is returned when deleting a system role.
	ErrSystemRoleImmutable = errors.New("bastion: system role cannot be deleted")

	// ErrSystemPermissionImmutable is returned when deleting a system permission.
	ErrSystemPermissionImmutable = errors.New("bastion: system permission cannot be deleted")

	// ErrDuplicateAssignment is returned when a user already holds the role.
	ErrDuplicateAssignment = errors.New("bastion: role already assigned to user")

	// ErrDuplicateGrant is returned when an identical grant is already effective.
	ErrDuplicateGrant = errors.New("bastion: identical grant already effective")

	// ErrDuplicatePermission is returned when a permission name or resource
	// type and action pair already exists.
	ErrDuplicatePermission = errors.New("bastion: permission already exists")

	// ErrDuplicateRole is returned when a role name already exists.
	ErrDuplicateRole = errors.New("bastion: role already exists")

	// ErrInvalidCondition is returned when a condition map is malformed.
	ErrInvalidCondition = errors.New("bastion: invalid condition")

	// ErrInvalidScope is returned for a scope other than own, organization or all.
	ErrInvalidScope = errors.New("bastion: invalid scope")

	// ErrInvalidResourceType is returned for an unknown resource type.
	ErrInvalidResourceType = errors.New("bastion: invalid resource type")

	// ErrInvalidAction is returned for an unknown action.
	ErrInvalidAction = errors.New("bastion: invalid action")

	// ErrNoSuperRole is returned by Bootstrap when no active system role holds
	// an unconditional system.manage grant.
	ErrNoSuperRole = errors.New("bastion: no super role with system.manage")

	// ErrPersistence wraps store failures surfaced by mutations.
	ErrPersistence = errors.New("bastion: persistence failure")
)

// storeErr maps a store failure to notFound when the row is missing and
// to ErrPersistence otherwise.
func storeErr(err, notFound error) error {
	if errors.Is(err, store.ErrNotFound) {
		return notFound
	}
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}
