package api

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/xraph/forge"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/permission"
)

// mapError maps domain errors to Forge HTTP errors. Persistence failures
// pass through unchanged so details never reach the client.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case isNotFound(err):
		return forge.NotFound(err.Error())
	case errors.Is(err, bastion.ErrAccessDenied):
		return forge.Forbidden(err.Error())
	case isBadRequest(err):
		return forge.BadRequest(err.Error())
	}
	return err
}

func isNotFound(err error) bool {
	return errors.Is(err, bastion.ErrRoleNotFound) ||
		errors.Is(err, bastion.ErrPermissionNotFound) ||
		errors.Is(err, bastion.ErrAssignmentNotFound) ||
		errors.Is(err, bastion.ErrGrantNotFound) ||
		errors.Is(err, bastion.ErrOverrideNotFound)
}

var badRequestErrors = []error{
	bastion.ErrInvalidRequest,
	bastion.ErrUnknownPermission,
	bastion.ErrCyclicRoleHierarchy,
	bastion.ErrRoleDepthExceeded,
	bastion.ErrRoleInactive,
	bastion.ErrRoleInUse,
	bastion.ErrPermissionInUse,
	bastion.ErrSystemRoleImmutable,
	bastion.ErrSystemPermissionImmutable,
	bastion.ErrDuplicateAssignment,
	bastion.ErrDuplicateGrant,
	bastion.ErrDuplicatePermission,
	bastion.ErrDuplicateRole,
	bastion.ErrInvalidCondition,
	bastion.ErrInvalidScope,
	bastion.ErrInvalidResourceType,
	bastion.ErrInvalidAction,
}

func isBadRequest(err error) bool {
	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func defaultLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}

// caller returns the authenticated user of the request.
func caller(ctx context.Context) string {
	return forge.UserIDFromContext(ctx)
}

// requestContext returns ctx with the caller recorded as the performer of
// any audited operation.
func requestContext(ctx context.Context) context.Context {
	if user := caller(ctx); user != "" {
		return bastion.WithRequestMeta(ctx, bastion.RequestMeta{PerformedBy: user})
	}
	return ctx
}

// isAdmin reports whether the caller holds system.manage.
func (a *API) isAdmin(ctx context.Context) bool {
	user := caller(ctx)
	if user == "" {
		return false
	}
	return a.eng.Can(ctx, user, permission.ResourceSystem, permission.ActionManage, "")
}

// requireAdmin rejects callers without system.manage.
func (a *API) requireAdmin(ctx context.Context) error {
	if !a.adminGuard || a.isAdmin(ctx) {
		return nil
	}
	return forge.Forbidden("system.manage is required")
}

func parseExpiry(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid expires_at: %v", err))
	}
	return &t, nil
}

func parseOptionalBool(name, s string) (*bool, error) {
	if s == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid %s: %v", name, err))
	}
	return &b, nil
}
