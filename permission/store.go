package permission

import (
	"context"

	"github.com/xraph/bastion/id"
)

// Store defines persistence operations for the permission catalog.
type Store interface {
	// CreatePermission persists a new permission.
	CreatePermission(ctx context.Context, p *Permission) error

	// GetPermission retrieves a permission by ID.
	GetPermission(ctx context.Context, permID id.PermissionID) (*Permission, error)

	// GetPermissionByName retrieves a permission by its unique name.
	GetPermissionByName(ctx context.Context, name string) (*Permission, error)

	// GetPermissionFor retrieves the permission for a resource type and action.
	GetPermissionFor(ctx context.Context, resourceType ResourceType, action Action) (*Permission, error)

	// UpdatePermission persists changes to a permission.
	UpdatePermission(ctx context.Context, p *Permission) error

	// DeletePermission removes a permission by ID.
	DeletePermission(ctx context.Context, permID id.PermissionID) error

	// ListPermissions returns permissions matching the filter.
	ListPermissions(ctx context.Context, filter *ListFilter) ([]*Permission, error)

	// CountPermissions returns the number of permissions matching the filter.
	CountPermissions(ctx context.Context, filter *ListFilter) (int64, error)
}
