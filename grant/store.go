package grant

import (
	"context"
	"time"

	"github.com/xraph/bastion/id"
)

// Store defines persistence operations for role permission grants.
type Store interface {
	// CreateGrant persists a new grant.
	CreateGrant(ctx context.Context, g *Grant) error

	// GetGrant retrieves a grant by ID.
	GetGrant(ctx context.Context, grantID id.GrantID) (*Grant, error)

	// UpdateGrant persists changes to a grant.
	UpdateGrant(ctx context.Context, g *Grant) error

	// DeleteGrant removes a grant by ID.
	DeleteGrant(ctx context.Context, grantID id.GrantID) error

	// ListGrants returns grants matching the filter.
	ListGrants(ctx context.Context, filter *ListFilter) ([]*Grant, error)

	// CountGrants returns the number of grants matching the filter.
	CountGrants(ctx context.Context, filter *ListFilter) (int64, error)

	// ListActiveGrants returns grants held by any of roleIDs that are not
	// expired as of asOf. A Nil permID matches every permission.
	ListActiveGrants(ctx context.Context, roleIDs []id.RoleID, permID id.PermissionID, asOf time.Time) ([]*Grant, error)
}
