package override

import (
	"context"
	"time"

	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/permission"
)

// Store defines persistence operations for resource overrides.
type Store interface {
	// CreateOverride persists a new override.
	CreateOverride(ctx context.Context, o *Override) error

	// GetOverride retrieves an override by ID.
	GetOverride(ctx context.Context, ovrID id.OverrideID) (*Override, error)

	// UpdateOverride persists changes to an override.
	UpdateOverride(ctx context.Context, o *Override) error

	// DeleteOverride removes an override by ID.
	DeleteOverride(ctx context.Context, ovrID id.OverrideID) error

	// ListOverrides returns overrides matching the filter.
	ListOverrides(ctx context.Context, filter *ListFilter) ([]*Override, error)

	// CountOverrides returns the number of overrides matching the filter.
	CountOverrides(ctx context.Context, filter *ListFilter) (int64, error)

	// ListActiveOverrides returns overrides on one resource instance for one
	// permission that are not expired as of asOf, for every subject.
	ListActiveOverrides(ctx context.Context, resourceType permission.ResourceType, resourceID string, permID id.PermissionID, asOf time.Time) ([]*Override, error)
}
