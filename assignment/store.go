package assignment

import (
	"context"
	"time"

	"github.com/xraph/bastion/id"
)

// Store defines persistence operations for user role assignments.
type Store interface {
	// CreateAssignment persists a new assignment.
	CreateAssignment(ctx context.Context, a *Assignment) error

	// GetAssignment retrieves an assignment by ID.
	GetAssignment(ctx context.Context, assID id.AssignmentID) (*Assignment, error)

	// UpdateAssignment persists changes to an assignment.
	UpdateAssignment(ctx context.Context, a *Assignment) error

	// DeleteAssignment removes an assignment by ID.
	DeleteAssignment(ctx context.Context, assID id.AssignmentID) error

	// ListAssignments returns assignments matching the filter.
	ListAssignments(ctx context.Context, filter *ListFilter) ([]*Assignment, error)

	// CountAssignments returns the number of assignments matching the filter.
	CountAssignments(ctx context.Context, filter *ListFilter) (int64, error)

	// ListActiveAssignments returns the user's assignments that are active
	// and not expired as of asOf.
	ListActiveAssignments(ctx context.Context, userID string, asOf time.Time) ([]*Assignment, error)

	// ListAssignmentsByRoles returns assignments, active or not, for any of
	// the given roles.
	ListAssignmentsByRoles(ctx context.Context, roleIDs []id.RoleID) ([]*Assignment, error)

	// DeleteExpiredAssignments removes assignments that expired before now.
	DeleteExpiredAssignments(ctx context.Context, now time.Time) (int64, error)
}
