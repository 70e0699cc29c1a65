package audit

import (
	"context"
	"time"

	"github.com/xraph/bastion/id"
)

// Store defines persistence operations for the audit log. Entries are
// never updated.
type Store interface {
	// CreateAuditEntry appends an entry.
	CreateAuditEntry(ctx context.Context, e *Entry) error

	// GetAuditEntry retrieves an entry by ID.
	GetAuditEntry(ctx context.Context, entryID id.AuditID) (*Entry, error)

	// ListAuditEntries returns entries matching the filter, newest first.
	ListAuditEntries(ctx context.Context, filter *QueryFilter) ([]*Entry, error)

	// CountAuditEntries returns the number of entries matching the filter.
	CountAuditEntries(ctx context.Context, filter *QueryFilter) (int64, error)

	// PurgeAuditEntries removes entries created before the given time.
	PurgeAuditEntries(ctx context.Context, before time.Time) (int64, error)
}
