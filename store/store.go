// Package store defines the aggregate persistence interface. Each entity
// package (role, permission, assignment, grant, override, audit) defines
// its own store interface and the composite Store composes them all.
// Backends: Postgres, SQLite, MongoDB and Memory.
package store

import (
	"context"
	"errors"

	"github.com/xraph/bastion/assignment"
	"github.com/xraph/bastion/audit"
	"github.com/xraph/bastion/grant"
	"github.com/xraph/bastion/override"
	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/role"
)

// Errors wrapped by every backend so callers can classify failures
// without knowing the driver.
var (
	// ErrNotFound is returned when a lookup by ID or unique key misses.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("store: conflict")
)

// Store is the aggregate persistence interface. A single backend
// implements all of the entity stores.
type Store interface {
	role.Store
	permission.Store
	assignment.Store
	grant.Store
	override.Store
	audit.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
