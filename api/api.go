// Package api provides HTTP handlers for the Bastion permission engine.
//
// Check routes act on behalf of the authenticated caller. Administrative
// routes require the caller to hold system.manage unless the API was built
// WithoutAdminGuard.
package api

import (
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/bastion"
)

// API wires all Bastion HTTP handlers together.
type API struct {
	eng        *bastion.Engine
	router     forge.Router
	adminGuard bool
}

// Option configures an API.
type Option func(*API)

// WithoutAdminGuard disables the system.manage check on administrative
// routes. Use it only when the routes are mounted behind another guard.
func WithoutAdminGuard() Option {
	return func(a *API) { a.adminGuard = false }
}

// New creates an API from an Engine and a Forge router.
func New(eng *bastion.Engine, router forge.Router, opts ...Option) *API {
	a := &API{eng: eng, router: router, adminGuard: true}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns the fully assembled http.Handler with all routes.
func (a *API) Handler() http.Handler {
	if a.router == nil {
		a.router = forge.NewRouter()
	}
	if err := a.RegisterRoutes(a.router); err != nil {
		panic("bastion: register routes: " + err.Error())
	}
	return a.router.Handler()
}

// RegisterRoutes registers all API routes into the given Forge router.
func (a *API) RegisterRoutes(router forge.Router) error {
	registerers := []func(forge.Router) error{
		a.registerCheckRoutes,
		a.registerRoleRoutes,
		a.registerGrantRoutes,
		a.registerPermissionRoutes,
		a.registerAssignmentRoutes,
		a.registerOverrideRoutes,
		a.registerAuditRoutes,
	}
	for _, fn := range registerers {
		if err := fn(router); err != nil {
			return err
		}
	}
	return nil
}
