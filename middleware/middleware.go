// Package middleware provides HTTP authorization middleware for Bastion.
package middleware

import (
	"encoding/json"

	"github.com/xraph/forge"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/permission"
)

// Check names one permission a route requires.
type Check struct {
	ResourceType permission.ResourceType
	Action       permission.Action
}

// Require enforces one permission for the authenticated user. The
// resource instance is taken from the ":id" path parameter when present.
// Unauthenticated requests are denied.
func Require(eng *bastion.Engine, resourceType permission.ResourceType, action permission.Action) forge.Middleware {
	return RequireAll(eng, Check{ResourceType: resourceType, Action: action})
}

// RequireAny allows the request if ANY of the checks pass.
func RequireAny(eng *bastion.Engine, checks ...Check) forge.Middleware {
	return func(next forge.Handler) forge.Handler {
		return func(ctx forge.Context) error {
			user := forge.UserIDFromContext(ctx.Context())
			if user == "" {
				return denyResponse(ctx)
			}
			for _, c := range checks {
				if eng.Can(ctx.Context(), user, c.ResourceType, c.Action, ctx.Param("id")) {
					return next(ctx)
				}
			}
			return denyResponse(ctx)
		}
	}
}

// RequireAll allows the request only if ALL checks pass.
func RequireAll(eng *bastion.Engine, checks ...Check) forge.Middleware {
	return func(next forge.Handler) forge.Handler {
		return func(ctx forge.Context) error {
			user := forge.UserIDFromContext(ctx.Context())
			if user == "" {
				return denyResponse(ctx)
			}
			for _, c := range checks {
				if !eng.Can(ctx.Context(), user, c.ResourceType, c.Action, ctx.Param("id")) {
					return denyResponse(ctx)
				}
			}
			return next(ctx)
		}
	}
}

// denyResponse writes the uniform denial; policy and failure denials look
// the same to the client.
func denyResponse(ctx forge.Context) error {
	ctx.SetHeader("Content-Type", "application/json")
	ctx.Response().WriteHeader(403)
	return json.NewEncoder(ctx.Response()).Encode(map[string]string{"error": "access denied"})
}
