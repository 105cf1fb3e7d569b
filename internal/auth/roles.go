package auth

import (
	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/sla-engine/pkg/util/errorutil"
)

// Role grants access to the SLA API.
type Role string

const (
	RoleViewer  Role = "viewer"
	RoleAgent   Role = "agent"
	RoleAdmin   Role = "admin"
	RoleService Role = "service"
)

// Valid reports whether the role is known.
func (r Role) Valid() bool {
	switch r {
	case RoleViewer, RoleAgent, RoleAdmin, RoleService:
		return true
	}
	return false
}

// RequireRole ensures the principal holds one of the allowed roles.
func RequireRole(allowed ...Role) fiber.Handler {
	allowedSet := make(map[Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		if _, exists := allowedSet[principal.Role]; !exists {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}

// RequireEntityParam rejects entity-scoped principals reading another entity.
func RequireEntityParam(param string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if !principal.CanAccessEntity(c.Params(param)) {
			return apperrors.NewForbidden("entity not accessible")
		}
		return c.Next()
	}
}
