package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/sla-engine/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	Subject  string
	Role     Role
	EntityID string
}

// CanAccessEntity reports whether the caller may read entityID.
func (p *Principal) CanAccessEntity(entityID string) bool {
	if p == nil {
		return false
	}
	return p.EntityID == "" || p.EntityID == entityID
}

// AuthMiddleware validates bearer tokens. Claims are trusted as issued; no
// principal lookup happens per request.
type AuthMiddleware struct {
	tokens   *TokenManager
	disabled bool
}

// NewAuthMiddleware constructs middleware. When disabled every request runs as
// an unscoped admin, which is meant for local development only.
func NewAuthMiddleware(tokens *TokenManager, disabled bool) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, disabled: disabled}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	if m.disabled {
		c.Locals(principalKey, &Principal{Subject: "anonymous", Role: RoleAdmin})
		return c.Next()
	}

	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(strings.TrimSpace(parts[1]))
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	c.Locals(principalKey, &Principal{Subject: claims.Subject, Role: claims.Role, EntityID: claims.EntityID})
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated caller.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
