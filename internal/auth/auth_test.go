package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/spec-kit/sla-engine/pkg/util/errorutil"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", "sla-engine", time.Hour)

	token, expiresAt, err := tm.GenerateToken("ops-bot", RoleService, "ent-1")
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops-bot", claims.Subject)
	assert.Equal(t, RoleService, claims.Role)
	assert.Equal(t, "ent-1", claims.EntityID)
}

func TestParseTokenRejects(t *testing.T) {
	tm := NewTokenManager("secret", "sla-engine", time.Hour)

	other := NewTokenManager("other-secret", "sla-engine", time.Hour)
	forged, _, err := other.GenerateToken("x", RoleAdmin, "")
	require.NoError(t, err)
	_, err = tm.ParseToken(forged)
	assert.Error(t, err)

	wrongIssuer := NewTokenManager("secret", "someone-else", time.Hour)
	token, _, err := wrongIssuer.GenerateToken("x", RoleAdmin, "")
	require.NoError(t, err)
	_, err = tm.ParseToken(token)
	assert.Error(t, err)

	expired := NewTokenManager("secret", "sla-engine", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err = expired.GenerateToken("x", RoleAdmin, "")
	require.NoError(t, err)
	_, err = tm.ParseToken(token)
	assert.Error(t, err)

	_, _, err = tm.GenerateToken("x", Role("root"), "")
	assert.Error(t, err)
}

func newTestApp(mw *AuthMiddleware, extra ...fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var de *apperrors.DomainError
			if errors.As(err, &de) {
				return c.SendStatus(de.HTTPStatus)
			}
			return c.SendStatus(http.StatusInternalServerError)
		},
	})
	handlers := append([]fiber.Handler{mw.Handle}, extra...)
	handlers = append(handlers, func(c *fiber.Ctx) error {
		p, _ := PrincipalFromContext(c)
		return c.SendString(string(p.Role))
	})
	app.Get("/entities/:id", handlers...)
	return app
}

func do(t *testing.T, app *fiber.App, path, token string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestMiddleware(t *testing.T) {
	tm := NewTokenManager("secret", "", time.Hour)
	app := newTestApp(NewAuthMiddleware(tm, false), RequireRole(RoleAdmin, RoleViewer), RequireEntityParam("id"))

	viewer, _, err := tm.GenerateToken("alice", RoleViewer, "ent-1")
	require.NoError(t, err)
	agent, _, err := tm.GenerateToken("bob", RoleAgent, "")
	require.NoError(t, err)
	admin, _, err := tm.GenerateToken("carol", RoleAdmin, "")
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, do(t, app, "/entities/ent-1", ""))
	assert.Equal(t, http.StatusUnauthorized, do(t, app, "/entities/ent-1", "garbage"))
	assert.Equal(t, http.StatusOK, do(t, app, "/entities/ent-1", viewer))
	assert.Equal(t, http.StatusForbidden, do(t, app, "/entities/ent-2", viewer))
	assert.Equal(t, http.StatusForbidden, do(t, app, "/entities/ent-1", agent))
	assert.Equal(t, http.StatusOK, do(t, app, "/entities/ent-2", admin))
}

func TestMiddlewareDisabled(t *testing.T) {
	app := newTestApp(NewAuthMiddleware(nil, true), RequireRole(RoleAdmin))
	assert.Equal(t, http.StatusOK, do(t, app, "/entities/any", ""))
}
