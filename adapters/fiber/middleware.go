package fiber

import (
	"github.com/gofiber/fiber/v3"

	"github.com/kmantas/sesame/core"
)

const (
	localsUserKey    = "sesame_user"
	localsSessionKey = "sesame_session_data"
	localsTokenKey   = "sesame_token"
)

// RequireAuth is the request guard: it resolves the session token from the
// request, validates (and, when stale, rotates) the session, and stores the
// typed user/session in the request locals. Unauthenticated requests are
// short-circuited with a generic 401 before any handler logic runs.
func (a *Adapter) RequireAuth(h core.AuthHandler) fiber.Handler {
	return func(c fiber.Ctx) error {
		token := extractToken(c)
		if token == "" {
			return unauthorized(c)
		}

		data, err := h.Authenticate(c.Context(), token)
		if err != nil {
			// Expired, invalid, and missing all collapse into the same
			// response; the distinction is not the client's to see.
			return handleAuthError(c, err)
		}

		c.Locals(localsUserKey, data.User)
		c.Locals(localsSessionKey, data.Session)
		c.Locals(localsTokenKey, token)

		return c.Next()
	}
}

// UserFromCtx returns the authenticated user stored by RequireAuth.
func UserFromCtx(c fiber.Ctx) (*core.User, bool) {
	user, ok := c.Locals(localsUserKey).(*core.User)
	return user, ok
}

// SessionFromCtx returns the validated session stored by RequireAuth.
func SessionFromCtx(c fiber.Ctx) (*core.Session, bool) {
	session, ok := c.Locals(localsSessionKey).(*core.Session)
	return session, ok
}

func tokenFromCtx(c fiber.Ctx) string {
	token, _ := c.Locals(localsTokenKey).(string)
	return token
}
