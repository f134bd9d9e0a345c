// Package fiber adapts the sesame core to the Fiber web framework: route
// registration for the auth surface and a request-guard middleware exposing
// the authenticated user/session to downstream handlers.
package fiber

import (
	"github.com/gofiber/fiber/v3"

	"github.com/kmantas/sesame/core"
)

// SessionCookie is the cookie the adapter reads and writes session tokens
// through when no Authorization header is present.
const SessionCookie = "sesame_session"

type Adapter struct {
	app *fiber.App
}

var _ core.HTTPAdapter = (*Adapter)(nil)

func New(app *fiber.App) *Adapter {
	return &Adapter{app: app}
}

func (a *Adapter) RegisterRoutes(h core.AuthHandler, basePath string) error {
	api := a.app.Group(basePath)

	// Public routes
	api.Put("/sign-up", a.signUp(h))
	api.Post("/sign-in", a.signIn(h))

	// Protected routes
	api.Get("/profile", a.RequireAuth(h), a.profile(h))
	api.Get("/refresh", a.RequireAuth(h), a.refresh(h))
	api.Get("/sign-out", a.RequireAuth(h), a.signOut(h))

	// OAuth routes
	api.Get("/oauth/:provider", a.oauthRedirect(h))
	api.Get("/oauth/:provider/callback", a.oauthCallback(h))

	return nil
}
