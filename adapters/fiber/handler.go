package fiber

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/kmantas/sesame/core"
)

func requestMeta(c fiber.Ctx) core.RequestMeta {
	return core.RequestMeta{
		IPAddress: c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
	}
}

func (a *Adapter) signUp(h core.AuthHandler) fiber.Handler {
	return func(c fiber.Ctx) error {
		var input core.SignUpInput
		if err := c.Bind().Body(&input); err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid request body",
			})
		}

		result, err := h.SignUp(c.Context(), input, requestMeta(c))
		if err != nil {
			return handleAuthError(c, err)
		}

		setSessionCookie(c, result.Token, result.Session.ExpiresAt)
		return c.Status(http.StatusCreated).JSON(result)
	}
}

func (a *Adapter) signIn(h core.AuthHandler) fiber.Handler {
	return func(c fiber.Ctx) error {
		var input core.SignInInput
		if err := c.Bind().Body(&input); err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid request body",
			})
		}

		result, err := h.SignIn(c.Context(), input, requestMeta(c))
		if err != nil {
			return handleAuthError(c, err)
		}

		setSessionCookie(c, result.Token, result.Session.ExpiresAt)
		return c.Status(http.StatusOK).JSON(result)
	}
}

func (a *Adapter) profile(h core.AuthHandler) fiber.Handler {
	return func(c fiber.Ctx) error {
		user, ok := UserFromCtx(c)
		if !ok {
			return unauthorized(c)
		}

		profile, err := h.Profile(c.Context(), user.ID)
		if err != nil {
			return handleAuthError(c, err)
		}
		return c.Status(http.StatusOK).JSON(profile)
	}
}

func (a *Adapter) refresh(h core.AuthHandler) fiber.Handler {
	return func(c fiber.Ctx) error {
		// RequireAuth already re-validated the session, rotating its expiry
		// if it had gone stale; the locals hold the post-rotation record.
		user, uok := UserFromCtx(c)
		session, sok := SessionFromCtx(c)
		if !uok || !sok {
			return unauthorized(c)
		}

		profile, err := h.Profile(c.Context(), user.ID)
		if err != nil {
			return handleAuthError(c, err)
		}

		setSessionCookie(c, tokenFromCtx(c), session.ExpiresAt)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"profile": profile,
			"session": session,
		})
	}
}

func (a *Adapter) signOut(h core.AuthHandler) fiber.Handler {
	return func(c fiber.Ctx) error {
		if err := h.SignOut(c.Context(), tokenFromCtx(c)); err != nil {
			return handleAuthError(c, err)
		}

		clearSessionCookie(c)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"message": "signed out successfully",
		})
	}
}

func (a *Adapter) oauthRedirect(h core.AuthHandler) fiber.Handler {
	return func(c fiber.Ctx) error {
		url, err := h.AuthorizationURL(c.Context(), c.Params("provider"))
		if err != nil {
			return handleAuthError(c, err)
		}
		return c.Redirect().Status(fiber.StatusFound).To(url)
	}
}

func (a *Adapter) oauthCallback(h core.AuthHandler) fiber.Handler {
	return func(c fiber.Ctx) error {
		code := c.Query("code")
		state := c.Query("state")
		if code == "" || state == "" {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{
				"error": "missing code or state",
			})
		}

		result, err := h.OAuthCallback(c.Context(), c.Params("provider"), code, state, requestMeta(c))
		if err != nil {
			return handleAuthError(c, err)
		}

		setSessionCookie(c, result.Token, result.Session.ExpiresAt)
		return c.Status(http.StatusOK).JSON(result)
	}
}

// extractToken extracts the authentication token from the request.
// Checks Authorization header (Bearer token) first, then falls back to cookie.
func extractToken(c fiber.Ctx) string {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
		return authHeader[7:]
	}

	return c.Cookies(SessionCookie)
}

func setSessionCookie(c fiber.Ctx, token string, expiresAt time.Time) {
	c.Cookie(&fiber.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HTTPOnly: true,
		Secure:   true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func clearSessionCookie(c fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
		Secure:   true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func unauthorized(c fiber.Ctx) error {
	return c.Status(http.StatusUnauthorized).JSON(fiber.Map{
		"error": "unauthorized",
	})
}

// handleAuthError maps core errors to HTTP responses. Authentication
// failures share one generic body so the response never says why.
func handleAuthError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, core.ErrInvalidCredentials),
		errors.Is(err, core.ErrSessionInvalid),
		errors.Is(err, core.ErrSessionExpired),
		errors.Is(err, core.ErrMissingAuthHeader):
		return unauthorized(c)

	case errors.Is(err, core.ErrDuplicateIdentity):
		return c.Status(http.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
		})

	// Expired and invalid state collapse into one restart signal to avoid
	// leaking token-replay detail.
	case errors.Is(err, core.ErrStateInvalid),
		errors.Is(err, core.ErrStateExpired):
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"error": "login flow invalid or expired, restart sign-in",
		})

	case errors.Is(err, core.ErrUnknownProvider):
		return c.Status(http.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})

	case errors.Is(err, core.ErrUsernameRequired),
		errors.Is(err, core.ErrPasswordRequired),
		errors.Is(err, core.ErrUnknownAttribute),
		errors.Is(err, core.ErrAttributeType):
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})

	case errors.Is(err, core.ErrUserNotFound):
		return c.Status(http.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})

	case errors.Is(err, core.ErrProviderExchange):
		return c.Status(http.StatusBadGateway).JSON(fiber.Map{
			"error": "provider exchange failed",
		})

	case errors.Is(err, core.ErrStorageUnavailable):
		return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "storage unavailable",
		})

	default:
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal error",
		})
	}
}
