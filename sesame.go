// Package sesame is a session-based authentication core: it manages user
// identities, their credentials, and the server-side sessions representing
// an authenticated request context, and folds OAuth provider logins into the
// same session model. Persistence and HTTP transport are pluggable adapters.
package sesame

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kmantas/sesame/core"
	"github.com/kmantas/sesame/services"
)

// interfaces
type (
	Storage = core.Storage
	Cache   = core.Cache

	HTTPAdapter = core.HTTPAdapter
	AuthHandler = core.AuthHandler

	PasswordHandler = core.PasswordHandler
)

// structs
type (
	Config         = core.Config
	SessionConfig  = core.SessionConfig
	OAuthConfig    = core.OAuthConfig
	ProviderConfig = core.ProviderConfig

	AttributeSchema = core.AttributeSchema
)

type (
	User          = core.User
	Session       = core.Session
	SessionData   = core.SessionData
	LoginState    = core.LoginState
	ProviderLink  = core.ProviderLink
	RemoteProfile = core.RemoteProfile

	SignUpInput = core.SignUpInput
	SignInInput = core.SignInInput
	AuthResult  = core.AuthResult
	RequestMeta = core.RequestMeta

	CacheStats = core.CacheStats
)

const (
	KindString = core.KindString
	KindNumber = core.KindNumber
	KindBool   = core.KindBool
)

const defaultBasePath = "/auth"

// Constructors & helpers (convenience re-exports)
var (
	NewInMemoryCache     = core.NewInMemoryCache
	NewArgon2            = core.NewArgon2
	DefaultSessionConfig = core.DefaultSessionConfig

	GoogleProvider = services.GoogleProvider
	GitHubProvider = services.GitHubProvider

	NewSweeper = services.NewSweeper
)

var (
	ErrDuplicateIdentity  = core.ErrDuplicateIdentity
	ErrInvalidCredentials = core.ErrInvalidCredentials
	ErrUserNotFound       = core.ErrUserNotFound
)

var (
	ErrMissingAuthHeader = core.ErrMissingAuthHeader
	ErrSessionInvalid    = core.ErrSessionInvalid
	ErrSessionExpired    = core.ErrSessionExpired
	ErrSessionNotFound   = core.ErrSessionNotFound
	ErrCacheNotFound     = core.ErrCacheNotFound
)

var (
	ErrStateInvalid     = core.ErrStateInvalid
	ErrStateExpired     = core.ErrStateExpired
	ErrProviderExchange = core.ErrProviderExchange
	ErrUnknownProvider  = core.ErrUnknownProvider
)

var (
	ErrUsernameRequired = core.ErrUsernameRequired
	ErrPasswordRequired = core.ErrPasswordRequired
	ErrUnknownAttribute = core.ErrUnknownAttribute
	ErrAttributeType    = core.ErrAttributeType
)

var (
	ErrStorageUnavailable  = core.ErrStorageUnavailable
	ErrStorageRequired     = core.ErrStorageRequired
	ErrHTTPAdapterRequired = core.ErrHTTPAdapterRequired
	ErrProviderIncomplete  = core.ErrProviderIncomplete
)

// Sesame is the assembled authentication core. It implements
// core.AuthHandler, which is the surface HTTP adapters consume.
type Sesame struct {
	Sessions *services.SessionManager
	Identity *services.IdentityService
	OAuth    *services.OAuthService
	BasePath string
	Logger   *slog.Logger
}

var _ core.AuthHandler = (*Sesame)(nil)

func New(config Config) (*Sesame, error) {
	if config.Storage == nil {
		return nil, ErrStorageRequired
	}
	if config.HTTP == nil {
		return nil, ErrHTTPAdapterRequired
	}
	for _, p := range config.Providers {
		if !p.Complete() {
			return nil, fmt.Errorf("%w: %q", ErrProviderIncomplete, p.Name)
		}
	}

	// Set Defaults

	cacheAdapter := config.CacheAdapter
	if cacheAdapter == nil && !config.DisableCache {
		cacheAdapter = NewInMemoryCache(core.CacheConfig{})
	}

	sessionConfig := config.SessionConfig
	if sessionConfig == nil {
		defaults := DefaultSessionConfig()
		sessionConfig = &defaults
	}

	passwordHasher := config.PasswordHasher
	if passwordHasher == nil {
		passwordHasher = NewArgon2()
	}

	basePath := config.BasePath
	if basePath == "" {
		basePath = defaultBasePath
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	oauthConfig := config.OAuth
	if oauthConfig == nil {
		defaults := core.DefaultOAuthConfig()
		oauthConfig = &defaults
	}

	sessions := services.NewSessionManager(*sessionConfig, config.Storage, cacheAdapter)
	identity := services.NewIdentityService(config.Storage, passwordHasher, sessions, config.Attributes)
	oauth := services.NewOAuthService(*oauthConfig, config.Providers, config.Storage, identity, sessions, logger)

	s := &Sesame{
		Sessions: sessions,
		Identity: identity,
		OAuth:    oauth,
		BasePath: basePath,
		Logger:   logger,
	}

	if err := config.HTTP.RegisterRoutes(s, basePath); err != nil {
		return nil, err
	}

	return s, nil
}

// core.AuthHandler implementation: thin delegation to the owning component.

func (s *Sesame) SignUp(ctx context.Context, input SignUpInput, meta RequestMeta) (*AuthResult, error) {
	return s.Identity.SignUp(ctx, input, meta)
}

func (s *Sesame) SignIn(ctx context.Context, input SignInInput, meta RequestMeta) (*AuthResult, error) {
	return s.Identity.SignIn(ctx, input, meta)
}

func (s *Sesame) SignOut(ctx context.Context, token string) error {
	return s.Sessions.Invalidate(ctx, token)
}

func (s *Sesame) Authenticate(ctx context.Context, token string) (*SessionData, error) {
	return s.Sessions.Validate(ctx, token)
}

func (s *Sesame) Profile(ctx context.Context, userID string) (map[string]any, error) {
	return s.Identity.Profile(ctx, userID)
}

func (s *Sesame) UpdateProfile(ctx context.Context, userID string, patch map[string]any) (map[string]any, error) {
	return s.Identity.UpdateAttributes(ctx, userID, patch)
}

func (s *Sesame) AuthorizationURL(ctx context.Context, provider string) (string, error) {
	return s.OAuth.AuthorizationURL(ctx, provider)
}

func (s *Sesame) OAuthCallback(ctx context.Context, provider, code, state string, meta RequestMeta) (*AuthResult, error) {
	return s.OAuth.Login(ctx, provider, code, state, meta)
}

// SignOutEverywhere invalidates every session the user holds, e.g. after a
// password change.
func (s *Sesame) SignOutEverywhere(ctx context.Context, userID string) (int, error) {
	return s.Sessions.InvalidateAllForUser(ctx, userID)
}
