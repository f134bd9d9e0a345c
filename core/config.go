package core

import (
	"log/slog"
	"time"
)

// Config wires the core together. It is constructed once at startup and
// treated as immutable afterwards; components never reach for ambient state.
type Config struct {
	Storage Storage

	HTTP HTTPAdapter

	// Optional config
	CacheAdapter   Cache
	DisableCache   bool
	SessionConfig  *SessionConfig
	PasswordHasher PasswordHandler
	Attributes     AttributeSchema
	Providers      []ProviderConfig
	OAuth          *OAuthConfig
	BasePath       string
	Logger         *slog.Logger
}

// SessionConfig controls session lifetime and rotation.
//
// A session older than FreshFor is considered stale: the next validation
// extends its expiry to now+Lifetime. The identifier itself is never
// reissued; the token already carries 256 bits of entropy and rotating it
// would force every client to handle mid-request token replacement.
type SessionConfig struct {
	Lifetime time.Duration
	FreshFor time.Duration
}

func DefaultSessionConfig() SessionConfig {
	lifetime := 30 * 24 * time.Hour
	return SessionConfig{
		Lifetime: lifetime,
		FreshFor: lifetime / 2,
	}
}

// ProviderConfig describes one OAuth provider as data: endpoints, scopes,
// and a parse strategy for its user-info response shape. No per-provider
// types beyond this.
type ProviderConfig struct {
	Name         string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	AuthURL     string
	TokenURL    string
	UserInfoURL string

	// UsePKCE adds an S256 code challenge to the authorization request and
	// sends the verifier with the code exchange.
	UsePKCE bool

	// ParseProfile maps the provider's user-info response body onto the
	// normalized profile shape.
	ParseProfile func(body []byte) (*RemoteProfile, error)
}

// Complete reports whether the provider carries everything the flow needs.
func (p ProviderConfig) Complete() bool {
	return p.Name != "" &&
		p.ClientID != "" &&
		p.ClientSecret != "" &&
		p.RedirectURL != "" &&
		p.AuthURL != "" &&
		p.TokenURL != "" &&
		p.UserInfoURL != "" &&
		p.ParseProfile != nil
}

// OAuthConfig controls flow-level timing shared by all providers.
type OAuthConfig struct {
	// StateLifetime bounds how long an issued authorization URL stays
	// completable. Abandoned states expire on their own.
	StateLifetime time.Duration
	// ExchangeTimeout caps each provider network call (code exchange,
	// user-info fetch). A stalled provider surfaces ErrProviderExchange
	// instead of hanging the request.
	ExchangeTimeout time.Duration
}

func DefaultOAuthConfig() OAuthConfig {
	return OAuthConfig{
		StateLifetime:   10 * time.Minute,
		ExchangeTimeout: 10 * time.Second,
	}
}
