package core

import (
	"context"
	"time"
)

// Ports define interfaces for external dependencies

// ============================================
// STORAGE PORTS (Database operations)
// ============================================

// UserStorage defines user-related database operations.
//
// CreateUser must enforce username uniqueness and return
// ErrDuplicateIdentity on conflict.
type UserStorage interface {
	CreateUser(ctx context.Context, u *User) error
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	// UpdateUserAttributes merges patch into the user's attribute bag and
	// returns the updated record.
	UpdateUserAttributes(ctx context.Context, id string, patch map[string]any) (*User, error)
}

// SessionStorage defines session-related database operations.
type SessionStorage interface {
	CreateSession(ctx context.Context, s *Session) error
	// GetSessionWithUser resolves a token hash to the session and its owning
	// user in one call. Returns ErrSessionNotFound when absent.
	GetSessionWithUser(ctx context.Context, tokenHash string) (*Session, *User, error)
	// ExtendSession moves the session's expiry forward. The write is
	// conditional: implementations must only apply it when the stored expiry
	// is earlier than expiresAt, so concurrent rotations converge on the
	// latest value instead of the last-arriving one.
	ExtendSession(ctx context.Context, sessionID string, expiresAt time.Time) error
	DeleteSession(ctx context.Context, sessionID string) error
	DeleteSessionByHash(ctx context.Context, tokenHash string) error
	DeleteUserSessions(ctx context.Context, userID string) (int, error)
	DeleteExpiredSessions(ctx context.Context) (int, error)
}

// LinkStorage defines provider-identity-link operations.
//
// CreateLink must enforce uniqueness on (provider, providerUserID) and
// return ErrLinkExists on conflict; callers use the conflict to fall back to
// the found path when two first-logins race.
type LinkStorage interface {
	GetLink(ctx context.Context, provider, providerUserID string) (*ProviderLink, error)
	CreateLink(ctx context.Context, l *ProviderLink) error
	// CreateUserWithLink persists a new user and their provider link as one
	// atomic unit. When the link loses a uniqueness race the call returns
	// ErrLinkExists and persists neither record, so duplicate concurrent
	// first-logins cannot leave behind a second local user.
	CreateUserWithLink(ctx context.Context, u *User, l *ProviderLink) error
}

// StateStorage defines OAuth login-state operations.
//
// ConsumeLoginState is atomic check-and-delete: of any number of concurrent
// callers presenting the same state, exactly one receives the record and the
// rest receive ErrStateNotFound.
type StateStorage interface {
	CreateLoginState(ctx context.Context, s *LoginState) error
	ConsumeLoginState(ctx context.Context, state string) (*LoginState, error)
	DeleteExpiredStates(ctx context.Context) (int, error)
}

// Storage is the full persistence capability the core depends on.
type Storage interface {
	UserStorage
	SessionStorage
	LinkStorage
	StateStorage
}

// ============================================
// CACHE PORT
// ============================================

// Cache defines session caching operations, keyed by token hash.
type Cache interface {
	Get(tokenHash string) (*Session, error)
	Set(tokenHash string, session *Session) error
	Delete(tokenHash string) error
	Clear() error
}

// CacheWithStats extends Cache with statistics tracking
type CacheWithStats interface {
	Cache
	Stats() CacheStats
}

// ============================================
// AUTH HANDLER (for HTTP adapters)
// ============================================

// RequestMeta carries transport details recorded on session creation.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// SignUpInput contains the data needed to register a new user
type SignUpInput struct {
	Username   string         `json:"username"`
	Password   string         `json:"password"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// SignInInput contains the credentials for authentication
type SignInInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResult contains an authenticated user and their session
type AuthResult struct {
	User    *User    `json:"user"`
	Session *Session `json:"session"`
	Token   string   `json:"token"` // The raw token (not the hash)
}

// AuthHandler provides authentication operations for HTTP adapters
type AuthHandler interface {
	SignUp(ctx context.Context, input SignUpInput, meta RequestMeta) (*AuthResult, error)
	SignIn(ctx context.Context, input SignInInput, meta RequestMeta) (*AuthResult, error)
	SignOut(ctx context.Context, token string) error
	// Authenticate validates the token, rotating the session's expiry when
	// it has gone stale. The request guard calls this on every guarded
	// request.
	Authenticate(ctx context.Context, token string) (*SessionData, error)
	Profile(ctx context.Context, userID string) (map[string]any, error)
	UpdateProfile(ctx context.Context, userID string, patch map[string]any) (map[string]any, error)
	AuthorizationURL(ctx context.Context, provider string) (string, error)
	OAuthCallback(ctx context.Context, provider, code, state string, meta RequestMeta) (*AuthResult, error)
}

// ============================================
// HTTP PORT
// ============================================

type HTTPAdapter interface {
	RegisterRoutes(h AuthHandler, basePath string) error
}
