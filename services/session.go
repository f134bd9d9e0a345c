package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kmantas/sesame/core"
	"github.com/kmantas/sesame/pkg/crypto"
)

// SessionManager owns the session lifecycle: creation, validation with
// freshness-driven rotation, and invalidation. It holds no authoritative
// state of its own; every validation re-reads the storage adapter so that a
// concurrent invalidation is always observed.
type SessionManager struct {
	config  core.SessionConfig
	storage core.Storage
	cache   core.Cache // optional, can be nil if caching is disabled
	now     func() time.Time
}

type CreateSessionResult struct {
	Session *core.Session `json:"session"`
	Token   string        `json:"token"`
}

func NewSessionManager(config core.SessionConfig, storage core.Storage, cache core.Cache) *SessionManager {
	if config.Lifetime == 0 {
		config = core.DefaultSessionConfig()
	}
	if config.FreshFor == 0 {
		config.FreshFor = config.Lifetime / 2
	}
	return &SessionManager{config: config, storage: storage, cache: cache, now: time.Now}
}

// storageFault marks an adapter failure. The core surfaces it and never
// retries; retry policy lives with the adapter.
func storageFault(err error) error {
	return fmt.Errorf("%w: %v", core.ErrStorageUnavailable, err)
}

func (sm *SessionManager) Create(ctx context.Context, userID string, meta core.RequestMeta) (*CreateSessionResult, error) {
	// Generate cryptographic material
	pair, err := crypto.GenerateHashedToken(crypto.DefaultTokenLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	now := sm.now()
	session := &core.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: pair.Hash,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(sm.config.Lifetime),
		Fresh:     true,
	}

	if err := sm.storage.CreateSession(ctx, session); err != nil {
		return nil, storageFault(err)
	}

	// Cache session if caching is enabled (cache is non-nil)
	if sm.cache != nil {
		// We don't fail the request if caching fails
		_ = sm.cache.Set(pair.Hash, session)
	}

	return &CreateSessionResult{Session: session, Token: pair.Token}, nil
}

// Validate resolves a raw client token to its session and owning user.
//
// An absent token hash maps to ErrSessionInvalid; a record past its expiry
// maps to ErrSessionExpired and is deleted lazily. A session older than the
// freshness window is stale: its expiry is extended to now+Lifetime before
// returning. The session identifier is never reissued on rotation.
func (sm *SessionManager) Validate(ctx context.Context, token string) (*core.SessionData, error) {
	if token == "" {
		return nil, core.ErrSessionInvalid
	}

	tokenHash := crypto.HashToken(token)
	now := sm.now()

	var session *core.Session
	var user *core.User

	// Try cache first if caching is enabled
	if sm.cache != nil {
		if cached, err := sm.cache.Get(tokenHash); err == nil && cached != nil {
			// Copy so rotation below never mutates a shared cache entry.
			clone := *cached
			session = &clone
		}
	}

	if session == nil {
		s, u, err := sm.storage.GetSessionWithUser(ctx, tokenHash)
		if err != nil {
			if errors.Is(err, core.ErrSessionNotFound) {
				return nil, core.ErrSessionInvalid
			}
			return nil, storageFault(err)
		}
		session, user = s, u
	} else {
		u, err := sm.storage.GetUserByID(ctx, session.UserID)
		if err != nil {
			if errors.Is(err, core.ErrUserNotFound) {
				return nil, core.ErrSessionInvalid
			}
			return nil, storageFault(err)
		}
		user = u
	}

	if !now.Before(session.ExpiresAt) {
		// Lazy cleanup: the record is logically dead already, so a failed
		// delete does not change the outcome.
		_ = sm.storage.DeleteSession(ctx, session.ID)
		if sm.cache != nil {
			_ = sm.cache.Delete(tokenHash)
		}
		return nil, core.ErrSessionExpired
	}

	session.Fresh = now.Sub(session.CreatedAt) < sm.config.FreshFor
	if !session.Fresh {
		if err := sm.rotate(ctx, session, now); err != nil {
			return nil, err
		}
	}

	if sm.cache != nil {
		_ = sm.cache.Set(tokenHash, session)
	}

	return &core.SessionData{User: user, Session: session}, nil
}

// rotate extends the session's absolute expiry. The adapter write is
// forward-only, so concurrent rotations of the same session converge on the
// latest expiry instead of whichever write lands last.
func (sm *SessionManager) rotate(ctx context.Context, session *core.Session, now time.Time) error {
	newExpiry := now.Add(sm.config.Lifetime)
	if err := sm.storage.ExtendSession(ctx, session.ID, newExpiry); err != nil {
		return storageFault(err)
	}
	if newExpiry.After(session.ExpiresAt) {
		session.ExpiresAt = newExpiry
	}
	return nil
}

// Invalidate destroys the session behind the token. Invalidating a session
// that is already gone is not an error.
func (sm *SessionManager) Invalidate(ctx context.Context, token string) error {
	if token == "" {
		return core.ErrSessionInvalid
	}

	tokenHash := crypto.HashToken(token)

	if sm.cache != nil {
		_ = sm.cache.Delete(tokenHash)
	}

	err := sm.storage.DeleteSessionByHash(ctx, tokenHash)
	if err != nil && !errors.Is(err, core.ErrSessionNotFound) {
		return storageFault(err)
	}
	return nil
}

func (sm *SessionManager) InvalidateByID(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return core.ErrSessionNotFound
	}

	// The cache is keyed by token hash, which we cannot derive from the ID.
	// Clearing wholesale keeps the invalidation visible immediately.
	if sm.cache != nil {
		_ = sm.cache.Clear()
	}

	err := sm.storage.DeleteSession(ctx, sessionID)
	if err != nil && !errors.Is(err, core.ErrSessionNotFound) {
		return storageFault(err)
	}
	return nil
}

// InvalidateAllForUser is used on password change or sign-out-everywhere.
func (sm *SessionManager) InvalidateAllForUser(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, core.ErrUserNotFound
	}

	count, err := sm.storage.DeleteUserSessions(ctx, userID)
	if err != nil {
		return 0, storageFault(err)
	}

	// Clear entire cache when destroying all user sessions if caching is
	// enabled. Fetching the user's sessions first just to evict selectively
	// would defeat the point of the cache.
	if sm.cache != nil && count > 0 {
		_ = sm.cache.Clear()
	}

	return count, nil
}
