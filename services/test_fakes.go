package services

import (
	"context"
	"sync"
	"time"

	"github.com/kmantas/sesame/core"
)

// FakeStorage is a test-only in-memory implementation of core.Storage. It
// mirrors the concurrency contracts real adapters carry: username and link
// uniqueness under lock, forward-only session extension, and atomic
// check-and-delete state consumption. Error fields inject adapter failures.
type FakeStorage struct {
	mu sync.Mutex

	users    map[string]*core.User    // by ID
	sessions map[string]*core.Session // by token hash
	links    map[string]*core.ProviderLink
	states   map[string]*core.LoginState

	createUserErr    error
	getUserErr       error
	createSessionErr error
	getSessionErr    error
	extendErr        error
	deleteErr        error
	stateErr         error
	linkErr          error

	extendCalls int
}

var _ core.Storage = (*FakeStorage)(nil)

func NewFakeStorage() *FakeStorage {
	return &FakeStorage{
		users:    make(map[string]*core.User),
		sessions: make(map[string]*core.Session),
		links:    make(map[string]*core.ProviderLink),
		states:   make(map[string]*core.LoginState),
	}
}

func linkKey(provider, providerUserID string) string {
	return provider + "/" + providerUserID
}

func (f *FakeStorage) CreateUser(ctx context.Context, u *core.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createUserErr != nil {
		return f.createUserErr
	}
	for _, existing := range f.users {
		if existing.Username == u.Username {
			return core.ErrDuplicateIdentity
		}
	}
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	clone := *u
	f.users[u.ID] = &clone
	return nil
}

func (f *FakeStorage) GetUserByID(ctx context.Context, id string) (*core.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getUserErr != nil {
		return nil, f.getUserErr
	}
	u, ok := f.users[id]
	if !ok {
		return nil, core.ErrUserNotFound
	}
	clone := *u
	return &clone, nil
}

func (f *FakeStorage) GetUserByUsername(ctx context.Context, username string) (*core.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getUserErr != nil {
		return nil, f.getUserErr
	}
	for _, u := range f.users {
		if u.Username == username {
			clone := *u
			return &clone, nil
		}
	}
	return nil, core.ErrUserNotFound
}

func (f *FakeStorage) UpdateUserAttributes(ctx context.Context, id string, patch map[string]any) (*core.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, core.ErrUserNotFound
	}
	if u.Attributes == nil {
		u.Attributes = make(map[string]any, len(patch))
	}
	for k, v := range patch {
		u.Attributes[k] = v
	}
	u.UpdatedAt = time.Now()
	clone := *u
	return &clone, nil
}

func (f *FakeStorage) CreateSession(ctx context.Context, s *core.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createSessionErr != nil {
		return f.createSessionErr
	}
	clone := *s
	f.sessions[s.TokenHash] = &clone
	return nil
}

func (f *FakeStorage) GetSessionWithUser(ctx context.Context, tokenHash string) (*core.Session, *core.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getSessionErr != nil {
		return nil, nil, f.getSessionErr
	}
	s, ok := f.sessions[tokenHash]
	if !ok {
		return nil, nil, core.ErrSessionNotFound
	}
	u, ok := f.users[s.UserID]
	if !ok {
		return nil, nil, core.ErrSessionNotFound
	}
	sClone := *s
	uClone := *u
	return &sClone, &uClone, nil
}

// ExtendSession applies the forward-only contract: an earlier deadline never
// overwrites a later one.
func (f *FakeStorage) ExtendSession(ctx context.Context, sessionID string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extendCalls++
	if f.extendErr != nil {
		return f.extendErr
	}
	for _, s := range f.sessions {
		if s.ID == sessionID {
			if s.ExpiresAt.Before(expiresAt) {
				s.ExpiresAt = expiresAt
			}
			return nil
		}
	}
	return core.ErrSessionNotFound
}

func (f *FakeStorage) DeleteSession(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	for hash, s := range f.sessions {
		if s.ID == sessionID {
			delete(f.sessions, hash)
			return nil
		}
	}
	return core.ErrSessionNotFound
}

func (f *FakeStorage) DeleteSessionByHash(ctx context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.sessions[tokenHash]; !ok {
		return core.ErrSessionNotFound
	}
	delete(f.sessions, tokenHash)
	return nil
}

func (f *FakeStorage) DeleteUserSessions(ctx context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	count := 0
	for hash, s := range f.sessions {
		if s.UserID == userID {
			delete(f.sessions, hash)
			count++
		}
	}
	return count, nil
}

func (f *FakeStorage) DeleteExpiredSessions(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	count := 0
	for hash, s := range f.sessions {
		if !now.Before(s.ExpiresAt) {
			delete(f.sessions, hash)
			count++
		}
	}
	return count, nil
}

func (f *FakeStorage) GetLink(ctx context.Context, provider, providerUserID string) (*core.ProviderLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.linkErr != nil {
		return nil, f.linkErr
	}
	l, ok := f.links[linkKey(provider, providerUserID)]
	if !ok {
		return nil, core.ErrLinkNotFound
	}
	clone := *l
	return &clone, nil
}

func (f *FakeStorage) CreateLink(ctx context.Context, l *core.ProviderLink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.linkErr != nil {
		return f.linkErr
	}
	key := linkKey(l.Provider, l.ProviderUserID)
	if _, ok := f.links[key]; ok {
		return core.ErrLinkExists
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	clone := *l
	f.links[key] = &clone
	return nil
}

// CreateUserWithLink persists both records under one lock acquisition: either
// both land or neither does, same as the transactional adapters.
func (f *FakeStorage) CreateUserWithLink(ctx context.Context, u *core.User, l *core.ProviderLink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.linkErr != nil {
		return f.linkErr
	}
	key := linkKey(l.Provider, l.ProviderUserID)
	if _, ok := f.links[key]; ok {
		return core.ErrLinkExists
	}
	for _, existing := range f.users {
		if existing.Username == u.Username {
			return core.ErrDuplicateIdentity
		}
	}
	now := time.Now()
	u.CreatedAt = now
	u.UpdatedAt = now
	l.CreatedAt = now
	uClone := *u
	lClone := *l
	f.users[u.ID] = &uClone
	f.links[key] = &lClone
	return nil
}

func (f *FakeStorage) CreateLoginState(ctx context.Context, s *core.LoginState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stateErr != nil {
		return f.stateErr
	}
	clone := *s
	f.states[s.State] = &clone
	return nil
}

// ConsumeLoginState removes the record under lock so a concurrent duplicate
// consumer observes absence, never the same record twice.
func (f *FakeStorage) ConsumeLoginState(ctx context.Context, state string) (*core.LoginState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stateErr != nil {
		return nil, f.stateErr
	}
	s, ok := f.states[state]
	if !ok {
		return nil, core.ErrStateNotFound
	}
	delete(f.states, state)
	clone := *s
	return &clone, nil
}

func (f *FakeStorage) DeleteExpiredStates(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	count := 0
	for key, s := range f.states {
		if !now.Before(s.ExpiresAt) {
			delete(f.states, key)
			count++
		}
	}
	return count, nil
}

// SessionCount reports how many session records remain, for assertions on
// lazy and bulk deletion.
func (f *FakeStorage) SessionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

// UserCount reports how many users exist, for first-login race assertions.
func (f *FakeStorage) UserCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users)
}

// ExtendCalls reports how many times ExtendSession was invoked.
func (f *FakeStorage) ExtendCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.extendCalls
}
