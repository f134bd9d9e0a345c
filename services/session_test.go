package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kmantas/sesame/core"
)

func newTestSessionManager(storage core.Storage, cache core.Cache) *SessionManager {
	config := core.SessionConfig{Lifetime: 30 * 24 * time.Hour, FreshFor: 15 * 24 * time.Hour}
	return NewSessionManager(config, storage, cache)
}

var testMeta = core.RequestMeta{IPAddress: "192.168.1.1", UserAgent: "Mozilla/5.0"}

func seedUser(t *testing.T, storage *FakeStorage, id, username string) *core.User {
	t.Helper()
	user := &core.User{ID: id, Username: username}
	if err := storage.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

// Requirement: Create issues a session with a raw token for the client and
// only the token hash in storage.
func TestSessionManager_Create(t *testing.T) {
	tests := []struct {
		name   string
		userID string
		meta   core.RequestMeta
	}{
		{name: "creates session with metadata", userID: "user123", meta: testMeta},
		{name: "empty metadata accepted", userID: "user123", meta: core.RequestMeta{}},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			storage := NewFakeStorage()
			manager := newTestSessionManager(storage, nil)

			result, err := manager.Create(context.Background(), test.userID, test.meta)
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			if result.Token == "" {
				t.Fatal("Create() returned empty token")
			}
			if result.Session.UserID != test.userID {
				t.Errorf("Session.UserID = %q, want %q", result.Session.UserID, test.userID)
			}
			if result.Session.TokenHash == result.Token {
				t.Error("storage received the raw token instead of its hash")
			}
			if !result.Session.Fresh {
				t.Error("new session should be fresh")
			}
			wantExpiry := result.Session.CreatedAt.Add(30 * 24 * time.Hour)
			if !result.Session.ExpiresAt.Equal(wantExpiry) {
				t.Errorf("ExpiresAt = %v, want %v", result.Session.ExpiresAt, wantExpiry)
			}
		})
	}
}

// Requirement: TokenHash never appears in the session's JSON form.
func TestSessionManager_Create_TokenHashNotExposed(t *testing.T) {
	storage := NewFakeStorage()
	manager := newTestSessionManager(storage, nil)

	result, err := manager.Create(context.Background(), "user123", testMeta)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	jsonBytes, err := json.Marshal(result.Session)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(jsonBytes, &m); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if _, exists := m["tokenHash"]; exists {
		t.Error("TokenHash exposed in JSON")
	}
	for _, field := range []string{"id", "userId", "expiresAt", "createdAt"} {
		if _, exists := m[field]; !exists {
			t.Errorf("required field %s missing from JSON", field)
		}
	}
}

// Requirement: Validate resolves a live token to its session and user, and
// maps unknown tokens to ErrSessionInvalid without detail.
func TestSessionManager_Validate(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, storage *FakeStorage, manager *SessionManager) string
		wantErr error
	}{
		{
			name: "valid token returns session data",
			setup: func(t *testing.T, storage *FakeStorage, manager *SessionManager) string {
				seedUser(t, storage, "user123", "alice")
				result, err := manager.Create(context.Background(), "user123", testMeta)
				if err != nil {
					t.Fatalf("Create() error = %v", err)
				}
				return result.Token
			},
		},
		{
			name:    "unknown token",
			setup:   func(t *testing.T, storage *FakeStorage, manager *SessionManager) string { return "no-such-token" },
			wantErr: core.ErrSessionInvalid,
		},
		{
			name:    "empty token",
			setup:   func(t *testing.T, storage *FakeStorage, manager *SessionManager) string { return "" },
			wantErr: core.ErrSessionInvalid,
		},
		{
			name: "token whose user is gone",
			setup: func(t *testing.T, storage *FakeStorage, manager *SessionManager) string {
				result, err := manager.Create(context.Background(), "ghost", testMeta)
				if err != nil {
					t.Fatalf("Create() error = %v", err)
				}
				return result.Token
			},
			wantErr: core.ErrSessionInvalid,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			storage := NewFakeStorage()
			manager := newTestSessionManager(storage, nil)
			token := test.setup(t, storage, manager)

			data, err := manager.Validate(context.Background(), token)
			if test.wantErr != nil {
				if !errors.Is(err, test.wantErr) {
					t.Fatalf("Validate() error = %v, want %v", err, test.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if data.User == nil || data.Session == nil {
				t.Fatal("Validate() returned incomplete session data")
			}
			if data.User.ID != data.Session.UserID {
				t.Errorf("user %q does not own session for %q", data.User.ID, data.Session.UserID)
			}
		})
	}
}

// Requirement: an expired session is rejected with ErrSessionExpired and its
// record is removed lazily during validation.
func TestSessionManager_Validate_ExpiredIsRejectedAndDeleted(t *testing.T) {
	storage := NewFakeStorage()
	manager := newTestSessionManager(storage, nil)
	seedUser(t, storage, "user123", "alice")

	start := time.Now()
	manager.now = func() time.Time { return start }
	result, err := manager.Create(context.Background(), "user123", testMeta)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Jump past the 30-day lifetime.
	manager.now = func() time.Time { return start.Add(31 * 24 * time.Hour) }

	_, err = manager.Validate(context.Background(), result.Token)
	if !errors.Is(err, core.ErrSessionExpired) {
		t.Fatalf("Validate() error = %v, want ErrSessionExpired", err)
	}
	if storage.SessionCount() != 0 {
		t.Errorf("expired session not deleted, %d records remain", storage.SessionCount())
	}

	// A second presentation of the same token now looks like any unknown one.
	_, err = manager.Validate(context.Background(), result.Token)
	if !errors.Is(err, core.ErrSessionInvalid) {
		t.Fatalf("second Validate() error = %v, want ErrSessionInvalid", err)
	}
}

// Requirement: a session validated past its freshness window gets its expiry
// extended to now+Lifetime while keeping its identifier. A session created at
// T0 and validated at T0+20d must expire at T0+20d+30d.
func TestSessionManager_Validate_StaleSessionRotates(t *testing.T) {
	storage := NewFakeStorage()
	manager := newTestSessionManager(storage, nil)
	seedUser(t, storage, "user123", "alice")

	start := time.Now()
	manager.now = func() time.Time { return start }
	result, err := manager.Create(context.Background(), "user123", testMeta)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	originalID := result.Session.ID

	validateAt := start.Add(20 * 24 * time.Hour)
	manager.now = func() time.Time { return validateAt }

	data, err := manager.Validate(context.Background(), result.Token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if data.Session.Fresh {
		t.Error("session past the freshness window should report Fresh=false")
	}
	if data.Session.ID != originalID {
		t.Errorf("rotation changed session ID from %q to %q", originalID, data.Session.ID)
	}
	wantExpiry := validateAt.Add(30 * 24 * time.Hour)
	if !data.Session.ExpiresAt.Equal(wantExpiry) {
		t.Errorf("ExpiresAt = %v, want %v", data.Session.ExpiresAt, wantExpiry)
	}

	// The same token keeps working after rotation.
	again, err := manager.Validate(context.Background(), result.Token)
	if err != nil {
		t.Fatalf("Validate() after rotation error = %v", err)
	}
	if !again.Session.ExpiresAt.Equal(wantExpiry) {
		t.Errorf("stored expiry = %v, want %v", again.Session.ExpiresAt, wantExpiry)
	}
}

// Requirement: a fresh session is not rotated.
func TestSessionManager_Validate_FreshSessionNotRotated(t *testing.T) {
	storage := NewFakeStorage()
	manager := newTestSessionManager(storage, nil)
	seedUser(t, storage, "user123", "alice")

	start := time.Now()
	manager.now = func() time.Time { return start }
	result, err := manager.Create(context.Background(), "user123", testMeta)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	manager.now = func() time.Time { return start.Add(1 * 24 * time.Hour) }
	data, err := manager.Validate(context.Background(), result.Token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !data.Session.Fresh {
		t.Error("one-day-old session should be fresh")
	}
	if storage.ExtendCalls() != 0 {
		t.Errorf("fresh validation wrote %d extensions, want 0", storage.ExtendCalls())
	}
	if !data.Session.ExpiresAt.Equal(start.Add(30 * 24 * time.Hour)) {
		t.Errorf("expiry moved on fresh validation: %v", data.Session.ExpiresAt)
	}
}

// Requirement: concurrent rotations of the same session converge on a single
// extended expiry; no validation fails and the stored expiry is the latest
// one written.
func TestSessionManager_Validate_ConcurrentRotationConverges(t *testing.T) {
	storage := NewFakeStorage()
	manager := newTestSessionManager(storage, nil)
	seedUser(t, storage, "user123", "alice")

	start := time.Now()
	manager.now = func() time.Time { return start }
	result, err := manager.Create(context.Background(), "user123", testMeta)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	validateAt := start.Add(20 * 24 * time.Hour)
	manager.now = func() time.Time { return validateAt }

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := manager.Validate(context.Background(), result.Token); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent Validate() error = %v", err)
	}

	data, err := manager.Validate(context.Background(), result.Token)
	if err != nil {
		t.Fatalf("Validate() after race error = %v", err)
	}
	wantExpiry := validateAt.Add(30 * 24 * time.Hour)
	if !data.Session.ExpiresAt.Equal(wantExpiry) {
		t.Errorf("converged expiry = %v, want %v", data.Session.ExpiresAt, wantExpiry)
	}
}

// Requirement: a cached session hit still reflects invalidation and never
// leaks a mutated shared entry.
func TestSessionManager_Validate_WithCache(t *testing.T) {
	storage := NewFakeStorage()
	cache := core.NewInMemoryCache(core.CacheConfig{})
	manager := newTestSessionManager(storage, cache)
	seedUser(t, storage, "user123", "alice")

	result, err := manager.Create(context.Background(), "user123", testMeta)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if _, err := manager.Validate(context.Background(), result.Token); err != nil {
		t.Fatalf("first Validate() error = %v", err)
	}
	if _, err := manager.Validate(context.Background(), result.Token); err != nil {
		t.Fatalf("cached Validate() error = %v", err)
	}
	if cache.Stats().Hits == 0 {
		t.Error("second validation should hit the cache")
	}

	if err := manager.Invalidate(context.Background(), result.Token); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if _, err := manager.Validate(context.Background(), result.Token); !errors.Is(err, core.ErrSessionInvalid) {
		t.Fatalf("Validate() after invalidation error = %v, want ErrSessionInvalid", err)
	}
}

// Requirement: Invalidate destroys the session; invalidating twice is not an
// error.
func TestSessionManager_Invalidate(t *testing.T) {
	storage := NewFakeStorage()
	manager := newTestSessionManager(storage, nil)
	seedUser(t, storage, "user123", "alice")

	result, err := manager.Create(context.Background(), "user123", testMeta)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := manager.Invalidate(context.Background(), result.Token); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if _, err := manager.Validate(context.Background(), result.Token); !errors.Is(err, core.ErrSessionInvalid) {
		t.Fatalf("Validate() error = %v, want ErrSessionInvalid", err)
	}
	if err := manager.Invalidate(context.Background(), result.Token); err != nil {
		t.Errorf("second Invalidate() error = %v, want nil", err)
	}
}

// Requirement: InvalidateAllForUser destroys every session of the user and
// only theirs.
func TestSessionManager_InvalidateAllForUser(t *testing.T) {
	storage := NewFakeStorage()
	manager := newTestSessionManager(storage, nil)
	seedUser(t, storage, "user123", "alice")
	seedUser(t, storage, "user456", "bob")

	var aliceTokens []string
	for i := 0; i < 3; i++ {
		result, err := manager.Create(context.Background(), "user123", testMeta)
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		aliceTokens = append(aliceTokens, result.Token)
	}
	bob, err := manager.Create(context.Background(), "user456", testMeta)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	count, err := manager.InvalidateAllForUser(context.Background(), "user123")
	if err != nil {
		t.Fatalf("InvalidateAllForUser() error = %v", err)
	}
	if count != 3 {
		t.Errorf("invalidated %d sessions, want 3", count)
	}
	for _, token := range aliceTokens {
		if _, err := manager.Validate(context.Background(), token); !errors.Is(err, core.ErrSessionInvalid) {
			t.Errorf("alice token still valid after bulk invalidation: %v", err)
		}
	}
	if _, err := manager.Validate(context.Background(), bob.Token); err != nil {
		t.Errorf("bob's session should survive: %v", err)
	}
}

// Requirement: adapter failures surface as ErrStorageUnavailable; the core
// never retries.
func TestSessionManager_StorageFailure(t *testing.T) {
	storage := NewFakeStorage()
	storage.getSessionErr = errors.New("connection refused")
	manager := newTestSessionManager(storage, nil)

	_, err := manager.Validate(context.Background(), "some-token")
	if !errors.Is(err, core.ErrStorageUnavailable) {
		t.Fatalf("Validate() error = %v, want ErrStorageUnavailable", err)
	}
}
