package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kmantas/sesame/core"
)

func newTestIdentityService(storage core.Storage, schema core.AttributeSchema) *IdentityService {
	sm := NewSessionManager(core.SessionConfig{Lifetime: 24 * time.Hour}, storage, nil)
	return NewIdentityService(storage, core.NewArgon2(), sm, schema)
}

var testSchema = core.AttributeSchema{
	"age":   core.KindNumber,
	"email": core.KindString,
	"admin": core.KindBool,
}

// Requirement: SignUp registers a user, hashes the password, and returns an
// authenticated session.
func TestIdentityService_SignUp(t *testing.T) {
	tests := []struct {
		name    string
		input   core.SignUpInput
		setup   func(*testing.T, *FakeStorage)
		wantErr error
	}{
		{
			name:  "registers user with attributes",
			input: core.SignUpInput{Username: "alice", Password: "p@ss", Attributes: map[string]any{"age": float64(30)}},
		},
		{
			name:    "empty username",
			input:   core.SignUpInput{Username: "", Password: "p@ss"},
			wantErr: core.ErrUsernameRequired,
		},
		{
			name:    "empty password",
			input:   core.SignUpInput{Username: "alice", Password: ""},
			wantErr: core.ErrPasswordRequired,
		},
		{
			name:  "duplicate username",
			input: core.SignUpInput{Username: "alice", Password: "p@ss"},
			setup: func(t *testing.T, storage *FakeStorage) {
				seedUser(t, storage, "existing", "alice")
			},
			wantErr: core.ErrDuplicateIdentity,
		},
		{
			name:    "attribute not in schema",
			input:   core.SignUpInput{Username: "alice", Password: "p@ss", Attributes: map[string]any{"height": 180}},
			wantErr: core.ErrUnknownAttribute,
		},
		{
			name:    "attribute kind mismatch",
			input:   core.SignUpInput{Username: "alice", Password: "p@ss", Attributes: map[string]any{"age": "thirty"}},
			wantErr: core.ErrAttributeType,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			storage := NewFakeStorage()
			if test.setup != nil {
				test.setup(t, storage)
			}
			service := newTestIdentityService(storage, testSchema)

			result, err := service.SignUp(context.Background(), test.input, testMeta)
			if test.wantErr != nil {
				if !errors.Is(err, test.wantErr) {
					t.Fatalf("SignUp() error = %v, want %v", err, test.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("SignUp() error = %v", err)
			}
			if result.Token == "" {
				t.Error("SignUp() returned no session token")
			}
			if result.User.PasswordHash == nil {
				t.Fatal("password hash not stored")
			}
			if *result.User.PasswordHash == test.input.Password {
				t.Error("password stored in cleartext")
			}
		})
	}
}

// Requirement: SignIn returns the same ErrInvalidCredentials whether the
// username is unknown, the password is wrong, or the account has no local
// credential.
func TestIdentityService_SignIn(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
		setup    func(*testing.T, *IdentityService)
		wantErr  error
	}{
		{
			name:     "valid credentials",
			username: "alice",
			password: "p@ss",
			setup: func(t *testing.T, service *IdentityService) {
				if _, err := service.SignUp(context.Background(), core.SignUpInput{Username: "alice", Password: "p@ss"}, testMeta); err != nil {
					t.Fatalf("seed SignUp() error = %v", err)
				}
			},
		},
		{
			name:     "unknown username",
			username: "nobody",
			password: "p@ss",
			wantErr:  core.ErrInvalidCredentials,
		},
		{
			name:     "wrong password",
			username: "alice",
			password: "wrong",
			setup: func(t *testing.T, service *IdentityService) {
				if _, err := service.SignUp(context.Background(), core.SignUpInput{Username: "alice", Password: "p@ss"}, testMeta); err != nil {
					t.Fatalf("seed SignUp() error = %v", err)
				}
			},
			wantErr: core.ErrInvalidCredentials,
		},
		{
			name:     "oauth-only account without credential",
			username: "remote",
			password: "p@ss",
			setup: func(t *testing.T, service *IdentityService) {
				err := service.storage.CreateUser(context.Background(), &core.User{ID: "r1", Username: "remote"})
				if err != nil {
					t.Fatalf("seed user: %v", err)
				}
			},
			wantErr: core.ErrInvalidCredentials,
		},
		{
			name:     "empty username",
			username: "",
			password: "p@ss",
			wantErr:  core.ErrUsernameRequired,
		},
		{
			name:     "empty password",
			username: "alice",
			password: "",
			wantErr:  core.ErrPasswordRequired,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			storage := NewFakeStorage()
			service := newTestIdentityService(storage, nil)
			if test.setup != nil {
				test.setup(t, service)
			}

			result, err := service.SignIn(context.Background(), core.SignInInput{Username: test.username, Password: test.password}, testMeta)
			if test.wantErr != nil {
				if !errors.Is(err, test.wantErr) {
					t.Fatalf("SignIn() error = %v, want %v", err, test.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("SignIn() error = %v", err)
			}
			if result.Token == "" {
				t.Error("SignIn() returned no session token")
			}
		})
	}
}

// Requirement: concurrent sign-ups with the same username yield exactly one
// user; the losers get ErrDuplicateIdentity.
func TestIdentityService_SignUp_ConcurrentDuplicates(t *testing.T) {
	storage := NewFakeStorage()
	service := newTestIdentityService(storage, nil)

	const workers = 8
	var wg sync.WaitGroup
	var successes, duplicates int64
	var mu sync.Mutex
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.SignUp(context.Background(), core.SignUpInput{Username: "alice", Password: "p@ss"}, testMeta)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, core.ErrDuplicateIdentity):
				duplicates++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("successes = %d, want exactly 1", successes)
	}
	if duplicates != workers-1 {
		t.Errorf("duplicates = %d, want %d", duplicates, workers-1)
	}
	if storage.UserCount() != 1 {
		t.Errorf("user count = %d, want 1", storage.UserCount())
	}
}

// Requirement: Profile returns the attribute bag plus id and username, never
// the credential.
func TestIdentityService_Profile(t *testing.T) {
	storage := NewFakeStorage()
	service := newTestIdentityService(storage, testSchema)

	result, err := service.SignUp(context.Background(), core.SignUpInput{
		Username:   "alice",
		Password:   "p@ss",
		Attributes: map[string]any{"age": float64(30), "email": "alice@example.com"},
	}, testMeta)
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}

	profile, err := service.Profile(context.Background(), result.User.ID)
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if profile["username"] != "alice" {
		t.Errorf("username = %v, want alice", profile["username"])
	}
	if profile["age"] != float64(30) {
		t.Errorf("age = %v, want 30", profile["age"])
	}
	for _, forbidden := range []string{"password", "passwordHash"} {
		if _, exists := profile[forbidden]; exists {
			t.Errorf("profile leaks %q", forbidden)
		}
	}

	if _, err := service.Profile(context.Background(), "missing"); !errors.Is(err, core.ErrUserNotFound) {
		t.Errorf("Profile(missing) error = %v, want ErrUserNotFound", err)
	}
}

// Requirement: UpdateAttributes merges a schema-valid patch and rejects
// anything outside the schema.
func TestIdentityService_UpdateAttributes(t *testing.T) {
	storage := NewFakeStorage()
	service := newTestIdentityService(storage, testSchema)

	result, err := service.SignUp(context.Background(), core.SignUpInput{
		Username:   "alice",
		Password:   "p@ss",
		Attributes: map[string]any{"age": float64(30)},
	}, testMeta)
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}

	profile, err := service.UpdateAttributes(context.Background(), result.User.ID, map[string]any{
		"age":   float64(31),
		"admin": true,
	})
	if err != nil {
		t.Fatalf("UpdateAttributes() error = %v", err)
	}
	if profile["age"] != float64(31) {
		t.Errorf("age = %v, want 31", profile["age"])
	}
	if profile["admin"] != true {
		t.Errorf("admin = %v, want true", profile["admin"])
	}

	if _, err := service.UpdateAttributes(context.Background(), result.User.ID, map[string]any{"rank": 1}); !errors.Is(err, core.ErrUnknownAttribute) {
		t.Errorf("unknown attribute error = %v, want ErrUnknownAttribute", err)
	}
}

// Requirement: CreateFromProvider creates a credential-less user and resolves
// username collisions by suffixing instead of failing.
func TestIdentityService_CreateFromProvider(t *testing.T) {
	storage := NewFakeStorage()
	service := newTestIdentityService(storage, nil)
	seedUser(t, storage, "taken", "alice")

	profile := &core.RemoteProfile{ProviderUserID: "gh-1", Username: "alice"}
	link := &core.ProviderLink{ID: "l1", Provider: "github", ProviderUserID: "gh-1"}

	user, err := service.CreateFromProvider(context.Background(), profile, link)
	if err != nil {
		t.Fatalf("CreateFromProvider() error = %v", err)
	}
	if user.PasswordHash != nil {
		t.Error("provider-created user must not carry a credential")
	}
	if user.Username == "alice" {
		t.Error("collision with existing username not resolved")
	}
	if got, err := storage.GetLink(context.Background(), "github", "gh-1"); err != nil || got.UserID != user.ID {
		t.Errorf("link not persisted with user: %v %v", got, err)
	}
}

// Requirement: provider-derived attributes are accepted regardless of the
// integrator's declared schema, which governs client-supplied input only.
func TestIdentityService_CreateFromProvider_UndeclaredAttributes(t *testing.T) {
	storage := NewFakeStorage()
	service := newTestIdentityService(storage, core.AttributeSchema{"age": core.KindNumber})

	profile := &core.RemoteProfile{
		ProviderUserID: "gh-3",
		Username:       "carol",
		Attributes:     map[string]any{"email": "carol@example.com", "avatar": "https://example.com/c.png"},
	}
	link := &core.ProviderLink{ID: "l3", Provider: "github", ProviderUserID: "gh-3"}

	user, err := service.CreateFromProvider(context.Background(), profile, link)
	if err != nil {
		t.Fatalf("CreateFromProvider() error = %v", err)
	}
	if user.Attributes["email"] != "carol@example.com" {
		t.Errorf("email attribute = %v", user.Attributes["email"])
	}
	if user.Attributes["avatar"] != "https://example.com/c.png" {
		t.Errorf("avatar attribute = %v", user.Attributes["avatar"])
	}
}

// Requirement: when the remote profile carries no username, collision
// suffixes build on the provider-id fallback actually attempted.
func TestIdentityService_CreateFromProvider_FallbackCollision(t *testing.T) {
	storage := NewFakeStorage()
	service := newTestIdentityService(storage, nil)
	seedUser(t, storage, "taken", "gh-2")

	profile := &core.RemoteProfile{ProviderUserID: "gh-2"}
	link := &core.ProviderLink{ID: "l2", Provider: "github", ProviderUserID: "gh-2"}

	user, err := service.CreateFromProvider(context.Background(), profile, link)
	if err != nil {
		t.Fatalf("CreateFromProvider() error = %v", err)
	}
	if !strings.HasPrefix(user.Username, "gh-2-") {
		t.Errorf("username = %q, want prefix %q", user.Username, "gh-2-")
	}
}
