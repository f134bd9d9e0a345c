package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/kmantas/sesame/core"
	"github.com/kmantas/sesame/pkg/crypto"
)

// IdentityService owns the user lifecycle: sign-up, local-credential
// sign-in, profile projection, and schema-validated attribute updates.
type IdentityService struct {
	storage  core.Storage
	hasher   core.PasswordHandler
	sessions *SessionManager
	schema   core.AttributeSchema
}

func NewIdentityService(storage core.Storage, hasher core.PasswordHandler, sessions *SessionManager, schema core.AttributeSchema) *IdentityService {
	return &IdentityService{
		storage:  storage,
		hasher:   hasher,
		sessions: sessions,
		schema:   schema,
	}
}

// SignUp registers a new user with username and password
func (s *IdentityService) SignUp(ctx context.Context, input core.SignUpInput, meta core.RequestMeta) (*core.AuthResult, error) {
	if err := validateSignUp(input); err != nil {
		return nil, err
	}
	if err := s.schema.Validate(input.Attributes); err != nil {
		return nil, err
	}

	hashed, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &core.User{
		ID:           uuid.NewString(),
		Username:     input.Username,
		Attributes:   input.Attributes,
		PasswordHash: &hashed,
	}

	// The adapter's uniqueness constraint is the authority on duplicates;
	// a pre-read would only narrow the race, not close it.
	if err := s.storage.CreateUser(ctx, user); err != nil {
		if errors.Is(err, core.ErrDuplicateIdentity) {
			return nil, core.ErrDuplicateIdentity
		}
		return nil, storageFault(err)
	}

	sessionResult, err := s.sessions.Create(ctx, user.ID, meta)
	if err != nil {
		return nil, err
	}

	return &core.AuthResult{
		User:    user,
		Session: sessionResult.Session,
		Token:   sessionResult.Token,
	}, nil
}

// SignIn authenticates a user with username and password.
//
// A missing user, a credential-less (OAuth-only) account, and a wrong
// password all surface the same ErrInvalidCredentials so the response never
// reveals which usernames exist.
func (s *IdentityService) SignIn(ctx context.Context, input core.SignInInput, meta core.RequestMeta) (*core.AuthResult, error) {
	if input.Username == "" {
		return nil, core.ErrUsernameRequired
	}
	if input.Password == "" {
		return nil, core.ErrPasswordRequired
	}

	user, err := s.storage.GetUserByUsername(ctx, input.Username)
	if err != nil {
		if errors.Is(err, core.ErrUserNotFound) {
			return nil, core.ErrInvalidCredentials
		}
		return nil, storageFault(err)
	}

	if user.PasswordHash == nil {
		return nil, core.ErrInvalidCredentials
	}

	valid, err := s.hasher.Verify(input.Password, *user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !valid {
		return nil, core.ErrInvalidCredentials
	}

	sessionResult, err := s.sessions.Create(ctx, user.ID, meta)
	if err != nil {
		return nil, err
	}

	return &core.AuthResult{
		User:    user,
		Session: sessionResult.Session,
		Token:   sessionResult.Token,
	}, nil
}

// Profile returns the user's attribute bag with the credential stripped.
func (s *IdentityService) Profile(ctx context.Context, userID string) (map[string]any, error) {
	user, err := s.storage.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, core.ErrUserNotFound) {
			return nil, core.ErrUserNotFound
		}
		return nil, storageFault(err)
	}
	return projectProfile(user), nil
}

// UpdateAttributes validates patch against the declared schema and merges it
// into the user's attribute bag.
func (s *IdentityService) UpdateAttributes(ctx context.Context, userID string, patch map[string]any) (map[string]any, error) {
	if err := s.schema.Validate(patch); err != nil {
		return nil, err
	}

	user, err := s.storage.UpdateUserAttributes(ctx, userID, patch)
	if err != nil {
		if errors.Is(err, core.ErrUserNotFound) {
			return nil, core.ErrUserNotFound
		}
		return nil, storageFault(err)
	}
	return projectProfile(user), nil
}

// CreateFromProvider creates a local identity for a remote profile: no
// password, attributes derived from the provider. The declared schema is
// not applied here; it constrains integrator-supplied input, while the
// provider parser decides what a remote profile contributes. Username
// collisions with existing users are resolved by suffixing random
// characters, since the remote profile's preferred name is a suggestion,
// not an identity claim.
func (s *IdentityService) CreateFromProvider(ctx context.Context, profile *core.RemoteProfile, link *core.ProviderLink) (*core.User, error) {
	base := profile.Username
	if base == "" {
		base = profile.ProviderUserID
	}
	username := base

	for attempt := 0; ; attempt++ {
		user := &core.User{
			ID:         uuid.NewString(),
			Username:   username,
			Attributes: profile.Attributes,
		}
		link.UserID = user.ID

		err := s.storage.CreateUserWithLink(ctx, user, link)
		if err == nil {
			return user, nil
		}
		if errors.Is(err, core.ErrLinkExists) {
			return nil, core.ErrLinkExists
		}
		if errors.Is(err, core.ErrDuplicateIdentity) && attempt < 3 {
			suffix, serr := crypto.GenerateToken(3)
			if serr != nil {
				return nil, serr
			}
			username = base + "-" + suffix
			continue
		}
		if errors.Is(err, core.ErrDuplicateIdentity) {
			return nil, core.ErrDuplicateIdentity
		}
		return nil, storageFault(err)
	}
}

func validateSignUp(input core.SignUpInput) error {
	if input.Username == "" {
		return core.ErrUsernameRequired
	}
	if input.Password == "" {
		return core.ErrPasswordRequired
	}
	// Password strength policy belongs to the request-validation layer in
	// front of the core; the core only requires a non-empty secret.
	return nil
}

// projectProfile flattens the user into the client-facing attribute bag.
// The credential never appears here.
func projectProfile(user *core.User) map[string]any {
	out := make(map[string]any, len(user.Attributes)+2)
	for k, v := range user.Attributes {
		out[k] = v
	}
	out["id"] = user.ID
	out["username"] = user.Username
	return out
}
