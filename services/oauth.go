package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/kmantas/sesame/core"
	"github.com/kmantas/sesame/pkg/crypto"
)

const stateTokenLength = 32 // 256 bits, same budget as session tokens

// OAuthService runs the per-provider authorization-code flow: issuing
// CSRF-bound authorization URLs, validating callbacks against single-use
// state tokens, and folding remote identities into local users and sessions.
type OAuthService struct {
	config    core.OAuthConfig
	providers map[string]core.ProviderConfig
	storage   core.Storage
	identity  *IdentityService
	sessions  *SessionManager
	logger    *slog.Logger

	// httpClient serves user-info fetches and, via oauth2.HTTPClient, the
	// code exchange. Tests point it at a local server.
	httpClient *http.Client
	now        func() time.Time
}

func NewOAuthService(config core.OAuthConfig, providers []core.ProviderConfig, storage core.Storage, identity *IdentityService, sessions *SessionManager, logger *slog.Logger) *OAuthService {
	if config.StateLifetime == 0 {
		config.StateLifetime = core.DefaultOAuthConfig().StateLifetime
	}
	if config.ExchangeTimeout == 0 {
		config.ExchangeTimeout = core.DefaultOAuthConfig().ExchangeTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	byName := make(map[string]core.ProviderConfig, len(providers))
	for _, p := range providers {
		byName[p.Name] = p
	}

	return &OAuthService{
		config:     config,
		providers:  byName,
		storage:    storage,
		identity:   identity,
		sessions:   sessions,
		logger:     logger,
		httpClient: http.DefaultClient,
		now:        time.Now,
	}
}

func (o *OAuthService) provider(name string) (core.ProviderConfig, error) {
	p, ok := o.providers[name]
	if !ok {
		return core.ProviderConfig{}, core.ErrUnknownProvider
	}
	return p, nil
}

func (o *OAuthService) oauth2Config(p core.ProviderConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		RedirectURL:  p.RedirectURL,
		Scopes:       p.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.AuthURL,
			TokenURL: p.TokenURL,
		},
	}
}

// AuthorizationURL issues the provider's authorization URL bound to a fresh
// single-use state token. Abandoned states expire on their own after the
// configured lifetime; nothing needs explicit cleanup.
func (o *OAuthService) AuthorizationURL(ctx context.Context, providerName string) (string, error) {
	p, err := o.provider(providerName)
	if err != nil {
		return "", err
	}

	state, err := crypto.GenerateToken(stateTokenLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate state token: %w", err)
	}

	var opts []oauth2.AuthCodeOption
	verifier := ""
	if p.UsePKCE {
		verifier = oauth2.GenerateVerifier()
		opts = append(opts, oauth2.S256ChallengeOption(verifier))
	}

	record := &core.LoginState{
		State:     state,
		Provider:  p.Name,
		Verifier:  verifier,
		ExpiresAt: o.now().Add(o.config.StateLifetime),
	}
	if err := o.storage.CreateLoginState(ctx, record); err != nil {
		return "", storageFault(err)
	}

	return o.oauth2Config(p).AuthCodeURL(state, opts...), nil
}

// ValidateCallback consumes the state token and exchanges the authorization
// code for the provider's access token.
//
// Consumption is atomic check-and-delete at the adapter: a second callback
// carrying the same state, however concurrent, sees ErrStateInvalid.
func (o *OAuthService) ValidateCallback(ctx context.Context, providerName, code, returnedState string) (*oauth2.Token, error) {
	p, err := o.provider(providerName)
	if err != nil {
		return nil, err
	}
	if code == "" || returnedState == "" {
		return nil, core.ErrStateInvalid
	}

	record, err := o.storage.ConsumeLoginState(ctx, returnedState)
	if err != nil {
		if errors.Is(err, core.ErrStateNotFound) {
			return nil, core.ErrStateInvalid
		}
		return nil, storageFault(err)
	}
	if record.Provider != p.Name {
		return nil, core.ErrStateInvalid
	}
	if !o.now().Before(record.ExpiresAt) {
		return nil, core.ErrStateExpired
	}

	var opts []oauth2.AuthCodeOption
	if record.Verifier != "" {
		opts = append(opts, oauth2.VerifierOption(record.Verifier))
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, o.config.ExchangeTimeout)
	defer cancel()
	exchangeCtx = context.WithValue(exchangeCtx, oauth2.HTTPClient, o.httpClient)

	token, err := o.oauth2Config(p).Exchange(exchangeCtx, code, opts...)
	if err != nil {
		o.logger.Warn("oauth code exchange failed", "provider", p.Name, "err", err)
		return nil, fmt.Errorf("%w: %v", core.ErrProviderExchange, err)
	}
	return token, nil
}

// CompleteLogin resolves the provider's access token to a local user and
// issues a session. A known (provider, providerUserID) pair logs into its
// linked user; an unknown pair creates user and link atomically, with the
// loser of a concurrent duplicate callback falling back to the winner's
// user.
func (o *OAuthService) CompleteLogin(ctx context.Context, providerName string, token *oauth2.Token, meta core.RequestMeta) (*core.AuthResult, error) {
	p, err := o.provider(providerName)
	if err != nil {
		return nil, err
	}

	profile, err := o.fetchProfile(ctx, p, token)
	if err != nil {
		return nil, err
	}

	user, err := o.resolveUser(ctx, p, profile)
	if err != nil {
		return nil, err
	}

	sessionResult, err := o.sessions.Create(ctx, user.ID, meta)
	if err != nil {
		return nil, err
	}

	return &core.AuthResult{
		User:    user,
		Session: sessionResult.Session,
		Token:   sessionResult.Token,
	}, nil
}

// Login is the full callback path: state validation, code exchange, then
// link-or-create and session issuance.
func (o *OAuthService) Login(ctx context.Context, providerName, code, state string, meta core.RequestMeta) (*core.AuthResult, error) {
	token, err := o.ValidateCallback(ctx, providerName, code, state)
	if err != nil {
		return nil, err
	}
	return o.CompleteLogin(ctx, providerName, token, meta)
}

func (o *OAuthService) resolveUser(ctx context.Context, p core.ProviderConfig, profile *core.RemoteProfile) (*core.User, error) {
	link, err := o.storage.GetLink(ctx, p.Name, profile.ProviderUserID)
	if err == nil {
		return o.linkedUser(ctx, link)
	}
	if !errors.Is(err, core.ErrLinkNotFound) {
		return nil, storageFault(err)
	}

	newLink := &core.ProviderLink{
		ID:             uuid.NewString(),
		Provider:       p.Name,
		ProviderUserID: profile.ProviderUserID,
	}
	user, err := o.identity.CreateFromProvider(ctx, profile, newLink)
	if err == nil {
		o.logger.Info("created user from provider login",
			"provider", p.Name, "userId", user.ID)
		return user, nil
	}
	if !errors.Is(err, core.ErrLinkExists) {
		return nil, err
	}

	// Lost the first-login race: the link exists now, follow it.
	link, err = o.storage.GetLink(ctx, p.Name, profile.ProviderUserID)
	if err != nil {
		return nil, storageFault(err)
	}
	return o.linkedUser(ctx, link)
}

func (o *OAuthService) linkedUser(ctx context.Context, link *core.ProviderLink) (*core.User, error) {
	user, err := o.storage.GetUserByID(ctx, link.UserID)
	if err != nil {
		return nil, storageFault(err)
	}
	return user, nil
}

func (o *OAuthService) fetchProfile(ctx context.Context, p core.ProviderConfig, token *oauth2.Token) (*core.RemoteProfile, error) {
	reqCtx, cancel := context.WithTimeout(ctx, o.config.ExchangeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, p.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrProviderExchange, err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		o.logger.Warn("user info fetch failed", "provider", p.Name, "err", err)
		return nil, fmt.Errorf("%w: %v", core.ErrProviderExchange, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: user info endpoint returned %d", core.ErrProviderExchange, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrProviderExchange, err)
	}

	profile, err := p.ParseProfile(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrProviderExchange, err)
	}
	if profile.ProviderUserID == "" {
		return nil, fmt.Errorf("%w: profile missing provider user id", core.ErrProviderExchange)
	}
	return profile, nil
}
