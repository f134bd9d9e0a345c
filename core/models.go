package core

import "time"

// User is an identity record.
//
// Username is the unique identifying attribute; everything else the
// integrator declares lives in the Attributes bag. PasswordHash is nil for
// identities created through an OAuth provider.
type User struct {
	ID           string         `json:"id"`
	Username     string         `json:"username"`
	Attributes   map[string]any `json:"attributes,omitempty"`
	PasswordHash *string        `json:"-"` // Never expose in JSON
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// Session is the server-side record behind a client-held token.
//
// The raw token is handed to the client exactly once; storage only ever sees
// its SHA-256 hash. Fresh is derived at validation time and reports whether
// the session was young enough to skip rotation.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	TokenHash string    `json:"-"` // Never expose in JSON (security!)
	IPAddress string    `json:"ipAddress"`
	UserAgent string    `json:"userAgent"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Fresh     bool      `json:"fresh"`
}

// SessionData combines user and session info.
// The model returned to clients and guarded handlers.
type SessionData struct {
	User    *User    `json:"user"`
	Session *Session `json:"session"`
}

// LoginState binds an in-flight OAuth authorization request to the callback
// that completes it. Single use: consumed on first presentation or dropped
// at ExpiresAt.
type LoginState struct {
	State     string    `json:"state"`
	Provider  string    `json:"provider"`
	Verifier  string    `json:"verifier,omitempty"` // PKCE verifier, empty when PKCE is off
	ExpiresAt time.Time `json:"expiresAt"`
}

// ProviderLink maps a remote OAuth account to a local user.
// At most one link exists per (Provider, ProviderUserID) pair.
type ProviderLink struct {
	ID             string    `json:"id"`
	Provider       string    `json:"provider"`
	ProviderUserID string    `json:"providerUserId"`
	UserID         string    `json:"userId"`
	CreatedAt      time.Time `json:"createdAt"`
}

// RemoteProfile is the normalized shape a provider's user-info response is
// parsed into by the provider's parse strategy.
type RemoteProfile struct {
	ProviderUserID string
	Username       string
	Attributes     map[string]any
}
