package core

import "errors"

// Authentication errors
var (
	ErrDuplicateIdentity  = errors.New("username already taken")       // 409 Conflict
	ErrInvalidCredentials = errors.New("invalid username or password") // 401 Unauthorized
	ErrUserNotFound       = errors.New("user not found")               // 404 Not Found
)

// Session errors
var (
	ErrMissingAuthHeader = errors.New("missing authorization header") // 401
	ErrSessionInvalid    = errors.New("invalid session token")        // 401
	ErrSessionExpired    = errors.New("session expired")              // 401
	ErrSessionNotFound   = errors.New("session not found")            // adapter-level
	ErrCacheNotFound     = errors.New("session not found in cache")
)

// OAuth errors
var (
	ErrStateInvalid     = errors.New("unknown or already used login state") // 400, restart flow
	ErrStateExpired     = errors.New("login state expired")                 // 400, restart flow
	ErrStateNotFound    = errors.New("login state not found")               // adapter-level
	ErrProviderExchange = errors.New("provider exchange failed")            // 502
	ErrUnknownProvider  = errors.New("unknown oauth provider")              // 404
	ErrLinkExists       = errors.New("provider account already linked")     // adapter-level
	ErrLinkNotFound     = errors.New("provider link not found")             // adapter-level
)

// Storage errors. The core surfaces adapter faults wrapped in
// ErrStorageUnavailable and never retries; retry policy belongs to the
// adapter or the transport underneath it.
var (
	ErrStorageUnavailable = errors.New("storage unavailable") // 503
)

// Validation errors (client input)
var (
	ErrUsernameRequired = errors.New("username is required")             // 400
	ErrPasswordRequired = errors.New("password is required")             // 400
	ErrUnknownAttribute = errors.New("attribute not declared in schema") // 400
	ErrAttributeType    = errors.New("attribute has wrong type")         // 400
)

// Config errors (server-side configuration)
var (
	ErrStorageRequired     = errors.New("storage adapter is required")      // 500
	ErrHTTPAdapterRequired = errors.New("http adapter is required")         // 500
	ErrProviderIncomplete  = errors.New("oauth provider config incomplete") // 500
)
