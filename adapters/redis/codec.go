package redis

import (
	"time"

	"github.com/kmantas/sesame/core"
)

// Storage codecs. The core models hide credentials and token hashes from
// client-facing JSON; persistence needs exactly those fields, so the adapter
// serializes mirror types instead of the core structs.

type storedUser struct {
	ID           string         `json:"id"`
	Username     string         `json:"username"`
	Attributes   map[string]any `json:"attributes,omitempty"`
	PasswordHash *string        `json:"passwordHash,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

func toStoredUser(u *core.User) storedUser {
	return storedUser{
		ID:           u.ID,
		Username:     u.Username,
		Attributes:   u.Attributes,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func (s storedUser) toCore() *core.User {
	return &core.User{
		ID:           s.ID,
		Username:     s.Username,
		Attributes:   s.Attributes,
		PasswordHash: s.PasswordHash,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

type storedSession struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	TokenHash string    `json:"tokenHash"`
	IPAddress string    `json:"ipAddress"`
	UserAgent string    `json:"userAgent"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func toStoredSession(s *core.Session) storedSession {
	return storedSession{
		ID:        s.ID,
		UserID:    s.UserID,
		TokenHash: s.TokenHash,
		IPAddress: s.IPAddress,
		UserAgent: s.UserAgent,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
	}
}

func (s storedSession) toCore() *core.Session {
	return &core.Session{
		ID:        s.ID,
		UserID:    s.UserID,
		TokenHash: s.TokenHash,
		IPAddress: s.IPAddress,
		UserAgent: s.UserAgent,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
	}
}
