// Package redis implements the sesame storage ports on Redis via go-redis.
//
// Sessions and login states carry key TTLs matching their expiry, so Redis
// itself acts as the eager sweep; the explicit expired-record deletes are
// no-ops here. Uniqueness (usernames, provider links) rides on SETNX, and
// single-use state consumption on GETDEL.
package redis

import (
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kmantas/sesame/core"
)

type Adapter struct {
	rdb *redis.Client
}

var _ core.Storage = (*Adapter)(nil)

func New(rdb *redis.Client) *Adapter {
	return &Adapter{rdb: rdb}
}

func userKey(id string) string { return "sesame:user:" + id }

func usernameKey(username string) string { return "sesame:username:" + username }

func sessionKey(tokenHash string) string { return "sesame:session:" + tokenHash }

func sessionIDKey(sessionID string) string { return "sesame:session_id:" + sessionID }

func userSessionsKey(userID string) string { return "sesame:user_sessions:" + userID }

func linkKey(provider, providerUserID string) string {
	return "sesame:link:" + provider + ":" + providerUserID
}

func stateKey(state string) string { return "sesame:state:" + state }

// watchRetries bounds optimistic-lock retries on WATCH conflicts.
const watchRetries = 5

func ttlUntil(expiresAt time.Time) time.Duration {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		// Already past due, keep the key briefly so readers observe the
		// expired record instead of a phantom miss mid-write.
		ttl = time.Second
	}
	return ttl
}
