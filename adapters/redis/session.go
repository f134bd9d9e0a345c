package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kmantas/sesame/core"
)

func (a *Adapter) CreateSession(ctx context.Context, session *core.Session) error {
	payload, err := json.Marshal(toStoredSession(session))
	if err != nil {
		return err
	}

	ttl := ttlUntil(session.ExpiresAt)
	_, err = a.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(session.TokenHash), payload, ttl)
		pipe.Set(ctx, sessionIDKey(session.ID), session.TokenHash, ttl)
		pipe.SAdd(ctx, userSessionsKey(session.UserID), session.TokenHash)
		return nil
	})
	return err
}

func (a *Adapter) getSession(ctx context.Context, tokenHash string) (*core.Session, error) {
	payload, err := a.rdb.Get(ctx, sessionKey(tokenHash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, core.ErrSessionNotFound
		}
		return nil, err
	}

	var stored storedSession
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, err
	}
	return stored.toCore(), nil
}

func (a *Adapter) GetSessionWithUser(ctx context.Context, tokenHash string) (*core.Session, *core.User, error) {
	session, err := a.getSession(ctx, tokenHash)
	if err != nil {
		return nil, nil, err
	}

	user, err := a.GetUserByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, core.ErrUserNotFound) {
			// Session without an owner is garbage; report it absent.
			return nil, nil, core.ErrSessionNotFound
		}
		return nil, nil, err
	}
	return session, user, nil
}

// ExtendSession only moves the expiry forward. The WATCH keeps a concurrent
// rotation from being clobbered by a slower writer with an older deadline.
func (a *Adapter) ExtendSession(ctx context.Context, sessionID string, expiresAt time.Time) error {
	tokenHash, err := a.rdb.Get(ctx, sessionIDKey(sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return core.ErrSessionNotFound
		}
		return err
	}

	key := sessionKey(tokenHash)
	apply := func(tx *redis.Tx) error {
		payload, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return core.ErrSessionNotFound
			}
			return err
		}

		var stored storedSession
		if err := json.Unmarshal(payload, &stored); err != nil {
			return err
		}
		if !stored.ExpiresAt.Before(expiresAt) {
			// A later expiry is already in place.
			return nil
		}

		stored.ExpiresAt = expiresAt
		next, err := json.Marshal(stored)
		if err != nil {
			return err
		}

		ttl := ttlUntil(expiresAt)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, ttl)
			pipe.Expire(ctx, sessionIDKey(sessionID), ttl)
			return nil
		})
		return err
	}

	for i := 0; i < watchRetries; i++ {
		err := a.rdb.Watch(ctx, apply, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return redis.TxFailedErr
}

func (a *Adapter) deleteSessionRecord(ctx context.Context, session *core.Session) error {
	_, err := a.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKey(session.TokenHash))
		pipe.Del(ctx, sessionIDKey(session.ID))
		pipe.SRem(ctx, userSessionsKey(session.UserID), session.TokenHash)
		return nil
	})
	return err
}

func (a *Adapter) DeleteSession(ctx context.Context, sessionID string) error {
	tokenHash, err := a.rdb.Get(ctx, sessionIDKey(sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return core.ErrSessionNotFound
		}
		return err
	}
	return a.DeleteSessionByHash(ctx, tokenHash)
}

func (a *Adapter) DeleteSessionByHash(ctx context.Context, tokenHash string) error {
	session, err := a.getSession(ctx, tokenHash)
	if err != nil {
		return err
	}
	return a.deleteSessionRecord(ctx, session)
}

func (a *Adapter) DeleteUserSessions(ctx context.Context, userID string) (int, error) {
	hashes, err := a.rdb.SMembers(ctx, userSessionsKey(userID)).Result()
	if err != nil {
		return 0, err
	}

	count := 0
	for _, tokenHash := range hashes {
		session, err := a.getSession(ctx, tokenHash)
		if err != nil {
			if errors.Is(err, core.ErrSessionNotFound) {
				// Key TTL already reaped it; just drop the set member.
				_ = a.rdb.SRem(ctx, userSessionsKey(userID), tokenHash).Err()
				continue
			}
			return count, err
		}
		if err := a.deleteSessionRecord(ctx, session); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// DeleteExpiredSessions is a no-op: session keys expire via TTL.
func (a *Adapter) DeleteExpiredSessions(ctx context.Context) (int, error) {
	return 0, nil
}
