package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kmantas/sesame/core"
)

func (a *Adapter) CreateUser(ctx context.Context, user *core.User) error {
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	// The username index is the uniqueness authority.
	ok, err := a.rdb.SetNX(ctx, usernameKey(user.Username), user.ID, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return core.ErrDuplicateIdentity
	}

	payload, err := json.Marshal(toStoredUser(user))
	if err != nil {
		return err
	}
	if err := a.rdb.Set(ctx, userKey(user.ID), payload, 0).Err(); err != nil {
		// Roll the index back so the username is not burned.
		_ = a.rdb.Del(ctx, usernameKey(user.Username)).Err()
		return err
	}
	return nil
}

func (a *Adapter) getUser(ctx context.Context, key string) (*core.User, error) {
	payload, err := a.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, core.ErrUserNotFound
		}
		return nil, err
	}

	var stored storedUser
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, err
	}
	return stored.toCore(), nil
}

func (a *Adapter) GetUserByID(ctx context.Context, id string) (*core.User, error) {
	return a.getUser(ctx, userKey(id))
}

func (a *Adapter) GetUserByUsername(ctx context.Context, username string) (*core.User, error) {
	id, err := a.rdb.Get(ctx, usernameKey(username)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, core.ErrUserNotFound
		}
		return nil, err
	}
	return a.GetUserByID(ctx, id)
}

func (a *Adapter) UpdateUserAttributes(ctx context.Context, id string, patch map[string]any) (*core.User, error) {
	key := userKey(id)
	var updated *core.User

	apply := func(tx *redis.Tx) error {
		payload, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return core.ErrUserNotFound
			}
			return err
		}

		var stored storedUser
		if err := json.Unmarshal(payload, &stored); err != nil {
			return err
		}

		if stored.Attributes == nil {
			stored.Attributes = make(map[string]any, len(patch))
		}
		for k, v := range patch {
			stored.Attributes[k] = v
		}
		stored.UpdatedAt = time.Now()

		next, err := json.Marshal(stored)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			return nil
		})
		if err != nil {
			return err
		}
		updated = stored.toCore()
		return nil
	}

	for i := 0; i < watchRetries; i++ {
		err := a.rdb.Watch(ctx, apply, key)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, redis.TxFailedErr
}
