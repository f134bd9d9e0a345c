package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kmantas/sesame/core"
)

func (a *Adapter) GetLink(ctx context.Context, provider, providerUserID string) (*core.ProviderLink, error) {
	payload, err := a.rdb.Get(ctx, linkKey(provider, providerUserID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, core.ErrLinkNotFound
		}
		return nil, err
	}

	link := &core.ProviderLink{}
	if err := json.Unmarshal(payload, link); err != nil {
		return nil, err
	}
	return link, nil
}

func (a *Adapter) CreateLink(ctx context.Context, link *core.ProviderLink) error {
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now()
	}
	payload, err := json.Marshal(link)
	if err != nil {
		return err
	}

	ok, err := a.rdb.SetNX(ctx, linkKey(link.Provider, link.ProviderUserID), payload, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return core.ErrLinkExists
	}
	return nil
}

// CreateUserWithLink claims the link first: SETNX on the link key decides
// the first-login race before any user record exists, so the loser creates
// nothing. A username clash afterwards releases the claim.
func (a *Adapter) CreateUserWithLink(ctx context.Context, user *core.User, link *core.ProviderLink) error {
	if err := a.CreateLink(ctx, link); err != nil {
		return err
	}

	if err := a.CreateUser(ctx, user); err != nil {
		_ = a.rdb.Del(ctx, linkKey(link.Provider, link.ProviderUserID)).Err()
		return err
	}
	return nil
}
