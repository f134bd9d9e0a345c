package redis

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/kmantas/sesame/core"
)

func (a *Adapter) CreateLoginState(ctx context.Context, state *core.LoginState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return a.rdb.Set(ctx, stateKey(state.State), payload, ttlUntil(state.ExpiresAt)).Err()
}

// ConsumeLoginState relies on GETDEL: read and delete are one command, so a
// duplicate callback presenting the same state finds nothing.
func (a *Adapter) ConsumeLoginState(ctx context.Context, state string) (*core.LoginState, error) {
	payload, err := a.rdb.GetDel(ctx, stateKey(state)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, core.ErrStateNotFound
		}
		return nil, err
	}

	record := &core.LoginState{}
	if err := json.Unmarshal(payload, record); err != nil {
		return nil, err
	}
	return record, nil
}

// DeleteExpiredStates is a no-op: state keys expire via TTL.
func (a *Adapter) DeleteExpiredStates(ctx context.Context) (int, error) {
	return 0, nil
}
