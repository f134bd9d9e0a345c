package pgx

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/kmantas/sesame/core"
)

func (a *Adapter) CreateLoginState(ctx context.Context, state *core.LoginState) error {
	q := `INSERT INTO public.login_states (state, provider, verifier, expires_at)
	      VALUES ($1, $2, $3, $4)`

	_, err := a.pool.Exec(ctx, q, state.State, state.Provider, state.Verifier, state.ExpiresAt)
	return err
}

// ConsumeLoginState deletes and returns the state in a single statement, so
// of any number of concurrent callers exactly one gets the record.
func (a *Adapter) ConsumeLoginState(ctx context.Context, state string) (*core.LoginState, error) {
	q := `DELETE FROM public.login_states WHERE state = $1
	      RETURNING state, provider, verifier, expires_at`

	record := &core.LoginState{}
	err := a.pool.QueryRow(ctx, q, state).Scan(
		&record.State, &record.Provider, &record.Verifier, &record.ExpiresAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, core.ErrStateNotFound
		}
		return nil, err
	}
	return record, nil
}

func (a *Adapter) DeleteExpiredStates(ctx context.Context) (int, error) {
	tag, err := a.pool.Exec(ctx, `DELETE FROM public.login_states WHERE expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
