package pgx

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kmantas/sesame/core"
)

func (a *Adapter) CreateUser(ctx context.Context, user *core.User) error {
	query := `INSERT INTO public.users (id, username, attributes, password_hash)
	          VALUES ($1, $2, $3, $4)
	          RETURNING created_at, updated_at`

	var createdAt, updatedAt time.Time
	err := a.pool.QueryRow(ctx, query,
		user.ID, user.Username, attributesParam(user.Attributes), user.PasswordHash,
	).Scan(&createdAt, &updatedAt)
	if err != nil {
		if constraintViolated(err, "users") {
			return core.ErrDuplicateIdentity
		}
		return err
	}

	user.CreatedAt = createdAt
	user.UpdatedAt = updatedAt
	return nil
}

const userColumns = `id, username, attributes, password_hash, created_at, updated_at`

func scanUser(row pgx.Row) (*core.User, error) {
	user := &core.User{}
	err := row.Scan(&user.ID, &user.Username, &user.Attributes, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, core.ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (a *Adapter) GetUserByID(ctx context.Context, id string) (*core.User, error) {
	q := `SELECT ` + userColumns + ` FROM public.users WHERE id = $1`
	return scanUser(a.pool.QueryRow(ctx, q, id))
}

func (a *Adapter) GetUserByUsername(ctx context.Context, username string) (*core.User, error) {
	q := `SELECT ` + userColumns + ` FROM public.users WHERE username = $1`
	return scanUser(a.pool.QueryRow(ctx, q, username))
}

func (a *Adapter) UpdateUserAttributes(ctx context.Context, id string, patch map[string]any) (*core.User, error) {
	q := `UPDATE public.users
	      SET attributes = attributes || $2, updated_at = now()
	      WHERE id = $1
	      RETURNING ` + userColumns
	return scanUser(a.pool.QueryRow(ctx, q, id, attributesParam(patch)))
}

// attributesParam keeps the jsonb column an object even when the bag is nil.
func attributesParam(attrs map[string]any) map[string]any {
	if attrs == nil {
		return map[string]any{}
	}
	return attrs
}
