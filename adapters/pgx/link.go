package pgx

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kmantas/sesame/core"
)

func (a *Adapter) GetLink(ctx context.Context, provider, providerUserID string) (*core.ProviderLink, error) {
	q := `SELECT id, provider, provider_user_id, user_id, created_at
	      FROM public.provider_links
	      WHERE provider = $1 AND provider_user_id = $2`

	link := &core.ProviderLink{}
	err := a.pool.QueryRow(ctx, q, provider, providerUserID).Scan(
		&link.ID, &link.Provider, &link.ProviderUserID, &link.UserID, &link.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, core.ErrLinkNotFound
		}
		return nil, err
	}
	return link, nil
}

func (a *Adapter) CreateLink(ctx context.Context, link *core.ProviderLink) error {
	q := `INSERT INTO public.provider_links (id, provider, provider_user_id, user_id)
	      VALUES ($1, $2, $3, $4)
	      RETURNING created_at`

	var createdAt time.Time
	err := a.pool.QueryRow(ctx, q,
		link.ID, link.Provider, link.ProviderUserID, link.UserID,
	).Scan(&createdAt)
	if err != nil {
		if constraintViolated(err, "provider_links") {
			return core.ErrLinkExists
		}
		return err
	}
	link.CreatedAt = createdAt
	return nil
}

// CreateUserWithLink inserts user and link in one transaction. When the
// link's uniqueness constraint fires, the whole transaction rolls back and
// the caller falls back to the link that won.
func (a *Adapter) CreateUserWithLink(ctx context.Context, user *core.User, link *core.ProviderLink) error {
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var createdAt, updatedAt time.Time
	err = tx.QueryRow(ctx,
		`INSERT INTO public.users (id, username, attributes, password_hash)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at, updated_at`,
		user.ID, user.Username, attributesParam(user.Attributes), user.PasswordHash,
	).Scan(&createdAt, &updatedAt)
	if err != nil {
		if constraintViolated(err, "users") {
			return core.ErrDuplicateIdentity
		}
		return err
	}

	var linkCreatedAt time.Time
	err = tx.QueryRow(ctx,
		`INSERT INTO public.provider_links (id, provider, provider_user_id, user_id)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		link.ID, link.Provider, link.ProviderUserID, link.UserID,
	).Scan(&linkCreatedAt)
	if err != nil {
		if constraintViolated(err, "provider_links") {
			return core.ErrLinkExists
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	user.CreatedAt = createdAt
	user.UpdatedAt = updatedAt
	link.CreatedAt = linkCreatedAt
	return nil
}
