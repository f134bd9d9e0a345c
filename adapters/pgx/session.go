package pgx

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kmantas/sesame/core"
)

func (a *Adapter) CreateSession(ctx context.Context, session *core.Session) error {
	q := `INSERT INTO public.sessions (id, user_id, token_hash, ip_address, user_agent, created_at, expires_at)
	      VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := a.pool.Exec(ctx, q,
		session.ID, session.UserID, session.TokenHash,
		session.IPAddress, session.UserAgent,
		session.CreatedAt, session.ExpiresAt,
	)
	return err
}

func (a *Adapter) GetSessionWithUser(ctx context.Context, tokenHash string) (*core.Session, *core.User, error) {
	q := `SELECT s.id, s.user_id, s.token_hash, s.ip_address, s.user_agent, s.created_at, s.expires_at,
	             u.id, u.username, u.attributes, u.password_hash, u.created_at, u.updated_at
	      FROM public.sessions s
	      JOIN public.users u ON u.id = s.user_id
	      WHERE s.token_hash = $1`

	session := &core.Session{}
	user := &core.User{}
	err := a.pool.QueryRow(ctx, q, tokenHash).Scan(
		&session.ID, &session.UserID, &session.TokenHash,
		&session.IPAddress, &session.UserAgent,
		&session.CreatedAt, &session.ExpiresAt,
		&user.ID, &user.Username, &user.Attributes, &user.PasswordHash,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil, core.ErrSessionNotFound
		}
		return nil, nil, err
	}
	return session, user, nil
}

// ExtendSession only moves the expiry forward. Zero rows affected means a
// concurrent rotation already wrote a later expiry, which is the outcome we
// wanted anyway.
func (a *Adapter) ExtendSession(ctx context.Context, sessionID string, expiresAt time.Time) error {
	q := `UPDATE public.sessions SET expires_at = $2 WHERE id = $1 AND expires_at < $2`
	_, err := a.pool.Exec(ctx, q, sessionID, expiresAt)
	return err
}

func (a *Adapter) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := a.pool.Exec(ctx, `DELETE FROM public.sessions WHERE id = $1`, sessionID)
	return err
}

func (a *Adapter) DeleteSessionByHash(ctx context.Context, tokenHash string) error {
	_, err := a.pool.Exec(ctx, `DELETE FROM public.sessions WHERE token_hash = $1`, tokenHash)
	return err
}

func (a *Adapter) DeleteUserSessions(ctx context.Context, userID string) (int, error) {
	tag, err := a.pool.Exec(ctx, `DELETE FROM public.sessions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (a *Adapter) DeleteExpiredSessions(ctx context.Context) (int, error) {
	tag, err := a.pool.Exec(ctx, `DELETE FROM public.sessions WHERE expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
