// Package pgx implements the sesame storage ports on PostgreSQL via
// jackc/pgx. Uniqueness races (usernames, provider links) are decided by the
// database's constraints; single-use and conditional writes are single
// statements so each call stays linearizable on its key.
package pgx

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kmantas/sesame/core"
)

type Adapter struct {
	pool *pgxpool.Pool
}

var _ core.Storage = (*Adapter)(nil)

func New(pool *pgxpool.Pool) *Adapter {
	return &Adapter{
		pool: pool,
	}
}

const uniqueViolation = "23505"

func constraintViolated(err error, table string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false
	}
	return pgErr.TableName == table || strings.HasPrefix(pgErr.ConstraintName, table)
}
