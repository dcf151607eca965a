// Package database manages the connection pools for the primary and replica
// databases and hands out request-scoped sessions routed by role.
//
// A Session is a single READ COMMITTED transaction on one pool. Callers
// should prefer Provider.WithSession, which guarantees the session is rolled
// back on error and released exactly once on every exit path.
package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Role selects which pool a session is taken from.
type Role string

// Session roles.
const (
	RolePrimary Role = "primary"
	RoleReplica Role = "replica"
)

var (
	// ErrConnection wraps pool exhaustion and connection failures. It is not
	// retried by the provider.
	ErrConnection = errors.New("database connection failed")
	// ErrSessionClosed is returned when a session is released twice.
	ErrSessionClosed = errors.New("session already released")
	// ErrUnknownRole is returned for roles other than primary and replica.
	ErrUnknownRole = errors.New("unknown session role")
)

// Pool is the subset of *pgxpool.Pool used by the provider.
type Pool interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// Querier runs statements. Both *Session and pgx transactions satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
