package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/study01/study-app-server/internal/metrics"
)

// Session is a transaction bound to one pool for the lifetime of a request.
// It is not safe for concurrent use and must not outlive the request.
type Session struct {
	tx       pgx.Tx
	role     Role
	pool     string
	readOnly bool
	released bool
}

// Role reports the role the session was acquired for.
func (s *Session) Role() Role { return s.role }

// Pool reports the name of the pool backing the session.
func (s *Session) Pool() string { return s.pool }

// ReadOnly reports whether the transaction was started read-only.
func (s *Session) ReadOnly() bool { return s.readOnly }

// Exec runs a statement inside the session's transaction.
func (s *Session) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if s.released {
		return pgconn.CommandTag{}, ErrSessionClosed
	}
	return s.tx.Exec(ctx, sql, args...) //nolint:wrapcheck
}

// Query runs a query inside the session's transaction.
func (s *Session) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if s.released {
		return nil, ErrSessionClosed
	}
	return s.tx.Query(ctx, sql, args...) //nolint:wrapcheck
}

// QueryRow runs a single-row query inside the session's transaction.
func (s *Session) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if s.released {
		return errRow{err: ErrSessionClosed}
	}
	return s.tx.QueryRow(ctx, sql, args...)
}

// errRow is a pgx.Row whose Scan always fails with err.
type errRow struct {
	err error
}

func (r errRow) Scan(...any) error { return r.err }

// Provider routes sessions to the primary or a replica pool.
type Provider struct {
	pools            *Pools
	selector         ReplicaSelector
	readOnlyReplicas bool
	logger           *zap.Logger
}

// ProviderOption customizes a Provider.
type ProviderOption func(*Provider)

// WithSelector replaces the default random replica selection.
func WithSelector(s ReplicaSelector) ProviderOption {
	return func(p *Provider) {
		if s != nil {
			p.selector = s
		}
	}
}

// WithReadOnlyReplicas starts replica sessions as read-only transactions.
// The service enables it in the local environment so accidental writes
// against a replica fail loudly.
func WithReadOnlyReplicas(enabled bool) ProviderOption {
	return func(p *Provider) { p.readOnlyReplicas = enabled }
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) ProviderOption {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewProvider builds a Provider over already opened pools.
func NewProvider(pools *Pools, opts ...ProviderOption) (*Provider, error) {
	if pools == nil || pools.Primary.Pool == nil {
		return nil, errors.New("primary pool is required")
	}
	p := &Provider{
		pools:    pools,
		selector: RandomSelector{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Acquire begins a transaction on the pool for role. The caller owns the
// session and must hand it back through Release.
func (p *Provider) Acquire(ctx context.Context, role Role) (*Session, error) {
	target, readOnly, err := p.route(role)
	if err != nil {
		return nil, err
	}
	opts := pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite}
	if readOnly {
		opts.AccessMode = pgx.ReadOnly
	}
	tx, err := target.Pool.BeginTx(ctx, opts)
	if err != nil {
		metrics.ObserveSessionAcquireFailure(string(role))
		return nil, fmt.Errorf("%w: begin on %s (%s): %w", ErrConnection, target.Name, target.Host, err)
	}
	metrics.ObserveSessionAcquired(string(role))
	return &Session{tx: tx, role: role, pool: target.Name, readOnly: readOnly}, nil
}

// Release ends the session. A non-nil cause rolls the transaction back,
// otherwise it is committed. Either way the connection goes back to its pool
// and the session cannot be used again.
func (p *Provider) Release(ctx context.Context, s *Session, cause error) error {
	if s == nil {
		return nil
	}
	if s.released {
		return ErrSessionClosed
	}
	s.released = true
	ctx = context.WithoutCancel(ctx)
	role := string(s.role)

	if cause != nil {
		if err := s.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			metrics.ObserveSessionReleased(role, metrics.OutcomeRollbackFailed)
			p.logger.Warn("session rollback failed",
				zap.String("pool", s.pool),
				zap.NamedError("cause", cause),
				zap.Error(err),
			)
			return fmt.Errorf("rollback on %s: %w", s.pool, err)
		}
		metrics.ObserveSessionReleased(role, metrics.OutcomeRollback)
		return nil
	}

	if err := s.tx.Commit(ctx); err != nil {
		metrics.ObserveSessionReleased(role, metrics.OutcomeCommitFailed)
		return fmt.Errorf("commit on %s: %w", s.pool, err)
	}
	metrics.ObserveSessionReleased(role, metrics.OutcomeCommit)
	return nil
}

// WithSession acquires a session for role, passes it to fn and releases it
// on every exit path, including panics, which are re-raised after rollback.
// An error from fn takes precedence over a release error.
func (p *Provider) WithSession(ctx context.Context, role Role, fn func(context.Context, *Session) error) (err error) {
	s, err := p.Acquire(ctx, role)
	if err != nil {
		return err
	}
	defer func() {
		if rec := recover(); rec != nil {
			_ = p.Release(ctx, s, fmt.Errorf("panic: %v", rec))
			panic(rec)
		}
		if relErr := p.Release(ctx, s, err); relErr != nil && err == nil {
			err = relErr
		}
	}()
	return fn(ctx, s)
}

// Ping checks every pool.
func (p *Provider) Ping(ctx context.Context) error {
	return p.pools.Ping(ctx)
}

func (p *Provider) route(role Role) (NamedPool, bool, error) {
	switch role {
	case RolePrimary:
		return p.pools.Primary, false, nil
	case RoleReplica:
		n := len(p.pools.Replicas)
		if n == 0 {
			return p.pools.Primary, p.readOnlyReplicas, nil
		}
		idx := p.selector.Select(n)
		if idx < 0 || idx >= n {
			return NamedPool{}, false, fmt.Errorf("replica selector returned %d for %d replicas", idx, n)
		}
		return p.pools.Replicas[idx], p.readOnlyReplicas, nil
	default:
		return NamedPool{}, false, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
}
