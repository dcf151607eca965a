package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolConfig controls one connection pool.
type PoolConfig struct {
	// Name identifies the pool in logs and errors, e.g. "primary" or "replica[1]".
	Name            string
	Host            string
	DSN             string
	MaxConns        int32
	MaxConnLifetime time.Duration
	// PrePing validates a connection before it is handed out.
	PrePing bool
}

// Connector opens pools. It exists so tests can substitute mock pools.
type Connector interface {
	Connect(ctx context.Context, cfg PoolConfig) (Pool, error)
}

// PgxConnector opens pgxpool pools.
type PgxConnector struct{}

// Connect parses the DSN and creates a pgxpool.Pool. Connections are opened
// lazily on first use.
func (PgxConnector) Connect(ctx context.Context, cfg PoolConfig) (Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn for %s: %w", cfg.Name, err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.PrePing {
		poolCfg.BeforeAcquire = func(ctx context.Context, conn *pgx.Conn) bool {
			return conn.Ping(ctx) == nil
		}
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrConnection, cfg.Name, err)
	}
	return pool, nil
}

// NamedPool pairs a pool with the name and host it was opened for.
type NamedPool struct {
	Name string
	Host string
	Pool Pool
}

// Pools holds the process-wide primary and replica pools.
type Pools struct {
	Primary  NamedPool
	Replicas []NamedPool
}

// NewPools opens the primary pool and one pool per replica. If any pool
// fails to open, the ones already opened are closed.
func NewPools(ctx context.Context, connector Connector, primary PoolConfig, replicas []PoolConfig) (*Pools, error) {
	if connector == nil {
		return nil, errors.New("connector is required")
	}
	pools := &Pools{}
	pool, err := connector.Connect(ctx, primary)
	if err != nil {
		return nil, err
	}
	pools.Primary = NamedPool{Name: primary.Name, Host: primary.Host, Pool: pool}

	for _, rc := range replicas {
		pool, err := connector.Connect(ctx, rc)
		if err != nil {
			pools.Close()
			return nil, err
		}
		pools.Replicas = append(pools.Replicas, NamedPool{Name: rc.Name, Host: rc.Host, Pool: pool})
	}
	return pools, nil
}

// Ping checks every pool and joins the failures.
func (p *Pools) Ping(ctx context.Context) error {
	var errs []error
	for _, np := range p.all() {
		if err := np.Pool.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%w: ping %s (%s): %w", ErrConnection, np.Name, np.Host, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every pool.
func (p *Pools) Close() {
	if p == nil {
		return
	}
	for _, np := range p.all() {
		np.Pool.Close()
	}
}

func (p *Pools) all() []NamedPool {
	out := make([]NamedPool, 0, len(p.Replicas)+1)
	if p.Primary.Pool != nil {
		out = append(out, p.Primary)
	}
	for _, r := range p.Replicas {
		if r.Pool != nil {
			out = append(out, r)
		}
	}
	return out
}

// PoolConfigs derives per-host pool configs from shared settings. Pool size
// plus overflow becomes the pool's connection ceiling.
func PoolConfigs(
	primaryHost string,
	replicaHosts []string,
	dsn func(host string) string,
	poolSize, overflow int,
	lifetime time.Duration,
	prePing bool,
) (PoolConfig, []PoolConfig) {
	maxConns := int32(poolSize + overflow) //nolint:gosec // bounded by config validation
	mk := func(name, host string) PoolConfig {
		return PoolConfig{
			Name:            name,
			Host:            host,
			DSN:             dsn(host),
			MaxConns:        maxConns,
			MaxConnLifetime: lifetime,
			PrePing:         prePing,
		}
	}
	replicas := make([]PoolConfig, 0, len(replicaHosts))
	for i, host := range replicaHosts {
		replicas = append(replicas, mk(fmt.Sprintf("replica[%d]", i), host))
	}
	return mk(string(RolePrimary), primaryHost), replicas
}
