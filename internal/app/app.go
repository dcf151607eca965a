// Package app initializes and holds the long-lived services of the API
// process, acting as its dependency injection container.
package app

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/study01/study-app-server/internal/api"
	"github.com/study01/study-app-server/internal/config"
	"github.com/study01/study-app-server/internal/database"
	"github.com/study01/study-app-server/internal/store"
)

// App holds the shared services built once at startup.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	pools    *database.Pools
	sessions *database.Provider
	orgs     *store.Organizations
}

// GetLogger returns the shared logger.
func (a *App) GetLogger() *zap.Logger {
	return a.logger
}

// GetSessions returns the session provider.
func (a *App) GetSessions() *database.Provider {
	return a.sessions
}

// GetConfig returns the configuration the app was built from.
func (a *App) GetConfig() config.Config {
	return a.cfg
}

// New opens one pool per configured host and wires the session provider.
// It fails fast when any pool cannot be opened.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, connector database.Connector) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if connector == nil {
		connector = database.PgxConnector{}
	}
	logger.Info("initializing application services",
		zap.String("env", cfg.Env),
		zap.String("db_host", cfg.DB.Host),
		zap.Strings("db_replicas", cfg.DB.ReplicaHosts),
	)

	primary, replicas := database.PoolConfigs(
		cfg.DB.Host,
		cfg.DB.ReplicaHosts,
		cfg.DB.DSN,
		cfg.DB.PoolSize,
		cfg.DB.MaxOverflow,
		cfg.DB.Recycle(),
		cfg.DB.PrePing,
	)
	pools, err := database.NewPools(ctx, connector, primary, replicas)
	if err != nil {
		return nil, fmt.Errorf("open database pools: %w", err)
	}
	if len(pools.Replicas) == 0 {
		logger.Warn("no replica hosts configured; replica sessions use the primary")
	}

	sessions, err := database.NewProvider(pools,
		database.WithLogger(logger),
		database.WithReadOnlyReplicas(cfg.IsLocal()),
	)
	if err != nil {
		pools.Close()
		return nil, fmt.Errorf("build session provider: %w", err)
	}

	return &App{
		cfg:      cfg,
		logger:   logger,
		pools:    pools,
		sessions: sessions,
		orgs:     store.NewOrganizations(),
	}, nil
}

// Handler builds the HTTP handler tree for the API.
func (a *App) Handler() http.Handler {
	return api.NewServer(a.sessions, a.orgs, a.cfg, a.logger).Handler()
}

// Close releases every pool and flushes the logger.
func (a *App) Close() {
	a.logger.Info("shutting down application services")
	a.pools.Close()
	_ = a.logger.Sync()
}
