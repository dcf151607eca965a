// Package main hosts the study API entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes /api/hello, /api/organizations, health, readiness and metrics
//     endpoints behind request ID, client IP, logging, recovery, CORS and gzip middleware.
//   - Database: internal/database opens one pgx pool for the primary and one per replica host at startup.
//     Every request that touches the database owns exactly one session, a READ COMMITTED transaction that is
//     committed on success and rolled back on error or panic. Reads go to a randomly chosen replica.
//   - Configuration & plumbing: Viper populates config from env, an optional file and .env; zap provides
//     structured logging; Prometheus metrics cover requests and session lifecycle.
//
// Operational notes:
//   - ENV=local relaxes the X-Forwarded-For requirement, starts replica transactions read-only and switches
//     to development logging.
//   - The process reacts to SIGINT/SIGTERM by draining HTTP within server.shutdown_timeout_seconds and then
//     closing every pool.
//
// Quick checklist:
//   - Configure env vars: ENV, DB_HOST, DB_HOST_REPLICATIONS, DB_NAME, DB_USER, DB_PASSWORD, DB_POOL_SIZE.
//   - Run locally: go run ./cmd/studyapi --config config.yaml (or rely solely on env overrides).
package main
