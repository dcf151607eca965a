// Package api hosts the HTTP server, middleware stack and handlers of the
// study API. Routes:
//   - GET /api/hello returns a static greeting.
//   - GET /api/organizations lists organization names from a replica.
//   - GET /healthz and /readyz for load balancer probes; readyz pings every pool.
//   - GET /metrics for Prometheus scraping.
package api
