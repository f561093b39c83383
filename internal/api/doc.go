// Package api hosts the HTTP server, middleware, and REST handlers for the
// browser agent. Notable routes:
//   - GET /healthz / readyz for Kubernetes liveness and readiness checks.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/clients/{client_id}/events to apply a batch of browser events.
//   - DELETE /v1/clients/{client_id} to tear a client down.
//
// Event requests are rate limited per client id when configured.
package api
