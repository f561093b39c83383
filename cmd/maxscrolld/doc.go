// Package main hosts the max scroll ingestion service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server accepts batches of browser events per client at
//     POST /v1/clients/{client_id}/events and exposes /healthz, /readyz and /metrics.
//   - Registry: internal/app.Registry keeps one simulated page, host tracker and max scroll
//     tracker per client id. Idle clients are swept on an interval and their trackers removed.
//   - Tracking: internal/maxscroll debounces scroll signals, computes the scroll percentage,
//     persists the per-page maximum in the configured store and sends a Max Scroll event when
//     the maximum grows by at least the configured threshold.
//   - Persistence & fanout: scroll and session state lives in memory, Redis or Postgres. Hits
//     are batched by internal/hit.Hub and fanned out to the log, Prometheus and Pub/Sub sinks.
//   - Configuration & plumbing: Viper populates config from env/files; zap provides structured
//     logging; Prometheus metrics are exported via the metrics middleware; OpenTelemetry tracing
//     is optional.
//
// Quick checklist:
//   - Configure env vars: MAXSCROLL_SERVER_PORT or PORT, MAXSCROLL_TRACKER_TRACKING_ID,
//     MAXSCROLL_TRACKER_INCREASE_THRESHOLD, MAXSCROLL_STORE_DRIVER (memory, redis, postgres)
//     and the matching MAXSCROLL_STORE_* connection settings.
//   - Run locally: go run ./cmd/maxscrolld -config config.yaml (or rely solely on env overrides).
//   - Cloud Run: the container listens on PORT and drains in-flight requests on SIGTERM.
package main
