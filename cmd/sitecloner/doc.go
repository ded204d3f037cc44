// Package main hosts the site cloner service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server accepts clone requests, validates the target URL, site name and rewrite
//     parameters without touching the network, records a queued job in the registry and hands it to the dispatcher.
//   - Dispatcher & queue: jobs flow through a bounded in-memory queue sized by cloner.queue_depth and are fanned out
//     to a fixed worker pool sized by cloner.workers. A full queue is reported to the client as 503.
//   - Resource pipeline: workers fetch the root document through the Colly fetcher (optionally promoted to a
//     chromedp render), rewrite it, then fetch stylesheets, scripts, fonts and images in waves with bounded
//     parallelism, per-host rate limits and exponential retry. Failed assets are recorded, never fatal.
//   - Publishing: the publisher writes every resource under <folder>/<name>/ in the configured content store
//     (GitHub, GCS, S3, local disk or memory), points the document at public CDN URLs, prunes leftovers of an
//     earlier publish and uploads manifest.json last.
//   - Persistence & fanout: the job registry lives in memory or Redis and evicts finished jobs after the retention
//     window. Completed manifests are archived to Postgres when enabled, and a compact Pub/Sub notification is
//     published per finished job when a topic is configured.
//   - Configuration & plumbing: Viper populates config from env/files; zap provides structured logging; Prometheus
//     metrics are exported via the metrics middleware and /metrics handler.
//
// Quick checklist:
//   - Configure env vars: SITECLONER_SERVER_PORT or PORT, SITECLONER_PUBLISH_BACKEND and the matching
//     SITECLONER_PUBLISH_* settings, SITECLONER_REGISTRY_BACKEND, SITECLONER_ARCHIVE_DSN, pubsub project and topic.
//   - Run locally: go run ./cmd/sitecloner -config config.yaml (or rely solely on env overrides).
//   - The process reacts to SIGTERM by stopping the HTTP server, closing the queue and cancelling in-flight jobs.
package main
