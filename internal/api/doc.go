// Package api hosts the HTTP server, middleware, and REST handlers of the
// clone service. Notable routes:
//   - POST /v1/clones to submit a clone job, GET /v1/clones[/{job_id}] to
//     follow it.
//   - GET /v1/sites and DELETE /v1/sites/{name} for published sites.
//   - GET /v1/sites/{name}/manifests when the manifest archive is enabled.
//   - GET /healthz / readyz for Kubernetes health checks and /metrics for Prometheus.
package api
