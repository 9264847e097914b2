// Package api hosts the HTTP server, middleware, and REST handlers for the
// article tools. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/tools lists tool definitions with their argument schemas.
//   - POST /v1/tools/{name} runs a tool; the body is its argument object and
//     the response is the tool's JSON payload.
package api
