// Package api hosts the dashboard HTTP server, middleware and JSON handlers.
// Notable routes:
//   - GET / for the dashboard page.
//   - GET /api/... for the map, case, stats, district and table views.
//   - GET /api/export.xlsx for the filtered tables as a workbook.
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
package api
