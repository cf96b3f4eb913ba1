// Package api implements the coordinator's HTTP status surface.
//
// New(store) returns an http.Handler that serves:
//
//	GET /api/v1/run             latest run progress (RunResponse)
//	GET /api/v1/runs            all retained runs, newest first
//	GET /api/v1/runs/{id}       single run; 404 if unknown or evicted
//	GET /api/v1/results         latest finished run's two views (JSON);
//	                            ?format=text returns the results file text
//	GET /metrics                Prometheus text exposition of the last run
//
// All endpoints return 405 for non-GET methods. JSON types live in types.go.
package api
