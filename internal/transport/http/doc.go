// Package http implements the HTTP handlers of the annadata server. Handlers
// stay thin: they parse the request, call a service and render the result.
//
// # Routes
//
//	GET  /api/health                  liveness summary
//	GET  /api/health/ready            registry, artifacts, pipeline and websocket checks
//	GET  /api/health/live             runtime information
//	GET  /api/version                 build information
//	GET  /api/models                  registry listing, ?dataset=&status=
//	GET  /api/models/summary          counts by dataset and model type
//	GET  /api/models/best             ?dataset=&metric=
//	GET  /api/models/{name}           one registry entry
//	POST /api/models/{name}/deprecate marks an entry deprecated
//	POST /api/predict/{dataset}       point estimates for raw records
//	POST /api/runs                    starts a pipeline run (202, or 409 when busy)
//	GET  /api/runs/last               manifest of the latest run
//	GET  /metrics                     Prometheus exposition
//
// # Error Handling
//
// Every failure is rendered as RFC 7807 Problem Details by
// errors.ErrorHandler, which maps typed application errors to status codes:
//
//	{
//	    "type": "/errors/model/artifact-missing",
//	    "title": "Not Found",
//	    "status": 404,
//	    "detail": "ARTIFACT_MISSING: scaler (...)",
//	    "instance": "/api/predict/weather",
//	    "trace_id": "..."
//	}
//
// # Testing
//
// Handlers depend on the small interfaces in services.go so tests can drive
// them with testify mocks and httptest.
package http
