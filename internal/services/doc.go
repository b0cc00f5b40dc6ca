// Package services implements the business logic behind the HTTP API. It
// keeps handlers thin: every rule about which model answers a request,
// how records become a design matrix, and when a run may start lives here.
//
// # Available Services
//
//	- HealthService: liveness, readiness and version information
//	- ModelService: registry listing, ranking and deprecation
//	- PredictService: point estimates for raw records
//	- RunService: background pipeline runs
//
// # Error Handling
//
// Services return the typed errors of annadata/internal/errors, which the
// transport layer renders as RFC 7807 problems:
//
//	- Validation errors for malformed requests
//	- Not found errors for unknown models or absent runs
//	- Artifact missing errors when a registered file is gone
//	- apperrors.ErrRunInProgress when a second run is requested
//
// # Prediction
//
// PredictService replays the fitted transformers of a dataset, read from the
// fixed artifact layout under config.Paths, before the registry model:
//
//	svc := services.NewPredictService(cfg.Features, paths, reg, codec, metrics, logger)
//	resp, err := svc.Predict(ctx, "crop", services.PredictRequest{Records: records})
package services
