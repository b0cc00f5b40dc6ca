// Package operations runs the training pipeline as an ordered set of steps.
//
// A run loads one dataset, engineers and encodes features, scales the
// design matrix, trains the estimator roster (and optionally the alternate
// estimator), persists every fitted transformer and model, registers the
// models and exports the results. Steps declare their dependencies and the
// Registry orders them; the Manager executes them sequentially and records
// each one in a RunManifest saved next to the artifacts.
//
// The Manager refuses a second run while one is active. Progress events go
// to an optional ProgressSink such as the websocket hub:
//
//	mgr := operations.NewManager(operations.Deps{
//		Config:   cfg,
//		Paths:    paths,
//		Registry: reg,
//		Codec:    codec,
//		Logger:   logger,
//	})
//	manifest, err := mgr.Run(ctx, operations.RunRequest{Dataset: "crop"})
//
// Fitted feature statistics, encoders and the scaler come from the
// training partition only unless the leakage policy is fit_before_split, in
// which case every run logs a warning.
package operations
