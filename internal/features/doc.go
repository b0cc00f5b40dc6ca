// Package features derives the engineered feature table from raw grouped
// records.
//
// An Engine replays a fixed sequence over a frame: required-column check,
// log1p compression, IQR capping, domain features, calendar and cyclic
// encodings, group lags, rolling statistics, interactions, imputation and a
// schema check. Fit records every statistic the sequence needs in a State;
// Transform replays the sequence with that State and never refits.
//
//	engine := features.NewEngine(features.CropSpec(cfg.Features), logger)
//	state, table, err := engine.Fit(ctx, raw, trainRows)
//	...
//	table, err = engine.Transform(ctx, state, incoming)
package features
