// Package config provides centralized configuration management for annadata.
// It handles loading configuration from multiple sources, validation, and provides
// a type-safe API for accessing configuration values throughout the application.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//	1. Environment variables (highest priority)
//	2. Configuration file (YAML)
//	3. Default values (lowest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern ANNADATA_<SECTION>_<FIELD>:
//
//	ANNADATA_PIPELINE_DATASET=crop
//	ANNADATA_PIPELINE_LEAKAGE_POLICY=train_only
//	ANNADATA_FEATURES_LAGS=1,7,30
//	ANNADATA_ALTERNATE_MAX_ITERATIONS=200
//	ANNADATA_SERVER_PORT=8080
//
// # Path Management
//
// Paths resolves the configured directories once and derives the per-dataset
// artifact layout from them:
//
//	paths, err := config.NewPaths(cfg.Paths)
//	dp := paths.Dataset(config.DatasetCrop)
//	modelFile := dp.ModelPath("random_forest_crop_v1")
//
// Nothing in this package is global. Callers load a Config once and pass it,
// or the parts they need, down explicitly.
package config
