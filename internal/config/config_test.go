package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "annadata.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		env         map[string]string
		file        string
		wantErr     bool
		validateCfg func(*testing.T, *Config)
	}{
		{
			name: "defaults",
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, DatasetWeather, cfg.Pipeline.Dataset)
				assert.Equal(t, LeakageTrainOnly, cfg.Pipeline.LeakagePolicy)
				assert.Equal(t, int64(42), cfg.Pipeline.Seed)
				assert.Equal(t, 0.2, cfg.Pipeline.TestFraction)
				assert.Equal(t, 5, cfg.Pipeline.CVFolds)
				assert.Equal(t, []int{1, 7, 30}, cfg.Features.Lags)
				assert.Equal(t, []int{7, 30}, cfg.Features.RollingWindows)
				assert.Equal(t, 100, cfg.Estimators.ForestTrees)
				assert.Equal(t, 10, cfg.Estimators.ForestMaxDepth)
				assert.Equal(t, 4, cfg.Alternate.Components)
				assert.Equal(t, 200, cfg.Alternate.MaxIterations)
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
			},
		},
		{
			name: "file overrides defaults",
			file: `
pipeline:
  dataset: crop
  leakage_policy: fit_before_split
features:
  lags: [1, 3]
server:
  read_timeout: 5s
`,
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, DatasetCrop, cfg.Pipeline.Dataset)
				assert.Equal(t, LeakageFitBeforeSplit, cfg.Pipeline.LeakagePolicy)
				assert.Equal(t, []int{1, 3}, cfg.Features.Lags)
				assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
				// untouched sections keep their defaults
				assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
			},
		},
		{
			name: "env overrides file",
			file: `
pipeline:
  dataset: crop
server:
  port: 9000
`,
			env: map[string]string{
				"ANNADATA_SERVER_PORT":              "9100",
				"ANNADATA_FEATURES_LAGS":            "2,4",
				"ANNADATA_ALTERNATE_MAX_ITERATIONS": "25",
			},
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, DatasetCrop, cfg.Pipeline.Dataset)
				assert.Equal(t, 9100, cfg.Server.Port)
				assert.Equal(t, []int{2, 4}, cfg.Features.Lags)
				assert.Equal(t, 25, cfg.Alternate.MaxIterations)
			},
		},
		{
			name:    "unknown leakage policy",
			env:     map[string]string{"ANNADATA_PIPELINE_LEAKAGE_POLICY": "whenever"},
			wantErr: true,
		},
		{
			name:    "test fraction out of range",
			file:    "pipeline:\n  test_fraction: 1.5\n",
			wantErr: true,
		},
		{
			name:    "unknown estimator",
			env:     map[string]string{"ANNADATA_ESTIMATORS_ENABLED": "linear_regression,gradient_boosting"},
			wantErr: true,
		},
		{
			name:    "malformed yaml",
			file:    "pipeline: [",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			path := ""
			if tt.file != "" {
				path = writeConfigFile(t, tt.file)
			}

			cfg, err := Load(path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.validateCfg(t, cfg)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "default is valid", mutate: func(*Config) {}},
		{
			name:    "single fold",
			mutate:  func(c *Config) { c.Pipeline.CVFolds = 1 },
			wantErr: "CVFolds",
		},
		{
			name:    "empty lags",
			mutate:  func(c *Config) { c.Features.Lags = nil },
			wantErr: "Lags",
		},
		{
			name:    "non-positive window",
			mutate:  func(c *Config) { c.Features.RollingWindows = []int{7, 0} },
			wantErr: "RollingWindows",
		},
		{
			name:    "file logging without path",
			mutate:  func(c *Config) { c.Logging.Output = "file"; c.Logging.FilePath = "" },
			wantErr: "FilePath",
		},
		{
			name: "telemetry without service name",
			mutate: func(c *Config) {
				c.Telemetry.Enabled = true
				c.Telemetry.ServiceName = ""
			},
			wantErr: "service name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTargetFor(t *testing.T) {
	assert.Equal(t, "Yield", TargetFor(DatasetCrop))
	assert.Equal(t, "temperature_current", TargetFor(DatasetWeather))
}

func TestDefaultDoesNotShareRegions(t *testing.T) {
	cfg := Default()
	cfg.Pipeline.SyntheticRegions[0] = "Elsewhere"
	assert.Equal(t, "Delhi NCR", AgriculturalRegions[0])
}
