package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"annadata/internal/config"
	"annadata/internal/dataset"
	"annadata/internal/estimators"
	"annadata/internal/operations"
	"annadata/internal/registry"
	"annadata/internal/shared/testutil"
	"annadata/internal/variational"
)

type fixture struct {
	cfg     *config.Config
	paths   *config.Paths
	reg     *registry.Registry
	codec   *estimators.Codec
	manager *operations.Manager
	logs    *testutil.BufferedSlogHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.BaseDir = t.TempDir()
	cfg.Pipeline.SyntheticRegions = []string{"Punjab", "Karnataka"}
	cfg.Pipeline.SyntheticDays = 60
	cfg.Pipeline.CVFolds = 3
	cfg.Features.Lags = []int{1, 7}
	cfg.Features.RollingWindows = []int{7}
	cfg.Estimators.Enabled = []string{estimators.NameLinear}

	paths, err := config.NewPaths(cfg.Paths)
	require.NoError(t, err)
	require.NoError(t, paths.EnsureDirectories(nil))

	logger, logs := testutil.NewTestLogger(t)
	reg, err := registry.Open(paths.RegistryFile, logger, nil)
	require.NoError(t, err)
	codec := estimators.NewCodec()
	variational.RegisterCodec(codec)

	return &fixture{
		cfg:   cfg,
		paths: paths,
		reg:   reg,
		codec: codec,
		logs:  logs,
		manager: operations.NewManager(operations.Deps{
			Config:   cfg,
			Paths:    paths,
			Registry: reg,
			Codec:    codec,
			Logger:   logger,
		}),
	}
}

// train runs the weather pipeline and returns the registered model name
func (f *fixture) train(t *testing.T) string {
	t.Helper()
	manifest, err := f.manager.Run(context.Background(), operations.RunRequest{})
	require.NoError(t, err)
	require.Len(t, manifest.Models, 1)
	return manifest.Models[0]
}

// weatherRecords generates days of observations per region as request records
func weatherRecords(t *testing.T, regions []string, days int) []map[string]interface{} {
	t.Helper()
	obs := (&dataset.SyntheticWeather{Regions: regions, Days: days, Seed: 7}).Observations()
	data, err := json.Marshal(obs)
	require.NoError(t, err)
	var records []map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &records))
	return records
}
