package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"annadata/internal/config"
	apperrors "annadata/internal/errors"
	"annadata/internal/registry"
)

func seedRegistry(t *testing.T, f *fixture) {
	t.Helper()
	ctx := context.Background()
	entries := []registry.Entry{
		{Name: "rf_weather_v1", Type: "ensemble_tree", Dataset: config.DatasetWeather, Path: "/tmp/rf.gob", Metrics: map[string]float64{"test_mse": 2.5}},
		{Name: "lr_weather_v1", Type: "linear", Dataset: config.DatasetWeather, Path: "/tmp/lr.gob", Metrics: map[string]float64{"test_mse": 4.0}},
		{Name: "lr_crop_v1", Type: "linear", Dataset: config.DatasetCrop, Path: "/tmp/lrc.gob", Metrics: map[string]float64{"test_mse": 900}},
	}
	for _, e := range entries {
		require.NoError(t, f.reg.Register(ctx, e))
	}
}

func TestModelServiceList(t *testing.T) {
	f := newFixture(t)
	seedRegistry(t, f)
	svc := NewModelService(f.reg, nil)
	ctx := context.Background()

	all, err := svc.List(ctx, "", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	weather, err := svc.List(ctx, config.DatasetWeather, registry.StatusActive)
	require.NoError(t, err)
	require.Len(t, weather, 2)
	assert.Equal(t, "lr_weather_v1", weather[0].Name)

	_, err = svc.List(ctx, "rice", "")
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
	_, err = svc.List(ctx, "", "archived")
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
}

func TestModelServiceBestAndDeprecate(t *testing.T) {
	f := newFixture(t)
	seedRegistry(t, f)
	svc := NewModelService(f.reg, nil)
	ctx := context.Background()

	best, err := svc.Best(ctx, config.DatasetWeather, "")
	require.NoError(t, err)
	assert.Equal(t, "rf_weather_v1", best.Name)

	deprecated, err := svc.Deprecate(ctx, "rf_weather_v1")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusDeprecated, deprecated.Status)

	best, err = svc.Best(ctx, config.DatasetWeather, "")
	require.NoError(t, err)
	assert.Equal(t, "lr_weather_v1", best.Name)

	summary := svc.Summary(ctx)
	assert.Equal(t, 3, summary.TotalModels)
	assert.Equal(t, 2, summary.Active)

	_, err = svc.Best(ctx, "", "")
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
	_, err = svc.Deprecate(ctx, "missing")
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNotFound))
	_, err = svc.Get(ctx, "missing")
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNotFound))
}
