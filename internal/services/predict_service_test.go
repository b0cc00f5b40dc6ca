package services

import (
	"context"
	"math"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"annadata/internal/config"
	"annadata/internal/dataset"
	apperrors "annadata/internal/errors"
	"annadata/internal/registry"
)

func newPredictService(f *fixture) *PredictService {
	return NewPredictService(f.cfg.Features, f.paths, f.reg, f.codec, nil, nil)
}

func TestPredictUsesBestModel(t *testing.T) {
	f := newFixture(t)
	name := f.train(t)
	svc := newPredictService(f)

	records := weatherRecords(t, []string{"Punjab"}, 10)
	resp, err := svc.Predict(context.Background(), config.DatasetWeather, PredictRequest{Records: records})
	require.NoError(t, err)

	assert.Equal(t, name, resp.Model)
	assert.Equal(t, config.DatasetWeather, resp.Dataset)
	require.Len(t, resp.Predictions, len(records))
	for _, p := range resp.Predictions {
		assert.False(t, math.IsNaN(p) || math.IsInf(p, 0))
	}
}

func TestPredictKeepsRequestOrder(t *testing.T) {
	f := newFixture(t)
	f.train(t)
	svc := newPredictService(f)

	records := weatherRecords(t, []string{"Punjab", "Karnataka"}, 8)
	ordered, err := svc.Predict(context.Background(), config.DatasetWeather, PredictRequest{Records: records})
	require.NoError(t, err)

	reversed := make([]map[string]interface{}, len(records))
	for i, r := range records {
		reversed[len(records)-1-i] = r
	}
	resp, err := svc.Predict(context.Background(), config.DatasetWeather, PredictRequest{Records: reversed})
	require.NoError(t, err)

	for i := range records {
		assert.InDelta(t, ordered.Predictions[i], resp.Predictions[len(records)-1-i], 1e-9)
	}
}

func TestPredictNamedModel(t *testing.T) {
	f := newFixture(t)
	name := f.train(t)
	svc := newPredictService(f)
	records := weatherRecords(t, []string{"Punjab"}, 5)

	resp, err := svc.Predict(context.Background(), config.DatasetWeather, PredictRequest{Model: name, Records: records})
	require.NoError(t, err)
	assert.Equal(t, name, resp.Model)

	_, err = svc.Predict(context.Background(), config.DatasetCrop, PredictRequest{Model: name, Records: records})
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))

	_, err = svc.Predict(context.Background(), config.DatasetWeather, PredictRequest{Model: "nope", Records: records})
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNotFound))
}

func TestPredictMissingArtifacts(t *testing.T) {
	f := newFixture(t)
	name := f.train(t)
	svc := newPredictService(f)
	records := weatherRecords(t, []string{"Punjab"}, 5)

	entry, err := f.reg.Get(name)
	require.NoError(t, err)
	require.NoError(t, os.Remove(entry.Path))

	_, err = svc.Predict(context.Background(), config.DatasetWeather, PredictRequest{Records: records})
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeArtifactMissing))

	require.NoError(t, os.Remove(f.paths.Dataset(config.DatasetWeather).Scaler))
	_, err = svc.Predict(context.Background(), config.DatasetWeather, PredictRequest{Records: records})
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeArtifactMissing))
}

func TestPredictRejectsBadRequests(t *testing.T) {
	f := newFixture(t)
	svc := newPredictService(f)

	tests := []struct {
		name    string
		dataset string
		req     PredictRequest
		errType apperrors.ErrorType
	}{
		{"unknown dataset", "rice", PredictRequest{Records: []map[string]interface{}{{"a": 1.0}}}, apperrors.ErrTypeValidation},
		{"no records", config.DatasetWeather, PredictRequest{}, apperrors.ErrTypeValidation},
		{"no model registered", config.DatasetCrop, PredictRequest{Records: []map[string]interface{}{{"Crop": "Rice"}}}, apperrors.ErrTypeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Predict(context.Background(), tt.dataset, tt.req)
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, tt.errType), err.Error())
		})
	}
}

func TestPredictRejectsEmptyRecord(t *testing.T) {
	f := newFixture(t)
	f.train(t)
	svc := newPredictService(f)

	records := weatherRecords(t, []string{"Punjab"}, 3)
	records = append(records, map[string]interface{}{})
	_, err := svc.Predict(context.Background(), config.DatasetWeather, PredictRequest{Records: records})
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeData))
}

func TestPredictRejectsMissingField(t *testing.T) {
	f := newFixture(t)
	f.train(t)
	svc := newPredictService(f)

	tests := []struct {
		name   string
		column string
		edit   func(rec map[string]interface{})
	}{
		{"absent label source", dataset.ColTempCurrent, func(rec map[string]interface{}) { delete(rec, dataset.ColTempCurrent) }},
		{"null region", dataset.ColRegion, func(rec map[string]interface{}) { rec[dataset.ColRegion] = nil }},
		{"blank timestamp", dataset.ColTimestamp, func(rec map[string]interface{}) { rec[dataset.ColTimestamp] = " " }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := weatherRecords(t, []string{"Punjab"}, 3)
			tt.edit(records[1])

			resp, err := svc.Predict(context.Background(), config.DatasetWeather, PredictRequest{Records: records})
			require.Error(t, err)
			assert.Nil(t, resp)

			var appErr *apperrors.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, apperrors.ErrTypeData, appErr.Type)
			assert.Equal(t, tt.column, appErr.Context["column"])
			assert.Equal(t, 1, appErr.Context["record"])
		})
	}

	// fields the engine does not need may still be omitted
	records := weatherRecords(t, []string{"Punjab"}, 3)
	for _, rec := range records {
		delete(rec, dataset.ColWindDegree)
	}
	resp, err := svc.Predict(context.Background(), config.DatasetWeather, PredictRequest{Records: records})
	require.NoError(t, err)
	assert.Len(t, resp.Predictions, 3)
}

func TestRecordRows(t *testing.T) {
	rows := recordRows(config.DatasetCrop, []map[string]interface{}{
		{dataset.ColCrop: "Rice", dataset.ColCropYear: 1998.0, dataset.ColArea: 12.5, dataset.ColYield: nil},
	})
	require.Len(t, rows, 2)
	assert.Equal(t, dataset.Columns(config.DatasetCrop), rows[0])
	assert.Equal(t, "Rice", rows[1][0])
	assert.Equal(t, "1998", rows[1][1])
	assert.Equal(t, "12.5", rows[1][4])
	assert.Equal(t, "", rows[1][9])
}

func TestPredictCachesModel(t *testing.T) {
	f := newFixture(t)
	name := f.train(t)
	svc := newPredictService(f)

	entry, err := f.reg.Get(name)
	require.NoError(t, err)
	first, err := svc.loadModel(entry)
	require.NoError(t, err)
	second, err := svc.loadModel(entry)
	require.NoError(t, err)
	assert.Same(t, first, second)

	_, err = svc.loadModel(registry.Entry{Name: "gone", Path: entry.Path + ".missing"})
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeArtifactMissing))
}
