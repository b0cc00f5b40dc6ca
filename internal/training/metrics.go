// Package training splits data, fits estimators and scores them under one
// metric protocol.
package training

import (
	"fmt"
	"math"

	apperrors "annadata/internal/errors"
)

// Metrics are the regression scores of one partition.
type Metrics struct {
	MSE  float64 `json:"mse"`
	RMSE float64 `json:"rmse"`
	MAE  float64 `json:"mae"`
	R2   float64 `json:"r2"`
}

// Score computes MSE, RMSE, MAE and R². A constant target scores R² 1 when
// predicted exactly and 0 otherwise.
func Score(yTrue, yPred []float64) (Metrics, error) {
	if len(yTrue) == 0 || len(yTrue) != len(yPred) {
		return Metrics{}, apperrors.NewDataError(fmt.Sprintf("cannot score %d predictions against %d targets", len(yPred), len(yTrue)), nil)
	}
	n := float64(len(yTrue))
	var mean float64
	for _, v := range yTrue {
		mean += v
	}
	mean /= n

	var sse, sae, sst float64
	for i, v := range yTrue {
		d := v - yPred[i]
		sse += d * d
		sae += math.Abs(d)
		sst += (v - mean) * (v - mean)
	}

	m := Metrics{MSE: sse / n, MAE: sae / n}
	m.RMSE = math.Sqrt(m.MSE)
	switch {
	case sst > 0:
		m.R2 = 1 - sse/sst
	case sse == 0:
		m.R2 = 1
	}
	return m, nil
}
