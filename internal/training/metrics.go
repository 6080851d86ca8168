package training

import (
	"fmt"
	"math"
)

// Metrics are the regression errors of the held-out partition.
type Metrics struct {
	MAE      float64 `json:"mae"`
	MSE      float64 `json:"mse"`
	RMSE     float64 `json:"rmse"`
	R2       float64 `json:"r2"`
	TestRows int     `json:"test_rows"`
}

// Evaluate computes MAE, MSE, RMSE and R². When the true values have no
// variance R² is 1 for a perfect prediction and 0 otherwise, so it is never
// NaN.
func Evaluate(yTrue, yPred []float64) (Metrics, error) {
	if len(yTrue) == 0 {
		return Metrics{}, fmt.Errorf("%w: empty evaluation set", ErrInsufficientData)
	}
	if len(yTrue) != len(yPred) {
		return Metrics{}, fmt.Errorf("training: %d targets but %d predictions", len(yTrue), len(yPred))
	}

	n := float64(len(yTrue))
	var mean float64
	for _, v := range yTrue {
		mean += v
	}
	mean /= n

	var absSum, ssRes, ssTot float64
	for i, v := range yTrue {
		d := yPred[i] - v
		absSum += math.Abs(d)
		ssRes += d * d
		t := v - mean
		ssTot += t * t
	}

	m := Metrics{
		MAE:      absSum / n,
		MSE:      ssRes / n,
		TestRows: len(yTrue),
	}
	m.RMSE = math.Sqrt(m.MSE)

	switch {
	case ssTot > 0:
		m.R2 = 1 - ssRes/ssTot
	case ssRes == 0:
		m.R2 = 1
	default:
		m.R2 = 0
	}
	return m, nil
}
