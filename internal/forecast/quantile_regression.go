package forecast

import "fmt"

// quantileRegressor is a linear model fitted with pinball (quantile) loss
// via subgradient descent. One regressor is trained per target quantile.
type quantileRegressor struct {
	alpha   float64
	weights []float64
	bias    float64
}

const (
	qrEpochs       = 300
	qrLearningRate = 0.05
)

func newQuantileRegressor(alpha float64) *quantileRegressor {
	return &quantileRegressor{alpha: alpha}
}

// fit minimizes mean pinball loss over (X, y). X must already be scaled.
// Returns the mean squared residual on the training set.
func (r *quantileRegressor) fit(X [][]float64, y []float64) (float64, error) {
	if len(X) == 0 || len(X) != len(y) {
		return 0, fmt.Errorf("quantile fit: %d rows vs %d targets", len(X), len(y))
	}
	cols := len(X[0])
	r.weights = make([]float64, cols)
	r.bias = meanOf(y) // start at the unconditional mean

	n := float64(len(X))
	for epoch := 0; epoch < qrEpochs; epoch++ {
		lr := qrLearningRate / (1 + 0.01*float64(epoch))
		gradW := make([]float64, cols)
		gradB := 0.0
		for i, row := range X {
			pred := r.predict(row)
			// pinball subgradient: residual above the line pulls with
			// weight alpha, below with (1-alpha)
			g := r.alpha
			if y[i] < pred {
				g = r.alpha - 1
			}
			for j, v := range row {
				gradW[j] -= g * v
			}
			gradB -= g
		}
		for j := range r.weights {
			r.weights[j] -= lr * gradW[j] / n
		}
		r.bias -= lr * gradB / n
	}

	var sse float64
	for i, row := range X {
		d := y[i] - r.predict(row)
		sse += d * d
	}
	return sse / n, nil
}

func (r *quantileRegressor) predict(row []float64) float64 {
	out := r.bias
	for j, w := range r.weights {
		if j < len(row) {
			out += w * row[j]
		}
	}
	return out
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range xs {
		sum += v
	}
	return sum / float64(len(xs))
}
