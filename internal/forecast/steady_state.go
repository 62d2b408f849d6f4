package forecast

import (
	"fmt"
	"math"
	"sync"
	"time"

	exprand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"FlowCast/internal/domain/models"
	applogger "FlowCast/pkg/logger"
	xutil "FlowCast/pkg/util"
)

// ModelState tags the steady-state model lifecycle so callers can tell
// "never trained" apart from "trained but inference failed".
type ModelState string

const (
	StateUntrained ModelState = "untrained"
	StateTrained   ModelState = "trained"
	StateDegraded  ModelState = "degraded"
)

// DefaultQuantiles are the target quantiles fitted at training time.
var DefaultQuantiles = []float64{0.05, 0.50, 0.95}

// SteadyStateModel forecasts net cash flow under normal market conditions
// using one pinball-loss regressor per target quantile. Until trained it
// serves a deterministic day-seeded demo prediction so the pipeline never
// fails for lack of a model.
type SteadyStateModel struct {
	mu           sync.RWMutex
	state        ModelState
	reason       string // why the model is degraded
	scaler       *StandardScaler
	estimators   map[float64]*quantileRegressor
	featureNames []string
	l            *applogger.Logger
}

func NewSteadyStateModel() *SteadyStateModel {
	return &SteadyStateModel{state: StateUntrained}
}

// SetLogger injects a structured logger.
func (m *SteadyStateModel) SetLogger(l *applogger.Logger) { m.l = l }

// State returns the current lifecycle tag.
func (m *SteadyStateModel) State() ModelState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Train fits a scaler and one quantile regressor per target quantile.
// Re-training overwrites the previous state wholesale. Returns the
// per-quantile mean squared residual for observability.
func (m *SteadyStateModel) Train(matrix *models.FeatureMatrix, y []float64, quantiles []float64) (map[float64]float64, error) {
	if matrix == nil || len(matrix.Rows) == 0 {
		return nil, fmt.Errorf("train: empty feature matrix")
	}
	if len(matrix.Rows) != len(y) {
		return nil, fmt.Errorf("train: %d rows vs %d targets", len(matrix.Rows), len(y))
	}
	if len(quantiles) == 0 {
		quantiles = DefaultQuantiles
	}

	X := make([][]float64, len(matrix.Rows))
	for i, r := range matrix.Rows {
		X[i] = r.Values
	}

	scaler := &StandardScaler{}
	if err := scaler.Fit(X); err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	scaled, err := scaler.Transform(X)
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}

	estimators := make(map[float64]*quantileRegressor, len(quantiles))
	errs := make(map[float64]float64, len(quantiles))
	for _, q := range quantiles {
		reg := newQuantileRegressor(q)
		mse, err := reg.fit(scaled, y)
		if err != nil {
			return nil, fmt.Errorf("train quantile %.2f: %w", q, err)
		}
		estimators[q] = reg
		errs[q] = mse
		if m.l != nil {
			m.l.Info("steady model quantile fitted",
				applogger.Any("quantile", q),
				applogger.Any("mse", mse),
			)
		}
	}

	m.mu.Lock()
	m.scaler = scaler
	m.estimators = estimators
	m.featureNames = append([]string(nil), matrix.Names...)
	m.state = StateTrained
	m.reason = ""
	m.mu.Unlock()
	return errs, nil
}

// Predict returns a quantile forecast for targetDate. Untrained models and
// inference failures fall back to the demo prediction; the bool reports
// whether the output is synthetic.
func (m *SteadyStateModel) Predict(matrix *models.FeatureMatrix, targetDate time.Time) (models.Quantiles, bool) {
	m.mu.RLock()
	trained := m.state == StateTrained
	m.mu.RUnlock()

	if !trained || matrix == nil || len(matrix.Rows) == 0 {
		return m.demoPredict(targetDate), true
	}

	q, err := m.inference(matrix)
	if err != nil {
		// availability over correctness: serve the synthetic fallback and
		// mark the model degraded so monitoring can tell the difference
		m.mu.Lock()
		m.state = StateDegraded
		m.reason = err.Error()
		m.mu.Unlock()
		if m.l != nil {
			m.l.Warn("steady model inference fallback", applogger.Error(err))
		}
		return m.demoPredict(targetDate), true
	}
	return q, false
}

func (m *SteadyStateModel) inference(matrix *models.FeatureMatrix) (models.Quantiles, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	latest := matrix.Latest()
	if len(latest) != len(m.featureNames) {
		return models.Quantiles{}, fmt.Errorf("feature mismatch: got %d, trained on %d", len(latest), len(m.featureNames))
	}
	row, err := m.scaler.TransformRow(latest)
	if err != nil {
		return models.Quantiles{}, err
	}

	preds := make(map[float64]float64, len(m.estimators))
	for q, reg := range m.estimators {
		preds[q] = reg.predict(row)
	}

	out := models.Quantiles{
		P5:  preds[0.05],
		P50: preds[0.50],
		P95: preds[0.95],
	}
	out.InflowP50 = math.Abs(out.P50) * 1.5
	out.OutflowP50 = math.Abs(out.P50) * 0.5
	out.Confidence = intervalConfidence(out.P5, out.P50, out.P95)
	return out, nil
}

// demoPredict synthesizes a statistically plausible forecast, seeded by the
// calendar day so repeated calls within a day are identical.
func (m *SteadyStateModel) demoPredict(targetDate time.Time) models.Quantiles {
	seed := uint64(xutil.DayOrdinal(targetDate) % 1000)
	src := exprand.NewSource(seed)
	rng := exprand.New(src)

	median := distuv.Normal{Mu: 25000, Sigma: 8000, Src: src}.Rand()
	vol := math.Abs(median)*0.4 + 5000

	q := models.Quantiles{
		P5:         median - 1.645*vol,
		P50:        median,
		P95:        median + 1.645*vol,
		InflowP50:  math.Abs(median) * 1.5,
		OutflowP50: math.Abs(median) * 0.5,
		Confidence: 0.55 + 0.37*rng.Float64(),
	}
	return q
}

// intervalConfidence scores a forecast by the relative width of its
// p5-p95 interval: narrower intervals mean higher confidence.
func intervalConfidence(p5, p50, p95 float64) float64 {
	if p50 == 0 {
		return 0.5
	}
	widthRatio := math.Abs(p95-p5) / math.Abs(p50)
	return clamp(1-widthRatio*0.3, 0.3, 0.95)
}
