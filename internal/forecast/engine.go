package forecast

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"FlowCast/internal/domain/models"
	domsvc "FlowCast/internal/domain/service"
	"FlowCast/internal/services/features"
	applogger "FlowCast/pkg/logger"
)

// Model names reported on predictions.
const (
	ModelNameHybrid = "hybrid"
	ModelNameDemo   = "demo"
)

// EngineConfig tunes the forecast engine.
type EngineConfig struct {
	ModelVersion    string
	Quantiles       []float64
	MinTrainingRows int
}

func (c *EngineConfig) applyDefaults() {
	if c.ModelVersion == "" {
		c.ModelVersion = "1.0"
	}
	if len(c.Quantiles) == 0 {
		c.Quantiles = DefaultQuantiles
	}
	if c.MinTrainingRows <= 0 {
		c.MinTrainingRows = 30
	}
}

// ForecastEngine orchestrates regime-weighted blending of the steady-state
// and crisis models. It is constructor-injected into usecases; Load is
// idempotent and expected to run during application startup so request
// paths never race on lazy initialization.
type ForecastEngine struct {
	cfg    EngineConfig
	steady *SteadyStateModel
	crisis *CrisisModel
	l      *applogger.Logger

	loadOnce sync.Once
	loadErr  error
}

func NewEngine(cfg EngineConfig, l *applogger.Logger) *ForecastEngine {
	cfg.applyDefaults()
	return &ForecastEngine{cfg: cfg, l: l}
}

// Load constructs both sub-models. Safe to call from multiple goroutines;
// only the first call does work. A construction failure is fatal and
// surfaces on every subsequent call.
func (e *ForecastEngine) Load() error {
	e.loadOnce.Do(func() {
		e.steady = NewSteadyStateModel()
		e.steady.SetLogger(e.l)
		e.crisis = NewCrisisModel()
		if e.l != nil {
			e.l.Info("forecast models loaded", applogger.String("version", e.cfg.ModelVersion))
		}
	})
	return e.loadErr
}

// SteadyState exposes the steady model's lifecycle tag.
func (e *ForecastEngine) SteadyState() ModelState {
	if e.steady == nil {
		return StateUntrained
	}
	return e.steady.State()
}

// Simulator returns the crisis model's Monte Carlo interface.
func (e *ForecastEngine) Simulator() domsvc.CrisisSimulator {
	if err := e.Load(); err != nil {
		return nil
	}
	return e.crisis
}

// blendWeights looks up the regime blend. The switch covers the closed
// regime set; anything else takes the conservative default.
func blendWeights(r models.Regime) (steady, crisis float64) {
	switch r {
	case models.RegimeSteadyState:
		return 0.90, 0.10
	case models.RegimeElevated:
		return 0.60, 0.40
	case models.RegimeCrisis:
		return 0.20, 0.80
	default:
		return 0.85, 0.15
	}
}

// Predict generates a blended quantile forecast for targetDate.
func (e *ForecastEngine) Predict(ctx context.Context, m *models.FeatureMatrix, c models.Classification, targetDate time.Time, horizonDays int) (models.Prediction, error) {
	if horizonDays < 1 {
		return models.Prediction{}, fmt.Errorf("predict: horizon_days must be >= 1, got %d", horizonDays)
	}
	if err := e.Load(); err != nil {
		return models.Prediction{}, fmt.Errorf("predict: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return models.Prediction{}, err
	}

	wSteady, wCrisis := blendWeights(c.Regime)

	steadyPred, demo := e.steady.Predict(m, targetDate)
	crisisPred := e.crisis.Predict(c.Regime, targetDate)

	blend := func(a, b float64) float64 {
		return a*wSteady + b*wCrisis
	}

	modelName := ModelNameHybrid
	if demo {
		modelName = ModelNameDemo
	}

	pred := models.Prediction{
		P5:         money(blend(steadyPred.P5, crisisPred.P5)),
		P50:        money(blend(steadyPred.P50, crisisPred.P50)),
		P95:        money(blend(steadyPred.P95, crisisPred.P95)),
		InflowP50:  money(blend(steadyPred.InflowP50, crisisPred.InflowP50)),
		OutflowP50: money(blend(steadyPred.OutflowP50, crisisPred.OutflowP50)),
		// confidence blends with the same weights as the quantiles; the
		// min() convention from an earlier engine draft is rejected
		Confidence:        confidence(blend(steadyPred.Confidence, crisisPred.Confidence)),
		SteadyStateWeight: decimal.NewFromFloat(wSteady),
		CrisisWeight:      decimal.NewFromFloat(wCrisis),
		ModelName:         modelName,
		ModelVersion:      e.cfg.ModelVersion,
	}

	if e.l != nil {
		e.l.Debug("forecast blended",
			applogger.String("regime", string(c.Regime)),
			applogger.String("model", modelName),
			applogger.String("p50", pred.P50.String()),
		)
	}
	return pred, nil
}

// TrainOnData engineers the feature matrix from daily flow aggregates and
// fits the steady-state model on a one-step-ahead target (tomorrow's net
// flow from today's features). Fewer than MinTrainingRows aligned rows is
// a status, not an error, and leaves trained state untouched.
func (e *ForecastEngine) TrainOnData(flows []models.DailyFlow) (models.TrainingReport, error) {
	if err := e.Load(); err != nil {
		return models.TrainingReport{}, fmt.Errorf("train: %w", err)
	}

	matrix := features.BuildMatrix(flows)
	labeled := matrix.Labeled()
	if len(labeled) < e.cfg.MinTrainingRows {
		if e.l != nil {
			e.l.Warn("training skipped: insufficient history",
				applogger.Int("rows", len(labeled)),
				applogger.Int("required", e.cfg.MinTrainingRows),
			)
		}
		return models.TrainingReport{
			Status: models.TrainingStatusInsufficientData,
			Rows:   len(labeled),
		}, nil
	}

	train := &models.FeatureMatrix{Names: matrix.Names, Rows: labeled}
	y := make([]float64, len(labeled))
	for i, r := range labeled {
		y[i] = r.Target
	}

	metrics, err := e.steady.Train(train, y, e.cfg.Quantiles)
	if err != nil {
		return models.TrainingReport{}, fmt.Errorf("train: %w", err)
	}

	if e.l != nil {
		e.l.Info("steady model trained",
			applogger.Int("rows", len(labeled)),
			applogger.Int("features", len(train.Names)),
		)
	}
	return models.TrainingReport{
		Status:  models.TrainingStatusTrained,
		Rows:    len(labeled),
		Metrics: metrics,
	}, nil
}

func money(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}

func confidence(v float64) decimal.Decimal {
	return decimal.NewFromFloat(clamp(v, 0, 1)).Round(4)
}

var _ domsvc.Engine = (*ForecastEngine)(nil)
