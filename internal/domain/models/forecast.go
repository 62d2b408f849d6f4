package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Regime classifies market stress driving model selection.
type Regime string

const (
	RegimeSteadyState Regime = "steady_state"
	RegimeElevated    Regime = "elevated"
	RegimeCrisis      Regime = "crisis"
)

// Severity ranks regimes so the worse of two classifications wins.
func (r Regime) Severity() int {
	switch r {
	case RegimeCrisis:
		return 3
	case RegimeElevated:
		return 2
	case RegimeSteadyState:
		return 1
	default:
		return 0
	}
}

// IsValid reports whether r is one of the known regimes.
func (r Regime) IsValid() bool {
	return r.Severity() > 0
}

// ParseRegime converts raw string to a valid regime (or steady state).
func ParseRegime(s string) Regime {
	r := Regime(s)
	if r.IsValid() {
		return r
	}
	return RegimeSteadyState
}

// Classification is the result of regime detection.
type Classification struct {
	Regime     Regime
	Confidence float64
	VIX        float64
	Spread     float64
	Synthetic  bool // indicators were synthesized, not observed
}

// Quantiles is a raw model output before blending.
type Quantiles struct {
	P5         float64
	P50        float64
	P95        float64
	InflowP50  float64
	OutflowP50 float64
	Confidence float64
}

// Prediction is the blended engine output handed to the caller.
// Monetary fields are fixed-precision to avoid float drift in persisted figures.
type Prediction struct {
	P5                decimal.Decimal
	P50               decimal.Decimal
	P95               decimal.Decimal
	InflowP50         decimal.Decimal
	OutflowP50        decimal.Decimal
	SteadyStateWeight decimal.Decimal
	CrisisWeight      decimal.Decimal
	Confidence        decimal.Decimal
	ModelName         string
	ModelVersion      string
}

// TrainingStatus values for TrainingReport.
const (
	TrainingStatusTrained          = "trained"
	TrainingStatusInsufficientData = "insufficient_data"
)

// TrainingReport is the structured outcome of a training run.
// Insufficient history is a status, not an error, so callers can surface
// "not enough history yet" without an error boundary.
type TrainingReport struct {
	Status  string
	Rows    int
	Metrics map[float64]float64 // per-quantile mean squared residual
}

// MonteCarloResult summarizes a tail-risk simulation.
type MonteCarloResult struct {
	Mean   float64
	Std    float64
	P1     float64
	P5     float64
	P50    float64
	P95    float64
	P99    float64
	VaR95  float64
	CVaR95 float64
	N      int
	Regime Regime
}

// Forecast is the persisted record wrapping a Prediction.
type Forecast struct {
	ID               string
	OrganizationID   string
	ForecastDate     time.Time
	TargetDate       time.Time
	HorizonDays      int
	Regime           Regime
	RegimeConfidence float64
	VIXAtForecast    float64
	SpreadAtForecast float64
	Prediction       Prediction
	GeneratedAt      time.Time
	GenerationMs     int64
}
