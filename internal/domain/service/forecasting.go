package service

import (
	"context"
	"time"

	"FlowCast/internal/domain/models"
)

// RegimeDetector maps raw market indicators to a stress classification.
// Nil indicators are synthesized from a plausible default rather than erroring.
type RegimeDetector interface {
	Detect(vix, spread *float64) models.Classification
}

// CrisisSimulator runs Monte Carlo tail-risk simulation around a base forecast.
type CrisisSimulator interface {
	SimulateMonteCarlo(basePrediction float64, regime models.Regime, n int) (models.MonteCarloResult, error)
}

// Engine blends the steady-state and crisis models into one prediction.
type Engine interface {
	Load() error
	Predict(ctx context.Context, m *models.FeatureMatrix, c models.Classification, targetDate time.Time, horizonDays int) (models.Prediction, error)
	TrainOnData(flows []models.DailyFlow) (models.TrainingReport, error)
}
