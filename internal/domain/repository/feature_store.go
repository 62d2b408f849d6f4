package repository

import (
	"context"
	"time"

	"FlowCast/internal/domain/models"
)

// FeatureStore provides read-only access to aggregated flows for training
// and feature engineering.
type FeatureStore interface {
	GetDailyFlows(ctx context.Context, orgID string, from, to time.Time) ([]models.DailyFlow, error)
	GetLatestNFlows(ctx context.Context, orgID string, n int) ([]models.DailyFlow, error)
	CountPositions(ctx context.Context, orgID string) (int, error)
}

// ForecastStore persists and retrieves generated forecasts.
type ForecastStore interface {
	Save(ctx context.Context, f *models.Forecast) error
	GetDaily(ctx context.Context, orgID string, targetDate time.Time) (*models.Forecast, error)
}
