package repository

import (
	"context"
	"time"

	"FlowCast/internal/domain/models"
)

// IndicatorStream streams market indicator ticks (VIX, credit spreads).
type IndicatorStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.IndicatorSnapshot, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// IndicatorFetcher fetches a one-off indicator snapshot, used as a fallback
// while the stream is unavailable.
type IndicatorFetcher interface {
	Snapshot(ctx context.Context) (*models.IndicatorSnapshot, error)
}

// Publisher publishes transactions and forecast events to the message bus.
type Publisher interface {
	Publish(ctx context.Context, t *models.Transaction) error
	PublishBatch(ctx context.Context, txns []*models.Transaction) error
	PublishForecast(ctx context.Context, f *models.Forecast) error
	Close() error
}

// Storage persists raw transactions.
type Storage interface {
	Init(ctx context.Context) error // ensure tables, health checks
	Store(ctx context.Context, t *models.Transaction) error
	StoreBatch(ctx context.Context, txns []*models.Transaction) error
	Query(ctx context.Context, orgID string, from, to time.Time, limit int) ([]*models.Transaction, error)
	Health(ctx context.Context) error // ping
	Close() error
}

// Metrics records operational measurements.
type Metrics interface {
	RecordForecast(regime string, demo bool)
	RecordIngest(backend string)
	RecordError(kind string)
	RecordRegime(regime string, confidence float64)
	RecordLatency(op string, seconds float64)
}
