package usecase

import (
	"context"
	"fmt"
	"time"

	"FlowCast/internal/domain/models"
	drepo "FlowCast/internal/domain/repository"
)

// TransactionProcessor processes cash movements and routes them to the
// configured backend.
type TransactionProcessor struct {
	pub     drepo.Publisher
	store   drepo.Storage
	metrics drepo.Metrics
	backend string
	batchSz int
	batchTO time.Duration
}

// NewTransactionProcessor creates a new TransactionProcessor instance.
func NewTransactionProcessor(
	pub drepo.Publisher,
	store drepo.Storage,
	metrics drepo.Metrics,
	backend string,
	batchSz int,
	batchTO time.Duration,
) *TransactionProcessor {
	return &TransactionProcessor{
		pub:     pub,
		store:   store,
		metrics: metrics,
		backend: backend,
		batchSz: batchSz,
		batchTO: batchTO,
	}
}

// Process processes a single transaction and routes it to the configured backend.
func (p *TransactionProcessor) Process(ctx context.Context, t *models.Transaction) error {
	if t == nil {
		return fmt.Errorf("transaction is nil")
	}

	start := time.Now()
	var err error

	switch p.backend {
	case "kafka":
		err = p.pub.Publish(ctx, t)
	case "clickhouse":
		err = p.store.Store(ctx, t)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("process")
		return fmt.Errorf("process transaction: %w", err)
	}

	p.metrics.RecordIngest(p.backend)
	p.metrics.RecordLatency("process", time.Since(start).Seconds())

	return nil
}

// ProcessBatch processes multiple transactions in a batch.
func (p *TransactionProcessor) ProcessBatch(ctx context.Context, txns []*models.Transaction) error {
	if len(txns) == 0 {
		return nil
	}

	start := time.Now()
	var err error

	switch p.backend {
	case "kafka":
		err = p.pub.PublishBatch(ctx, txns)
	case "clickhouse":
		err = p.store.StoreBatch(ctx, txns)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("process_batch")
		return fmt.Errorf("process batch: %w", err)
	}

	for range txns {
		p.metrics.RecordIngest(p.backend)
	}
	p.metrics.RecordLatency("process_batch", time.Since(start).Seconds())

	return nil
}

// Close closes underlying resources if available.
func (p *TransactionProcessor) Close() {
	if p.pub != nil {
		_ = p.pub.Close()
	}
	if p.store != nil {
		_ = p.store.Close()
	}
}
