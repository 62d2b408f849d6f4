package usecase

import (
	"context"
	"encoding/json"
	"time"

	"FlowCast/internal/domain/models"
	domrepo "FlowCast/internal/domain/repository"
	pkgkafka "FlowCast/pkg/kafka"
)

// KafkaTransactionsHandler consumes Kafka messages and writes to storage.
type KafkaTransactionsHandler struct {
	topic   string
	storage domrepo.Storage
	metrics domrepo.Metrics
}

func NewKafkaTransactionsHandler(topic string, storage domrepo.Storage, metrics domrepo.Metrics) *KafkaTransactionsHandler {
	return &KafkaTransactionsHandler{topic: topic, storage: storage, metrics: metrics}
}

func (h *KafkaTransactionsHandler) Topic() string { return h.topic }

// incoming message schema: {org_id, account_id, t, amount, direction, currency}
func (h *KafkaTransactionsHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		OrgID     string  `json:"org_id"`
		AccountID string  `json:"account_id"`
		T         int64   `json:"t"`
		Amount    float64 `json:"amount"`
		Direction string  `json:"direction"`
		Currency  string  `json:"currency"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if m.T > 1e11 { // ms
		m.T = m.T / 1000
	}
	if m.Direction == "" {
		m.Direction = models.DirectionInflow
		if m.Amount < 0 {
			m.Direction = models.DirectionOutflow
		}
	}
	// E2E latency from event time to now (approx)
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(time.Unix(m.T, 0)).Seconds())

	txn := &models.Transaction{
		OrganizationID: m.OrgID,
		AccountID:      m.AccountID,
		Timestamp:      m.T,
		Amount:         m.Amount,
		Direction:      m.Direction,
		Currency:       m.Currency,
	}

	start := time.Now()
	err := h.storage.Store(ctx, txn)
	h.metrics.RecordLatency("ch_insert_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	h.metrics.RecordIngest("clickhouse")
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaTransactionsHandler)(nil)
