package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"FlowCast/internal/domain/models"
	"FlowCast/internal/domain/repository"
	pkgkafka "FlowCast/pkg/kafka"
)

// ClickHouseStorage implements Storage for ClickHouse.
type ClickHouseStorage struct {
	db    *sql.DB
	table string
}

// NewClickHouseStorage creates ClickHouse storage.
func NewClickHouseStorage(db *sql.DB, table string) repository.Storage {
	return &ClickHouseStorage{db: db, table: table}
}

func (s *ClickHouseStorage) Init(ctx context.Context) error {
	return nil // Schema init in pkg
}

func (s *ClickHouseStorage) Store(ctx context.Context, t *models.Transaction) error {
	// Insert into transactions_raw schema
	q := fmt.Sprintf("INSERT INTO %s (ts, org_id, account_id, amount, direction, currency, event_id) VALUES (?, ?, ?, ?, ?, ?, ?)", s.table)
	// Idempotency key derived from org+account+timestamp
	eventID := fmt.Sprintf("%s-%s-%d", t.OrganizationID, t.AccountID, t.Timestamp)
	_, err := s.db.ExecContext(ctx, q,
		time.Unix(t.Timestamp, 0),
		t.OrganizationID,
		t.AccountID,
		t.Amount,
		t.Direction,
		t.Currency,
		eventID,
	)
	return err
}

func (s *ClickHouseStorage) StoreBatch(ctx context.Context, txns []*models.Transaction) error {
	if len(txns) == 0 {
		return nil
	}
	// Batch insert using VALUES multi-row to reduce round-trips.
	// Chunk size tuned to 2000 rows per batch.
	const chunkSize = 2000
	for start := 0; start < len(txns); start += chunkSize {
		end := start + chunkSize
		if end > len(txns) { end = len(txns) }

		// Build VALUES list
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*7)
		for _, t := range txns[start:end] {
			if t == nil || t.OrganizationID == "" || t.Timestamp == 0 { continue }
			eventID := fmt.Sprintf("%s-%s-%d", t.OrganizationID, t.AccountID, t.Timestamp)
			values = append(values, "(?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				time.Unix(t.Timestamp, 0),
				t.OrganizationID,
				t.AccountID,
				t.Amount,
				t.Direction,
				t.Currency,
				eventID,
			)
		}
		if len(values) == 0 { continue }
		q := fmt.Sprintf("INSERT INTO %s (ts, org_id, account_id, amount, direction, currency, event_id) VALUES %s", s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	return nil
}

func (s *ClickHouseStorage) Query(ctx context.Context, orgID string, from, to time.Time, limit int) ([]*models.Transaction, error) {
	q := fmt.Sprintf("SELECT org_id, account_id, ts, amount, direction, currency FROM %s WHERE org_id = ? AND ts >= ? AND ts <= ? ORDER BY ts DESC LIMIT ?", s.table)
	rows, err := s.db.QueryContext(ctx, q, orgID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []*models.Transaction
	for rows.Next() {
		var t models.Transaction
		var ts time.Time
		if err := rows.Scan(&t.OrganizationID, &t.AccountID, &ts, &t.Amount, &t.Direction, &t.Currency); err != nil {
			return nil, err
		}
		t.Timestamp = ts.Unix()
		txns = append(txns, &t)
	}
	return txns, rows.Err()
}

func (s *ClickHouseStorage) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseStorage) Close() error {
	return nil // Managed by pkg
}

// KafkaPublisher implements Publisher for Kafka.
type KafkaPublisher struct {
	producer      *pkgkafka.Producer
	topic         string
	forecastTopic string
}

// NewKafkaPublisher creates Kafka publisher.
func NewKafkaPublisher(producer *pkgkafka.Producer, topic, forecastTopic string) repository.Publisher {
	return &KafkaPublisher{producer: producer, topic: topic, forecastTopic: forecastTopic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, t *models.Transaction) error {
	return p.producer.Publish(ctx, p.topic, []byte(t.OrganizationID), transactionPayload(t))
}

func (p *KafkaPublisher) PublishBatch(ctx context.Context, txns []*models.Transaction) error {
	if len(txns) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(txns))
	for i, t := range txns {
		msgs[i] = pkgkafka.Message{
			Key:   []byte(t.OrganizationID),
			Value: transactionPayload(t),
		}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

// PublishForecast emits a forecast.generated event keyed by organization so
// downstream consumers see per-org ordering.
func (p *KafkaPublisher) PublishForecast(ctx context.Context, f *models.Forecast) error {
	payload := map[string]interface{}{
		"event":               "forecast.generated",
		"forecast_id":         f.ID,
		"org_id":              f.OrganizationID,
		"target_date":         f.TargetDate.Format("2006-01-02"),
		"horizon_days":        f.HorizonDays,
		"regime":              string(f.Regime),
		"regime_confidence":   f.RegimeConfidence,
		"p5":                  f.Prediction.P5.String(),
		"p50":                 f.Prediction.P50.String(),
		"p95":                 f.Prediction.P95.String(),
		"inflow_p50":          f.Prediction.InflowP50.String(),
		"outflow_p50":         f.Prediction.OutflowP50.String(),
		"confidence":          f.Prediction.Confidence.String(),
		"steady_state_weight": f.Prediction.SteadyStateWeight.String(),
		"crisis_weight":       f.Prediction.CrisisWeight.String(),
		"model_name":          f.Prediction.ModelName,
		"model_version":       f.Prediction.ModelVersion,
		"generated_at":        f.GeneratedAt.UTC().Format(time.RFC3339),
	}
	return p.producer.Publish(ctx, p.forecastTopic, []byte(f.OrganizationID), payload)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

func transactionPayload(t *models.Transaction) map[string]interface{} {
	return map[string]interface{}{
		"org_id":     t.OrganizationID,
		"account_id": t.AccountID,
		"t":          t.Timestamp,
		"amount":     t.Amount,
		"direction":  t.Direction,
		"currency":   t.Currency,
	}
}
