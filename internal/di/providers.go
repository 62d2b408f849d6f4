package di

import (
	"context"
	"fmt"
	"time"

	"FlowCast/internal/domain/repository"
	domsvc "FlowCast/internal/domain/service"
	fcast "FlowCast/internal/forecast"
	internalrepo "FlowCast/internal/repository"
	"FlowCast/internal/service/marketdata"
	"FlowCast/internal/usecase"
	pkgch "FlowCast/pkg/clickhouse"
	"FlowCast/pkg/config"
	pkgkafka "FlowCast/pkg/kafka"
	"FlowCast/pkg/metrics"
	"FlowCast/pkg/server"
)

// ProvideClickHouseClient creates a ClickHouse client.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	// Initialize schema
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, []string{
		"CREATE DATABASE IF NOT EXISTS flowcast",
		`CREATE TABLE IF NOT EXISTS flowcast.transactions_raw (
            ts DateTime, org_id String, account_id String,
            amount Float64, direction LowCardinality(String), currency LowCardinality(String),
            event_id String
        ) ENGINE=ReplacingMergeTree ORDER BY (org_id, ts, event_id)`,
		`CREATE TABLE IF NOT EXISTS flowcast.positions (
            date Date, org_id String, account_id String,
            balance Float64, asset_class LowCardinality(String)
        ) ENGINE=ReplacingMergeTree ORDER BY (org_id, date, account_id)`,
		`CREATE TABLE IF NOT EXISTS flowcast.forecasts_daily (
            id String, org_id String, forecast_date DateTime, target_date Date, horizon_days UInt8,
            regime LowCardinality(String), regime_confidence Float64, vix Float64, spread Float64,
            p5 Decimal(18,2), p50 Decimal(18,2), p95 Decimal(18,2),
            inflow_p50 Decimal(18,2), outflow_p50 Decimal(18,2),
            steady_weight Decimal(6,2), crisis_weight Decimal(6,2), confidence Decimal(8,4),
            model_name LowCardinality(String), model_version LowCardinality(String),
            generated_at DateTime, generation_ms Int64
        ) ENGINE=MergeTree ORDER BY (org_id, target_date, generated_at)`,
	}); err != nil {
		_ = client.Close() // cannot log here (DI layer no logger); propagate error
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	return producer, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideTransactionStorage creates ClickHouse storage repository.
func ProvideTransactionStorage(chClient *pkgch.Client, cfg *config.Config) repository.Storage {
	return internalrepo.NewClickHouseStorage(chClient.DB(), cfg.ClickHouse.Database+".transactions_raw")
}

// ProvideTransactionPublisher creates Kafka publisher repository.
func ProvideTransactionPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topic, cfg.Kafka.ForecastTopic)
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideKafkaTransactionsHandler registers handler for the transactions topic.
func ProvideKafkaTransactionsHandler(store repository.Storage, metrics repository.Metrics, cfg *config.Config) *usecase.KafkaTransactionsHandler {
	return usecase.NewKafkaTransactionsHandler(cfg.Kafka.Topic, store, metrics)
}

// ProvideIndicatorStream creates the market data WebSocket stream.
func ProvideIndicatorStream(cfg *config.Config) repository.IndicatorStream {
	return marketdata.New(
		cfg.MarketData.APIKey,
		cfg.MarketData.WebSocketURL,
		cfg.MarketData.Indicators,
		cfg.MarketData.ReconnectDelay,
		cfg.MarketData.PingInterval,
	)
}

// ProvideIndicatorFetcher creates the REST quote fallback client.
func ProvideIndicatorFetcher(cfg *config.Config) repository.IndicatorFetcher {
	return marketdata.NewRESTClient(
		cfg.MarketData.RESTURL,
		cfg.MarketData.APIKey,
		cfg.MarketData.Indicators,
	)
}

// ProvideRegimeDetector creates the threshold-based regime detector.
func ProvideRegimeDetector(cfg *config.Config) domsvc.RegimeDetector {
	return fcast.NewDetector(fcast.Thresholds{
		VIXElevated:    cfg.Forecast.Thresholds.VIXElevated,
		VIXCrisis:      cfg.Forecast.Thresholds.VIXCrisis,
		SpreadElevated: cfg.Forecast.Thresholds.SpreadElevated,
		SpreadCrisis:   cfg.Forecast.Thresholds.SpreadCrisis,
	})
}

// ProvideEngine creates the blending forecast engine. Load runs at app
// startup, not here, so wiring stays side-effect free.
func ProvideEngine(cfg *config.Config) *fcast.ForecastEngine {
	return fcast.NewEngine(fcast.EngineConfig{
		ModelVersion:    cfg.Forecast.ModelVersion,
		Quantiles:       cfg.Forecast.Quantiles,
		MinTrainingRows: cfg.Forecast.MinTrainingRows,
	}, nil)
}

// ProvideIndicatorState creates the shared indicator snapshot holder.
func ProvideIndicatorState() *usecase.IndicatorState {
	return usecase.NewIndicatorState()
}

// ProvideTransactionProcessor creates the transaction processor use case.
func ProvideTransactionProcessor(
	pub repository.Publisher,
	store repository.Storage,
	metrics repository.Metrics,
	cfg *config.Config,
) *usecase.TransactionProcessor {
	return usecase.NewTransactionProcessor(
		pub,
		store,
		metrics,
		cfg.Backend.Type,
		cfg.Backend.BatchSize,
		cfg.Backend.BatchTimeout,
	)
}

// ProvideIndicatorCollector creates the indicator collector use case.
func ProvideIndicatorCollector(
	stream repository.IndicatorStream,
	fetcher repository.IndicatorFetcher,
	state *usecase.IndicatorState,
	detector domsvc.RegimeDetector,
	metrics repository.Metrics,
) *usecase.IndicatorCollector {
	c := usecase.NewIndicatorCollector(stream, state, detector, metrics)
	c.SetFetcher(fetcher)
	return c
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	collector *usecase.IndicatorCollector,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaTransactionsHandler,
	chClient *pkgch.Client,
	engine *fcast.ForecastEngine,
	detector domsvc.RegimeDetector,
	state *usecase.IndicatorState,
	publisher repository.Publisher,
	proc *usecase.TransactionProcessor,
	metrics repository.Metrics,
) *server.App {
	if consumer != nil {
		consumer.WithConsumerHook(pkgkafka.NoopHook{})
	}
	app := server.New(cfg, collector, consumer, kh, chClient, engine, detector, state, publisher, metrics)
	app.TxProc = proc
	return app
}
