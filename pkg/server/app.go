package server

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	domrepo "FlowCast/internal/domain/repository"
	domsvc "FlowCast/internal/domain/service"
	fcast "FlowCast/internal/forecast"
	"FlowCast/internal/handler/api"
	mid "FlowCast/internal/middleware"
	"FlowCast/internal/repository"
	"FlowCast/internal/usecase"
	pkgcache "FlowCast/pkg/cache"
	pkgch "FlowCast/pkg/clickhouse"
	"FlowCast/pkg/config"
	xhttp "FlowCast/pkg/http"
	pkgkafka "FlowCast/pkg/kafka"
	applogger "FlowCast/pkg/logger"
	pkgqueue "FlowCast/pkg/queue"
	xutil "FlowCast/pkg/util"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg         *config.Config
	collector   *usecase.IndicatorCollector
	consumer    *pkgkafka.Consumer
	kh          pkgkafka.MessageHandler
	chClient    *pkgch.Client
	engine      *fcast.ForecastEngine
	detector    domsvc.RegimeDetector
	state       *usecase.IndicatorState
	publisher   domrepo.Publisher
	metrics     domrepo.Metrics
	httpServer  *xhttp.Server
	httpHandler xhttp.Handler
	logger      *applogger.Logger
	queueProd   *pkgqueue.RedisQueue
	queueCons   *pkgqueue.RedisQueue
	logQueue    *pkgqueue.RedisQueue
	respCache   *pkgcache.RedisCache
	pipeline    *mid.IngestPipeline
	TxProc      *usecase.TransactionProcessor
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	collector *usecase.IndicatorCollector,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	chClient *pkgch.Client,
	engine *fcast.ForecastEngine,
	detector domsvc.RegimeDetector,
	state *usecase.IndicatorState,
	publisher domrepo.Publisher,
	metrics domrepo.Metrics,
) *App {
	return &App{
		cfg:       cfg,
		collector: collector,
		consumer:  consumer,
		kh:        kh,
		chClient:  chClient,
		engine:    engine,
		detector:  detector,
		state:     state,
		publisher: publisher,
		metrics:   metrics,
	}
}

// SetHTTPHandler allows DI to inject an HTTP handler.
func (a *App) SetHTTPHandler(h xhttp.Handler) { a.httpHandler = h }

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// init app logger (console info by default)
	l, _ := applogger.New(&applogger.Config{Level: "info", Format: "console", Output: "stdout"})
	a.logger = l

	// Models load before any listener so request paths never race on
	// initialization.
	if err := a.engine.Load(); err != nil {
		l.Error("model load failed", applogger.Error(err))
		return err
	}
	l.Info("forecast engine loaded", applogger.String("version", a.cfg.Forecast.ModelVersion))

	httpHandler := a.httpHandler
	if httpHandler == nil && a.chClient != nil {
		featureStore := repository.NewCHFeatureStore(a.chClient)
		featureStore.SetLogger(l)
		forecastStore := repository.NewCHForecastStore(a.chClient)
		forecastStore.SetLogger(l)

		fc := usecase.NewForecastUseCase(
			forecastStore,
			featureStore,
			a.engine,
			a.detector,
			a.engine.Simulator(),
			a.state,
			a.metrics,
		)
		fc.SetLogger(l)
		fc.SetCacheTTL(a.cfg.Forecast.CacheTTL.Forecast)
		fc.SetPublisher(a.publisher)

		tr := usecase.NewTrainingUseCase(featureStore, a.engine, a.metrics)
		tr.SetLogger(l)

		fl := usecase.NewFlowsUseCase(featureStore)

		var respCache pkgcache.Service = pkgcache.NewMemoryCache()
		if a.cfg.Forecast.Redis.Enabled {
			host, port := splitHostPort(a.cfg.Forecast.Redis.Addr)
			rc, rerr := pkgcache.NewRedisCache(
				pkgcache.WithRedisHost(host),
				pkgcache.WithRedisPort(port),
				pkgcache.WithRedisPassword(a.cfg.Forecast.Redis.Password),
				pkgcache.WithRedisDB(a.cfg.Forecast.Redis.DB),
			)
			if rerr != nil {
				l.Warn("redis unavailable, caching in memory only", applogger.Error(rerr))
			} else {
				respCache = pkgcache.NewLayeredCache(rc)
				a.respCache = rc

				a.queueProd = pkgqueue.NewRedisPublisher(l, rc.Client(),
					pkgqueue.WithKeyPrefix("flowcast:training"))
				a.queueCons = pkgqueue.NewRedisConsumer(l,
					&pkgqueue.QueueConfig{Workers: 2, RetryLimit: 3, RetryDelay: 30 * time.Second},
					rc.Client(),
					[]pkgqueue.Job{usecase.NewTrainingJob(tr)},
					pkgqueue.WithKeyPrefix("flowcast:training"))
				if err := a.queueCons.Start(); err != nil {
					l.Warn("training queue start failed, training runs inline", applogger.Error(err))
				} else {
					tr.SetQueue(a.queueProd)
				}

				// aggregate repeated error logs onto a Redis stream
				a.logQueue = pkgqueue.NewRedisPublisher(l, rc.Client(),
					pkgqueue.WithKeyPrefix("flowcast:logs"))
				l.AddCollector(&applogger.CollectionConfig{
					TimeInterval:   30 * time.Second,
					CountThreshold: 100,
					Topic:          "log.error_summary",
					Publisher:      a.logQueue,
				})
			}
		}
		fc.SetCache(respCache)
		tr.SetCache(respCache)

		h := api.NewForecastEchoHandler(l, fc, tr, fl)
		h.SetCache(respCache)
		h.SetRegimeTTL(a.cfg.Forecast.CacheTTL.Regime)
		if a.TxProc != nil {
			a.pipeline = mid.NewIngestPipeline(a.TxProc, a.metrics,
				mid.WithMaxRPS(200),
				mid.WithBufferSize(2000),
			)
			a.pipeline.Start(ctx)
			h.SetIngest(a.pipeline)
		}
		httpHandler = h
	}

	a.httpServer = xhttp.NewServer(httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	// Start indicator collector
	go func() {
		if err := a.collector.Start(ctx); err != nil {
			l.Error("collector error", applogger.Error(err))
		}
	}()
	l.Info("indicator collector started", applogger.Strings("indicators", a.cfg.MarketData.Indicators))

	// Start consumer if configured
	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		l.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	// Start HTTP server
	if err := a.httpServer.Start(); err != nil {
		l.Error("http server start error", applogger.Error(err))
		return err
	}

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	l.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	l := a.logger
	if l == nil {
		var err error
		l, err = applogger.New(&applogger.Config{Level: "info", Format: "console", Output: "stdout"})
		if err != nil {
			log.Printf("failed to create logger: %v", err)
			return err
		}
	}
	l.Info("shutting down...")

	// Stop indicator stream
	if err := a.collector.Shutdown(ctx); err != nil {
		l.Warn("collector stop error", applogger.Error(err))
	}

	// Shutdown HTTP server
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		l.Error("http shutdown error", applogger.Error(err))
	}

	// Stop training queue workers before closing stores they write to
	if a.queueCons != nil {
		if err := a.queueCons.Stop(shutdownCtx); err != nil {
			l.Warn("training queue stop error", applogger.Error(err))
		}
	}
	if a.queueProd != nil {
		if err := a.queueProd.Stop(shutdownCtx); err != nil {
			l.Warn("training queue producer stop error", applogger.Error(err))
		}
	}

	// Flush aggregated logs, then stop their publisher
	l.RemoveCollector()
	if a.logQueue != nil {
		if err := a.logQueue.Stop(shutdownCtx); err != nil {
			l.Warn("log queue stop error", applogger.Error(err))
		}
	}

	// Stop consumer
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	// Stop the ingest pipeline before its downstream processor
	if a.pipeline != nil {
		a.pipeline.Stop()
	}

	// Close transaction processor resources (publisher/storage)
	if a.TxProc != nil {
		a.TxProc.Close()
	}

	// Close infrastructure clients
	if a.respCache != nil {
		if err := a.respCache.Close(); err != nil {
			l.Warn("redis close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	l.Info("shutdown complete")
	return nil
}

// splitHostPort parses an addr like "localhost:6379", defaulting the port.
func splitHostPort(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 6379
	}
	return host, xutil.ParseIntDefault(portStr, 6379)
}
