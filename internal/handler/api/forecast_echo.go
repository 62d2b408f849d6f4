package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	models "FlowCast/internal/domain/models"
	"FlowCast/internal/service/metrics"
	"FlowCast/internal/service/ratelimit"
	"FlowCast/internal/usecase"
	pkgcache "FlowCast/pkg/cache"
	xhttp "FlowCast/pkg/http"
	xlogger "FlowCast/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Ingestor accepts transactions and routes them to the configured backend.
type Ingestor interface {
	ProcessBatch(ctx context.Context, txns []*models.Transaction) (int, error)
}

// ForecastEchoHandler implements Echo-based HTTP handlers following Clean Architecture.
type ForecastEchoHandler struct {
	logger   *xlogger.Logger
	forecast *usecase.ForecastUseCase
	training *usecase.TrainingUseCase
	flows    *usecase.FlowsUseCase
	cache    pkgcache.Service
	ingest   Ingestor
	rl       *ratelimit.Limiter

	regimeTTL time.Duration
}

func NewForecastEchoHandler(logger *xlogger.Logger, fc *usecase.ForecastUseCase, tr *usecase.TrainingUseCase, fl *usecase.FlowsUseCase) *ForecastEchoHandler {
	metrics.Register()
	return &ForecastEchoHandler{
		logger:    logger,
		forecast:  fc,
		training:  tr,
		flows:     fl,
		rl:        ratelimit.New(),
		regimeTTL: 5 * time.Minute,
	}
}

// SetCache enables regime response caching.
func (h *ForecastEchoHandler) SetCache(c pkgcache.Service) { h.cache = c }

// SetRegimeTTL overrides the regime cache TTL.
func (h *ForecastEchoHandler) SetRegimeTTL(ttl time.Duration) {
	if ttl > 0 {
		h.regimeTTL = ttl
	}
}

// SetIngest enables the transaction ingestion endpoint.
func (h *ForecastEchoHandler) SetIngest(i Ingestor) { h.ingest = i }

func (h *ForecastEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/transactions", h.Ingest)
	g.POST("/forecasts", h.Generate)
	g.GET("/forecasts/daily", h.Daily)
	g.GET("/regime", h.Regime)
	g.POST("/simulate", h.Simulate)
	g.POST("/train", h.Train)
	g.GET("/flows", h.Flows)
}

func (h *ForecastEchoHandler) Ingest(c echo.Context) error {
	start := time.Now()
	endpoint := "transactions"
	defer func() { metrics.ForecastLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.IngestTransactionsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.rl.Allow(c.RealIP()+":transactions", 20, 10) {
		h.logger.Warn("transactions rate_limited", xlogger.String("remote", c.RealIP()))
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limited"))
	}
	if h.ingest == nil {
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("ingestion not configured"))
	}

	txns := make([]*models.Transaction, 0, len(req.Transactions))
	for _, in := range req.Transactions {
		dir := in.Direction
		if dir == "" {
			dir = models.DirectionInflow
			if in.Amount < 0 {
				dir = models.DirectionOutflow
			}
		}
		txns = append(txns, &models.Transaction{
			Timestamp:      in.Timestamp,
			OrganizationID: in.OrganizationID,
			AccountID:      in.AccountID,
			Amount:         in.Amount,
			Direction:      dir,
			Currency:       in.Currency,
		})
	}

	accepted, err := h.ingest.ProcessBatch(c.Request().Context(), txns)
	if err != nil {
		metrics.ForecastErrors.WithLabelValues(endpoint).Inc()
		h.logger.Error("ingest usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.CreatedResponse(c, map[string]int{
		"received": len(txns),
		"accepted": accepted,
	})
}

func (h *ForecastEchoHandler) Generate(c echo.Context) error {
	start := time.Now()
	endpoint := "forecasts"
	defer func() { metrics.ForecastLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.GenerateForecastRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.rl.Allow(c.RealIP()+":forecasts", 10, 5) {
		h.logger.Warn("forecasts rate_limited", xlogger.String("remote", c.RealIP()))
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limited"))
	}

	res, err := h.forecast.Generate(c.Request().Context(), req)
	if err != nil {
		metrics.ForecastErrors.WithLabelValues(endpoint).Inc()
		h.logger.Error("generate usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.CreatedResponse(c, res)
}

func (h *ForecastEchoHandler) Daily(c echo.Context) error {
	start := time.Now()
	endpoint := "forecasts_daily"
	defer func() { metrics.ForecastLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.DailyForecastRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.forecast.GetDaily(c.Request().Context(), req.OrganizationID, req.TargetDate)
	if err != nil {
		metrics.ForecastErrors.WithLabelValues(endpoint).Inc()
		h.logger.Error("daily usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	if res == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no forecast for %s", req.OrganizationID))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *ForecastEchoHandler) Regime(c echo.Context) error {
	start := time.Now()
	endpoint := "regime"
	defer func() { metrics.ForecastLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.RegimeQueryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	cacheKey := regimeCacheKey(req.VIX, req.Spread)
	if h.cache != nil {
		var cached usecase.RegimeResult
		err := h.cache.Get(c.Request().Context(), cacheKey, &cached)
		switch {
		case err == nil:
			h.logger.Debug("regime cache_hit", xlogger.String("key", cacheKey))
			return xhttp.SuccessResponse(c, &cached)
		case !errors.Is(err, pkgcache.ErrCacheMiss):
			h.logger.Warn("regime cache_get_error", xlogger.Error(err))
		}
	}

	res := h.forecast.Regime(req.VIX, req.Spread)
	if h.cache != nil {
		if err := h.cache.Set(c.Request().Context(), cacheKey, res, h.regimeTTL); err != nil {
			h.logger.Warn("regime cache_set_error", xlogger.Error(err))
		}
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *ForecastEchoHandler) Simulate(c echo.Context) error {
	start := time.Now()
	endpoint := "simulate"
	defer func() { metrics.ForecastLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.SimulateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.rl.Allow(c.RealIP()+":simulate", 3, 1) {
		h.logger.Warn("simulate rate_limited", xlogger.String("remote", c.RealIP()))
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limited"))
	}

	res, err := h.forecast.Simulate(c.Request().Context(), req)
	if err != nil {
		metrics.ForecastErrors.WithLabelValues(endpoint).Inc()
		h.logger.Error("simulate usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *ForecastEchoHandler) Train(c echo.Context) error {
	start := time.Now()
	endpoint := "train"
	defer func() { metrics.ForecastLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.TrainRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.rl.Allow(c.RealIP()+":train", 2, 0.2) {
		h.logger.Warn("train rate_limited", xlogger.String("remote", c.RealIP()))
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limited"))
	}

	res, err := h.training.Enqueue(c.Request().Context(), req.OrganizationID, req.LookbackDays)
	if err != nil {
		metrics.ForecastErrors.WithLabelValues(endpoint).Inc()
		h.logger.Error("train usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *ForecastEchoHandler) Flows(c echo.Context) error {
	start := time.Now()
	endpoint := "flows"
	defer func() { metrics.ForecastLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.FlowsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.flows.GetFlows(c.Request().Context(), usecase.GetFlowsParams{
		OrganizationID: req.OrganizationID,
		Days:           req.Days,
	})
	if err != nil {
		metrics.ForecastErrors.WithLabelValues(endpoint).Inc()
		h.logger.Error("flows usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func regimeCacheKey(vix, spread *float64) string {
	key := "regime:live"
	if vix != nil || spread != nil {
		v, s := 0.0, 0.0
		if vix != nil {
			v = *vix
		}
		if spread != nil {
			s = *spread
		}
		key = fmt.Sprintf("regime:%.2f:%.2f", v, s)
	}
	return key
}
