package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"FlowCast/internal/domain/models"
	domrepo "FlowCast/internal/domain/repository"
	domsvc "FlowCast/internal/domain/service"
	fcast "FlowCast/internal/forecast"
	feats "FlowCast/internal/services/features"
	pkgcache "FlowCast/pkg/cache"
	applogger "FlowCast/pkg/logger"
	xutil "FlowCast/pkg/util"
)

const (
	defaultHistoryDays     = 60
	defaultIndicatorMaxAge = 15 * time.Minute
	defaultForecastTTL     = time.Hour
)

// ForecastUseCase orchestrates forecast generation: regime detection,
// feature engineering, model prediction, persistence, and event publishing.
type ForecastUseCase struct {
	forecasts  domrepo.ForecastStore
	features   domrepo.FeatureStore
	engine     domsvc.Engine
	detector   domsvc.RegimeDetector
	sim        domsvc.CrisisSimulator
	indicators *IndicatorState
	pub        domrepo.Publisher
	cache      pkgcache.Service
	metrics    domrepo.Metrics
	l          *applogger.Logger

	cacheTTL        time.Duration
	indicatorMaxAge time.Duration
	historyDays     int
}

func NewForecastUseCase(
	forecasts domrepo.ForecastStore,
	features domrepo.FeatureStore,
	engine domsvc.Engine,
	detector domsvc.RegimeDetector,
	sim domsvc.CrisisSimulator,
	indicators *IndicatorState,
	metrics domrepo.Metrics,
) *ForecastUseCase {
	return &ForecastUseCase{
		forecasts:       forecasts,
		features:        features,
		engine:          engine,
		detector:        detector,
		sim:             sim,
		indicators:      indicators,
		metrics:         metrics,
		cacheTTL:        defaultForecastTTL,
		indicatorMaxAge: defaultIndicatorMaxAge,
		historyDays:     defaultHistoryDays,
	}
}

// SetLogger injects a structured logger.
func (uc *ForecastUseCase) SetLogger(l *applogger.Logger) { uc.l = l }

// SetCache enables response caching.
func (uc *ForecastUseCase) SetCache(c pkgcache.Service) { uc.cache = c }

// SetPublisher enables forecast event publishing.
func (uc *ForecastUseCase) SetPublisher(p domrepo.Publisher) { uc.pub = p }

// SetCacheTTL overrides the forecast cache TTL.
func (uc *ForecastUseCase) SetCacheTTL(ttl time.Duration) {
	if ttl > 0 {
		uc.cacheTTL = ttl
	}
}

// ForecastResult is the API-facing shape of a generated forecast.
type ForecastResult struct {
	ForecastID          string          `json:"forecast_id"`
	OrganizationID      string          `json:"organization_id"`
	TargetDate          string          `json:"target_date"`
	HorizonDays         int             `json:"horizon_days"`
	Regime              string          `json:"regime"`
	RegimeConfidence    float64         `json:"regime_confidence"`
	SyntheticIndicators bool            `json:"synthetic_indicators"`
	VIX                 float64         `json:"vix"`
	CreditSpread        float64         `json:"credit_spread"`
	P5                  decimal.Decimal `json:"p5"`
	P50                 decimal.Decimal `json:"p50"`
	P95                 decimal.Decimal `json:"p95"`
	InflowP50           decimal.Decimal `json:"inflow_p50"`
	OutflowP50          decimal.Decimal `json:"outflow_p50"`
	SteadyStateWeight   decimal.Decimal `json:"steady_state_weight"`
	CrisisWeight        decimal.Decimal `json:"crisis_weight"`
	Confidence          decimal.Decimal `json:"confidence"`
	ModelName           string          `json:"model_name"`
	ModelVersion        string          `json:"model_version"`
	GeneratedAt         time.Time       `json:"generated_at"`
	Cached              bool            `json:"cached,omitempty"`
}

// RegimeResult is the API-facing shape of a regime classification.
type RegimeResult struct {
	Regime       string  `json:"regime"`
	Confidence   float64 `json:"confidence"`
	VIX          float64 `json:"vix"`
	CreditSpread float64 `json:"credit_spread"`
	Synthetic    bool    `json:"synthetic"`
}

// SimulateResult is the API-facing shape of a Monte Carlo run.
type SimulateResult struct {
	BasePrediction float64 `json:"base_prediction"`
	Regime         string  `json:"regime"`
	Simulations    int     `json:"n_simulations"`
	Mean           float64 `json:"mean"`
	Std            float64 `json:"std"`
	P1             float64 `json:"p1"`
	P5             float64 `json:"p5"`
	P50            float64 `json:"p50"`
	P95            float64 `json:"p95"`
	P99            float64 `json:"p99"`
	VaR95          float64 `json:"var_95"`
	CVaR95         float64 `json:"cvar_95"`
}

// Generate produces (or returns the cached) blended forecast for one org and
// target date.
func (uc *ForecastUseCase) Generate(ctx context.Context, req *models.GenerateForecastRequest) (*ForecastResult, error) {
	start := time.Now()

	targetDate, err := resolveTargetDate(req.TargetDate)
	if err != nil {
		return nil, err
	}

	cacheKey := forecastCacheKey(req.OrganizationID, targetDate)
	if uc.cache != nil {
		var cached ForecastResult
		if cerr := uc.cache.Get(ctx, cacheKey, &cached); cerr == nil {
			cached.Cached = true
			if uc.l != nil {
				uc.l.Debug("forecast cache_hit", applogger.String("key", cacheKey))
			}
			return &cached, nil
		}
	}

	cls := uc.classify(req.VIX, req.Spread)
	uc.metrics.RecordRegime(string(cls.Regime), cls.Confidence)

	matrix := uc.buildMatrix(ctx, req.OrganizationID)

	pred, err := uc.engine.Predict(ctx, matrix, cls, targetDate, req.HorizonDays)
	if err != nil {
		uc.metrics.RecordError("forecast")
		return nil, fmt.Errorf("generate forecast: %w", err)
	}

	f := &models.Forecast{
		ID:               uuid.NewString(),
		OrganizationID:   req.OrganizationID,
		ForecastDate:     time.Now().UTC(),
		TargetDate:       targetDate,
		HorizonDays:      req.HorizonDays,
		Regime:           cls.Regime,
		RegimeConfidence: cls.Confidence,
		VIXAtForecast:    cls.VIX,
		SpreadAtForecast: cls.Spread,
		Prediction:       pred,
		GeneratedAt:      time.Now().UTC(),
		GenerationMs:     time.Since(start).Milliseconds(),
	}

	// persistence and publishing are best-effort: the caller still gets the
	// forecast when a sink is down
	if uc.forecasts != nil {
		if serr := uc.forecasts.Save(ctx, f); serr != nil {
			uc.metrics.RecordError("forecast_save")
			if uc.l != nil {
				uc.l.Error("forecast save failed", applogger.Error(serr))
			}
		}
	}
	if uc.pub != nil {
		if perr := uc.pub.PublishForecast(ctx, f); perr != nil {
			uc.metrics.RecordError("forecast_publish")
			if uc.l != nil {
				uc.l.Warn("forecast publish failed", applogger.Error(perr))
			}
		}
	}

	uc.metrics.RecordForecast(string(cls.Regime), pred.ModelName != fcast.ModelNameHybrid)
	uc.metrics.RecordLatency("forecast_generate", time.Since(start).Seconds())

	res := forecastResultFrom(f, cls)
	if uc.cache != nil {
		if cerr := uc.cache.Set(ctx, cacheKey, res, uc.cacheTTL); cerr != nil && uc.l != nil {
			uc.l.Warn("forecast cache_set_error", applogger.Error(cerr))
		}
	}
	return res, nil
}

// GetDaily returns a previously persisted forecast, or nil when none exists.
func (uc *ForecastUseCase) GetDaily(ctx context.Context, orgID, targetDate string) (*ForecastResult, error) {
	date, err := resolveTargetDate(targetDate)
	if err != nil {
		return nil, err
	}
	f, err := uc.forecasts.GetDaily(ctx, orgID, date)
	if err != nil {
		uc.metrics.RecordError("forecast_get")
		return nil, fmt.Errorf("get daily forecast: %w", err)
	}
	if f == nil {
		return nil, nil
	}
	cls := models.Classification{
		Regime:     f.Regime,
		Confidence: f.RegimeConfidence,
		VIX:        f.VIXAtForecast,
		Spread:     f.SpreadAtForecast,
	}
	return forecastResultFrom(f, cls), nil
}

// Regime classifies the current (or supplied) market indicators.
func (uc *ForecastUseCase) Regime(vix, spread *float64) *RegimeResult {
	cls := uc.classify(vix, spread)
	uc.metrics.RecordRegime(string(cls.Regime), cls.Confidence)
	return &RegimeResult{
		Regime:       string(cls.Regime),
		Confidence:   cls.Confidence,
		VIX:          cls.VIX,
		CreditSpread: cls.Spread,
		Synthetic:    cls.Synthetic,
	}
}

// Simulate runs a Monte Carlo stress simulation.
func (uc *ForecastUseCase) Simulate(ctx context.Context, req *models.SimulateRequest) (*SimulateResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	regime := models.ParseRegime(req.Regime)
	mc, err := uc.sim.SimulateMonteCarlo(req.BasePrediction, regime, req.Simulations)
	if err != nil {
		uc.metrics.RecordError("simulate")
		return nil, err
	}
	return &SimulateResult{
		BasePrediction: req.BasePrediction,
		Regime:         string(mc.Regime),
		Simulations:    mc.N,
		Mean:           mc.Mean,
		Std:            mc.Std,
		P1:             mc.P1,
		P5:             mc.P5,
		P50:            mc.P50,
		P95:            mc.P95,
		P99:            mc.P99,
		VaR95:          mc.VaR95,
		CVaR95:         mc.CVaR95,
	}, nil
}

// classify resolves indicator inputs: explicit values win, then the live
// stream, then synthesis inside the detector.
func (uc *ForecastUseCase) classify(vix, spread *float64) models.Classification {
	if uc.indicators != nil {
		liveVIX, liveSpread := uc.indicators.Latest(uc.indicatorMaxAge)
		if vix == nil {
			vix = liveVIX
		}
		if spread == nil {
			spread = liveSpread
		}
	}
	return uc.detector.Detect(vix, spread)
}

// buildMatrix loads recent flow history; an unavailable store degrades to a
// demo forecast instead of failing the request.
func (uc *ForecastUseCase) buildMatrix(ctx context.Context, orgID string) *models.FeatureMatrix {
	if uc.features == nil {
		return nil
	}
	flows, err := uc.features.GetLatestNFlows(ctx, orgID, uc.historyDays)
	if err != nil {
		uc.metrics.RecordError("feature_load")
		if uc.l != nil {
			uc.l.Warn("flow history unavailable, degrading to demo",
				applogger.String("org_id", orgID),
				applogger.Error(err),
			)
		}
		return nil
	}
	if len(flows) == 0 {
		return nil
	}
	return feats.BuildMatrix(flows)
}

func forecastResultFrom(f *models.Forecast, cls models.Classification) *ForecastResult {
	return &ForecastResult{
		ForecastID:          f.ID,
		OrganizationID:      f.OrganizationID,
		TargetDate:          f.TargetDate.Format("2006-01-02"),
		HorizonDays:         f.HorizonDays,
		Regime:              string(f.Regime),
		RegimeConfidence:    f.RegimeConfidence,
		SyntheticIndicators: cls.Synthetic,
		VIX:                 f.VIXAtForecast,
		CreditSpread:        f.SpreadAtForecast,
		P5:                  f.Prediction.P5,
		P50:                 f.Prediction.P50,
		P95:                 f.Prediction.P95,
		InflowP50:           f.Prediction.InflowP50,
		OutflowP50:          f.Prediction.OutflowP50,
		SteadyStateWeight:   f.Prediction.SteadyStateWeight,
		CrisisWeight:        f.Prediction.CrisisWeight,
		Confidence:          f.Prediction.Confidence,
		ModelName:           f.Prediction.ModelName,
		ModelVersion:        f.Prediction.ModelVersion,
		GeneratedAt:         f.GeneratedAt,
	}
}

func forecastCacheKey(orgID string, targetDate time.Time) string {
	return pkgcache.GenerateKeyWithParams("forecast", orgID, targetDate.Format("2006-01-02"))
}

// resolveTargetDate parses YYYY-MM-DD, RFC3339, or unix seconds; empty
// defaults to tomorrow. Non-date inputs are truncated to their UTC day.
func resolveTargetDate(s string) (time.Time, error) {
	if s == "" {
		return xutil.DayStart(time.Now()).AddDate(0, 0, 1), nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	if t, ok := xutil.ParseTime(s); ok {
		return xutil.DayStart(t), nil
	}
	return time.Time{}, fmt.Errorf("invalid target_date: %s", s)
}
