package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"FlowCast/internal/domain/models"
	pkgch "FlowCast/pkg/clickhouse"
	applogger "FlowCast/pkg/logger"
)

// CHFeatureStore implements FeatureStore backed by ClickHouse. Daily flows
// are aggregated on read from the raw transaction table so ingestion stays
// write-only.
type CHFeatureStore struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewCHFeatureStore(ch *pkgch.Client) *CHFeatureStore {
	return &CHFeatureStore{db: ch.DB()}
}

// SetLogger injects a structured logger.
func (s *CHFeatureStore) SetLogger(l *applogger.Logger) { s.l = l }

const dailyFlowsQuery = `
        SELECT
            toDate(ts) AS day,
            org_id,
            sum(amount) AS net,
            sumIf(amount, amount >= 0) AS inflow,
            -sumIf(amount, amount < 0) AS outflow,
            count() AS cnt,
            stddevSamp(amount) AS std
        FROM flowcast.transactions_raw
        WHERE org_id = ? AND ts >= ? AND ts <= ?
        GROUP BY day, org_id
        ORDER BY day ASC
    `

func (s *CHFeatureStore) GetDailyFlows(ctx context.Context, orgID string, from, to time.Time) ([]models.DailyFlow, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, dailyFlowsQuery, orgID, from, to)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse daily_flows query error",
				applogger.String("org_id", orgID),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("get daily flows: %w", err)
	}
	defer rows.Close()

	out := make([]models.DailyFlow, 0, 256)
	for rows.Next() {
		var f models.DailyFlow
		var cnt uint64
		var std sql.NullFloat64
		if err := rows.Scan(&f.Date, &f.OrgID, &f.Net, &f.Inflow, &f.Outflow, &cnt, &std); err != nil {
			if s.l != nil {
				s.l.Error("clickhouse daily_flows scan error",
					applogger.String("org_id", orgID),
					applogger.Error(err),
				)
			}
			return nil, fmt.Errorf("scan daily flow: %w", err)
		}
		f.Count = int(cnt)
		if std.Valid {
			f.Std = std.Float64
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	if s.l != nil {
		s.l.Info("clickhouse daily_flows ok",
			applogger.String("org_id", orgID),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}

func (s *CHFeatureStore) GetLatestNFlows(ctx context.Context, orgID string, n int) ([]models.DailyFlow, error) {
	const q = `
        SELECT day, org_id, net, inflow, outflow, cnt, std FROM (
            SELECT
                toDate(ts) AS day,
                org_id,
                sum(amount) AS net,
                sumIf(amount, amount >= 0) AS inflow,
                -sumIf(amount, amount < 0) AS outflow,
                count() AS cnt,
                stddevSamp(amount) AS std
            FROM flowcast.transactions_raw
            WHERE org_id = ?
            GROUP BY day, org_id
            ORDER BY day DESC
            LIMIT ?
        )
        ORDER BY day ASC
    `
	rows, err := s.db.QueryContext(ctx, q, orgID, n)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse latest_flows query error",
				applogger.String("org_id", orgID),
				applogger.Int("limit", n),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("get latest flows: %w", err)
	}
	defer rows.Close()

	out := make([]models.DailyFlow, 0, n)
	for rows.Next() {
		var f models.DailyFlow
		var cnt uint64
		var std sql.NullFloat64
		if err := rows.Scan(&f.Date, &f.OrgID, &f.Net, &f.Inflow, &f.Outflow, &cnt, &std); err != nil {
			return nil, fmt.Errorf("scan daily flow: %w", err)
		}
		f.Count = int(cnt)
		if std.Valid {
			f.Std = std.Float64
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// CountPositions reports how many position snapshots the organization has.
// Training is gated on this count.
func (s *CHFeatureStore) CountPositions(ctx context.Context, orgID string) (int, error) {
	const q = `SELECT count() FROM flowcast.positions WHERE org_id = ?`
	var cnt uint64
	if err := s.db.QueryRowContext(ctx, q, orgID).Scan(&cnt); err != nil {
		if s.l != nil {
			s.l.Error("clickhouse count_positions error",
				applogger.String("org_id", orgID),
				applogger.Error(err),
			)
		}
		return 0, fmt.Errorf("count positions: %w", err)
	}
	return int(cnt), nil
}

// CHForecastStore persists generated forecasts.
type CHForecastStore struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewCHForecastStore(ch *pkgch.Client) *CHForecastStore {
	return &CHForecastStore{db: ch.DB()}
}

// SetLogger injects a structured logger.
func (s *CHForecastStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHForecastStore) Save(ctx context.Context, f *models.Forecast) error {
	const q = `
        INSERT INTO flowcast.forecasts_daily
            (id, org_id, forecast_date, target_date, horizon_days,
             regime, regime_confidence, vix, spread,
             p5, p50, p95, inflow_p50, outflow_p50,
             steady_weight, crisis_weight, confidence,
             model_name, model_version, generated_at, generation_ms)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	_, err := s.db.ExecContext(ctx, q,
		f.ID,
		f.OrganizationID,
		f.ForecastDate,
		f.TargetDate,
		f.HorizonDays,
		string(f.Regime),
		f.RegimeConfidence,
		f.VIXAtForecast,
		f.SpreadAtForecast,
		f.Prediction.P5.String(),
		f.Prediction.P50.String(),
		f.Prediction.P95.String(),
		f.Prediction.InflowP50.String(),
		f.Prediction.OutflowP50.String(),
		f.Prediction.SteadyStateWeight.String(),
		f.Prediction.CrisisWeight.String(),
		f.Prediction.Confidence.String(),
		f.Prediction.ModelName,
		f.Prediction.ModelVersion,
		f.GeneratedAt,
		f.GenerationMs,
	)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse save_forecast error",
				applogger.String("org_id", f.OrganizationID),
				applogger.Error(err),
			)
		}
		return fmt.Errorf("save forecast: %w", err)
	}
	return nil
}

// GetDaily returns the latest persisted forecast for an org and target date,
// or nil when none exists.
func (s *CHForecastStore) GetDaily(ctx context.Context, orgID string, targetDate time.Time) (*models.Forecast, error) {
	const q = `
        SELECT id, org_id, forecast_date, target_date, horizon_days,
               regime, regime_confidence, vix, spread,
               toFloat64(p5), toFloat64(p50), toFloat64(p95),
               toFloat64(inflow_p50), toFloat64(outflow_p50),
               toFloat64(steady_weight), toFloat64(crisis_weight), toFloat64(confidence),
               model_name, model_version, generated_at, generation_ms
        FROM flowcast.forecasts_daily
        WHERE org_id = ? AND target_date = ?
        ORDER BY generated_at DESC
        LIMIT 1
    `
	row := s.db.QueryRowContext(ctx, q, orgID, targetDate)

	var f models.Forecast
	var regime string
	var p5, p50, p95, inflow, outflow, ws, wc, conf float64
	err := row.Scan(
		&f.ID, &f.OrganizationID, &f.ForecastDate, &f.TargetDate, &f.HorizonDays,
		&regime, &f.RegimeConfidence, &f.VIXAtForecast, &f.SpreadAtForecast,
		&p5, &p50, &p95, &inflow, &outflow, &ws, &wc, &conf,
		&f.Prediction.ModelName, &f.Prediction.ModelVersion, &f.GeneratedAt, &f.GenerationMs,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get daily forecast: %w", err)
	}
	f.Regime = models.ParseRegime(regime)
	f.Prediction.P5 = decimalFrom(p5, 2)
	f.Prediction.P50 = decimalFrom(p50, 2)
	f.Prediction.P95 = decimalFrom(p95, 2)
	f.Prediction.InflowP50 = decimalFrom(inflow, 2)
	f.Prediction.OutflowP50 = decimalFrom(outflow, 2)
	f.Prediction.SteadyStateWeight = decimalFrom(ws, 2)
	f.Prediction.CrisisWeight = decimalFrom(wc, 2)
	f.Prediction.Confidence = decimalFrom(conf, 4)
	return &f, nil
}
