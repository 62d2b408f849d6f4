package forecast

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"FlowCast/internal/domain/models"
	"FlowCast/internal/services/features"
)

func testFlows(n int) []models.DailyFlow {
	start := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	flows := make([]models.DailyFlow, 0, n)
	for i := 0; i < n; i++ {
		net := 20000 + 4000*math.Sin(float64(i)/3) + 250*float64(i%5)
		flows = append(flows, models.DailyFlow{
			Date:    start.AddDate(0, 0, i),
			OrgID:   "org-1",
			Net:     net,
			Inflow:  net + 8000,
			Outflow: 8000,
			Count:   10 + i%4,
			Std:     500 + 10*float64(i%7),
		})
	}
	return flows
}

func TestBlendWeightsSumToOne(t *testing.T) {
	regimes := []models.Regime{
		models.RegimeSteadyState,
		models.RegimeElevated,
		models.RegimeCrisis,
		models.Regime("unknown"),
	}
	for _, r := range regimes {
		s, c := blendWeights(r)
		if math.Abs(s+c-1) > 1e-9 {
			t.Fatalf("%s: weights %v+%v do not sum to 1", r, s, c)
		}
		if s <= 0 || c <= 0 {
			t.Fatalf("%s: both weights must be positive, got %v/%v", r, s, c)
		}
	}
	if s, c := blendWeights(models.RegimeCrisis); s != 0.20 || c != 0.80 {
		t.Fatalf("crisis blend: expected 0.20/0.80, got %v/%v", s, c)
	}
}

func TestPredictUntrainedServesDemo(t *testing.T) {
	e := NewEngine(EngineConfig{}, nil)
	cls := models.Classification{Regime: models.RegimeSteadyState}
	date := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	pred, err := e.Predict(context.Background(), nil, cls, date, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pred.ModelName != ModelNameDemo {
		t.Fatalf("untrained engine should report %q, got %q", ModelNameDemo, pred.ModelName)
	}
	if !pred.SteadyStateWeight.Equal(decimal.NewFromFloat(0.90)) {
		t.Fatalf("steady regime weight: expected 0.90, got %s", pred.SteadyStateWeight)
	}
	if !pred.CrisisWeight.Equal(decimal.NewFromFloat(0.10)) {
		t.Fatalf("crisis weight: expected 0.10, got %s", pred.CrisisWeight)
	}
	if pred.P5.GreaterThan(pred.P50) || pred.P50.GreaterThan(pred.P95) {
		t.Fatalf("quantiles out of order: %s / %s / %s", pred.P5, pred.P50, pred.P95)
	}
	conf, _ := pred.Confidence.Float64()
	if conf < 0 || conf > 1 {
		t.Fatalf("confidence out of range: %v", conf)
	}
}

func TestPredictDeterministicWithinDay(t *testing.T) {
	e := NewEngine(EngineConfig{}, nil)
	cls := models.Classification{Regime: models.RegimeElevated}
	date := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	a, err := e.Predict(context.Background(), nil, cls, date, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := e.Predict(context.Background(), nil, cls, date, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !a.P50.Equal(b.P50) || !a.Confidence.Equal(b.Confidence) {
		t.Fatalf("same-day demo forecasts should match: %s vs %s", a.P50, b.P50)
	}
}

func TestPredictRejectsBadHorizon(t *testing.T) {
	e := NewEngine(EngineConfig{}, nil)
	cls := models.Classification{Regime: models.RegimeSteadyState}
	if _, err := e.Predict(context.Background(), nil, cls, time.Now(), 0); err == nil {
		t.Fatalf("expected error for horizon_days=0")
	}
	if _, err := e.Predict(context.Background(), nil, cls, time.Now(), -3); err == nil {
		t.Fatalf("expected error for negative horizon")
	}
}

func TestPredictCancelledContext(t *testing.T) {
	e := NewEngine(EngineConfig{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cls := models.Classification{Regime: models.RegimeSteadyState}
	if _, err := e.Predict(ctx, nil, cls, time.Now(), 7); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestTrainOnDataInsufficientRows(t *testing.T) {
	e := NewEngine(EngineConfig{}, nil)
	report, err := e.TrainOnData(testFlows(10))
	if err != nil {
		t.Fatalf("short history is a status, not an error: %v", err)
	}
	if report.Status != models.TrainingStatusInsufficientData {
		t.Fatalf("expected %s, got %s", models.TrainingStatusInsufficientData, report.Status)
	}
	if report.Rows != 9 {
		t.Fatalf("last day has no label; expected 9 rows, got %d", report.Rows)
	}
	if e.SteadyState() != StateUntrained {
		t.Fatalf("skipped training must not change model state, got %s", e.SteadyState())
	}
}

func TestTrainOnDataFitsAndUpgradesPredictions(t *testing.T) {
	e := NewEngine(EngineConfig{}, nil)
	flows := testFlows(45)

	report, err := e.TrainOnData(flows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Status != models.TrainingStatusTrained {
		t.Fatalf("expected %s, got %s", models.TrainingStatusTrained, report.Status)
	}
	if report.Rows != 44 {
		t.Fatalf("expected 44 labeled rows, got %d", report.Rows)
	}
	for _, q := range DefaultQuantiles {
		if _, ok := report.Metrics[q]; !ok {
			t.Fatalf("missing training metric for quantile %v", q)
		}
	}
	if e.SteadyState() != StateTrained {
		t.Fatalf("expected trained state, got %s", e.SteadyState())
	}

	matrix := features.BuildMatrix(flows)
	cls := models.Classification{Regime: models.RegimeSteadyState}
	pred, err := e.Predict(context.Background(), matrix, cls, time.Now().UTC(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pred.ModelName != ModelNameHybrid {
		t.Fatalf("trained engine should report %q, got %q", ModelNameHybrid, pred.ModelName)
	}
}

func TestDetectThenPredict(t *testing.T) {
	d := NewDetector(DefaultThresholds())
	e := NewEngine(EngineConfig{}, nil)
	date := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	vix, spread := 16.0, 100.0
	calm := d.Detect(&vix, &spread)
	if calm.Regime != models.RegimeSteadyState {
		t.Fatalf("vix=16 spread=100 should be steady state, got %s", calm.Regime)
	}
	calmPred, err := e.Predict(context.Background(), nil, calm, date, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !calmPred.SteadyStateWeight.Equal(decimal.NewFromFloat(0.90)) {
		t.Fatalf("steady regime: expected weight 0.90, got %s", calmPred.SteadyStateWeight)
	}

	vix, spread = 55.0, 320.0
	stressed := d.Detect(&vix, &spread)
	if stressed.Regime != models.RegimeCrisis {
		t.Fatalf("vix=55 spread=320 should be crisis, got %s", stressed.Regime)
	}
	crisisPred, err := e.Predict(context.Background(), nil, stressed, date, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !crisisPred.CrisisWeight.Equal(decimal.NewFromFloat(0.80)) {
		t.Fatalf("crisis regime: expected crisis weight 0.80, got %s", crisisPred.CrisisWeight)
	}
	if crisisPred.P5.GreaterThan(crisisPred.P50) || crisisPred.P50.GreaterThan(crisisPred.P95) {
		t.Fatalf("quantiles out of order: %s / %s / %s", crisisPred.P5, crisisPred.P50, crisisPred.P95)
	}
	if !crisisPred.Confidence.LessThan(calmPred.Confidence) {
		t.Fatalf("crisis forecast should be less confident: %s vs %s",
			crisisPred.Confidence, calmPred.Confidence)
	}
}

func TestPredictBlendMatchesSubModels(t *testing.T) {
	e := NewEngine(EngineConfig{}, nil)
	if err := e.Load(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	date := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	cls := models.Classification{Regime: models.RegimeElevated}

	pred, err := e.Predict(context.Background(), nil, cls, date, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	steadyPred, demo := e.steady.Predict(nil, date)
	if !demo {
		t.Fatalf("nil features must take the demo path")
	}
	crisisPred := e.crisis.Predict(models.RegimeElevated, date)

	blend := func(a, b float64) float64 { return 0.60*a + 0.40*b }
	if want := money(blend(steadyPred.P50, crisisPred.P50)); !pred.P50.Equal(want) {
		t.Fatalf("p50 is not the weighted sum: got %s, want %s", pred.P50, want)
	}
	if want := money(blend(steadyPred.P5, crisisPred.P5)); !pred.P5.Equal(want) {
		t.Fatalf("p5 is not the weighted sum: got %s, want %s", pred.P5, want)
	}
	if want := money(blend(steadyPred.P95, crisisPred.P95)); !pred.P95.Equal(want) {
		t.Fatalf("p95 is not the weighted sum: got %s, want %s", pred.P95, want)
	}
	if want := confidence(blend(steadyPred.Confidence, crisisPred.Confidence)); !pred.Confidence.Equal(want) {
		t.Fatalf("confidence is not the weighted sum: got %s, want %s", pred.Confidence, want)
	}
}
