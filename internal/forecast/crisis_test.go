package forecast

import (
	"math"
	"testing"
	"time"

	"FlowCast/internal/domain/models"
)

func TestShockParamsPerRegime(t *testing.T) {
	cases := []struct {
		regime models.Regime
		mult   float64
		vol    float64
	}{
		{models.RegimeSteadyState, 1.0, 1.0},
		{models.RegimeElevated, 1.5, 1.25},
		{models.RegimeCrisis, 2.5, 2.0},
		{models.Regime("bogus"), 1.0, 1.0},
	}
	for _, c := range cases {
		p := shockFor(c.regime)
		if p.ShockMult != c.mult || p.VolScale != c.vol {
			t.Fatalf("%s: expected (%v,%v), got (%v,%v)", c.regime, c.mult, c.vol, p.ShockMult, p.VolScale)
		}
	}
}

func TestCrisisPredictAppliesShock(t *testing.T) {
	m := NewCrisisModel()
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	base := m.basePredict(date)
	shocked := m.Predict(models.RegimeCrisis, date)

	if got, want := shocked.P50, base.P50*2.5; math.Abs(got-want) > 1e-9 {
		t.Fatalf("crisis p50: expected %v, got %v", want, got)
	}
	if got, want := shocked.Confidence, base.Confidence/2.0; math.Abs(got-want) > 1e-9 {
		t.Fatalf("crisis confidence: expected %v, got %v", want, got)
	}
	if got, want := shocked.OutflowP50, base.OutflowP50*2.5; math.Abs(got-want) > 1e-9 {
		t.Fatalf("crisis outflow p50: expected %v, got %v", want, got)
	}
}

func TestCrisisPredictSteadyIsIdentityOnP50(t *testing.T) {
	m := NewCrisisModel()
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	base := m.basePredict(date)
	pred := m.Predict(models.RegimeSteadyState, date)
	if math.Abs(pred.P50-base.P50) > 1e-9 {
		t.Fatalf("steady shock must not move p50: %v vs %v", pred.P50, base.P50)
	}
}

func TestSimulateMonteCarloOrdering(t *testing.T) {
	m := NewCrisisModel()
	res, err := m.SimulateMonteCarlo(10000, models.RegimeCrisis, 5000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.N != 5000 {
		t.Fatalf("expected 5000 draws, got %d", res.N)
	}
	if res.Regime != models.RegimeCrisis {
		t.Fatalf("expected crisis result, got %s", res.Regime)
	}
	if !(res.P1 <= res.P5 && res.P5 <= res.P50 && res.P50 <= res.P95 && res.P95 <= res.P99) {
		t.Fatalf("percentiles out of order: %+v", res)
	}
	if res.P1 <= 0 {
		t.Fatalf("multiplicative shocks keep outcomes positive, got p1=%v", res.P1)
	}
	if got, want := res.VaR95, 10000-res.P5; math.Abs(got-want) > 1e-9 {
		t.Fatalf("var95: expected %v, got %v", want, got)
	}
	if res.CVaR95 < res.VaR95 {
		t.Fatalf("cvar95 (%v) must be at least var95 (%v)", res.CVaR95, res.VaR95)
	}
}

func TestSimulateMonteCarloDeterministic(t *testing.T) {
	m := NewCrisisModel()
	a, err := m.SimulateMonteCarlo(5000, models.RegimeElevated, 2000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := m.SimulateMonteCarlo(5000, models.RegimeElevated, 2000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Mean != b.Mean || a.P50 != b.P50 || a.Std != b.Std {
		t.Fatalf("fixed seed must reproduce results: %+v vs %+v", a, b)
	}
}

func TestSimulateMonteCarloWiderTailsInCrisis(t *testing.T) {
	m := NewCrisisModel()
	steady, err := m.SimulateMonteCarlo(10000, models.RegimeSteadyState, 5000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	crisis, err := m.SimulateMonteCarlo(10000, models.RegimeCrisis, 5000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if crisis.Std <= steady.Std {
		t.Fatalf("crisis dispersion (%v) should exceed steady (%v)", crisis.Std, steady.Std)
	}
	if crisis.P5 >= steady.P5 {
		t.Fatalf("crisis downside (%v) should be worse than steady (%v)", crisis.P5, steady.P5)
	}
}

func TestSimulateMonteCarloRejectsNonPositiveBase(t *testing.T) {
	m := NewCrisisModel()
	if _, err := m.SimulateMonteCarlo(0, models.RegimeCrisis, 100); err == nil {
		t.Fatalf("expected error for zero base prediction")
	}
	if _, err := m.SimulateMonteCarlo(-50, models.RegimeCrisis, 100); err == nil {
		t.Fatalf("expected error for negative base prediction")
	}
}

func TestSimulateMonteCarloDefaultsN(t *testing.T) {
	m := NewCrisisModel()
	res, err := m.SimulateMonteCarlo(1000, models.RegimeSteadyState, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.N != 10000 {
		t.Fatalf("expected default 10000 draws, got %d", res.N)
	}
}

func TestPercentileInterpolation(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5}
	if got := percentile(sorted, 50); got != 3 {
		t.Fatalf("p50: expected 3, got %v", got)
	}
	if got := percentile(sorted, 0); got != 1 {
		t.Fatalf("p0: expected 1, got %v", got)
	}
	if got := percentile(sorted, 100); got != 5 {
		t.Fatalf("p100: expected 5, got %v", got)
	}
	if got := percentile(sorted, 25); got != 2 {
		t.Fatalf("p25: expected 2, got %v", got)
	}
	if got := percentile(nil, 50); got != 0 {
		t.Fatalf("empty input: expected 0, got %v", got)
	}
}
