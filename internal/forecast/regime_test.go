package forecast

import (
	"math"
	"testing"

	"FlowCast/internal/domain/models"
)

func fp(v float64) *float64 { return &v }

func TestDetectSteadyState(t *testing.T) {
	d := NewDetector(DefaultThresholds())
	cls := d.Detect(fp(18), fp(120))
	if cls.Regime != models.RegimeSteadyState {
		t.Fatalf("expected steady_state, got %s", cls.Regime)
	}
	if cls.Synthetic {
		t.Fatalf("both indicators supplied, should not be synthetic")
	}
	if cls.Confidence < 0 || cls.Confidence > 1 {
		t.Fatalf("confidence out of range: %v", cls.Confidence)
	}
	if cls.VIX != 18 || cls.Spread != 120 {
		t.Fatalf("classification should carry the observed values, got %v/%v", cls.VIX, cls.Spread)
	}
}

func TestDetectCalmMarketConfidence(t *testing.T) {
	d := NewDetector(DefaultThresholds())
	cls := d.Detect(fp(18), fp(120))
	if cls.Regime != models.RegimeSteadyState {
		t.Fatalf("expected steady_state, got %s", cls.Regime)
	}
	if cls.Confidence <= 0.5 {
		t.Fatalf("calm markets must classify with confidence above 0.5, got %v", cls.Confidence)
	}
	// vix leg 1-18/50 = 0.64, spread leg 1-120/300 = 0.60, mean 0.62
	if math.Abs(cls.Confidence-0.62) > 1e-9 {
		t.Fatalf("expected confidence 0.62, got %v", cls.Confidence)
	}
}

func TestDetectSeverityMonotonic(t *testing.T) {
	d := NewDetector(DefaultThresholds())

	prev := -1
	for v := 0.5; v <= 60; v += 0.5 {
		cls := d.Detect(fp(v), fp(100))
		sev := cls.Regime.Severity()
		if sev < prev {
			t.Fatalf("vix=%v: severity regressed from %d to %d", v, prev, sev)
		}
		prev = sev
		if cls.Confidence < 0 || cls.Confidence > 1 {
			t.Fatalf("vix=%v: confidence out of range: %v", v, cls.Confidence)
		}
	}

	prev = -1
	for s := 5.0; s <= 320; s += 5 {
		cls := d.Detect(fp(15), fp(s))
		sev := cls.Regime.Severity()
		if sev < prev {
			t.Fatalf("spread=%v: severity regressed from %d to %d", s, prev, sev)
		}
		prev = sev
	}
}

func TestDetectCrisisOnVIX(t *testing.T) {
	d := NewDetector(DefaultThresholds())
	cls := d.Detect(fp(45), fp(120))
	if cls.Regime != models.RegimeCrisis {
		t.Fatalf("expected crisis, got %s", cls.Regime)
	}
}

func TestDetectCrisisOnSpread(t *testing.T) {
	d := NewDetector(DefaultThresholds())
	cls := d.Detect(fp(15), fp(250))
	if cls.Regime != models.RegimeCrisis {
		t.Fatalf("spread crisis should win over calm vix, got %s", cls.Regime)
	}
}

func TestDetectElevated(t *testing.T) {
	d := NewDetector(DefaultThresholds())
	cls := d.Detect(fp(30), fp(120))
	if cls.Regime != models.RegimeElevated {
		t.Fatalf("expected elevated, got %s", cls.Regime)
	}
}

func TestDetectThresholdBoundaries(t *testing.T) {
	d := NewDetector(DefaultThresholds())
	cases := []struct {
		vix, spread float64
		want        models.Regime
	}{
		{25, 100, models.RegimeElevated},
		{40, 100, models.RegimeCrisis},
		{15, 150, models.RegimeElevated},
		{15, 200, models.RegimeCrisis},
		{24.99, 149.99, models.RegimeSteadyState},
	}
	for _, c := range cases {
		cls := d.Detect(fp(c.vix), fp(c.spread))
		if cls.Regime != c.want {
			t.Fatalf("vix=%v spread=%v: expected %s, got %s", c.vix, c.spread, c.want, cls.Regime)
		}
	}
}

func TestDetectSynthesizesMissingIndicators(t *testing.T) {
	d := NewDetector(DefaultThresholds())
	cls := d.Detect(nil, nil)
	if !cls.Synthetic {
		t.Fatalf("expected synthetic classification")
	}
	if cls.VIX < 14 || cls.VIX > 26 {
		t.Fatalf("synthetic vix out of expected range: %v", cls.VIX)
	}
	if cls.Spread < 90 || cls.Spread > 160 {
		t.Fatalf("synthetic spread out of expected range: %v", cls.Spread)
	}
	if !cls.Regime.IsValid() {
		t.Fatalf("invalid regime %q", cls.Regime)
	}

	// day-seeded synthesis is stable within a day
	again := d.Detect(nil, nil)
	if again.VIX != cls.VIX || again.Spread != cls.Spread {
		t.Fatalf("synthetic values should be deterministic within a day")
	}
}

func TestDetectPartialSynthesis(t *testing.T) {
	d := NewDetector(DefaultThresholds())
	cls := d.Detect(fp(45), nil)
	if !cls.Synthetic {
		t.Fatalf("one missing indicator should flag synthetic")
	}
	if cls.Regime != models.RegimeCrisis {
		t.Fatalf("observed vix=45 should still classify crisis, got %s", cls.Regime)
	}
	if cls.VIX != 45 {
		t.Fatalf("observed vix must not be replaced, got %v", cls.VIX)
	}
}

func TestNewDetectorRejectsInvertedThresholds(t *testing.T) {
	d := NewDetector(Thresholds{VIXElevated: 40, VIXCrisis: 25, SpreadElevated: 200, SpreadCrisis: 150})
	if d.thresholds != DefaultThresholds() {
		t.Fatalf("inverted thresholds should fall back to defaults, got %+v", d.thresholds)
	}
}
