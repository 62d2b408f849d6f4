package features

import (
	"math"
	"testing"
	"time"

	"FlowCast/internal/domain/models"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestBuildMatrixShapeAndLabels(t *testing.T) {
	flows := []models.DailyFlow{
		{Date: day(2026, 1, 5), Net: 1000, Count: 3, Std: 50},
		{Date: day(2026, 1, 6), Net: 2000, Count: 4, Std: 60},
		{Date: day(2026, 1, 7), Net: -500, Count: 2, Std: 70},
	}
	m := BuildMatrix(flows)

	if len(m.Names) != 15 {
		t.Fatalf("expected 15 feature columns, got %d", len(m.Names))
	}
	if len(m.Rows) != 3 {
		t.Fatalf("expected one row per day, got %d", len(m.Rows))
	}
	for i, r := range m.Rows {
		if len(r.Values) != len(m.Names) {
			t.Fatalf("row %d has %d values, want %d", i, len(r.Values), len(m.Names))
		}
	}

	if !m.Rows[0].HasLabel || m.Rows[0].Target != 2000 {
		t.Fatalf("first row should target next day's net: %+v", m.Rows[0])
	}
	if !m.Rows[1].HasLabel || m.Rows[1].Target != -500 {
		t.Fatalf("second row should target next day's net: %+v", m.Rows[1])
	}
	if m.Rows[2].HasLabel {
		t.Fatalf("last row has no next day, must be unlabeled")
	}
	if got := len(m.Labeled()); got != 2 {
		t.Fatalf("expected 2 labeled rows, got %d", got)
	}
}

func TestBuildMatrixSortsByDate(t *testing.T) {
	flows := []models.DailyFlow{
		{Date: day(2026, 1, 7), Net: 30},
		{Date: day(2026, 1, 5), Net: 10},
		{Date: day(2026, 1, 6), Net: 20},
	}
	m := BuildMatrix(flows)
	if m.Rows[0].Values[0] != 10 || m.Rows[1].Values[0] != 20 || m.Rows[2].Values[0] != 30 {
		t.Fatalf("rows should be chronological: %v %v %v",
			m.Rows[0].Values[0], m.Rows[1].Values[0], m.Rows[2].Values[0])
	}
	if m.Rows[0].Target != 20 {
		t.Fatalf("labels must follow the sorted order, got target %v", m.Rows[0].Target)
	}
}

func TestRollingStats(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5}

	mean, std := rollingStats(xs, 3)
	if mean != 4 {
		t.Fatalf("trailing window of 3: expected mean 4, got %v", mean)
	}
	if math.Abs(std-1) > 1e-9 {
		t.Fatalf("expected sample std 1, got %v", std)
	}

	mean, std = rollingStats(xs, 10)
	if mean != 3 {
		t.Fatalf("window wider than data uses all of it: expected 3, got %v", mean)
	}
	if std == 0 {
		t.Fatalf("five observations should have nonzero std")
	}

	mean, std = rollingStats(xs[:1], 7)
	if mean != 1 || std != 0 {
		t.Fatalf("single observation: expected (1, 0), got (%v, %v)", mean, std)
	}

	mean, std = rollingStats(nil, 7)
	if mean != 0 || std != 0 {
		t.Fatalf("empty input: expected zeros, got (%v, %v)", mean, std)
	}
}

func TestDayOfWeekIndicators(t *testing.T) {
	monday := day(2026, 1, 5) // 2026-01-05 is a Monday
	out := dayOfWeekIndicators(monday)
	if out[0] != 1 {
		t.Fatalf("monday should set index 0, got %v", out)
	}
	sum := 0.0
	for _, v := range out {
		sum += v
	}
	if sum != 1 {
		t.Fatalf("exactly one indicator must be set, got %v", out)
	}

	sunday := day(2026, 1, 4)
	if out := dayOfWeekIndicators(sunday); out[6] != 1 {
		t.Fatalf("sunday should set index 6, got %v", out)
	}
}

func TestMonthEndFlag(t *testing.T) {
	if monthEndFlag(day(2026, 1, 31)) != 1 {
		t.Fatalf("jan 31 is a month end")
	}
	if monthEndFlag(day(2026, 2, 28)) != 1 {
		t.Fatalf("feb 28 2026 is a month end")
	}
	if monthEndFlag(day(2024, 2, 28)) != 0 {
		t.Fatalf("feb 28 2024 is not a month end in a leap year")
	}
	if monthEndFlag(day(2026, 1, 30)) != 0 {
		t.Fatalf("jan 30 is not a month end")
	}
}

func TestAggregateDaily(t *testing.T) {
	ts := day(2026, 3, 2)
	txns := []*models.Transaction{
		{OrganizationID: "org-1", Timestamp: ts.Add(9 * time.Hour).Unix(), Amount: 1000},
		{OrganizationID: "org-1", Timestamp: ts.Add(15 * time.Hour).Unix(), Amount: -400},
		{OrganizationID: "org-1", Timestamp: ts.AddDate(0, 0, 1).Unix(), Amount: 250},
		{OrganizationID: "org-2", Timestamp: ts.Unix(), Amount: 999},
		nil,
	}

	flows := AggregateDaily(txns)
	if len(flows) != 3 {
		t.Fatalf("expected 3 org-day buckets, got %d", len(flows))
	}

	var first *models.DailyFlow
	for i := range flows {
		if flows[i].OrgID == "org-1" && flows[i].Date.Equal(ts) {
			first = &flows[i]
		}
	}
	if first == nil {
		t.Fatalf("missing org-1 bucket for %s: %+v", ts, flows)
	}
	if first.Net != 600 {
		t.Fatalf("net: expected 600, got %v", first.Net)
	}
	if first.Inflow != 1000 || first.Outflow != 400 {
		t.Fatalf("inflow/outflow: expected 1000/400, got %v/%v", first.Inflow, first.Outflow)
	}
	if first.Count != 2 {
		t.Fatalf("count: expected 2, got %d", first.Count)
	}
	if first.Std == 0 {
		t.Fatalf("two distinct amounts should have nonzero std")
	}

	for i := 1; i < len(flows); i++ {
		if flows[i].Date.Before(flows[i-1].Date) {
			t.Fatalf("aggregates should be date-sorted: %+v", flows)
		}
	}
}
