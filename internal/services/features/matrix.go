package features

import (
	"math"
	"sort"
	"time"

	"FlowCast/internal/domain/models"
	xutil "FlowCast/pkg/util"
)

// Rolling windows for flow statistics, in days.
const (
	shortWindow = 7
	longWindow  = 30
)

// MatrixNames lists the engineered columns in order.
func MatrixNames() []string {
	return []string{
		"net", "count", "std",
		"roll7_mean", "roll7_std",
		"roll30_mean", "roll30_std",
		"dow_mon", "dow_tue", "dow_wed", "dow_thu", "dow_fri", "dow_sat", "dow_sun",
		"month_end",
	}
}

// BuildMatrix engineers one feature row per day from daily flow aggregates.
// The target is the next day's net flow, so the last row is unlabeled.
// The matrix is immutable once built.
func BuildMatrix(flows []models.DailyFlow) *models.FeatureMatrix {
	sorted := append([]models.DailyFlow(nil), flows...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	names := MatrixNames()
	rows := make([]models.FeatureRow, 0, len(sorted))
	nets := make([]float64, 0, len(sorted))

	for i, f := range sorted {
		nets = append(nets, f.Net)

		r7m, r7s := rollingStats(nets, shortWindow)
		r30m, r30s := rollingStats(nets, longWindow)

		values := make([]float64, 0, len(names))
		values = append(values, f.Net, float64(f.Count), f.Std, r7m, r7s, r30m, r30s)
		values = append(values, dayOfWeekIndicators(f.Date)...)
		values = append(values, monthEndFlag(f.Date))

		row := models.FeatureRow{Date: f.Date, Values: values}
		if i+1 < len(sorted) {
			row.Target = sorted[i+1].Net
			row.HasLabel = true
		}
		rows = append(rows, row)
	}

	return &models.FeatureMatrix{Names: names, Rows: rows}
}

// rollingStats computes mean and sample std over the trailing window of xs.
// Windows shorter than 2 observations report a zero std.
func rollingStats(xs []float64, window int) (mean, std float64) {
	n := len(xs)
	if n == 0 {
		return 0, 0
	}
	start := n - window
	if start < 0 {
		start = 0
	}
	w := xs[start:]

	sum := 0.0
	for _, v := range w {
		sum += v
	}
	mean = sum / float64(len(w))

	if len(w) < 2 {
		return mean, 0
	}
	var ss float64
	for _, v := range w {
		d := v - mean
		ss += d * d
	}
	std = math.Sqrt(ss / float64(len(w)-1))
	return mean, std
}

// dayOfWeekIndicators one-hot encodes Monday through Sunday.
func dayOfWeekIndicators(t time.Time) []float64 {
	out := make([]float64, 7)
	// time.Weekday starts at Sunday; shift so Monday is index 0
	idx := (int(t.Weekday()) + 6) % 7
	out[idx] = 1
	return out
}

// monthEndFlag marks the last calendar day of the month.
func monthEndFlag(t time.Time) float64 {
	if t.AddDate(0, 0, 1).Month() != t.Month() {
		return 1
	}
	return 0
}

// AggregateDaily folds raw transactions into per-day flow aggregates.
// Used when the ingestion path has not materialized daily rollups yet.
func AggregateDaily(txns []*models.Transaction) []models.DailyFlow {
	type acc struct {
		flow    models.DailyFlow
		amounts []float64
	}
	byDay := make(map[string]*acc)

	for _, t := range txns {
		if t == nil {
			continue
		}
		day := xutil.DayStart(time.Unix(t.Timestamp, 0))
		key := t.OrganizationID + "|" + day.Format("2006-01-02")
		a, ok := byDay[key]
		if !ok {
			a = &acc{flow: models.DailyFlow{Date: day, OrgID: t.OrganizationID}}
			byDay[key] = a
		}
		a.flow.Net += t.Amount
		a.flow.Count++
		if t.Amount >= 0 {
			a.flow.Inflow += t.Amount
		} else {
			a.flow.Outflow += -t.Amount
		}
		a.amounts = append(a.amounts, t.Amount)
	}

	out := make([]models.DailyFlow, 0, len(byDay))
	for _, a := range byDay {
		_, a.flow.Std = rollingStats(a.amounts, len(a.amounts))
		out = append(out, a.flow)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}
