package models

import "time"

// Transaction direction values.
const (
	DirectionInflow  = "inflow"
	DirectionOutflow = "outflow"
)

// Transaction represents a single cash movement.
type Transaction struct {
	Timestamp      int64 // unix seconds
	OrganizationID string
	AccountID      string
	Amount         float64 // signed: inflow positive, outflow negative
	Direction      string
	Currency       string
}

// PositionSnapshot represents an end-of-day position balance.
type PositionSnapshot struct {
	Date           time.Time
	OrganizationID string
	AccountID      string
	Balance        float64
	AssetClass     string
}

// DailyFlow is one day's aggregated cash movement for an organization.
type DailyFlow struct {
	Date    time.Time
	OrgID   string
	Net     float64
	Inflow  float64
	Outflow float64
	Count   int
	Std     float64
}

// IndicatorSnapshot carries the latest observed market indicators.
type IndicatorSnapshot struct {
	VIX        float64
	Spread     float64 // credit spread, basis points
	ObservedAt time.Time
}

// FeatureRow is one day of engineered attributes feeding the steady-state model.
type FeatureRow struct {
	Date     time.Time
	Values   []float64
	Target   float64 // next day's net flow
	HasLabel bool
}

// FeatureMatrix is an immutable table of daily feature rows.
type FeatureMatrix struct {
	Names []string
	Rows  []FeatureRow
}

// Latest returns the most recent row's values, or nil when empty.
func (m *FeatureMatrix) Latest() []float64 {
	if m == nil || len(m.Rows) == 0 {
		return nil
	}
	return m.Rows[len(m.Rows)-1].Values
}

// Labeled returns only the rows carrying a target value.
func (m *FeatureMatrix) Labeled() []FeatureRow {
	if m == nil {
		return nil
	}
	out := make([]FeatureRow, 0, len(m.Rows))
	for _, r := range m.Rows {
		if r.HasLabel {
			out = append(out, r)
		}
	}
	return out
}
