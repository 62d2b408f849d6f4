package models

// Requests for forecast HTTP endpoints. Defined in domain for consistency and reuse.

type GenerateForecastRequest struct {
	OrganizationID string   `json:"organization_id" validate:"required"`
	TargetDate     string   `json:"target_date"` // RFC3339 or YYYY-MM-DD; default tomorrow
	HorizonDays    int      `json:"horizon_days" default:"1" validate:"gte=1,lte=30"`
	VIX            *float64 `json:"vix" validate:"omitempty,gte=0,lte=200"`
	Spread         *float64 `json:"credit_spread" validate:"omitempty,gte=0,lte=5000"`
}

type DailyForecastRequest struct {
	OrganizationID string `query:"organization_id" json:"organization_id" validate:"required"`
	TargetDate     string `query:"target_date" json:"target_date"`
}

type RegimeQueryRequest struct {
	VIX    *float64 `query:"vix" json:"vix" validate:"omitempty,gte=0,lte=200"`
	Spread *float64 `query:"credit_spread" json:"credit_spread" validate:"omitempty,gte=0,lte=5000"`
}

type SimulateRequest struct {
	BasePrediction float64 `json:"base_prediction" validate:"required,gt=0"`
	Regime         string  `json:"regime" default:"crisis" validate:"oneof=steady_state elevated crisis"`
	Simulations    int     `json:"n_simulations" default:"10000" validate:"gte=100,lte=1000000"`
}

type TrainRequest struct {
	OrganizationID string `json:"organization_id" validate:"required"`
	LookbackDays   int    `json:"lookback_days" default:"180" validate:"gte=30,lte=3650"`
}

type IngestTransaction struct {
	OrganizationID string  `json:"organization_id" validate:"required"`
	AccountID      string  `json:"account_id" validate:"required"`
	Timestamp      int64   `json:"t" validate:"required,gt=0"`
	Amount         float64 `json:"amount" validate:"required"`
	Direction      string  `json:"direction" validate:"omitempty,oneof=inflow outflow"`
	Currency       string  `json:"currency" default:"USD" validate:"omitempty,len=3"`
}

type IngestTransactionsRequest struct {
	Transactions []IngestTransaction `json:"transactions" validate:"required,min=1,max=5000,dive"`
}

type FlowsRequest struct {
	OrganizationID string `query:"organization_id" json:"organization_id" validate:"required"`
	Days           int    `query:"days" json:"days" default:"90" validate:"gte=1,lte=3650"`
}
