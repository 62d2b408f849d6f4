package repository

import "github.com/shopspring/decimal"

func decimalFrom(v float64, places int32) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(places)
}
