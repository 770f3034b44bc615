package ledger

import "github.com/shopspring/decimal"

// MoneyPlaces is the precision every monetary amount is rounded to.
const MoneyPlaces = 2

var hundred = decimal.NewFromInt(100)

// ComputeCommission returns serviceValue * percentage / 100 rounded to cents
// (half away from zero). Negative inputs yield zero.
func ComputeCommission(serviceValue, percentage decimal.Decimal) decimal.Decimal {
	if serviceValue.IsNegative() || percentage.IsNegative() {
		return decimal.Zero
	}
	return serviceValue.Mul(percentage).Div(hundred).Round(MoneyPlaces)
}

// RoundMoney rounds an amount to cents.
func RoundMoney(v decimal.Decimal) decimal.Decimal { return v.Round(MoneyPlaces) }

// ValidatePercentage rejects percentages outside [0, 100].
func ValidatePercentage(p decimal.Decimal) error {
	if p.IsNegative() || p.GreaterThan(hundred) {
		return invalid("fixedCommissionPercentage", "must be between 0 and 100, got %s", p)
	}
	return nil
}

func validateServiceValue(v decimal.Decimal) error {
	if v.IsNegative() {
		return invalid("serviceValue", "must not be negative, got %s", v)
	}
	return nil
}
