package flow

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultRatePerHour is used when no positive rate is configured.
var DefaultRatePerHour = decimal.NewFromInt(5)

// PriceCalculator derives booking amounts from a flat hourly rate.
type PriceCalculator struct {
	rate decimal.Decimal
}

// NewPriceCalculator falls back to DefaultRatePerHour for non-positive rates.
func NewPriceCalculator(rate decimal.Decimal) PriceCalculator {
	if !rate.IsPositive() {
		rate = DefaultRatePerHour
	}
	return PriceCalculator{rate: rate}
}

// Rate returns the hourly rate.
func (p PriceCalculator) Rate() decimal.Decimal {
	if !p.rate.IsPositive() {
		return DefaultRatePerHour
	}
	return p.rate
}

// Amount is hours(slot) x rate, rounded to cents. Non-positive durations cost nothing.
func (p PriceCalculator) Amount(slot SlotRecord) decimal.Decimal {
	d := slot.Duration()
	if d <= 0 {
		return decimal.Zero
	}
	hours := decimal.NewFromInt(int64(d)).Div(decimal.NewFromInt(int64(time.Hour)))
	return hours.Mul(p.Rate()).Round(2)
}

// AmountFor is Amount for an optional selection.
func (p PriceCalculator) AmountFor(slot *SlotRecord) decimal.Decimal {
	if slot == nil {
		return decimal.Zero
	}
	return p.Amount(*slot)
}
