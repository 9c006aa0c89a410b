// Package pricing holds the pure arithmetic of the sales screen: weight
// derivation for by-amount entry, stock ceilings, the adjusted serialization
// price, and the cash change calculator. All arithmetic is decimal; money
// rounds to 2 places, weights to 3.
package pricing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"petpos/terminal/internal/domain"
)

const (
	MoneyScale  = 2
	WeightScale = 3
)

// poundsPerKg is the display conversion factor used alongside per-kg prices.
var poundsPerKg = decimal.NewFromFloat(2.20462)

var (
	ErrNonPositivePrice = errors.New("product price must be positive")
	// ErrAmountTooSmall means the entered amount derives a weight that rounds
	// to zero, so no meaningful line can be built from it.
	ErrAmountTooSmall = errors.New("amount too small for product price")
)

// StockExceededError reports a rejected line update and the maximum the
// operator may still enter. For weight-priced products MaxAmount carries the
// largest money amount the remaining stock supports.
type StockExceededError struct {
	Mode      domain.PricingMode
	Available decimal.Decimal
	MaxAmount decimal.Decimal
}

func (e *StockExceededError) Error() string {
	if e.Mode == domain.ModeByWeight {
		return fmt.Sprintf("stock exceeded: max %s kg ($%s)",
			e.Available.StringFixed(WeightScale), e.MaxAmount.StringFixed(MoneyScale))
	}
	return fmt.Sprintf("stock exceeded: max %s available", e.Available.String())
}

// ParseAmount turns operator money input into a decimal amount. Input arrives
// as a thousands-separated string ("10.000", "$ 45,000"); every non-digit is
// stripped before parsing, so amounts are whole currency units.
func ParseAmount(raw string) decimal.Decimal {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return decimal.Zero
	}
	amount, err := decimal.NewFromString(digits.String())
	if err != nil {
		return decimal.Zero
	}
	return amount
}

// WeightFor derives the weight sold when a money amount is entered for a
// weight-priced product, rounded to WeightScale.
func WeightFor(amount, unitPrice decimal.Decimal) (decimal.Decimal, error) {
	if unitPrice.Sign() <= 0 {
		return decimal.Zero, ErrNonPositivePrice
	}
	weight := amount.Div(unitPrice).Round(WeightScale)
	if amount.Sign() > 0 && weight.IsZero() {
		return decimal.Zero, ErrAmountTooSmall
	}
	return weight, nil
}

// MaxAmountFor is the largest money amount the given stock supports, for
// display in stock-exceeded messages.
func MaxAmountFor(stock, unitPrice decimal.Decimal) decimal.Decimal {
	return stock.Mul(unitPrice).Round(MoneyScale)
}

// AdjustedUnitPrice recomputes the per-unit price sent with a weight line so
// that quantity*price reproduces the tendered amount after the quantity was
// rounded. Sending the nominal per-kg price instead would let the
// server-recomputed subtotal drift from what the customer paid.
func AdjustedUnitPrice(amount, roundedWeight decimal.Decimal) (decimal.Decimal, error) {
	if roundedWeight.Sign() <= 0 {
		return decimal.Zero, ErrAmountTooSmall
	}
	return amount.Div(roundedWeight).Round(MoneyScale), nil
}

// ToPounds converts a kg weight for display next to per-kg figures.
func ToPounds(kg decimal.Decimal) decimal.Decimal {
	return kg.Mul(poundsPerKg).Round(MoneyScale)
}

// PricePerPound is the per-lb display price for a per-kg product price.
func PricePerPound(pricePerKg decimal.Decimal) decimal.Decimal {
	return pricePerKg.Div(poundsPerKg).Round(MoneyScale)
}
