package pricing

import (
	"github.com/shopspring/decimal"

	"petpos/terminal/internal/domain"
)

// ChangeResult is the outcome of the cash change calculator. Applicable is
// false when the payment method is not cash or no tendered amount has been
// entered yet. A shortfall is reported but never blocks the sale; accepting
// partial cash is left to the cashier.
type ChangeResult struct {
	Applicable bool            `json:"applicable"`
	Sufficient bool            `json:"sufficient"`
	ChangeDue  decimal.Decimal `json:"change_due"`
	Shortfall  decimal.Decimal `json:"shortfall"`
}

// Change computes change due (or the shortfall) for a cash payment.
func Change(total, tendered decimal.Decimal, method domain.PaymentMethod) ChangeResult {
	if method != domain.PaymentCash || tendered.Sign() <= 0 {
		return ChangeResult{}
	}
	if tendered.LessThan(total) {
		return ChangeResult{
			Applicable: true,
			Shortfall:  total.Sub(tendered).Round(MoneyScale),
		}
	}
	return ChangeResult{
		Applicable: true,
		Sufficient: true,
		ChangeDue:  tendered.Sub(total).Round(MoneyScale),
	}
}
