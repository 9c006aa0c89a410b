// Package cart implements the sales-screen cart: an ordered set of lines,
// one per product, validated against the last-fetched stock snapshot. All
// mutations are synchronous; the total is always derived, never cached.
package cart

import (
	"errors"

	"github.com/shopspring/decimal"

	"petpos/terminal/internal/domain"
	"petpos/terminal/internal/pricing"
)

var (
	ErrLineNotFound = errors.New("product not in cart")
	// ErrAmountEntry is returned when increment/decrement-style quantity
	// controls are used on a weight-priced line; those lines only change
	// through an amount entry.
	ErrAmountEntry = errors.New("weight-priced products are sold by amount")
)

var one = decimal.NewFromInt(1)

// Line is one cart entry. Exactly one of the quantity fields is meaningful:
// Quantity for by-unit products, Amount (with the derived Weight) for
// by-weight products. The subtotal of a weight line is the entered amount
// verbatim, never recomputed from the rounded weight.
type Line struct {
	Product  domain.Product
	Quantity decimal.Decimal
	Amount   decimal.Decimal
	Weight   decimal.Decimal
}

func (l Line) Subtotal() decimal.Decimal {
	if l.Product.Mode == domain.ModeByWeight {
		return l.Amount
	}
	return l.Product.Price.Mul(l.Quantity).Round(pricing.MoneyScale)
}

// Committed is the stock already reserved by this line, in the product's
// stock unit (units or kg).
func (l Line) Committed() decimal.Decimal {
	if l.Product.Mode == domain.ModeByWeight {
		return l.Weight
	}
	return l.Quantity
}

// SavedLine is the durable form of a Line: the product reference plus the
// operator's input. Product snapshots are re-attached on rehydration.
type SavedLine struct {
	ProductID int64           `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity,omitempty"`
	Amount    decimal.Decimal `json:"amount,omitempty"`
}

// Cart holds one operator's in-progress sale. It is not safe for concurrent
// use; the owning session serializes access.
type Cart struct {
	operator string
	lines    []Line
}

func New(operator string) *Cart {
	return &Cart{operator: operator}
}

func (c *Cart) Operator() string { return c.operator }
func (c *Cart) IsEmpty() bool    { return len(c.lines) == 0 }
func (c *Cart) Len() int         { return len(c.lines) }

// Lines returns a copy of the cart lines in insertion order.
func (c *Cart) Lines() []Line {
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

// Line returns the line for the given product, if present.
func (c *Cart) Line(productID int64) (Line, bool) {
	if i := c.index(productID); i >= 0 {
		return c.lines[i], true
	}
	return Line{}, false
}

// Total is the derived sum of all line subtotals. It is recomputed on every
// call; two calls without an intervening mutation return the same value.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// Available is the stock shadow for a product: the snapshot stock minus what
// this cart has already committed to it. There is at most one line per
// product, so the ceiling check is against the original snapshot value.
func (c *Cart) Available(p domain.Product) decimal.Decimal {
	if i := c.index(p.ID); i >= 0 {
		return p.Stock.Sub(c.lines[i].Committed())
	}
	return p.Stock
}

// Add puts a product into the cart. A by-unit product starts at quantity 1,
// or is incremented by 1 if already present, subject to the stock ceiling.
// A by-weight product starts with an empty amount, waiting for entry; with
// nothing left to weigh the add is rejected instead of opening a dead line.
func (c *Cart) Add(p domain.Product) error {
	if i := c.index(p.ID); i >= 0 {
		if p.Mode == domain.ModeByWeight {
			// Already present; the amount entry drives this line.
			return nil
		}
		return c.incrementAt(i)
	}

	if p.Mode == domain.ModeByWeight {
		if !p.Stock.IsPositive() {
			return &pricing.StockExceededError{Mode: p.Mode, Available: p.Stock}
		}
		c.lines = append(c.lines, Line{Product: p})
		return nil
	}
	if one.GreaterThan(p.Stock) {
		return &pricing.StockExceededError{Mode: p.Mode, Available: p.Stock}
	}
	c.lines = append(c.lines, Line{Product: p, Quantity: one})
	return nil
}

// Increment raises a by-unit line's quantity by 1. The attempt that would
// push the quantity past the snapshot stock is a no-op and surfaces the
// stock-exceeded signal.
func (c *Cart) Increment(productID int64) error {
	i := c.index(productID)
	if i < 0 {
		return ErrLineNotFound
	}
	return c.incrementAt(i)
}

func (c *Cart) incrementAt(i int) error {
	line := c.lines[i]
	if line.Product.Mode == domain.ModeByWeight {
		return ErrAmountEntry
	}
	next := line.Quantity.Add(one)
	if next.GreaterThan(line.Product.Stock) {
		return &pricing.StockExceededError{
			Mode:      line.Product.Mode,
			Available: line.Product.Stock,
		}
	}
	c.lines[i].Quantity = next
	return nil
}

// Decrement lowers a by-unit line's quantity by 1, removing the line when it
// would reach zero. On a by-weight line it removes the line outright.
func (c *Cart) Decrement(productID int64) error {
	i := c.index(productID)
	if i < 0 {
		return ErrLineNotFound
	}
	line := c.lines[i]
	if line.Product.Mode == domain.ModeByWeight || !line.Quantity.GreaterThan(one) {
		c.removeAt(i)
		return nil
	}
	c.lines[i].Quantity = line.Quantity.Sub(one)
	return nil
}

// SetAmount replaces the money amount on a by-weight line. A zero amount
// removes the line. When the derived weight exceeds the snapshot stock the
// update is rejected, the previous valid state is retained, and the error
// carries the maximum permissible amount.
func (c *Cart) SetAmount(productID int64, amount decimal.Decimal) error {
	i := c.index(productID)
	if i < 0 {
		return ErrLineNotFound
	}
	line := c.lines[i]
	if line.Product.Mode != domain.ModeByWeight {
		return ErrAmountEntry
	}
	if amount.Sign() <= 0 {
		c.removeAt(i)
		return nil
	}

	weight, err := pricing.WeightFor(amount, line.Product.Price)
	if err != nil {
		return err
	}
	if weight.GreaterThan(line.Product.Stock) {
		return &pricing.StockExceededError{
			Mode:      line.Product.Mode,
			Available: line.Product.Stock,
			MaxAmount: pricing.MaxAmountFor(line.Product.Stock, line.Product.Price),
		}
	}
	c.lines[i].Amount = amount
	c.lines[i].Weight = weight
	return nil
}

// Remove deletes the line unconditionally. Removing an absent product is a
// no-op.
func (c *Cart) Remove(productID int64) {
	if i := c.index(productID); i >= 0 {
		c.removeAt(i)
	}
}

// Clear empties the cart after a committed sale.
func (c *Cart) Clear() {
	c.lines = nil
}

// Save produces the durable form of the cart for local storage.
func (c *Cart) Save() []SavedLine {
	saved := make([]SavedLine, 0, len(c.lines))
	for _, l := range c.lines {
		saved = append(saved, SavedLine{
			ProductID: l.Product.ID,
			Quantity:  l.Quantity,
			Amount:    l.Amount,
		})
	}
	return saved
}

// Restore rebuilds a cart from storage, re-attaching product snapshots via
// lookup. Lines whose product is gone from the snapshot are dropped; weights
// are re-derived from the stored amounts. Stock is deliberately not
// revalidated here; a rehydrated cart may hold stale lines until the next
// mutation or submission.
func Restore(operator string, saved []SavedLine, lookup func(int64) (domain.Product, bool)) *Cart {
	c := New(operator)
	for _, s := range saved {
		p, ok := lookup(s.ProductID)
		if !ok {
			continue
		}
		line := Line{Product: p, Quantity: s.Quantity, Amount: s.Amount}
		if p.Mode == domain.ModeByWeight && s.Amount.Sign() > 0 {
			if weight, err := pricing.WeightFor(s.Amount, p.Price); err == nil {
				line.Weight = weight
			}
		}
		c.lines = append(c.lines, line)
	}
	return c
}

func (c *Cart) index(productID int64) int {
	for i, l := range c.lines {
		if l.Product.ID == productID {
			return i
		}
	}
	return -1
}

func (c *Cart) removeAt(i int) {
	c.lines = append(c.lines[:i], c.lines[i+1:]...)
}
