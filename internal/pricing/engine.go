package pricing

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-erp/internal/money"
)

var (
	// ErrInvalidQuantity is returned when a brand-new line carries a non-positive quantity.
	ErrInvalidQuantity = errors.New("pricing: quantity must be a positive integer")
	// ErrNegativeTotal signals an arithmetic invariant violation: totals are asserted, never clamped.
	ErrNegativeTotal = errors.New("pricing: computed total is negative")
)

// Line is a priced cart line. UnitPrice and Discount are resolved when the
// line is created and frozen thereafter for existing lines.
type Line struct {
	ProductID uuid.UUID
	Qty       int
	UnitPrice money.Money
	Discount  money.Money
}

// Subtotal computes unitPrice*qty - discount for one line.
func (l Line) Subtotal() (money.Money, error) {
	if l.Qty <= 0 {
		return money.Money{}, fmt.Errorf("%w: got %d", ErrInvalidQuantity, l.Qty)
	}
	return l.UnitPrice.MulInt(int64(l.Qty)).Sub(l.Discount), nil
}

// Tier is a bulk-discount threshold: at MinQty and above, PercentBps is taken
// off the catalog base price (1500 bps = 15%).
type Tier struct {
	MinQty     int
	PercentBps int64
}

// ResolveUnitPrice applies the highest qualifying tier to the catalog base
// price. No qualifying tier leaves the base price untouched.
func ResolveUnitPrice(base money.Money, qty int, tiers []Tier) money.Money {
	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MinQty > sorted[j].MinQty })

	for _, tier := range sorted {
		if qty >= tier.MinQty && tier.PercentBps > 0 {
			return base.Sub(base.MulBps(tier.PercentBps))
		}
	}
	return base
}

// Totals aggregates the derived money fields of an order or quote. The five
// fields are always recomputed together from the full line set.
type Totals struct {
	Subtotal    money.Money
	Discount    money.Money
	Tax         money.Money
	DeliveryFee money.Money
	Total       money.Money
}

// Params carries the order-level inputs of a totals computation.
type Params struct {
	// OrderDiscount is the explicit order-level discount. Per-line discounts
	// are already netted into line subtotals; see SumLineDiscounts.
	OrderDiscount money.Money
	TaxExempt     bool
	TaxRateBps    int64
	DeliveryFee   money.Money
}

// Compute derives Totals from the full line set. Intermediates stay exact;
// callers round at the persistence boundary.
func Compute(lines []Line, p Params) (Totals, error) {
	subtotal := money.Zero()
	for i, line := range lines {
		ls, err := line.Subtotal()
		if err != nil {
			return Totals{}, fmt.Errorf("line %d (product %s): %w", i, line.ProductID, err)
		}
		subtotal = subtotal.Add(ls)
	}

	discount := p.OrderDiscount
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	taxable := subtotal.Sub(discount)
	if taxable.IsNegative() {
		taxable = money.Zero()
	}

	tax := money.Zero()
	if !p.TaxExempt && p.TaxRateBps > 0 {
		tax = taxable.MulBps(p.TaxRateBps)
	}

	total := subtotal.Sub(discount).Add(tax).Add(p.DeliveryFee)
	if total.IsNegative() {
		return Totals{}, fmt.Errorf("%w: %s", ErrNegativeTotal, total)
	}

	return Totals{
		Subtotal:    subtotal,
		Discount:    discount,
		Tax:         tax,
		DeliveryFee: p.DeliveryFee,
		Total:       total,
	}, nil
}

// SumLineDiscounts exposes the per-line discount accumulator. It is reported
// alongside the order-level discount, never merged into it.
func SumLineDiscounts(lines []Line) money.Money {
	sum := money.Zero()
	for _, line := range lines {
		sum = sum.Add(line.Discount)
	}
	return sum
}

// DeliveryPolicy is the quote-path fee rule: flat fee for delivered orders
// under the free-shipping cutoff, nothing otherwise. Order edits never
// recompute the fee; they carry the stored value forward.
type DeliveryPolicy struct {
	Fee       money.Money
	FreeAbove money.Money
}

// FeeFor returns the delivery fee owed for a subtotal.
func (p DeliveryPolicy) FeeFor(subtotal money.Money, hasAddress bool) money.Money {
	if !hasAddress {
		return money.Zero()
	}
	if !p.FreeAbove.IsZero() && subtotal.Cmp(p.FreeAbove) >= 0 {
		return money.Zero()
	}
	return p.Fee
}
