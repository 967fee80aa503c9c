package order

import (
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-erp/internal/money"
	"github.com/noah-isme/backend-erp/internal/pricing"
)

// Status is the order lifecycle state. Line items are only mutable while the
// order is PENDING.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusFulfilled Status = "FULFILLED"
	StatusCancelled Status = "CANCELLED"
)

// Editable reports whether line items of an order in this status may change.
func (s Status) Editable() bool {
	return s == StatusPending
}

// Item is a persisted order line. UnitPrice and Discount were resolved when
// the line was added and are never re-derived from the live catalog.
type Item struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	ProductID uuid.UUID
	Qty       int
	UnitPrice money.Money
	Discount  money.Money
}

// Order is a versioned sales order. Version increments by exactly one on
// every successful mutating update; a stale expected version is rejected
// without side effects.
type Order struct {
	ID         uuid.UUID
	Number     string
	CustomerID uuid.UUID
	LocationID uuid.UUID
	Status     Status
	Version    int64

	TaxExempt  bool
	TaxRateBps int64

	DeliveryAddress *string

	Subtotal    money.Money
	Discount    money.Money
	Tax         money.Money
	DeliveryFee money.Money
	Total       money.Money

	Items []Item

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PricingLines converts the order's items for totals computation.
func (o Order) PricingLines() []pricing.Line {
	lines := make([]pricing.Line, 0, len(o.Items))
	for _, it := range o.Items {
		lines = append(lines, pricing.Line{
			ProductID: it.ProductID,
			Qty:       it.Qty,
			UnitPrice: it.UnitPrice,
			Discount:  it.Discount,
		})
	}
	return lines
}
