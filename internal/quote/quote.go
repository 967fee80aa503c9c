package quote

import (
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-erp/internal/money"
	"github.com/noah-isme/backend-erp/internal/pricing"
)

// Item is a priced quote line. UnitPrice already reflects the bulk tier the
// quantity qualified for at creation time.
type Item struct {
	ID        uuid.UUID
	QuoteID   uuid.UUID
	ProductID uuid.UUID
	Qty       int
	UnitPrice money.Money
	Discount  money.Money
}

// Quote is a priced, non-binding offer. Unlike orders it carries no version
// counter: quotes are immutable once issued and superseded by issuing a new one.
type Quote struct {
	ID         uuid.UUID
	Number     string
	CustomerID uuid.UUID
	LocationID uuid.UUID

	TaxRateBps int64

	DeliveryAddress *string

	Subtotal    money.Money
	Discount    money.Money
	Tax         money.Money
	DeliveryFee money.Money
	Total       money.Money

	Items []Item

	CreatedAt time.Time
	ExpiresAt time.Time
}

// PricingLines converts the quote's items for totals computation.
func (q Quote) PricingLines() []pricing.Line {
	lines := make([]pricing.Line, 0, len(q.Items))
	for _, it := range q.Items {
		lines = append(lines, pricing.Line{
			ProductID: it.ProductID,
			Qty:       it.Qty,
			UnitPrice: it.UnitPrice,
			Discount:  it.Discount,
		})
	}
	return lines
}
