package quote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-erp/internal/audit"
	"github.com/noah-isme/backend-erp/internal/common"
	"github.com/noah-isme/backend-erp/internal/money"
	"github.com/noah-isme/backend-erp/internal/pricing"
	"github.com/noah-isme/backend-erp/internal/sequence"
)

var (
	// ErrNotFound is returned when the quote does not exist.
	ErrNotFound = errors.New("quote not found")
	// ErrProductNotFound is returned when a line references an unknown product.
	ErrProductNotFound = errors.New("product not found")
)

// DefaultValidity is how long an issued quote honours its prices.
const DefaultValidity = 30 * 24 * time.Hour

// Catalog resolves the current base price and bulk tiers of a product at a
// location.
type Catalog interface {
	PriceWithTiers(ctx context.Context, productID, locationID uuid.UUID) (money.Money, []pricing.Tier, error)
}

// Store is the persistence port for quotes. InsertQuote persists the quote and
// its items in one transaction.
type Store interface {
	InsertQuote(ctx context.Context, q Quote) (Quote, error)
	GetQuote(ctx context.Context, id uuid.UUID) (Quote, error)
}

// Service issues priced quotes: per-line bulk tiers, delivery policy, tax and
// a generated QUO number.
type Service struct {
	Store      Store
	Catalog    Catalog
	Numbers    *sequence.Generator
	Policy     pricing.DeliveryPolicy
	TaxRateBps int64
	Validity   time.Duration
	Audit      *audit.Recorder
	Logger     zerolog.Logger
}

// ItemSpec requests a quantity of one product.
type ItemSpec struct {
	ProductID uuid.UUID
	Qty       int
}

// CreateInput describes a quote request.
type CreateInput struct {
	CustomerID      uuid.UUID
	LocationID      uuid.UUID
	Items           []ItemSpec
	DeliveryAddress *string
	OrderDiscount   money.Money
	TaxExempt       bool
}

// Create prices every requested line against the location's catalog, applying
// the highest qualifying bulk tier per line, then derives totals and persists
// the quote under a freshly allocated number.
func (s *Service) Create(ctx context.Context, in CreateInput) (Quote, error) {
	if len(in.Items) == 0 {
		return Quote{}, common.ValidationError("a quote requires at least one item", nil)
	}
	if in.OrderDiscount.IsNegative() {
		return Quote{}, common.ValidationError("quote discount cannot be negative", nil)
	}

	q := Quote{
		ID:              uuid.New(),
		CustomerID:      in.CustomerID,
		LocationID:      in.LocationID,
		TaxRateBps:      s.TaxRateBps,
		DeliveryAddress: in.DeliveryAddress,
	}

	seen := make(map[uuid.UUID]bool, len(in.Items))
	for _, spec := range in.Items {
		if seen[spec.ProductID] {
			return Quote{}, common.ValidationError(
				fmt.Sprintf("product %s appears more than once", spec.ProductID), nil)
		}
		seen[spec.ProductID] = true
		if spec.Qty <= 0 {
			return Quote{}, common.ValidationError(
				fmt.Sprintf("quantity for product %s must be positive, got %d", spec.ProductID, spec.Qty),
				pricing.ErrInvalidQuantity)
		}

		base, tiers, err := s.Catalog.PriceWithTiers(ctx, spec.ProductID, in.LocationID)
		if err != nil {
			if errors.Is(err, ErrProductNotFound) {
				return Quote{}, common.NotFoundError(
					fmt.Sprintf("product %s does not exist", spec.ProductID), err)
			}
			return Quote{}, common.InternalError(fmt.Errorf("catalog.PriceWithTiers: %w", err))
		}

		q.Items = append(q.Items, Item{
			ID:        uuid.New(),
			QuoteID:   q.ID,
			ProductID: spec.ProductID,
			Qty:       spec.Qty,
			UnitPrice: pricing.ResolveUnitPrice(base, spec.Qty, tiers),
			Discount:  money.Zero(),
		})
	}

	lines := q.PricingLines()
	subtotal := money.Zero()
	for _, line := range lines {
		ls, err := line.Subtotal()
		if err != nil {
			return Quote{}, common.ValidationError(err.Error(), err)
		}
		subtotal = subtotal.Add(ls)
	}

	taxBps := s.TaxRateBps
	if in.TaxExempt {
		taxBps = 0
	}
	totals, err := pricing.Compute(lines, pricing.Params{
		OrderDiscount: in.OrderDiscount,
		TaxExempt:     in.TaxExempt,
		TaxRateBps:    taxBps,
		DeliveryFee:   s.Policy.FeeFor(subtotal, in.DeliveryAddress != nil),
	})
	if err != nil {
		return Quote{}, common.InternalError(fmt.Errorf("pricing.Compute: %w", err))
	}
	q.Subtotal = totals.Subtotal
	q.Discount = totals.Discount
	q.Tax = totals.Tax
	q.DeliveryFee = totals.DeliveryFee
	q.Total = totals.Total

	number, err := s.Numbers.Next(ctx, sequence.TypeQuote)
	if err != nil {
		return Quote{}, common.InternalError(fmt.Errorf("sequence.Next: %w", err))
	}
	q.Number = number
	q.ExpiresAt = time.Now().UTC().Add(s.validity())

	created, err := s.Store.InsertQuote(ctx, q)
	if err != nil {
		return Quote{}, common.InternalError(fmt.Errorf("store.InsertQuote: %w", err))
	}

	userID, _ := common.UserID(ctx)
	s.Audit.Record(ctx, audit.Entry{
		EntityType: "quote",
		EntityID:   created.ID.String(),
		Action:     "quote.created",
		UserID:     userID,
		Changes: map[string]any{
			"number": created.Number,
			"total":  created.Total.String(),
			"items":  len(created.Items),
		},
	})
	return created, nil
}

// Get loads a quote with its items.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Quote, error) {
	q, err := s.Store.GetQuote(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Quote{}, common.NotFoundError("quote not found", err)
		}
		return Quote{}, common.InternalError(fmt.Errorf("store.GetQuote: %w", err))
	}
	return q, nil
}

func (s *Service) validity() time.Duration {
	if s.Validity <= 0 {
		return DefaultValidity
	}
	return s.Validity
}
