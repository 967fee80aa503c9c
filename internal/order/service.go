package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-erp/internal/audit"
	"github.com/noah-isme/backend-erp/internal/common"
	"github.com/noah-isme/backend-erp/internal/money"
	"github.com/noah-isme/backend-erp/internal/obs"
	"github.com/noah-isme/backend-erp/internal/pricing"
)

var (
	// ErrNotFound is returned when the order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrVersionConflict is returned when the supplied expected version does
	// not match the stored one; nothing is written.
	ErrVersionConflict = errors.New("order version conflict")
	// ErrNotEditable is returned for line-item edits against a non-PENDING
	// order, regardless of version correctness.
	ErrNotEditable = errors.New("order is not editable in its current status")
	// ErrLastItem is returned when an edit would leave the order without line items.
	ErrLastItem = errors.New("an order must retain at least one line item")
	// ErrProductNotFound is returned when a new line references an unknown product.
	ErrProductNotFound = errors.New("product not found")
)

// ShippedLineError rejects an edit that would remove a line, or shrink its
// quantity, below what open (non-cancelled) shipments have already allocated.
type ShippedLineError struct {
	ProductID uuid.UUID
	Requested int
	Shipped   int
}

func (e *ShippedLineError) Error() string {
	if e.Requested == 0 {
		return fmt.Sprintf("cannot remove product %s: %d already shipped in open shipments", e.ProductID, e.Shipped)
	}
	return fmt.Sprintf("cannot set product %s to quantity %d: %d already shipped in open shipments", e.ProductID, e.Requested, e.Shipped)
}

// Store is the persistence port for orders. UpdateGuarded must perform the
// version check and the write as one atomic conditional statement: two
// writers racing on the same expected version cannot both succeed.
type Store interface {
	GetOrder(ctx context.Context, id uuid.UUID) (Order, error)
	// UpdateGuarded replaces the order's items and totals and increments the
	// version by one, transactionally. A non-nil expectedVersion that does
	// not match the stored version yields ErrVersionConflict with no write.
	UpdateGuarded(ctx context.Context, o Order, expectedVersion *int64) (Order, error)
}

// Catalog resolves current base prices for brand-new lines added during an edit.
type Catalog interface {
	BasePrice(ctx context.Context, productID uuid.UUID) (money.Money, error)
}

// Service implements optimistic-concurrency-controlled order editing.
type Service struct {
	Store   Store
	Catalog Catalog
	Audit   *audit.Recorder
	Metrics *obs.DomainMetrics
	Logger  zerolog.Logger
}

// ItemSpec describes one line of the desired post-edit item set.
type ItemSpec struct {
	ProductID uuid.UUID
	Qty       int
}

// UpdateInput is the full desired state of an order edit. Items is the
// complete new line set: lines omitted from it are removed.
type UpdateInput struct {
	// ExpectedVersion enables the OCC check. Nil skips it; only trusted
	// internal callers may do that.
	ExpectedVersion *int64
	Items           []ItemSpec
	DeliveryAddress *string
	OrderDiscount   *money.Money
}

// Get loads an order with its items.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Order, error) {
	o, err := s.Store.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Order{}, common.NotFoundError("order not found", err)
		}
		return Order{}, common.InternalError(fmt.Errorf("store.GetOrder: %w", err))
	}
	return o, nil
}

// Update edits an order's line items and recomputes every derived total from
// the resulting full line set. Existing lines keep their stored unit price
// and discount even when the catalog has moved; brand-new lines price from
// the current catalog. The write is gated on the expected version.
func (s *Service) Update(ctx context.Context, orderID uuid.UUID, in UpdateInput) (Order, error) {
	o, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.Metrics.RecordOrderUpdate(obs.OutcomeInvalid)
			return Order{}, common.NotFoundError("order not found", err)
		}
		return Order{}, common.InternalError(fmt.Errorf("store.GetOrder: %w", err))
	}

	// The status gate applies before and independently of the version check.
	if !o.Status.Editable() {
		s.Metrics.RecordOrderUpdate(obs.OutcomeInvalid)
		return Order{}, common.ImmutableStateError(
			fmt.Sprintf("order %s is %s; only PENDING orders can be edited", o.Number, o.Status), ErrNotEditable)
	}

	items, err := s.reconcileItems(ctx, o, in.Items)
	if err != nil {
		s.Metrics.RecordOrderUpdate(obs.OutcomeInvalid)
		return Order{}, err
	}

	if in.DeliveryAddress != nil {
		o.DeliveryAddress = in.DeliveryAddress
	}
	if in.OrderDiscount != nil {
		if in.OrderDiscount.IsNegative() {
			s.Metrics.RecordOrderUpdate(obs.OutcomeInvalid)
			return Order{}, common.ValidationError("order discount cannot be negative", nil)
		}
		o.Discount = *in.OrderDiscount
	}
	o.Items = items

	// Whole-cart recomputation: all derived fields together, never patched
	// individually. The delivery fee is preserved from the stored order; it
	// is not recomputed on edits.
	totals, err := pricing.Compute(o.PricingLines(), pricing.Params{
		OrderDiscount: o.Discount,
		TaxExempt:     o.TaxExempt,
		TaxRateBps:    o.TaxRateBps,
		DeliveryFee:   o.DeliveryFee,
	})
	if err != nil {
		if errors.Is(err, pricing.ErrInvalidQuantity) {
			s.Metrics.RecordOrderUpdate(obs.OutcomeInvalid)
			return Order{}, common.ValidationError(err.Error(), err)
		}
		return Order{}, common.InternalError(fmt.Errorf("pricing.Compute: %w", err))
	}
	o.Subtotal = totals.Subtotal
	o.Discount = totals.Discount
	o.Tax = totals.Tax
	o.DeliveryFee = totals.DeliveryFee
	o.Total = totals.Total

	updated, err := s.Store.UpdateGuarded(ctx, o, in.ExpectedVersion)
	if err != nil {
		var shippedErr *ShippedLineError
		if errors.As(err, &shippedErr) {
			s.Metrics.RecordOrderUpdate(obs.OutcomeInvalid)
			return Order{}, common.ValidationError(shippedErr.Error(), shippedErr)
		}
		if errors.Is(err, ErrVersionConflict) {
			s.Metrics.RecordOrderUpdate(obs.OutcomeConflict)
			return Order{}, common.ConflictError(
				fmt.Sprintf("order %s was modified concurrently; refetch and retry", o.Number), err)
		}
		if errors.Is(err, ErrNotFound) {
			s.Metrics.RecordOrderUpdate(obs.OutcomeInvalid)
			return Order{}, common.NotFoundError("order not found", err)
		}
		return Order{}, common.InternalError(fmt.Errorf("store.UpdateGuarded: %w", err))
	}

	s.Metrics.RecordOrderUpdate(obs.OutcomeOK)
	userID, _ := common.UserID(ctx)
	s.Audit.Record(ctx, audit.Entry{
		EntityType: "order",
		EntityID:   updated.ID.String(),
		Action:     "order.items_updated",
		UserID:     userID,
		Changes: map[string]any{
			"version": updated.Version,
			"total":   updated.Total.String(),
			"items":   len(updated.Items),
		},
	})
	return updated, nil
}

// reconcileItems builds the post-edit line set. Existing lines are matched by
// product and keep their stored pricing; new lines are priced fresh.
func (s *Service) reconcileItems(ctx context.Context, o Order, specs []ItemSpec) ([]Item, error) {
	existing := make(map[uuid.UUID]Item, len(o.Items))
	for _, it := range o.Items {
		existing[it.ProductID] = it
	}

	seen := make(map[uuid.UUID]bool, len(specs))
	items := make([]Item, 0, len(specs))
	for _, spec := range specs {
		if seen[spec.ProductID] {
			return nil, common.ValidationError(
				fmt.Sprintf("product %s appears more than once", spec.ProductID), nil)
		}
		seen[spec.ProductID] = true

		if prev, ok := existing[spec.ProductID]; ok {
			if spec.Qty <= 0 {
				// Editing an existing line down to zero removes it.
				continue
			}
			prev.Qty = spec.Qty
			items = append(items, prev)
			continue
		}

		if spec.Qty <= 0 {
			return nil, common.ValidationError(
				fmt.Sprintf("new line for product %s must have a positive quantity, got %d", spec.ProductID, spec.Qty),
				pricing.ErrInvalidQuantity)
		}
		base, err := s.Catalog.BasePrice(ctx, spec.ProductID)
		if err != nil {
			if errors.Is(err, ErrProductNotFound) {
				return nil, common.NotFoundError(
					fmt.Sprintf("product %s does not exist", spec.ProductID), err)
			}
			return nil, common.InternalError(fmt.Errorf("catalog.BasePrice: %w", err))
		}
		items = append(items, Item{
			ID:        uuid.New(),
			OrderID:   o.ID,
			ProductID: spec.ProductID,
			Qty:       spec.Qty,
			UnitPrice: base,
			Discount:  money.Zero(),
		})
	}

	if len(items) == 0 {
		return nil, common.ValidationError("an order must retain at least one line item", ErrLastItem)
	}
	return items, nil
}
