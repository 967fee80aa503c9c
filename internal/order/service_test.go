package order_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-erp/internal/common"
	"github.com/noah-isme/backend-erp/internal/money"
	"github.com/noah-isme/backend-erp/internal/order"
)

type mockStore struct {
	mu     sync.Mutex
	orders map[uuid.UUID]order.Order
	// shipped quantities per order item, as open shipments would hold them
	shipped map[uuid.UUID]int
}

func newMockStore(orders ...order.Order) *mockStore {
	s := &mockStore{orders: map[uuid.UUID]order.Order{}, shipped: map[uuid.UUID]int{}}
	for _, o := range orders {
		s.orders[o.ID] = o
	}
	return s
}

func (s *mockStore) GetOrder(_ context.Context, id uuid.UUID) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}
	return o, nil
}

// UpdateGuarded mirrors the conditional-update semantics of the pgx store:
// the version comparison and the increment happen under one lock, and a line
// cannot be removed or shrunk below its open shipped quantity.
func (s *mockStore) UpdateGuarded(_ context.Context, o order.Order, expected *int64) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.orders[o.ID]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}
	if expected != nil && *expected != current.Version {
		return order.Order{}, order.ErrVersionConflict
	}
	keep := map[uuid.UUID]order.Item{}
	for _, it := range o.Items {
		keep[it.ID] = it
	}
	for _, prev := range current.Items {
		it, survives := keep[prev.ID]
		if !survives {
			if s.shipped[prev.ID] > 0 {
				return order.Order{}, &order.ShippedLineError{
					ProductID: prev.ProductID, Requested: 0, Shipped: s.shipped[prev.ID],
				}
			}
			continue
		}
		if it.Qty < s.shipped[prev.ID] {
			return order.Order{}, &order.ShippedLineError{
				ProductID: it.ProductID, Requested: it.Qty, Shipped: s.shipped[prev.ID],
			}
		}
	}
	o.Version = current.Version + 1
	s.orders[o.ID] = o
	return o, nil
}

type mockCatalog struct {
	prices map[uuid.UUID]money.Money
}

func (c *mockCatalog) BasePrice(_ context.Context, productID uuid.UUID) (money.Money, error) {
	price, ok := c.prices[productID]
	if !ok {
		return money.Money{}, order.ErrProductNotFound
	}
	return price, nil
}

func pendingOrder(productID uuid.UUID) order.Order {
	orderID := uuid.New()
	return order.Order{
		ID:         orderID,
		Number:     "ORD-001001",
		Status:     order.StatusPending,
		Version:    3,
		TaxRateBps: 1000,
		Items: []order.Item{{
			ID:        uuid.New(),
			OrderID:   orderID,
			ProductID: productID,
			Qty:       2,
			UnitPrice: money.MustFromString("10.00"),
			Discount:  money.MustFromString("1.00"),
		}},
		DeliveryFee: money.MustFromString("5.00"),
	}
}

func ptr[T any](v T) *T { return &v }

func TestUpdateSucceedsAndIncrementsVersion(t *testing.T) {
	t.Parallel()

	productID := uuid.New()
	o := pendingOrder(productID)
	store := newMockStore(o)
	svc := &order.Service{Store: store, Catalog: &mockCatalog{prices: map[uuid.UUID]money.Money{}}}

	updated, err := svc.Update(context.Background(), o.ID, order.UpdateInput{
		ExpectedVersion: ptr(int64(3)),
		Items:           []order.ItemSpec{{ProductID: productID, Qty: 5}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(4), updated.Version)
	// 5 * 10.00 - 1.00 = 49.00; tax 10% = 4.90; fee preserved at 5.00
	require.Equal(t, "49.00", updated.Subtotal.String())
	require.Equal(t, "4.90", updated.Tax.String())
	require.Equal(t, "58.90", updated.Total.String())
}

func TestUpdateConflictOnStaleVersion(t *testing.T) {
	t.Parallel()

	productID := uuid.New()
	o := pendingOrder(productID)
	store := newMockStore(o)
	svc := &order.Service{Store: store, Catalog: &mockCatalog{prices: map[uuid.UUID]money.Money{}}}
	ctx := context.Background()

	// First write at version 3 succeeds and moves the order to version 4.
	_, err := svc.Update(ctx, o.ID, order.UpdateInput{
		ExpectedVersion: ptr(int64(3)),
		Items:           []order.ItemSpec{{ProductID: productID, Qty: 3}},
	})
	require.NoError(t, err)

	// A second write still carrying version 3 must fail without side effects.
	_, err = svc.Update(ctx, o.ID, order.UpdateInput{
		ExpectedVersion: ptr(int64(3)),
		Items:           []order.ItemSpec{{ProductID: productID, Qty: 9}},
	})
	require.ErrorIs(t, err, order.ErrVersionConflict)
	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, common.CodeConflict, appErr.Code)

	current, err := svc.Get(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, 3, current.Items[0].Qty)

	// Retrying with the current version succeeds.
	_, err = svc.Update(ctx, o.ID, order.UpdateInput{
		ExpectedVersion: ptr(int64(4)),
		Items:           []order.ItemSpec{{ProductID: productID, Qty: 9}},
	})
	require.NoError(t, err)
}

func TestUpdateSkipsCheckWithoutExpectedVersion(t *testing.T) {
	t.Parallel()

	productID := uuid.New()
	o := pendingOrder(productID)
	store := newMockStore(o)
	svc := &order.Service{Store: store, Catalog: &mockCatalog{prices: map[uuid.UUID]money.Money{}}}

	updated, err := svc.Update(context.Background(), o.ID, order.UpdateInput{
		Items: []order.ItemSpec{{ProductID: productID, Qty: 1}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(4), updated.Version)
}

func TestUpdateRejectsNonPendingRegardlessOfVersion(t *testing.T) {
	t.Parallel()

	productID := uuid.New()
	o := pendingOrder(productID)
	o.Status = order.StatusConfirmed
	store := newMockStore(o)
	svc := &order.Service{Store: store, Catalog: &mockCatalog{prices: map[uuid.UUID]money.Money{}}}

	_, err := svc.Update(context.Background(), o.ID, order.UpdateInput{
		ExpectedVersion: ptr(int64(3)), // correct version, still rejected
		Items:           []order.ItemSpec{{ProductID: productID, Qty: 5}},
	})
	require.ErrorIs(t, err, order.ErrNotEditable)
	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, common.CodeImmutableState, appErr.Code)
}

func TestUpdatePreservesStoredPricingForExistingLines(t *testing.T) {
	t.Parallel()

	existingProduct := uuid.New()
	newProduct := uuid.New()
	o := pendingOrder(existingProduct)
	store := newMockStore(o)
	catalog := &mockCatalog{prices: map[uuid.UUID]money.Money{
		// The catalog price of the existing product has moved since the
		// order was agreed; the stored line must not notice.
		existingProduct: money.MustFromString("99.99"),
		newProduct:      money.MustFromString("7.25"),
	}}
	svc := &order.Service{Store: store, Catalog: catalog}

	updated, err := svc.Update(context.Background(), o.ID, order.UpdateInput{
		ExpectedVersion: ptr(int64(3)),
		Items: []order.ItemSpec{
			{ProductID: existingProduct, Qty: 4},
			{ProductID: newProduct, Qty: 2},
		},
	})
	require.NoError(t, err)
	require.Len(t, updated.Items, 2)

	byProduct := map[uuid.UUID]order.Item{}
	for _, it := range updated.Items {
		byProduct[it.ProductID] = it
	}
	require.Equal(t, "10.00", byProduct[existingProduct].UnitPrice.String())
	require.Equal(t, "1.00", byProduct[existingProduct].Discount.String())
	require.Equal(t, "7.25", byProduct[newProduct].UnitPrice.String())
	require.Equal(t, "0.00", byProduct[newProduct].Discount.String())
}

func TestUpdateRemovingLastLineRejected(t *testing.T) {
	t.Parallel()

	productID := uuid.New()
	o := pendingOrder(productID)
	store := newMockStore(o)
	svc := &order.Service{Store: store, Catalog: &mockCatalog{prices: map[uuid.UUID]money.Money{}}}

	_, err := svc.Update(context.Background(), o.ID, order.UpdateInput{
		ExpectedVersion: ptr(int64(3)),
		Items:           []order.ItemSpec{{ProductID: productID, Qty: 0}},
	})
	require.ErrorIs(t, err, order.ErrLastItem)
}

func TestUpdateRejectsNonPositiveNewLine(t *testing.T) {
	t.Parallel()

	existingProduct := uuid.New()
	newProduct := uuid.New()
	o := pendingOrder(existingProduct)
	store := newMockStore(o)
	svc := &order.Service{
		Store:   store,
		Catalog: &mockCatalog{prices: map[uuid.UUID]money.Money{newProduct: money.FromInt(1)}},
	}

	_, err := svc.Update(context.Background(), o.ID, order.UpdateInput{
		ExpectedVersion: ptr(int64(3)),
		Items: []order.ItemSpec{
			{ProductID: existingProduct, Qty: 1},
			{ProductID: newProduct, Qty: 0},
		},
	})
	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, common.CodeValidation, appErr.Code)
}

func TestUpdateUnknownProduct(t *testing.T) {
	t.Parallel()

	existingProduct := uuid.New()
	o := pendingOrder(existingProduct)
	store := newMockStore(o)
	svc := &order.Service{Store: store, Catalog: &mockCatalog{prices: map[uuid.UUID]money.Money{}}}

	_, err := svc.Update(context.Background(), o.ID, order.UpdateInput{
		ExpectedVersion: ptr(int64(3)),
		Items: []order.ItemSpec{
			{ProductID: existingProduct, Qty: 1},
			{ProductID: uuid.New(), Qty: 2},
		},
	})
	require.ErrorIs(t, err, order.ErrProductNotFound)
}

func TestUpdateAgainstOpenShipment(t *testing.T) {
	t.Parallel()

	productID := uuid.New()
	o := pendingOrder(productID)
	o.Items[0].Qty = 10
	store := newMockStore(o)
	// An open shipment has already taken 4 of the 10 ordered.
	store.shipped[o.Items[0].ID] = 4
	svc := &order.Service{Store: store, Catalog: &mockCatalog{prices: map[uuid.UUID]money.Money{}}}
	ctx := context.Background()

	// Shrinking to 6 stays above the shipped quantity and succeeds.
	updated, err := svc.Update(ctx, o.ID, order.UpdateInput{
		ExpectedVersion: ptr(int64(3)),
		Items:           []order.ItemSpec{{ProductID: productID, Qty: 6}},
	})
	require.NoError(t, err)
	require.Equal(t, 6, updated.Items[0].Qty)

	// Shrinking below the shipped quantity is rejected, naming the numbers.
	_, err = svc.Update(ctx, o.ID, order.UpdateInput{
		ExpectedVersion: ptr(int64(4)),
		Items:           []order.ItemSpec{{ProductID: productID, Qty: 3}},
	})
	var shippedErr *order.ShippedLineError
	require.True(t, errors.As(err, &shippedErr))
	require.Equal(t, 4, shippedErr.Shipped)
	require.Equal(t, 3, shippedErr.Requested)
	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, common.CodeValidation, appErr.Code)
	require.Contains(t, appErr.Message, "4 already shipped")

	// The failed write left nothing behind.
	current, err := svc.Get(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, 6, current.Items[0].Qty)
	require.Equal(t, int64(4), current.Version)
}

func TestUpdateCannotRemoveShippedLine(t *testing.T) {
	t.Parallel()

	shippedProduct := uuid.New()
	otherProduct := uuid.New()
	o := pendingOrder(shippedProduct)
	o.Items[0].Qty = 5
	store := newMockStore(o)
	store.shipped[o.Items[0].ID] = 2
	catalog := &mockCatalog{prices: map[uuid.UUID]money.Money{
		otherProduct: money.MustFromString("3.00"),
	}}
	svc := &order.Service{Store: store, Catalog: catalog}

	// Replacing the shipped line with a fresh one is a removal and must fail.
	_, err := svc.Update(context.Background(), o.ID, order.UpdateInput{
		ExpectedVersion: ptr(int64(3)),
		Items:           []order.ItemSpec{{ProductID: otherProduct, Qty: 1}},
	})
	var shippedErr *order.ShippedLineError
	require.True(t, errors.As(err, &shippedErr))
	require.Equal(t, shippedProduct, shippedErr.ProductID)
	require.Equal(t, 0, shippedErr.Requested)
	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, common.CodeValidation, appErr.Code)
	require.Contains(t, appErr.Message, "cannot remove")
}

func TestUpdateUnknownOrder(t *testing.T) {
	t.Parallel()

	svc := &order.Service{Store: newMockStore(), Catalog: &mockCatalog{}}
	_, err := svc.Update(context.Background(), uuid.New(), order.UpdateInput{
		Items: []order.ItemSpec{{ProductID: uuid.New(), Qty: 1}},
	})
	require.ErrorIs(t, err, order.ErrNotFound)
}
