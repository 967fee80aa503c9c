package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-erp/internal/money"
	"github.com/noah-isme/backend-erp/internal/order"
	"github.com/noah-isme/backend-erp/internal/shipment"
)

// Orders is the pgx-backed order store. It also serves the shipment package's
// view of order lines.
type Orders struct {
	Pool *pgxpool.Pool
}

const getOrderSQL = `
SELECT id, number, customer_id, location_id, status, version,
       tax_exempt, tax_rate_bps, delivery_address,
       subtotal::text, discount::text, tax::text, delivery_fee::text, total::text,
       created_at, updated_at
FROM orders
WHERE id = $1`

const getOrderItemsSQL = `
SELECT id, order_id, product_id, qty, unit_price::text, discount::text
FROM order_items
WHERE order_id = $1
ORDER BY created_at, id`

// GetOrder loads an order with its line items.
func (r *Orders) GetOrder(ctx context.Context, id uuid.UUID) (order.Order, error) {
	row := r.Pool.QueryRow(ctx, getOrderSQL, id)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return order.Order{}, order.ErrNotFound
		}
		return order.Order{}, fmt.Errorf("scanOrder: %w", err)
	}

	items, err := r.orderItems(ctx, r.Pool, id)
	if err != nil {
		return order.Order{}, err
	}
	o.Items = items
	return o, nil
}

const updateOrderGuardedSQL = `
UPDATE orders
SET delivery_address = $3,
    subtotal = $4, discount = $5, tax = $6, delivery_fee = $7, total = $8,
    version = version + 1,
    updated_at = now()
WHERE id = $1 AND ($2::bigint IS NULL OR version = $2)
RETURNING version, updated_at`

// UpdateGuarded replaces the order's totals and items in one transaction,
// incrementing the version. The version check and the increment are a single
// conditional UPDATE: a stale expected version affects zero rows and nothing
// is written. Surviving lines are updated in place so shipment items keep
// their references; a line cannot be removed or shrunk below what open
// shipments have already allocated.
func (r *Orders) UpdateGuarded(ctx context.Context, o order.Order, expectedVersion *int64) (order.Order, error) {
	return withTx(ctx, r.Pool, func(tx pgx.Tx) (order.Order, error) {
		err := tx.QueryRow(ctx, updateOrderGuardedSQL,
			o.ID, expectedVersion, o.DeliveryAddress,
			numeric(o.Subtotal), numeric(o.Discount), numeric(o.Tax),
			numeric(o.DeliveryFee), numeric(o.Total),
		).Scan(&o.Version, &o.UpdatedAt)
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				return order.Order{}, fmt.Errorf("update order: %w", err)
			}
			// Zero rows: either the order is gone or the version is stale.
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, o.ID).Scan(&exists); err != nil {
				return order.Order{}, fmt.Errorf("check order exists: %w", err)
			}
			if !exists {
				return order.Order{}, order.ErrNotFound
			}
			return order.Order{}, order.ErrVersionConflict
		}

		if err := r.reconcileItems(ctx, tx, o); err != nil {
			return order.Order{}, err
		}
		return o, nil
	})
}

func (r *Orders) reconcileItems(ctx context.Context, tx pgx.Tx, o order.Order) error {
	existing := map[uuid.UUID]uuid.UUID{} // item id -> product id
	rows, err := tx.Query(ctx,
		`SELECT id, product_id FROM order_items WHERE order_id = $1 FOR UPDATE`, o.ID)
	if err != nil {
		return fmt.Errorf("lock order items: %w", err)
	}
	for rows.Next() {
		var itemID, productID uuid.UUID
		if err := rows.Scan(&itemID, &productID); err != nil {
			rows.Close()
			return fmt.Errorf("scan order item: %w", err)
		}
		existing[itemID] = productID
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	shipped, err := shippedQuantities(ctx, tx, o.ID)
	if err != nil {
		return err
	}

	keep := make(map[uuid.UUID]order.Item, len(o.Items))
	for _, it := range o.Items {
		keep[it.ID] = it
	}

	var removed []uuid.UUID
	for itemID, productID := range existing {
		it, survives := keep[itemID]
		if !survives {
			if shipped[itemID] > 0 {
				return &order.ShippedLineError{ProductID: productID, Requested: 0, Shipped: shipped[itemID]}
			}
			removed = append(removed, itemID)
			continue
		}
		if it.Qty < shipped[itemID] {
			return &order.ShippedLineError{ProductID: it.ProductID, Requested: it.Qty, Shipped: shipped[itemID]}
		}
		_, err := tx.Exec(ctx, `
UPDATE order_items SET qty = $2, unit_price = $3, discount = $4 WHERE id = $1`,
			itemID, it.Qty, numeric(it.UnitPrice), numeric(it.Discount))
		if err != nil {
			return fmt.Errorf("update order item: %w", err)
		}
	}

	for _, itemID := range removed {
		// Open references were rejected above; whatever still points at this
		// line belongs to cancelled shipments and goes with it.
		if _, err := tx.Exec(ctx, `DELETE FROM shipment_items WHERE order_item_id = $1`, itemID); err != nil {
			return fmt.Errorf("delete cancelled shipment items: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE id = $1`, itemID); err != nil {
			return fmt.Errorf("delete order item: %w", err)
		}
	}

	for _, it := range o.Items {
		if _, ok := existing[it.ID]; ok {
			continue
		}
		_, err := tx.Exec(ctx, `
INSERT INTO order_items (id, order_id, product_id, qty, unit_price, discount)
VALUES ($1, $2, $3, $4, $5, $6)`,
			it.ID, o.ID, it.ProductID, it.Qty, numeric(it.UnitPrice), numeric(it.Discount))
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

// OrderLines serves the shipment tracker's view of ordered quantities.
func (r *Orders) OrderLines(ctx context.Context, orderID uuid.UUID) ([]shipment.OrderLine, error) {
	var exists bool
	if err := r.Pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check order exists: %w", err)
	}
	if !exists {
		return nil, shipment.ErrOrderNotFound
	}

	rows, err := r.Pool.Query(ctx, `SELECT id, qty FROM order_items WHERE order_id = $1`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	var lines []shipment.OrderLine
	for rows.Next() {
		var line shipment.OrderLine
		if err := rows.Scan(&line.ItemID, &line.Ordered); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *Orders) orderItems(ctx context.Context, q queryer, orderID uuid.UUID) ([]order.Item, error) {
	rows, err := q.Query(ctx, getOrderItemsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	var items []order.Item
	for rows.Next() {
		var (
			it                 order.Item
			unitPriceStr, dStr string
		)
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Qty, &unitPriceStr, &dStr); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		if it.UnitPrice, err = money.FromString(unitPriceStr); err != nil {
			return nil, err
		}
		if it.Discount, err = money.FromString(dStr); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func scanOrder(row pgx.Row) (order.Order, error) {
	var (
		o       order.Order
		amounts [5]string
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.CustomerID, &o.LocationID, &o.Status, &o.Version,
		&o.TaxExempt, &o.TaxRateBps, &o.DeliveryAddress,
		&amounts[0], &amounts[1], &amounts[2], &amounts[3], &amounts[4],
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return order.Order{}, err
	}
	fields := []*money.Money{&o.Subtotal, &o.Discount, &o.Tax, &o.DeliveryFee, &o.Total}
	for i, raw := range amounts {
		if *fields[i], err = money.FromString(raw); err != nil {
			return order.Order{}, err
		}
	}
	return o, nil
}

// numeric renders a Money for a NUMERIC(12,2) parameter, rounding half away
// from zero at the persistence boundary.
func numeric(m money.Money) string {
	return m.StoredDecimal(money.DisplayPlaces).StringFixed(money.DisplayPlaces)
}
