package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-erp/internal/shipment"
)

// Shipments is the pgx-backed shipment store.
type Shipments struct {
	Pool *pgxpool.Pool
}

const shippedQuantitiesSQL = `
SELECT si.order_item_id, COALESCE(SUM(si.qty), 0)::int
FROM shipment_items si
JOIN shipments s ON s.id = si.shipment_id
WHERE s.order_id = $1 AND s.status <> 'CANCELLED'
GROUP BY si.order_item_id`

// CreateShipment inserts a shipment and its items, re-validating availability
// while holding row locks on the order items so two concurrent creations
// cannot jointly oversell a line.
func (r *Shipments) CreateShipment(ctx context.Context, sh shipment.Shipment) (shipment.Shipment, error) {
	return withTx(ctx, r.Pool, func(tx pgx.Tx) (shipment.Shipment, error) {
		ordered := map[uuid.UUID]int{}
		rows, err := tx.Query(ctx,
			`SELECT id, qty FROM order_items WHERE order_id = $1 FOR UPDATE`, sh.OrderID)
		if err != nil {
			return shipment.Shipment{}, fmt.Errorf("lock order items: %w", err)
		}
		for rows.Next() {
			var (
				id  uuid.UUID
				qty int
			)
			if err := rows.Scan(&id, &qty); err != nil {
				rows.Close()
				return shipment.Shipment{}, fmt.Errorf("scan order item: %w", err)
			}
			ordered[id] = qty
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return shipment.Shipment{}, err
		}

		shipped, err := shippedQuantities(ctx, tx, sh.OrderID)
		if err != nil {
			return shipment.Shipment{}, err
		}
		for _, it := range sh.Items {
			if it.Qty > ordered[it.OrderItemID]-shipped[it.OrderItemID] {
				return shipment.Shipment{}, &shipment.OversellError{
					OrderItemID: it.OrderItemID,
					Requested:   it.Qty,
					Ordered:     ordered[it.OrderItemID],
					Shipped:     shipped[it.OrderItemID],
				}
			}
		}

		err = tx.QueryRow(ctx, `
INSERT INTO shipments (id, order_id, status, scheduled_at, method, carrier, tracking)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING created_at, updated_at`,
			sh.ID, sh.OrderID, sh.Status, sh.ScheduledAt, sh.Method, sh.Carrier, sh.Tracking,
		).Scan(&sh.CreatedAt, &sh.UpdatedAt)
		if err != nil {
			return shipment.Shipment{}, fmt.Errorf("insert shipment: %w", err)
		}
		for _, it := range sh.Items {
			_, err := tx.Exec(ctx, `
INSERT INTO shipment_items (id, shipment_id, order_item_id, qty)
VALUES ($1, $2, $3, $4)`,
				it.ID, sh.ID, it.OrderItemID, it.Qty)
			if err != nil {
				return shipment.Shipment{}, fmt.Errorf("insert shipment item: %w", err)
			}
		}
		return sh, nil
	})
}

const getShipmentSQL = `
SELECT id, order_id, status, scheduled_at, method, carrier, tracking, created_at, updated_at
FROM shipments
WHERE id = $1 AND order_id = $2`

// GetShipment loads a shipment scoped to its owning order.
func (r *Shipments) GetShipment(ctx context.Context, orderID, shipmentID uuid.UUID) (shipment.Shipment, error) {
	var sh shipment.Shipment
	err := r.Pool.QueryRow(ctx, getShipmentSQL, shipmentID, orderID).Scan(
		&sh.ID, &sh.OrderID, &sh.Status, &sh.ScheduledAt,
		&sh.Method, &sh.Carrier, &sh.Tracking, &sh.CreatedAt, &sh.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return shipment.Shipment{}, shipment.ErrNotFound
		}
		return shipment.Shipment{}, fmt.Errorf("query shipment: %w", err)
	}

	items, err := r.shipmentItems(ctx, shipmentID)
	if err != nil {
		return shipment.Shipment{}, err
	}
	sh.Items = items
	return sh, nil
}

// UpdateShipment persists metadata and status changes. Item quantities are
// never updated here; they are fixed at creation. The immutability of
// SHIPPED/DELIVERED rows is enforced in the statement itself, so a concurrent
// transition between the caller's read and this write cannot slip an edit
// past it. The single edit a SHIPPED row still accepts is advancing to
// DELIVERED.
func (r *Shipments) UpdateShipment(ctx context.Context, sh shipment.Shipment) (shipment.Shipment, error) {
	err := r.Pool.QueryRow(ctx, `
UPDATE shipments
SET status = $2, scheduled_at = $3, method = $4, carrier = $5, tracking = $6, updated_at = now()
WHERE id = $1
  AND (status NOT IN ('SHIPPED', 'DELIVERED')
       OR (status = 'SHIPPED' AND $2::text = 'DELIVERED'))
RETURNING updated_at`,
		sh.ID, sh.Status, sh.ScheduledAt, sh.Method, sh.Carrier, sh.Tracking,
	).Scan(&sh.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return shipment.Shipment{}, r.classifyBlockedWrite(ctx, sh.ID)
		}
		return shipment.Shipment{}, fmt.Errorf("update shipment: %w", err)
	}
	return sh, nil
}

// DeleteShipment removes a shipment and its items. The status is re-checked
// under a row lock so a delete cannot race a concurrent transition to
// SHIPPED.
func (r *Shipments) DeleteShipment(ctx context.Context, shipmentID uuid.UUID) error {
	_, err := withTx(ctx, r.Pool, func(tx pgx.Tx) (struct{}, error) {
		var status shipment.Status
		err := tx.QueryRow(ctx,
			`SELECT status FROM shipments WHERE id = $1 FOR UPDATE`, shipmentID).Scan(&status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return struct{}{}, shipment.ErrNotFound
			}
			return struct{}{}, fmt.Errorf("lock shipment: %w", err)
		}
		if status.Immutable() {
			return struct{}{}, shipment.ErrImmutable
		}
		if _, err := tx.Exec(ctx, `DELETE FROM shipment_items WHERE shipment_id = $1`, shipmentID); err != nil {
			return struct{}{}, fmt.Errorf("delete shipment items: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM shipments WHERE id = $1`, shipmentID); err != nil {
			return struct{}{}, fmt.Errorf("delete shipment: %w", err)
		}
		return struct{}{}, nil
	})
	return err
}

// classifyBlockedWrite distinguishes a missing row from one the guard froze.
func (r *Shipments) classifyBlockedWrite(ctx context.Context, shipmentID uuid.UUID) error {
	var exists bool
	if err := r.Pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM shipments WHERE id = $1)`, shipmentID).Scan(&exists); err != nil {
		return fmt.Errorf("check shipment exists: %w", err)
	}
	if !exists {
		return shipment.ErrNotFound
	}
	return shipment.ErrImmutable
}

// ShippedQuantities sums non-cancelled shipment quantities per order line.
func (r *Shipments) ShippedQuantities(ctx context.Context, orderID uuid.UUID) (map[uuid.UUID]int, error) {
	return shippedQuantities(ctx, r.Pool, orderID)
}

const queryRangeSQL = `
SELECT s.id, s.order_id, s.status, s.scheduled_at, s.method, s.carrier, s.tracking,
       s.created_at, s.updated_at
FROM shipments s
JOIN orders o ON o.id = s.order_id
WHERE s.scheduled_at BETWEEN $1 AND $2
  AND ($3::uuid IS NULL OR o.location_id = $3)
ORDER BY s.scheduled_at, s.id`

// QueryRange lists shipments scheduled within the inclusive range, optionally
// filtered by the owning order's location.
func (r *Shipments) QueryRange(ctx context.Context, start, end time.Time, locationID *uuid.UUID) ([]shipment.Shipment, error) {
	rows, err := r.Pool.Query(ctx, queryRangeSQL, start, end, locationID)
	if err != nil {
		return nil, fmt.Errorf("query shipments: %w", err)
	}
	defer rows.Close()

	var shipments []shipment.Shipment
	for rows.Next() {
		var sh shipment.Shipment
		if err := rows.Scan(
			&sh.ID, &sh.OrderID, &sh.Status, &sh.ScheduledAt,
			&sh.Method, &sh.Carrier, &sh.Tracking, &sh.CreatedAt, &sh.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan shipment: %w", err)
		}
		shipments = append(shipments, sh)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range shipments {
		items, err := r.shipmentItems(ctx, shipments[i].ID)
		if err != nil {
			return nil, err
		}
		shipments[i].Items = items
	}
	return shipments, nil
}

func (r *Shipments) shipmentItems(ctx context.Context, shipmentID uuid.UUID) ([]shipment.Item, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT id, shipment_id, order_item_id, qty FROM shipment_items WHERE shipment_id = $1`, shipmentID)
	if err != nil {
		return nil, fmt.Errorf("query shipment items: %w", err)
	}
	defer rows.Close()

	var items []shipment.Item
	for rows.Next() {
		var it shipment.Item
		if err := rows.Scan(&it.ID, &it.ShipmentID, &it.OrderItemID, &it.Qty); err != nil {
			return nil, fmt.Errorf("scan shipment item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func shippedQuantities(ctx context.Context, q queryer, orderID uuid.UUID) (map[uuid.UUID]int, error) {
	rows, err := q.Query(ctx, shippedQuantitiesSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("query shipped quantities: %w", err)
	}
	defer rows.Close()

	shipped := map[uuid.UUID]int{}
	for rows.Next() {
		var (
			itemID uuid.UUID
			qty    int
		)
		if err := rows.Scan(&itemID, &qty); err != nil {
			return nil, fmt.Errorf("scan shipped quantity: %w", err)
		}
		shipped[itemID] = qty
	}
	return shipped, rows.Err()
}
