package shipment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-erp/internal/audit"
	"github.com/noah-isme/backend-erp/internal/common"
	"github.com/noah-isme/backend-erp/internal/obs"
)

var (
	// ErrNotFound is returned when the shipment does not exist or does not
	// belong to the given order.
	ErrNotFound = errors.New("shipment not found")
	// ErrOrderNotFound is returned when the target order does not exist.
	ErrOrderNotFound = errors.New("order not found")
	// ErrImmutable is returned for edits or deletes of a SHIPPED/DELIVERED shipment.
	ErrImmutable = errors.New("shipment is no longer mutable")
	// ErrInvalidTransition is returned for a status change the state machine forbids.
	ErrInvalidTransition = errors.New("invalid shipment status transition")
)

// Rejection reasons reported to metrics.
const (
	reasonOversell    = "oversell"
	reasonEmptyItems  = "empty_items"
	reasonForeignItem = "foreign_item"
	reasonBadQty      = "bad_quantity"
	reasonBadDate     = "bad_date"
)

// OrderSource exposes the slice of order state the tracker consults.
type OrderSource interface {
	// OrderLines returns the ordered quantity per line item of the order,
	// or ErrOrderNotFound.
	OrderLines(ctx context.Context, orderID uuid.UUID) ([]OrderLine, error)
}

// Store is the persistence port for shipments. CreateShipment must
// re-validate availability atomically with the insert (row locks or an
// equivalent serializable check): the service's pre-check alone leaves a
// race window between concurrent creations against the same line.
type Store interface {
	CreateShipment(ctx context.Context, s Shipment) (Shipment, error)
	GetShipment(ctx context.Context, orderID, shipmentID uuid.UUID) (Shipment, error)
	UpdateShipment(ctx context.Context, s Shipment) (Shipment, error)
	DeleteShipment(ctx context.Context, shipmentID uuid.UUID) error
	// ShippedQuantities sums non-cancelled shipment quantities per order line.
	ShippedQuantities(ctx context.Context, orderID uuid.UUID) (map[uuid.UUID]int, error)
	QueryRange(ctx context.Context, start, end time.Time, locationID *uuid.UUID) ([]Shipment, error)
}

// Service tracks shipment allocations per order line and prevents
// over-shipment across repeated partial shipments.
type Service struct {
	Store   Store
	Orders  OrderSource
	Audit   *audit.Recorder
	Metrics *obs.DomainMetrics
	Logger  zerolog.Logger
}

// ItemInput requests a quantity of one order line.
type ItemInput struct {
	OrderItemID uuid.UUID
	Qty         int
}

// CreateInput describes a new shipment request.
type CreateInput struct {
	Items         []ItemInput
	ScheduledDate string
	Method        string
	Carrier       string
	Tracking      string
}

// UpdateInput edits shipment metadata. Item quantities are deliberately
// absent: they are only replaceable by delete-and-recreate.
type UpdateInput struct {
	ScheduledDate *string
	Method        *string
	Carrier       *string
	Tracking      *string
	Status        *Status
}

// Create validates the whole request against current availability before any
// row is written, then persists it. Any failing item rejects the request as
// a whole.
func (s *Service) Create(ctx context.Context, orderID uuid.UUID, in CreateInput) (Shipment, error) {
	if len(in.Items) == 0 {
		s.Metrics.RecordShipmentRejection(reasonEmptyItems)
		return Shipment{}, common.ValidationError("a shipment requires at least one item", nil)
	}

	var scheduledAt *time.Time
	if in.ScheduledDate != "" {
		t, err := ParseScheduleDate(in.ScheduledDate)
		if err != nil {
			s.Metrics.RecordShipmentRejection(reasonBadDate)
			return Shipment{}, common.ValidationError(err.Error(), err)
		}
		scheduledAt = &t
	}

	lines, err := s.Orders.OrderLines(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return Shipment{}, common.NotFoundError("order not found", err)
		}
		return Shipment{}, common.InternalError(fmt.Errorf("orders.OrderLines: %w", err))
	}
	ordered := make(map[uuid.UUID]int, len(lines))
	for _, line := range lines {
		ordered[line.ItemID] = line.Ordered
	}

	shipped, err := s.Store.ShippedQuantities(ctx, orderID)
	if err != nil {
		return Shipment{}, common.InternalError(fmt.Errorf("store.ShippedQuantities: %w", err))
	}

	seen := make(map[uuid.UUID]bool, len(in.Items))
	for _, item := range in.Items {
		if seen[item.OrderItemID] {
			s.Metrics.RecordShipmentRejection(reasonBadQty)
			return Shipment{}, common.ValidationError(
				fmt.Sprintf("order item %s is listed more than once", item.OrderItemID), nil)
		}
		seen[item.OrderItemID] = true

		total, belongs := ordered[item.OrderItemID]
		if !belongs {
			s.Metrics.RecordShipmentRejection(reasonForeignItem)
			return Shipment{}, common.ValidationError(
				fmt.Sprintf("order item %s does not belong to order %s", item.OrderItemID, orderID), nil)
		}
		if item.Qty <= 0 {
			s.Metrics.RecordShipmentRejection(reasonBadQty)
			return Shipment{}, common.ValidationError(
				fmt.Sprintf("quantity for item %s must be positive, got %d", item.OrderItemID, item.Qty), nil)
		}
		if already := shipped[item.OrderItemID]; item.Qty > total-already {
			s.Metrics.RecordShipmentRejection(reasonOversell)
			oversell := &OversellError{
				OrderItemID: item.OrderItemID,
				Requested:   item.Qty,
				Ordered:     total,
				Shipped:     already,
			}
			return Shipment{}, common.ValidationError(oversell.Error(), oversell)
		}
	}

	sh := Shipment{
		ID:          uuid.New(),
		OrderID:     orderID,
		Status:      StatusScheduled,
		ScheduledAt: scheduledAt,
		Method:      in.Method,
		Carrier:     in.Carrier,
		Tracking:    in.Tracking,
	}
	if scheduledAt == nil {
		sh.Status = StatusPending
	}
	for _, item := range in.Items {
		sh.Items = append(sh.Items, Item{
			ID:          uuid.New(),
			ShipmentID:  sh.ID,
			OrderItemID: item.OrderItemID,
			Qty:         item.Qty,
		})
	}

	created, err := s.Store.CreateShipment(ctx, sh)
	if err != nil {
		var oversell *OversellError
		if errors.As(err, &oversell) {
			// Lost the race against a concurrent creation; the atomic
			// re-check inside the store caught it.
			s.Metrics.RecordShipmentRejection(reasonOversell)
			return Shipment{}, common.ValidationError(oversell.Error(), oversell)
		}
		return Shipment{}, common.InternalError(fmt.Errorf("store.CreateShipment: %w", err))
	}

	userID, _ := common.UserID(ctx)
	s.Audit.Record(ctx, audit.Entry{
		EntityType: "shipment",
		EntityID:   created.ID.String(),
		Action:     "shipment.created",
		UserID:     userID,
		Changes:    map[string]any{"orderId": orderID.String(), "items": len(created.Items)},
	})
	return created, nil
}

// Update edits metadata and advances the status machine. SHIPPED and
// DELIVERED shipments reject every edit.
func (s *Service) Update(ctx context.Context, orderID, shipmentID uuid.UUID, in UpdateInput) (Shipment, error) {
	sh, err := s.getOwned(ctx, orderID, shipmentID)
	if err != nil {
		return Shipment{}, err
	}
	if sh.Status.Immutable() {
		// The only edit left for a shipped shipment is advancing the status
		// machine (SHIPPED -> DELIVERED). Metadata is frozen.
		statusOnly := in.ScheduledDate == nil && in.Method == nil && in.Carrier == nil && in.Tracking == nil
		if !statusOnly || in.Status == nil || !allowedTransition(sh.Status, *in.Status) {
			return Shipment{}, common.ImmutableStateError(
				fmt.Sprintf("shipment %s is %s and can no longer be edited", sh.ID, sh.Status), ErrImmutable)
		}
	}

	if in.ScheduledDate != nil {
		if *in.ScheduledDate == "" {
			sh.ScheduledAt = nil
		} else {
			t, err := ParseScheduleDate(*in.ScheduledDate)
			if err != nil {
				s.Metrics.RecordShipmentRejection(reasonBadDate)
				return Shipment{}, common.ValidationError(err.Error(), err)
			}
			sh.ScheduledAt = &t
		}
	}
	if in.Method != nil {
		sh.Method = *in.Method
	}
	if in.Carrier != nil {
		sh.Carrier = *in.Carrier
	}
	if in.Tracking != nil {
		sh.Tracking = *in.Tracking
	}
	if in.Status != nil && *in.Status != sh.Status {
		if !allowedTransition(sh.Status, *in.Status) {
			return Shipment{}, common.ValidationError(
				fmt.Sprintf("cannot transition shipment from %s to %s", sh.Status, *in.Status), ErrInvalidTransition)
		}
		sh.Status = *in.Status
	}

	updated, err := s.Store.UpdateShipment(ctx, sh)
	if err != nil {
		if errors.Is(err, ErrImmutable) {
			// A concurrent transition froze the shipment between our read and
			// this write; the store's guard caught it.
			return Shipment{}, common.ImmutableStateError(
				fmt.Sprintf("shipment %s has shipped and can no longer be edited", sh.ID), err)
		}
		if errors.Is(err, ErrNotFound) {
			return Shipment{}, common.NotFoundError(
				fmt.Sprintf("shipment %s not found for order %s", shipmentID, orderID), err)
		}
		return Shipment{}, common.InternalError(fmt.Errorf("store.UpdateShipment: %w", err))
	}

	userID, _ := common.UserID(ctx)
	s.Audit.Record(ctx, audit.Entry{
		EntityType: "shipment",
		EntityID:   updated.ID.String(),
		Action:     "shipment.updated",
		UserID:     userID,
		Changes:    map[string]any{"status": string(updated.Status)},
	})
	return updated, nil
}

// Delete removes a shipment that has not yet shipped.
func (s *Service) Delete(ctx context.Context, orderID, shipmentID uuid.UUID) error {
	sh, err := s.getOwned(ctx, orderID, shipmentID)
	if err != nil {
		return err
	}
	if sh.Status.Immutable() {
		return common.ImmutableStateError(
			fmt.Sprintf("shipment %s is %s and cannot be deleted", sh.ID, sh.Status), ErrImmutable)
	}
	if err := s.Store.DeleteShipment(ctx, sh.ID); err != nil {
		if errors.Is(err, ErrImmutable) {
			return common.ImmutableStateError(
				fmt.Sprintf("shipment %s has shipped and cannot be deleted", sh.ID), err)
		}
		if errors.Is(err, ErrNotFound) {
			return common.NotFoundError(
				fmt.Sprintf("shipment %s not found for order %s", shipmentID, orderID), err)
		}
		return common.InternalError(fmt.Errorf("store.DeleteShipment: %w", err))
	}

	userID, _ := common.UserID(ctx)
	s.Audit.Record(ctx, audit.Entry{
		EntityType: "shipment",
		EntityID:   sh.ID.String(),
		Action:     "shipment.deleted",
		UserID:     userID,
	})
	return nil
}

// Available computes remaining unshipped quantity per line of an order.
func (s *Service) Available(ctx context.Context, orderID uuid.UUID) (map[uuid.UUID]int, error) {
	lines, err := s.Orders.OrderLines(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, common.NotFoundError("order not found", err)
		}
		return nil, common.InternalError(fmt.Errorf("orders.OrderLines: %w", err))
	}
	shipped, err := s.Store.ShippedQuantities(ctx, orderID)
	if err != nil {
		return nil, common.InternalError(fmt.Errorf("store.ShippedQuantities: %w", err))
	}
	available := make(map[uuid.UUID]int, len(lines))
	for _, line := range lines {
		available[line.ItemID] = line.Ordered - shipped[line.ItemID]
	}
	return available, nil
}

// QueryRange lists shipments scheduled within the inclusive range, optionally
// filtered by the owning order's location.
func (s *Service) QueryRange(ctx context.Context, start, end string, locationID *uuid.UUID) ([]Shipment, error) {
	from, err := ParseRangeStart(start)
	if err != nil {
		return nil, common.ValidationError("invalid range start: "+err.Error(), err)
	}
	to, err := ParseRangeEnd(end)
	if err != nil {
		return nil, common.ValidationError("invalid range end: "+err.Error(), err)
	}
	if to.Before(from) {
		return nil, common.ValidationError("range end precedes range start", nil)
	}
	shipments, err := s.Store.QueryRange(ctx, from, to, locationID)
	if err != nil {
		return nil, common.InternalError(fmt.Errorf("store.QueryRange: %w", err))
	}
	return shipments, nil
}

func (s *Service) getOwned(ctx context.Context, orderID, shipmentID uuid.UUID) (Shipment, error) {
	sh, err := s.Store.GetShipment(ctx, orderID, shipmentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Shipment{}, common.NotFoundError(
				fmt.Sprintf("shipment %s not found for order %s", shipmentID, orderID), err)
		}
		return Shipment{}, common.InternalError(fmt.Errorf("store.GetShipment: %w", err))
	}
	return sh, nil
}
