package shipment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the shipment lifecycle state.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusScheduled Status = "SCHEDULED"
	StatusShipped   Status = "SHIPPED"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
)

// ParseStatus validates a status string from the wire.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusScheduled, StatusShipped, StatusDelivered, StatusCancelled:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown shipment status %q", s)
}

// Immutable reports whether the shipment can no longer be edited or deleted.
// Cancellation of a shipped shipment is not possible either; the goods left.
func (s Status) Immutable() bool {
	return s == StatusShipped || s == StatusDelivered
}

// CountsAgainstAvailability reports whether the shipment's quantities are
// held against the order lines. Cancelled shipments return their quantity to
// the pool.
func (s Status) CountsAgainstAvailability() bool {
	return s != StatusCancelled
}

// allowedTransition encodes the status state machine:
// PENDING/SCHEDULED -> SHIPPED -> DELIVERED, with CANCELLED reachable only
// before SHIPPED.
func allowedTransition(current, next Status) bool {
	if current == next {
		return true
	}
	switch current {
	case StatusPending:
		return next == StatusScheduled || next == StatusShipped || next == StatusCancelled
	case StatusScheduled:
		return next == StatusPending || next == StatusShipped || next == StatusCancelled
	case StatusShipped:
		return next == StatusDelivered
	default:
		return false
	}
}

// Item allocates part of an order line to this shipment. Quantities on a
// persisted shipment are never edited, only replaced by delete-and-recreate
// while the shipment is still mutable.
type Item struct {
	ID          uuid.UUID
	ShipmentID  uuid.UUID
	OrderItemID uuid.UUID
	Qty         int
}

// Shipment is a scheduled (possibly partial) fulfilment of an order.
type Shipment struct {
	ID          uuid.UUID
	OrderID     uuid.UUID
	Status      Status
	ScheduledAt *time.Time
	Method      string
	Carrier     string
	Tracking    string
	Items       []Item

	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderLine is the slice of order state the allocation tracker needs.
type OrderLine struct {
	ItemID  uuid.UUID
	Ordered int
}

// OversellError reports a quantity request exceeding current availability,
// carrying the numbers the caller needs to render a correction.
type OversellError struct {
	OrderItemID uuid.UUID
	Requested   int
	Ordered     int
	Shipped     int
}

func (e *OversellError) Error() string {
	available := e.Ordered - e.Shipped
	return fmt.Sprintf("Only %d available: %d ordered, %d already shipped (requested %d for item %s)",
		available, e.Ordered, e.Shipped, e.Requested, e.OrderItemID)
}
