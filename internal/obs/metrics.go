package obs

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DomainMetrics counts business-level outcomes of the order computation core.
type DomainMetrics struct {
	OrderUpdates       *prometheus.CounterVec
	ShipmentRejections *prometheus.CounterVec
	EntityNumbers      *prometheus.CounterVec
}

// Order update outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeConflict = "conflict"
	OutcomeInvalid  = "invalid"
)

// Entity number source labels.
const (
	SourceSequence = "sequence"
	SourceFallback = "fallback"
)

// NewDomainMetrics registers the domain counters on the given registerer.
// A nil registerer falls back to the default prometheus registry.
func NewDomainMetrics(namespace string, reg prometheus.Registerer) *DomainMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &DomainMetrics{
		OrderUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_updates_total",
			Help:      "Order update attempts by outcome.",
		}, []string{"outcome"}),
		ShipmentRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shipment_rejections_total",
			Help:      "Shipment requests rejected by reason.",
		}, []string{"reason"}),
		EntityNumbers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entity_numbers_total",
			Help:      "Entity numbers generated by type and source.",
		}, []string{"type", "source"}),
	}
	reg.MustRegister(m.OrderUpdates, m.ShipmentRejections, m.EntityNumbers)
	return m
}

// RecordOrderUpdate increments the order update counter for an outcome.
func (m *DomainMetrics) RecordOrderUpdate(outcome string) {
	if m == nil {
		return
	}
	m.OrderUpdates.WithLabelValues(outcome).Inc()
}

// RecordShipmentRejection increments the shipment rejection counter.
func (m *DomainMetrics) RecordShipmentRejection(reason string) {
	if m == nil {
		return
	}
	m.ShipmentRejections.WithLabelValues(reason).Inc()
}

// RecordEntityNumber increments the generated-number counter for a type.
// Timestamp-fallback numbers are recorded distinctly from sequence-backed
// ones so an unseeded type shows up in the metrics.
func (m *DomainMetrics) RecordEntityNumber(entityType, source string) {
	if m == nil {
		return
	}
	m.EntityNumbers.WithLabelValues(entityType, source).Inc()
}
