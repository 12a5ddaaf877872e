package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"evbooking/backend/services/booking-gateway/internal/flow"
)

// FlowMetrics exposes counters/histograms for booking flows.
type FlowMetrics struct {
	transitionsTotal *prometheus.CounterVec
	backendLatency   *prometheus.HistogramVec
	liveFlows        prometheus.Gauge
}

func NewFlowMetrics(reg prometheus.Registerer) *FlowMetrics {
	m := &FlowMetrics{
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evbooking",
			Subsystem: "flow",
			Name:      "transitions_total",
			Help:      "Booking flow transitions by operation and outcome",
		}, []string{"op", "outcome"}),
		backendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "evbooking",
			Subsystem: "backend",
			Name:      "request_duration_seconds",
			Help:      "Latency of booking API calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"call", "outcome"}),
		liveFlows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "evbooking",
			Subsystem: "flow",
			Name:      "live",
			Help:      "Booking flows currently held in memory",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.transitionsTotal, m.backendLatency, m.liveFlows)
	return m
}

// OnTransition implements flow.Observer. Outcome is "ok" or the error kind.
func (m *FlowMetrics) OnTransition(_ context.Context, ev flow.Event, _ flow.Session) {
	if m == nil {
		return
	}
	outcome := "ok"
	if ev.Err != nil {
		outcome = string(ev.Err.Kind)
	}
	m.transitionsTotal.WithLabelValues(string(ev.Op), outcome).Inc()
}

// ObserveRejected counts transitions refused before they touched the session (busy, stale,
// wrong phase, completed).
func (m *FlowMetrics) ObserveRejected(op flow.Operation, err error) {
	if m == nil || err == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(string(op), string(flow.KindOf(err))).Inc()
}

func (m *FlowMetrics) ObserveBackend(call string, err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = string(flow.KindOf(err))
	}
	m.backendLatency.WithLabelValues(call, outcome).Observe(d.Seconds())
}

func (m *FlowMetrics) SetLiveFlows(n int) {
	if m == nil {
		return
	}
	m.liveFlows.Set(float64(n))
}

type instrumentedBackend struct {
	next    flow.Backend
	metrics *FlowMetrics
}

// InstrumentBackend records the latency of every backend call.
func InstrumentBackend(next flow.Backend, m *FlowMetrics) flow.Backend {
	if m == nil {
		return next
	}
	return &instrumentedBackend{next: next, metrics: m}
}

func (b *instrumentedBackend) ListAvailableSlots(ctx context.Context, portID int64) ([]flow.SlotRecord, error) {
	start := time.Now()
	slots, err := b.next.ListAvailableSlots(ctx, portID)
	b.metrics.ObserveBackend("list_available_slots", err, time.Since(start))
	return slots, err
}

func (b *instrumentedBackend) CreateBooking(ctx context.Context, req flow.BookingRequest) (flow.BookingRecord, error) {
	start := time.Now()
	rec, err := b.next.CreateBooking(ctx, req)
	b.metrics.ObserveBackend("create_booking", err, time.Since(start))
	return rec, err
}

func (b *instrumentedBackend) ProcessPayment(ctx context.Context, bookingID int64, method flow.PaymentMethod) (flow.BookingRecord, error) {
	start := time.Now()
	rec, err := b.next.ProcessPayment(ctx, bookingID, method)
	b.metrics.ObserveBackend("process_payment", err, time.Since(start))
	return rec, err
}

func (b *instrumentedBackend) SubscriptionStatus(ctx context.Context) (flow.SubscriptionInfo, error) {
	start := time.Now()
	info, err := b.next.SubscriptionStatus(ctx)
	b.metrics.ObserveBackend("subscription_status", err, time.Since(start))
	return info, err
}
