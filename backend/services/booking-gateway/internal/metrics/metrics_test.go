package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evbooking/backend/services/booking-gateway/internal/flow"
)

type stubBackend struct {
	err error
}

func (s stubBackend) ListAvailableSlots(context.Context, int64) ([]flow.SlotRecord, error) {
	return nil, s.err
}

func (s stubBackend) CreateBooking(context.Context, flow.BookingRequest) (flow.BookingRecord, error) {
	return flow.BookingRecord{ID: 1}, s.err
}

func (s stubBackend) ProcessPayment(context.Context, int64, flow.PaymentMethod) (flow.BookingRecord, error) {
	return flow.BookingRecord{}, s.err
}

func (s stubBackend) SubscriptionStatus(context.Context) (flow.SubscriptionInfo, error) {
	return flow.SubscriptionInfo{}, s.err
}

func TestTransitionsCounter(t *testing.T) {
	m := NewFlowMetrics(prometheus.NewRegistry())

	m.OnTransition(context.Background(), flow.Event{Op: flow.OpConfirm}, flow.Session{})
	m.OnTransition(context.Background(), flow.Event{Op: flow.OpConfirm, Err: &flow.FlowError{Kind: flow.KindUnauthenticated}}, flow.Session{})
	m.ObserveRejected(flow.OpSelect, flow.ErrBusy)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitionsTotal.WithLabelValues("confirm", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitionsTotal.WithLabelValues("confirm", "unauthenticated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitionsTotal.WithLabelValues("select", "busy")))
}

func TestInstrumentBackend(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewFlowMetrics(reg)

	ok := InstrumentBackend(stubBackend{}, m)
	rec, err := ok.CreateBooking(context.Background(), flow.BookingRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.ID)

	failing := InstrumentBackend(stubBackend{err: &flow.TransportError{Op: "x", Err: errors.New("refused")}}, m)
	_, err = failing.ListAvailableSlots(context.Background(), 3)
	require.Error(t, err)

	assert.Equal(t, 2, testutil.CollectAndCount(m.backendLatency))
	count, err := testutil.GatherAndCount(reg, "evbooking_backend_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestInstrumentBackendWithoutMetrics(t *testing.T) {
	backend := stubBackend{}
	assert.Equal(t, flow.Backend(backend), InstrumentBackend(backend, nil))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *FlowMetrics

	assert.NotPanics(t, func() {
		m.OnTransition(context.Background(), flow.Event{}, flow.Session{})
		m.ObserveRejected(flow.OpOpen, flow.ErrBusy)
		m.SetLiveFlows(3)
	})
}

func TestLiveFlowsGauge(t *testing.T) {
	m := NewFlowMetrics(prometheus.NewRegistry())
	m.SetLiveFlows(4)

	assert.Equal(t, 4.0, testutil.ToFloat64(m.liveFlows))
}
