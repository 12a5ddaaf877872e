package audit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"evbooking/backend/services/booking-gateway/internal/flow"
	"evbooking/backend/services/booking-gateway/internal/repository"
)

type captureSaver struct {
	rows []repository.FlowEvent
	err  error
	ctx  context.Context
}

func (c *captureSaver) Save(ctx context.Context, e repository.FlowEvent) error {
	c.ctx = ctx
	c.rows = append(c.rows, e)
	return c.err
}

func TestRecorderConvertsEvents(t *testing.T) {
	saver := &captureSaver{}
	rec := NewRecorder(saver, nil)
	at := time.Date(2026, time.March, 10, 9, 30, 0, 0, time.UTC)

	rec.OnTransition(context.Background(), flow.Event{
		FlowID:     "f1",
		Generation: 2,
		PortID:     3,
		UserID:     7,
		Op:         flow.OpPay,
		From:       flow.PhasePayment,
		To:         flow.PhasePayment,
		BookingID:  42,
		Err:        &flow.FlowError{Kind: flow.KindRemote, Message: "Payment failed. Please try again."},
		Card:       &flow.CardSummary{Last4: "4242", Fingerprint: "fp"},
		At:         at,
		Elapsed:    1500 * time.Millisecond,
	}, flow.Session{})

	require.Len(t, saver.rows, 1)
	row := saver.rows[0]
	assert.Equal(t, "pay", row.Action)
	assert.Equal(t, "remote", row.ErrorKind)
	assert.Equal(t, "Payment failed. Please try again.", row.ErrorMessage)
	assert.Equal(t, "4242", row.CardLast4)
	assert.Equal(t, "fp", row.CardFingerprint)
	assert.Equal(t, int64(1500), row.ElapsedMS)
	assert.Equal(t, at, row.CreatedAt)
}

func TestRecorderOutlivesRequestCancellation(t *testing.T) {
	saver := &captureSaver{}
	rec := NewRecorder(saver, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec.OnTransition(ctx, flow.Event{FlowID: "f1", Op: flow.OpClose}, flow.Session{})

	require.NotNil(t, saver.ctx)
	assert.NoError(t, saver.ctx.Err())
	_, hasDeadline := saver.ctx.Deadline()
	assert.True(t, hasDeadline)
}

func TestRecorderLogsFailures(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	rec := NewRecorder(&captureSaver{err: errors.New("db down")}, zap.New(core))

	rec.OnTransition(context.Background(), flow.Event{FlowID: "f1", Op: flow.OpOpen}, flow.Session{})

	assert.Equal(t, 1, logs.FilterMessage("failed to record flow transition").Len())
}

func TestRecorderWithRepository(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO flow_events").WillReturnResult(sqlmock.NewResult(1, 1))

	rec := NewRecorder(repository.NewFlowEventRepository(db), nil)
	rec.OnTransition(context.Background(), flow.Event{FlowID: "f1", Op: flow.OpOpen, From: flow.PhaseSelect, To: flow.PhaseSelect}, flow.Session{})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFingerprinter(t *testing.T) {
	f, err := NewFingerprinter("key-one")
	require.NoError(t, err)
	other, err := NewFingerprinter("key-two")
	require.NoError(t, err)

	a := f.Fingerprint("4242424242424242")
	assert.Len(t, a, 64)
	assert.Equal(t, a, f.Fingerprint("4242424242424242"))
	assert.NotEqual(t, a, f.Fingerprint("4000056655665556"))
	assert.NotEqual(t, a, other.Fingerprint("4242424242424242"))

	_, err = NewFingerprinter(strings.Repeat("k", 65))
	assert.Error(t, err)
}
