package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlowEventRepository_Save(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewFlowEventRepository(db)
	at := time.Date(2026, time.March, 10, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name  string
		event FlowEvent
		args  []driver.Value
	}{
		{
			name: "paid booking",
			event: FlowEvent{
				FlowID: "f1", Generation: 2, PortID: 3, UserID: 7, Action: "pay",
				FromPhase: "payment", ToPhase: "payment", BookingID: 42,
				CardLast4: "4242", CardFingerprint: "abcd", ElapsedMS: 120, CreatedAt: at,
			},
			args: []driver.Value{"f1", int64(2), int64(3), int64(7), "pay", "payment", "payment", int64(42), nil, nil, "4242", "abcd", int64(120), at},
		},
		{
			name: "anonymous failure",
			event: FlowEvent{
				FlowID: "f2", Generation: 1, PortID: 3, Action: "confirm",
				FromPhase: "select", ToPhase: "select",
				ErrorKind: "unauthenticated", ErrorMessage: "Please log in to create a booking.", CreatedAt: at,
			},
			args: []driver.Value{"f2", int64(1), int64(3), nil, "confirm", "select", "select", nil, "unauthenticated", "Please log in to create a booking.", nil, nil, int64(0), at},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock.ExpectExec("INSERT INTO flow_events").
				WithArgs(tt.args...).
				WillReturnResult(sqlmock.NewResult(1, 1))

			require.NoError(t, repo.Save(context.Background(), tt.event))
		})
	}

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFlowEventRepository_SaveError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO flow_events").WillReturnError(errors.New("connection reset"))

	err = NewFlowEventRepository(db).Save(context.Background(), FlowEvent{FlowID: "f1", CreatedAt: time.Now()})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFlowEventRepository_ListByFlow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2026, time.March, 10, 9, 30, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"flow_id", "generation", "port_id", "user_id", "action", "from_phase", "to_phase",
		"booking_id", "error_kind", "error_message", "card_last4", "card_fingerprint",
		"elapsed_ms", "created_at",
	}).
		AddRow("f1", int64(1), int64(3), nil, "open", "select", "select", nil, nil, nil, nil, nil, int64(15), at).
		AddRow("f1", int64(1), int64(3), int64(7), "confirm", "select", "payment", int64(42), nil, nil, nil, nil, int64(80), at)

	mock.ExpectQuery("SELECT (.+) FROM flow_events WHERE flow_id").
		WithArgs("f1").
		WillReturnRows(rows)

	events, err := NewFlowEventRepository(db).ListByFlow(context.Background(), "f1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "open", events[0].Action)
	assert.Zero(t, events[0].UserID)
	assert.Equal(t, int64(42), events[1].BookingID)
	assert.Equal(t, "payment", events[1].ToPhase)
	assert.Equal(t, uint64(1), events[1].Generation)
	assert.NoError(t, mock.ExpectationsWereMet())
}
