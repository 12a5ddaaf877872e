package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evbooking/backend/services/booking-gateway/internal/flow"
)

func slot(day, hour int, available, past bool) flow.SlotRecord {
	start := time.Date(2026, time.March, day, hour, 0, 0, 0, time.UTC)
	return flow.SlotRecord{StartTime: start, EndTime: start.Add(time.Hour), Available: available, Past: past}
}

func TestNewSessionDTOSelectPhase(t *testing.T) {
	slots := []flow.SlotRecord{slot(10, 8, false, true), slot(11, 14, true, false), slot(11, 15, false, false)}
	picked := slots[1]
	s := flow.Session{
		Generation:    1,
		PortID:        3,
		Slots:         slots,
		State:         flow.SelectState{Selected: &picked},
		PaymentMethod: flow.PaymentCreditCard,
		LastError:     &flow.FlowError{Kind: flow.KindRemote, Message: "Failed to create booking"},
	}
	now := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)

	dto := NewSessionDTO("f1", s, flow.BuildGrid(slots, time.UTC), time.UTC, flow.NewPriceCalculator(decimal.Zero), now)

	assert.Equal(t, "select", dto.Phase)
	assert.Equal(t, "5.00", dto.Amount)
	assert.Equal(t, "5.00", dto.RatePerHour)
	assert.Equal(t, 1, dto.SelectableCount)
	assert.Equal(t, "continue_to_payment", dto.Action)
	require.NotNil(t, dto.Selected)
	assert.Equal(t, "2:00 PM - 3:00 PM", dto.Selected.Label)
	require.NotNil(t, dto.Error)
	assert.Equal(t, "remote", dto.Error.Kind)

	require.Len(t, dto.Grid.Days, 2)
	assert.Equal(t, "Today", dto.Grid.Days[0].Label)
	assert.Equal(t, "Tomorrow", dto.Grid.Days[1].Label)
	require.Len(t, dto.Grid.Hours, 14)
	assert.Equal(t, "8:00 AM", dto.Grid.Hours[0].Label)

	cells := dto.Grid.Days[1].Cells
	assert.Equal(t, "selected", cells[14-flow.FirstHour].Status)
	assert.Equal(t, "booked", cells[15-flow.FirstHour].Status)
	assert.Equal(t, "empty", cells[9-flow.FirstHour].Status)
	assert.Nil(t, cells[9-flow.FirstHour].Slot)
	assert.Equal(t, "past", dto.Grid.Days[0].Cells[0].Status)
}

func TestNewSessionDTOPaymentPhase(t *testing.T) {
	picked := slot(11, 14, true, false)
	s := flow.Session{
		State: flow.PaymentState{
			Slot:    picked,
			Booking: flow.BookingRecord{ID: 42, Amount: decimal.RequireFromString("5"), PaymentStatus: flow.PaymentStatusPending},
			Amount:  decimal.RequireFromString("7.5"),
		},
	}

	dto := NewSessionDTO("f1", s, flow.BuildGrid(nil, time.UTC), time.UTC, flow.NewPriceCalculator(decimal.Zero), time.Now())

	assert.Equal(t, "payment", dto.Phase)
	assert.Equal(t, "7.50", dto.Amount)
	require.NotNil(t, dto.Booking)
	assert.Equal(t, int64(42), dto.Booking.ID)
	assert.Equal(t, "5.00", dto.Booking.Amount)
	assert.True(t, dto.Grid.Empty)
	assert.Empty(t, dto.Grid.Days)
}

func TestSnapshotEncoder(t *testing.T) {
	now := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
	encode := NewSnapshotEncoder(time.UTC, flow.NewPriceCalculator(decimal.Zero), func() time.Time { return now })

	body, err := encode(flow.Event{FlowID: "f1", Op: flow.OpOpen}, flow.Session{
		PortID: 3,
		Slots:  []flow.SlotRecord{slot(11, 10, true, false)},
		State:  flow.SelectState{},
	})
	require.NoError(t, err)

	var dto SessionDTO
	require.NoError(t, json.Unmarshal(body, &dto))
	assert.Equal(t, "f1", dto.FlowID)
	assert.Equal(t, int64(3), dto.PortID)
	require.Len(t, dto.Grid.Days, 1)
	assert.Equal(t, "available", dto.Grid.Days[0].Cells[10-flow.FirstHour].Status)
}
