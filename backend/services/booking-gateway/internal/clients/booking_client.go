package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"evbooking/backend/services/booking-gateway/internal/flow"
)

// The booking API exchanges naive local timestamps.
const (
	wireTimeLayout  = "2006-01-02T15:04:05"
	wireParseLayout = "2006-01-02T15:04:05.999999999"
)

// BookingClient talks to the booking REST API. It implements flow.Backend.
type BookingClient struct {
	base *BaseClient
	loc  *time.Location
}

// NewBookingClient returns client. Wire timestamps are read and written in loc.
func NewBookingClient(baseURL string, httpClient HTTPDoer, loc *time.Location) *BookingClient {
	if loc == nil {
		loc = time.Local
	}
	return &BookingClient{base: NewBaseClient(baseURL, httpClient), loc: loc}
}

type wireSlot struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Available bool   `json:"available"`
	Past      bool   `json:"past"`
}

type wireBooking struct {
	ID            int64           `json:"id"`
	UserID        int64           `json:"userId"`
	PortID        int64           `json:"portId"`
	StartTime     string          `json:"startTime"`
	EndTime       string          `json:"endTime"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentStatus string          `json:"paymentStatus"`
	PaymentMethod *string         `json:"paymentMethod"`
}

type bookingEnvelope struct {
	Message string       `json:"message"`
	Booking *wireBooking `json:"booking"`
}

// ListAvailableSlots fetches the slot list of a port. The API answers either with a bare array
// or with an object carrying "slots" or "availableSlots".
func (c *BookingClient) ListAvailableSlots(ctx context.Context, portID int64) ([]flow.SlotRecord, error) {
	const op = "list available slots"

	var raw json.RawMessage
	if err := c.base.DoJSON(ctx, op, http.MethodGet, fmt.Sprintf("/ports/%d/available-slots", portID), nil, &raw); err != nil {
		return nil, err
	}

	var wire []wireSlot
	trimmed := bytes.TrimSpace(raw)
	switch {
	case len(trimmed) == 0:
	case trimmed[0] == '[':
		if err := json.Unmarshal(trimmed, &wire); err != nil {
			return nil, &flow.TransportError{Op: op, Err: fmt.Errorf("decode slots: %w", err)}
		}
	default:
		var envelope struct {
			Slots          []wireSlot `json:"slots"`
			AvailableSlots []wireSlot `json:"availableSlots"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, &flow.TransportError{Op: op, Err: fmt.Errorf("decode slots: %w", err)}
		}
		wire = envelope.Slots
		if wire == nil {
			wire = envelope.AvailableSlots
		}
	}

	slots := make([]flow.SlotRecord, 0, len(wire))
	for _, w := range wire {
		start, err := c.parseTime(w.StartTime)
		if err != nil {
			return nil, &flow.TransportError{Op: op, Err: err}
		}
		end, err := c.parseTime(w.EndTime)
		if err != nil {
			return nil, &flow.TransportError{Op: op, Err: err}
		}
		slots = append(slots, flow.SlotRecord{StartTime: start, EndTime: end, Available: w.Available, Past: w.Past})
	}
	return slots, nil
}

// CreateBooking reserves a slot for the caller.
func (c *BookingClient) CreateBooking(ctx context.Context, req flow.BookingRequest) (flow.BookingRecord, error) {
	const op = "create booking"

	payload := map[string]any{
		"portId":        req.PortID,
		"startTime":     c.formatTime(req.StartTime),
		"endTime":       c.formatTime(req.EndTime),
		"paymentMethod": string(req.PaymentMethod),
	}
	var envelope bookingEnvelope
	if err := c.base.DoJSON(ctx, op, http.MethodPost, "/bookings", payload, &envelope); err != nil {
		return flow.BookingRecord{}, err
	}
	if envelope.Booking == nil {
		return flow.BookingRecord{}, &flow.TransportError{Op: op, Err: errors.New("response without booking")}
	}
	return c.toRecord(op, *envelope.Booking)
}

// ProcessPayment charges a pending booking.
func (c *BookingClient) ProcessPayment(ctx context.Context, bookingID int64, method flow.PaymentMethod) (flow.BookingRecord, error) {
	const op = "process payment"

	payload := map[string]string{"paymentMethod": string(method)}
	var envelope bookingEnvelope
	if err := c.base.DoJSON(ctx, op, http.MethodPost, fmt.Sprintf("/bookings/%d/pay", bookingID), payload, &envelope); err != nil {
		return flow.BookingRecord{}, err
	}
	if envelope.Booking == nil {
		return flow.BookingRecord{}, nil
	}
	return c.toRecord(op, *envelope.Booking)
}

// SubscriptionStatus returns the caller's plan usage.
func (c *BookingClient) SubscriptionStatus(ctx context.Context) (flow.SubscriptionInfo, error) {
	var info flow.SubscriptionInfo
	if err := c.base.DoJSON(ctx, "check subscription limit", http.MethodGet, "/subscriptions/check-limit", nil, &info); err != nil {
		return flow.SubscriptionInfo{}, err
	}
	return info, nil
}

func (c *BookingClient) toRecord(op string, w wireBooking) (flow.BookingRecord, error) {
	start, err := c.parseTime(w.StartTime)
	if err != nil {
		return flow.BookingRecord{}, &flow.TransportError{Op: op, Err: err}
	}
	end, err := c.parseTime(w.EndTime)
	if err != nil {
		return flow.BookingRecord{}, &flow.TransportError{Op: op, Err: err}
	}
	rec := flow.BookingRecord{
		ID:            w.ID,
		UserID:        w.UserID,
		PortID:        w.PortID,
		StartTime:     start,
		EndTime:       end,
		Amount:        w.Amount,
		PaymentStatus: w.PaymentStatus,
	}
	if rec.PaymentStatus == "" {
		rec.PaymentStatus = flow.PaymentStatusPending
	}
	if w.PaymentMethod != nil {
		rec.PaymentMethod = *w.PaymentMethod
	}
	return rec, nil
}

func (c *BookingClient) formatTime(t time.Time) string {
	return t.In(c.loc).Format(wireTimeLayout)
}

// parseTime accepts naive timestamps, read in the client's zone, as well as RFC 3339.
func (c *BookingClient) parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.ParseInLocation(wireParseLayout, s, c.loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
