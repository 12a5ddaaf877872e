package flow

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Booking payment statuses reported by the backend.
const (
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
)

// BookingRequest is the payload of booking creation.
type BookingRequest struct {
	PortID        int64
	StartTime     time.Time
	EndTime       time.Time
	PaymentMethod PaymentMethod
}

// BookingRecord is a booking as stored by the backend.
type BookingRecord struct {
	ID            int64           `json:"id"`
	UserID        int64           `json:"userId"`
	PortID        int64           `json:"portId"`
	StartTime     time.Time       `json:"startTime"`
	EndTime       time.Time       `json:"endTime"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentStatus string          `json:"paymentStatus"`
	PaymentMethod string          `json:"paymentMethod,omitempty"`
}

// Paid reports whether nothing is left to charge.
func (b BookingRecord) Paid() bool {
	return b.PaymentStatus == PaymentStatusPaid
}

// SubscriptionInfo is the caller's plan usage.
type SubscriptionInfo struct {
	HasSubscription   bool   `json:"hasSubscription"`
	CanBook           bool   `json:"canBook"`
	BookingsUsed      int    `json:"bookingsUsed"`
	BookingsRemaining int    `json:"bookingsRemaining"`
	BookingLimit      int    `json:"bookingLimit"`
	Message           string `json:"message,omitempty"`
}

// Covers reports whether the next booking would be absorbed by the plan.
func (s SubscriptionInfo) Covers() bool {
	return s.HasSubscription && s.CanBook
}

// Backend is the booking REST API as seen by the engine. Implementations report failures as
// ErrUnauthenticated, *RemoteError or *TransportError.
type Backend interface {
	ListAvailableSlots(ctx context.Context, portID int64) ([]SlotRecord, error)
	CreateBooking(ctx context.Context, req BookingRequest) (BookingRecord, error)
	ProcessPayment(ctx context.Context, bookingID int64, method PaymentMethod) (BookingRecord, error)
	SubscriptionStatus(ctx context.Context) (SubscriptionInfo, error)
}
