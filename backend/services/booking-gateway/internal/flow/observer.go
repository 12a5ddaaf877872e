package flow

import (
	"context"
	"time"
)

// Operation names a transition request.
type Operation string

const (
	OpOpen        Operation = "open"
	OpReload      Operation = "reload"
	OpClose       Operation = "close"
	OpSelect      Operation = "select"
	OpConfirm     Operation = "confirm"
	OpBack        Operation = "back"
	OpPay         Operation = "pay"
	OpAcknowledge Operation = "acknowledge"
)

// CardSummary identifies the card used for a payment without exposing its number.
type CardSummary struct {
	Last4       string
	Fingerprint string
}

// Event describes one applied transition, successful or not.
type Event struct {
	FlowID     string
	Generation uint64
	PortID     int64
	UserID     int64
	Op         Operation
	From       Phase
	To         Phase
	BookingID  int64
	Err        *FlowError
	Card       *CardSummary
	At         time.Time
	Elapsed    time.Duration
}

// Observer is notified after every transition that changed the session. Calls happen on the
// goroutine that ran the transition, after the engine lock is released, and one at a time in
// commit order: a transition committed later waits for the observers of earlier ones.
type Observer interface {
	OnTransition(ctx context.Context, event Event, session Session)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, event Event, session Session)

func (f ObserverFunc) OnTransition(ctx context.Context, event Event, session Session) {
	f(ctx, event, session)
}
