package flow

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies transition failures.
type ErrorKind string

const (
	KindUnauthenticated   ErrorKind = "unauthenticated"
	KindValidation        ErrorKind = "validation"
	KindRemote            ErrorKind = "remote"
	KindTransport         ErrorKind = "transport"
	KindBusy              ErrorKind = "busy"
	KindStale             ErrorKind = "stale"
	KindInvalidTransition ErrorKind = "invalid_transition"
	KindCompleted         ErrorKind = "completed"
	KindNotSelectable     ErrorKind = "not_selectable"
	KindInternal          ErrorKind = "internal"
)

var (
	// ErrUnauthenticated means the session token is missing, expired or was rejected.
	ErrUnauthenticated = errors.New("flow: unauthenticated")
	// ErrBusy is returned while another transition awaits the backend.
	ErrBusy = errors.New("flow: another transition is in progress")
	// ErrStaleResponse is returned when the session was reset while a call was in flight.
	ErrStaleResponse = errors.New("flow: session reset while request was in flight")
	// ErrInvalidTransition means the operation does not apply to the current phase.
	ErrInvalidTransition = errors.New("flow: transition not allowed in current phase")
	// ErrFlowCompleted is returned for any transition after payment or acknowledgement.
	ErrFlowCompleted = errors.New("flow: booking flow already completed")
	// ErrSlotNotSelectable is returned for past, booked or unknown slots.
	ErrSlotNotSelectable = errors.New("flow: slot is not selectable")
)

// User-facing messages.
const (
	MsgLoginRequired     = "Please log in to create a booking."
	MsgSessionExpired    = "Your session has expired. Please log in again."
	MsgLoadSlotsFailed   = "Failed to load available slots"
	MsgCreateFailed      = "Failed to create booking"
	MsgPaymentFailed     = "Payment failed. Please try again."
	MsgMissingPayment    = "Please fill in all payment details"
	MsgInvalidCardNumber = "Please enter a valid card number"
	MsgSelectSlot        = "Please select a time slot"
	MsgSlotUnavailable   = "This time slot is no longer available"
)

// ValidationError is a failed client-side form check.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "flow: validation: " + e.Message
	}
	return fmt.Sprintf("flow: validation: %s: %s", e.Field, e.Message)
}

// RemoteError is a request the backend answered with a non-success status.
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("flow: backend returned status %d", e.Status)
	}
	return fmt.Sprintf("flow: backend returned status %d: %s", e.Status, e.Message)
}

// TransportError wraps connectivity failures.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("flow: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// FlowError is what a failed transition reports: a kind, the message shown to the user and the
// underlying cause.
type FlowError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *FlowError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

func newFlowError(kind ErrorKind, message string, cause error) *FlowError {
	return &FlowError{Kind: kind, Message: message, Err: cause}
}

// KindOf classifies any error returned by the engine or a Backend.
func KindOf(err error) ErrorKind {
	var flowErr *FlowError
	if errors.As(err, &flowErr) {
		return flowErr.Kind
	}
	var validationErr *ValidationError
	var remoteErr *RemoteError
	var transportErr *TransportError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthenticated):
		return KindUnauthenticated
	case errors.As(err, &validationErr):
		return KindValidation
	case errors.As(err, &remoteErr):
		return KindRemote
	case errors.As(err, &transportErr):
		return KindTransport
	case errors.Is(err, ErrBusy):
		return KindBusy
	case errors.Is(err, ErrStaleResponse):
		return KindStale
	case errors.Is(err, ErrFlowCompleted):
		return KindCompleted
	case errors.Is(err, ErrSlotNotSelectable):
		return KindNotSelectable
	case errors.Is(err, ErrInvalidTransition):
		return KindInvalidTransition
	}
	return KindInternal
}

// classify turns a backend failure into the FlowError stored on the session. The backend
// message is preferred, fallback is used when it has none.
func classify(err error, fallback string) *FlowError {
	if errors.Is(err, ErrUnauthenticated) {
		return newFlowError(KindUnauthenticated, MsgSessionExpired, err)
	}
	var remoteErr *RemoteError
	if errors.As(err, &remoteErr) {
		msg := strings.TrimSpace(remoteErr.Message)
		if msg == "" {
			msg = fallback
		}
		return newFlowError(KindRemote, msg, err)
	}
	return newFlowError(KindTransport, fallback, err)
}
