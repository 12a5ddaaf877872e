package flow

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// State is the phase-specific part of a session. Only the fields valid in a phase exist on
// its state type.
type State interface {
	Phase() Phase
	isState()
}

// SelectState: the user is picking a slot. Booking is kept when coming back from payment.
type SelectState struct {
	Selected *SlotRecord
	Booking  *BookingRecord
}

// PaymentState: a pending booking waits for card payment.
type PaymentState struct {
	Slot    SlotRecord
	Booking BookingRecord
	Amount  decimal.Decimal
}

// SubscriptionState: the booking was covered by the user's plan.
type SubscriptionState struct {
	Slot         SlotRecord
	Booking      BookingRecord
	Subscription SubscriptionInfo
}

func (SelectState) Phase() Phase       { return PhaseSelect }
func (PaymentState) Phase() Phase      { return PhasePayment }
func (SubscriptionState) Phase() Phase { return PhaseSubscriptionConfirmed }

func (SelectState) isState()       {}
func (PaymentState) isState()      {}
func (SubscriptionState) isState() {}

// Action is the primary button offered in the select phase.
type Action string

const (
	ActionConfirmWithSubscription Action = "confirm_with_subscription"
	ActionContinueToPayment       Action = "continue_to_payment"
)

// Session is an immutable snapshot of one booking flow. The engine replaces it wholesale on
// every transition.
type Session struct {
	Generation    uint64
	PortID        int64
	UserID        int64
	Slots         []SlotRecord
	State         State
	Subscription  *SubscriptionInfo
	PaymentMethod PaymentMethod
	LastError     *FlowError
	Loading       bool
	Completed     bool
	UpdatedAt     time.Time
}

// Phase of the session; a zero session is in Select.
func (s Session) Phase() Phase {
	if s.State == nil {
		return PhaseSelect
	}
	return s.State.Phase()
}

// SelectedSlot is the slot the user picked, in whichever phase it is carried.
func (s Session) SelectedSlot() *SlotRecord {
	switch st := s.State.(type) {
	case SelectState:
		return st.Selected
	case PaymentState:
		slot := st.Slot
		return &slot
	case SubscriptionState:
		slot := st.Slot
		return &slot
	}
	return nil
}

// Booking is the booking created by the last successful confirm.
func (s Session) Booking() *BookingRecord {
	switch st := s.State.(type) {
	case SelectState:
		return st.Booking
	case PaymentState:
		b := st.Booking
		return &b
	case SubscriptionState:
		b := st.Booking
		return &b
	}
	return nil
}

// SlotAt finds the offered slot starting at start.
func (s Session) SlotAt(start time.Time) (SlotRecord, bool) {
	for i := len(s.Slots) - 1; i >= 0; i-- {
		if s.Slots[i].StartTime.Equal(start) {
			return s.Slots[i], true
		}
	}
	return SlotRecord{}, false
}

// SelectableCount is the number of slots that can currently be picked.
func (s Session) SelectableCount() int {
	n := 0
	for _, slot := range s.Slots {
		if slot.Selectable() {
			n++
		}
	}
	return n
}

// Action picks the select-phase call to action from the last subscription snapshot.
func (s Session) Action() Action {
	if s.Subscription != nil && s.Subscription.Covers() {
		return ActionConfirmWithSubscription
	}
	return ActionContinueToPayment
}

type sessionJSON struct {
	Generation    uint64            `json:"generation"`
	PortID        int64             `json:"portId"`
	UserID        int64             `json:"userId,omitempty"`
	Phase         Phase             `json:"phase"`
	Slots         []SlotRecord      `json:"slots"`
	Selected      *SlotRecord       `json:"selected,omitempty"`
	Booking       *BookingRecord    `json:"booking,omitempty"`
	Amount        *decimal.Decimal  `json:"amount,omitempty"`
	Subscription  *SubscriptionInfo `json:"subscription,omitempty"`
	PaymentMethod PaymentMethod     `json:"paymentMethod"`
	LastError     *FlowError        `json:"lastError,omitempty"`
	Completed     bool              `json:"completed"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// MarshalJSON encodes the snapshot persisted between requests. Loading is never persisted.
func (s Session) MarshalJSON() ([]byte, error) {
	out := sessionJSON{
		Generation:    s.Generation,
		PortID:        s.PortID,
		UserID:        s.UserID,
		Phase:         s.Phase(),
		Slots:         s.Slots,
		Selected:      s.SelectedSlot(),
		Booking:       s.Booking(),
		Subscription:  s.Subscription,
		PaymentMethod: s.PaymentMethod,
		LastError:     s.LastError,
		Completed:     s.Completed,
		UpdatedAt:     s.UpdatedAt,
	}
	if st, ok := s.State.(PaymentState); ok {
		amount := st.Amount
		out.Amount = &amount
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a snapshot written by MarshalJSON.
func (s *Session) UnmarshalJSON(data []byte) error {
	var in sessionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	phase := in.Phase
	if phase == "" {
		phase = PhaseSelect
	}
	phase, err := ParsePhase(string(phase))
	if err != nil {
		return err
	}

	var state State
	switch phase {
	case PhaseSelect:
		state = SelectState{Selected: in.Selected, Booking: in.Booking}
	case PhasePayment:
		if in.Selected == nil || in.Booking == nil {
			return errors.New("flow: payment snapshot without slot or booking")
		}
		st := PaymentState{Slot: *in.Selected, Booking: *in.Booking}
		if in.Amount != nil {
			st.Amount = *in.Amount
		}
		state = st
	case PhaseSubscriptionConfirmed:
		if in.Selected == nil || in.Booking == nil || in.Subscription == nil {
			return fmt.Errorf("flow: incomplete %s snapshot", phase)
		}
		state = SubscriptionState{Slot: *in.Selected, Booking: *in.Booking, Subscription: *in.Subscription}
	}

	*s = Session{
		Generation:    in.Generation,
		PortID:        in.PortID,
		UserID:        in.UserID,
		Slots:         in.Slots,
		State:         state,
		Subscription:  in.Subscription,
		PaymentMethod: in.PaymentMethod,
		LastError:     in.LastError,
		Completed:     in.Completed,
		UpdatedAt:     in.UpdatedAt,
	}
	return nil
}
