package flow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"evbooking/backend/services/booking-gateway/internal/auth"
)

// Engine drives the booking flow of one port for one user. Transitions are serialized; while
// one waits on the backend the session is Loading and every other transition fails with
// ErrBusy. Open and Close start a new generation, and results of calls issued under an older
// generation are dropped.
type Engine struct {
	id          string
	backend     Backend
	logger      *zap.Logger
	prices      PriceCalculator
	loc         *time.Location
	now         func() time.Time
	observers   []Observer
	fingerprint func(cardDigits string) string

	mu         sync.Mutex
	session    Session
	grid       SlotGrid
	lastActive time.Time
	ticket     uint64 // last emission ticket handed out, guarded by mu

	// observers run in the order tickets were taken
	emitMu   sync.Mutex
	emitCond *sync.Cond
	emitted  uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLocation sets the zone used to lay out the slot grid.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithPriceCalculator sets the hourly pricing.
func WithPriceCalculator(prices PriceCalculator) Option {
	return func(e *Engine) { e.prices = prices }
}

// WithObserver adds a transition observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observers = append(e.observers, o)
		}
	}
}

// WithCardFingerprinter sets how card numbers are summarized in payment events.
func WithCardFingerprinter(fn func(cardDigits string) string) Option {
	return func(e *Engine) { e.fingerprint = fn }
}

// NewEngine returns an engine with an empty session in the select phase.
func NewEngine(id string, backend Backend, opts ...Option) *Engine {
	e := &Engine{
		id:      id,
		backend: backend,
		logger:  zap.NewNop(),
		prices:  NewPriceCalculator(DefaultRatePerHour),
		loc:     time.Local,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.session = Session{State: SelectState{}, PaymentMethod: PaymentCreditCard}
	e.lastActive = e.now()
	e.emitCond = sync.NewCond(&e.emitMu)
	return e
}

// ID identifies the flow.
func (e *Engine) ID() string {
	return e.id
}

// Location is the zone the grid is laid out in.
func (e *Engine) Location() *time.Location {
	return e.loc
}

// Prices returns the engine's price calculator.
func (e *Engine) Prices() PriceCalculator {
	return e.prices
}

// Session returns the current snapshot.
func (e *Engine) Session() Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// Grid returns the grid built from the current slot list.
func (e *Engine) Grid() SlotGrid {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.grid
}

// LastActive is the time of the last transition.
func (e *Engine) LastActive() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastActive
}

// Restore replaces the session with a persisted snapshot.
func (e *Engine) Restore(s Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s.Loading = false
	if s.State == nil {
		s.State = SelectState{}
	}
	e.session = s
	e.grid = BuildGrid(s.Slots, e.loc)
	e.lastActive = e.now()
}

// Open resets the flow for portID and loads its slots together with the caller's
// subscription usage. A failed subscription lookup is logged and treated as no subscription.
func (e *Engine) Open(ctx context.Context, portID int64) (Session, error) {
	if portID <= 0 {
		return e.Session(), newFlowError(KindValidation, "Unknown charging port", &ValidationError{Field: "portId", Message: "must be positive"})
	}

	start := e.now()
	e.mu.Lock()
	from := e.session.Phase()
	s := Session{
		Generation:    e.session.Generation + 1,
		PortID:        portID,
		State:         SelectState{},
		PaymentMethod: PaymentCreditCard,
		Loading:       true,
	}
	if creds, ok := auth.FromContext(ctx); ok {
		s.UserID = creds.UserID
	}
	e.grid = SlotGrid{}
	s = e.commitLocked(s)
	gen := s.Generation
	e.mu.Unlock()

	slots, err := e.backend.ListAvailableSlots(ctx, portID)
	info := e.refreshSubscription(ctx)

	e.mu.Lock()
	if e.session.Generation != gen {
		cur := e.session
		e.mu.Unlock()
		return cur, staleError()
	}
	s = e.session
	s.Loading = false
	s.Subscription = info
	var ferr *FlowError
	if err != nil {
		ferr = classify(err, MsgLoadSlotsFailed)
		s.LastError = ferr
	} else {
		s.Slots = slots
		e.grid = BuildGrid(slots, e.loc)
	}
	s = e.commitLocked(s)
	ticket := e.ticketLocked()
	e.mu.Unlock()

	e.emit(ctx, ticket, Event{Op: OpOpen, From: from, Err: ferr, Elapsed: e.now().Sub(start)}, s)
	return s, asError(ferr)
}

// Reload refetches the slot list. The selection survives only if its slot is still selectable.
func (e *Engine) Reload(ctx context.Context) (Session, error) {
	return e.call(ctx, Event{Op: OpReload}, PhaseSelect, nil, func(s Session) applyFunc {
		slots, err := e.backend.ListAvailableSlots(ctx, s.PortID)
		if err != nil {
			return failWith(classify(err, MsgLoadSlotsFailed))
		}
		return func(next *Session) *FlowError {
			st, _ := next.State.(SelectState)
			if st.Selected != nil {
				st.Selected = nil
				for i := len(slots) - 1; i >= 0; i-- {
					if slots[i].StartTime.Equal(s.SelectedSlot().StartTime) {
						if slots[i].Selectable() {
							picked := slots[i]
							st.Selected = &picked
						}
						break
					}
				}
			}
			next.State = st
			next.Slots = slots
			e.grid = BuildGrid(slots, e.loc)
			return nil
		}
	})
}

// Close ends the flow. Outstanding backend calls will find a newer generation and be ignored.
func (e *Engine) Close(ctx context.Context) Session {
	e.mu.Lock()
	from := e.session.Phase()
	s := Session{
		Generation:    e.session.Generation + 1,
		State:         SelectState{},
		PaymentMethod: PaymentCreditCard,
	}
	e.grid = SlotGrid{}
	s = e.commitLocked(s)
	ticket := e.ticketLocked()
	e.mu.Unlock()

	e.emit(ctx, ticket, Event{Op: OpClose, From: from}, s)
	return s
}

// SelectSlot picks one of the offered slots. Past, booked and unknown slots are rejected and
// leave the selection unchanged.
func (e *Engine) SelectSlot(ctx context.Context, slot SlotRecord) (Session, error) {
	return e.apply(ctx, Event{Op: OpSelect}, PhaseSelect, func(s *Session) *FlowError {
		offered, ok := s.SlotAt(slot.StartTime)
		if !ok || !offered.Selectable() {
			return newFlowError(KindNotSelectable, MsgSlotUnavailable, ErrSlotNotSelectable)
		}
		st, _ := s.State.(SelectState)
		st.Selected = &offered
		s.State = st
		return nil
	})
}

// Confirm creates a booking for the selected slot. Covered bookings move to
// SubscriptionConfirmed, everything else to Payment.
func (e *Engine) Confirm(ctx context.Context) (Session, error) {
	var slot SlotRecord
	prepare := func(s *Session) *FlowError {
		st, _ := s.State.(SelectState)
		if st.Selected == nil {
			return newFlowError(KindValidation, MsgSelectSlot, &ValidationError{Field: "slot", Message: MsgSelectSlot})
		}
		creds, ok := auth.FromContext(ctx)
		if !ok {
			return newFlowError(KindUnauthenticated, MsgLoginRequired, ErrUnauthenticated)
		}
		if !creds.ValidAt(e.now()) {
			return newFlowError(KindUnauthenticated, MsgSessionExpired, ErrUnauthenticated)
		}
		slot = *st.Selected
		s.UserID = creds.UserID
		return nil
	}

	return e.call(ctx, Event{Op: OpConfirm}, PhaseSelect, prepare, func(s Session) applyFunc {
		booking, err := e.backend.CreateBooking(ctx, BookingRequest{
			PortID:        s.PortID,
			StartTime:     slot.StartTime,
			EndTime:       slot.EndTime,
			PaymentMethod: s.PaymentMethod,
		})
		if err != nil {
			return failWith(classify(err, MsgCreateFailed))
		}
		info := e.refreshSubscription(ctx)

		return func(next *Session) *FlowError {
			next.Subscription = info
			if booking.Paid() && info != nil && info.HasSubscription {
				next.State = SubscriptionState{Slot: slot, Booking: booking, Subscription: *info}
				return nil
			}
			next.State = PaymentState{Slot: slot, Booking: booking, Amount: e.prices.Amount(slot)}
			return nil
		}
	})
}

// Back returns from payment to slot selection. The created booking is kept.
func (e *Engine) Back(ctx context.Context) (Session, error) {
	return e.apply(ctx, Event{Op: OpBack}, PhasePayment, func(s *Session) *FlowError {
		st := s.State.(PaymentState)
		slot, booking := st.Slot, st.Booking
		s.State = SelectState{Selected: &slot, Booking: &booking}
		return nil
	})
}

// Pay validates the card form and asks the backend to charge the pending booking. On success
// the flow is complete.
func (e *Engine) Pay(ctx context.Context, draft PaymentDraft) (Session, error) {
	method, methodErr := ParsePaymentMethod(string(draft.Method))
	draft.Method = method

	ev := Event{Op: OpPay}
	if digits := draft.digits(); digits != "" {
		ev.Card = &CardSummary{Last4: draft.Last4()}
		if e.fingerprint != nil {
			ev.Card.Fingerprint = e.fingerprint(digits)
		}
	}

	var pending PaymentState
	prepare := func(s *Session) *FlowError {
		if methodErr != nil {
			return newFlowError(KindValidation, methodErr.Error(), &ValidationError{Field: "method", Message: methodErr.Error()})
		}
		if err := draft.Validate(); err != nil {
			verr := err.(*ValidationError)
			return newFlowError(KindValidation, verr.Message, verr)
		}
		pending = s.State.(PaymentState)
		return nil
	}

	return e.call(ctx, ev, PhasePayment, prepare, func(s Session) applyFunc {
		paid, err := e.backend.ProcessPayment(ctx, pending.Booking.ID, method)
		if err != nil {
			return failWith(classify(err, MsgPaymentFailed))
		}
		if paid.ID == 0 {
			paid = pending.Booking
			paid.PaymentStatus = PaymentStatusPaid
			paid.PaymentMethod = string(method)
		}
		return func(next *Session) *FlowError {
			next.State = PaymentState{Slot: pending.Slot, Booking: paid, Amount: pending.Amount}
			next.PaymentMethod = method
			next.Completed = true
			return nil
		}
	})
}

// Acknowledge closes out a subscription-covered booking.
func (e *Engine) Acknowledge(ctx context.Context) (Session, error) {
	return e.apply(ctx, Event{Op: OpAcknowledge}, PhaseSubscriptionConfirmed, func(s *Session) *FlowError {
		s.Completed = true
		return nil
	})
}

// applyFunc mutates the session once a backend call has returned.
type applyFunc func(next *Session) *FlowError

func failWith(ferr *FlowError) applyFunc {
	return func(*Session) *FlowError { return ferr }
}

// apply runs a transition that needs no backend call.
func (e *Engine) apply(ctx context.Context, ev Event, want Phase, fn func(s *Session) *FlowError) (Session, error) {
	start := e.now()
	e.mu.Lock()
	if err := e.guardLocked(want); err != nil {
		cur := e.session
		e.mu.Unlock()
		return cur, err
	}
	ev.From = e.session.Phase()

	next := e.session
	next.LastError = nil
	ferr := fn(&next)
	if ferr != nil {
		// leave the phase data untouched on failure
		next = e.session
		next.LastError = ferr
	}
	if !CanTransition(ev.From, next.Phase()) {
		next = e.session
		ferr = newFlowError(KindInvalidTransition, "Operation not available at this step", ErrInvalidTransition)
		next.LastError = ferr
	}
	next = e.commitLocked(next)
	ticket := e.ticketLocked()
	e.mu.Unlock()

	ev.Err = ferr
	ev.Elapsed = e.now().Sub(start)
	e.emit(ctx, ticket, ev, next)
	return next, asError(ferr)
}

// call runs a backend-bound transition: prepare validates under the lock, remote runs unlocked
// while the session is Loading, and its outcome is applied unless the session was reset.
func (e *Engine) call(ctx context.Context, ev Event, want Phase, prepare func(s *Session) *FlowError, remote func(s Session) applyFunc) (Session, error) {
	start := e.now()
	e.mu.Lock()
	if err := e.guardLocked(want); err != nil {
		cur := e.session
		e.mu.Unlock()
		return cur, err
	}
	ev.From = e.session.Phase()

	s := e.session
	s.LastError = nil
	if prepare != nil {
		if ferr := prepare(&s); ferr != nil {
			s = e.session
			s.LastError = ferr
			s = e.commitLocked(s)
			ticket := e.ticketLocked()
			e.mu.Unlock()
			ev.Err = ferr
			ev.Elapsed = e.now().Sub(start)
			e.emit(ctx, ticket, ev, s)
			return s, ferr
		}
	}
	s.Loading = true
	s = e.commitLocked(s)
	gen := s.Generation
	e.mu.Unlock()

	apply := remote(s)

	e.mu.Lock()
	if e.session.Generation != gen {
		cur := e.session
		e.mu.Unlock()
		e.logger.Info("dropping stale backend response",
			zap.String("flow_id", e.id),
			zap.String("op", string(ev.Op)),
			zap.Uint64("generation", gen),
		)
		return cur, staleError()
	}
	next := e.session
	next.Loading = false
	ferr := apply(&next)
	if ferr != nil {
		next = e.session
		next.Loading = false
		next.LastError = ferr
	} else if !CanTransition(ev.From, next.Phase()) {
		next = e.session
		next.Loading = false
		ferr = newFlowError(KindInvalidTransition, "Operation not available at this step", ErrInvalidTransition)
		next.LastError = ferr
	}
	next = e.commitLocked(next)
	ticket := e.ticketLocked()
	e.mu.Unlock()

	ev.Err = ferr
	ev.Elapsed = e.now().Sub(start)
	e.emit(ctx, ticket, ev, next)
	return next, asError(ferr)
}

// guardLocked checks the preconditions shared by user transitions. Callers hold e.mu.
func (e *Engine) guardLocked(want Phase) error {
	switch {
	case e.session.Loading:
		return newFlowError(KindBusy, "Another request for this booking is still in progress", ErrBusy)
	case e.session.Completed:
		return newFlowError(KindCompleted, "This booking is already complete", ErrFlowCompleted)
	case e.session.Phase() != want:
		return newFlowError(KindInvalidTransition,
			fmt.Sprintf("Operation not available in the %s step", e.session.Phase()), ErrInvalidTransition)
	}
	return nil
}

func (e *Engine) commitLocked(s Session) Session {
	s.UpdatedAt = e.now()
	e.session = s
	e.lastActive = s.UpdatedAt
	return s
}

// ticketLocked reserves the next slot in the observer queue. Callers hold e.mu and must pass
// the ticket to emit.
func (e *Engine) ticketLocked() uint64 {
	e.ticket++
	return e.ticket
}

func (e *Engine) refreshSubscription(ctx context.Context) *SubscriptionInfo {
	if _, ok := auth.FromContext(ctx); !ok {
		return nil
	}
	info, err := e.backend.SubscriptionStatus(ctx)
	if err != nil {
		e.logger.Warn("subscription status refresh failed",
			zap.String("flow_id", e.id),
			zap.Error(err),
		)
		return nil
	}
	return &info
}

// emit notifies observers once every earlier ticket has been emitted, so they see commits in
// the order they happened even though they run outside e.mu.
func (e *Engine) emit(ctx context.Context, ticket uint64, ev Event, s Session) {
	e.emitMu.Lock()
	for e.emitted != ticket-1 {
		e.emitCond.Wait()
	}
	e.emitMu.Unlock()
	defer func() {
		e.emitMu.Lock()
		e.emitted = ticket
		e.emitMu.Unlock()
		e.emitCond.Broadcast()
	}()

	ev.FlowID = e.id
	ev.Generation = s.Generation
	ev.PortID = s.PortID
	ev.UserID = s.UserID
	ev.To = s.Phase()
	ev.At = s.UpdatedAt
	if b := s.Booking(); b != nil {
		ev.BookingID = b.ID
	}
	if ev.Err != nil {
		e.logger.Info("booking flow transition failed",
			zap.String("flow_id", e.id),
			zap.String("op", string(ev.Op)),
			zap.String("kind", string(ev.Err.Kind)),
			zap.Error(ev.Err),
		)
	}
	for _, o := range e.observers {
		o.OnTransition(ctx, ev, s)
	}
}

func staleError() *FlowError {
	return newFlowError(KindStale, "The booking was reset while the request was in flight", ErrStaleResponse)
}

func asError(ferr *FlowError) error {
	if ferr == nil {
		return nil
	}
	return ferr
}
