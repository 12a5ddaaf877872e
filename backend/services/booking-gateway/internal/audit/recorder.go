package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"evbooking/backend/services/booking-gateway/internal/flow"
	"evbooking/backend/services/booking-gateway/internal/repository"
)

const defaultWriteTimeout = 3 * time.Second

// EventSaver persists transition rows.
type EventSaver interface {
	Save(ctx context.Context, e repository.FlowEvent) error
}

// Recorder writes every booking flow transition to the transition log. Write failures are
// logged and never fail the transition.
type Recorder struct {
	repo    EventSaver
	logger  *zap.Logger
	timeout time.Duration
}

// NewRecorder returns recorder.
func NewRecorder(repo EventSaver, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{repo: repo, logger: logger, timeout: defaultWriteTimeout}
}

// OnTransition implements flow.Observer.
func (r *Recorder) OnTransition(ctx context.Context, ev flow.Event, _ flow.Session) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	if err := r.repo.Save(ctx, toRow(ev)); err != nil {
		r.logger.Warn("failed to record flow transition",
			zap.String("flow_id", ev.FlowID),
			zap.String("op", string(ev.Op)),
			zap.Error(err),
		)
	}
}

func toRow(ev flow.Event) repository.FlowEvent {
	row := repository.FlowEvent{
		FlowID:     ev.FlowID,
		Generation: ev.Generation,
		PortID:     ev.PortID,
		UserID:     ev.UserID,
		Action:     string(ev.Op),
		FromPhase:  string(ev.From),
		ToPhase:    string(ev.To),
		BookingID:  ev.BookingID,
		ElapsedMS:  ev.Elapsed.Milliseconds(),
		CreatedAt:  ev.At,
	}
	if ev.Err != nil {
		row.ErrorKind = string(ev.Err.Kind)
		row.ErrorMessage = ev.Err.Message
	}
	if ev.Card != nil {
		row.CardLast4 = ev.Card.Last4
		row.CardFingerprint = ev.Card.Fingerprint
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	return row
}
