package repository

import (
	"context"
	"database/sql"
	"time"
)

// FlowEvent is one row of the booking flow transition log.
type FlowEvent struct {
	FlowID          string
	Generation      uint64
	PortID          int64
	UserID          int64
	Action          string
	FromPhase       string
	ToPhase         string
	BookingID       int64
	ErrorKind       string
	ErrorMessage    string
	CardLast4       string
	CardFingerprint string
	ElapsedMS       int64
	CreatedAt       time.Time
}

// FlowEventRepository stores booking flow transitions.
type FlowEventRepository struct {
	db *sql.DB
}

// NewFlowEventRepository ctor.
func NewFlowEventRepository(db *sql.DB) *FlowEventRepository {
	return &FlowEventRepository{db: db}
}

// Save stores one transition.
func (r *FlowEventRepository) Save(ctx context.Context, e FlowEvent) error {
	const query = `
		INSERT INTO flow_events (
			flow_id, generation, port_id, user_id, action, from_phase, to_phase,
			booking_id, error_kind, error_message, card_last4, card_fingerprint,
			elapsed_ms, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := r.db.ExecContext(ctx, query,
		e.FlowID,
		int64(e.Generation),
		e.PortID,
		nullInt64(e.UserID),
		e.Action,
		e.FromPhase,
		e.ToPhase,
		nullInt64(e.BookingID),
		nullString(e.ErrorKind),
		nullString(e.ErrorMessage),
		nullString(e.CardLast4),
		nullString(e.CardFingerprint),
		e.ElapsedMS,
		e.CreatedAt,
	)
	return err
}

// ListByFlow returns the transitions of a flow, oldest first.
func (r *FlowEventRepository) ListByFlow(ctx context.Context, flowID string) ([]FlowEvent, error) {
	const query = `
		SELECT flow_id, generation, port_id, user_id, action, from_phase, to_phase,
			booking_id, error_kind, error_message, card_last4, card_fingerprint,
			elapsed_ms, created_at
		FROM flow_events
		WHERE flow_id = $1
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query, flowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []FlowEvent
	for rows.Next() {
		var (
			e                                   FlowEvent
			generation                          int64
			userID, bookingID                   sql.NullInt64
			errKind, errMsg, last4, fingerprint sql.NullString
		)
		if err := rows.Scan(
			&e.FlowID, &generation, &e.PortID, &userID, &e.Action, &e.FromPhase, &e.ToPhase,
			&bookingID, &errKind, &errMsg, &last4, &fingerprint,
			&e.ElapsedMS, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		e.Generation = uint64(generation)
		e.UserID = userID.Int64
		e.BookingID = bookingID.Int64
		e.ErrorKind = errKind.String
		e.ErrorMessage = errMsg.String
		e.CardLast4 = last4.String
		e.CardFingerprint = fingerprint.String
		events = append(events, e)
	}
	return events, rows.Err()
}

func nullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
