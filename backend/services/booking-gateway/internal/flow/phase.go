package flow

import "fmt"

// Phase is the discrete step of a booking flow.
type Phase string

const (
	PhaseSelect                Phase = "select"
	PhasePayment               Phase = "payment"
	PhaseSubscriptionConfirmed Phase = "subscription"
)

// ParsePhase validates a stored phase name.
func ParsePhase(s string) (Phase, error) {
	switch Phase(s) {
	case PhaseSelect, PhasePayment, PhaseSubscriptionConfirmed:
		return Phase(s), nil
	default:
		return "", fmt.Errorf("flow: unknown phase %q", s)
	}
}

var allowedTransitions = map[Phase]map[Phase]bool{
	PhaseSelect:                {PhaseSelect: true, PhasePayment: true, PhaseSubscriptionConfirmed: true},
	PhasePayment:               {PhaseSelect: true, PhasePayment: true},
	PhaseSubscriptionConfirmed: {PhaseSubscriptionConfirmed: true}, // left only by closing the flow
}

// CanTransition reports whether a flow may move from one phase to another.
func CanTransition(from, to Phase) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}
