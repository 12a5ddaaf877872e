package ws

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"evbooking/backend/services/booking-gateway/internal/flow"
)

// Encoder renders the message pushed to subscribers after a transition.
type Encoder func(ev flow.Event, session flow.Session) ([]byte, error)

// Hub tracks the websocket subscribers of every booking flow.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[*Connection]struct{}
	encode      Encoder
	logger      *zap.Logger
}

// NewHub builds subscriber hub.
func NewHub(encode Encoder, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subscribers: make(map[string]map[*Connection]struct{}),
		encode:      encode,
		logger:      logger,
	}
}

// Add registers a subscriber.
func (h *Hub) Add(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subscribers[conn.FlowID()]
	if !ok {
		set = make(map[*Connection]struct{})
		h.subscribers[conn.FlowID()] = set
	}
	set[conn] = struct{}{}
}

// Remove unregisters a subscriber.
func (h *Hub) Remove(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subscribers[conn.FlowID()]
	delete(set, conn)
	if len(set) == 0 {
		delete(h.subscribers, conn.FlowID())
	}
}

// Subscribers returns how many connections follow a flow.
func (h *Hub) Subscribers(flowID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[flowID])
}

// Publish queues msg for every subscriber of a flow.
func (h *Hub) Publish(flowID string, msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for conn := range h.subscribers[flowID] {
		conn.Send(msg)
	}
}

// CloseFlow disconnects all subscribers of a flow.
func (h *Hub) CloseFlow(flowID string) {
	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.subscribers[flowID]))
	for conn := range h.subscribers[flowID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		conn.Close()
	}
}

// OnTransition implements flow.Observer by pushing the new snapshot to subscribers.
func (h *Hub) OnTransition(_ context.Context, ev flow.Event, session flow.Session) {
	if h.Subscribers(ev.FlowID) == 0 {
		return
	}
	msg, err := h.encode(ev, session)
	if err != nil {
		h.logger.Warn("failed to encode flow snapshot", zap.String("flow_id", ev.FlowID), zap.Error(err))
		return
	}
	h.Publish(ev.FlowID, msg)
}
