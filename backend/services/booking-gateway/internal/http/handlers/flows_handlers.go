package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"evbooking/backend/services/booking-gateway/internal/flow"
	"evbooking/backend/services/booking-gateway/internal/metrics"
	"evbooking/backend/services/booking-gateway/internal/models"
	"evbooking/backend/services/booking-gateway/internal/registry"
	"evbooking/backend/services/booking-gateway/internal/ws"
)

const maxBodyBytes = 64 << 10

// startTimeLayout is the naive local timestamp used by the booking API.
const startTimeLayout = "2006-01-02T15:04:05.999999999"

// FlowHandlers exposes booking flows over REST.
type FlowHandlers struct {
	flows   *registry.Registry
	events  *ws.Server
	hub     *ws.Hub
	metrics *metrics.FlowMetrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewFlowHandlers returns handler struct. events, hub and m may be nil.
func NewFlowHandlers(flows *registry.Registry, events *ws.Server, hub *ws.Hub, m *metrics.FlowMetrics, logger *zap.Logger) *FlowHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FlowHandlers{
		flows:   flows,
		events:  events,
		hub:     hub,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

type createFlowRequest struct {
	PortID int64 `json:"portId"`
}

type createFlowResponse struct {
	FlowID  string            `json:"flowId"`
	Session models.SessionDTO `json:"session"`
}

type selectSlotRequest struct {
	StartTime string `json:"startTime"`
}

type payRequest struct {
	Method     string `json:"method"`
	CardNumber string `json:"cardNumber"`
	Expiry     string `json:"expiry"`
	CVC        string `json:"cvc"`
	HolderName string `json:"holderName"`
}

type flowErrorResponse struct {
	Error   string             `json:"error"`
	Kind    string             `json:"kind"`
	Session *models.SessionDTO `json:"session,omitempty"`
}

// Create handles POST /api/flows.
func (h *FlowHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req createFlowRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.PortID <= 0 {
		writeJSON(w, http.StatusUnprocessableEntity, flowErrorResponse{
			Error: "portId must be a positive integer",
			Kind:  string(flow.KindValidation),
		})
		return
	}

	engine := h.flows.Create()
	s, err := engine.Open(r.Context(), req.PortID)
	if err != nil {
		h.writeFlowError(w, engine, flow.OpOpen, s, err)
		return
	}
	h.logger.Info("booking flow opened",
		zap.String("flow_id", engine.ID()),
		zap.Int64("port_id", req.PortID),
		zap.Int("slots", len(s.Slots)),
	)
	writeJSON(w, http.StatusCreated, createFlowResponse{FlowID: engine.ID(), Session: h.snapshot(engine, s)})
}

// Get handles GET /api/flows/{id}.
func (h *FlowHandlers) Get(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.snapshot(engine, engine.Session()))
}

// Reload handles POST /api/flows/{id}/reload.
func (h *FlowHandlers) Reload(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, flow.OpReload, func(engine *flow.Engine) (flow.Session, error) {
		return engine.Reload(r.Context())
	})
}

// Select handles POST /api/flows/{id}/select.
func (h *FlowHandlers) Select(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req selectSlotRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	start, err := parseStartTime(req.StartTime, engine.Location())
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, flowErrorResponse{
			Error: "startTime must be a timestamp like 2006-01-02T15:04:05",
			Kind:  string(flow.KindValidation),
		})
		return
	}

	s, err := engine.SelectSlot(r.Context(), flow.SlotRecord{StartTime: start})
	h.respond(w, engine, flow.OpSelect, s, err)
}

// Confirm handles POST /api/flows/{id}/confirm.
func (h *FlowHandlers) Confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, flow.OpConfirm, func(engine *flow.Engine) (flow.Session, error) {
		return engine.Confirm(r.Context())
	})
}

// Back handles POST /api/flows/{id}/back.
func (h *FlowHandlers) Back(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, flow.OpBack, func(engine *flow.Engine) (flow.Session, error) {
		return engine.Back(r.Context())
	})
}

// Pay handles POST /api/flows/{id}/pay.
func (h *FlowHandlers) Pay(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req payRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	s, err := engine.Pay(r.Context(), flow.PaymentDraft{
		Method:     flow.PaymentMethod(req.Method),
		CardNumber: req.CardNumber,
		Expiry:     req.Expiry,
		CVC:        req.CVC,
		HolderName: req.HolderName,
	})
	h.respond(w, engine, flow.OpPay, s, err)
}

// Acknowledge handles POST /api/flows/{id}/acknowledge.
func (h *FlowHandlers) Acknowledge(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, flow.OpAcknowledge, func(engine *flow.Engine) (flow.Session, error) {
		return engine.Acknowledge(r.Context())
	})
}

// Delete handles DELETE /api/flows/{id}.
func (h *FlowHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.lookup(w, r)
	if !ok {
		return
	}
	engine.Close(r.Context())
	if h.hub != nil {
		h.hub.CloseFlow(engine.ID())
	}
	if err := h.flows.Remove(r.Context(), engine.ID()); err != nil {
		h.logger.Warn("failed to drop flow snapshot", zap.String("flow_id", engine.ID()), zap.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}

// Events handles GET /api/flows/{id}/events.
func (h *FlowHandlers) Events(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		writeError(w, http.StatusNotFound, "event stream disabled")
		return
	}
	engine, ok := h.lookup(w, r)
	if !ok {
		return
	}
	initial, err := json.Marshal(h.snapshot(engine, engine.Session()))
	if err != nil {
		h.logger.Error("failed to encode flow snapshot", zap.String("flow_id", engine.ID()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.events.Subscribe(w, r, engine.ID(), initial)
}

func (h *FlowHandlers) transition(w http.ResponseWriter, r *http.Request, op flow.Operation, run func(engine *flow.Engine) (flow.Session, error)) {
	engine, ok := h.lookup(w, r)
	if !ok {
		return
	}
	s, err := run(engine)
	h.respond(w, engine, op, s, err)
}

func (h *FlowHandlers) respond(w http.ResponseWriter, engine *flow.Engine, op flow.Operation, s flow.Session, err error) {
	if err != nil {
		h.writeFlowError(w, engine, op, s, err)
		return
	}
	writeJSON(w, http.StatusOK, h.snapshot(engine, s))
}

func (h *FlowHandlers) lookup(w http.ResponseWriter, r *http.Request) (*flow.Engine, bool) {
	id := r.PathValue("id")
	engine, err := h.flows.Get(r.Context(), id)
	if errors.Is(err, registry.ErrFlowNotFound) {
		writeError(w, http.StatusNotFound, "flow not found")
		return nil, false
	}
	if err != nil {
		h.logger.Error("flow lookup failed", zap.String("flow_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil, false
	}
	return engine, true
}

func (h *FlowHandlers) writeFlowError(w http.ResponseWriter, engine *flow.Engine, op flow.Operation, s flow.Session, err error) {
	kind := flow.KindOf(err)
	switch kind {
	case flow.KindBusy, flow.KindStale, flow.KindCompleted:
		h.metrics.ObserveRejected(op, err)
	}

	message := err.Error()
	var flowErr *flow.FlowError
	if errors.As(err, &flowErr) {
		message = flowErr.Message
	}
	dto := h.snapshot(engine, s)
	writeJSON(w, StatusFor(err), flowErrorResponse{Error: message, Kind: string(kind), Session: &dto})
}

func (h *FlowHandlers) snapshot(engine *flow.Engine, s flow.Session) models.SessionDTO {
	return models.NewSessionDTO(engine.ID(), s, engine.Grid(), engine.Location(), engine.Prices(), h.now())
}

// StatusFor maps an engine error to the HTTP status returned to the browser.
func StatusFor(err error) int {
	switch flow.KindOf(err) {
	case flow.KindUnauthenticated:
		return http.StatusUnauthorized
	case flow.KindValidation:
		return http.StatusUnprocessableEntity
	case flow.KindBusy, flow.KindStale, flow.KindInvalidTransition, flow.KindCompleted, flow.KindNotSelectable:
		return http.StatusConflict
	case flow.KindRemote:
		var remoteErr *flow.RemoteError
		if errors.As(err, &remoteErr) && remoteErr.Status >= 400 && remoteErr.Status < 500 {
			return remoteErr.Status
		}
		return http.StatusBadGateway
	case flow.KindTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func parseStartTime(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.ParseInLocation(startTimeLayout, value, loc); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}

// decodeJSON reads an optional JSON body. An empty body leaves dst untouched.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
