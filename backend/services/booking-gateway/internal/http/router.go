package httpserver

import (
	"net/http"

	"evbooking/backend/services/booking-gateway/internal/http/handlers"
	"evbooking/backend/services/booking-gateway/internal/http/middleware"
)

// RouterDeps collects handler dependencies.
type RouterDeps struct {
	FlowHandlers   *handlers.FlowHandlers
	HealthHandler  http.HandlerFunc
	MetricsHandler http.Handler
}

// NewRouter wires HTTP routes with middleware. authMiddleware guards every /api route.
func NewRouter(deps RouterDeps, authMiddleware func(http.Handler) http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /health", deps.HealthHandler)
	if deps.MetricsHandler != nil {
		mux.Handle("GET /metrics", deps.MetricsHandler)
	}

	api := func(handler http.HandlerFunc) http.Handler {
		return middleware.Chain(handler, authMiddleware)
	}

	flows := deps.FlowHandlers
	mux.Handle("POST /api/flows", api(flows.Create))
	mux.Handle("GET /api/flows/{id}", api(flows.Get))
	mux.Handle("DELETE /api/flows/{id}", api(flows.Delete))
	mux.Handle("POST /api/flows/{id}/reload", api(flows.Reload))
	mux.Handle("POST /api/flows/{id}/select", api(flows.Select))
	mux.Handle("POST /api/flows/{id}/confirm", api(flows.Confirm))
	mux.Handle("POST /api/flows/{id}/back", api(flows.Back))
	mux.Handle("POST /api/flows/{id}/pay", api(flows.Pay))
	mux.Handle("POST /api/flows/{id}/acknowledge", api(flows.Acknowledge))
	mux.Handle("GET /api/flows/{id}/events", api(flows.Events))

	return mux
}
