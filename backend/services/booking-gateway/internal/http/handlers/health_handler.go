package handlers

import (
	"net/http"
)

// NewHealthHandler returns GET /health handler. liveFlows may be nil.
func NewHealthHandler(liveFlows func() int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{"status": "ok"}
		if liveFlows != nil {
			body["flows"] = liveFlows()
		}
		writeJSON(w, http.StatusOK, body)
	}
}
