package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evbooking/backend/services/booking-gateway/internal/flow"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unauthenticated", fmt.Errorf("create booking: %w", flow.ErrUnauthenticated), http.StatusUnauthorized},
		{"validation", &flow.ValidationError{Message: "x"}, http.StatusUnprocessableEntity},
		{"busy", &flow.FlowError{Kind: flow.KindBusy}, http.StatusConflict},
		{"stale", flow.ErrStaleResponse, http.StatusConflict},
		{"completed", flow.ErrFlowCompleted, http.StatusConflict},
		{"not selectable", flow.ErrSlotNotSelectable, http.StatusConflict},
		{"remote 4xx", &flow.RemoteError{Status: http.StatusBadRequest}, http.StatusBadRequest},
		{"remote 5xx", &flow.RemoteError{Status: http.StatusServiceUnavailable}, http.StatusBadGateway},
		{"wrapped remote", &flow.FlowError{Kind: flow.KindRemote, Err: &flow.RemoteError{Status: http.StatusNotFound}}, http.StatusNotFound},
		{"transport", &flow.TransportError{Op: "list slots", Err: errors.New("refused")}, http.StatusBadGateway},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

func TestParseStartTime(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	got, err := parseStartTime("2026-03-11T10:00:00", berlin)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, time.March, 11, 9, 0, 0, 0, time.UTC), got.UTC())

	got, err = parseStartTime("2026-03-11T10:00:00Z", berlin)
	require.NoError(t, err)
	assert.Equal(t, 10, got.UTC().Hour())

	_, err = parseStartTime("", berlin)
	assert.Error(t, err)
}
