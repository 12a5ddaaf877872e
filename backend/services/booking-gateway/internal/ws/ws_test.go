package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"evbooking/backend/services/booking-gateway/internal/flow"
)

func phaseEncoder(ev flow.Event, s flow.Session) ([]byte, error) {
	return json.Marshal(map[string]string{"flowId": ev.FlowID, "op": string(ev.Op), "phase": string(s.Phase())})
}

func dialFlow(t *testing.T, hub *Hub, flowID string) *websocket.Conn {
	t.Helper()
	srv := NewServer(hub, time.Second, zap.NewNop())
	httpSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		srv.Subscribe(w, r, flowID, []byte(`{"initial":true}`))
	}))
	t.Cleanup(httpSrv.Close)

	url := "ws" + strings.TrimPrefix(httpSrv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return hub.Subscribers(flowID) == 1 }, time.Second, 10*time.Millisecond)
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestSubscriberReceivesInitialAndTransitions(t *testing.T) {
	hub := NewHub(phaseEncoder, zap.NewNop())
	conn := dialFlow(t, hub, "f1")

	assert.Equal(t, true, readJSON(t, conn)["initial"])

	hub.OnTransition(context.Background(), flow.Event{FlowID: "f1", Op: flow.OpConfirm}, flow.Session{State: flow.PaymentState{}})
	hub.OnTransition(context.Background(), flow.Event{FlowID: "other", Op: flow.OpOpen}, flow.Session{})
	hub.OnTransition(context.Background(), flow.Event{FlowID: "f1", Op: flow.OpBack}, flow.Session{})

	msg := readJSON(t, conn)
	assert.Equal(t, "confirm", msg["op"])
	assert.Equal(t, "payment", msg["phase"])
	msg = readJSON(t, conn)
	assert.Equal(t, "back", msg["op"])
	assert.Equal(t, "f1", msg["flowId"])
}

func TestCloseFlowDisconnectsSubscribers(t *testing.T) {
	hub := NewHub(phaseEncoder, zap.NewNop())
	conn := dialFlow(t, hub, "f1")
	readJSON(t, conn)

	hub.CloseFlow("f1")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
	assert.Equal(t, 0, hub.Subscribers("f1"))
}

func TestClientDisconnectUnregisters(t *testing.T) {
	hub := NewHub(phaseEncoder, zap.NewNop())
	conn := dialFlow(t, hub, "f1")

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool { return hub.Subscribers("f1") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestOnTransitionWithoutSubscribersSkipsEncoding(t *testing.T) {
	called := false
	hub := NewHub(func(flow.Event, flow.Session) ([]byte, error) {
		called = true
		return nil, nil
	}, nil)

	hub.OnTransition(context.Background(), flow.Event{FlowID: "f1"}, flow.Session{})
	assert.False(t, called)
}
