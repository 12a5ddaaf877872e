package ws

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Server upgrades HTTP connections to snapshot subscriptions.
type Server struct {
	hub          *Hub
	logger       *zap.Logger
	writeTimeout time.Duration
	upgrader     websocket.Upgrader
}

// NewServer builds ws server.
func NewServer(hub *Hub, writeTimeout time.Duration, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &Server{
		hub:          hub,
		logger:       logger,
		writeTimeout: writeTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Subscribe upgrades the request, sends initial and then streams every later snapshot of
// flowID until the client goes away.
func (s *Server) Subscribe(w http.ResponseWriter, r *http.Request, flowID string, initial []byte) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.String("flow_id", flowID), zap.Error(err))
		return
	}

	connection := NewConnection(flowID, conn, s.writeTimeout, s.logger, s.hub.Remove)
	s.hub.Add(connection)
	if initial != nil {
		connection.Send(initial)
	}
	s.logger.Info("flow subscriber connected", zap.String("flow_id", flowID))

	go connection.Start()
}
