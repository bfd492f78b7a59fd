package chi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ishan121028/RadiologyAI/internal/domain/alert"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Alert consumers are internal dashboards and agents, not browsers
	// from arbitrary origins.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsMessage is the wire envelope for pushed alerts.
type wsMessage struct {
	Type string      `json:"type"`
	Data alert.Event `json:"data"`
}

// AlertsWebsocket handles GET /v1/alerts/ws. Each connection gets its own
// broker subscription; queued alerts are replayed on connect.
func (s *Server) AlertsWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	sub := s.alerts.Subscribe()
	s.logger.Info("Alert subscriber connected", zap.String("subscriber", sub.ID))

	done := make(chan struct{})

	// Reader: discard client frames, notice the close.
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		s.alerts.Unsubscribe(sub.ID)
		conn.Close()
		s.logger.Info("Alert subscriber disconnected", zap.String("subscriber", sub.ID))
	}()

	for {
		select {
		case ev, ok := <-sub.Events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(wsMessage{Type: "alert", Data: ev}); err != nil {
				s.logger.Warn("Websocket write failed",
					zap.String("subscriber", sub.ID), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
