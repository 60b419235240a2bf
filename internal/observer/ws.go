package observer

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"portshare/internal/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Subscriber is the connect/disconnect surface of the event bus.
type Subscriber interface {
	Subscribe(id string) *Observer
	Unsubscribe(o *Observer)
}

// Handler upgrades requests to WebSocket observers of sub.
type Handler struct {
	sub      Subscriber
	upgrader websocket.Upgrader
	logger   logrus.FieldLogger
}

func NewHandler(sub Subscriber, logger logrus.FieldLogger) *Handler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Handler{
		sub:    sub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an error status.
		h.logger.WithError(err).WithField("remote", r.RemoteAddr).Debug("observer upgrade failed")
		return
	}

	o := h.sub.Subscribe(uuid.NewString())
	go h.writeLoop(conn, o)
	h.readLoop(conn, o)
}

// readLoop discards client frames and returns when the connection ends.
func (h *Handler) readLoop(conn *websocket.Conn, o *Observer) {
	defer h.sub.Unsubscribe(o)

	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

// writeLoop is the only writer on conn, so per-observer order is the queue order.
func (h *Handler) writeLoop(conn *websocket.Conn, o *Observer) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case <-o.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-o.Messages():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				h.sub.Unsubscribe(o)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.sub.Unsubscribe(o)
				return
			}
		}
	}
}
