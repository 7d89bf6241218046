// Package wshub implements the supplemented live-upload-progress feature:
// a per-uploadId WebSocket watcher that relays the KV pub/sub progress
// channel to a connected client. Grounded on the teacher's
// internal/api/websocket_handler.go (gorilla/websocket upgrader, a
// readPump/writePump pair with ping/pong keepalive) but simplified to one
// subscription per connection instead of a broadcast-to-everyone hub,
// since each watcher only cares about one upload.
package wshub

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/floegw/floe/internal/kv"
	"github.com/floegw/floe/internal/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub upgrades incoming requests and relays an upload's progress channel
// to each connected watcher.
type Hub struct {
	kv  *kv.Client
	log *logger.Logger
}

func New(kvc *kv.Client, log *logger.Logger) *Hub {
	return &Hub{kv: kvc, log: log}
}

// Serve upgrades the connection and relays uploadID's progress channel
// until the client disconnects or the upload's pub/sub channel closes.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, uploadID string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	sub := h.kv.SubscribeProgress(r.Context(), uploadID)
	go h.readPump(conn)
	h.writePump(conn, sub)
	return nil
}

// readPump drains incoming client frames (pings, close) so the connection
// doesn't back up; this watcher never expects client payloads.
func (h *Hub) readPump(conn *websocket.Conn) {
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(conn *websocket.Conn, sub *redis.PubSub) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.Close()
		conn.Close()
	}()

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
