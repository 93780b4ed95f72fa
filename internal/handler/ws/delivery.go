package ws

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/webitel/jetstream-explorer/internal/domain/filter"
	"github.com/webitel/jetstream-explorer/internal/domain/registry"
	"github.com/webitel/jetstream-explorer/internal/handler/marshaller"
	"github.com/webitel/jetstream-explorer/internal/service"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

type WSHandler struct {
	logger   *slog.Logger
	explorer service.Explorer
	version  string
	upgrader websocket.Upgrader
}

func NewWSHandler(logger *slog.Logger, explorer service.Explorer, version string) *WSHandler {
	return &WSHandler{
		logger:   logger,
		explorer: explorer,
		version:  version,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // local inspector
		},
	}
}

// ServeHTTP re-broadcasts the live stream to one viewer. The query string
// takes the same filter parameters as the events API.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// 1. PARSE FILTER
	opts, err := filter.FromQuery(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// 2. UPGRADE TO WEBSOCKET
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", "err", err)
		return
	}
	defer ws.Close()

	// 3. SUBSCRIBE VIA THE SAME SERVICE
	conn, err := h.explorer.Subscribe(r.Context(), opts, registry.ConnectMetadata{
		RemoteIP:  r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		return
	}
	defer h.explorer.Unsubscribe(conn.GetID())

	h.logger.Info("ws opened", "conn_id", conn.GetID(), "remote", r.RemoteAddr)
	defer func() {
		h.logger.Info("ws closed", "conn_id", conn.GetID(), "dropped", conn.Dropped())
	}()

	// [READ_PUMP] viewers only send control frames; reading detects disconnects
	gone := make(chan struct{})
	ws.SetReadLimit(512)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error { return ws.SetReadDeadline(time.Now().Add(pongWait)) })
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if hello, err := marshaller.MarshallConnected(conn.GetID(), h.version); err == nil {
		if !h.write(ws, websocket.TextMessage, hello) {
			return
		}
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	// 4. MAIN WS PUMP LOOP
	for {
		select {
		case <-r.Context().Done():
			return
		case <-gone:
			return
		case <-conn.Done():
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
			return
		case <-ping.C:
			if !h.write(ws, websocket.PingMessage, nil) {
				return
			}
		case ev := <-conn.Recv():
			data, err := marshaller.MarshallLiveEvent(ev)
			if err != nil {
				h.logger.Error("failed to marshal ws event", "err", err)
				continue
			}
			if !h.write(ws, websocket.TextMessage, data) {
				return
			}
		}
	}
}

func (h *WSHandler) write(ws *websocket.Conn, mt int, data []byte) bool {
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteMessage(mt, data); err != nil {
		h.logger.Warn("ws send failed", "err", err)
		return false
	}
	return true
}
