package kithttp

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/gitvzz/kitHttp/socket/transport"
)

// serveSocket upgrades the request and runs the connection's receive loop.
// The connection id comes from the "id" parameter when the caller supplies
// one, otherwise a random ten-digit string. Registration happens only after a
// successful handshake, and removal is deferred so it runs no matter how the
// loop ends.
func (k *KitHttp) serveSocket(w http.ResponseWriter, r *http.Request, defaultHandler EventHandler) {
	params := mergedParams(r)

	id := randomDigits(10)
	if v, ok := params["id"].(string); ok && v != "" {
		id = v
	}

	wsConn, err := k.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the client error response.
		k.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	tr := transport.NewWebSocketServerTransport(id, wsConn, k.socketConfig)
	conn := newConn(id, tr, k.logger)

	k.conns.add(conn)
	k.metrics.ActiveConnections.Inc()
	k.metrics.ConnectionsTotal.Inc()
	k.logger.Info("socket connected", "conn", id, "remote", r.RemoteAddr)

	defer func() {
		k.conns.remove(id)
		k.metrics.ActiveConnections.Dec()
		conn.Close("")
		k.logger.Info("socket disconnected", "conn", id)
	}()

	for {
		kind, data, err := tr.Read()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				k.logger.Debug("socket read ended", "conn", id, "error", err)
			}
			return
		}

		switch kind {
		case transport.KindText:
			k.metrics.FramesReceived.Inc()
			k.dispatch(conn, r, params, defaultHandler, data)
		case transport.KindBinary:
			// Accepted but not interpreted; extension hook.
		}
	}
}
