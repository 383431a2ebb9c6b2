// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package listener

import (
	"net/http"

	"github.com/z5labs/switchboard/pkg/slogfield"

	"github.com/gorilla/websocket"
)

// WebSocketHandler receives every completed WebSocket upgrade.
type WebSocketHandler interface {
	ServeWebSocket(conn *websocket.Conn, r *http.Request)
}

// WebSocketHandlerFunc is a func implementation of [WebSocketHandler].
type WebSocketHandlerFunc func(*websocket.Conn, *http.Request)

// ServeWebSocket implements the [WebSocketHandler] interface.
func (f WebSocketHandlerFunc) ServeWebSocket(conn *websocket.Conn, r *http.Request) {
	f(conn, r)
}

// wsEngine completes upgrade handshakes on behalf of the HTTP family
// engines. It never owns a socket of its own.
type wsEngine struct {
	upgrader websocket.Upgrader
}

func newWSEngine(checkOrigin func(*http.Request) bool) *wsEngine {
	return &wsEngine{
		upgrader: websocket.Upgrader{
			CheckOrigin: checkOrigin,
		},
	}
}

func (l *Listener) upgrade(w http.ResponseWriter, r *http.Request) {
	h := l.wsHandler.Load()
	if h == nil {
		http.NotFound(w, r)
		return
	}

	conn, err := l.ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied with an HTTP error.
		l.emitError(r.Context(), UpgradeError{Path: r.URL.Path, Cause: err})
		return
	}
	l.log.DebugContext(
		r.Context(),
		"upgraded websocket connection",
		slogfield.Path(r.URL.Path),
		slogfield.String("remote_addr", r.RemoteAddr),
	)
	(*h).ServeWebSocket(conn, r)
}
