package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/aimoverse/aimo-node/internal/authn"
	"github.com/aimoverse/aimo-node/internal/router"
)

// upgrader performs the WebSocket handshake for the provider-subscribe
// endpoint. Origin checking is left to the reverse proxy/CORS layer
// ahead of this node, matching the original implementation's permissive
// default (spec explicitly places CORS plumbing out of scope).
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Subscribe handles ANY /providers/subscribe: upgrades to a WebSocket,
// registers the authenticated signer as a service id, and pumps
// Requests/Responses between the Router and the socket until either
// side closes (spec §4.5).
func Subscribe(r router.Router) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		key, ok := authn.FromContext(req.Context())
		if !ok {
			http.Error(w, "missing authenticated credential", http.StatusUnauthorized)
			return
		}
		serviceID := signerString(key)

		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			slog.Warn("provider subscribe: upgrade failed", "err", err)
			return
		}
		defer conn.Close()

		handle, err := r.RegisterService(serviceID)
		if err != nil {
			slog.Error("provider subscribe: register failed", "service_id", serviceID, "err", err)
			return
		}
		defer func() {
			if err := r.DropService(serviceID, handle); err != nil {
				slog.Debug("provider subscribe: drop_service on teardown", "service_id", serviceID, "err", err)
			}
		}()

		// When the Router→socket pump ends, closing conn ends the
		// socket→Router pump; when that one ends, the handler returns and
		// the deferred DropService closes the inbox, ending the other.
		done := make(chan struct{})
		go pumpRouterToSocket(conn, handle, done)
		go func() {
			<-done
			_ = conn.Close()
		}()
		pumpSocketToRouter(conn, handle, serviceID)
	}
}

// pumpRouterToSocket drains handle.Inbox, JSON-serializes each Request,
// and writes it as a text frame. It returns (closing done) when the
// inbox closes or a write fails.
func pumpRouterToSocket(conn *websocket.Conn, handle router.ProviderHandle, done chan<- struct{}) {
	defer close(done)
	for req := range handle.Inbox {
		payload, err := json.Marshal(req)
		if err != nil {
			slog.Error("provider subscribe: failed to marshal request", "request_id", req.RequestID, "err", err)
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			slog.Warn("provider subscribe: socket write failed, aborting pump", "err", err)
			return
		}
	}
}

// pumpSocketToRouter reads text frames, deserializes each as a
// Response, and forwards it to the Router. Deserialization failures are
// logged and dropped (spec §4.5) rather than tearing down the
// connection.
func pumpSocketToRouter(conn *websocket.Conn, handle router.ProviderHandle, serviceID string) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("provider subscribe: socket read ended", "service_id", serviceID, "err", err)
			} else {
				slog.Warn("provider subscribe: socket read failed", "service_id", serviceID, "err", err)
			}
			close(handle.Outbox)
			return
		}

		var resp router.Response
		if err := json.Unmarshal(data, &resp); err != nil {
			slog.Warn("provider subscribe: dropping malformed response frame", "service_id", serviceID, "err", err)
			continue
		}
		handle.Outbox <- resp
	}
}
