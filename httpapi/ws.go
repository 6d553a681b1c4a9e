package httpapi

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/falcata-iot/edge/core/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
	// A no-op Error leaves the failed-upgrade response to upgradeOrFallback.
	Error: func(http.ResponseWriter, *http.Request, int, error) {},
}

// upgradeOrFallback upgrades r to a WebSocket connection. On failure it
// does not abort the request: per spec.md §4.I's state machine, a failed
// upgrade falls back to an HTTP 200 plaintext response telling the
// client to retry over a WebSocket next time.
func upgradeOrFallback(w http.ResponseWriter, r *http.Request) (*websocket.Conn, bool) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Try again, but next time use a WebSocket"))
		return nil, false
	}
	return conn, true
}

// handleChatWS mounts the chat specialization of the fan-out room at
// GET /ws/chat.
func (a *API) handleChatWS(w http.ResponseWriter, r *http.Request) {
	if a.chatRoom == nil {
		http.NotFound(w, r)
		return
	}
	conn, ok := upgradeOrFallback(w, r)
	if !ok {
		return
	}
	sessionID := a.chatRoom.AddUser(conn, r.RemoteAddr)
	pumpSession(conn, sessionID, a.chatRoom.ReceiveChatMessage, a.chatRoom.RemoveUser)
}

// handleOpsWS mounts a passive listener-only session on the operations
// room that topology.Updater and dispatcher.Dispatcher broadcast
// topologie.update/command.* frames through; inbound frames are
// discarded since this room has no specialization of its own.
func (a *API) handleOpsWS(w http.ResponseWriter, r *http.Request) {
	if a.opsRoom == nil {
		http.NotFound(w, r)
		return
	}
	conn, ok := upgradeOrFallback(w, r)
	if !ok {
		return
	}
	sessionID := a.opsRoom.AddUser(conn, r.RemoteAddr)
	pumpSession(conn, sessionID, func(int, []byte) error { return nil }, a.opsRoom.RemoveUser)
}

// handleGatewayWS mounts the MQTT-gateway specialization of the fan-out
// room at GET /ws/gateway/{server}, one room per configured broker.
func (a *API) handleGatewayWS(w http.ResponseWriter, r *http.Request) {
	serverID := mux.Vars(r)["server"]
	room, ok := a.gatewayRooms[serverID]
	if !ok || room == nil {
		http.NotFound(w, r)
		return
	}
	conn, ok := upgradeOrFallback(w, r)
	if !ok {
		return
	}
	sessionID := room.AddUser(conn, r.RemoteAddr)
	pumpSession(conn, sessionID, room.ReceiveGatewayMessage, room.RemoveUser)
}

// pumpSession runs the per-connection WebSocket read loop: every frame is
// handed to receive in the order it arrived, per spec.md §5's "within a
// single session, messages are processed in WebSocket frame order". A
// transport break trips removeUser, which is the close delegate the room
// worker's closed-user sweep drains.
func pumpSession(conn *websocket.Conn, sessionID int, receive func(sessionID int, raw []byte) error, removeUser func(sessionID int)) {
	defer removeUser(sessionID)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := receive(sessionID, raw); err != nil {
			logger.Default().WithError(err).WithField("session_id", fmt.Sprint(sessionID)).
				Warn("wsroom: failed to handle inbound frame")
		}
	}
}
