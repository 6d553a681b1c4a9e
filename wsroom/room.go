// Package wsroom implements the WebSocket Fan-Out Room (spec.md §4.I):
// the session table plus cooperative single-worker-thread engine shared
// by the chat and MQTT-gateway specializations. Grounded on
// original_source/ChatRoomPlugin/src/ChatRoomPlugin.cpp for the
// mutex+condition-variable worker shape and
// original_source/Managers/src/MqttDeviceConnector.cpp for the gateway's
// subscribe/unsubscribe reconciliation.
//
// The worker pattern is deliberately NOT a channel-based Hub (contrast
// with the select-loop shape other retrieved examples use): spec.md §9
// calls for preserving the source's "collect under lock, release, drop,
// reacquire" closed-user cleanup dance, which a channel-fan-in Hub would
// not express.
package wsroom

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/falcata-iot/edge/broker"
	"github.com/falcata-iot/edge/mqttclient"
)

// defaultPollPeriod is the worker's bounded condition-variable wake
// period, per spec.md §4.I/§5 (50ms default).
const defaultPollPeriod = 50 * time.Millisecond

// defaultPingPeriod is the MQTT gateway specialization's liveness-check
// period, per spec.md §4.I (50 000ms default). Zero disables the ping
// ticker entirely (the chat specialization never pings a broker).
const defaultPingPeriod = 50 * time.Second

// gatewayConnectTimeout bounds the worker's reconnect attempt when
// initial_connect_pending is set.
const gatewayConnectTimeout = 100 * time.Millisecond

// sessionState is a session's position in the INIT→OPEN→CLOSING→REMOVED
// diagram, per spec.md §4.I.
type sessionState int

const (
	stateOpen sessionState = iota
	stateClosing
)

// session is one WebSocket connection's room-visible state, the Go
// analogue of ChatRoomPlugin.cpp's per-session User record.
type session struct {
	id            int
	conn          *websocket.Conn
	state         sessionState
	userName      string // chat specialization
	diagnosticTag string
	topics        []string // gateway specialization: subscribed filters
}

// endpointCommand is a pending gateway SUBSCRIBE/UNSUBSCRIBE the worker
// has not yet reconciled against the broker.
type endpointCommand struct {
	kind      string // "subscribe" | "unsubscribe"
	sessionID int
	topic     string
	qos       byte
}

// Room is the shared fan-out engine. One mutex guards every field; a
// single worker goroutine drains pending work in the fixed order spec.md
// §4.I names: stop → initial connect → ping → pending SUB/UNSUB →
// closed-user cleanup → join-room broadcast.
type Room struct {
	mu   sync.Mutex
	cond *sync.Cond

	sessions      map[int]*session
	nextSessionID int

	accounts        map[string]string // chat: user_name -> password
	chatLog         []chatEntry
	joinedUserNames []string // chat: names awaiting a deferred join broadcast

	pendingCommands []endpointCommand // gateway: SUB/UNSUB awaiting reconciliation
	gatewaySession  *broker.Session   // gateway: nil for chat rooms

	stop                  bool
	usersHaveClosed       bool
	userJoinRoom          bool
	initialConnectPending bool
	ping                  bool

	pollPeriod time.Duration
	pingPeriod time.Duration

	stopCh  chan struct{}
	stopped chan struct{}
}

func newRoom(pollPeriod time.Duration) *Room {
	r := &Room{
		sessions:      make(map[int]*session),
		nextSessionID: 1,
		accounts:      make(map[string]string),
		pollPeriod:    pollPeriod,
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// NewChatRoom creates an unstarted chat-specialization Room.
func NewChatRoom() *Room {
	return newRoom(defaultPollPeriod)
}

// NewGatewayRoom creates an unstarted MQTT-gateway-specialization Room
// bound to a single broker Session. session may be nil in tests that
// only exercise the chat-shaped message handling.
func NewGatewayRoom(session *broker.Session) *Room {
	r := newRoom(defaultPollPeriod)
	r.gatewaySession = session
	r.pingPeriod = defaultPingPeriod
	r.initialConnectPending = session == nil || !session.Server().IsReachable()
	return r
}

// Start launches the worker goroutine.
func (r *Room) Start() {
	go r.worker()
}

// Stop signals the worker to exit and blocks until it has, per spec.md
// §5's "sets stop=true, signals the condition variable, and joins the
// worker".
func (r *Room) Stop() {
	r.mu.Lock()
	r.stop = true
	r.cond.Broadcast()
	r.mu.Unlock()
	close(r.stopCh)
	<-r.stopped
}

// MarkDisconnected flips initial_connect_pending, per spec.md §4.I's
// failure semantics: "broker disconnects... set
// initial_connect_pending=true, causing the worker to reconnect on its
// next wake". Wired via devicemgr.Manager.SetDisconnectHandler, invoked
// by broker.Session.HandleConnectLost on an unsolicited MQTT disconnect.
func (r *Room) MarkDisconnected() {
	r.mu.Lock()
	r.initialConnectPending = true
	r.cond.Broadcast()
	r.mu.Unlock()
}

// AddUser opens a new session over conn and returns its id. Session ids
// are strictly increasing starting at 1 across the Room's lifetime, per
// spec.md §8 property 5, regardless of how many sessions have since
// closed.
func (r *Room) AddUser(conn *websocket.Conn, diagnosticTag string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextSessionID
	r.nextSessionID++
	r.sessions[id] = &session{id: id, conn: conn, state: stateOpen, diagnosticTag: diagnosticTag}
	return id
}

// RemoveUser marks a session CLOSING and wakes the worker to run the
// closed-user cleanup dance; mirrors ChatRoomPlugin::RemoveUser.
func (r *Room) RemoveUser(sessionID int) {
	r.mu.Lock()
	if s, ok := r.sessions[sessionID]; ok && s.state == stateOpen {
		s.state = stateClosing
		r.usersHaveClosed = true
		r.cond.Broadcast()
	}
	r.mu.Unlock()
}

// SessionCount reports the number of currently-open sessions, used by the
// /debug/rooms diagnostic endpoint (SPEC_FULL.md's SUPPLEMENTED FEATURES).
func (r *Room) SessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// DiagnosticTags returns the diagnostic_tag of every open session, for
// the same /debug/rooms endpoint.
func (r *Room) DiagnosticTags() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.diagnosticTag)
	}
	return out
}

// Broadcast sends a pre-encoded text frame to every open session. This is
// the interface the Topology Updater and Command Dispatcher broadcast
// through (topology.Broadcaster / dispatcher.Broadcaster).
func (r *Room) Broadcast(payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		_ = s.conn.WriteMessage(websocket.TextMessage, payload)
	}
}

func (r *Room) worker() {
	defer close(r.stopped)

	pollTicker := time.NewTicker(r.pollPeriod)
	defer pollTicker.Stop()
	go func() {
		for {
			select {
			case <-pollTicker.C:
				r.mu.Lock()
				r.cond.Broadcast()
				r.mu.Unlock()
			case <-r.stopCh:
				return
			}
		}
	}()

	if r.pingPeriod > 0 {
		pingTicker := time.NewTicker(r.pingPeriod)
		defer pingTicker.Stop()
		go func() {
			for {
				select {
				case <-pingTicker.C:
					r.mu.Lock()
					r.ping = true
					r.cond.Broadcast()
					r.mu.Unlock()
				case <-r.stopCh:
					return
				}
			}
		}()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		for !r.stop && !r.initialConnectPending && !r.ping && len(r.pendingCommands) == 0 &&
			!r.usersHaveClosed && !r.userJoinRoom {
			r.cond.Wait()
		}
		if r.stop {
			return
		}

		// Fixed drain order, per spec.md §4.I: initial connect → ping →
		// pending SUB/UNSUB → closed-user cleanup → join-room broadcast.
		// ("stop" was already handled above.)
		if r.initialConnectPending {
			r.handleInitialConnectLocked()
		}
		if r.ping {
			r.handlePingLocked()
		}
		if len(r.pendingCommands) > 0 {
			r.drainPendingCommandsLocked()
		}
		if r.usersHaveClosed {
			r.drainClosedUsersLocked()
		}
		if r.userJoinRoom {
			r.broadcastJoinLocked()
		}
	}
}

// handleInitialConnectLocked attempts to reconnect the gateway's broker
// session and, on success, re-enqueues every still-open session's
// subscriptions, per spec.md §4.I's "pending SUBs issued while
// disconnected are serviced after the next successful CONNECT".
func (r *Room) handleInitialConnectLocked() {
	if r.gatewaySession == nil {
		r.initialConnectPending = false
		return
	}
	r.mu.Unlock()
	outcome := r.gatewaySession.Connect(gatewayConnectTimeout)
	r.mu.Lock()
	if outcome != mqttclient.Success {
		return
	}
	r.initialConnectPending = false
	for _, s := range r.sessions {
		for _, t := range s.topics {
			r.pendingCommands = append(r.pendingCommands, endpointCommand{kind: "subscribe", sessionID: s.id, topic: t})
		}
	}
}

// handlePingLocked checks broker liveness and schedules a reconnect if
// the transport has gone away without delivering an explicit disconnect
// callback.
func (r *Room) handlePingLocked() {
	r.ping = false
	if r.gatewaySession != nil && !r.gatewaySession.Server().IsReachable() {
		r.initialConnectPending = true
	}
}

// drainClosedUsersLocked implements spec.md §9's "nested scoped unlocks":
// departing sessions are extracted from the map first, the lock is
// released to close their transports (arbitrary I/O must never run under
// the room lock), then the lock is reacquired before computing and
// sending the Leave/UserNames fan-out.
func (r *Room) drainClosedUsersLocked() {
	r.usersHaveClosed = false

	var closed []*session
	for id, s := range r.sessions {
		if s.state == stateClosing {
			closed = append(closed, s)
			delete(r.sessions, id)
		}
	}
	if len(closed) == 0 {
		return
	}

	r.mu.Unlock()
	for _, s := range closed {
		_ = s.conn.Close()
	}
	r.mu.Lock()

	for _, s := range closed {
		if s.userName == "" || r.hasUserNameLocked(s.userName) {
			continue
		}
		_ = r.broadcastValueLocked(leaveFrame{Type: "Leave", UserName: s.userName})
		_ = r.broadcastValueLocked(userNamesFrame{Type: "UserNames", UserNames: r.sortedUserNamesLocked()})
	}
}

func (r *Room) hasUserNameLocked(name string) bool {
	for _, s := range r.sessions {
		if s.userName == name {
			return true
		}
	}
	return false
}

func removeString(ss []string, v string) []string {
	out := ss[:0]
	for _, s := range ss {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}
