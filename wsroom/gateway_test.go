package wsroom

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func deadlineShort() time.Time {
	return time.Now().Add(200 * time.Millisecond)
}

func newTestGatewayServer(t *testing.T, room *Room) (dial func() *websocket.Conn, closeServer func()) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Fatalf("upgrade: %v", err)
		}
		sessionID := room.AddUser(conn, r.RemoteAddr)
		go func() {
			defer room.RemoveUser(sessionID)
			for {
				_, raw, err := conn.ReadMessage()
				if err != nil {
					return
				}
				_ = room.ReceiveGatewayMessage(sessionID, raw)
			}
		}()
	}))
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	dial = func() *websocket.Conn {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		return conn
	}
	return dial, server.Close
}

// TestGatewayJoinServerWithoutBrokerReportsUnreachable exercises the
// gateway specialization with a nil broker session, the shape a gateway
// room is constructed with before its first successful CONNECT.
func TestGatewayJoinServerWithoutBrokerReportsUnreachable(t *testing.T) {
	room := NewGatewayRoom(nil)
	room.Start()
	defer room.Stop()

	dial, closeServer := newTestGatewayServer(t, room)
	defer closeServer()

	conn := dial()
	defer conn.Close()

	sendFrame(t, conn, map[string]string{"Type": "JoinServer"})
	var resp joinServerResponse
	readFrame(t, conn, &resp)

	if resp.Reachable {
		t.Fatal("expected an unconnected gateway session to report unreachable")
	}
	if len(resp.Subscriptions) != 0 {
		t.Fatalf("expected no subscriptions yet, got %v", resp.Subscriptions)
	}
}

// TestRelayPublishMatchesWildcardFilters exercises the RelayPublish fan-out
// directly against manually-installed session subscriptions, since a real
// SUBSCRIBE round trip requires a live broker (spec.md §8 property 6, in
// the gateway's actual send path rather than the bare matcher).
func TestRelayPublishMatchesWildcardFilters(t *testing.T) {
	room := NewGatewayRoom(nil)

	dial, closeServer := newTestGatewayServer(t, room)
	defer closeServer()

	matching := dial()
	defer matching.Close()
	nonMatching := dial()
	defer nonMatching.Close()

	// Round-trip a JoinServer on each socket first: since JoinServer's
	// reply is only written after Room.AddUser has run, receiving it
	// guarantees the session is present in room.sessions before we reach
	// in and set its subscriptions below.
	for _, conn := range []*websocket.Conn{matching, nonMatching} {
		sendFrame(t, conn, map[string]string{"Type": "JoinServer"})
		var resp joinServerResponse
		readFrame(t, conn, &resp)
	}

	room.mu.Lock()
	for _, s := range room.sessions {
		if s.diagnosticTag == matching.LocalAddr().String() {
			s.topics = []string{"sites/+/devices/2/telemetry"}
		} else {
			s.topics = []string{"sites/1/devices/3/telemetry"}
		}
	}
	room.mu.Unlock()

	room.RelayPublish(42, "sites/1/devices/2/telemetry", []byte(`{"temp":21}`))

	var got publishFrame
	readFrame(t, matching, &got)
	if got.Type != "Publish" || got.Topic != "sites/1/devices/2/telemetry" || got.Id != 42 {
		t.Fatalf("unexpected relayed frame: %+v", got)
	}

	nonMatching.SetReadDeadline(deadlineShort())
	if _, _, err := nonMatching.ReadMessage(); err == nil {
		t.Fatal("expected the non-matching session to receive nothing")
	}
}
