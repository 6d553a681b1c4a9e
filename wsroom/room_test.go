package wsroom

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// newTestChatServer stands up an httptest server hosting room's chat
// specialization, mirroring httpapi.handleChatWS's upgrade-then-pump
// shape, and returns a dialer for it. sessionIDs, if non-nil, receives
// the room-assigned session id for every connection as it is accepted.
func newTestChatServer(t *testing.T, room *Room, sessionIDs chan int) (dial func() *websocket.Conn, closeServer func()) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Fatalf("upgrade: %v", err)
		}
		sessionID := room.AddUser(conn, r.RemoteAddr)
		if sessionIDs != nil {
			sessionIDs <- sessionID
		}
		go func() {
			defer room.RemoveUser(sessionID)
			for {
				_, raw, err := conn.ReadMessage()
				if err != nil {
					return
				}
				_ = room.ReceiveChatMessage(sessionID, raw)
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

func readFrame(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("Unmarshal %s: %v", raw, err)
	}
}

func sendFrame(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	payload, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
}

// TestAddUserSessionIDsAreStrictlyIncreasing is spec.md §8 property 5.
func TestAddUserSessionIDsAreStrictlyIncreasing(t *testing.T) {
	room := NewChatRoom()
	room.Start()
	defer room.Stop()

	sessionIDs := make(chan int, 5)
	dial, closeServer := newTestChatServer(t, room, sessionIDs)
	defer closeServer()

	var conns []*websocket.Conn
	var ids []int
	for i := 0; i < 5; i++ {
		conns = append(conns, dial())
		select {
		case id := <-sessionIDs:
			ids = append(ids, id)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for AddUser to run")
		}
	}
	defer func() {
		for _, c := range conns {
			c.Close()
		}
	}()

	if len(ids) != 5 {
		t.Fatalf("expected 5 session ids, got %v", ids)
	}
	for i, id := range ids {
		want := i + 1
		if id != want {
			t.Errorf("session %d: got id %d, want %d (ids so far: %v)", i, id, want, ids)
		}
	}
}

// TestChatSetUserNameSemantics is spec.md §8 scenario 4.
func TestChatSetUserNameSemantics(t *testing.T) {
	room := NewChatRoom()
	room.Start()
	defer room.Stop()

	dial, closeServer := newTestChatServer(t, room, nil)
	defer closeServer()

	s0 := dial()
	defer s0.Close()
	sendFrame(t, s0, map[string]string{"Type": "SetUserName", "UserName": "Hatem", "Password": "A"})
	var r0 setUserNameResult
	readFrame(t, s0, &r0)
	if !r0.Success {
		t.Fatal("expected the first claim of an unclaimed name to succeed")
	}

	s1 := dial()
	defer s1.Close()
	sendFrame(t, s1, map[string]string{"Type": "SetUserName", "UserName": "Hatem", "Password": "B"})
	var r1 setUserNameResult
	readFrame(t, s1, &r1)
	if r1.Success {
		t.Fatal("expected a mismatched password on a claimed name to fail")
	}

	s2 := dial()
	defer s2.Close()
	sendFrame(t, s2, map[string]string{"Type": "SetUserName", "UserName": "Hatem", "Password": "A"})
	var r2 setUserNameResult
	readFrame(t, s2, &r2)
	if !r2.Success {
		t.Fatal("expected a matching password on a claimed name to succeed")
	}

	sendFrame(t, s0, map[string]string{"Type": "GetUserNames"})
	var names userNamesFrame
	readFrame(t, s0, &names)
	if len(names.UserNames) != 1 || names.UserNames[0] != "Hatem" {
		t.Fatalf("expected a deduplicated [\"Hatem\"], got %v", names.UserNames)
	}
}

// TestChatLeaveBroadcast is spec.md §8 scenario 5.
func TestChatLeaveBroadcast(t *testing.T) {
	room := NewChatRoom()
	room.Start()
	defer room.Stop()

	dial, closeServer := newTestChatServer(t, room, nil)
	defer closeServer()

	s0 := dial()
	defer s0.Close()
	sendFrame(t, s0, map[string]string{"Type": "SetUserName", "UserName": "Hatem", "Password": "A"})
	var join0 setUserNameResult
	readFrame(t, s0, &join0)

	s1 := dial()
	sendFrame(t, s1, map[string]string{"Type": "SetUserName", "UserName": "Maya", "Password": "B"})
	var join1 setUserNameResult
	readFrame(t, s1, &join1)

	s1.Close()

	var leave leaveFrame
	readFrame(t, s0, &leave)
	if leave.Type != "Leave" || leave.UserName != "Maya" {
		t.Fatalf("expected a Leave frame for Maya, got %+v", leave)
	}

	var names userNamesFrame
	readFrame(t, s0, &names)
	for _, n := range names.UserNames {
		if n == "Maya" {
			t.Fatalf("expected Maya removed from the refreshed user-name list, got %v", names.UserNames)
		}
	}
}

func TestChatPostChatBroadcastsToEverySession(t *testing.T) {
	room := NewChatRoom()
	room.Start()
	defer room.Stop()

	dial, closeServer := newTestChatServer(t, room, nil)
	defer closeServer()

	s0 := dial()
	defer s0.Close()
	sendFrame(t, s0, map[string]string{"Type": "SetUserName", "UserName": "Hatem", "Password": "A"})
	var su setUserNameResult
	readFrame(t, s0, &su)

	s1 := dial()
	defer s1.Close()
	sendFrame(t, s1, map[string]string{"Type": "SetUserName", "UserName": "Maya", "Password": "B"})
	var su1 setUserNameResult
	readFrame(t, s1, &su1)

	sendFrame(t, s0, map[string]string{"Type": "PostChat", "Chat": "hello"})

	var got0 postChatResult
	readFrame(t, s0, &got0)
	var got1 postChatResult
	readFrame(t, s1, &got1)

	if got0.Chat != "hello" || got0.Sender != "Hatem" {
		t.Fatalf("unexpected broadcast on sender's own socket: %+v", got0)
	}
	if got1.Chat != "hello" || got1.Sender != "Hatem" {
		t.Fatalf("unexpected broadcast on the other socket: %+v", got1)
	}
}
