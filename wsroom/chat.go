// Chat-specialization message handling for Room, grounded on
// original_source/ChatRoomPlugin/src/ChatRoomPlugin.cpp's
// SetUserName/GetUserNames handling, with PostChat/JoinChatRoom/Leave
// added per spec.md §4.I's message table (not present in the retrieved
// source fragment, so designed symmetrically with Leave: a join
// broadcasts "Join" + a refreshed "UserNames" list, mirroring how a
// departure broadcasts "Leave" + "UserNames").
package wsroom

import (
	"fmt"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

type chatEnvelope struct {
	Type string `json:"Type"`
}

type setUserNameMsg struct {
	UserName string `json:"UserName"`
	Password string `json:"Password"`
}

type setUserNameResult struct {
	Type    string `json:"Type"`
	Success bool   `json:"Success"`
}

type userNamesFrame struct {
	Type      string   `json:"Type"`
	UserNames []string `json:"UserNames"`
}

type postChatMsg struct {
	Chat string `json:"Chat"`
}

type chatEntry struct {
	Time   time.Time `json:"Time"`
	Sender string    `json:"Sender"`
	Chat   string    `json:"Chat"`
}

type postChatResult struct {
	Type   string    `json:"Type"`
	Time   time.Time `json:"Time"`
	Sender string    `json:"Sender"`
	Chat   string    `json:"Chat"`
}

type joinChatRoomMsg struct {
	UserName string `json:"UserName"`
	Password string `json:"Password"`
}

type joinChatRoomResponse struct {
	Type      string      `json:"Type"`
	ChatLog   []chatEntry `json:"ChatLog"`
	UserNames []string    `json:"UserNames"`
}

type joinFrame struct {
	Type     string `json:"Type"`
	UserName string `json:"UserName"`
}

type leaveFrame struct {
	Type     string `json:"Type"`
	UserName string `json:"UserName"`
}

// ReceiveChatMessage dispatches one inbound chat-specialization frame.
// Direct replies (SetUserNameResult, UserNames, PostChatResult,
// JoinChatRoomResponse) are written inline, under the room lock, exactly
// as ChatRoomPlugin::ReceiveMessage does; only the deferred join
// broadcast is handed off to the worker.
func (r *Room) ReceiveChatMessage(sessionID int, raw []byte) error {
	var env chatEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return err
	}
	switch env.Type {
	case "SetUserName":
		return r.handleSetUserName(sessionID, raw)
	case "GetUserNames":
		return r.handleGetUserNames(sessionID)
	case "PostChat":
		return r.handlePostChat(sessionID, raw)
	case "JoinChatRoom":
		return r.handleJoinChatRoom(sessionID, raw)
	default:
		return fmt.Errorf("wsroom: unknown chat message type %q", env.Type)
	}
}

// handleSetUserName accepts the name if it is unclaimed, or if the
// supplied password matches the password on file for it — a returning
// user re-attaching under the same name, per spec.md §4.I.
func (r *Room) handleSetUserName(sessionID int, raw []byte) error {
	var msg setUserNameMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}
	existing, taken := r.accounts[msg.UserName]
	success := !taken || existing == msg.Password
	if success {
		if !taken {
			r.accounts[msg.UserName] = msg.Password
		}
		s.userName = msg.UserName
	}
	return r.writeLocked(s, setUserNameResult{Type: "SetUserNameResult", Success: success})
}

func (r *Room) handleGetUserNames(sessionID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}
	return r.writeLocked(s, userNamesFrame{Type: "UserNames", UserNames: r.sortedUserNamesLocked()})
}

func (r *Room) handlePostChat(sessionID int, raw []byte) error {
	var msg postChatMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}
	entry := chatEntry{Time: time.Now().UTC(), Sender: s.userName, Chat: msg.Chat}
	r.chatLog = append(r.chatLog, entry)
	return r.broadcastValueLocked(postChatResult{Type: "PostChatResult", Time: entry.Time, Sender: entry.Sender, Chat: entry.Chat})
}

// handleJoinChatRoom replies with a snapshot of the room (chat log and
// current user names), then wakes the worker to broadcast the arrival to
// everyone else, per spec.md §4.I.
func (r *Room) handleJoinChatRoom(sessionID int, raw []byte) error {
	var msg joinChatRoomMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}
	if msg.UserName != "" {
		existing, taken := r.accounts[msg.UserName]
		if !taken || existing == msg.Password {
			if !taken {
				r.accounts[msg.UserName] = msg.Password
			}
			s.userName = msg.UserName
		}
	}

	resp := joinChatRoomResponse{
		Type:      "JoinChatRoomResponse",
		ChatLog:   append([]chatEntry(nil), r.chatLog...),
		UserNames: r.sortedUserNamesLocked(),
	}
	err := r.writeLocked(s, resp)

	if s.userName != "" {
		r.joinedUserNames = append(r.joinedUserNames, s.userName)
		r.userJoinRoom = true
		r.cond.Broadcast()
	}
	return err
}

// broadcastJoinLocked drains the pending join names and fans out a Join
// frame per name followed by one refreshed UserNames list, mirroring the
// symmetric handling in drainClosedUsersLocked.
func (r *Room) broadcastJoinLocked() {
	names := r.joinedUserNames
	r.joinedUserNames = nil
	r.userJoinRoom = false
	if len(names) == 0 {
		return
	}
	for _, name := range names {
		_ = r.broadcastValueLocked(joinFrame{Type: "Join", UserName: name})
	}
	_ = r.broadcastValueLocked(userNamesFrame{Type: "UserNames", UserNames: r.sortedUserNamesLocked()})
}

func (r *Room) sortedUserNamesLocked() []string {
	set := make(map[string]struct{})
	for _, s := range r.sessions {
		if s.userName != "" {
			set[s.userName] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (r *Room) writeLocked(s *session, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

func (r *Room) broadcastValueLocked(v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	for _, s := range r.sessions {
		_ = s.conn.WriteMessage(websocket.TextMessage, payload)
	}
	return nil
}
