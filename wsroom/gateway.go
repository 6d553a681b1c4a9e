// MQTT-gateway specialization message handling for Room: JoinServer,
// Subscribe/UnSubscribe, and inbound Publish relay, grounded on
// original_source/Managers/src/MqttDeviceConnector.cpp's
// ShouldSubscribe/SyncDevice reconciliation pattern, generalized from
// "sync the topics a Device owns" to "sync the topics a WebSocket client
// asked for".
package wsroom

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/falcata-iot/edge/domain"
	"github.com/falcata-iot/edge/mqttclient"
)

// gatewaySubscribeTimeout bounds one ad hoc SUBSCRIBE issued on behalf of
// a WebSocket client, per spec.md §5 (30ms, same bound as a device-topic
// subscribe).
const gatewaySubscribeTimeout = 30 * time.Millisecond

type gatewayEnvelope struct {
	Type string `json:"Type"`
}

type joinServerResponse struct {
	Type          string   `json:"Type"`
	Reachable     bool     `json:"Reachable"`
	Subscriptions []string `json:"Subscriptions"`
}

type subscribeMsg struct {
	Topic string `json:"Topic"`
	Qos   byte   `json:"Qos"`
}

type subscribeResult struct {
	Type   string `json:"Type"`
	Topic  string `json:"Topic"`
	Status string `json:"Status"`
}

type publishFrame struct {
	Id      uint16 `json:"Id"`
	Type    string `json:"Type"`
	Topic   string `json:"Topic"`
	Payload string `json:"Payload"`
}

// ReceiveGatewayMessage dispatches one inbound MQTT-gateway-specialization
// frame.
func (r *Room) ReceiveGatewayMessage(sessionID int, raw []byte) error {
	var env gatewayEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return err
	}
	switch env.Type {
	case "JoinServer":
		return r.handleJoinServer(sessionID)
	case "Subscribe":
		return r.enqueueGatewayCommand(sessionID, raw, "subscribe")
	case "UnSubscribe":
		return r.enqueueGatewayCommand(sessionID, raw, "unsubscribe")
	default:
		return fmt.Errorf("wsroom: unknown gateway message type %q", env.Type)
	}
}

// handleJoinServer replies with the broker's current reachability and the
// union of every session's active subscriptions, the gateway analogue of
// handleJoinChatRoom's room snapshot.
func (r *Room) handleJoinServer(sessionID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}
	union := make(map[string]struct{})
	for _, sess := range r.sessions {
		for _, t := range sess.topics {
			union[t] = struct{}{}
		}
	}
	topics := make([]string, 0, len(union))
	for t := range union {
		topics = append(topics, t)
	}
	reachable := r.gatewaySession != nil && r.gatewaySession.Server().IsReachable()
	return r.writeLocked(s, joinServerResponse{Type: "JoinChatRoomResponse", Reachable: reachable, Subscriptions: topics})
}

// enqueueGatewayCommand hands a SUBSCRIBE/UNSUBSCRIBE request to the
// worker instead of issuing it inline: the broker round trip is a bounded
// wait that must not run while the room's own lock serializes every other
// session's traffic, per spec.md §4.I/§9.
func (r *Room) enqueueGatewayCommand(sessionID int, raw []byte, kind string) error {
	var msg subscribeMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sessionID]; !ok {
		return nil
	}
	r.pendingCommands = append(r.pendingCommands, endpointCommand{kind: kind, sessionID: sessionID, topic: msg.Topic, qos: msg.Qos})
	r.cond.Broadcast()
	return nil
}

// drainPendingCommandsLocked reconciles every queued SUBSCRIBE/UNSUBSCRIBE
// against the broker. The broker round trip runs with the lock released
// (mirrors drainClosedUsersLocked's unlock/relock dance); only updating
// session state and writing the result frames runs locked.
func (r *Room) drainPendingCommandsLocked() {
	cmds := r.pendingCommands
	r.pendingCommands = nil
	if len(cmds) == 0 {
		return
	}

	type outcome struct {
		cmd    endpointCommand
		status string
	}

	r.mu.Unlock()
	results := make([]outcome, 0, len(cmds))
	for _, cmd := range cmds {
		status := "unavailable"
		if r.gatewaySession != nil {
			switch cmd.kind {
			case "subscribe":
				if r.gatewaySession.SubscribeRaw(cmd.topic, cmd.qos, gatewaySubscribeTimeout) == mqttclient.Success {
					status = "ok"
				} else {
					status = "failed"
				}
			case "unsubscribe":
				r.gatewaySession.UnsubscribeRaw(cmd.topic)
				status = "ok"
			}
		}
		results = append(results, outcome{cmd: cmd, status: status})
	}
	r.mu.Lock()

	for _, res := range results {
		s, ok := r.sessions[res.cmd.sessionID]
		if !ok {
			continue
		}
		resultType := "SubscribeResult"
		if res.cmd.kind == "subscribe" {
			if res.status == "ok" {
				s.topics = append(s.topics, res.cmd.topic)
			}
		} else {
			resultType = "UnSubscribeResult"
			s.topics = removeString(s.topics, res.cmd.topic)
		}
		_ = r.writeLocked(s, subscribeResult{Type: resultType, Topic: res.cmd.topic, Status: res.status})
	}
}

// RelayPublish fans an inbound broker PUBLISH out to every session whose
// subscribed filters match topic, per domain.TopicFilterMatches. Wired as
// the broker.Session's onPublish callback via Manager.SetPublishHandler.
// packetID is the wire packet id of the inbound PUBLISH, echoed in the
// relayed frame's Id field per spec.md §4.I/§6.
func (r *Room) RelayPublish(packetID uint16, topic string, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sessions) == 0 {
		return
	}
	frame := publishFrame{Id: packetID, Type: "Publish", Topic: topic, Payload: string(payload)}
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	for _, s := range r.sessions {
		for _, filter := range s.topics {
			if domain.TopicFilterMatches(filter, topic) {
				_ = s.conn.WriteMessage(websocket.TextMessage, data)
				break
			}
		}
	}
}
