// Package broker implements the Broker Session Manager (spec.md §4.E),
// the Go analogue of original_source/Managers/src/MqttDeviceConnector.cpp:
// one Session per MqttBroker, reconciling the set of subscribed topics for
// every device attached to that broker.
package broker

import (
	"time"

	"github.com/falcata-iot/edge/core/logger"
	"github.com/falcata-iot/edge/domain"
	"github.com/falcata-iot/edge/mqttclient"
)

// defaultSubscribeTimeout is the bounded wait for a SUBSCRIBE/UNSUBSCRIBE
// transaction, per spec.md §5 (30ms for subscribes).
const defaultSubscribeTimeout = 30 * time.Millisecond

// Session is one connected MQTT client bound to a single MqttBroker,
// tracking the monotone set of topic ids it has reconciled a live
// subscription for.
type Session struct {
	client *mqttclient.Client
	server *domain.MqttBroker

	subscribedTopicIDs map[string]struct{}
	onPublish          func(packetID uint16, topic string, payload []byte)
	onDisconnect       func()
}

// NewSession creates a Session over an already-constructed client, not
// yet connected. onPublish receives every inbound PUBLISH delivered to a
// reconciled subscription, along with the wire packet id; the WebSocket
// gateway specialization wires this to relay Publish frames into wsroom
// (spec.md §4.I). onDisconnect is invoked by HandleConnectLost, the
// target a caller wires as the underlying client's ConnectLostHandler
// (necessarily via a forwarding closure created before the Session
// exists, since mqttclient.Config.ConnectLostHandler is baked in at
// client-construction time).
func NewSession(client *mqttclient.Client, server *domain.MqttBroker, onPublish func(packetID uint16, topic string, payload []byte), onDisconnect func()) *Session {
	if onPublish == nil {
		onPublish = func(uint16, string, []byte) {}
	}
	if onDisconnect == nil {
		onDisconnect = func() {}
	}
	return &Session{
		client:             client,
		server:             server,
		subscribedTopicIDs: make(map[string]struct{}),
		onPublish:          onPublish,
		onDisconnect:       onDisconnect,
	}
}

// Server returns the MqttBroker this session drives.
func (s *Session) Server() *domain.MqttBroker { return s.server }

// Connect issues CONNECT and waits up to timeout, flipping the broker's
// reachable flag on the outcome, per MqttBroker.start()'s completion
// delegate (spec.md §4.B).
func (s *Session) Connect(timeout time.Duration) mqttclient.Outcome {
	outcome := s.client.Connect().Wait(timeout)
	s.server.SetReachable(outcome == mqttclient.Success)
	return outcome
}

// Disconnect issues DISCONNECT and marks the broker unreachable.
func (s *Session) Disconnect(quiesceMs uint) {
	s.client.Disconnect(quiesceMs)
	s.server.SetReachable(false)
}

// HandleConnectLost reacts to an unsolicited transport drop (as opposed
// to one this Session itself requested via Disconnect): it flips the
// broker's reachable flag false and notifies onDisconnect, which the
// WebSocket gateway specialization wires to the corresponding gateway
// Room's MarkDisconnected (spec.md §4.I's failure semantics; GLOSSARY's
// "Reachable broker").
func (s *Session) HandleConnectLost(err error) {
	s.server.SetReachable(false)
	mqttclient.LogConnectLostHandler(s.server.ServerID())(err)
	s.onDisconnect()
}

// SyncDevice reconciles subscriptions for dev against its current topic
// set, grounded on MqttDeviceConnector::SyncDevice. Topics are walked in
// their given (iteration) order, per spec.md §4.E's ordering note.
func (s *Session) SyncDevice(dev *domain.MqttDevice, topics []*domain.MqttTopic) {
	if s.client == nil || !s.server.IsReachable() || !dev.DeviceEnabled() {
		return
	}
	for _, tp := range topics {
		if !tp.ShouldSubscribe() {
			continue
		}
		if _, already := s.subscribedTopicIDs[tp.ID]; already {
			continue
		}
		outcome := s.client.Subscribe(tp.Topic, tp.Qos, s.onPublish).Wait(defaultSubscribeTimeout)
		switch outcome {
		case mqttclient.Success:
			s.subscribedTopicIDs[tp.ID] = struct{}{}
		case mqttclient.ShunkedPacket:
			logger.Default().WithField("topic_id", tp.ID).WithField("topic", tp.Topic).
				Warn("broker: subscribe failed, will retry on next topology reload")
		default:
			logger.Default().WithField("topic_id", tp.ID).WithField("topic", tp.Topic).
				Warn("broker: subscribe result unknown before timeout")
		}
	}
}

// UnsyncDevice undoes SyncDevice's reconciliation for every topic id of
// dev currently tracked as subscribed.
func (s *Session) UnsyncDevice(topics []*domain.MqttTopic) {
	if s.client == nil || !s.server.IsReachable() {
		return
	}
	for _, tp := range topics {
		if _, tracked := s.subscribedTopicIDs[tp.ID]; !tracked {
			continue
		}
		delete(s.subscribedTopicIDs, tp.ID)
		s.client.Unsubscribe(tp.Topic)
	}
}

// Publish delegates to the underlying client's PUBLISH, the operation
// devicemgr.Manager.PublishToBroker resolves a Session down to.
func (s *Session) Publish(topic string, qos byte, retain bool, payload []byte, packetID uint16, properties map[string]string) *mqttclient.Transaction {
	return s.client.Publish(topic, qos, retain, payload, packetID, properties)
}

// SubscribeRaw issues a SUBSCRIBE not tied to any device-topic id, the
// path the WebSocket gateway specialization's user-driven Subscribe
// message uses (spec.md §4.I) — as opposed to SyncDevice's reconciliation
// against a Device's configured topic rows.
func (s *Session) SubscribeRaw(topic string, qos byte, timeout time.Duration) mqttclient.Outcome {
	if s.client == nil || !s.server.IsReachable() {
		return mqttclient.WaitingForResult
	}
	return s.client.Subscribe(topic, qos, s.onPublish).Wait(timeout)
}

// UnsubscribeRaw undoes SubscribeRaw. Unlike UnsyncDevice it does not
// consult subscribedTopicIDs, since ad hoc gateway subscriptions are
// never added to that set.
func (s *Session) UnsubscribeRaw(topic string) {
	if s.client == nil {
		return
	}
	s.client.Unsubscribe(topic)
}

// SubscribedTopicIDs returns a snapshot of the currently-reconciled topic
// id set, used by the WebSocket gateway specialization's JoinServer reply.
func (s *Session) SubscribedTopicIDs() []string {
	out := make([]string, 0, len(s.subscribedTopicIDs))
	for id := range s.subscribedTopicIDs {
		out = append(out, id)
	}
	return out
}
