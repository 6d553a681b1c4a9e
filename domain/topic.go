package domain

import (
	"strings"
	"time"
)

// TopicRole classifies what an MqttTopic is used for.
type TopicRole string

// Recognized topic roles.
const (
	RoleTelemetry TopicRole = "telemetry"
	RoleCommand   TopicRole = "command"
	RoleState     TopicRole = "state"
	RoleEvent     TopicRole = "event"
	RoleConfig    TopicRole = "config"
)

// Direction classifies whether a topic is published to, subscribed from,
// or both, from the device's perspective.
type Direction string

// Recognized directions.
const (
	DirectionPub    Direction = "pub"
	DirectionSub    Direction = "sub"
	DirectionPubSub Direction = "pubsub"
)

// MqttTopic is an MQTT topic filter bound to a single Device.
type MqttTopic struct {
	ID                string     `json:"id"`
	DeviceID          string     `json:"device_id"`
	Role              TopicRole  `json:"role"`
	Topic             string     `json:"topic"`
	Qos               byte       `json:"qos"`
	RetainHandling    byte       `json:"retain_handling"`
	RetainAsPublished bool       `json:"retain_as_published"`
	AutoFeedback      bool       `json:"auto_feedback"`
	Direction         Direction  `json:"direction"`
	Enabled           bool       `json:"enabled"`
	Metadata          RawMessage `json:"metadata,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// InsertParams returns the positional values for InsertSql.
func (t *MqttTopic) InsertParams() []interface{} {
	return []interface{}{
		t.ID, t.DeviceID, string(t.Role), t.Topic, t.Qos, t.RetainHandling,
		t.RetainAsPublished, t.AutoFeedback, string(t.Direction), t.Enabled, t.Metadata,
	}
}

// UpdateParams returns the positional values for UpdateSql.
func (t *MqttTopic) UpdateParams() []interface{} {
	return []interface{}{
		string(t.Role), t.Topic, t.Qos, t.RetainHandling, t.RetainAsPublished,
		t.AutoFeedback, string(t.Direction), t.Enabled, t.Metadata, t.ID,
	}
}

// ShouldSubscribe reports whether this topic should be reconciled as a
// live broker subscription: enabled, and direction sub or pubsub. Mirrors
// original_source's MqttDeviceConnector::ShouldSubscribe.
func (t *MqttTopic) ShouldSubscribe() bool {
	return t.Enabled && (t.Direction == DirectionSub || t.Direction == DirectionPubSub)
}

// MatchesFilter reports whether this topic's filter matches an inbound
// publish topic, using standard MQTT wildcard semantics: "+" matches
// exactly one non-empty level, a trailing "#" matches zero or more
// trailing levels, any other level must match literally.
func (t *MqttTopic) MatchesFilter(publishTopic string) bool {
	return TopicFilterMatches(t.Topic, publishTopic)
}

// TopicFilterMatches implements MQTT topic filter matching per spec.md
// §8 property 6, grounded conceptually on akzj-leaf's mqtt-broker topic
// tree (reimplemented here as a flat level-by-level matcher rather than
// its copy-on-write tree, since the Fan-Out Room only needs a predicate,
// not a shared subscription index).
func TopicFilterMatches(filter, topic string) bool {
	if filter == "" || topic == "" {
		return false
	}
	fLevels := strings.Split(filter, "/")
	tLevels := strings.Split(topic, "/")

	for i, fl := range fLevels {
		if fl == "#" {
			// '#' must be the last level in a filter and matches zero or
			// more remaining levels, including none.
			return i == len(fLevels)-1
		}
		if i >= len(tLevels) {
			return false
		}
		if fl == "+" {
			if tLevels[i] == "" {
				return false
			}
			continue
		}
		if fl != tLevels[i] {
			return false
		}
	}
	return len(fLevels) == len(tLevels)
}
