package domain

import "testing"

// TestTopicFilterMatches is spec.md §8 property 6.
func TestTopicFilterMatches(t *testing.T) {
	cases := []struct {
		filter string
		topic  string
		want   bool
	}{
		{"sites/1/devices/2/telemetry", "sites/1/devices/2/telemetry", true},
		{"sites/1/devices/2/telemetry", "sites/1/devices/3/telemetry", false},
		{"sites/+/devices/2/telemetry", "sites/1/devices/2/telemetry", true},
		{"sites/+/devices/2/telemetry", "sites//devices/2/telemetry", false},
		{"sites/1/devices/#", "sites/1/devices/2/telemetry", true},
		{"sites/1/devices/#", "sites/1/devices", true},
		{"sites/1/devices/#", "sites/1/other/2", false},
		{"#", "sites/1/devices/2/telemetry", true},
		{"sites/1/#", "sites/1", true},
		{"+/+/+", "a/b/c", true},
		{"+/+/+", "a/b", false},
		{"sites/1/devices/2/telemetry", "sites/1/devices/2", false},
		{"", "sites/1", false},
		{"sites/1", "", false},
	}
	for _, c := range cases {
		got := TopicFilterMatches(c.filter, c.topic)
		if got != c.want {
			t.Errorf("TopicFilterMatches(%q, %q) = %v, want %v", c.filter, c.topic, got, c.want)
		}
	}
}

func TestTopicShouldSubscribe(t *testing.T) {
	cases := []struct {
		name    string
		topic   MqttTopic
		want    bool
	}{
		{"enabled sub", MqttTopic{Enabled: true, Direction: DirectionSub}, true},
		{"enabled pubsub", MqttTopic{Enabled: true, Direction: DirectionPubSub}, true},
		{"enabled pub only", MqttTopic{Enabled: true, Direction: DirectionPub}, false},
		{"disabled sub", MqttTopic{Enabled: false, Direction: DirectionSub}, false},
	}
	for _, c := range cases {
		if got := c.topic.ShouldSubscribe(); got != c.want {
			t.Errorf("%s: ShouldSubscribe() = %v, want %v", c.name, got, c.want)
		}
	}
}
