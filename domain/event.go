package domain

import "time"

// EventSource classifies what subsystem raised an Event.
type EventSource string

// Recognized event sources.
const (
	SourceIoT    EventSource = "iot"
	SourceVision EventSource = "vision"
	SourceAI     EventSource = "ai"
	SourceSystem EventSource = "system"
	SourceUser   EventSource = "user"
)

// EventSeverity classifies how urgent an Event is.
type EventSeverity string

// Recognized severities.
const (
	SeverityInfo     EventSeverity = "info"
	SeverityWarning  EventSeverity = "warning"
	SeverityError    EventSeverity = "error"
	SeverityCritical EventSeverity = "critical"
)

// Event is an audit/telemetry record raised by a subsystem, per spec.md
// §3. SPEC_FULL.md's SUPPLEMENTED FEATURES §2 wires the Broker Session
// Manager and Command Dispatcher to actually emit these.
type Event struct {
	ID            string        `json:"id"`
	Ts            time.Time     `json:"ts"`
	Source        EventSource   `json:"source"`
	Type          string        `json:"type"`
	Severity      EventSeverity `json:"severity"`
	SiteID        string        `json:"site_id,omitempty"`
	ZoneID        string        `json:"zone_id,omitempty"`
	DeviceID      string        `json:"device_id,omitempty"`
	CorrelationID string        `json:"correlation_id,omitempty"`
	Payload       RawMessage    `json:"payload,omitempty"`
}

// InsertParams returns the positional values for InsertSql.
func (e *Event) InsertParams() []interface{} {
	return []interface{}{
		e.ID, e.Ts, string(e.Source), e.Type, string(e.Severity),
		e.SiteID, e.ZoneID, e.DeviceID, e.CorrelationID, e.Payload,
	}
}

// NewEvent constructs an Event with a fresh id and the current time,
// the shape the Broker Session Manager and Command Dispatcher use when
// emitting state-transition events.
func NewEvent(source EventSource, typ string, severity EventSeverity) *Event {
	return &Event{
		ID:       NewID(),
		Ts:       time.Now().UTC(),
		Source:   source,
		Type:     typ,
		Severity: severity,
	}
}
