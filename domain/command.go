package domain

import (
	"hash/fnv"
	"time"
)

// CommandStatus is a Command's lifecycle state.
type CommandStatus string

// Recognized command statuses. Transitions are monotonic except for the
// explicit retry→pending requeue; see spec.md §3's invariant and §8
// property 7.
const (
	CommandPending   CommandStatus = "pending"
	CommandSent      CommandStatus = "sent"
	CommandAcked     CommandStatus = "acked"
	CommandFailed    CommandStatus = "failed"
	CommandRetry     CommandStatus = "retry"
	CommandCancelled CommandStatus = "cancelled"
)

// Command is an outbound instruction queued for a Device, dispatched by
// the Command Dispatcher with at-least-once semantics.
type Command struct {
	ID          string        `json:"id"`
	DeviceID    string        `json:"device_id"`
	CommandName string        `json:"command"`
	Params      RawMessage    `json:"params,omitempty"`
	Status      CommandStatus `json:"status"`
	Attempts    int           `json:"attempts"`
	NextRetryAt *time.Time    `json:"next_retry_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	SentAt      *time.Time    `json:"sent_at,omitempty"`
	AckAt       *time.Time    `json:"ack_at,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// InsertParams returns the positional values for InsertSql.
func (c *Command) InsertParams() []interface{} {
	return []interface{}{c.ID, c.DeviceID, c.CommandName, c.Params, string(c.Status)}
}

// CommandPayload is the wire body published to the device's command topic, per
// spec.md §4.H: {"cmd_id","command","params"}.
type CommandPayload struct {
	CmdID   string     `json:"cmd_id"`
	Command string     `json:"command"`
	Params  RawMessage `json:"params,omitempty"`
}

// ToPayload builds the MQTT publish payload for this command.
func (c *Command) ToPayload() CommandPayload {
	return CommandPayload{CmdID: c.ID, Command: c.CommandName, Params: c.Params}
}

// PacketID derives the packet id the Command Dispatcher passes to
// publish() as `uint16(cmd.id)` (spec.md §4.H step 2). Command ids here
// are UUID strings rather than the original's numeric autoincrement, so
// the id is hashed down to a uint16 instead of cast directly; the same
// command always derives the same packet id.
func (c *Command) PacketID() uint16 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(c.ID))
	return uint16(h.Sum32())
}
