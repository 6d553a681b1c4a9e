// Package dispatcher implements the Command Dispatcher (spec.md §4.H): a
// durable outbox pump that translates pending command rows into MQTT
// publishes, tracks sent/acked/failed/retry state, and broadcasts state
// transitions to WebSocket subscribers. Grounded on
// original_source/Commands/src/CommandDispatcher.cpp.
package dispatcher

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"github.com/falcata-iot/edge/apperr"
	"github.com/falcata-iot/edge/core/csql"
	"github.com/falcata-iot/edge/core/logger"
	"github.com/falcata-iot/edge/devicemgr"
	"github.com/falcata-iot/edge/domain"
	"github.com/falcata-iot/edge/mqttclient"
	"github.com/falcata-iot/edge/repository"
)

// publishAwaitTimeout is the bounded wait for a command PUBLISH
// transaction to reach a terminal outcome, per spec.md §5 (200ms).
const publishAwaitTimeout = 200 * time.Millisecond

// defaultRetryDelaySeconds is used by ScheduleRetry call sites that don't derive
// a backoff from the attempt count.
const defaultRetryDelaySeconds = 30

// Broadcaster is the subset of wsroom.Room's API the dispatcher needs.
type Broadcaster interface {
	Broadcast(payload []byte)
}

// Dispatcher is the Command Dispatcher.
type Dispatcher struct {
	commands *repository.CommandRepository
	events   *repository.EventRepository // optional
	manager  *devicemgr.Manager
	ws       Broadcaster // optional
}

// NewDispatcher creates a Dispatcher. events and ws may be nil.
func NewDispatcher(commands *repository.CommandRepository, events *repository.EventRepository,
	manager *devicemgr.Manager, ws Broadcaster) *Dispatcher {
	return &Dispatcher{commands: commands, events: events, manager: manager, ws: ws}
}

// commandEventFrame is the wire shape pushed for command.sent/ack/failed,
// per spec.md §6.
type commandEventFrame struct {
	Type    string          `json:"type"`
	Command *domain.Command `json:"command"`
}

// DispatchPending implements spec.md §4.H's algorithm: fetch up to limit
// pending commands ordered by created_at, and for each, resolve
// device→topic→broker, publish, and track the transition.
func (d *Dispatcher) DispatchPending(ctx context.Context, limit int) error {
	pending, err := d.commands.FetchPending(ctx, limit)
	if err != nil {
		return err
	}
	for _, cmd := range pending {
		d.dispatchOne(ctx, cmd)
	}
	return nil
}

func (d *Dispatcher) dispatchOne(ctx context.Context, cmd *domain.Command) {
	reg := d.manager.Registry()

	dev, ok := reg.GetDevice(cmd.DeviceID)
	if !ok {
		d.fail(ctx, cmd, apperr.DeviceNotFound, "device_not_found")
		return
	}
	mqttDev, ok := dev.(*domain.MqttDevice)
	if !ok {
		d.fail(ctx, cmd, apperr.NotMqttDevice, "not_mqtt_device")
		return
	}

	var commandTopic *domain.MqttTopic
	for _, t := range reg.TopicsForDevice(mqttDev.DeviceID()) {
		if t.Role == domain.RoleCommand && t.Topic == cmd.CommandName && t.Direction == domain.DirectionPub {
			commandTopic = t
			break
		}
	}
	if commandTopic == nil {
		d.fail(ctx, cmd, apperr.NoCommandTopic, "no_command_topic")
		return
	}

	payload, err := json.Marshal(cmd.ToPayload())
	if err != nil {
		d.fail(ctx, cmd, apperr.Internal, "payload_encoding_failed")
		return
	}

	txn, ok := d.manager.PublishToBroker(mqttDev.DeviceServerID(), commandTopic.Topic, payload,
		commandTopic.RetainAsPublished, commandTopic.Qos, cmd.PacketID(), nil)
	if !ok {
		d.scheduleRetry(ctx, cmd, "broker_unreachable")
		return
	}

	if err := d.commands.MarkSent(ctx, cmd.ID); err != nil {
		logger.Default().WithError(err).WithField("command_id", cmd.ID).Warn("dispatcher: mark_sent failed")
		return
	}
	cmd.Status = domain.CommandSent
	d.broadcastCommand(ctx, "command.sent", cmd)
	d.emitEvent(ctx, domain.SeverityInfo, "command.sent", cmd)

	switch txn.Wait(publishAwaitTimeout) {
	case mqttclient.Success:
		if err := d.commands.MarkAcked(ctx, cmd.ID); err != nil {
			logger.Default().WithError(err).WithField("command_id", cmd.ID).Warn("dispatcher: mark_acked failed")
			return
		}
		cmd.Status = domain.CommandAcked
		d.broadcastCommand(ctx, "command.ack", cmd)
		d.emitEvent(ctx, domain.SeverityInfo, "command.acked", cmd)
	case mqttclient.ShunkedPacket:
		if err := d.commands.MarkFailed(ctx, cmd.ID, "publish_failed_shunkedPacket"); err != nil {
			logger.Default().WithError(err).WithField("command_id", cmd.ID).Warn("dispatcher: mark_failed failed")
			return
		}
		cmd.Status = domain.CommandFailed
		cmd.Error = "publish_failed_shunkedPacket"
		d.broadcastCommand(ctx, "command.failed", cmd)
		d.emitEvent(ctx, domain.SeverityError, "command.failed", cmd)
	default:
		// WaitingForResult: outcome unknown before the bound expired, left
		// in "sent" for the next sweep to reconsider via retry rules.
	}
}

func (d *Dispatcher) fail(ctx context.Context, cmd *domain.Command, kind apperr.Kind, errMsg string) {
	if err := d.commands.MarkFailed(ctx, cmd.ID, errMsg); err != nil {
		logger.Default().WithError(err).WithField("command_id", cmd.ID).Warn("dispatcher: mark_failed failed")
		return
	}
	cmd.Status = domain.CommandFailed
	cmd.Error = errMsg
	d.broadcastCommand(ctx, "command.failed", cmd)
	d.emitEvent(ctx, domain.SeverityError, "command.failed", cmd)
}

func (d *Dispatcher) scheduleRetry(ctx context.Context, cmd *domain.Command, errMsg string) {
	if err := d.commands.ScheduleRetry(ctx, cmd.ID, defaultRetryDelaySeconds, errMsg); err != nil {
		logger.Default().WithError(err).WithField("command_id", cmd.ID).Warn("dispatcher: schedule_retry failed")
	}
}

func (d *Dispatcher) broadcastCommand(ctx context.Context, typ string, cmd *domain.Command) {
	if d.ws == nil {
		return
	}
	payload, err := json.Marshal(commandEventFrame{Type: typ, Command: cmd})
	if err != nil {
		return
	}
	d.ws.Broadcast(payload)
}

func (d *Dispatcher) emitEvent(ctx context.Context, severity domain.EventSeverity, typ string, cmd *domain.Command) {
	if d.events == nil {
		return
	}
	ev := domain.NewEvent(domain.SourceIoT, typ, severity)
	ev.DeviceID = cmd.DeviceID
	ev.CorrelationID = cmd.ID
	if err := d.events.Emit(ctx, ev); err != nil {
		logger.Default().WithError(err).Warn("dispatcher: failed to emit event")
	}
}

// PromoteDueRetries requeues retry rows whose next_retry_at has elapsed
// back to pending, the separate sweep spec.md §4.H requires.
func (d *Dispatcher) PromoteDueRetries(ctx context.Context) (int64, error) {
	return d.commands.PromoteDueRetries(ctx, time.Now().UTC())
}

// Start runs one DispatchPending sweep immediately, then loops on every
// "iot_commands" notification and a periodic retry-promotion tick, until
// ctx is cancelled. Mirrors CommandDispatcher::Start/Worker.
func (d *Dispatcher) Start(ctx context.Context, db *csql.DB, limit int) error {
	if err := d.DispatchPending(ctx, limit); err != nil {
		logger.Default().WithError(err).Warn("dispatcher: initial dispatch failed")
	}

	retryTicker := time.NewTicker(time.Minute)
	defer retryTicker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-retryTicker.C:
				if n, err := d.PromoteDueRetries(ctx); err != nil {
					logger.Default().WithError(err).Warn("dispatcher: promote_due_retries failed")
				} else if n > 0 {
					if err := d.DispatchPending(ctx, limit); err != nil {
						logger.Default().WithError(err).Warn("dispatcher: dispatch after retry promotion failed")
					}
				}
			}
		}
	}()

	return db.Listen(ctx, "iot_commands", func() {
		if err := d.DispatchPending(ctx, limit); err != nil {
			logger.Default().WithError(err).Warn("dispatcher: dispatch failed")
		}
	})
}
