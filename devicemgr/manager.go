package devicemgr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/falcata-iot/edge/broker"
	"github.com/falcata-iot/edge/core/logger"
	"github.com/falcata-iot/edge/domain"
	"github.com/falcata-iot/edge/mqttclient"
	"github.com/falcata-iot/edge/repository"
)

// connectTimeout is the bounded wait for a broker CONNECT transaction,
// per spec.md §5 (100ms for CONNECT).
const connectTimeout = 100 * time.Millisecond

// Manager is the Device Manager (spec.md §4.F): it orchestrates the
// Repository Layer, the Device Registry, and one Broker Session Manager
// per mqtt-protocol Server, grounded on
// original_source/Managers/src/DeviceManager.cpp.
type Manager struct {
	sites   *repository.SiteRepository
	zones   *repository.ZoneRepository
	servers *repository.ServerRepository
	devices *repository.DeviceRepository
	topics  *repository.TopicRepository
	events  *repository.EventRepository // optional; nil-safe, SUPPLEMENTED FEATURES §2

	registry *Registry

	// newClient builds an unconnected mqttclient.Client for a broker row,
	// given the ConnectLostHandler to install; overridable in tests.
	newClient func(*domain.MqttBroker, func(error)) *mqttclient.Client
	// onPublish is wired to the WebSocket gateway specialization so
	// inbound PUBLISH frames reach wsroom (spec.md §4.I); optional.
	onPublish func(packetID uint16, topic string, payload []byte)
	// onDisconnect is wired to the WebSocket gateway specialization so an
	// unsolicited MQTT disconnect flips the corresponding gateway Room's
	// initial_connect_pending flag (spec.md §4.I); optional.
	onDisconnect func(serverID string)

	mu       sync.Mutex
	sessions map[string]*broker.Session // server_id -> session
}

// NewManager creates a Manager over the given repositories. events may be
// nil if event emission is not wired.
func NewManager(sites *repository.SiteRepository, zones *repository.ZoneRepository,
	servers *repository.ServerRepository, devices *repository.DeviceRepository,
	topics *repository.TopicRepository, events *repository.EventRepository) *Manager {
	return &Manager{
		sites: sites, zones: zones, servers: servers, devices: devices, topics: topics,
		events:    events,
		registry:  NewRegistry(),
		newClient: defaultClientFactory,
		sessions:  make(map[string]*broker.Session),
	}
}

// Registry returns the Device Registry this Manager maintains.
func (m *Manager) Registry() *Registry { return m.registry }

// SetClientFactory overrides how a *mqttclient.Client is built for a
// broker row; used by tests to avoid real network dials.
func (m *Manager) SetClientFactory(f func(*domain.MqttBroker, func(error)) *mqttclient.Client) {
	m.newClient = f
}

// SetPublishHandler installs the inbound PUBLISH relay every newly-built
// broker Session is constructed with.
func (m *Manager) SetPublishHandler(fn func(packetID uint16, topic string, payload []byte)) {
	m.onPublish = fn
}

// SetDisconnectHandler installs the callback invoked with a server id
// whenever that server's broker Session reports an unsolicited
// disconnect (broker.Session.HandleConnectLost), for every newly-built
// broker Session. Must be called before ReloadAll for the first
// generation of sessions to pick it up.
func (m *Manager) SetDisconnectHandler(fn func(serverID string)) {
	m.onDisconnect = fn
}

// ReloadAll reads sites, zones, servers, devices, and topics from the
// repositories, then clears the Registry and the broker session map and
// installs what it read, grouping topics by device id and installing them on both the Registry
// entry and the (narrowed) MqttDevice instance; finally it attaches a
// client and CONNECTs every mqtt-protocol server. Per spec.md §7, this is
// best-effort: infrastructure errors are logged and skipped, not
// propagated, except for the repository reads themselves which abort the
// whole reload (there is nothing useful to reconcile against a half-read
// graph).
func (m *Manager) ReloadAll(ctx context.Context) error {
	sites, err := m.sites.FindAll(ctx)
	if err != nil {
		return fmt.Errorf("reload_all: load sites: %w", err)
	}
	zones, err := m.zones.FindAll(ctx)
	if err != nil {
		return fmt.Errorf("reload_all: load zones: %w", err)
	}
	servers, err := m.servers.FindAll(ctx)
	if err != nil {
		return fmt.Errorf("reload_all: load servers: %w", err)
	}
	devices, err := m.devices.FindAll(ctx)
	if err != nil {
		return fmt.Errorf("reload_all: load devices: %w", err)
	}
	topics, err := m.topics.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("reload_all: load topics: %w", err)
	}

	m.registry.Clear()
	m.registry.SetSites(sites)
	m.registry.SetZones(zones)
	m.registry.SetServers(servers)
	m.registry.SetDevices(devices)

	byDevice := make(map[string][]*domain.MqttTopic)
	for _, t := range topics {
		byDevice[t.DeviceID] = append(byDevice[t.DeviceID], t)
	}
	for deviceID, ts := range byDevice {
		m.registry.SetTopicsForDevice(deviceID, ts)
		if dev, ok := m.registry.GetDevice(deviceID); ok {
			if md, ok := dev.(*domain.MqttDevice); ok {
				ids := make([]string, 0, len(ts))
				for _, t := range ts {
					ids = append(ids, t.ID)
				}
				md.SetTopicIDs(ids)
			}
		}
	}

	m.buildBrokerSessions(ctx)
	return nil
}

// buildBrokerSessions drops the previous session map and, for every
// enabled mqtt-protocol server now in the Registry, attaches a client and
// issues CONNECT, recording the session only on success — mirrors
// DeviceManager::BuildMqttConnectors.
func (m *Manager) buildBrokerSessions(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = make(map[string]*broker.Session)

	for _, srv := range m.registry.AllServers() {
		mb, ok := srv.(*domain.MqttBroker)
		if !ok || !mb.ServerEnabled() {
			continue
		}
		var sess *broker.Session
		onLost := func(err error) {
			if sess != nil {
				sess.HandleConnectLost(err)
			}
		}
		client := m.newClient(mb, onLost)
		sess = broker.NewSession(client, mb, m.onPublish, func() { m.handleBrokerUnreachable(mb.ServerID()) })
		outcome := sess.Connect(connectTimeout)
		switch outcome {
		case mqttclient.Success:
			m.sessions[mb.ServerID()] = sess
			m.emitEvent(ctx, domain.SeverityInfo, "broker.reachable", mb.ServerID())
		case mqttclient.ShunkedPacket:
			logger.Default().WithField("server_id", mb.ServerID()).Warn("device manager: broker connect failed")
			m.emitEvent(ctx, domain.SeverityWarning, "broker.unreachable", mb.ServerID())
		default:
			logger.Default().WithField("server_id", mb.ServerID()).Warn("device manager: broker connect result unknown before timeout")
		}
	}
}

// handleBrokerUnreachable is the onDisconnect hook every broker Session is
// built with: it emits the SUPPLEMENTED FEATURES §2 broker.unreachable
// Event and, if wired, notifies the WebSocket gateway specialization so
// its Room can flip initial_connect_pending. Runs on whatever goroutine
// the underlying MQTT client's ConnectLostHandler fires from, well after
// ReloadAll's caller-supplied context could have been cancelled, so a
// fresh background context is used for the Event write.
func (m *Manager) handleBrokerUnreachable(serverID string) {
	m.emitEvent(context.Background(), domain.SeverityWarning, "broker.unreachable", serverID)
	if m.onDisconnect != nil {
		m.onDisconnect(serverID)
	}
}

// SyncAllMqttDevices looks up the broker session for every enabled
// MqttDevice by its server id and reconciles subscriptions, mirroring
// DeviceManager::SyncAllMqttDevices.
func (m *Manager) SyncAllMqttDevices() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, dev := range m.registry.AllMqttDevices() {
		if !dev.DeviceEnabled() {
			continue
		}
		sess, ok := m.sessions[dev.DeviceServerID()]
		if !ok {
			continue
		}
		sess.SyncDevice(dev, m.registry.TopicsForDevice(dev.DeviceID()))
	}
}

// PublishToBroker resolves serverID to an MqttBroker's Session and issues
// PUBLISH, returning ok=false if the server does not resolve to a
// reachable MqttBroker session. This is the corrected form of
// DeviceManager::PublishToBroker — the source's
// `if (!impl_->client || broker->IsReachable()) return false;` bails out
// when the broker IS reachable; the correct predicate publishes only
// when a client exists AND the broker is reachable (spec.md §4.F, §9).
func (m *Manager) PublishToBroker(serverID, topic string, payload []byte, retain bool, qos byte,
	packetID uint16, properties map[string]string) (*mqttclient.Transaction, bool) {
	m.mu.Lock()
	sess, ok := m.sessions[serverID]
	m.mu.Unlock()
	if !ok || sess.Server() == nil || !sess.Server().IsReachable() {
		return nil, false
	}
	return sess.Publish(topic, qos, retain, payload, packetID, properties), true
}

// Session returns the live Broker Session for serverID, if one was
// established by the last ReloadAll. The WebSocket gateway specialization
// binds a wsroom.Room to the Session this returns (spec.md §4.I).
func (m *Manager) Session(serverID string) (*broker.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[serverID]
	return sess, ok
}

func (m *Manager) emitEvent(ctx context.Context, severity domain.EventSeverity, typ, serverID string) {
	if m.events == nil {
		return
	}
	ev := domain.NewEvent(domain.SourceIoT, typ, severity)
	ev.CorrelationID = serverID
	if err := m.events.Emit(ctx, ev); err != nil {
		logger.Default().WithError(err).Warn("device manager: failed to emit event")
	}
}

// defaultClientFactory builds the real paho-backed client, wiring
// onLost as the ConnectLostHandler; onLost is a forwarding closure to
// the not-yet-constructed Session's HandleConnectLost (see
// buildBrokerSessions).
func defaultClientFactory(srv *domain.MqttBroker, onLost func(error)) *mqttclient.Client {
	scheme := "tcp"
	if srv.UseTLS {
		scheme = "ssl"
	}
	cfg := mqttclient.Config{
		BrokerURL:          fmt.Sprintf("%s://%s:%d", scheme, srv.Host, srv.Port),
		ClientID:           "edge-" + srv.ID,
		UserName:           srv.UserName,
		Password:           srv.Password,
		CleanSession:       srv.CleanSession,
		KeepAlive:          time.Duration(srv.KeepAlive) * time.Second,
		WillTopic:          srv.WillTopic,
		WillPayload:        srv.WillPayload,
		WillQos:            srv.Qos,
		WillRetain:         srv.WillRetain,
		AutoReconnect:      true,
		ConnectLostHandler: onLost,
	}
	return mqttclient.New(cfg)
}
