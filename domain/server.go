package domain

import (
	"fmt"
	"sync"
	"time"
)

// Protocol discriminates the concrete Server/IoTDevice subtype, per
// spec.md §9's note to model the source's runtime downcasts as a tagged
// variant dispatched on a discriminator column instead.
type Protocol string

// Supported server/device protocols.
const (
	ProtocolMqtt      Protocol = "mqtt"
	ProtocolModbusTCP Protocol = "modbus-tcp"
	ProtocolOpcUA     Protocol = "opcua"
)

// Server is the common interface implemented by every concrete server
// subtype. The core only ships a full implementation for MqttBroker;
// ModbusServer and OpcUaServer are recognized discriminator values with
// minimal fields, present so the repository's row factory and JSON codec
// have a complete tagged variant to dispatch on.
type Server interface {
	ServerID() string
	ServerProtocol() Protocol
	ServerName() string
	ServerEnabled() bool
	ServerMetadata() RawMessage
}

// ServerBase holds the fields common to every Server subtype.
type ServerBase struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"tenant_id"`
	Name      string     `json:"name"`
	Host      string     `json:"host"`
	Port      int        `json:"port"`
	Protocol  Protocol   `json:"protocol"`
	Enabled   bool       `json:"enabled"`
	UseTLS    bool       `json:"use_tls"`
	Tags      []string   `json:"tags,omitempty"`
	Metadata  RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ServerID implements Server.
func (b *ServerBase) ServerID() string { return b.ID }

// ServerProtocol implements Server.
func (b *ServerBase) ServerProtocol() Protocol { return b.Protocol }

// ServerName implements Server.
func (b *ServerBase) ServerName() string { return b.Name }

// ServerEnabled implements Server.
func (b *ServerBase) ServerEnabled() bool { return b.Enabled }

// ServerMetadata implements Server. The Topology Updater reads a
// "site_id" key out of this to resolve a server's owning Site, per
// spec.md §4.G step 2.
func (b *ServerBase) ServerMetadata() RawMessage { return b.Metadata }

// MqttBroker is the only Server subtype the core drives a live connection
// to. reachable is transient process state, never persisted, flipped by
// the Broker Session Manager's CONNECT/DISCONNECT transaction outcome.
type MqttBroker struct {
	ServerBase

	UserName     string `json:"user_name,omitempty"`
	Password     string `json:"-"`
	CleanSession bool   `json:"clean_session"`
	WillRetain   bool   `json:"will_retain"`
	WillTopic    string `json:"will_topic,omitempty"`
	WillPayload  string `json:"will_payload,omitempty"`
	Qos          byte   `json:"qos"`
	KeepAlive    uint16 `json:"keep_alive"`

	mu        sync.RWMutex
	reachable bool
}

// IsReachable reports whether the broker's last CONNECT transaction
// completed with success and no disconnect has been observed since.
func (b *MqttBroker) IsReachable() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.reachable
}

// SetReachable updates the transient reachability flag. Called by the
// Broker Session Manager's CONNECT/DISCONNECT transaction completion
// delegates; never persisted.
func (b *MqttBroker) SetReachable(reachable bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reachable = reachable
}

// ModbusServer is a recognized discriminator value outside the core's
// driven protocols; present for the tagged-variant dispatch, not wired to
// a live connection by this implementation (spec.md §1 scopes the live
// MQTT path only).
type ModbusServer struct {
	ServerBase
	UnitID byte `json:"unit_id"`
}

// OpcUaServer is a recognized discriminator value, same rationale as
// ModbusServer.
type OpcUaServer struct {
	ServerBase
	EndpointURL string `json:"endpoint_url,omitempty"`
}

// ServerID/ServerProtocol/ServerName/ServerEnabled are promoted from the
// embedded ServerBase for ModbusServer and OpcUaServer automatically.

// NewServerForDiscriminator constructs the zero-value concrete Server for
// a given protocol discriminator, mirroring the repository's row-factory
// dispatch described in spec.md §4.C. Unknown discriminators fail with a
// clear error rather than silently defaulting.
func NewServerForDiscriminator(protocol Protocol) (Server, error) {
	switch protocol {
	case ProtocolMqtt:
		return &MqttBroker{ServerBase: ServerBase{Protocol: ProtocolMqtt}}, nil
	case ProtocolModbusTCP:
		return &ModbusServer{ServerBase: ServerBase{Protocol: ProtocolModbusTCP}}, nil
	case ProtocolOpcUA:
		return &OpcUaServer{ServerBase: ServerBase{Protocol: ProtocolOpcUA}}, nil
	default:
		return nil, fmt.Errorf("unknown server protocol discriminator %q", protocol)
	}
}
