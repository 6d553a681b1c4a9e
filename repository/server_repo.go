package repository

import (
	"context"
	"fmt"

	"github.com/falcata-iot/edge/core/csql"
	"github.com/falcata-iot/edge/domain"
	"github.com/goccy/go-json"
	"github.com/lib/pq"
)

// mqttBrokerOptions is the protocol-specific shape stored in
// servers.metadata for protocol="mqtt" rows. server_credentials holds
// the username/password_enc pair separately, per spec.md §6's schema.
type mqttBrokerOptions struct {
	CleanSession bool   `json:"clean_session"`
	WillRetain   bool   `json:"will_retain"`
	WillTopic    string `json:"will_topic,omitempty"`
	WillPayload  string `json:"will_payload,omitempty"`
	Qos          byte   `json:"qos"`
	KeepAlive    uint16 `json:"keep_alive"`
}

type modbusServerOptions struct {
	UnitID byte `json:"unit_id"`
}

type opcUaServerOptions struct {
	EndpointURL string `json:"endpoint_url,omitempty"`
}

// ServerRepository is the Repository Layer accessor for the polymorphic
// Server entity, dispatching on the "protocol" discriminator column per
// spec.md §4.C / §9's tagged-variant note.
type ServerRepository struct {
	db *csql.DB
}

// NewServerRepository creates the servers/server_credentials tables if
// needed and returns a bound ServerRepository.
func NewServerRepository(db *csql.DB) *ServerRepository {
	mustExec(db, `CREATE TABLE IF NOT EXISTS `+db.Schema+`.servers (
		id varchar PRIMARY KEY,
		tenant_id varchar NOT NULL,
		name varchar NOT NULL,
		host varchar NOT NULL DEFAULT '',
		port int NOT NULL DEFAULT 0,
		protocol varchar NOT NULL,
		enabled bool NOT NULL DEFAULT true,
		use_tls bool NOT NULL DEFAULT false,
		tags varchar[] NOT NULL DEFAULT '{}',
		metadata json NOT NULL DEFAULT '{}',
		created_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz NOT NULL DEFAULT now()
	);
	CREATE TABLE IF NOT EXISTS ` + db.Schema + `.server_credentials (
		server_id varchar PRIMARY KEY REFERENCES ` + db.Schema + `.servers(id),
		username varchar NOT NULL DEFAULT '',
		password_enc varchar NOT NULL DEFAULT ''
	);`)
	return &ServerRepository{db: db}
}

const serverCols = `id, tenant_id, name, host, port, protocol, enabled, use_tls, tags, metadata, created_at, updated_at`

// FindAll returns every Server row, dispatched to its concrete subtype.
func (r *ServerRepository) FindAll(ctx context.Context) ([]domain.Server, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+serverCols+` FROM `+r.db.Schema+`.servers ORDER BY created_at ASC;`)
	if err != nil {
		return nil, fmt.Errorf("find_all servers: %w", err)
	}
	defer rows.Close()

	var out []domain.Server
	for rows.Next() {
		srv, err := r.scanServer(ctx, rows)
		if err != nil {
			return nil, err
		}
		out = append(out, srv)
	}
	return out, rows.Err()
}

// FindByID looks up a Server by id, dispatched to its concrete subtype.
func (r *ServerRepository) FindByID(ctx context.Context, id string) (domain.Server, bool, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+serverCols+` FROM `+r.db.Schema+`.servers WHERE id=$1;`, id)
	srv, err := r.scanServer(ctx, row)
	if err == csql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return srv, true, nil
}

// scanServer scans the common columns then dispatches on the protocol
// discriminator, the row-factory pattern original_source's
// ServerRepo.hpp implements via a Factory::FromRow.
func (r *ServerRepository) scanServer(ctx context.Context, s Scanner) (domain.Server, error) {
	base := domain.ServerBase{}
	var protocol string
	var tags pq.StringArray
	var metadata domain.RawMessage
	err := s.Scan(&base.ID, &base.TenantID, &base.Name, &base.Host, &base.Port, &protocol,
		&base.Enabled, &base.UseTLS, &tags, &metadata, &base.CreatedAt, &base.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan server: %w", err)
	}
	base.Tags = []string(tags)
	base.Metadata = metadata
	base.Protocol = domain.Protocol(protocol)

	switch base.Protocol {
	case domain.ProtocolMqtt:
		var opts mqttBrokerOptions
		if len(metadata) > 0 {
			_ = json.Unmarshal(metadata, &opts)
		}
		broker := &domain.MqttBroker{
			ServerBase:   base,
			CleanSession: opts.CleanSession,
			WillRetain:   opts.WillRetain,
			WillTopic:    opts.WillTopic,
			WillPayload:  opts.WillPayload,
			Qos:          opts.Qos,
			KeepAlive:    opts.KeepAlive,
		}
		username, password, err := r.loadCredentials(ctx, base.ID)
		if err != nil {
			return nil, err
		}
		broker.UserName = username
		broker.Password = password
		return broker, nil
	case domain.ProtocolModbusTCP:
		var opts modbusServerOptions
		if len(metadata) > 0 {
			_ = json.Unmarshal(metadata, &opts)
		}
		return &domain.ModbusServer{ServerBase: base, UnitID: opts.UnitID}, nil
	case domain.ProtocolOpcUA:
		var opts opcUaServerOptions
		if len(metadata) > 0 {
			_ = json.Unmarshal(metadata, &opts)
		}
		return &domain.OpcUaServer{ServerBase: base, EndpointURL: opts.EndpointURL}, nil
	default:
		return nil, fmt.Errorf("unknown server protocol discriminator %q", protocol)
	}
}

func (r *ServerRepository) loadCredentials(ctx context.Context, serverID string) (username, password string, err error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT username, password_enc FROM `+r.db.Schema+`.server_credentials WHERE server_id=$1;`, serverID)
	err = row.Scan(&username, &password)
	if err == csql.ErrNoRows {
		return "", "", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("load credentials: %w", err)
	}
	return username, password, nil
}

// Insert inserts a Server row (and, for MqttBroker, its credentials).
func (r *ServerRepository) Insert(ctx context.Context, srv domain.Server) (string, error) {
	metadata, err := serverMetadata(srv)
	if err != nil {
		return "", err
	}
	base := serverBaseOf(srv)

	var id string
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO `+r.db.Schema+`.servers(id, tenant_id, name, host, port, protocol, enabled, use_tls, tags, metadata)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id;`,
		base.ID, base.TenantID, base.Name, base.Host, base.Port, string(base.Protocol),
		base.Enabled, base.UseTLS, pq.StringArray(base.Tags), metadata)
	if err := row.Scan(&id); err != nil {
		return "", fmt.Errorf("insert server: %w", err)
	}

	if broker, ok := srv.(*domain.MqttBroker); ok && (broker.UserName != "" || broker.Password != "") {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO `+r.db.Schema+`.server_credentials(server_id, username, password_enc)
			 VALUES ($1,$2,$3)
			 ON CONFLICT (server_id) DO UPDATE SET username=$2, password_enc=$3;`,
			id, broker.UserName, broker.Password)
		if err != nil {
			return "", fmt.Errorf("insert server credentials: %w", err)
		}
	}
	return id, nil
}

func serverBaseOf(srv domain.Server) domain.ServerBase {
	switch v := srv.(type) {
	case *domain.MqttBroker:
		return v.ServerBase
	case *domain.ModbusServer:
		return v.ServerBase
	case *domain.OpcUaServer:
		return v.ServerBase
	default:
		return domain.ServerBase{}
	}
}

func serverMetadata(srv domain.Server) (domain.RawMessage, error) {
	switch v := srv.(type) {
	case *domain.MqttBroker:
		return json.Marshal(mqttBrokerOptions{
			CleanSession: v.CleanSession, WillRetain: v.WillRetain, WillTopic: v.WillTopic,
			WillPayload: v.WillPayload, Qos: v.Qos, KeepAlive: v.KeepAlive,
		})
	case *domain.ModbusServer:
		return json.Marshal(modbusServerOptions{UnitID: v.UnitID})
	case *domain.OpcUaServer:
		return json.Marshal(opcUaServerOptions{EndpointURL: v.EndpointURL})
	default:
		return json.Marshal(map[string]interface{}{})
	}
}
