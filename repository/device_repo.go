package repository

import (
	"context"
	"fmt"

	"github.com/falcata-iot/edge/core/csql"
	"github.com/falcata-iot/edge/core/pointers"
	"github.com/falcata-iot/edge/domain"
	"github.com/lib/pq"
)

// DeviceRepository is the Repository Layer accessor for the polymorphic
// IoTDevice entity, dispatching on the "protocol" discriminator column.
type DeviceRepository struct {
	db *csql.DB
}

// NewDeviceRepository creates the devices table if needed and returns a
// bound DeviceRepository.
func NewDeviceRepository(db *csql.DB) *DeviceRepository {
	mustExec(db, `CREATE TABLE IF NOT EXISTS `+db.Schema+`.devices (
		id varchar PRIMARY KEY,
		server_id varchar,
		site_id varchar NOT NULL,
		zone_id varchar NOT NULL,
		type_id varchar NOT NULL DEFAULT '',
		name varchar NOT NULL,
		kind varchar NOT NULL DEFAULT '',
		protocol varchar NOT NULL,
		enabled bool NOT NULL DEFAULT true,
		external_id varchar NOT NULL DEFAULT '',
		last_seen_at timestamptz,
		tags varchar[] NOT NULL DEFAULT '{}',
		metadata json NOT NULL DEFAULT '{}',
		created_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz NOT NULL DEFAULT now()
	);`)
	return &DeviceRepository{db: db}
}

const deviceCols = `id, server_id, site_id, zone_id, type_id, name, kind, protocol, enabled,
	external_id, last_seen_at, tags, metadata, created_at, updated_at`

// FindAll returns every device row, dispatched to its concrete subtype.
func (r *DeviceRepository) FindAll(ctx context.Context) ([]domain.IoTDevice, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+deviceCols+` FROM `+r.db.Schema+`.devices ORDER BY created_at ASC;`)
	if err != nil {
		return nil, fmt.Errorf("find_all devices: %w", err)
	}
	defer rows.Close()

	var out []domain.IoTDevice
	for rows.Next() {
		dev, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, dev)
	}
	return out, rows.Err()
}

// FindByID looks up a device by id.
func (r *DeviceRepository) FindByID(ctx context.Context, id string) (domain.IoTDevice, bool, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+deviceCols+` FROM `+r.db.Schema+`.devices WHERE id=$1;`, id)
	dev, err := scanDevice(row)
	if err == csql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return dev, true, nil
}

// Insert inserts a device row.
func (r *DeviceRepository) Insert(ctx context.Context, d *domain.DeviceBase) (string, error) {
	var id string
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO `+r.db.Schema+`.devices(
			id, server_id, site_id, zone_id, type_id, name, kind, protocol, enabled, external_id, tags, metadata)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING id;`,
		d.ID, nullable(d.ServerID), d.SiteID, d.ZoneID, d.TypeID, d.Name, d.Kind, string(d.Protocol),
		d.Enabled, d.ExternalID, pq.StringArray(d.Tags), d.Metadata)
	if err := row.Scan(&id); err != nil {
		return "", fmt.Errorf("insert device: %w", err)
	}
	return id, nil
}

func scanDevice(s Scanner) (domain.IoTDevice, error) {
	base := domain.DeviceBase{}
	var protocol string
	var serverID *string
	var tags pq.StringArray
	err := s.Scan(&base.ID, &serverID, &base.SiteID, &base.ZoneID, &base.TypeID, &base.Name,
		&base.Kind, &protocol, &base.Enabled, &base.ExternalID, &base.LastSeenAt, &tags,
		&base.Metadata, &base.CreatedAt, &base.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan device: %w", err)
	}
	base.ServerID = pointers.SafeString(serverID)
	base.Tags = []string(tags)
	base.Protocol = domain.Protocol(protocol)

	switch base.Protocol {
	case domain.ProtocolMqtt:
		return &domain.MqttDevice{DeviceBase: base}, nil
	default:
		b := base
		return &b, nil
	}
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
