package domain

import "time"

// Site is a physical or logical location owning a set of Zones.
type Site struct {
	ID          string      `json:"id"`
	TenantID    string      `json:"tenant_id"`
	Name        string      `json:"name"`
	Kind        string      `json:"kind"`
	Country     string      `json:"country"`
	Timezone    string      `json:"timezone"`
	Description string      `json:"description"`
	Tags        []string    `json:"tags,omitempty"`
	Metadata    RawMessage  `json:"metadata,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`

	// ZoneIDs is derived: the set of Zones currently owned by this Site,
	// populated by the Device Registry/Topology Updater, never persisted.
	ZoneIDs []string `json:"zone_ids,omitempty"`
}

// InsertParams returns the positional values for InsertSql.
func (s *Site) InsertParams() []interface{} {
	return []interface{}{s.ID, s.TenantID, s.Name, s.Kind, s.Country, s.Timezone, s.Description, pqStringArray(s.Tags), s.Metadata}
}

// UpdateParams returns the positional values for UpdateSql.
func (s *Site) UpdateParams() []interface{} {
	return []interface{}{s.Name, s.Kind, s.Country, s.Timezone, s.Description, pqStringArray(s.Tags), s.Metadata, s.ID}
}

// Zone is a sub-area of a Site owning a set of Devices.
type Zone struct {
	ID          string     `json:"id"`
	SiteID      string     `json:"site_id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Kind        string     `json:"kind"`
	GeoJSON     RawMessage `json:"geojson,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Metadata    RawMessage `json:"metadata,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// DeviceIDs is derived, populated the same way as Site.ZoneIDs.
	DeviceIDs []string `json:"device_ids,omitempty"`
}

// InsertParams returns the positional values for InsertSql.
func (z *Zone) InsertParams() []interface{} {
	return []interface{}{z.ID, z.SiteID, z.Name, z.Description, z.Kind, z.GeoJSON, pqStringArray(z.Tags), z.Metadata}
}

// UpdateParams returns the positional values for UpdateSql.
func (z *Zone) UpdateParams() []interface{} {
	return []interface{}{z.Name, z.Description, z.Kind, z.GeoJSON, pqStringArray(z.Tags), z.Metadata, z.ID}
}
