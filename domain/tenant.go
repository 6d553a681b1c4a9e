package domain

import "time"

// Tenant is the top-level ownership boundary for every other entity.
type Tenant struct {
	ID        string    `json:"id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InsertParams returns the positional values for the repository's InsertSql
// template, in column order (id, tenant_id-n/a, slug, name).
func (t *Tenant) InsertParams() []interface{} {
	return []interface{}{t.ID, t.Slug, t.Name}
}

// UpdateParams returns the positional values for UpdateSql.
func (t *Tenant) UpdateParams() []interface{} {
	return []interface{}{t.Slug, t.Name, t.ID}
}
