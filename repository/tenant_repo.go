package repository

import (
	"context"
	"fmt"

	"github.com/falcata-iot/edge/core/csql"
	"github.com/falcata-iot/edge/domain"
)

// TenantRepository is the Repository Layer accessor for Tenant rows.
type TenantRepository struct {
	*Repository[*domain.Tenant]
	db *csql.DB
}

// NewTenantRepository creates the tenants table if needed and returns a
// bound TenantRepository.
func NewTenantRepository(db *csql.DB) *TenantRepository {
	mustExec(db, `CREATE TABLE IF NOT EXISTS `+db.Schema+`.tenants (
		id varchar PRIMARY KEY,
		slug varchar NOT NULL UNIQUE,
		name varchar NOT NULL,
		created_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz NOT NULL DEFAULT now()
	);`)

	trait := Trait[*domain.Tenant]{
		SelectAllSql:  `SELECT id, slug, name, created_at, updated_at FROM ` + db.Schema + `.tenants ORDER BY created_at ASC;`,
		SelectByIDSql: `SELECT id, slug, name, created_at, updated_at FROM ` + db.Schema + `.tenants WHERE id = $1;`,
		InsertSql: `INSERT INTO ` + db.Schema + `.tenants(id, slug, name)
			VALUES ($1, $2, $3) RETURNING id;`,
		UpdateSql: `UPDATE ` + db.Schema + `.tenants SET slug=$1, name=$2, updated_at=now() WHERE id=$3;`,
		DeleteSql: `DELETE FROM ` + db.Schema + `.tenants WHERE id=$1;`,
		FromRow:   scanTenant,
	}
	return &TenantRepository{Repository: New(db, trait), db: db}
}

// FindBySlug looks up a tenant by its unique slug.
func (r *TenantRepository) FindBySlug(ctx context.Context, slug string) (*domain.Tenant, bool, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, slug, name, created_at, updated_at FROM `+r.db.Schema+`.tenants WHERE slug=$1;`, slug)
	t, err := scanTenant(row)
	if err == csql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("find_by_slug: %w", err)
	}
	return t, true, nil
}

func scanTenant(s Scanner) (*domain.Tenant, error) {
	t := &domain.Tenant{}
	err := s.Scan(&t.ID, &t.Slug, &t.Name, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func mustExec(db *csql.DB, ddl string) {
	if _, err := db.Exec(ddl); err != nil {
		panic(err)
	}
}
