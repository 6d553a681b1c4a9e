package repository

import (
	"github.com/falcata-iot/edge/core/csql"
	"github.com/falcata-iot/edge/domain"
	"github.com/lib/pq"
)

// SiteRepository is the Repository Layer accessor for Site rows. Its
// discriminator column per spec.md §4.C is "kind", but the core does not
// yet branch the Go type on it — every Site row is the same concrete
// type, so FromRow is a plain scan rather than a dispatching factory.
type SiteRepository struct {
	*Repository[*domain.Site]
}

// NewSiteRepository creates the sites table if needed and returns a
// bound SiteRepository.
func NewSiteRepository(db *csql.DB) *SiteRepository {
	mustExec(db, `CREATE TABLE IF NOT EXISTS `+db.Schema+`.sites (
		id varchar PRIMARY KEY,
		tenant_id varchar NOT NULL,
		name varchar NOT NULL,
		kind varchar NOT NULL DEFAULT '',
		country varchar NOT NULL DEFAULT '',
		timezone varchar NOT NULL DEFAULT '',
		description varchar NOT NULL DEFAULT '',
		tags varchar[] NOT NULL DEFAULT '{}',
		metadata json NOT NULL DEFAULT '{}',
		created_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz NOT NULL DEFAULT now()
	);`)

	cols := `id, tenant_id, name, kind, country, timezone, description, tags, metadata, created_at, updated_at`
	trait := Trait[*domain.Site]{
		SelectAllSql:  `SELECT ` + cols + ` FROM ` + db.Schema + `.sites ORDER BY created_at ASC;`,
		SelectByIDSql: `SELECT ` + cols + ` FROM ` + db.Schema + `.sites WHERE id = $1;`,
		ListSql:       `SELECT ` + cols + ` FROM ` + db.Schema + `.sites WHERE tenant_id = $1 ORDER BY created_at ASC LIMIT $2;`,
		InsertSql: `INSERT INTO ` + db.Schema + `.sites(id, tenant_id, name, kind, country, timezone, description, tags, metadata)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id;`,
		UpdateSql: `UPDATE ` + db.Schema + `.sites SET
				name=$1, kind=$2, country=$3, timezone=$4, description=$5, tags=$6, metadata=$7, updated_at=now()
			WHERE id=$8;`,
		DeleteSql: `DELETE FROM ` + db.Schema + `.sites WHERE id=$1;`,
		FromRow:   scanSite,
	}
	return &SiteRepository{Repository: New(db, trait)}
}

func scanSite(s Scanner) (*domain.Site, error) {
	site := &domain.Site{}
	var tags pq.StringArray
	err := s.Scan(&site.ID, &site.TenantID, &site.Name, &site.Kind, &site.Country, &site.Timezone,
		&site.Description, &tags, &site.Metadata, &site.CreatedAt, &site.UpdatedAt)
	site.Tags = []string(tags)
	return site, err
}

// ZoneRepository is the Repository Layer accessor for Zone rows. Its
// discriminator column per spec.md §4.C is "site_id"; same rationale as
// SiteRepository for not dispatching on it.
type ZoneRepository struct {
	*Repository[*domain.Zone]
	db *csql.DB
}

// NewZoneRepository creates the zones table if needed and returns a
// bound ZoneRepository.
func NewZoneRepository(db *csql.DB) *ZoneRepository {
	mustExec(db, `CREATE TABLE IF NOT EXISTS `+db.Schema+`.zones (
		id varchar PRIMARY KEY,
		site_id varchar NOT NULL,
		name varchar NOT NULL,
		description varchar NOT NULL DEFAULT '',
		kind varchar NOT NULL DEFAULT '',
		geojson json NOT NULL DEFAULT '{}',
		tags varchar[] NOT NULL DEFAULT '{}',
		metadata json NOT NULL DEFAULT '{}',
		created_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz NOT NULL DEFAULT now()
	);`)

	cols := `id, site_id, name, description, kind, geojson, tags, metadata, created_at, updated_at`
	trait := Trait[*domain.Zone]{
		SelectAllSql:  `SELECT ` + cols + ` FROM ` + db.Schema + `.zones ORDER BY created_at ASC;`,
		SelectByIDSql: `SELECT ` + cols + ` FROM ` + db.Schema + `.zones WHERE id = $1;`,
		ListSql:       `SELECT ` + cols + ` FROM ` + db.Schema + `.zones WHERE site_id = $1 ORDER BY created_at ASC LIMIT $2;`,
		InsertSql: `INSERT INTO ` + db.Schema + `.zones(id, site_id, name, description, kind, geojson, tags, metadata)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id;`,
		UpdateSql: `UPDATE ` + db.Schema + `.zones SET
				name=$1, description=$2, kind=$3, geojson=$4, tags=$5, metadata=$6, updated_at=now()
			WHERE id=$7;`,
		DeleteSql: `DELETE FROM ` + db.Schema + `.zones WHERE id=$1;`,
		FromRow:   scanZone,
	}
	return &ZoneRepository{Repository: New(db, trait), db: db}
}

func scanZone(s Scanner) (*domain.Zone, error) {
	z := &domain.Zone{}
	var tags pq.StringArray
	err := s.Scan(&z.ID, &z.SiteID, &z.Name, &z.Description, &z.Kind, &z.GeoJSON, &tags,
		&z.Metadata, &z.CreatedAt, &z.UpdatedAt)
	z.Tags = []string(tags)
	return z, err
}
