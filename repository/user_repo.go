package repository

import (
	"context"
	"fmt"

	"github.com/falcata-iot/edge/core/csql"
	"github.com/falcata-iot/edge/domain"
)

// UserRepository is the Repository Layer accessor for User rows.
type UserRepository struct {
	*Repository[*domain.User]
	db *csql.DB
}

// NewUserRepository creates the users table if needed and returns a
// bound UserRepository.
func NewUserRepository(db *csql.DB) *UserRepository {
	mustExec(db, `CREATE TABLE IF NOT EXISTS `+db.Schema+`.users (
		id varchar PRIMARY KEY,
		tenant_id varchar NOT NULL,
		user_name varchar NOT NULL,
		email varchar NOT NULL DEFAULT '',
		password_hash varchar NOT NULL,
		role varchar NOT NULL DEFAULT 'viewer',
		disabled bool NOT NULL DEFAULT false,
		mfa_enabled bool NOT NULL DEFAULT false,
		totp_secret_b32 varchar NOT NULL DEFAULT '',
		totp_digits int NOT NULL DEFAULT 6,
		totp_period int NOT NULL DEFAULT 30,
		site_roles json NOT NULL DEFAULT '{}',
		created_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz NOT NULL DEFAULT now(),
		UNIQUE(tenant_id, user_name)
	);`)

	cols := `id, tenant_id, user_name, email, password_hash, role, disabled, mfa_enabled,
		totp_secret_b32, totp_digits, totp_period, site_roles, created_at, updated_at`

	trait := Trait[*domain.User]{
		SelectAllSql:  `SELECT ` + cols + ` FROM ` + db.Schema + `.users ORDER BY created_at ASC;`,
		SelectByIDSql: `SELECT ` + cols + ` FROM ` + db.Schema + `.users WHERE id = $1;`,
		ListSql:       `SELECT ` + cols + ` FROM ` + db.Schema + `.users WHERE tenant_id = $1 ORDER BY created_at ASC LIMIT $2;`,
		InsertSql: `INSERT INTO ` + db.Schema + `.users(
				id, tenant_id, user_name, email, password_hash, role, disabled, mfa_enabled,
				totp_secret_b32, totp_digits, totp_period)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id;`,
		UpdateSql: `UPDATE ` + db.Schema + `.users SET
				user_name=$1, email=$2, password_hash=$3, role=$4, disabled=$5, mfa_enabled=$6,
				totp_secret_b32=$7, totp_digits=$8, totp_period=$9, updated_at=now()
			WHERE id=$10;`,
		DeleteSql:     `DELETE FROM ` + db.Schema + `.users WHERE id=$1;`,
		SetDisableSql: `UPDATE ` + db.Schema + `.users SET disabled=$1, updated_at=now() WHERE id=$2;`,
		FromRow:       scanUser,
	}
	return &UserRepository{Repository: New(db, trait), db: db}
}

// FindByTenantAndUserName looks up a user by (tenant_id, user_name), the
// unique key spec.md §3 declares.
func (r *UserRepository) FindByTenantAndUserName(ctx context.Context, tenantID, userName string) (*domain.User, bool, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, user_name, email, password_hash, role, disabled, mfa_enabled,
			totp_secret_b32, totp_digits, totp_period, site_roles, created_at, updated_at
		 FROM `+r.db.Schema+`.users WHERE tenant_id=$1 AND user_name=$2;`, tenantID, userName)
	u, err := scanUser(row)
	if err == csql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("find_by_tenant_and_user_name: %w", err)
	}
	return u, true, nil
}

func scanUser(s Scanner) (*domain.User, error) {
	u := &domain.User{}
	var role string
	var siteRoles domain.RawMessage
	err := s.Scan(&u.ID, &u.TenantID, &u.UserName, &u.Email, &u.PasswordHash, &role,
		&u.Disabled, &u.MfaEnabled, &u.TotpSecretB32, &u.TotpDigits, &u.TotpPeriod,
		&siteRoles, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.Role = domain.ParseRole(role)
	if len(siteRoles) > 0 {
		var raw map[string]string
		if uerr := unmarshalSiteRoles(siteRoles, &raw); uerr == nil {
			u.SiteRoles = make(map[string]domain.Role, len(raw))
			for k, v := range raw {
				u.SiteRoles[k] = domain.ParseRole(v)
			}
		}
	}
	return u, nil
}
