package domain

import "time"

// User is an operator-facing account scoped to a Tenant and, optionally,
// a subset of that tenant's Sites.
type User struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenant_id"`
	UserName       string    `json:"user_name"`
	Email          string    `json:"email"`
	PasswordHash   string    `json:"-"`
	Role           Role      `json:"role"`
	Disabled       bool      `json:"disabled"`
	MfaEnabled     bool      `json:"mfa_enabled"`
	TotpSecretB32  string    `json:"totp_secret_b32,omitempty"`
	TotpDigits     int       `json:"totp_digits,omitempty"`
	TotpPeriod     int       `json:"totp_period,omitempty"`
	SiteRoles      map[string]Role `json:"site_roles,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// userAlias mirrors User field-for-field; Role's own MarshalJSON/
// UnmarshalJSON already renders it by name, so this alias exists only to
// break the recursion a plain type User User would otherwise hit through
// User's embedded methods.
type userAlias User

// MarshalJSON is defined explicitly (rather than relying on the default
// struct encoding) so that from_json(to_json(u)) round-trips through the
// same code path UnmarshalJSON below uses.
func (u User) MarshalJSON() ([]byte, error) {
	return marshalJSON(userAlias(u))
}

// UnmarshalJSON is the inverse of MarshalJSON, completing the
// to_json()/from_json() round-trip spec.md §4.B requires of every entity.
func (u *User) UnmarshalJSON(data []byte) error {
	var a userAlias
	if err := unmarshalJSON(data, &a); err != nil {
		return err
	}
	*u = User(a)
	return nil
}

// InsertParams returns the positional values for the repository's InsertSql
// template.
func (u *User) InsertParams() []interface{} {
	return []interface{}{
		u.ID, u.TenantID, u.UserName, u.Email, u.PasswordHash, u.Role.String(),
		u.Disabled, u.MfaEnabled, u.TotpSecretB32, u.TotpDigits, u.TotpPeriod,
	}
}

// UpdateParams returns the positional values for UpdateSql.
func (u *User) UpdateParams() []interface{} {
	return []interface{}{
		u.UserName, u.Email, u.PasswordHash, u.Role.String(), u.Disabled,
		u.MfaEnabled, u.TotpSecretB32, u.TotpDigits, u.TotpPeriod, u.ID,
	}
}

// DisableParams returns the positional values for SetDisableSql.
func (u *User) DisableParams(disabled bool) []interface{} {
	return []interface{}{disabled, u.ID}
}
