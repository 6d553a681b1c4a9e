// Package access implements the Auth Core: Argon2id password hashing,
// HS256 JWT issuance/verification, HOTP/TOTP, and the role/tenant/site
// guard chain, per spec.md §4.A.
package access

import (
	"context"

	"github.com/falcata-iot/edge/domain"
)

// Identity is the authenticated caller, extracted from a verified JWT and
// carried through a request's context. Its fields mirror the JWT claim
// set spec.md §3 names: {sub, role, tenant_slug, tenant_id, site_ids?}.
type Identity struct {
	Sub        string      `json:"sub"`
	Role       domain.Role `json:"-"`
	TenantID   string      `json:"tenant_id"`
	TenantSlug string      `json:"tenant_slug"`
	SiteIDs    []string    `json:"site_ids,omitempty"`
}

// HasSite reports whether siteID is among the Identity's site scopes. An
// empty SiteIDs set means "all sites", matching original_source's
// Guards.cpp HasSite semantics.
func (id Identity) HasSite(siteID string) bool {
	if len(id.SiteIDs) == 0 {
		return true
	}
	for _, s := range id.SiteIDs {
		if s == siteID {
			return true
		}
	}
	return false
}

type contextKeyIdentityType struct{}

var contextKeyIdentity = &contextKeyIdentityType{}

// ContextWithIdentity returns a new context carrying identity.
func ContextWithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, contextKeyIdentity, identity)
}

// IdentityFromContext returns the Identity stored in ctx, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKeyIdentity).(Identity)
	return id, ok
}
