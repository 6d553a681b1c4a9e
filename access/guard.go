package access

import (
	"net/http"
	"strings"

	"github.com/falcata-iot/edge/apperr"
	"github.com/falcata-iot/edge/domain"
)

// Guard wraps an Issuer with the role/tenant/site guard chain described in
// spec.md §4.A, grounded on original_source/Auth/src/Guards.cpp's
// RequireRoleStrict/RequireTenantStrict/RequireTenantSiteStrict.
type Guard struct {
	issuer    *Issuer
	available func() bool
}

// NewGuard creates a Guard. available reports whether the auth service
// itself is up; when it returns false every guard check fails with 503,
// matching Guards.cpp's unavailable-service branch.
func NewGuard(issuer *Issuer, available func() bool) *Guard {
	if available == nil {
		available = func() bool { return true }
	}
	return &Guard{issuer: issuer, available: available}
}

// RequireRoleStrict extracts "Authorization: Bearer <token>", verifies it,
// and checks identity.Role >= role using the total order
// Viewer<Operator<Admin. On success it returns the Identity; on failure
// it writes the canonical error response itself and returns ok=false.
func (g *Guard) RequireRoleStrict(w http.ResponseWriter, r *http.Request, role domain.Role) (Identity, bool) {
	if !g.available() {
		writeJSONError(w, apperr.Unavailable, "auth service unavailable")
		return Identity{}, false
	}

	token := bearerToken(r)
	if token == "" {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeJSONError(w, apperr.NotAuthorized, "missing authorization header")
		return Identity{}, false
	}

	identity, err := g.issuer.VerifyToken(token)
	if err != nil {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeJSONError(w, apperr.NotAuthorized, "invalid or expired token")
		return Identity{}, false
	}

	if identity.Role < role {
		writeJSONError(w, apperr.NotAuthorized, "insufficient role")
		return Identity{}, false
	}

	return identity, true
}

// RequireTenantStrict additionally rejects with 403 if identity.TenantSlug
// is non-empty and differs from tenantSlug.
func (g *Guard) RequireTenantStrict(w http.ResponseWriter, r *http.Request, tenantSlug string, role domain.Role) (Identity, bool) {
	identity, ok := g.RequireRoleStrict(w, r, role)
	if !ok {
		return Identity{}, false
	}
	if identity.TenantSlug != "" && identity.TenantSlug != tenantSlug {
		writeForbidden(w, "tenant mismatch")
		return Identity{}, false
	}
	return identity, true
}

// RequireTenantSiteStrict additionally rejects with 403 when
// identity.SiteIDs is non-empty and does not contain siteID.
func (g *Guard) RequireTenantSiteStrict(w http.ResponseWriter, r *http.Request, tenantSlug, siteID string, role domain.Role) (Identity, bool) {
	identity, ok := g.RequireTenantStrict(w, r, tenantSlug, role)
	if !ok {
		return Identity{}, false
	}
	if !identity.HasSite(siteID) {
		writeForbidden(w, "site not in scope")
		return Identity{}, false
	}
	return identity, true
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimPrefix(h, prefix)
}

// writeJSONError writes the canonical {"error":"<message>"} body with the
// status apperr.HTTPStatus(kind) maps to, matching
// original_source/Auth/src/Guards.cpp's SetJsonError.
func writeJSONError(w http.ResponseWriter, kind apperr.Kind, message string) {
	status := apperr.HTTPStatus(kind)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + escapeJSONString(message) + `"}`))
}

// writeForbidden writes the canonical {"error":"<message>"} body with 403,
// the status a valid token failing the tenant or site check receives.
func writeForbidden(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte(`{"error":"` + escapeJSONString(message) + `"}`))
}

// WriteJSONError is the exported form used by httpapi handlers for errors
// raised outside the guard chain itself (bad request bodies, mfa, etc).
func WriteJSONError(w http.ResponseWriter, kind apperr.Kind, message string) {
	writeJSONError(w, kind, message)
}

func escapeJSONString(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
