package access

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/falcata-iot/edge/domain"
)

func newTestGuard() *Guard {
	return NewGuard(NewIssuer("guard-secret", "", ""), nil)
}

func bearerRequest(t *testing.T, guard *Guard, identity Identity) *http.Request {
	t.Helper()
	tok, err := guard.issuer.IssueToken(identity, 3600)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	r := httptest.NewRequest(http.MethodGet, "/users", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	return r
}

// TestRequireRoleStrictMonotonicity is spec.md §8 property 4: acceptance
// iff identity.Role >= required role, under Viewer < Operator < Admin.
func TestRequireRoleStrictMonotonicity(t *testing.T) {
	guard := newTestGuard()
	cases := []struct {
		identityRole domain.Role
		required     domain.Role
		wantOK       bool
	}{
		{domain.Viewer, domain.Viewer, true},
		{domain.Operator, domain.Viewer, true},
		{domain.Admin, domain.Viewer, true},
		{domain.Viewer, domain.Operator, false},
		{domain.Operator, domain.Operator, true},
		{domain.Admin, domain.Operator, true},
		{domain.Viewer, domain.Admin, false},
		{domain.Operator, domain.Admin, false},
		{domain.Admin, domain.Admin, true},
	}
	for _, c := range cases {
		r := bearerRequest(t, guard, Identity{Sub: "u", Role: c.identityRole, TenantSlug: "acme"})
		w := httptest.NewRecorder()
		_, ok := guard.RequireRoleStrict(w, r, c.required)
		if ok != c.wantOK {
			t.Errorf("identity role %v, required %v: got ok=%v, want %v (status=%d)", c.identityRole, c.required, ok, c.wantOK, w.Code)
		}
	}
}

func TestRequireRoleStrictMissingHeader(t *testing.T) {
	guard := newTestGuard()
	r := httptest.NewRequest(http.MethodGet, "/users", nil)
	w := httptest.NewRecorder()

	_, ok := guard.RequireRoleStrict(w, r, domain.Viewer)
	if ok {
		t.Fatal("expected missing Authorization header to fail")
	}
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if w.Header().Get("WWW-Authenticate") != "Bearer" {
		t.Fatalf("expected WWW-Authenticate: Bearer, got %q", w.Header().Get("WWW-Authenticate"))
	}
}

func TestRequireRoleStrictInvalidToken(t *testing.T) {
	guard := newTestGuard()
	r := httptest.NewRequest(http.MethodGet, "/users", nil)
	r.Header.Set("Authorization", "Bearer not-a-real-token")
	w := httptest.NewRecorder()

	_, ok := guard.RequireRoleStrict(w, r, domain.Viewer)
	if ok {
		t.Fatal("expected a garbage token to fail")
	}
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestRequireRoleStrictUnavailable(t *testing.T) {
	guard := NewGuard(NewIssuer("s", "", ""), func() bool { return false })
	r := httptest.NewRequest(http.MethodGet, "/users", nil)
	w := httptest.NewRecorder()

	_, ok := guard.RequireRoleStrict(w, r, domain.Viewer)
	if ok {
		t.Fatal("expected an unavailable auth service to fail every check")
	}
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestRequireTenantStrictMismatch(t *testing.T) {
	guard := newTestGuard()
	r := bearerRequest(t, guard, Identity{Sub: "u", Role: domain.Admin, TenantSlug: "acme"})
	w := httptest.NewRecorder()

	_, ok := guard.RequireTenantStrict(w, r, "other-tenant", domain.Admin)
	if ok {
		t.Fatal("expected a tenant mismatch to fail")
	}
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestRequireTenantStrictEmptyTenantAlwaysMatches(t *testing.T) {
	guard := newTestGuard()
	r := bearerRequest(t, guard, Identity{Sub: "svc", Role: domain.Admin})
	w := httptest.NewRecorder()

	_, ok := guard.RequireTenantStrict(w, r, "any-tenant", domain.Admin)
	if !ok {
		t.Fatalf("expected an identity with no tenant scope to pass any tenant check, status=%d", w.Code)
	}
}

func TestRequireTenantSiteStrict(t *testing.T) {
	guard := newTestGuard()

	inScope := bearerRequest(t, guard, Identity{Sub: "u", Role: domain.Operator, TenantSlug: "acme", SiteIDs: []string{"site-1"}})
	w := httptest.NewRecorder()
	if _, ok := guard.RequireTenantSiteStrict(w, inScope, "acme", "site-1", domain.Operator); !ok {
		t.Fatalf("expected an in-scope site to pass, status=%d", w.Code)
	}

	outOfScope := bearerRequest(t, guard, Identity{Sub: "u", Role: domain.Operator, TenantSlug: "acme", SiteIDs: []string{"site-1"}})
	w2 := httptest.NewRecorder()
	if _, ok := guard.RequireTenantSiteStrict(w2, outOfScope, "acme", "site-2", domain.Operator); ok {
		t.Fatal("expected an out-of-scope site to fail")
	}
}
