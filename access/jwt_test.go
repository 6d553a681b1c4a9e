package access

import (
	"testing"
	"time"

	"github.com/falcata-iot/edge/domain"
)

func testIdentity() Identity {
	return Identity{
		Sub:        "user-1",
		Role:       domain.Operator,
		TenantID:   "tenant-1",
		TenantSlug: "acme",
		SiteIDs:    []string{"site-a", "site-b"},
	}
}

// TestJwtRoundTrip is spec.md §8 property 2.
func TestJwtRoundTrip(t *testing.T) {
	issuer := NewIssuer("top-secret", "", "")
	identity := testIdentity()

	tok, err := issuer.IssueToken(identity, 3600)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	got, err := issuer.VerifyToken(tok)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if got.Sub != identity.Sub || got.Role != identity.Role || got.TenantID != identity.TenantID ||
		got.TenantSlug != identity.TenantSlug || len(got.SiteIDs) != len(identity.SiteIDs) {
		t.Fatalf("round-tripped identity %+v does not match original %+v", got, identity)
	}
}

func TestJwtVerifyRejectsTamperedSignature(t *testing.T) {
	issuer := NewIssuer("top-secret", "", "")
	tok, err := issuer.IssueToken(testIdentity(), 3600)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	tampered := tok[:len(tok)-2] + flipLastChar(tok[len(tok)-2:len(tok)-1]) + tok[len(tok)-1:]
	if _, err := issuer.VerifyToken(tampered); err == nil {
		t.Fatal("expected a tampered signature to fail verification")
	}
}

func flipLastChar(s string) string {
	if s == "A" {
		return "B"
	}
	return "A"
}

func TestJwtVerifyRejectsExpiredToken(t *testing.T) {
	issuer := NewIssuer("top-secret", "", "")
	tok, err := issuer.IssueToken(testIdentity(), -1)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	// Give the (already-expired) exp claim a moment of margin against clock
	// skew in the test environment.
	time.Sleep(10 * time.Millisecond)

	if _, err := issuer.VerifyToken(tok); err == nil {
		t.Fatal("expected an expired token to fail verification")
	}
}

func TestJwtVerifyEnforcesIssuerAndAudience(t *testing.T) {
	issuer := NewIssuer("top-secret", "edge-server", "operators-ui")
	tok, err := issuer.IssueToken(testIdentity(), 3600)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	if _, err := issuer.VerifyToken(tok); err != nil {
		t.Fatalf("expected the matching issuer/audience to verify: %v", err)
	}

	other := NewIssuer("top-secret", "someone-else", "operators-ui")
	if _, err := other.VerifyToken(tok); err == nil {
		t.Fatal("expected a mismatched issuer to fail verification")
	}
}

func TestJwtVerifyRejectsWrongSecret(t *testing.T) {
	issuer := NewIssuer("secret-a", "", "")
	tok, err := issuer.IssueToken(testIdentity(), 3600)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	other := NewIssuer("secret-b", "", "")
	if _, err := other.VerifyToken(tok); err == nil {
		t.Fatal("expected verification against a different secret to fail")
	}
}
