package domain

import (
	"testing"
	"time"
)

func TestUserJSONRoundTrip(t *testing.T) {
	u := User{
		ID:            "user-1",
		TenantID:      "tenant-1",
		UserName:      "hatem",
		Email:         "hatem@example.com",
		PasswordHash:  "should-never-appear-on-the-wire",
		Role:          Admin,
		Disabled:      false,
		MfaEnabled:    true,
		TotpSecretB32: "JBSWY3DPEHPK3PXP",
		TotpDigits:    6,
		TotpPeriod:    30,
		SiteRoles:     map[string]Role{"site-1": Operator, "site-2": Viewer},
		CreatedAt:     time.Unix(1700000000, 0).UTC(),
		UpdatedAt:     time.Unix(1700000100, 0).UTC(),
	}

	data, err := u.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	if string(data) == "" {
		t.Fatal("expected non-empty JSON")
	}

	var got User
	if err := got.UnmarshalJSON(data); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}

	if got.ID != u.ID || got.UserName != u.UserName || got.Role != u.Role || got.MfaEnabled != u.MfaEnabled {
		t.Fatalf("round-tripped user %+v does not match original %+v", got, u)
	}
	if got.SiteRoles["site-1"] != Operator || got.SiteRoles["site-2"] != Viewer {
		t.Fatalf("site_roles did not round-trip: %+v", got.SiteRoles)
	}
	if got.PasswordHash != "" {
		t.Fatal("expected the password hash to never round-trip through the JSON wire format")
	}
}
