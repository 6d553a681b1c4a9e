package domain

import "testing"

func TestRoleTotalOrder(t *testing.T) {
	if !(Viewer < Operator && Operator < Admin) {
		t.Fatal("expected Viewer < Operator < Admin")
	}
}

func TestParseRoleRoundTrip(t *testing.T) {
	for _, r := range []Role{Viewer, Operator, Admin} {
		if got := ParseRole(r.String()); got != r {
			t.Errorf("ParseRole(%q) = %v, want %v", r.String(), got, r)
		}
	}
}

func TestParseRoleCaseInsensitiveAndUnknownDefaultsToViewer(t *testing.T) {
	if got := ParseRole("ADMIN"); got != Admin {
		t.Errorf("expected case-insensitive parse, got %v", got)
	}
	if got := ParseRole("  operator  "); got != Operator {
		t.Errorf("expected trimmed parse, got %v", got)
	}
	if got := ParseRole("superuser"); got != Viewer {
		t.Errorf("expected unknown role name to default to Viewer, got %v", got)
	}
}

func TestRoleJSONRoundTrip(t *testing.T) {
	for _, r := range []Role{Viewer, Operator, Admin} {
		data, err := r.MarshalJSON()
		if err != nil {
			t.Fatalf("MarshalJSON: %v", err)
		}
		var got Role
		if err := got.UnmarshalJSON(data); err != nil {
			t.Fatalf("UnmarshalJSON: %v", err)
		}
		if got != r {
			t.Errorf("round trip of %v produced %v", r, got)
		}
	}
}
