package access

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEquipmentKeyMiddlewareGrantsIdentityOnMatch(t *testing.T) {
	var gotIdentity Identity
	var gotOK bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIdentity, gotOK = IdentityFromContext(r.Context())
	})

	mw := EquipmentKeyMiddleware("secret")(next)
	r := httptest.NewRequest(http.MethodPost, "/devices/register", nil)
	r.Header.Set("X-Equipment-Key", "secret")
	mw.ServeHTTP(httptest.NewRecorder(), r)

	if !gotOK || !IsEquipment(gotIdentity) {
		t.Fatalf("expected an equipment identity in context, got %+v ok=%v", gotIdentity, gotOK)
	}
}

func TestEquipmentKeyMiddlewareRejectsMismatch(t *testing.T) {
	var gotOK bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, gotOK = IdentityFromContext(r.Context())
	})

	mw := EquipmentKeyMiddleware("secret")(next)
	r := httptest.NewRequest(http.MethodPost, "/devices/register", nil)
	r.Header.Set("X-Equipment-Key", "wrong")
	mw.ServeHTTP(httptest.NewRecorder(), r)

	if gotOK {
		t.Fatal("expected no identity in context for a mismatched key")
	}
}

func TestEquipmentKeyMiddlewareDisabledWhenKeyEmpty(t *testing.T) {
	var gotOK bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, gotOK = IdentityFromContext(r.Context())
	})

	mw := EquipmentKeyMiddleware("")(next)
	r := httptest.NewRequest(http.MethodPost, "/devices/register", nil)
	r.Header.Set("X-Equipment-Key", "anything")
	mw.ServeHTTP(httptest.NewRecorder(), r)

	if gotOK {
		t.Fatal("expected middleware to grant nothing when configured key is empty")
	}
}
