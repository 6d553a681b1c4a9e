package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// TestHandleRegisterDeviceRejectsWithoutEquipmentIdentityOrToken exercises
// the rejection path only: neither EquipmentKeyMiddleware's identity nor a
// bootstrap token is present, so the handler must not reach a.devices or
// a.bootstrapTokens at all.
func TestHandleRegisterDeviceRejectsWithoutEquipmentIdentityOrToken(t *testing.T) {
	api := &API{}

	r := httptest.NewRequest(http.MethodPost, "/devices/register", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	api.handleRegisterDevice(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}
