package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// TestWriteLoginErrorAlwaysReturns500 is spec.md §8 E2E scenario 2:
// POST /login without totp -> 500 with "mfa required", not the 401/403 the
// shared apperr.HTTPStatus mapping would otherwise give MfaRequired.
func TestWriteLoginErrorAlwaysReturns500(t *testing.T) {
	w := httptest.NewRecorder()
	writeLoginError(w, "mfa required")

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("writeLoginError status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if !strings.Contains(w.Body.String(), "mfa required") {
		t.Fatalf("writeLoginError body = %q, want it to contain %q", w.Body.String(), "mfa required")
	}
}

// TestRouterCORSPreflightReturns204 is spec.md §6: "OPTIONS any — 204 with
// CORS allow-headers". gorilla/handlers.CORS defaults to 200 without
// handlers.OptionStatusCode; Router must override it.
func TestRouterCORSPreflightReturns204(t *testing.T) {
	api := &API{}
	router := api.Router()

	r := httptest.NewRequest(http.MethodOptions, "/login", nil)
	r.Header.Set("Origin", "https://example.com")
	r.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusNoContent {
		t.Fatalf("OPTIONS preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
}
