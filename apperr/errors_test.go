package apperr

import (
	"errors"
	"net/http"
	"testing"
)

func TestErrorMessageWithAndWithoutWrappedCause(t *testing.T) {
	plain := New(BadRequest, "bad input")
	if plain.Error() != "bad input" {
		t.Errorf("expected plain message, got %q", plain.Error())
	}

	cause := errors.New("underlying failure")
	wrapped := Wrap(Internal, "operation failed", cause)
	if wrapped.Error() != "operation failed: underlying failure" {
		t.Errorf("unexpected wrapped message: %q", wrapped.Error())
	}
	if !errors.Is(wrapped, cause) {
		t.Error("expected errors.Is to see through the wrapped cause")
	}
}

func TestAsExtractsAppError(t *testing.T) {
	err := Wrap(NotFound, "missing", errors.New("no rows"))
	got, ok := As(err)
	if !ok {
		t.Fatal("expected As to recognize an *Error")
	}
	if got.Kind != NotFound {
		t.Errorf("expected Kind=NotFound, got %v", got.Kind)
	}

	if _, ok := As(errors.New("plain error")); ok {
		t.Fatal("expected As to reject a plain error")
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{NotAuthorized, http.StatusUnauthorized},
		{TokenExpired, http.StatusUnauthorized},
		{TokenInvalidSignature, http.StatusUnauthorized},
		{BadCredentials, http.StatusUnauthorized},
		{MfaRequired, http.StatusUnauthorized},
		{UserDisabled, http.StatusUnauthorized},
		{Unavailable, http.StatusServiceUnavailable},
		{BadRequest, http.StatusBadRequest},
		{NotFound, http.StatusNotFound},
		{DeviceNotFound, http.StatusNotFound},
		{Conflict, http.StatusConflict},
		{Internal, http.StatusInternalServerError},
		{NotMqttDevice, http.StatusInternalServerError},
		{NoCommandTopic, http.StatusInternalServerError},
		{PublishFailedShunked, http.StatusInternalServerError},
		{PublishTimeout, http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := HTTPStatus(c.kind); got != c.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", c.kind, got, c.want)
		}
	}
}
