package pointers

import (
	"testing"
	"time"
)

func TestSafeString(t *testing.T) {
	if got := SafeString(nil); got != "" {
		t.Fatalf("SafeString(nil) = %q, want empty", got)
	}
	if got := SafeString(StringPtr("hello")); got != "hello" {
		t.Fatalf("SafeString(StringPtr(%q)) = %q", "hello", got)
	}
}

func TestSafeTime(t *testing.T) {
	if got := SafeTime(nil); !got.IsZero() {
		t.Fatalf("SafeTime(nil) = %v, want zero", got)
	}
	now := time.Now()
	if got := SafeTime(TimePtr(now)); !got.Equal(now) {
		t.Fatalf("SafeTime(TimePtr(now)) = %v, want %v", got, now)
	}
}

func TestSafeNumericAndBool(t *testing.T) {
	if got := SafeInt64(Int64Ptr(42)); got != 42 {
		t.Fatalf("SafeInt64 = %d, want 42", got)
	}
	if got := SafeInt64(nil); got != 0 {
		t.Fatalf("SafeInt64(nil) = %d, want 0", got)
	}
	if got := SafeFloat64(Float64Ptr(1.5)); got != 1.5 {
		t.Fatalf("SafeFloat64 = %v, want 1.5", got)
	}
	if got := SafeBool(BoolPtr(true)); !got {
		t.Fatal("SafeBool(BoolPtr(true)) = false")
	}
	if got := SafeBool(nil); got {
		t.Fatal("SafeBool(nil) = true, want false")
	}
}
