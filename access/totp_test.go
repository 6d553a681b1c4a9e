package access

import "testing"

func TestGenerateTotpSecretMinimumLength(t *testing.T) {
	secret, err := GenerateTotpSecret(4)
	if err != nil {
		t.Fatalf("GenerateTotpSecret: %v", err)
	}
	decoded, err := decodeBase32Key(secret)
	if err != nil {
		t.Fatalf("decodeBase32Key: %v", err)
	}
	if len(decoded) < 10 {
		t.Fatalf("expected at least 10 raw bytes even when a smaller n was requested, got %d", len(decoded))
	}
}

// TestTotpVerifyIsInverseOfTotpCode is spec.md §8 property 1: verify is
// an inverse of generate for a code at the exact counter, fails one
// period off with window=0, and passes with window>=1.
func TestTotpVerifyIsInverseOfTotpCode(t *testing.T) {
	secret, err := GenerateTotpSecret(20)
	if err != nil {
		t.Fatalf("GenerateTotpSecret: %v", err)
	}
	const digits = 6
	const period = 30
	now := int64(1_700_000_000)

	code, err := TotpCode(secret, now, digits, period)
	if err != nil {
		t.Fatalf("TotpCode: %v", err)
	}
	codeStr := zeroPad(code, digits)

	if !TotpVerify(secret, codeStr, now, digits, period, 0) {
		t.Fatal("expected the code for the current counter to verify with window=0")
	}

	oneWindowLater := now + period
	if TotpVerify(secret, codeStr, oneWindowLater, digits, period, 0) {
		t.Fatal("expected a code one period stale to fail with window=0")
	}
	if !TotpVerify(secret, codeStr, oneWindowLater, digits, period, 1) {
		t.Fatal("expected a code one period stale to pass with window=1")
	}
}

func TestTotpCodeIsZeroPadded(t *testing.T) {
	secret, err := GenerateTotpSecret(20)
	if err != nil {
		t.Fatalf("GenerateTotpSecret: %v", err)
	}
	code, err := TotpCode(secret, 0, 8, 30)
	if err != nil {
		t.Fatalf("TotpCode: %v", err)
	}
	padded := zeroPad(code, 8)
	if len(padded) != 8 {
		t.Fatalf("expected an 8-digit zero-padded code, got %q", padded)
	}
}

func TestTotpVerifyRejectsWrongLengthOrNonDigits(t *testing.T) {
	secret, err := GenerateTotpSecret(20)
	if err != nil {
		t.Fatalf("GenerateTotpSecret: %v", err)
	}
	if TotpVerify(secret, "12345", 0, 6, 30, 1) {
		t.Fatal("expected a short code to fail")
	}
	if TotpVerify(secret, "abcdef", 0, 6, 30, 1) {
		t.Fatal("expected a non-digit code to fail")
	}
}

func TestClampShiftedTimeSaturatesAtZero(t *testing.T) {
	if got := clampShiftedTime(10, -1, 30); got != 0 {
		t.Fatalf("expected saturation at 0, got %d", got)
	}
	if got := clampShiftedTime(100, -1, 30); got != 70 {
		t.Fatalf("expected 70, got %d", got)
	}
}
