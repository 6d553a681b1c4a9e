package access

import "testing"

func TestHashPasswordVerifyRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !VerifyPassword("correct horse battery staple", hash) {
		t.Fatal("VerifyPassword: expected match for the original plaintext")
	}
	if VerifyPassword("wrong password", hash) {
		t.Fatal("VerifyPassword: expected mismatch for a different plaintext")
	}
}

func TestHashPasswordIsSelfDescribing(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash[:9] != "$argon2id" {
		t.Fatalf("expected argon2id-prefixed hash, got %q", hash)
	}
}

func TestHashPasswordUniqueSaltPerCall(t *testing.T) {
	h1, err := HashPassword("same-input")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	h2, err := HashPassword("same-input")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if h1 == h2 {
		t.Fatal("expected distinct salts to produce distinct hashes for the same plaintext")
	}
	if !VerifyPassword("same-input", h1) || !VerifyPassword("same-input", h2) {
		t.Fatal("both hashes should verify against the same plaintext")
	}
}

func TestVerifyPasswordRejectsGarbage(t *testing.T) {
	if VerifyPassword("anything", "not-a-valid-encoded-hash") {
		t.Fatal("expected malformed hash to fail verification, not error out")
	}
	if VerifyPassword("anything", "") {
		t.Fatal("expected empty hash to fail verification")
	}
}
