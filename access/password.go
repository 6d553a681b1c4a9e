package access

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id password hashing parameters. Moderate opslimit/memlimit per
// spec.md §4.A, matching mstrhakr-printmaster's storage package.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 2
	argonKeyLen  = 32
	argonSaltLen = 16
)

// HashPassword hashes plaintext with Argon2id and returns a
// self-describing encoded hash: $argon2id$v=19$m=...,t=...,p=...$<salt>$<hash>.
func HashPassword(plaintext string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	hash := argon2.IDKey([]byte(plaintext), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	b64Salt := base64.RawStdEncoding.EncodeToString(salt)
	b64Hash := base64.RawStdEncoding.EncodeToString(hash)
	encoded := fmt.Sprintf("$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s", argonMemory, argonTime, argonThreads, b64Salt, b64Hash)

	return encoded, nil
}

// VerifyPassword reports whether plaintext hashes to encoded, using a
// constant-time comparison. Any decoding error is treated as a mismatch
// rather than propagated, per spec.md §4.A.
func VerifyPassword(plaintext, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) < 6 {
		return false
	}

	params := parts[3]
	saltB64 := parts[4]
	hashB64 := parts[5]

	var memory, t uint32
	var threads uint8

	if _, err := fmt.Sscanf(params, "m=%d,t=%d,p=%d", &memory, &t, &threads); err != nil {
		for _, v := range strings.Split(params, ",") {
			kv := strings.SplitN(v, "=", 2)
			if len(kv) != 2 {
				continue
			}
			switch kv[0] {
			case "m":
				fmt.Sscanf(kv[1], "%d", &memory)
			case "t":
				fmt.Sscanf(kv[1], "%d", &t)
			case "p":
				fmt.Sscanf(kv[1], "%d", &threads)
			}
		}
	}

	salt, err := base64.RawStdEncoding.DecodeString(saltB64)
	if err != nil {
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(hashB64)
	if err != nil {
		return false
	}

	derived := argon2.IDKey([]byte(plaintext), salt, t, memory, threads, uint32(len(expected)))
	return subtle.ConstantTimeCompare(derived, expected) == 1
}
