package access

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"strings"
)

// GenerateTotpSecret returns n cryptographically-random bytes Base32
// encoded without padding (RFC 4648), the wire format spec.md §6 and
// §4.A call for. An n below 10 is raised to 10, matching
// original_source/Auth/src/Totp.cpp's TotpGenerateSecretBase32 minimum.
func GenerateTotpSecret(n int) (string, error) {
	if n < 10 {
		n = 10
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate totp secret: %w", err)
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf), nil
}

// decodeBase32Key strips whitespace/dashes before decoding, matching
// original_source's DecodeBase32Key tolerance for human-entered secrets.
func decodeBase32Key(secretB32 string) ([]byte, error) {
	cleaned := strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' || r == '\t' || r == '\n' {
			return -1
		}
		return r
	}, secretB32)
	cleaned = strings.ToUpper(cleaned)
	return base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(cleaned)
}

func pow10i(n int) int {
	result := 1
	for i := 0; i < n; i++ {
		result *= 10
	}
	return result
}

// TotpCode computes the HOTP-SHA1 code for secretB32 at the time-derived
// counter floor(unixTime/period), per RFC 4226/6238. Dynamic truncation
// follows RFC 4226 §5.3, including the corrected offset bound
// (offset+4 > len(mac), not offset+3 >= len(mac) as
// original_source/Auth/src/Totp.cpp has it — see spec.md §9 and
// DESIGN.md).
func TotpCode(secretB32 string, unixTime int64, digits, period int) (int, error) {
	key, err := decodeBase32Key(secretB32)
	if err != nil {
		return 0, fmt.Errorf("invalid totp secret: %w", err)
	}
	if period <= 0 {
		period = 30
	}
	counter := uint64(unixTime / int64(period))

	var counterBytes [8]byte
	binary.BigEndian.PutUint64(counterBytes[:], counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(counterBytes[:])
	sum := mac.Sum(nil)

	offset := int(sum[len(sum)-1] & 0x0F)
	if offset+4 > len(sum) {
		return 0, fmt.Errorf("hotp truncation out of range")
	}

	binCode := (int(sum[offset])&0x7F)<<24 |
		(int(sum[offset+1])&0xFF)<<16 |
		(int(sum[offset+2])&0xFF)<<8 |
		(int(sum[offset+3]) & 0xFF)

	return binCode % pow10i(digits), nil
}

// TotpVerify reports whether codeString matches the code for secretB32 at
// any counter in [unixTime-window*period, unixTime+window*period],
// comparing zero-padded decimal strings in constant time. The time shift
// saturates rather than underflows for unixTime-window*period < 0.
func TotpVerify(secretB32, codeString string, unixTime int64, digits, period, window int) bool {
	if !onlyDigits(codeString) || len(codeString) != digits {
		return false
	}
	for w := -window; w <= window; w++ {
		shifted := clampShiftedTime(unixTime, w, period)
		code, err := TotpCode(secretB32, shifted, digits, period)
		if err != nil {
			continue
		}
		expected := zeroPad(code, digits)
		if subtle.ConstantTimeCompare([]byte(expected), []byte(codeString)) == 1 {
			return true
		}
	}
	return false
}

// clampShiftedTime shifts unixTime by windows*period, saturating at 0
// instead of going negative, matching original_source's
// ClampShiftedTime.
func clampShiftedTime(unixTime int64, windows, period int) int64 {
	shift := int64(windows) * int64(period)
	if shift < 0 && -shift > unixTime {
		return 0
	}
	return unixTime + shift
}

func onlyDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func zeroPad(code, digits int) string {
	return fmt.Sprintf("%0*d", digits, code)
}
