// Package cryptoutil holds the signing-key rules shared by config validation
// and the evidence signer.
package cryptoutil

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// MinKeyBytes is the shortest HMAC-SHA256 key SafeOps accepts.
const MinKeyBytes = 32

// ErrWeakKey is returned for keys shorter than MinKeyBytes.
var ErrWeakKey = errors.New("signing key too short")

// IsHexString reports whether s consists only of hexadecimal digits. An
// empty string is reported as hex; callers check length separately.
func IsHexString(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

// DecodeKey turns a configured signing key into HMAC key bytes. A key of 64
// or more hex digits is decoded; anything else is used as raw bytes. Either
// way the result must hold at least MinKeyBytes.
func DecodeKey(key string) ([]byte, error) {
	if len(key) >= 2*MinKeyBytes && len(key)%2 == 0 && IsHexString(key) {
		decoded, err := hex.DecodeString(key)
		if err != nil {
			return nil, fmt.Errorf("decoding hex key: %w", err)
		}
		return decoded, nil
	}
	if len(key) < MinKeyBytes {
		return nil, fmt.Errorf("%w: need %d raw bytes or %d hex characters, got %d",
			ErrWeakKey, MinKeyBytes, 2*MinKeyBytes, len(key))
	}
	return []byte(key), nil
}
