package evidence

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/dativo-io/safeops/internal/cryptoutil"
)

const signaturePrefix = "hmac-sha256:"

// Signer signs serialized frame records with HMAC-SHA256.
type Signer struct {
	key []byte
}

// NewSigner builds a signer from a configured key (see cryptoutil.DecodeKey).
func NewSigner(key string) (*Signer, error) {
	keyBytes, err := cryptoutil.DecodeKey(key)
	if err != nil {
		return nil, fmt.Errorf("evidence signing key: %w", err)
	}
	return &Signer{key: keyBytes}, nil
}

func (s *Signer) mac(data []byte) []byte {
	h := hmac.New(sha256.New, s.key)
	h.Write(data)
	return h.Sum(nil)
}

// Sign returns "hmac-sha256:<hex digest>" for data.
func (s *Signer) Sign(data []byte) (string, error) {
	return signaturePrefix + hex.EncodeToString(s.mac(data)), nil
}

// Verify reports whether signature was produced by this key over data.
// Malformed signatures are simply invalid.
func (s *Signer) Verify(data []byte, signature string) bool {
	digest, ok := strings.CutPrefix(signature, signaturePrefix)
	if !ok {
		return false
	}
	got, err := hex.DecodeString(digest)
	if err != nil {
		return false
	}
	return hmac.Equal(s.mac(data), got)
}
