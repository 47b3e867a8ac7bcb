package safetypay

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/shopspring/decimal"
)

// Sign concatenates fields in order without separators, appends the signature key and
// returns the lowercase hex SHA-256 digest. Missing fields are passed as empty strings.
func Sign(fields []string, key string) string {
	h := sha256.New()
	for _, f := range fields {
		h.Write([]byte(f))
	}
	h.Write([]byte(key))
	return hex.EncodeToString(h.Sum(nil))
}

// Verify recomputes the signature over fields and compares it in constant time
func Verify(fields []string, signature, key string) bool {
	if signature == "" {
		return false
	}
	expected := Sign(fields, key)
	given := strings.ToLower(strings.TrimSpace(signature))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(given)) == 1
}

// formatAmount renders an amount the way the gateway signs it
func formatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
