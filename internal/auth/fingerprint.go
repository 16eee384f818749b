package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint returns a short SHA-256 prefix of the token, safe to log.
func Fingerprint(token string) string {
	token = strings.TrimSpace(token)

	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])[:12]
}
