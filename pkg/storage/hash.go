package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

func hashSecret(secret string) string {
	trimmed := strings.TrimSpace(secret)
	sum := sha256.Sum256([]byte(trimmed))
	return hex.EncodeToString(sum[:])
}

func keyPrefix(secret string) string {
	secret = strings.TrimSpace(secret)
	if len(secret) <= 8 {
		return secret
	}
	return secret[:8]
}
