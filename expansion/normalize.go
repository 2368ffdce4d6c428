package expansion

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Normalize lowercases a query, trims it and collapses internal whitespace.
func Normalize(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// Hash returns the hex SHA-256 of the normalized query, the expansion cache key.
func Hash(query string) string {
	sum := sha256.Sum256([]byte(Normalize(query)))
	return hex.EncodeToString(sum[:])
}
