package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// VisitorID pseudonymizes a visitor. The raw IP never leaves this function.
func VisitorID(ip, userAgent, salt string) string {
	sum := sha256.Sum256([]byte(ip + userAgent + salt))
	return hex.EncodeToString(sum[:])[:16]
}
