package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// GenerateProfileToken returns a 32-char hex token for a student's public
// profile link. 16 random bytes, same entropy the rest of the platform
// expects from these tokens.
func GenerateProfileToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
