package util

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
)

// CryptoRandomBytes returns n bytes from crypto/rand
func CryptoRandomBytes(n int64) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// CryptoRandomURLString returns n random bytes encoded as unpadded URL-safe
// base64, so the result only contains [A-Za-z0-9-_].
func CryptoRandomURLString(n int64) (string, error) {
	buf, err := CryptoRandomBytes(n)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// SHA256Hex returns the lowercase hex SHA-256 digest of s. Only use it on
// high-entropy values such as generated tokens; it is unsalted.
func SHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// SecureCompare reports whether a and b are equal in time independent of
// where they first differ. Empty strings never match.
func SecureCompare(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
