package rules

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashPattern computes the fast-path lookup key for exact rules: SHA-256
// over the light-normalized pattern. The same function is applied to the
// normalized description at lookup time, so write and read always agree.
func HashPattern(pattern string) string {
	sum := sha256.Sum256([]byte(NormalizeLight(pattern)))
	return hex.EncodeToString(sum[:])
}
