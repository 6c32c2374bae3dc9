package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashCode hashes a code before it is used as a storage key, so a leaked
// store dump does not reveal redeemable codes.
func HashCode(code string) string {
	hasher := sha256.New()
	hasher.Write([]byte(code))
	return hex.EncodeToString(hasher.Sum(nil))
}
