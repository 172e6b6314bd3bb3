package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// We don't want to keep ingest tokens as plain text in the config or compare
// them byte by byte against the wire value.
// Since we use the output of this function to authorize a logger
// we cannot use salts here.
// In general just hashing is not enough, but since the tokens are
// generated random strings this seems to be reasonable solution.
func HashToken(arg string) string {
	hasher := sha256.New()
	hasher.Write([]byte(arg))
	return hex.EncodeToString(hasher.Sum(nil))
}
