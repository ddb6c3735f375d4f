// Package secret hashes beneficiary secret answers. The digest matches what the
// ledger contract computes when it verifies an answer on-chain.
package secret

import (
	"crypto/subtle"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// Normalize trims surrounding whitespace and lower-cases the answer.
func Normalize(answer string) string {
	return strings.ToLower(strings.TrimSpace(answer))
}

// Hash returns the 0x-prefixed keccak256 digest of the normalized answer.
func Hash(answer string) string {
	return crypto.Keccak256Hash([]byte(Normalize(answer))).Hex()
}

// Matches reports whether answer hashes to stored. Hex case is ignored.
func Matches(answer, stored string) bool {
	if stored == "" {
		return false
	}
	got := strings.ToLower(Hash(answer))
	want := strings.ToLower(strings.TrimSpace(stored))
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
