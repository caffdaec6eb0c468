package common

import "crypto/sha512"

// Sha512Half returns the first 32 bytes of the sha512 digest of the
// concatenation of parts.
func Sha512Half(parts ...[]byte) [32]byte {
	h := sha512.New()
	for _, p := range parts {
		h.Write(p)
	}
	var sum [sha512.Size]byte
	h.Sum(sum[:0])

	var result [32]byte
	copy(result[:], sum[:32])
	return result
}
