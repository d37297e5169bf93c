package wire

import "crypto/sha256"

// DoubleHashH computes sha256(sha256(b)) and returns it as a Hash. Every
// txid and block hash in the system is a double-SHA256 over the canonical
// encoding of the object, never over any in-memory or textual form.
func DoubleHashH(b []byte) Hash {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	return Hash(second)
}

// SingleHashH computes sha256(b). Used where the spec calls for a single
// round, e.g. as an input to hash160.
func SingleHashH(b []byte) [32]byte {
	return sha256.Sum256(b)
}
