package runbuilder

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/buffquant/simrun/internal/codec"
)

// InputsHash computes the SHA-256 hex digest of the canonical-JSON bytes of
// a normalized request, per spec.md §3.
func InputsHash(n Normalized) (string, error) {
	b, err := codec.CanonicalJSON(n)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
