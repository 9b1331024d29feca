package reusekey

import (
	"crypto/sha256"

	"github.com/SakenW/transhub/internal/uida"
)

// BuildReuseHash computes the TM fingerprint:
// SHA256(namespace + "\n" + canonical(reducedKeys) + "\n" + canonical(sourceFields)).
// Both maps are serialized with sorted keys and no separators, so identical
// normalized content hashes identically regardless of input ordering.
func BuildReuseHash(namespace string, reducedKeys, sourceFields map[string]any) ([32]byte, error) {
	var hash [32]byte
	kb, err := uida.CanonicalJSON(reducedKeys)
	if err != nil {
		return hash, err
	}
	sb, err := uida.CanonicalJSON(sourceFields)
	if err != nil {
		return hash, err
	}
	h := sha256.New()
	h.Write([]byte(namespace))
	h.Write([]byte{'\n'})
	h.Write(kb)
	h.Write([]byte{'\n'})
	h.Write(sb)
	copy(hash[:], h.Sum(nil))
	return hash, nil
}
