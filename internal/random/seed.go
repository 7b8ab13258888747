// Package random provides cryptographic seed generation for dice sources.
//
// Every roll gets a fresh crypto/rand seed unless a caller supplies one to
// replay a roll deterministically.
package random

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
)

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}

	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// ResolveSeed returns requested when non-nil, otherwise a fresh seed from gen.
func ResolveSeed(requested *int64, gen func() (int64, error)) (int64, error) {
	if requested != nil {
		return *requested, nil
	}
	if gen == nil {
		gen = NewSeed
	}
	return gen()
}
