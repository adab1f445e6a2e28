// Package field builds the Aleo literal values passed as transaction inputs.
package field

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/gofrs/uuid/v5"
)

const (
	suffix       = "field"
	handlePrefix = "anon_"
	handleLen    = 5
)

// NewID returns a fresh field literal derived from a UUIDv7 (time-ordered, random tail).
// 128 bits always fit below the field modulus.
func NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return new(big.Int).SetBytes(id.Bytes()).String() + suffix, nil
}

// ContentHash returns a stable, non-cryptographic fingerprint of text as a field literal.
func ContentHash(text string) string {
	return strconv.FormatUint(xxhash.Sum64String(text), 10) + suffix
}

// U64 formats n as a u64 literal.
func U64(n uint64) string { return strconv.FormatUint(n, 10) + "u64" }

// Strip removes the field suffix, if present.
func Strip(s string) string { return strings.TrimSuffix(s, suffix) }

// AnonHandle derives the display handle for an identity's user id.
func AnonHandle(userID string) string {
	s := Strip(userID)
	if s == "" {
		return handlePrefix + "unknown"
	}
	if len(s) > handleLen {
		s = s[len(s)-handleLen:]
	}
	return handlePrefix + s
}
