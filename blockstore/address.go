package blockstore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"
	"lukechampine.com/blake3"
)

// AddressSize is the byte width of an Address.
const AddressSize = 32

// Address is the content hash of a stored block. The zero value is
// reserved and never produced by a hash.
type Address [AddressSize]byte

// ParseAddress parses a hex encoded address.
func ParseAddress(s string) (Address, error) {
	var a Address
	b, err := hex.DecodeString(s)
	if err != nil {
		return a, fmt.Errorf("blockstore: bad address %q: %v", s, err)
	}
	if len(b) != AddressSize {
		return a, fmt.Errorf("blockstore: bad address %q: expected %d bytes, got %d", s, AddressSize, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// IsZero returns true for the zero address.
func (a Address) IsZero() bool { return a == Address{} }

// String returns the hex representation.
func (a Address) String() string { return hex.EncodeToString(a[:]) }

// Short returns an abbreviated hex representation, for logs.
func (a Address) Short() string { return hex.EncodeToString(a[:6]) }

// --------------------------------------------------------------------

// HashAlgorithm selects the function used to derive addresses.
type HashAlgorithm byte

// Supported hash algorithms.
const (
	HashBlake3 HashAlgorithm = iota
	HashSHA256
	HashSHA3_256
	unknownHash
)

// ParseHashAlgorithm parses an algorithm name. The empty string and
// "primary-fast-hash" select the default, HashBlake3.
func ParseHashAlgorithm(s string) (HashAlgorithm, error) {
	switch s {
	case "", "blake3", "primary-fast-hash":
		return HashBlake3, nil
	case "sha2-256", "sha256":
		return HashSHA256, nil
	case "sha3-256":
		return HashSHA3_256, nil
	}
	return unknownHash, fmt.Errorf("blockstore: unknown hash algorithm %q", s)
}

// IsValid returns true for supported algorithms.
func (h HashAlgorithm) IsValid() bool { return h < unknownHash }

// String returns the canonical name.
func (h HashAlgorithm) String() string {
	switch h {
	case HashBlake3:
		return "blake3"
	case HashSHA256:
		return "sha2-256"
	case HashSHA3_256:
		return "sha3-256"
	}
	return fmt.Sprintf("HashAlgorithm(%d)", byte(h))
}

// Sum computes the address of data.
func (h HashAlgorithm) Sum(data []byte) Address {
	switch h {
	case HashSHA256:
		return sha256.Sum256(data)
	case HashSHA3_256:
		return sha3.Sum256(data)
	default:
		return blake3.Sum256(data)
	}
}
