package prolly

import (
	"bytes"
	"errors"

	"github.com/bsm/prolly/blockstore"
)

var (
	// ErrNotFound is returned when a key is absent from a tree. Missing
	// blocks surface as blockstore.ErrNotFound instead.
	ErrNotFound = errors.New("prolly: not found")
	// ErrMalformed is returned when encoded node bytes fail validation.
	ErrMalformed = errors.New("prolly: malformed node")
	// ErrInvariant is returned when a structural invariant is violated.
	ErrInvariant = errors.New("prolly: invariant violation")
	// ErrNotResident is returned by cached-only access when a node or
	// value chunk is not in the cache.
	ErrNotResident = errors.New("prolly: not resident")
	// ErrConflict is returned by Merge when a conflict cannot be resolved.
	ErrConflict = errors.New("prolly: merge conflict")
	// ErrInvalidConfig is returned for bad configuration values.
	ErrInvalidConfig = errors.New("prolly: invalid config")
)

// Address is a content address, see blockstore.Address.
type Address = blockstore.Address

// Comparator orders keys. It returns a negative number when a < b, zero
// when a == b and a positive number when a > b.
type Comparator func(a, b []byte) int

// KeyValuePair is a key and its value.
type KeyValuePair struct {
	Key   []byte
	Value []byte
}

// Split describes the right half of a node split. Key is the first key
// of the right node.
type Split struct {
	Key     []byte
	Address Address
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append(make([]byte, 0, len(b)), b...)
}

var defaultCompare Comparator = bytes.Compare
