package blockstore

import (
	"context"
	"errors"
	"time"

	"github.com/golang/snappy"
	"github.com/rs/zerolog"
)

var (
	// ErrNotFound is returned when an address is absent from a store.
	ErrNotFound = errors.New("blockstore: not found")
	// ErrCorrupt is returned when stored bytes cannot be decoded or
	// fail verification against their address.
	ErrCorrupt = errors.New("blockstore: corrupt block")
	// ErrReadOnly is returned by writes to read-only backends.
	ErrReadOnly = errors.New("blockstore: read-only")
	// ErrClosed is returned by operations on closed backends.
	ErrClosed = errors.New("blockstore: is closed")
)

const (
	blockNoCompression     = 0
	blockSnappyCompression = 1
)

// Store is the content-addressed contract required by the tree.
// Implementations must support concurrent Get and idempotent concurrent
// Put of the same content.
type Store interface {
	// Get returns the bytes stored at addr or ErrNotFound.
	Get(ctx context.Context, addr Address) ([]byte, error)
	// Put stores data and returns its address.
	Put(ctx context.Context, data []byte) (Address, error)
}

// KV is the raw key/value backend a Blocks store is built on.
type KV interface {
	// Get returns the value for key or ErrNotFound.
	Get(key []byte) ([]byte, error)
	// Set stores a value.
	Set(key, value []byte) error
	// Close releases the backend.
	Close() error
}

// --------------------------------------------------------------------

// Compression is the compression codec
type Compression byte

func (c Compression) isValid() bool {
	return c >= SnappyCompression && c < unknownCompression
}

// Supported compression codecs
const (
	SnappyCompression Compression = iota
	NoCompression
	unknownCompression
)

// Options configure a Blocks store.
type Options struct {
	// Hash selects the address algorithm.
	// Default: HashBlake3.
	Hash HashAlgorithm

	// The compression codec to use.
	// Default: SnappyCompression.
	Compression Compression

	// Verify re-hashes every block on Get and fails with ErrCorrupt
	// on mismatch.
	Verify bool

	// Metrics, if set, are updated on every operation.
	Metrics *Metrics

	// Logger receives debug output.
	// Default: zerolog.Nop().
	Logger *zerolog.Logger
}

func (o *Options) norm() *Options {
	var oo Options
	if o != nil {
		oo = *o
	}

	if !oo.Hash.IsValid() {
		oo.Hash = HashBlake3
	}
	if !oo.Compression.isValid() {
		oo.Compression = SnappyCompression
	}
	if oo.Logger == nil {
		nop := zerolog.Nop()
		oo.Logger = &nop
	}

	return &oo
}

// Blocks is a content-addressed Store on top of a KV backend.
type Blocks struct {
	kv KV
	o  *Options
}

// New wraps a KV backend and returns a content-addressed store.
func New(kv KV, o *Options) *Blocks {
	return &Blocks{kv: kv, o: o.norm()}
}

// NewMemory is a shortcut for New(NewMemoryKV(), o).
func NewMemory(o *Options) *Blocks {
	return New(NewMemoryKV(), o)
}

// Algorithm returns the hash algorithm used to derive addresses.
func (b *Blocks) Algorithm() HashAlgorithm { return b.o.Hash }

// Get implements Store.
func (b *Blocks) Get(ctx context.Context, addr Address) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	raw, err := b.kv.Get(addr[:])
	if m := b.o.Metrics; m != nil {
		m.Gets.Inc()
		m.GetDuration.Observe(time.Since(start).Seconds())
		if errors.Is(err, ErrNotFound) {
			m.Misses.Inc()
		}
	}
	if err != nil {
		return nil, err
	}

	data, err := decodeBlock(raw)
	if err != nil {
		return nil, err
	}
	if b.o.Verify && b.o.Hash.Sum(data) != addr {
		b.o.Logger.Warn().Str("addr", addr.Short()).Msg("block failed verification")
		return nil, ErrCorrupt
	}
	return data, nil
}

// Put implements Store.
func (b *Blocks) Put(ctx context.Context, data []byte) (Address, error) {
	if err := ctx.Err(); err != nil {
		return Address{}, err
	}

	addr := b.o.Hash.Sum(data)
	block := encodeBlock(data, b.o.Compression)
	if err := b.kv.Set(addr[:], block); err != nil {
		return Address{}, err
	}

	if m := b.o.Metrics; m != nil {
		m.Puts.Inc()
		m.BytesWritten.Add(float64(len(block)))
	}
	return addr, nil
}

// Close closes the underlying backend.
func (b *Blocks) Close() error {
	return b.kv.Close()
}

func encodeBlock(data []byte, c Compression) []byte {
	if c == SnappyCompression {
		snp := snappy.Encode(nil, data)
		if len(snp) < len(data)-len(data)/4 {
			return append(snp, blockSnappyCompression)
		}
	}

	block := make([]byte, len(data)+1)
	copy(block, data)
	block[len(data)] = blockNoCompression
	return block
}

func decodeBlock(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, ErrCorrupt
	}

	switch cBitPos := len(raw) - 1; raw[cBitPos] {
	case blockNoCompression:
		return raw[:cBitPos], nil
	case blockSnappyCompression:
		plain, err := snappy.Decode(nil, raw[:cBitPos])
		if err != nil {
			return nil, ErrCorrupt
		}
		return plain, nil
	}
	return nil, ErrCorrupt
}
