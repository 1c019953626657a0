package prolly

import (
	"context"

	"github.com/bsm/prolly/blockstore"
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

// chunkedValue describes a value stored as a sequence of chunks.
type chunkedValue struct {
	_      struct{} `cbor:",toarray"`
	Size   uint64
	Chunks [][]byte
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	cborEncMode = em
}

// encodeValue returns the stored form of value. Values beyond the inline
// limit of the chunking policy are written as chunks and replaced by a
// descriptor.
func (m *Manager) encodeValue(ctx context.Context, value []byte) ([]byte, bool, error) {
	policy := m.cfg.ValueChunking
	if !policy.ShouldChunk(len(value)) {
		return value, false, nil
	}

	chunks, err := policy.Split(value)
	if err != nil {
		return nil, false, err
	}

	desc := chunkedValue{Size: uint64(len(value)), Chunks: make([][]byte, 0, len(chunks))}
	for _, chunk := range chunks {
		addr, err := m.store.Put(ctx, chunk)
		if err != nil {
			return nil, false, errors.Wrap(err, "prolly: put chunk")
		}
		m.cache.Add(blobKey(addr), cloneBytes(chunk))
		desc.Chunks = append(desc.Chunks, append([]byte(nil), addr[:]...))
	}

	data, err := cborEncMode.Marshal(desc)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// decodeValue returns the plain value of a stored value, reassembling
// chunked values.
func decodeValue(ctx context.Context, src nodeSource, data []byte, chunked bool) ([]byte, error) {
	if !chunked {
		return data, nil
	}

	desc, err := parseChunkedValue(data)
	if err != nil {
		return nil, err
	}

	value := make([]byte, 0, int(desc.Size))
	for _, addr := range desc.addrs() {
		chunk, err := src.blob(ctx, addr)
		if err != nil {
			return nil, err
		}
		value = append(value, chunk...)
	}
	if uint64(len(value)) != desc.Size {
		return nil, errors.Wrapf(ErrMalformed, "chunked value of %d bytes, expected %d", len(value), desc.Size)
	}
	return value, nil
}

func parseChunkedValue(data []byte) (*chunkedValue, error) {
	desc := new(chunkedValue)
	if err := cbor.Unmarshal(data, desc); err != nil {
		return nil, errors.Wrapf(ErrMalformed, "chunked value: %v", err)
	}
	for _, c := range desc.Chunks {
		if len(c) != AddressSize {
			return nil, errors.Wrapf(ErrMalformed, "chunked value: bad chunk address length %d", len(c))
		}
	}
	return desc, nil
}

func (v *chunkedValue) addrs() []Address {
	addrs := make([]Address, len(v.Chunks))
	for i, c := range v.Chunks {
		copy(addrs[i][:], c)
	}
	return addrs
}

func (m *Manager) getBlob(ctx context.Context, addr Address) ([]byte, error) {
	if b, ok := m.peekBlob(addr); ok {
		return b, nil
	}
	if mt := m.cfg.Metrics; mt != nil {
		mt.CacheMisses.Inc()
	}

	b, err := m.store.Get(ctx, addr)
	if errors.Is(err, blockstore.ErrCorrupt) {
		return nil, errors.Wrapf(ErrMalformed, "chunk %s: %v", addr.Short(), err)
	} else if err != nil {
		return nil, errors.Wrapf(err, "prolly: get chunk %s", addr.Short())
	}
	m.cache.Add(blobKey(addr), b)
	return b, nil
}

func (m *Manager) peekBlob(addr Address) ([]byte, bool) {
	v, ok := m.cache.Get(blobKey(addr))
	if !ok {
		return nil, false
	}
	if mt := m.cfg.Metrics; mt != nil {
		mt.CacheHits.Inc()
	}
	return v.([]byte), true
}
