package prolly

import "encoding/binary"

const (
	leafBody     = 1
	internalBody = 2
)

// refFlag marks a leaf value end offset whose value is a chunked value
// descriptor instead of inline data.
const refFlag = uint32(1 << 31)

// item is a single entry fed into a node. Leaf items carry a key/value,
// internal items carry the child address, the first key of the child
// subtree and the child entry count.
type item struct {
	key   []byte
	value []byte
	ref   bool

	addr  Address
	count uint64
}

// nodeBuilder encodes nodes.
type nodeBuilder struct {
	buf []byte // plain buffer
	tmp []byte // scratch buffer
}

func newNodeBuilder() *nodeBuilder {
	return &nodeBuilder{tmp: make([]byte, 4*binary.MaxVarintLen64)}
}

// Leaf encodes a leaf node holding items.
func (b *nodeBuilder) Leaf(items []item) []byte {
	b.header(0, uint64(len(items)), leafBody, len(items))

	for _, it := range items {
		b.buf = append(b.buf, it.key...)
	}
	for _, it := range items {
		b.buf = append(b.buf, it.value...)
	}

	var end uint32
	for _, it := range items {
		end += uint32(len(it.key))
		b.uint32(end)
	}
	end = 0
	for _, it := range items {
		end += uint32(len(it.value))
		if it.ref {
			b.uint32(end | refFlag)
		} else {
			b.uint32(end)
		}
	}
	return b.done()
}

// Internal encodes an internal node at level holding count entries
// beneath it. The first item's key is implied by the node's lower bound
// and not stored.
func (b *nodeBuilder) Internal(level int, count uint64, items []item) []byte {
	n := len(items) - 1
	b.header(level, count, internalBody, n)

	for _, it := range items[1:] {
		b.buf = append(b.buf, it.key...)
	}
	for _, it := range items {
		b.buf = append(b.buf, it.addr[:]...)
	}

	var end uint32
	for _, it := range items[1:] {
		end += uint32(len(it.key))
		b.uint32(end)
	}
	return b.done()
}

func (b *nodeBuilder) header(level int, count uint64, body byte, n int) {
	b.buf = b.buf[:0]

	i := binary.PutUvarint(b.tmp[0:], uint64(level))
	i += binary.PutUvarint(b.tmp[i:], count)
	b.tmp[i] = body
	i++
	i += binary.PutUvarint(b.tmp[i:], uint64(n))
	b.buf = append(b.buf, b.tmp[:i]...)
}

func (b *nodeBuilder) uint32(v uint32) {
	binary.LittleEndian.PutUint32(b.tmp, v)
	b.buf = append(b.buf, b.tmp[:4]...)
}

// done returns a copy of the encoded bytes, the buffer is reused.
func (b *nodeBuilder) done() []byte {
	return append(make([]byte, 0, len(b.buf)), b.buf...)
}
