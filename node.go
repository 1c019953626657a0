package prolly

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/bsm/prolly/blockstore"
	"github.com/pkg/errors"
)

// Node is a decoded view over the encoded bytes of a tree node. Accessors
// slice the encoded bytes without copying; callers must not modify the
// returned slices.
type Node struct {
	addr Address
	raw  []byte
	cmp  Comparator

	level int
	count uint64
	n     int // number of keys

	keyBase  int // start of the key region
	bodyBase int // start of the value or address region
	endBase  int // start of the key end table
}

func decodeNode(addr Address, raw []byte, cmp Comparator) (*Node, error) {
	var pos int
	uvarint := func() (uint64, error) {
		u, n := binary.Uvarint(raw[pos:])
		if n <= 0 {
			return 0, errors.Wrapf(ErrMalformed, "node %s: bad header", addr.Short())
		}
		pos += n
		return u, nil
	}

	level, err := uvarint()
	if err != nil {
		return nil, err
	}
	count, err := uvarint()
	if err != nil {
		return nil, err
	}
	if pos >= len(raw) {
		return nil, errors.Wrapf(ErrMalformed, "node %s: truncated header", addr.Short())
	}
	body := raw[pos]
	pos++
	n64, err := uvarint()
	if err != nil {
		return nil, err
	}
	if n64 > uint64(len(raw)) || level > 64 {
		return nil, errors.Wrapf(ErrMalformed, "node %s: bad header", addr.Short())
	}

	nd := &Node{
		addr:    addr,
		raw:     raw,
		cmp:     cmp,
		level:   int(level),
		count:   count,
		n:       int(n64),
		keyBase: pos,
	}

	switch {
	case body == leafBody && level == 0:
		if count != n64 {
			return nil, errors.Wrapf(ErrMalformed, "node %s: leaf entry count %d != %d keys", addr.Short(), count, n64)
		}
		nd.endBase = len(raw) - 8*nd.n
	case body == internalBody && level != 0:
		nd.endBase = len(raw) - 4*nd.n
	default:
		return nil, errors.Wrapf(ErrMalformed, "node %s: body type %d at level %d", addr.Short(), body, level)
	}
	if nd.endBase < nd.keyBase {
		return nil, errors.Wrapf(ErrMalformed, "node %s: truncated offset tables", addr.Short())
	}

	if err := nd.validate(); err != nil {
		return nil, err
	}
	return nd, nil
}

func (n *Node) validate() error {
	var prev uint32
	for i := 0; i < n.n; i++ {
		end := n.keyEnd(i)
		if end < prev {
			return errors.Wrapf(ErrMalformed, "node %s: key offsets out of order", n.addr.Short())
		}
		prev = end
	}
	n.bodyBase = n.keyBase + int(prev)

	var bodyLen int
	if n.level == 0 {
		prev = 0
		for i := 0; i < n.n; i++ {
			end := n.valueEnd(i) &^ refFlag
			if end < prev {
				return errors.Wrapf(ErrMalformed, "node %s: value offsets out of order", n.addr.Short())
			}
			prev = end
		}
		bodyLen = int(prev)
	} else {
		bodyLen = (n.n + 1) * AddressSize
	}

	if n.bodyBase+bodyLen != n.endBase {
		return errors.Wrapf(ErrMalformed, "node %s: region lengths inconsistent with size %d", n.addr.Short(), len(n.raw))
	}
	return nil
}

// AddressSize is the byte width of an Address.
const AddressSize = blockstore.AddressSize

func (n *Node) keyEnd(i int) uint32 {
	p := n.endBase + 4*i
	return binary.LittleEndian.Uint32(n.raw[p : p+4])
}

func (n *Node) valueEnd(i int) uint32 {
	p := n.endBase + 4*n.n + 4*i
	return binary.LittleEndian.Uint32(n.raw[p : p+4])
}

// Address returns the node address.
func (n *Node) Address() Address { return n.addr }

// Bytes returns the encoded node.
func (n *Node) Bytes() []byte { return n.raw }

// Level returns the node level, leaves are at level 0.
func (n *Node) Level() int { return n.level }

// IsLeaf returns true for leaf nodes.
func (n *Node) IsLeaf() bool { return n.level == 0 }

// EntryCount returns the number of key/value pairs stored beneath
// the node.
func (n *Node) EntryCount() uint64 { return n.count }

// KeysLength returns the number of keys stored in the node.
func (n *Node) KeysLength() int { return n.n }

// Key returns the i-th key.
func (n *Node) Key(i int) []byte {
	var min uint32
	if i > 0 {
		min = n.keyEnd(i - 1)
	}
	max := n.keyEnd(i)
	return n.raw[n.keyBase+int(min) : n.keyBase+int(max)]
}

// Leaf returns the leaf interpretation of the node.
func (n *Node) Leaf() Leaf { return Leaf{n} }

// Internal returns the internal interpretation of the node.
func (n *Node) Internal() Internal { return Internal{n} }

// --------------------------------------------------------------------

// Leaf is the leaf view of a node.
type Leaf struct{ *Node }

// Value returns the i-th value. For chunked values the encoded
// descriptor is returned, see IsChunked.
func (l Leaf) Value(i int) []byte {
	var min uint32
	if i > 0 {
		min = l.valueEnd(i-1) &^ refFlag
	}
	max := l.valueEnd(i) &^ refFlag
	return l.raw[l.bodyBase+int(min) : l.bodyBase+int(max)]
}

// IsChunked returns true if the i-th value is stored in chunks.
func (l Leaf) IsChunked(i int) bool {
	return l.valueEnd(i)&refFlag != 0
}

// Pair returns the i-th key/value pair.
func (l Leaf) Pair(i int) KeyValuePair {
	return KeyValuePair{Key: l.Key(i), Value: l.Value(i)}
}

// Pairs returns all pairs.
func (l Leaf) Pairs() []KeyValuePair {
	pairs := make([]KeyValuePair, l.n)
	for i := range pairs {
		pairs[i] = l.Pair(i)
	}
	return pairs
}

// FindKeyIndex returns the index of key and true if present, or the
// index at which key would be inserted and false.
func (l Leaf) FindKeyIndex(key []byte) (int, bool) {
	i := sort.Search(l.n, func(i int) bool {
		return l.cmp(l.Key(i), key) >= 0
	})
	return i, i < l.n && l.cmp(l.Key(i), key) == 0
}

func (l Leaf) item(i int) item {
	return item{key: l.Key(i), value: l.Value(i), ref: l.IsChunked(i)}
}

// --------------------------------------------------------------------

// Internal is the internal view of a node.
type Internal struct{ *Node }

// AddressesLength returns the number of child addresses.
func (n Internal) AddressesLength() int { return n.n + 1 }

// Address returns the i-th child address.
func (n Internal) Address(i int) Address {
	var a Address
	p := n.bodyBase + i*AddressSize
	copy(a[:], n.raw[p:p+AddressSize])
	return a
}

// Addresses returns all child addresses.
func (n Internal) Addresses() []Address {
	addrs := make([]Address, n.n+1)
	for i := range addrs {
		addrs[i] = n.Address(i)
	}
	return addrs
}

// FindChildIndex returns the index of the child covering key.
func (n Internal) FindChildIndex(key []byte) int {
	return sort.Search(n.n, func(i int) bool {
		return n.cmp(n.Key(i), key) > 0
	})
}

// ChildIndexOf returns the index of the child with the given address, or
// -1 if it is not a child of the node.
func (n Internal) ChildIndexOf(addr Address) int {
	for i := 0; i <= n.n; i++ {
		p := n.bodyBase + i*AddressSize
		if bytes.Equal(n.raw[p:p+AddressSize], addr[:]) {
			return i
		}
	}
	return -1
}
