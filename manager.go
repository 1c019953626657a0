package prolly

import (
	"context"
	"sync"

	"github.com/bsm/prolly/blockstore"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Manager creates, fetches and transforms nodes. It caches decoded nodes
// and value chunks and is safe for concurrent use.
type Manager struct {
	store blockstore.Store
	cfg   *Config
	cache *lru.Cache
	log   zerolog.Logger

	builders sync.Pool
}

// blobKey is the cache key of a value chunk.
type blobKey Address

// NewManager inits a new node manager on top of a block store.
func NewManager(store blockstore.Store, cfg *Config) (*Manager, error) {
	c := cfg.norm()
	if err := c.validate(); err != nil {
		return nil, err
	}
	if s, ok := store.(interface{ Algorithm() blockstore.HashAlgorithm }); ok && s.Algorithm() != c.Hash {
		return nil, errors.Wrapf(ErrInvalidConfig, "store addresses blocks with %v, expected %v", s.Algorithm(), c.Hash)
	}

	cache, err := lru.New(c.CacheSize)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidConfig, err.Error())
	}

	return &Manager{
		store: store,
		cfg:   c,
		cache: cache,
		log:   c.Logger.With().Str("component", "prolly").Logger(),
		builders: sync.Pool{New: func() interface{} {
			return newNodeBuilder()
		}},
	}, nil
}

// Store returns the underlying block store.
func (m *Manager) Store() blockstore.Store { return m.store }

// GetNode fetches and decodes the node at addr.
func (m *Manager) GetNode(ctx context.Context, addr Address) (*Node, error) {
	if n, ok := m.PeekNode(addr); ok {
		return n, nil
	}
	if addr.IsZero() {
		return nil, errors.Wrap(ErrInvariant, "cannot fetch the zero address")
	}
	if mt := m.cfg.Metrics; mt != nil {
		mt.CacheMisses.Inc()
	}

	raw, err := m.store.Get(ctx, addr)
	if errors.Is(err, blockstore.ErrCorrupt) {
		return nil, errors.Wrapf(ErrMalformed, "node %s: %v", addr.Short(), err)
	} else if err != nil {
		return nil, errors.Wrapf(err, "prolly: get node %s", addr.Short())
	}

	n, err := decodeNode(addr, raw, m.cfg.Compare)
	if err != nil {
		return nil, err
	}
	m.cache.Add(addr, n)
	return n, nil
}

// PeekNode returns the node at addr only if it is cached.
func (m *Manager) PeekNode(addr Address) (*Node, bool) {
	v, ok := m.cache.Get(addr)
	if !ok {
		return nil, false
	}
	if mt := m.cfg.Metrics; mt != nil {
		mt.CacheHits.Inc()
	}
	return v.(*Node), true
}

// CreateLeafNode creates a leaf from sorted, unique pairs.
func (m *Manager) CreateLeafNode(ctx context.Context, pairs []KeyValuePair) (*Node, error) {
	items := make([]item, len(pairs))
	for i, p := range pairs {
		if i > 0 && m.cfg.Compare(pairs[i-1].Key, p.Key) >= 0 {
			return nil, errors.Wrapf(ErrInvariant, "leaf keys out of order at position %d", i)
		}
		items[i] = item{key: p.Key, value: p.Value}
	}
	return m.writeLeaf(ctx, items)
}

// CreateNode creates a leaf from pairs when isLeaf is set, otherwise an
// internal node from separator keys and child addresses. Internal nodes
// derive their level and entry count from their children.
func (m *Manager) CreateNode(ctx context.Context, pairs []KeyValuePair, keys [][]byte, children []Address, isLeaf bool) (*Node, error) {
	if isLeaf {
		if len(keys) != 0 || len(children) != 0 {
			return nil, errors.Wrap(ErrInvariant, "leaf nodes cannot have children")
		}
		return m.CreateLeafNode(ctx, pairs)
	}

	if len(pairs) != 0 {
		return nil, errors.Wrap(ErrInvariant, "internal nodes cannot hold pairs")
	}
	if len(children) == 0 || len(children) != len(keys)+1 {
		return nil, errors.Wrapf(ErrInvariant, "internal node needs len(keys)+1 children, got %d keys and %d children", len(keys), len(children))
	}

	items := make([]item, len(children))
	level := -1
	var count uint64
	for i, addr := range children {
		child, err := m.GetNode(ctx, addr)
		if err != nil {
			return nil, err
		}
		if level != -1 && child.Level() != level {
			return nil, errors.Wrapf(ErrInvariant, "children at mixed levels %d and %d", level, child.Level())
		}
		level = child.Level()

		if i > 0 {
			if i > 1 && m.cfg.Compare(keys[i-2], keys[i-1]) >= 0 {
				return nil, errors.Wrapf(ErrInvariant, "separator keys out of order at position %d", i-1)
			}
			items[i].key = keys[i-1]
		}
		items[i].addr = addr
		items[i].count = child.EntryCount()
		count += child.EntryCount()
	}
	return m.writeInternal(ctx, level+1, count, items)
}

// SplitNode splits a node in two halves. Leaves keep floor(n/2) pairs on
// the left. Internal nodes partition their children at the midpoint and
// promote the separator between both halves into the returned Split.
func (m *Manager) SplitNode(ctx context.Context, n *Node) (*Node, Split, error) {
	var items []item
	var err error
	if n.IsLeaf() {
		if n.KeysLength() < 2 {
			return nil, Split{}, errors.Wrapf(ErrInvariant, "cannot split leaf with %d keys", n.KeysLength())
		}
		items = m.leafItems(n)
	} else {
		if n.KeysLength() < 1 {
			return nil, Split{}, errors.Wrap(ErrInvariant, "cannot split internal node with a single child")
		}
		if items, err = m.childItems(ctx, n, nil); err != nil {
			return nil, Split{}, err
		}
	}

	left, right, err := m.writeHalves(ctx, n.Level(), items, len(items)/2)
	if err != nil {
		return nil, Split{}, err
	}

	m.log.Debug().
		Str("node", n.Address().Short()).
		Int("level", n.Level()).
		Str("left", left.Address().Short()).
		Str("right", right.Address().Short()).
		Msg("split node")
	return left, Split{Key: cloneBytes(items[len(items)/2].key), Address: right.Address()}, nil
}

// Put stores key/value in a leaf, replacing an existing value. When the
// result reaches the target fanout it is split and the right half is
// returned as *Split.
func (m *Manager) Put(ctx context.Context, leaf *Node, key, value []byte) (*Node, *Split, error) {
	return m.putItem(ctx, leaf, item{key: key, value: value})
}

func (m *Manager) putItem(ctx context.Context, leaf *Node, it item) (*Node, *Split, error) {
	if !leaf.IsLeaf() {
		return nil, nil, errors.Wrap(ErrInvariant, "put into internal node")
	}
	if leaf.KeysLength() >= m.cfg.TargetFanout {
		return nil, nil, errors.Wrapf(ErrInvariant, "leaf %s holds %d entries, exceeding target fanout %d", leaf.Address().Short(), leaf.KeysLength(), m.cfg.TargetFanout)
	}

	items := m.leafItems(leaf)
	if i, found := leaf.Leaf().FindKeyIndex(it.key); found {
		items[i] = it
	} else {
		items = append(items, item{})
		copy(items[i+1:], items[i:])
		items[i] = it
	}

	if len(items) < m.cfg.TargetFanout {
		n, err := m.writeLeaf(ctx, items)
		return n, nil, err
	}

	mid := len(items) / 2
	left, right, err := m.writeHalves(ctx, 0, items, mid)
	if err != nil {
		return nil, nil, err
	}
	return left, &Split{Key: cloneBytes(items[mid].key), Address: right.Address()}, nil
}

// UpdateChild replaces oldChild with newChild in parent. If split is
// given, its key and address are inserted directly after newChild. The
// result is never split, even if it exceeds the target fanout.
func (m *Manager) UpdateChild(ctx context.Context, parent *Node, oldChild, newChild Address, split *Split) (*Node, error) {
	if parent.IsLeaf() {
		return nil, errors.Wrap(ErrInvariant, "update child of a leaf")
	}

	in := parent.Internal()
	i := in.ChildIndexOf(oldChild)
	if i < 0 {
		return nil, errors.Wrapf(ErrInvariant, "%s is not a child of %s", oldChild.Short(), parent.Address().Short())
	}

	prev, err := m.GetNode(ctx, oldChild)
	if err != nil {
		return nil, err
	}
	next, err := m.GetNode(ctx, newChild)
	if err != nil {
		return nil, err
	}
	count := parent.EntryCount() - prev.EntryCount() + next.EntryCount()

	items := m.childRefs(parent, nil)
	items[i].addr = newChild
	if split != nil {
		right, err := m.GetNode(ctx, split.Address)
		if err != nil {
			return nil, err
		}
		count += right.EntryCount()

		items = append(items, item{})
		copy(items[i+2:], items[i+1:])
		items[i+1] = item{key: split.Key, addr: split.Address}
	}
	return m.writeInternal(ctx, parent.Level(), count, items)
}

// FirstKey returns the smallest key beneath n.
func (m *Manager) FirstKey(ctx context.Context, n *Node) ([]byte, error) {
	return firstKey(ctx, resolving{m}, n)
}

// PeekFirstKey returns the smallest key beneath n, using cached nodes only.
func (m *Manager) PeekFirstKey(n *Node) ([]byte, bool) {
	key, err := firstKey(context.Background(), peeking{m}, n)
	return key, err == nil
}

func firstKey(ctx context.Context, src nodeSource, n *Node) ([]byte, error) {
	for !n.IsLeaf() {
		child, err := src.node(ctx, n.Internal().Address(0))
		if err != nil {
			return nil, err
		}
		n = child
	}
	if n.KeysLength() == 0 {
		return nil, errors.Wrapf(ErrInvariant, "empty leaf %s", n.Address().Short())
	}
	return n.Key(0), nil
}

// Merge concatenates two sibling nodes at the same level. For internal
// nodes the separator between both is pulled down from the right node's
// first key. Tree mutations do not call it; they repair underflow by
// re-chunking.
func (m *Manager) Merge(ctx context.Context, left, right *Node) (*Node, error) {
	items, err := m.siblingItems(ctx, left, right)
	if err != nil {
		return nil, err
	}

	n, err := m.writeItems(ctx, left.Level(), left.EntryCount()+right.EntryCount(), items)
	if err != nil {
		return nil, err
	}

	m.log.Debug().
		Str("left", left.Address().Short()).
		Str("right", right.Address().Short()).
		Str("merged", n.Address().Short()).
		Msg("merged nodes")
	return n, nil
}

// Rebalance restores the minimum fanout of two adjacent siblings after a
// deletion. If either node is underfull and both together hold fewer
// than 2*MinFanout entries they are merged and right is returned as nil.
// Otherwise entries are redistributed evenly. Nodes that already satisfy
// the minimum are returned as they are. Like Merge, it is not used by Tree.
func (m *Manager) Rebalance(ctx context.Context, left, right *Node) (*Node, *Node, error) {
	width := func(n *Node) int {
		if n.IsLeaf() {
			return n.KeysLength()
		}
		return n.KeysLength() + 1
	}
	min := m.cfg.MinFanout
	if width(left) >= min && width(right) >= min {
		return left, right, nil
	}
	if width(left)+width(right) < 2*min {
		merged, err := m.Merge(ctx, left, right)
		return merged, nil, err
	}

	items, err := m.siblingItems(ctx, left, right)
	if err != nil {
		return nil, nil, err
	}
	return m.writeHalves(ctx, left.Level(), items, len(items)/2)
}

// --------------------------------------------------------------------

func (m *Manager) leafItems(n *Node) []item {
	l := n.Leaf()
	items := make([]item, l.KeysLength(), l.KeysLength()+1)
	for i := range items {
		items[i] = l.item(i)
	}
	return items
}

// childRefs returns the children of an internal node without counts. The
// first item's key is set to low.
func (m *Manager) childRefs(n *Node, low []byte) []item {
	in := n.Internal()
	items := make([]item, in.AddressesLength(), in.AddressesLength()+1)
	for i := range items {
		if i == 0 {
			items[i].key = low
		} else {
			items[i].key = in.Key(i - 1)
		}
		items[i].addr = in.Address(i)
	}
	return items
}

// childItems returns the children of an internal node with their entry
// counts.
func (m *Manager) childItems(ctx context.Context, n *Node, low []byte) ([]item, error) {
	items := m.childRefs(n, low)
	for i := range items {
		child, err := m.GetNode(ctx, items[i].addr)
		if err != nil {
			return nil, err
		}
		items[i].count = child.EntryCount()
	}
	return items, nil
}

func (m *Manager) siblingItems(ctx context.Context, left, right *Node) ([]item, error) {
	if left.Level() != right.Level() {
		return nil, errors.Wrapf(ErrInvariant, "siblings at different levels %d and %d", left.Level(), right.Level())
	}

	if left.IsLeaf() {
		items := append(m.leafItems(left), m.leafItems(right)...)
		if l, r := left.KeysLength(), right.KeysLength(); l != 0 && r != 0 && m.cfg.Compare(left.Key(l-1), right.Key(0)) >= 0 {
			return nil, errors.Wrap(ErrInvariant, "siblings out of order")
		}
		return items, nil
	}

	sep, err := m.FirstKey(ctx, right)
	if err != nil {
		return nil, err
	}
	litems, err := m.childItems(ctx, left, nil)
	if err != nil {
		return nil, err
	}
	ritems, err := m.childItems(ctx, right, sep)
	if err != nil {
		return nil, err
	}
	return append(litems, ritems...), nil
}

// writeHalves writes items[:mid] and items[mid:] as two nodes at level.
func (m *Manager) writeHalves(ctx context.Context, level int, items []item, mid int) (*Node, *Node, error) {
	left, err := m.writeItems(ctx, level, sumCounts(items[:mid]), items[:mid])
	if err != nil {
		return nil, nil, err
	}
	right, err := m.writeItems(ctx, level, sumCounts(items[mid:]), items[mid:])
	if err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

func (m *Manager) writeItems(ctx context.Context, level int, count uint64, items []item) (*Node, error) {
	if level == 0 {
		return m.writeLeaf(ctx, items)
	}
	return m.writeInternal(ctx, level, count, items)
}

func (m *Manager) writeLeaf(ctx context.Context, items []item) (*Node, error) {
	b := m.builders.Get().(*nodeBuilder)
	raw := b.Leaf(items)
	m.builders.Put(b)
	return m.write(ctx, raw)
}

func (m *Manager) writeInternal(ctx context.Context, level int, count uint64, items []item) (*Node, error) {
	if len(items) == 0 {
		return nil, errors.Wrap(ErrInvariant, "internal node without children")
	}

	b := m.builders.Get().(*nodeBuilder)
	raw := b.Internal(level, count, items)
	m.builders.Put(b)
	return m.write(ctx, raw)
}

func (m *Manager) write(ctx context.Context, raw []byte) (*Node, error) {
	if uint64(len(raw)) >= uint64(refFlag) {
		return nil, errors.Wrapf(ErrInvariant, "encoded node of %d bytes exceeds offset range", len(raw))
	}

	addr, err := m.store.Put(ctx, raw)
	if err != nil {
		return nil, errors.Wrap(err, "prolly: put node")
	}

	n, err := decodeNode(addr, raw, m.cfg.Compare)
	if err != nil {
		return nil, err
	}
	m.cache.Add(addr, n)

	if mt := m.cfg.Metrics; mt != nil {
		mt.NodesCreated.Inc()
	}
	return n, nil
}

func sumCounts(items []item) uint64 {
	var sum uint64
	for _, it := range items {
		sum += it.count
	}
	return sum
}
