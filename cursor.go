package prolly

import "context"

// Cursor iterates over the pairs of a tree in key order. Cursors are not
// safe for concurrent use. Methods suffixed with Cached never touch the
// block store and fail when a required node or value chunk is not cached.
type Cursor struct {
	m    *Manager
	root Address

	path  path
	index int

	raw     bool // do not resolve chunked values
	value   []byte
	chunked bool
	err     error
}

func newCursor(m *Manager, root Address) *Cursor {
	return &Cursor{m: m, root: root}
}

// Valid returns true if the cursor is positioned at a pair.
func (c *Cursor) Valid() bool {
	return len(c.path) != 0 && c.index < c.path.top().KeysLength()
}

// Current returns the current pair or nil.
func (c *Cursor) Current() *KeyValuePair {
	if !c.Valid() {
		return nil
	}
	return &KeyValuePair{Key: c.Key(), Value: c.value}
}

// Key returns the current key. The returned slice must not be modified.
func (c *Cursor) Key() []byte {
	if !c.Valid() {
		return nil
	}
	return c.path.top().Key(c.index)
}

// Value returns the current value. The returned slice must not be
// modified.
func (c *Cursor) Value() []byte {
	if !c.Valid() {
		return nil
	}
	return c.value
}

// Err returns the last error encountered by one of the Cached methods.
func (c *Cursor) Err() error { return c.err }

// First positions the cursor at the smallest key.
func (c *Cursor) First(ctx context.Context) (bool, error) {
	return c.first(ctx, resolving{c.m})
}

// FirstCached is the cached-only counterpart of First.
func (c *Cursor) FirstCached() bool {
	return c.cached(c.first(context.Background(), peeking{c.m}))
}

// Seek positions the cursor at key if present, otherwise at the position
// key would be inserted at. Current may return nil when that position is
// past the end of a leaf, Next then moves on to the following pair.
func (c *Cursor) Seek(ctx context.Context, key []byte) (bool, error) {
	return c.seek(ctx, resolving{c.m}, key)
}

// SeekCached is the cached-only counterpart of Seek.
func (c *Cursor) SeekCached(key []byte) bool {
	return c.cached(c.seek(context.Background(), peeking{c.m}, key))
}

// SeekGE positions the cursor at the first key >= key. A nil key positions
// it at the first pair, whatever the comparator makes of nil.
func (c *Cursor) SeekGE(ctx context.Context, key []byte) (bool, error) {
	if key == nil {
		return c.First(ctx)
	}
	if ok, err := c.Seek(ctx, key); err != nil || ok {
		return ok, err
	}
	if len(c.path) == 0 {
		return false, nil
	}
	return c.Next(ctx)
}

// Next advances the cursor. It returns false once all pairs have been
// visited.
func (c *Cursor) Next(ctx context.Context) (bool, error) {
	return c.next(ctx, resolving{c.m})
}

// NextCached is the cached-only counterpart of Next. The cursor keeps its
// position when a required node is not cached.
func (c *Cursor) NextCached() bool {
	return c.cached(c.next(context.Background(), peeking{c.m}))
}

func (c *Cursor) cached(ok bool, err error) bool {
	c.err = err
	return ok
}

func (c *Cursor) reset() {
	c.path = nil
	c.index = 0
	c.value = nil
	c.chunked = false
}

func (c *Cursor) first(ctx context.Context, src nodeSource) (bool, error) {
	c.reset()
	if c.root.IsZero() {
		return false, nil
	}

	root, err := src.node(ctx, c.root)
	if err != nil {
		return false, err
	}
	p := path{{node: root}}
	if err := p.descendFirst(ctx, src, 0); err != nil {
		return false, err
	}
	return c.settle(ctx, src, p, 0)
}

func (c *Cursor) seek(ctx context.Context, src nodeSource, key []byte) (bool, error) {
	c.reset()
	if c.root.IsZero() {
		return false, nil
	}

	root, err := src.node(ctx, c.root)
	if err != nil {
		return false, err
	}
	p := path{{node: root}}
	if err := p.descendKey(ctx, src, key, 0); err != nil {
		return false, err
	}
	index, _ := p.top().Leaf().FindKeyIndex(key)
	return c.settle(ctx, src, p, index)
}

func (c *Cursor) next(ctx context.Context, src nodeSource) (bool, error) {
	if len(c.path) == 0 {
		return false, nil
	}

	p, index := c.path, c.index+1
	for index >= p.top().KeysLength() {
		p = p.clone()
		ok, err := p.nextNode(ctx, src)
		if err != nil {
			return false, err
		}
		if !ok {
			c.reset()
			return false, nil
		}
		index = 0
	}
	return c.settle(ctx, src, p, index)
}

// settle commits a new position after loading its value.
func (c *Cursor) settle(ctx context.Context, src nodeSource, p path, index int) (bool, error) {
	leaf := p.top().Leaf()
	if index >= leaf.KeysLength() {
		c.path, c.index, c.value, c.chunked = p, index, nil, false
		return false, nil
	}

	value, chunked := leaf.Value(index), leaf.IsChunked(index)
	if chunked && !c.raw {
		var err error
		if value, err = decodeValue(ctx, src, value, true); err != nil {
			return false, err
		}
		chunked = false
	}

	c.path, c.index, c.value, c.chunked = p, index, value, chunked
	return true, nil
}

// atStart returns true if the cursor stands at the first pair beneath
// the node at the given level of its path.
func (c *Cursor) atStart(level int) bool {
	if c.index != 0 {
		return false
	}
	for d := c.path.at(level) + 1; d < len(c.path); d++ {
		if c.path[d-1].node.Internal().Address(0) != c.path[d].node.Address() {
			return false
		}
	}
	return true
}

// skip moves the cursor past the subtree of the node at the given level.
func (c *Cursor) skip(ctx context.Context, level int) (bool, error) {
	src := resolving{c.m}
	p := c.path[:c.path.at(level)+1].clone()

	ok, err := p.nextNode(ctx, src)
	if err != nil {
		return false, err
	}
	if !ok {
		c.reset()
		return false, nil
	}
	if err := p.descendFirst(ctx, src, 0); err != nil {
		return false, err
	}
	return c.settle(ctx, src, p, 0)
}
