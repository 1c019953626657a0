package prolly

import (
	"context"

	farm "github.com/dgryski/go-farm"
	"github.com/pkg/errors"
)

// Edit is a single mutation applied by Tree.Apply.
type Edit struct {
	Key    []byte
	Value  []byte
	Delete bool
}

// edit is an Edit with its value in stored form.
type edit struct {
	key   []byte
	value []byte
	ref   bool
	del   bool
}

// isBoundary returns true if a node holding size items, the last of
// which has key, must be closed.
func (m *Manager) isBoundary(level int, key []byte, size int) bool {
	if size >= m.cfg.TargetFanout-1 {
		return true
	}
	if size < m.cfg.MinFanout {
		return false
	}
	return farm.Hash64WithSeed(key, uint64(level))%m.cfg.pattern() == 0
}

// chunker groups a sequence of items at one level into nodes.
type chunker struct {
	m     *Manager
	level int

	buf []item // items of the open node
	out []item // emitted nodes, as items of the parent level
}

func newChunker(m *Manager, level int) *chunker {
	return &chunker{m: m, level: level}
}

func (c *chunker) add(ctx context.Context, items ...item) error {
	for _, it := range items {
		c.buf = append(c.buf, it)
		if c.m.isBoundary(c.level, it.key, len(c.buf)) {
			if err := c.flush(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *chunker) flush(ctx context.Context) error {
	if len(c.buf) == 0 {
		return nil
	}

	count := sumCounts(c.buf)
	n, err := c.m.writeItems(ctx, c.level, count, c.buf)
	if err != nil {
		return err
	}
	if c.level == 0 {
		count = n.EntryCount()
	}

	c.out = append(c.out, item{key: c.buf[0].key, addr: n.Address(), count: count})
	c.buf = c.buf[:0:0]
	return nil
}

// --------------------------------------------------------------------

// build creates a new tree from sorted, unique items.
func (m *Manager) build(ctx context.Context, items []item) (Address, error) {
	c := newChunker(m, 0)
	if err := c.add(ctx, items...); err != nil {
		return Address{}, err
	}
	if err := c.flush(ctx); err != nil {
		return Address{}, err
	}
	return m.finishRoot(ctx, 1, c.out)
}

// applyEdits applies a batch of staged edits, sorted by key, to the tree
// at root. Nothing is written unless every edit could be staged.
func (m *Manager) applyEdits(ctx context.Context, root Address, edits []edit) (Address, error) {
	for _, e := range edits {
		var err error
		if root, err = m.apply(ctx, root, e); err != nil {
			return Address{}, errors.Wrapf(err, "prolly: apply %q", e.key)
		}
	}
	return root, nil
}

// apply applies a single edit to the tree at root and returns the new
// root.
func (m *Manager) apply(ctx context.Context, root Address, e edit) (Address, error) {
	src := resolving{m}
	if root.IsZero() {
		if e.del {
			return root, nil
		}
		return m.build(ctx, []item{{key: e.key, value: e.value, ref: e.ref}})
	}

	rootNode, err := m.GetNode(ctx, root)
	if err != nil {
		return Address{}, err
	}
	p := path{{node: rootNode}}
	if err := p.descendKey(ctx, src, e.key, 0); err != nil {
		return Address{}, err
	}

	leaf := p.top().Leaf()
	index, found := leaf.FindKeyIndex(e.key)
	switch {
	case e.del && !found:
		return root, nil
	case !e.del && found && leaf.IsChunked(index) == e.ref && string(leaf.Value(index)) == string(e.value):
		return root, nil
	case !e.del && found:
		return m.replace(ctx, p, item{key: e.key, value: e.value, ref: e.ref})
	}

	var insert []item
	if !e.del {
		insert = []item{{key: e.key, value: e.value, ref: e.ref}}
	}
	replaced := 0
	if found {
		replaced = 1
	}

	for d := len(p) - 1; ; d-- {
		out, consumed, err := m.rechunk(ctx, src, p[:d+1].clone(), index, replaced, insert)
		if err != nil {
			return Address{}, err
		}
		if d == 0 {
			return m.finishRoot(ctx, p[0].node.Level()+1, out)
		}

		index = p[d-1].node.Internal().ChildIndexOf(p[d].node.Address())
		replaced = consumed
		insert = out
	}
}

// replace swaps the value of an existing key. The shape of the tree is
// unchanged, so the new leaf is propagated through the ancestors with
// UpdateChild.
func (m *Manager) replace(ctx context.Context, p path, it item) (Address, error) {
	leaf, split, err := m.putItem(ctx, p.top(), it)
	if err != nil {
		return Address{}, err
	}
	if split != nil {
		return Address{}, errors.Wrap(ErrInvariant, "value replacement split a leaf")
	}

	next := leaf.Address()
	for d := len(p) - 2; d >= 0; d-- {
		parent, err := m.UpdateChild(ctx, p[d].node, p[d+1].node.Address(), next, nil)
		if err != nil {
			return Address{}, err
		}
		next = parent.Address()
	}
	return next, nil
}

// rechunk replaces the replaced items starting at index of the top node
// of lp with insert and re-chunks the level until the new node boundaries
// line up with existing ones. It returns the new nodes as items of the
// parent level and the number of old nodes they replace.
func (m *Manager) rechunk(ctx context.Context, src nodeSource, lp path, index, replaced int, insert []item) ([]item, int, error) {
	level := lp.top().Level()
	c := newChunker(m, level)

	items, err := m.levelItems(ctx, src, lp)
	if err != nil {
		return nil, 0, err
	}
	if err := c.add(ctx, items[:index]...); err != nil {
		return nil, 0, err
	}
	if err := c.add(ctx, insert...); err != nil {
		return nil, 0, err
	}

	consumed := 1
	pos := index
	for pos+replaced > len(items) {
		replaced -= len(items) - pos
		ok, err := lp.nextNode(ctx, src)
		if err != nil {
			return nil, 0, err
		}
		if !ok {
			return nil, 0, errors.Wrapf(ErrInvariant, "replaced range exceeds level %d", level)
		}
		if items, err = m.levelItems(ctx, src, lp); err != nil {
			return nil, 0, err
		}
		consumed++
		pos = 0
	}
	if err := c.add(ctx, items[pos+replaced:]...); err != nil {
		return nil, 0, err
	}

	for len(c.buf) != 0 {
		ok, err := lp.nextNode(ctx, src)
		if err != nil {
			return nil, 0, err
		}
		if !ok {
			if err := c.flush(ctx); err != nil {
				return nil, 0, err
			}
			break
		}
		if items, err = m.levelItems(ctx, src, lp); err != nil {
			return nil, 0, err
		}
		consumed++

		if err := c.add(ctx, items...); err != nil {
			return nil, 0, err
		}
	}
	return c.out, consumed, nil
}

// levelItems returns the items of the top node of p.
func (m *Manager) levelItems(ctx context.Context, src nodeSource, p path) ([]item, error) {
	n := p.top()
	if n.IsLeaf() {
		return m.leafItems(n), nil
	}

	low, err := p.lowKey(ctx, src)
	if err != nil {
		return nil, err
	}
	return m.childItems(ctx, n, low)
}

// finishRoot builds the levels above items until a single root remains.
// Roots with a single child are collapsed.
func (m *Manager) finishRoot(ctx context.Context, level int, items []item) (Address, error) {
	for len(items) > 1 {
		c := newChunker(m, level)
		if err := c.add(ctx, items...); err != nil {
			return Address{}, err
		}
		if err := c.flush(ctx); err != nil {
			return Address{}, err
		}
		items = c.out
		level++
	}
	if len(items) == 0 {
		return Address{}, nil
	}

	root := items[0].addr
	for {
		n, err := m.GetNode(ctx, root)
		if err != nil {
			return Address{}, err
		}
		if n.IsLeaf() || n.KeysLength() != 0 {
			break
		}
		root = n.Internal().Address(0)
	}

	m.log.Debug().Str("root", root.Short()).Msg("new root")
	return root, nil
}
