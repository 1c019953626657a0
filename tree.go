package prolly

import (
	"context"
	"sort"

	"github.com/bsm/prolly/blockstore"
)

// Tree is an immutable prolly tree identified by its root address.
// Mutations return new trees which share unchanged nodes with their
// predecessors.
type Tree struct {
	m    *Manager
	root Address
}

// New creates an empty tree.
func New(store blockstore.Store, cfg *Config) (*Tree, error) {
	m, err := NewManager(store, cfg)
	if err != nil {
		return nil, err
	}
	return &Tree{m: m}, nil
}

// Load opens the tree stored at root. The zero address loads an empty
// tree.
func Load(ctx context.Context, store blockstore.Store, root Address, cfg *Config) (*Tree, error) {
	t, err := New(store, cfg)
	if err != nil {
		return nil, err
	}
	return t.At(ctx, root)
}

// At returns the tree stored at root, sharing the node manager.
func (t *Tree) At(ctx context.Context, root Address) (*Tree, error) {
	if !root.IsZero() {
		if _, err := t.m.GetNode(ctx, root); err != nil {
			return nil, err
		}
	}
	return &Tree{m: t.m, root: root}, nil
}

// Manager returns the node manager.
func (t *Tree) Manager() *Manager { return t.m }

// Root returns the root address. Empty trees have the zero address.
func (t *Tree) Root() Address { return t.root }

// IsEmpty returns true if the tree holds no pairs.
func (t *Tree) IsEmpty() bool { return t.root.IsZero() }

// Count returns the number of pairs.
func (t *Tree) Count(ctx context.Context) (uint64, error) {
	if t.root.IsZero() {
		return 0, nil
	}
	n, err := t.m.GetNode(ctx, t.root)
	if err != nil {
		return 0, err
	}
	return n.EntryCount(), nil
}

// Height returns the number of levels, zero for empty trees.
func (t *Tree) Height(ctx context.Context) (int, error) {
	if t.root.IsZero() {
		return 0, nil
	}
	n, err := t.m.GetNode(ctx, t.root)
	if err != nil {
		return 0, err
	}
	return n.Level() + 1, nil
}

// Get returns the value stored for key. It returns ErrNotFound for
// absent keys.
func (t *Tree) Get(ctx context.Context, key []byte) ([]byte, error) {
	c := t.Cursor()
	if _, err := c.Seek(ctx, key); err != nil {
		return nil, err
	}
	if !c.Valid() || t.m.cfg.Compare(c.Key(), key) != 0 {
		return nil, ErrNotFound
	}
	return c.Value(), nil
}

// Has returns true if key is present.
func (t *Tree) Has(ctx context.Context, key []byte) (bool, error) {
	_, err := t.Get(ctx, key)
	if err == ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

// Put stores value for key.
func (t *Tree) Put(ctx context.Context, key, value []byte) (*Tree, error) {
	return t.Apply(ctx, Edit{Key: key, Value: value})
}

// Delete removes key. Deleting an absent key returns an equal tree.
func (t *Tree) Delete(ctx context.Context, key []byte) (*Tree, error) {
	return t.Apply(ctx, Edit{Key: key, Delete: true})
}

// Apply applies a batch of edits in key order. When a key is edited more
// than once, the last edit wins.
func (t *Tree) Apply(ctx context.Context, edits ...Edit) (*Tree, error) {
	sorted := make([]Edit, len(edits))
	copy(sorted, edits)
	sort.SliceStable(sorted, func(i, j int) bool {
		return t.m.cfg.Compare(sorted[i].Key, sorted[j].Key) < 0
	})

	staged := make([]edit, 0, len(sorted))
	for i, e := range sorted {
		if i+1 < len(sorted) && t.m.cfg.Compare(e.Key, sorted[i+1].Key) == 0 {
			continue
		}

		stored, err := t.m.stageEdit(ctx, e)
		if err != nil {
			return nil, err
		}
		staged = append(staged, stored)
	}

	root, err := t.m.applyEdits(ctx, t.root, staged)
	if err != nil {
		return nil, err
	}
	return &Tree{m: t.m, root: root}, nil
}

func (m *Manager) stageEdit(ctx context.Context, e Edit) (edit, error) {
	key := e.Key
	if key == nil {
		key = []byte{}
	}
	if e.Delete {
		return edit{key: key, del: true}, nil
	}

	value := e.Value
	if value == nil {
		value = []byte{}
	}
	stored, ref, err := m.encodeValue(ctx, value)
	if err != nil {
		return edit{}, err
	}
	return edit{key: key, value: stored, ref: ref}, nil
}

// Cursor returns an unpositioned cursor.
func (t *Tree) Cursor() *Cursor {
	return newCursor(t.m, t.root)
}

// First returns a cursor positioned at the smallest key.
func (t *Tree) First(ctx context.Context) (*Cursor, error) {
	c := t.Cursor()
	if _, err := c.First(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Seek returns a cursor positioned at the first key >= key. A nil key
// starts at the first pair.
func (t *Tree) Seek(ctx context.Context, key []byte) (*Cursor, error) {
	c := t.Cursor()
	if _, err := c.SeekGE(ctx, key); err != nil {
		return nil, err
	}
	return c, nil
}

// Scan calls fn for each pair with start <= key < end in order. A nil
// start scans from the first key, a nil end scans to the last.
func (t *Tree) Scan(ctx context.Context, start, end []byte, fn func(key, value []byte) error) error {
	c := t.Cursor()
	ok, err := c.SeekGE(ctx, start)
	for ; ok && err == nil; ok, err = c.Next(ctx) {
		if end != nil && t.m.cfg.Compare(c.Key(), end) >= 0 {
			return nil
		}
		if err := fn(c.Key(), c.Value()); err != nil {
			return err
		}
	}
	return err
}
