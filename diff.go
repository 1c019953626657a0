package prolly

import (
	"bytes"
	"context"
)

// Difference is a key whose value differs between two trees. A nil Local
// or Remote means the key is absent on that side.
type Difference struct {
	Key    []byte
	Local  []byte
	Remote []byte
}

// Diff returns the differences between t (local) and other (remote) in
// key order.
func (t *Tree) Diff(ctx context.Context, other *Tree) ([]Difference, error) {
	var diffs []Difference
	err := t.DiffFunc(ctx, other, func(d Difference) error {
		diffs = append(diffs, d)
		return nil
	})
	return diffs, err
}

// DiffFunc streams the differences between t (local) and other (remote)
// to fn in key order. Subtrees with equal addresses are skipped without
// being visited. Keys and values passed to fn must not be retained
// without copying.
func (t *Tree) DiffFunc(ctx context.Context, other *Tree, fn func(Difference) error) error {
	return diffTrees(ctx, t, other, func(key []byte, local, remote *storedValue) error {
		d := Difference{Key: key}
		var err error
		if local != nil {
			if d.Local, err = local.resolve(ctx, t.m); err != nil {
				return err
			}
		}
		if remote != nil {
			if d.Remote, err = remote.resolve(ctx, other.m); err != nil {
				return err
			}
		}
		return fn(d)
	})
}

// storedValue is a value in its stored form.
type storedValue struct {
	data    []byte
	chunked bool
}

func (v *storedValue) equal(o *storedValue) bool {
	return v.chunked == o.chunked && bytes.Equal(v.data, o.data)
}

func (v *storedValue) resolve(ctx context.Context, m *Manager) ([]byte, error) {
	return decodeValue(ctx, resolving{m}, v.data, v.chunked)
}

func currentValue(c *Cursor) *storedValue {
	return &storedValue{data: c.value, chunked: c.chunked}
}

// diffTrees merge-joins two trees on raw cursors. Values are passed in
// stored form; a nil value means the key is absent.
func diffTrees(ctx context.Context, a, b *Tree, fn func(key []byte, av, bv *storedValue) error) error {
	if a.root == b.root {
		return nil
	}

	ca, cb := a.Cursor(), b.Cursor()
	ca.raw, cb.raw = true, true

	okA, err := ca.First(ctx)
	if err != nil {
		return err
	}
	okB, err := cb.First(ctx)
	if err != nil {
		return err
	}

	cmp := a.m.cfg.Compare
	for okA || okB {
		if okA && okB {
			skipped, err := skipCommon(ctx, ca, cb)
			if err != nil {
				return err
			}
			if skipped {
				okA, okB = ca.Valid(), cb.Valid()
				continue
			}
		}

		switch {
		case okA && (!okB || cmp(ca.Key(), cb.Key()) < 0):
			if err := fn(ca.Key(), currentValue(ca), nil); err != nil {
				return err
			}
			if okA, err = ca.Next(ctx); err != nil {
				return err
			}
		case okB && (!okA || cmp(ca.Key(), cb.Key()) > 0):
			if err := fn(cb.Key(), nil, currentValue(cb)); err != nil {
				return err
			}
			if okB, err = cb.Next(ctx); err != nil {
				return err
			}
		default:
			if av, bv := currentValue(ca), currentValue(cb); !av.equal(bv) {
				if err := fn(ca.Key(), av, bv); err != nil {
					return err
				}
			}
			if okA, err = ca.Next(ctx); err != nil {
				return err
			}
			if okB, err = cb.Next(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// skipCommon advances both cursors past the highest subtree that both
// stand at the start of and that has the same address on both sides.
func skipCommon(ctx context.Context, ca, cb *Cursor) (bool, error) {
	if ca.m.cfg.Compare(ca.Key(), cb.Key()) != 0 {
		return false, nil
	}

	ha, hb := ca.path[0].node.Level(), cb.path[0].node.Level()
	top := ha
	if hb < top {
		top = hb
	}

	for level := top; level >= 0; level-- {
		na := ca.path[ca.path.at(level)].node
		nb := cb.path[cb.path.at(level)].node
		if na.Address() != nb.Address() || !ca.atStart(level) || !cb.atStart(level) {
			continue
		}

		if _, err := ca.skip(ctx, level); err != nil {
			return false, err
		}
		if _, err := cb.skip(ctx, level); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}
