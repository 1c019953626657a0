package prolly

import (
	"context"

	"github.com/pkg/errors"
)

// Check verifies the structural invariants of the tree: key order,
// separator placement, entry counts, fanout bounds and content-defined
// node boundaries. It returns an ErrInvariant error describing the first
// violation found.
func (t *Tree) Check(ctx context.Context) error {
	if t.root.IsZero() {
		return nil
	}

	root, err := t.m.GetNode(ctx, t.root)
	if err != nil {
		return err
	}
	if !root.IsLeaf() && root.KeysLength() == 0 {
		return errors.Wrapf(ErrInvariant, "root %s has a single child", root.Address().Short())
	}
	_, _, err = t.checkNode(ctx, root, nil, nil, true, true)
	return err
}

// checkNode checks n, whose keys must fall within [low, high). It
// returns the entry count and first key of n.
func (t *Tree) checkNode(ctx context.Context, n *Node, low, high []byte, isRoot, rightmost bool) (uint64, []byte, error) {
	cmp := t.m.cfg.Compare
	fail := func(format string, args ...interface{}) (uint64, []byte, error) {
		args = append([]interface{}{n.Address().Short(), n.Level()}, args...)
		return 0, nil, errors.Wrapf(ErrInvariant, "node %s at level %d: "+format, args...)
	}

	width := n.KeysLength()
	if !n.IsLeaf() {
		width++
	}
	if width == 0 {
		return fail("is empty")
	}
	if width > t.m.cfg.TargetFanout-1 {
		return fail("holds %d entries, more than %d", width, t.m.cfg.TargetFanout-1)
	}
	if !isRoot && !rightmost && width < t.m.cfg.MinFanout {
		return fail("holds %d entries, less than %d", width, t.m.cfg.MinFanout)
	}

	for i := 0; i < n.KeysLength(); i++ {
		key := n.Key(i)
		if i > 0 && cmp(n.Key(i-1), key) >= 0 {
			return fail("keys out of order at %d", i)
		}
		if (low != nil && cmp(key, low) < 0) || (high != nil && cmp(key, high) >= 0) {
			return fail("key %q out of range", key)
		}
	}

	var count uint64
	var first []byte
	if n.IsLeaf() {
		count = uint64(n.KeysLength())
		first = n.Key(0)
	} else {
		in := n.Internal()
		for i := 0; i < in.AddressesLength(); i++ {
			child, err := t.m.GetNode(ctx, in.Address(i))
			if err != nil {
				return 0, nil, err
			}
			if child.Level() != n.Level()-1 {
				return fail("child %d at level %d", i, child.Level())
			}

			clow, chigh := low, high
			if i > 0 {
				clow = in.Key(i - 1)
			}
			if i < in.KeysLength() {
				chigh = in.Key(i)
			}

			last := i == in.AddressesLength()-1
			ccount, cfirst, err := t.checkNode(ctx, child, clow, chigh, false, rightmost && last)
			if err != nil {
				return 0, nil, err
			}
			if i > 0 && cmp(cfirst, in.Key(i-1)) != 0 {
				return fail("separator %d is not the first key of its child", i-1)
			}
			if i == 0 {
				first = cfirst
			}
			count += ccount
		}
	}

	if count != n.EntryCount() {
		return fail("entry count %d, expected %d", n.EntryCount(), count)
	}

	for i := 0; i < width; i++ {
		key := first
		if i > 0 {
			key = n.Key(i - 1)
			if n.IsLeaf() {
				key = n.Key(i)
			}
		}

		last := i == width-1
		if boundary := t.m.isBoundary(n.Level(), key, i+1); boundary != last && (boundary || !rightmost) {
			return fail("content boundary mismatch at entry %d", i)
		}
	}
	return count, first, nil
}
