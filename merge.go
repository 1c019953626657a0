package prolly

import (
	"context"

	"github.com/pkg/errors"
)

// Resolver decides the merged value of a key changed to different values
// on both sides. Absent values are passed as nil. Returning a nil value
// deletes the key; returning an error aborts the merge.
type Resolver func(ctx context.Context, key, ancestor, local, remote []byte) ([]byte, error)

// change is a key changed relative to the common ancestor.
type change struct {
	key      []byte
	ancestor *storedValue
	value    *storedValue // nil when deleted
}

// Merge performs a three-way merge of local and remote relative to their
// common ancestor. Keys changed on one side only, or changed identically
// on both sides, are merged automatically. Conflicting keys are passed
// to resolve; a nil resolve turns conflicts into ErrConflict. The result
// is written through local's node manager; all three trees must read
// from the same block store.
func Merge(ctx context.Context, local, remote, ancestor *Tree, resolve Resolver) (*Tree, error) {
	switch {
	case local.root == remote.root, ancestor.root == remote.root:
		return local, nil
	case ancestor.root == local.root:
		return &Tree{m: local.m, root: remote.root}, nil
	}

	lchanges, err := collectChanges(ctx, ancestor, local)
	if err != nil {
		return nil, err
	}
	rchanges, err := collectChanges(ctx, ancestor, remote)
	if err != nil {
		return nil, err
	}

	m := local.m
	cmp := m.cfg.Compare
	edits := make([]edit, 0, len(rchanges))

	var i int
	for _, rc := range rchanges {
		for i < len(lchanges) && cmp(lchanges[i].key, rc.key) < 0 {
			i++
		}

		var e edit
		if i < len(lchanges) && cmp(lchanges[i].key, rc.key) == 0 {
			lc := lchanges[i]
			i++
			if sameChange(lc.value, rc.value) {
				continue
			}
			if e, err = resolveConflict(ctx, m, resolve, lc, rc); err != nil {
				return nil, err
			}
		} else {
			e = edit{key: rc.key, del: rc.value == nil}
			if rc.value != nil {
				e.value, e.ref = rc.value.data, rc.value.chunked
			}
		}

		edits = append(edits, e)
	}

	root, err := m.applyEdits(ctx, local.root, edits)
	if err != nil {
		return nil, err
	}
	return &Tree{m: m, root: root}, nil
}

func collectChanges(ctx context.Context, ancestor, t *Tree) ([]change, error) {
	var changes []change
	err := diffTrees(ctx, ancestor, t, func(key []byte, av, tv *storedValue) error {
		changes = append(changes, change{key: key, ancestor: av, value: tv})
		return nil
	})
	return changes, err
}

func sameChange(a, b *storedValue) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.equal(b)
}

func resolveConflict(ctx context.Context, m *Manager, resolve Resolver, lc, rc change) (edit, error) {
	if mt := m.cfg.Metrics; mt != nil {
		mt.Conflicts.Inc()
	}
	m.log.Info().Bytes("key", lc.key).Msg("merge conflict")

	if resolve == nil {
		return edit{}, errors.Wrapf(ErrConflict, "key %q", lc.key)
	}

	ancestor, err := resolveStored(ctx, m, lc.ancestor)
	if err != nil {
		return edit{}, err
	}
	local, err := resolveStored(ctx, m, lc.value)
	if err != nil {
		return edit{}, err
	}
	remote, err := resolveStored(ctx, m, rc.value)
	if err != nil {
		return edit{}, err
	}

	merged, err := resolve(ctx, lc.key, ancestor, local, remote)
	if err != nil {
		return edit{}, errors.Wrapf(err, "prolly: resolve %q", lc.key)
	}
	return m.stageEdit(ctx, Edit{Key: lc.key, Value: merged, Delete: merged == nil})
}

func resolveStored(ctx context.Context, m *Manager, v *storedValue) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return v.resolve(ctx, m)
}
