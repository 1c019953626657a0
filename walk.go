package prolly

import (
	"context"
	"sync"

	"github.com/alitto/pond/v2"
	"github.com/bsm/prolly/blockstore"
	"github.com/pkg/errors"
)

// Walk calls fn for every node of the tree, level by level from the root
// down to the leaves. Nodes of each level are fetched concurrently but
// passed to fn sequentially in key order.
func (t *Tree) Walk(ctx context.Context, fn func(*Node) error) error {
	if t.root.IsZero() {
		return nil
	}

	pool := pond.NewPool(t.m.cfg.Concurrency, pond.WithContext(ctx))
	defer pool.StopAndWait()

	level := []Address{t.root}
	for len(level) != 0 {
		nodes := make([]*Node, len(level))
		group := pool.NewGroup()
		for i, addr := range level {
			i, addr := i, addr
			group.SubmitErr(func() error {
				n, err := t.m.GetNode(ctx, addr)
				nodes[i] = n
				return err
			})
		}
		if err := group.Wait(); err != nil {
			return err
		}

		var next []Address
		for _, n := range nodes {
			if fn != nil {
				if err := fn(n); err != nil {
					return err
				}
			}
			if !n.IsLeaf() {
				next = append(next, n.Internal().Addresses()...)
			}
		}
		level = next
	}
	return nil
}

// Warm loads every node and value chunk of the tree into the cache, so
// that the cached-only cursor methods can run without touching the block
// store. The cache must be large enough to hold the whole tree.
func (t *Tree) Warm(ctx context.Context) error {
	return t.visitChunks(ctx, func(addr Address) error {
		_, err := t.m.getBlob(ctx, addr)
		return err
	})
}

// Export copies every block reachable from the tree into dst.
func (t *Tree) Export(ctx context.Context, dst blockstore.Store) error {
	put := func(addr Address, data []byte) error {
		got, err := dst.Put(ctx, data)
		if err != nil {
			return err
		}
		if got != addr {
			return errors.Wrapf(ErrInvalidConfig, "destination addressed %s as %s", addr.Short(), got.Short())
		}
		return nil
	}

	var mu sync.Mutex
	return t.walkChunks(ctx, func(n *Node) error {
		mu.Lock()
		defer mu.Unlock()
		return put(n.Address(), n.Bytes())
	}, func(addr Address) error {
		data, err := t.m.getBlob(ctx, addr)
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		return put(addr, data)
	})
}

func (t *Tree) visitChunks(ctx context.Context, fn func(Address) error) error {
	return t.walkChunks(ctx, nil, fn)
}

// walkChunks walks all nodes and calls chunkFn concurrently for every
// distinct value chunk referenced by the leaves.
func (t *Tree) walkChunks(ctx context.Context, nodeFn func(*Node) error, chunkFn func(Address) error) error {
	seen := make(map[Address]struct{})
	var chunks []Address

	err := t.Walk(ctx, func(n *Node) error {
		if nodeFn != nil {
			if err := nodeFn(n); err != nil {
				return err
			}
		}
		if !n.IsLeaf() {
			return nil
		}

		leaf := n.Leaf()
		for i := 0; i < leaf.KeysLength(); i++ {
			if !leaf.IsChunked(i) {
				continue
			}
			desc, err := parseChunkedValue(leaf.Value(i))
			if err != nil {
				return err
			}
			for _, addr := range desc.addrs() {
				if _, ok := seen[addr]; !ok {
					seen[addr] = struct{}{}
					chunks = append(chunks, addr)
				}
			}
		}
		return nil
	})
	if err != nil || len(chunks) == 0 {
		return err
	}

	pool := pond.NewPool(t.m.cfg.Concurrency, pond.WithContext(ctx))
	defer pool.StopAndWait()

	group := pool.NewGroup()
	for _, addr := range chunks {
		addr := addr
		group.SubmitErr(func() error { return chunkFn(addr) })
	}
	return group.Wait()
}
