package prolly

import (
	"context"

	"github.com/pkg/errors"
)

// nodeSource resolves addresses into nodes and value chunks. Cursors and
// mutations are written once against it; resolving sources may suspend on
// the block store, peeking sources only consult the cache.
type nodeSource interface {
	node(ctx context.Context, addr Address) (*Node, error)
	blob(ctx context.Context, addr Address) ([]byte, error)
}

type resolving struct{ m *Manager }

func (s resolving) node(ctx context.Context, addr Address) (*Node, error) {
	return s.m.GetNode(ctx, addr)
}

func (s resolving) blob(ctx context.Context, addr Address) ([]byte, error) {
	return s.m.getBlob(ctx, addr)
}

type peeking struct{ m *Manager }

func (s peeking) node(_ context.Context, addr Address) (*Node, error) {
	if n, ok := s.m.PeekNode(addr); ok {
		return n, nil
	}
	return nil, errors.Wrapf(ErrNotResident, "node %s", addr.Short())
}

func (s peeking) blob(_ context.Context, addr Address) ([]byte, error) {
	if b, ok := s.m.peekBlob(addr); ok {
		return b, nil
	}
	return nil, errors.Wrapf(ErrNotResident, "chunk %s", addr.Short())
}
