package prolly

import (
	"context"

	"github.com/pkg/errors"
)

// frame is a single step on the way from the root to a node. low is the
// first key beneath the node, nil when it has not been determined.
type frame struct {
	node *Node
	low  []byte
}

// path is an explicit ancestor stack, root first.
type path []frame

func (p path) top() *Node { return p[len(p)-1].node }

func (p path) clone() path { return append(path(nil), p...) }

// at returns the frame index of the node at level.
func (p path) at(level int) int { return len(p) - 1 - level + p.top().Level() }

// descendKey follows the children covering key until the top of the path
// is at level.
func (p *path) descendKey(ctx context.Context, src nodeSource, key []byte, level int) error {
	for top := (*p)[len(*p)-1]; top.node.Level() > level; top = (*p)[len(*p)-1] {
		in := top.node.Internal()
		i := in.FindChildIndex(key)
		child, err := src.node(ctx, in.Address(i))
		if err != nil {
			return err
		}

		low := top.low
		if i > 0 {
			low = in.Key(i - 1)
		}
		*p = append(*p, frame{node: child, low: low})
	}
	return nil
}

// descendFirst follows the leftmost children until the top of the path is
// at level.
func (p *path) descendFirst(ctx context.Context, src nodeSource, level int) error {
	for top := (*p)[len(*p)-1]; top.node.Level() > level; top = (*p)[len(*p)-1] {
		child, err := src.node(ctx, top.node.Internal().Address(0))
		if err != nil {
			return err
		}
		*p = append(*p, frame{node: child, low: top.low})
	}
	return nil
}

// nextNode moves the top of the path to the next node at the same level.
// It returns false if the top node is the last of its level. The path is
// left untouched on failure.
func (p *path) nextNode(ctx context.Context, src nodeSource) (bool, error) {
	q := *p
	level := q.top().Level()

	for d := len(q) - 2; d >= 0; d-- {
		parent := q[d].node.Internal()
		i := parent.ChildIndexOf(q[d+1].node.Address())
		if i < 0 {
			return false, errors.Wrapf(ErrInvariant, "%s is not a child of %s", q[d+1].node.Address().Short(), parent.Node.Address().Short())
		}
		if i+1 >= parent.AddressesLength() {
			continue
		}

		sibling, err := src.node(ctx, parent.Address(i+1))
		if err != nil {
			return false, err
		}

		next := append(q[:d+1:d+1], frame{node: sibling, low: parent.Key(i)})
		if err := next.descendFirst(ctx, src, level); err != nil {
			return false, err
		}
		*p = next
		return true, nil
	}
	return false, nil
}

// lowKey returns the first key beneath the top node.
func (p path) lowKey(ctx context.Context, src nodeSource) ([]byte, error) {
	if f := p[len(p)-1]; f.low != nil {
		return f.low, nil
	}
	return firstKey(ctx, src, p.top())
}
