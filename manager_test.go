package prolly_test

import (
	"github.com/bsm/prolly"
	"github.com/bsm/prolly/blockstore"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var _ = Describe("Manager", func() {
	var subject *prolly.Manager
	var metrics *prolly.Metrics

	BeforeEach(func() {
		var err error
		metrics = prolly.NewMetrics(prometheus.NewRegistry(), "test")
		subject, err = prolly.NewManager(blockstore.NewMemory(nil), &prolly.Config{
			TargetFanout: 4,
			Metrics:      metrics,
		})
		Expect(err).NotTo(HaveOccurred())
	})

	leaf := func(keys ...string) *prolly.Node {
		n, err := subject.CreateLeafNode(ctx, pairs(keys...))
		Expect(err).NotTo(HaveOccurred())
		return n
	}

	internal := func(keys []string, children ...*prolly.Node) *prolly.Node {
		bkeys := make([][]byte, 0, len(keys))
		for _, k := range keys {
			bkeys = append(bkeys, []byte(k))
		}
		addrs := make([]prolly.Address, 0, len(children))
		for _, c := range children {
			addrs = append(addrs, c.Address())
		}
		n, err := subject.CreateNode(ctx, nil, bkeys, addrs, false)
		Expect(err).NotTo(HaveOccurred())
		return n
	}

	get := func(addr prolly.Address) *prolly.Node {
		n, err := subject.GetNode(ctx, addr)
		Expect(err).NotTo(HaveOccurred())
		return n
	}

	It("should track metrics", func() {
		n := leaf("a")
		Expect(testutil.ToFloat64(metrics.NodesCreated)).To(Equal(1.0))

		_ = get(n.Address())
		Expect(testutil.ToFloat64(metrics.CacheHits)).To(Equal(1.0))
	})

	Describe("Put", func() {
		It("should insert in order", func() {
			n, split, err := subject.Put(ctx, leaf("a", "c"), []byte("b"), []byte("val-b"))
			Expect(err).NotTo(HaveOccurred())
			Expect(split).To(BeNil())
			Expect(n.Leaf().Pairs()).To(Equal(pairs("a", "b", "c")))
		})

		It("should replace", func() {
			n, split, err := subject.Put(ctx, leaf("a", "b", "c"), []byte("b"), []byte("new"))
			Expect(err).NotTo(HaveOccurred())
			Expect(split).To(BeNil())
			Expect(n.Leaf().Pairs()).To(Equal([]prolly.KeyValuePair{
				pair("a", "val-a"), pair("b", "new"), pair("c", "val-c"),
			}))
		})

		It("should split full leaves", func() {
			left, split, err := subject.Put(ctx, leaf("a", "b", "c"), []byte("d"), []byte("val-d"))
			Expect(err).NotTo(HaveOccurred())
			Expect(split).NotTo(BeNil())
			Expect(split.Key).To(Equal([]byte("c")))
			Expect(left.Leaf().Pairs()).To(Equal(pairs("a", "b")))
			Expect(get(split.Address).Leaf().Pairs()).To(Equal(pairs("c", "d")))
		})

		It("should reject overfull leaves", func() {
			_, _, err := subject.Put(ctx, leaf("a", "b", "c", "d"), []byte("e"), []byte("val-e"))
			Expect(err).To(MatchError(prolly.ErrInvariant))

			_, _, err = subject.Put(ctx, internal([]string{"b"}, leaf("a"), leaf("b")), []byte("e"), []byte("val-e"))
			Expect(err).To(MatchError(prolly.ErrInvariant))
		})
	})

	Describe("SplitNode", func() {
		It("should split leaves", func() {
			left, split, err := subject.SplitNode(ctx, leaf("a", "b", "c", "d", "e"))
			Expect(err).NotTo(HaveOccurred())
			Expect(left.Leaf().Pairs()).To(Equal(pairs("a", "b")))
			Expect(split.Key).To(Equal([]byte("c")))
			Expect(get(split.Address).Leaf().Pairs()).To(Equal(pairs("c", "d", "e")))

			_, _, err = subject.SplitNode(ctx, leaf("a"))
			Expect(err).To(MatchError(prolly.ErrInvariant))
		})

		It("should split internal nodes", func() {
			node := internal([]string{"b", "d", "f"}, leaf("a"), leaf("b", "c"), leaf("d", "e"), leaf("f", "g"))

			left, split, err := subject.SplitNode(ctx, node)
			Expect(err).NotTo(HaveOccurred())
			Expect(split.Key).To(Equal([]byte("d")))

			Expect(left).To(HaveKeys("b"))
			Expect(left.Internal().AddressesLength()).To(Equal(2))
			Expect(left.EntryCount()).To(Equal(uint64(3)))
			Expect(left.Level()).To(Equal(1))

			right := get(split.Address)
			Expect(right).To(HaveKeys("f"))
			Expect(right.Internal().AddressesLength()).To(Equal(2))
			Expect(right.EntryCount()).To(Equal(uint64(4)))
			Expect(subject.FirstKey(ctx, right)).To(Equal([]byte("d")))
		})
	})

	Describe("UpdateChild", func() {
		var child1, child2, parent *prolly.Node

		BeforeEach(func() {
			child1 = leaf("a", "c")
			child2 = leaf("m", "n")
			parent = internal([]string{"m"}, child1, child2)
		})

		It("should replace children", func() {
			replacement := leaf("a", "b", "c")
			updated, err := subject.UpdateChild(ctx, parent, child1.Address(), replacement.Address(), nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Internal().AddressesLength()).To(Equal(2))
			Expect(updated.Internal().Address(0)).To(Equal(replacement.Address()))
			Expect(updated).To(HaveKeys("m"))
			Expect(updated.EntryCount()).To(Equal(uint64(5)))
		})

		It("should insert splits", func() {
			replacement := leaf("a", "c", "e")
			split := &prolly.Split{Key: []byte("f"), Address: leaf("f", "g").Address()}

			updated, err := subject.UpdateChild(ctx, parent, child1.Address(), replacement.Address(), split)
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Internal().AddressesLength()).To(Equal(3))
			Expect(updated.KeysLength()).To(Equal(2))
			Expect(updated).To(HaveKeys("f", "m"))
			Expect(updated.Internal().Addresses()).To(Equal([]prolly.Address{
				replacement.Address(), split.Address, child2.Address(),
			}))
			Expect(updated.EntryCount()).To(Equal(uint64(7)))
		})

		It("should reject unknown children", func() {
			_, err := subject.UpdateChild(ctx, parent, leaf("x").Address(), child1.Address(), nil)
			Expect(err).To(MatchError(prolly.ErrInvariant))

			_, err = subject.UpdateChild(ctx, child1, child2.Address(), child1.Address(), nil)
			Expect(err).To(MatchError(prolly.ErrInvariant))
		})
	})

	Describe("Merge", func() {
		It("should merge leaves", func() {
			merged, err := subject.Merge(ctx, leaf("a", "b"), leaf("c", "d"))
			Expect(err).NotTo(HaveOccurred())
			Expect(merged.Leaf().Pairs()).To(Equal(pairs("a", "b", "c", "d")))

			_, err = subject.Merge(ctx, leaf("c", "d"), leaf("a", "b"))
			Expect(err).To(MatchError(prolly.ErrInvariant))
		})

		It("should merge internal nodes", func() {
			left := internal([]string{"b"}, leaf("a"), leaf("b"))
			right := internal([]string{"f"}, leaf("d", "e"), leaf("f"))

			merged, err := subject.Merge(ctx, left, right)
			Expect(err).NotTo(HaveOccurred())
			Expect(merged).To(HaveKeys("b", "d", "f"))
			Expect(merged.Internal().AddressesLength()).To(Equal(4))
			Expect(merged.EntryCount()).To(Equal(uint64(5)))

			_, err = subject.Merge(ctx, left, leaf("x"))
			Expect(err).To(MatchError(prolly.ErrInvariant))
		})
	})

	Describe("Rebalance", func() {
		BeforeEach(func() {
			var err error
			subject, err = prolly.NewManager(blockstore.NewMemory(nil), &prolly.Config{
				TargetFanout: 8,
				MinFanout:    3,
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("should keep balanced siblings", func() {
			l, r := leaf("a", "b", "c"), leaf("d", "e", "f")
			left, right, err := subject.Rebalance(ctx, l, r)
			Expect(err).NotTo(HaveOccurred())
			Expect(left.Address()).To(Equal(l.Address()))
			Expect(right.Address()).To(Equal(r.Address()))
		})

		It("should borrow", func() {
			left, right, err := subject.Rebalance(ctx, leaf("a"), leaf("b", "c", "d", "e", "f"))
			Expect(err).NotTo(HaveOccurred())
			Expect(left.Leaf().Pairs()).To(Equal(pairs("a", "b", "c")))
			Expect(right.Leaf().Pairs()).To(Equal(pairs("d", "e", "f")))
		})

		It("should merge", func() {
			left, right, err := subject.Rebalance(ctx, leaf("a", "b", "c"), leaf("d"))
			Expect(err).NotTo(HaveOccurred())
			Expect(right).To(BeNil())
			Expect(left.Leaf().Pairs()).To(Equal(pairs("a", "b", "c", "d")))
		})

		It("should borrow across internal nodes", func() {
			left := internal(nil, leaf("a"))
			right := internal([]string{"c", "e", "g", "h"}, leaf("b"), leaf("c", "d"), leaf("e", "f"), leaf("g"), leaf("h"))

			l, r, err := subject.Rebalance(ctx, left, right)
			Expect(err).NotTo(HaveOccurred())
			Expect(l).To(HaveKeys("b", "c"))
			Expect(l.EntryCount()).To(Equal(uint64(4)))
			Expect(r).To(HaveKeys("g", "h"))
			Expect(r.EntryCount()).To(Equal(uint64(4)))
			Expect(subject.FirstKey(ctx, r)).To(Equal([]byte("e")))
		})
	})
})
