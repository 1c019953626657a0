package prolly_test

import (
	"bytes"
	"math/rand"

	"github.com/bsm/prolly"
	"github.com/bsm/prolly/blockstore"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Node", func() {
	var store *blockstore.Blocks
	var manager *prolly.Manager

	BeforeEach(func() {
		var err error
		store = blockstore.NewMemory(nil)
		manager, err = prolly.NewManager(store, testConfig())
		Expect(err).NotTo(HaveOccurred())
	})

	It("should encode leaves", func() {
		leaf, err := manager.CreateLeafNode(ctx, pairs("a", "b", "c"))
		Expect(err).NotTo(HaveOccurred())
		Expect(leaf.IsLeaf()).To(BeTrue())
		Expect(leaf.Level()).To(Equal(0))
		Expect(leaf.EntryCount()).To(Equal(uint64(3)))
		Expect(leaf).To(HaveKeys("a", "b", "c"))

		l := leaf.Leaf()
		Expect(l.KeysLength()).To(Equal(3))
		Expect(l.Value(1)).To(Equal([]byte("val-b")))
		Expect(l.IsChunked(1)).To(BeFalse())
		Expect(l.Pair(2)).To(Equal(pair("c", "val-c")))
		Expect(l.Pairs()).To(Equal(pairs("a", "b", "c")))

		Expect(leaf.Bytes()).To(Equal([]byte{
			0, 3, 1, 3, // header
			'a', 'b', 'c', // keys
			'v', 'a', 'l', '-', 'a', 'v', 'a', 'l', '-', 'b', 'v', 'a', 'l', '-', 'c', // values
			1, 0, 0, 0, 2, 0, 0, 0, 3, 0, 0, 0, // key ends
			5, 0, 0, 0, 10, 0, 0, 0, 15, 0, 0, 0, // value ends
		}))
		Expect(leaf.Address()).To(Equal(blockstore.HashBlake3.Sum(leaf.Bytes())))
	})

	It("should be deterministic", func() {
		n1, err := manager.CreateLeafNode(ctx, pairs("a", "b"))
		Expect(err).NotTo(HaveOccurred())
		n2, err := manager.CreateLeafNode(ctx, pairs("a", "b"))
		Expect(err).NotTo(HaveOccurred())
		Expect(n2.Address()).To(Equal(n1.Address()))
		Expect(n2.Bytes()).To(Equal(n1.Bytes()))

		n3, err := manager.CreateLeafNode(ctx, []prolly.KeyValuePair{pair("a", "val-a"), pair("b", "other")})
		Expect(err).NotTo(HaveOccurred())
		Expect(n3.Address()).NotTo(Equal(n1.Address()))
	})

	It("should encode empty leaves", func() {
		leaf, err := manager.CreateLeafNode(ctx, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(leaf.KeysLength()).To(Equal(0))
		Expect(leaf.Bytes()).To(Equal([]byte{0, 0, 1, 0}))

		i, ok := leaf.Leaf().FindKeyIndex([]byte("a"))
		Expect(ok).To(BeFalse())
		Expect(i).To(Equal(0))
	})

	It("should round-trip through the store", func() {
		leaf, err := manager.CreateLeafNode(ctx, pairs("x", "y"))
		Expect(err).NotTo(HaveOccurred())

		fresh, err := prolly.NewManager(store, testConfig())
		Expect(err).NotTo(HaveOccurred())
		_, ok := fresh.PeekNode(leaf.Address())
		Expect(ok).To(BeFalse())

		n, err := fresh.GetNode(ctx, leaf.Address())
		Expect(err).NotTo(HaveOccurred())
		Expect(n.Bytes()).To(Equal(leaf.Bytes()))
		Expect(n.Leaf().Pairs()).To(Equal(pairs("x", "y")))

		cached, ok := fresh.PeekNode(leaf.Address())
		Expect(ok).To(BeTrue())
		Expect(cached).To(BeIdenticalTo(n))
	})

	It("should reject malformed encodings", func() {
		for _, raw := range [][]byte{
			{},
			{0},
			{0, 1, 1, 1},
			{0, 0, 2, 0},
			{1, 0, 1, 0},
			{0, 2, 1, 1, 'a', 1, 0, 0, 0, 0, 0, 0, 0},
			{0, 1, 1, 1, 'a', 2, 0, 0, 0, 0, 0, 0, 0},
			{0, 2, 1, 2, 'a', 'b', 2, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
			{1, 5, 2, 0, 1, 2, 3},
		} {
			addr, err := store.Put(ctx, raw)
			Expect(err).NotTo(HaveOccurred())
			_, err = manager.GetNode(ctx, addr)
			Expect(err).To(MatchError(prolly.ErrMalformed), "for %v", raw)
		}
	})

	It("should report missing nodes", func() {
		_, err := manager.GetNode(ctx, blockstore.HashBlake3.Sum([]byte("missing")))
		Expect(err).To(MatchError(blockstore.ErrNotFound))
	})

	It("should find keys by binary search", func() {
		rnd := rand.New(rand.NewSource(3))
		keys := make([]string, 0, 15)
		for i := 0; i < 15; i++ {
			keys = append(keys, string(testKey(i*10)))
		}
		leaf, err := manager.CreateLeafNode(ctx, pairs(keys...))
		Expect(err).NotTo(HaveOccurred())
		l := leaf.Leaf()

		for n := 0; n < 200; n++ {
			probe := testKey(rnd.Intn(160))

			exp := len(keys)
			for i, k := range keys {
				if bytes.Compare([]byte(k), probe) >= 0 {
					exp = i
					break
				}
			}

			i, found := l.FindKeyIndex(probe)
			Expect(i).To(Equal(exp), "for %s", probe)
			Expect(found).To(Equal(exp < len(keys) && keys[exp] == string(probe)), "for %s", probe)
		}
	})

	Describe("Internal", func() {
		var subject *prolly.Node
		var children []*prolly.Node

		BeforeEach(func() {
			children = nil
			for _, ks := range [][]string{{"a"}, {"b", "c"}, {"d", "e"}, {"f", "g"}} {
				child, err := manager.CreateLeafNode(ctx, pairs(ks...))
				Expect(err).NotTo(HaveOccurred())
				children = append(children, child)
			}

			var err error
			subject, err = manager.CreateNode(ctx, nil,
				[][]byte{[]byte("b"), []byte("d"), []byte("f")},
				[]prolly.Address{children[0].Address(), children[1].Address(), children[2].Address(), children[3].Address()},
				false)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should encode", func() {
			Expect(subject.IsLeaf()).To(BeFalse())
			Expect(subject.Level()).To(Equal(1))
			Expect(subject.EntryCount()).To(Equal(uint64(7)))
			Expect(subject).To(HaveKeys("b", "d", "f"))

			in := subject.Internal()
			Expect(in.AddressesLength()).To(Equal(4))
			Expect(in.Address(2)).To(Equal(children[2].Address()))
			Expect(in.Addresses()).To(HaveLen(4))
			Expect(in.ChildIndexOf(children[3].Address())).To(Equal(3))
			Expect(in.ChildIndexOf(prolly.Address{})).To(Equal(-1))
			Expect(len(subject.Bytes())).To(Equal(4 + 3 + 4*32 + 3*4))
		})

		It("should find children", func() {
			in := subject.Internal()
			for key, exp := range map[string]int{
				"":  0,
				"a": 0,
				"b": 1,
				"c": 1,
				"d": 2,
				"e": 2,
				"f": 3,
				"z": 3,
			} {
				Expect(in.FindChildIndex([]byte(key))).To(Equal(exp), "for %q", key)
			}
		})

		It("should find first keys", func() {
			Expect(manager.FirstKey(ctx, subject)).To(Equal([]byte("a")))
			key, ok := manager.PeekFirstKey(subject)
			Expect(ok).To(BeTrue())
			Expect(key).To(Equal([]byte("a")))
		})

		It("should validate construction", func() {
			_, err := manager.CreateNode(ctx, nil, [][]byte{[]byte("b")}, []prolly.Address{children[0].Address()}, false)
			Expect(err).To(MatchError(prolly.ErrInvariant))

			_, err = manager.CreateNode(ctx, nil,
				[][]byte{[]byte("d"), []byte("b")},
				[]prolly.Address{children[0].Address(), children[1].Address(), children[2].Address()},
				false)
			Expect(err).To(MatchError(prolly.ErrInvariant))

			_, err = manager.CreateNode(ctx, nil,
				[][]byte{[]byte("b")},
				[]prolly.Address{children[0].Address(), subject.Address()},
				false)
			Expect(err).To(MatchError(prolly.ErrInvariant))

			_, err = manager.CreateNode(ctx, pairs("a"), nil, []prolly.Address{children[0].Address()}, true)
			Expect(err).To(MatchError(prolly.ErrInvariant))

			_, err = manager.CreateLeafNode(ctx, pairs("b", "a"))
			Expect(err).To(MatchError(prolly.ErrInvariant))
		})
	})
})
