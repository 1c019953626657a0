package prolly_test

import (
	"github.com/bsm/prolly"
	"github.com/bsm/prolly/blockstore"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Cursor", func() {
	var store *blockstore.Blocks
	var tree *prolly.Tree

	BeforeEach(func() {
		store = blockstore.NewMemory(nil)

		// even keys only
		var edits []prolly.Edit
		for i := 0; i < 400; i += 2 {
			edits = append(edits, prolly.Edit{Key: testKey(i), Value: testVal(i)})
		}
		var err error
		tree, err = newTree(store, testConfig()).Apply(ctx, edits...)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should iterate", func() {
		c := tree.Cursor()
		Expect(c.Valid()).To(BeFalse())
		Expect(c.Current()).To(BeNil())

		var n int
		ok, err := c.First(ctx)
		for ; ok; ok, err = c.Next(ctx) {
			Expect(c.Key()).To(Equal(testKey(n * 2)))
			Expect(c.Value()).To(Equal(testVal(n * 2)))
			Expect(c.Current()).To(Equal(&prolly.KeyValuePair{Key: testKey(n * 2), Value: testVal(n * 2)}))
			n++
		}
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(200))
		Expect(c.Valid()).To(BeFalse())

		ok, err = c.Next(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("should handle empty trees", func() {
		c := newTree(store, testConfig()).Cursor()
		Expect(c.First(ctx)).To(BeFalse())
		Expect(c.Seek(ctx, testKey(1))).To(BeFalse())
		Expect(c.SeekGE(ctx, testKey(1))).To(BeFalse())
		Expect(c.Next(ctx)).To(BeFalse())
		Expect(c.FirstCached()).To(BeFalse())
		Expect(c.Err()).NotTo(HaveOccurred())
	})

	It("should seek", func() {
		c := tree.Cursor()
		Expect(c.Seek(ctx, testKey(100))).To(BeTrue())
		Expect(c.Key()).To(Equal(testKey(100)))
		Expect(c.Value()).To(Equal(testVal(100)))

		Expect(c.Next(ctx)).To(BeTrue())
		Expect(c.Key()).To(Equal(testKey(102)))

		// missing keys position the cursor at the insertion point
		ok, err := c.Seek(ctx, testKey(101))
		Expect(err).NotTo(HaveOccurred())
		if !ok {
			Expect(c.Current()).To(BeNil())
			Expect(c.Next(ctx)).To(BeTrue())
		}
		Expect(c.Key()).To(Equal(testKey(102)))
	})

	It("should seek to the first key >= target", func() {
		c := tree.Cursor()
		for i := 0; i < 399; i++ {
			Expect(c.SeekGE(ctx, testKey(i))).To(BeTrue(), "for %d", i)
			Expect(c.Key()).To(Equal(testKey(i+i%2)), "for %d", i)
		}

		Expect(c.SeekGE(ctx, nil)).To(BeTrue())
		Expect(c.Key()).To(Equal(testKey(0)))

		Expect(c.SeekGE(ctx, testKey(399))).To(BeFalse())
		Expect(c.Valid()).To(BeFalse())
		Expect(c.SeekGE(ctx, []byte("zzz"))).To(BeFalse())
	})

	Describe("cached", func() {
		var loaded *prolly.Tree

		BeforeEach(func() {
			var err error
			loaded, err = prolly.Load(ctx, store, tree.Root(), testConfig())
			Expect(err).NotTo(HaveOccurred())
		})

		It("should fail on cold caches", func() {
			c := loaded.Cursor()
			Expect(c.FirstCached()).To(BeFalse())
			Expect(c.Err()).To(MatchError(prolly.ErrNotResident))
			Expect(c.Valid()).To(BeFalse())

			Expect(c.SeekCached(testKey(100))).To(BeFalse())
			Expect(c.Err()).To(MatchError(prolly.ErrNotResident))
		})

		It("should iterate warm caches", func() {
			Expect(loaded.Warm(ctx)).To(Succeed())

			c := loaded.Cursor()
			var n int
			for ok := c.FirstCached(); ok; ok = c.NextCached() {
				Expect(c.Key()).To(Equal(testKey(n * 2)))
				n++
			}
			Expect(c.Err()).NotTo(HaveOccurred())
			Expect(n).To(Equal(200))

			Expect(c.SeekCached(testKey(200))).To(BeTrue())
			Expect(c.Value()).To(Equal(testVal(200)))
		})

		It("should resume after partial loads", func() {
			c := loaded.Cursor()
			Expect(c.First(ctx)).To(BeTrue())
			Expect(c.Err()).NotTo(HaveOccurred())

			// iterate the resident first leaf, then stop at the next one
			var n int
			for c.NextCached() {
				n++
			}
			Expect(c.Err()).To(MatchError(prolly.ErrNotResident))
			Expect(c.Valid()).To(BeTrue())
			Expect(c.Key()).To(Equal(testKey(n * 2)))

			Expect(c.Next(ctx)).To(BeTrue())
			Expect(c.Key()).To(Equal(testKey(n*2 + 2)))
		})
	})
})
