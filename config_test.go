package prolly_test

import (
	"os"
	"path/filepath"

	"github.com/bsm/prolly"
	"github.com/bsm/prolly/blockstore"
	"github.com/bsm/prolly/chunking"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"
)

var _ = Describe("Config", func() {
	var store *blockstore.Blocks

	BeforeEach(func() {
		store = blockstore.NewMemory(nil)
	})

	It("should apply defaults", func() {
		tree, err := prolly.New(store, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(tree.IsEmpty()).To(BeTrue())

		tree = mustPut(tree, "key", "value")
		Expect(tree.Get(ctx, []byte("key"))).To(Equal([]byte("value")))
	})

	DescribeTable("should reject invalid configs",
		func(cfg *prolly.Config) {
			_, err := prolly.New(store, cfg)
			Expect(err).To(MatchError(prolly.ErrInvalidConfig))
		},
		Entry("tiny target", &prolly.Config{TargetFanout: 3}),
		Entry("tiny min", &prolly.Config{TargetFanout: 8, MinFanout: 1}),
		Entry("min above max entries", &prolly.Config{TargetFanout: 8, MinFanout: 8}),
		Entry("bad hash", &prolly.Config{Hash: blockstore.HashAlgorithm(99)}),
		Entry("bad chunking", &prolly.Config{ValueChunking: prolly.ChunkingPolicy{Strategy: chunking.FixedSize}}),
		Entry("hash mismatch", &prolly.Config{Hash: blockstore.HashSHA256}),
	)

	It("should accept matching hash algorithms", func() {
		sha := blockstore.NewMemory(&blockstore.Options{Hash: blockstore.HashSHA256})
		tree, err := prolly.New(sha, &prolly.Config{Hash: blockstore.HashSHA256, TargetFanout: 8})
		Expect(err).NotTo(HaveOccurred())

		tree = mustPut(tree, "key", "value")
		Expect(tree.Root()).To(Equal(blockstore.HashSHA256.Sum(mustNode(tree).Bytes())))
	})

	Describe("Definition", func() {
		var dir string

		BeforeEach(func() {
			var err error
			dir, err = os.MkdirTemp("", "prolly-config")
			Expect(err).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			Expect(os.RemoveAll(dir)).To(Succeed())
		})

		write := func(body string) string {
			fname := filepath.Join(dir, "tree.json")
			Expect(os.WriteFile(fname, []byte(body), 0o644)).To(Succeed())
			return fname
		}

		It("should load", func() {
			def, err := prolly.LoadDefinition(write(`{
				"treeDefinition": {"targetFanout": 32, "minFanout": 6},
				"hashingAlgorithm": "sha3-256",
				"valueChunking": {"strategy": "fixed-size", "chunkSize": 4096}
			}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(def.TreeDefinition.TargetFanout).To(Equal(32))

			cfg, err := def.Config()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.TargetFanout).To(Equal(32))
			Expect(cfg.MinFanout).To(Equal(6))
			Expect(cfg.Hash).To(Equal(blockstore.HashSHA3_256))
			Expect(cfg.ValueChunking).To(Equal(prolly.ChunkingPolicy{Strategy: chunking.FixedSize, ChunkSize: 4096}))
		})

		It("should default the hash algorithm", func() {
			def, err := prolly.LoadDefinition(write(`{"treeDefinition": {"targetFanout": 16}}`))
			Expect(err).NotTo(HaveOccurred())

			cfg, err := def.Config()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Hash).To(Equal(blockstore.HashBlake3))
			Expect(cfg.MinFanout).To(Equal(0))
		})

		It("should reject bad definitions", func() {
			_, err := prolly.LoadDefinition(write(`{"treeDefinition":`))
			Expect(err).To(MatchError(prolly.ErrInvalidConfig))

			_, err = prolly.LoadDefinition(filepath.Join(dir, "missing.json"))
			Expect(os.IsNotExist(err)).To(BeTrue())

			def, err := prolly.LoadDefinition(write(`{"treeDefinition": {"targetFanout": 16}, "hashingAlgorithm": "md5"}`))
			Expect(err).NotTo(HaveOccurred())
			_, err = def.Config()
			Expect(err).To(MatchError(prolly.ErrInvalidConfig))

			def, err = prolly.LoadDefinition(write(`{"treeDefinition": {"targetFanout": 2}}`))
			Expect(err).NotTo(HaveOccurred())
			_, err = def.Config()
			Expect(err).To(MatchError(prolly.ErrInvalidConfig))
		})
	})
})

func mustNode(tree *prolly.Tree) *prolly.Node {
	n, err := tree.Manager().GetNode(ctx, tree.Root())
	Expect(err).NotTo(HaveOccurred())
	return n
}
