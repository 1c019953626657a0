package prolly

import (
	"encoding/json"
	"os"

	"github.com/bsm/prolly/blockstore"
	"github.com/bsm/prolly/chunking"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ChunkingPolicy configures how large values are split into chunks.
type ChunkingPolicy = chunking.Policy

// Config contains tree options.
type Config struct {
	// TargetFanout is the number of entries at which a node is always
	// closed; nodes hold at most TargetFanout-1 entries.
	// Default: 64.
	TargetFanout int

	// MinFanout is the minimum number of entries of every node except
	// the rightmost node of each level.
	// Default: TargetFanout/4, but at least 2.
	MinFanout int

	// Hash is the address algorithm. It must match the store's algorithm
	// when the store reports one.
	// Default: blockstore.HashBlake3.
	Hash blockstore.HashAlgorithm

	// ValueChunking splits large values into separately stored chunks.
	// Default: no chunking.
	ValueChunking ChunkingPolicy

	// Compare orders keys.
	// Default: bytes.Compare.
	Compare Comparator

	// CacheSize is the number of decoded nodes and value chunks kept
	// in memory.
	// Default: 4096.
	CacheSize int

	// Concurrency limits parallel block fetches in Warm and Export.
	// Default: 8.
	Concurrency int

	// Logger receives debug output.
	// Default: zerolog.Nop().
	Logger *zerolog.Logger

	// Metrics, if set, are updated by the node manager.
	Metrics *Metrics
}

func (c *Config) norm() *Config {
	var cc Config
	if c != nil {
		cc = *c
	}

	if cc.TargetFanout == 0 {
		cc.TargetFanout = 64
	}
	if cc.MinFanout == 0 {
		cc.MinFanout = cc.TargetFanout / 4
		if cc.MinFanout < 2 {
			cc.MinFanout = 2
		}
	}
	if cc.Compare == nil {
		cc.Compare = defaultCompare
	}
	if cc.CacheSize < 1 {
		cc.CacheSize = 4096
	}
	if cc.Concurrency < 1 {
		cc.Concurrency = 8
	}
	if cc.Logger == nil {
		nop := zerolog.Nop()
		cc.Logger = &nop
	}

	return &cc
}

// validate expects a normalised config.
func (c *Config) validate() error {
	if c.TargetFanout < 4 {
		return errors.Wrapf(ErrInvalidConfig, "target fanout must be at least 4, got %d", c.TargetFanout)
	}
	if c.MinFanout < 2 {
		return errors.Wrapf(ErrInvalidConfig, "min fanout must be at least 2, got %d", c.MinFanout)
	}
	if c.MinFanout > c.TargetFanout-1 {
		return errors.Wrapf(ErrInvalidConfig, "min fanout %d exceeds max entries %d", c.MinFanout, c.TargetFanout-1)
	}
	if !c.Hash.IsValid() {
		return errors.Wrapf(ErrInvalidConfig, "unsupported hash algorithm %v", c.Hash)
	}
	if err := c.ValueChunking.Validate(); err != nil {
		return errors.Wrap(ErrInvalidConfig, err.Error())
	}
	if c.MinFanout > c.TargetFanout/2 {
		c.Logger.Warn().
			Int("min", c.MinFanout).
			Int("target", c.TargetFanout).
			Msg("min fanout exceeds half the target fanout, merged nodes may re-split immediately")
	}
	return nil
}

// pattern is the boundary modulus used by the chunker.
func (c *Config) pattern() uint64 {
	if p := (c.TargetFanout - c.MinFanout) / 4; p > 1 {
		return uint64(p)
	}
	return 1
}

// --------------------------------------------------------------------

// Definition is the serialisable form of a Config.
type Definition struct {
	TreeDefinition struct {
		TargetFanout int `json:"targetFanout"`
		MinFanout    int `json:"minFanout,omitempty"`
	} `json:"treeDefinition"`
	HashingAlgorithm string         `json:"hashingAlgorithm,omitempty"`
	ValueChunking    ChunkingPolicy `json:"valueChunking,omitempty"`
}

// LoadDefinition reads a JSON definition file.
func LoadDefinition(fname string) (*Definition, error) {
	data, err := os.ReadFile(fname)
	if err != nil {
		return nil, err
	}

	def := new(Definition)
	if err := json.Unmarshal(data, def); err != nil {
		return nil, errors.Wrapf(ErrInvalidConfig, "parse %s: %v", fname, err)
	}
	return def, nil
}

// Config converts a definition into a Config.
func (d *Definition) Config() (*Config, error) {
	hash, err := blockstore.ParseHashAlgorithm(d.HashingAlgorithm)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidConfig, err.Error())
	}

	cfg := &Config{
		TargetFanout:  d.TreeDefinition.TargetFanout,
		MinFanout:     d.TreeDefinition.MinFanout,
		Hash:          hash,
		ValueChunking: d.ValueChunking,
	}
	if err := cfg.norm().validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
