// Command prolly inspects and edits prolly trees stored in a LevelDB or
// Badger block store.
//
//	prolly --db ./data put - foo bar     # prints the new root
//	prolly --db ./data get <root> foo
//	prolly --db ./data diff <root1> <root2>
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/bsm/prolly"
	"github.com/bsm/prolly/blockstore"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}

// run executes a command line. The block store is closed on return, also
// when the command fails.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	a := new(app)
	cmd := a.command()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if cerr := a.close(); err == nil {
		err = cerr
	}
	return err
}

type app struct {
	dbPath   string
	backend  string
	defPath  string
	logLevel string
	verify   bool

	log   zerolog.Logger
	kv    blockstore.KV
	store *blockstore.Blocks
	empty *prolly.Tree
}

func (a *app) command() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "prolly",
		Short:             "Inspect and edit prolly trees",
		SilenceUsage:      true,
		PersistentPreRunE: func(*cobra.Command, []string) error { return a.open() },
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.dbPath, "db", "", "block store directory (required)")
	flags.StringVar(&a.backend, "backend", "leveldb", "block store backend (leveldb|badger)")
	flags.StringVar(&a.defPath, "config", "", "tree definition JSON file")
	flags.StringVar(&a.logLevel, "log-level", "info", "log level (trace|debug|info|warn|error)")
	flags.BoolVar(&a.verify, "verify", false, "verify block hashes on read")
	_ = cmd.MarkPersistentFlagRequired("db")

	cmd.AddCommand(
		a.putCommand(),
		a.getCommand(),
		a.delCommand(),
		a.scanCommand(),
		a.diffCommand(),
		a.mergeCommand(),
		a.statsCommand(),
		a.checkCommand(),
		a.exportCommand(),
	)
	return cmd
}

func (a *app) open() error {
	level, err := zerolog.ParseLevel(a.logLevel)
	if err != nil {
		return err
	}
	a.log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	cfg := new(prolly.Config)
	if a.defPath != "" {
		def, err := prolly.LoadDefinition(a.defPath)
		if err != nil {
			return err
		}
		if cfg, err = def.Config(); err != nil {
			return err
		}
	}
	cfg.Logger = &a.log

	kv, err := a.openKV()
	if err != nil {
		return err
	}
	a.kv = kv
	a.log.Debug().Str("backend", a.backend).Str("path", a.dbPath).Msg("opened block store")

	a.store = blockstore.New(a.kv, &blockstore.Options{
		Hash:   cfg.Hash,
		Verify: a.verify,
		Logger: &a.log,
	})
	a.empty, err = prolly.New(a.store, cfg)
	return err
}

func (a *app) openKV() (blockstore.KV, error) {
	switch a.backend {
	case "leveldb":
		return blockstore.OpenLevelDB(a.dbPath, nil)
	case "badger":
		return blockstore.OpenBadger(a.dbPath, &a.log)
	}
	return nil, fmt.Errorf("unknown backend %q", a.backend)
}

func (a *app) close() error {
	if a.kv == nil {
		return nil
	}
	a.log.Debug().Str("path", a.dbPath).Msg("closing block store")
	err := a.kv.Close()
	a.kv = nil
	return err
}

// load resolves a root argument. "-" is the empty tree.
func (a *app) load(ctx context.Context, s string) (*prolly.Tree, error) {
	if s == "-" {
		return a.empty, nil
	}
	root, err := blockstore.ParseAddress(s)
	if err != nil {
		return nil, err
	}
	return a.empty.At(ctx, root)
}

func formatRoot(t *prolly.Tree) string {
	if t.IsEmpty() {
		return "-"
	}
	return t.Root().String()
}
