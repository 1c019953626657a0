package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/bsm/prolly"
	"github.com/bsm/prolly/blockstore"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func (a *app) putCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "put ROOT KEY VALUE [KEY VALUE...]",
		Short: "Store pairs and print the new root",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) < 3 || len(args)%2 != 1 {
				return errors.New("expected a root followed by key/value pairs")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			tree, err := a.load(ctx, args[0])
			if err != nil {
				return err
			}

			edits := make([]prolly.Edit, 0, len(args)/2)
			for i := 1; i < len(args); i += 2 {
				edits = append(edits, prolly.Edit{Key: []byte(args[i]), Value: []byte(args[i+1])})
			}
			if tree, err = tree.Apply(ctx, edits...); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatRoot(tree))
			return nil
		},
	}
}

func (a *app) getCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get ROOT KEY",
		Short: "Print the value of a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			tree, err := a.load(ctx, args[0])
			if err != nil {
				return err
			}

			val, err := tree.Get(ctx, []byte(args[1]))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", val)
			return nil
		},
	}
}

func (a *app) delCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "del ROOT KEY [KEY...]",
		Short: "Delete keys and print the new root",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			tree, err := a.load(ctx, args[0])
			if err != nil {
				return err
			}

			edits := make([]prolly.Edit, 0, len(args)-1)
			for _, key := range args[1:] {
				edits = append(edits, prolly.Edit{Key: []byte(key), Delete: true})
			}
			if tree, err = tree.Apply(ctx, edits...); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatRoot(tree))
			return nil
		},
	}
}

func (a *app) scanCommand() *cobra.Command {
	var start, end string
	var limit int

	cmd := &cobra.Command{
		Use:   "scan ROOT",
		Short: "Print pairs in key order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			tree, err := a.load(ctx, args[0])
			if err != nil {
				return err
			}

			var from, stop []byte
			if start != "" {
				from = []byte(start)
			}
			if end != "" {
				stop = []byte(end)
			}

			var n int
			errLimit := errors.New("limit reached")
			err = tree.Scan(ctx, from, stop, func(key, value []byte) error {
				if limit > 0 && n == limit {
					return errLimit
				}
				n++
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", key, value)
				return err
			})
			if err == errLimit {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "first key (inclusive)")
	cmd.Flags().StringVar(&end, "end", "", "last key (exclusive)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of pairs")
	return cmd
}

func (a *app) diffCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "diff LOCAL REMOTE",
		Short: "Print keys that differ between two roots",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			local, err := a.load(ctx, args[0])
			if err != nil {
				return err
			}
			remote, err := a.load(ctx, args[1])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			return local.DiffFunc(ctx, remote, func(d prolly.Difference) error {
				var err error
				switch {
				case d.Local == nil:
					_, err = fmt.Fprintf(out, "+ %s\t%s\n", d.Key, d.Remote)
				case d.Remote == nil:
					_, err = fmt.Fprintf(out, "- %s\t%s\n", d.Key, d.Local)
				default:
					_, err = fmt.Fprintf(out, "~ %s\t%s\t%s\n", d.Key, d.Local, d.Remote)
				}
				return err
			})
		},
	}
}

func (a *app) mergeCommand() *cobra.Command {
	var prefer string

	cmd := &cobra.Command{
		Use:   "merge ANCESTOR LOCAL REMOTE",
		Short: "Three-way merge two roots and print the result",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var trees [3]*prolly.Tree
			for i, s := range args {
				t, err := a.load(ctx, s)
				if err != nil {
					return err
				}
				trees[i] = t
			}

			var resolve prolly.Resolver
			switch prefer {
			case "":
			case "ours":
				resolve = func(_ context.Context, _, _, local, _ []byte) ([]byte, error) { return local, nil }
			case "theirs":
				resolve = func(_ context.Context, _, _, _, remote []byte) ([]byte, error) { return remote, nil }
			default:
				return fmt.Errorf("unknown --prefer value %q", prefer)
			}

			merged, err := prolly.Merge(ctx, trees[1], trees[2], trees[0], resolve)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatRoot(merged))
			return nil
		},
	}
	cmd.Flags().StringVar(&prefer, "prefer", "", "resolve conflicts in favour of one side (ours|theirs)")
	return cmd
}

func (a *app) statsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats ROOT",
		Short: "Print tree statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			tree, err := a.load(ctx, args[0])
			if err != nil {
				return err
			}

			var nodes, leaves, size int64
			if err := tree.Walk(ctx, func(n *prolly.Node) error {
				nodes++
				size += int64(len(n.Bytes()))
				if n.IsLeaf() {
					leaves++
				}
				return nil
			}); err != nil {
				return err
			}

			count, err := tree.Count(ctx)
			if err != nil {
				return err
			}
			height, err := tree.Height(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "root:   %s\n", formatRoot(tree))
			fmt.Fprintf(out, "pairs:  %s\n", humanize.Comma(int64(count)))
			fmt.Fprintf(out, "height: %d\n", height)
			fmt.Fprintf(out, "nodes:  %s (%s leaves)\n", humanize.Comma(nodes), humanize.Comma(leaves))
			fmt.Fprintf(out, "size:   %s\n", humanize.Bytes(uint64(size)))
			return nil
		},
	}
}

func (a *app) checkCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check ROOT",
		Short: "Verify the structural invariants of a tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			tree, err := a.load(ctx, args[0])
			if err != nil {
				return err
			}
			if err := tree.Check(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}

func (a *app) exportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "export ROOT FILE",
		Short: "Copy all blocks of a tree into a CDB archive",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			tree, err := a.load(ctx, args[0])
			if err != nil {
				return err
			}

			w, err := blockstore.CreateArchive(args[1])
			if err != nil {
				return err
			}
			dst := blockstore.New(w, &blockstore.Options{Hash: a.store.Algorithm()})
			if err := tree.Export(ctx, dst); err != nil {
				_ = w.Close()
				return err
			}

			blocks := w.Len()
			if err := w.Close(); err != nil {
				return err
			}
			a.log.Info().Str("file", args[1]).Str("blocks", humanize.Comma(int64(blocks))).Msg("exported")
			return nil
		},
	}
}
