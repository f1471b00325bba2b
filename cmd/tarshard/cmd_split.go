package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"tarshard/pkg/corpus"
	"tarshard/pkg/shard"
	"tarshard/pkg/tarstream"
)

func newSplitCmd() *cobra.Command {
	var prefix string
	var maxSize string
	var noProgress bool

	cmd := &cobra.Command{
		Use:   "split SRC DST",
		Short: "Repack a tar file or directory of tars into size-bounded shards",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, dst := args[0], args[1]

			targetSize, err := corpus.ParseSize(maxSize)
			if err != nil {
				return err
			}
			paths, err := tarstream.SourceArchives(src)
			if err != nil {
				return err
			}

			name := prefix
			if name == "" {
				name, _, _ = strings.Cut(filepath.Base(src), ".")
			}

			w, err := shard.NewWriter(dst, name, targetSize)
			if err != nil {
				return err
			}

			var obs tarstream.Observer = tarstream.NopObserver{}
			var bars *progressObserver
			if !noProgress {
				bars = newProgressObserver(cmd.ErrOrStderr())
				obs = bars
				total, err := tarstream.TotalSize(paths)
				if err != nil {
					return err
				}
				bars.SplitStart(name, len(paths), total)
			}

			stream := tarstream.NewStream(paths, obs)
			defer stream.Close()
			shards, err := w.WriteAll(stream)
			if bars != nil {
				bars.Stop()
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(shards) == 0 {
				fmt.Fprintln(out, "no entries, no shards produced")
				return nil
			}
			var total int64
			for _, s := range shards {
				total += s.Size
			}
			fmt.Fprintf(out, "wrote %d shard(s), %s, to %s\n",
				len(shards), corpus.FormatSize(total), dst)
			return nil
		},
	}

	cmd.Flags().StringVar(&prefix, "prefix", "", "naming prefix for output shards (default: source basename)")
	cmd.Flags().StringVar(&maxSize, "max-size", corpus.DefaultMaxShardSize, "maximum size per shard (suffixes B, K, M, G, T)")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "disable progress bars")
	return cmd
}
