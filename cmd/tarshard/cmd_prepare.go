package main

import (
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"tarshard/pkg/corpus"
	"tarshard/pkg/manifest"
	"tarshard/pkg/pipeline"
	"tarshard/pkg/tarstream"
)

func newPrepareCmd() *cobra.Command {
	var configPath string
	var algo string
	var noProgress bool

	cmd := &cobra.Command{
		Use:   "prepare",
		Short: "Run the full pipeline: reshard every split, subset metadata, build the manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := corpus.LoadConfig(configPath)
			if err != nil {
				return err
			}

			var obs tarstream.Observer = tarstream.NopObserver{}
			var bars *progressObserver
			if !noProgress {
				bars = newProgressObserver(cmd.ErrOrStderr())
				obs = bars
			}

			summary, err := pipeline.Run(pipeline.Options{
				Config:    cfg,
				Algorithm: manifest.Algorithm(algo),
				Observer:  obs,
			})
			if bars != nil {
				bars.Stop()
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderSummary(summary))
			fmt.Fprintf(out, "manifest: %s\n", summary.ManifestPath)
			for _, s := range summary.Splits {
				if s.Unmatched > 0 {
					fmt.Fprintf(cmd.ErrOrStderr(), "[!] subset %s missing %d\n", s.DisplayName, s.Unmatched)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "tarshard.toml", "run configuration file")
	cmd.Flags().StringVar(&algo, "algo", string(manifest.SHA256), "digest algorithm (sha256 or blake2b)")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "disable progress bars")
	return cmd
}

func renderSummary(summary *pipeline.Summary) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"split", "name", "shards", "size", "records", "kept"})
	for _, s := range summary.Splits {
		tw.AppendRow(table.Row{
			s.Name,
			s.DisplayName,
			strconv.Itoa(s.Shards),
			corpus.FormatSize(s.Bytes),
			strconv.Itoa(s.Records),
			strconv.Itoa(s.Kept),
		})
	}
	return tw.Render()
}
