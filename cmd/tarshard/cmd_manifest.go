package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"tarshard/pkg/manifest"
	"tarshard/pkg/tarstream"
)

func newManifestCmd() *cobra.Command {
	var algo string
	var verify bool

	cmd := &cobra.Command{
		Use:   "manifest ROOT",
		Short: "Build (or verify) the integrity manifest over a prepared repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := args[0]
			path := filepath.Join(root, manifest.FileName)
			out := cmd.OutOrStdout()

			if verify {
				m, err := manifest.Load(path)
				if err != nil {
					return err
				}
				mismatched, err := m.Verify(root)
				if err != nil {
					return err
				}
				if len(mismatched) > 0 {
					for _, p := range mismatched {
						fmt.Fprintf(cmd.ErrOrStderr(), "digest mismatch: %s\n", p)
					}
					return fmt.Errorf("verify: %d artifact(s) failed", len(mismatched))
				}
				fmt.Fprintln(out, "all digests match")
				return nil
			}

			splits, err := discoverSplits(filepath.Join(root, "data"))
			if err != nil {
				return err
			}
			if len(splits) == 0 {
				return fmt.Errorf("no splits found under %s", filepath.Join(root, "data"))
			}

			m, err := manifest.Build(root, splits, manifest.Algorithm(algo))
			if err != nil {
				return err
			}
			if err := m.Write(path); err != nil {
				return err
			}
			fmt.Fprintf(out, "wrote %s (%d split(s))\n", path, len(splits))
			return nil
		},
	}

	cmd.Flags().StringVar(&algo, "algo", string(manifest.SHA256), "digest algorithm (sha256 or blake2b)")
	cmd.Flags().BoolVar(&verify, "verify", false, "verify an existing manifest instead of building one")
	return cmd
}

// discoverSplits finds prepared splits under the data directory by layout
// convention: N.json plus N_000000.json plus a shard directory N/.
func discoverSplits(dataDir string) ([]manifest.SplitArtifacts, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, fmt.Errorf("read data dir: %w", err)
	}

	var splits []manifest.SplitArtifacts
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasSuffix(name, "_000000.json") {
			continue
		}
		base := strings.TrimSuffix(name, ".json")
		first := filepath.Join(dataDir, base+"_000000.json")
		tarDir := filepath.Join(dataDir, base)
		if _, err := os.Stat(first); err != nil {
			continue
		}
		if info, err := os.Stat(tarDir); err != nil || !info.IsDir() {
			continue
		}
		tars, err := tarstream.SourceArchives(tarDir)
		if err != nil {
			return nil, err
		}
		splits = append(splits, manifest.SplitArtifacts{
			Name:      base,
			JSONFull:  filepath.Join(dataDir, name),
			JSONFirst: first,
			Tars:      tars,
		})
	}
	sort.Slice(splits, func(i, j int) bool { return splits[i].Name < splits[j].Name })
	return splits, nil
}
