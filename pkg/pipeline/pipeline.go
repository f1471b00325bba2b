// Package pipeline runs the full prepare pass: reshard each split's source
// archives, carry its metadata stream alongside, filter the first-shard
// subset, and build the integrity manifest over everything produced.
package pipeline

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"tarshard/pkg/corpus"
	"tarshard/pkg/manifest"
	"tarshard/pkg/shard"
	"tarshard/pkg/subset"
	"tarshard/pkg/tarstream"
)

// copyChunkSize is the buffer size for the metadata stream copy.
const copyChunkSize = 64 * 1024

// Options configures a run.
type Options struct {
	Config    *corpus.Config
	Algorithm manifest.Algorithm
	// Observer receives progress for archive streaming and metadata
	// copying; nil disables reporting.
	Observer tarstream.Observer
}

// SplitSummary reports one split's outcome.
type SplitSummary struct {
	Name        string
	DisplayName string
	Shards      int
	Bytes       int64
	Records     int
	Kept        int
	// Unmatched counts first-shard members never referenced by any
	// metadata record; nonzero values indicate a corpus/metadata
	// inconsistency but do not fail the run.
	Unmatched int
}

// Summary reports a whole run.
type Summary struct {
	Splits       []SplitSummary
	ManifestPath string
}

// Run executes the pipeline. Splits are processed independently and in
// order; within a split the stages are strictly sequential. Any fatal error
// aborts the run and leaves the output directory untrusted.
func Run(opts Options) (*Summary, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	shardSize, err := cfg.ShardSize()
	if err != nil {
		return nil, err
	}
	obs := opts.Observer
	if obs == nil {
		obs = tarstream.NopObserver{}
	}

	summary := &Summary{}
	var artifacts []manifest.SplitArtifacts
	for _, split := range cfg.SplitList() {
		sum, arts, err := runSplit(cfg, split, shardSize, obs)
		if err != nil {
			return nil, fmt.Errorf("split %s: %w", split.Name, err)
		}
		summary.Splits = append(summary.Splits, *sum)
		artifacts = append(artifacts, *arts)
	}

	m, err := manifest.Build(cfg.Out, artifacts, opts.Algorithm)
	if err != nil {
		return nil, err
	}
	summary.ManifestPath = filepath.Join(cfg.Out, manifest.FileName)
	if err := m.Write(summary.ManifestPath); err != nil {
		return nil, err
	}
	return summary, nil
}

func runSplit(cfg *corpus.Config, split corpus.Split, shardSize int64, obs tarstream.Observer) (*SplitSummary, *manifest.SplitArtifacts, error) {
	display := split.DisplayName
	dataDir := cfg.DataDir()

	srcTars, err := tarstream.SourceArchives(cfg.SourceTarDir(split.Name))
	if err != nil {
		return nil, nil, err
	}
	total, err := tarstream.TotalSize(srcTars)
	if err != nil {
		return nil, nil, err
	}
	obs.SplitStart(display, len(srcTars), total)

	w, err := shard.NewWriter(filepath.Join(dataDir, display), display, shardSize)
	if err != nil {
		return nil, nil, err
	}
	stream := tarstream.NewStream(srcTars, obs)
	defer stream.Close()

	shards, err := w.WriteAll(stream)
	if err != nil {
		return nil, nil, err
	}

	jsonFull := filepath.Join(dataDir, display+".json")
	if err := copyFile(cfg.SourceJSON(split.Name), jsonFull, obs); err != nil {
		return nil, nil, err
	}

	// The reference set is the first shard's member names; with zero
	// shards the subset is empty by construction.
	names := make(map[string]struct{})
	if len(shards) > 0 {
		names, err = tarstream.MemberNames(shards[0].Path)
		if err != nil {
			return nil, nil, err
		}
	}
	jsonFirst := filepath.Join(dataDir, fmt.Sprintf("%s_%06d.json", display, 0))
	res, err := subset.FilterFile(jsonFull, jsonFirst, names)
	if err != nil {
		return nil, nil, err
	}

	sum := &SplitSummary{
		Name:        split.Name,
		DisplayName: display,
		Shards:      len(shards),
		Records:     res.Records,
		Kept:        res.Kept,
		Unmatched:   res.Unmatched,
	}
	arts := &manifest.SplitArtifacts{
		Name:      display,
		JSONFull:  jsonFull,
		JSONFirst: jsonFirst,
	}
	for _, s := range shards {
		sum.Bytes += s.Size
		arts.Tars = append(arts.Tars, s.Path)
	}
	return sum, arts, nil
}

// copyFile streams src to dst in fixed-size chunks, reporting progress.
func copyFile(src, dst string, obs tarstream.Observer) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	obs.ArchiveStart(src, info.Size())

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("copy to %s: %w", dst, err)
	}

	buf := make([]byte, copyChunkSize)
	for {
		n, rerr := in.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				out.Close()
				return fmt.Errorf("copy to %s: %w", dst, werr)
			}
			obs.Advance(int64(n))
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			out.Close()
			return fmt.Errorf("copy %s: %w", src, rerr)
		}
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	return nil
}
