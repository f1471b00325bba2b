// Package manifest computes content digests over produced artifacts and
// assembles the final integrity document.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// FileName is the manifest's name under the repository root.
const FileName = "manifest.json"

// SplitEntry records the artifacts of one split: its metadata streams, its
// ordered shard list, and a digest for every path. All paths are relative to
// the repository root, slash-separated, so the manifest is portable.
type SplitEntry struct {
	JSONFull  string            `json:"json_full"`
	JSONFirst string            `json:"json_first"`
	Tars      []string          `json:"tars"`
	Hashes    map[string]string `json:"hashes"`
}

// Manifest is the top-level document.
type Manifest struct {
	Digest Algorithm             `json:"digest,omitempty"`
	Splits map[string]SplitEntry `json:"splits"`
}

// SplitArtifacts names one split's produced files, as filesystem paths.
type SplitArtifacts struct {
	Name      string
	JSONFull  string
	JSONFirst string
	Tars      []string
}

// Build hashes every artifact and assembles the manifest, recording paths
// relative to repoDir.
func Build(repoDir string, splits []SplitArtifacts, algo Algorithm) (*Manifest, error) {
	m := &Manifest{
		Digest: algo,
		Splits: make(map[string]SplitEntry, len(splits)),
	}
	for _, split := range splits {
		entry, err := buildSplit(repoDir, split, algo)
		if err != nil {
			return nil, fmt.Errorf("split %s: %w", split.Name, err)
		}
		m.Splits[split.Name] = entry
	}
	return m, nil
}

func buildSplit(repoDir string, split SplitArtifacts, algo Algorithm) (SplitEntry, error) {
	rel := func(p string) (string, error) {
		r, err := filepath.Rel(repoDir, p)
		if err != nil {
			return "", fmt.Errorf("relativize %s: %w", p, err)
		}
		return filepath.ToSlash(r), nil
	}

	entry := SplitEntry{Hashes: make(map[string]string)}
	var err error
	if entry.JSONFull, err = rel(split.JSONFull); err != nil {
		return SplitEntry{}, err
	}
	if entry.JSONFirst, err = rel(split.JSONFirst); err != nil {
		return SplitEntry{}, err
	}

	tars := append([]string(nil), split.Tars...)
	sort.Strings(tars)
	for _, tar := range tars {
		r, err := rel(tar)
		if err != nil {
			return SplitEntry{}, err
		}
		entry.Tars = append(entry.Tars, r)
	}

	for _, p := range append([]string{split.JSONFull, split.JSONFirst}, tars...) {
		r, err := rel(p)
		if err != nil {
			return SplitEntry{}, err
		}
		digest, err := HashFile(p, algo)
		if err != nil {
			return SplitEntry{}, err
		}
		entry.Hashes[r] = digest
	}
	return entry, nil
}

// Write stores the manifest at path. The write is atomic: data goes to a
// temp file first and is renamed into place.
func (m *Manifest) Write(path string) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("write manifest: marshal: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".manifest-tmp-*")
	if err != nil {
		return fmt.Errorf("write manifest: tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write manifest: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write manifest: close: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write manifest: rename: %w", err)
	}
	return nil
}

// Load reads a manifest document from path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("load manifest: unmarshal: %w", err)
	}
	return &m, nil
}

// Verify recomputes the digest of every listed path against repoDir and
// returns the relative paths whose digest no longer matches (or that cannot
// be read).
func (m *Manifest) Verify(repoDir string) ([]string, error) {
	algo := m.Digest
	if algo == "" {
		algo = SHA256
	}
	if _, err := newHasher(algo); err != nil {
		return nil, err
	}

	var mismatched []string
	for _, split := range m.Splits {
		for rel, want := range split.Hashes {
			got, err := HashFile(filepath.Join(repoDir, filepath.FromSlash(rel)), algo)
			if err != nil || got != want {
				mismatched = append(mismatched, rel)
			}
		}
	}
	sort.Strings(mismatched)
	return mismatched, nil
}
