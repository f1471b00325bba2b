package tarstream

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
)

// SourceArchives resolves a source path to an ordered list of archives: a
// file path is returned as-is, a directory yields its archive members sorted
// by name. An empty directory yields an empty list.
func SourceArchives(src string) ([]string, error) {
	info, err := os.Stat(src)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", src, err)
	}
	if !info.IsDir() {
		return []string{src}, nil
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", src, err)
	}
	var paths []string
	for _, ent := range entries {
		if ent.IsDir() || !IsArchivePath(ent.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(src, ent.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// TotalSize sums the on-disk sizes of the given archives minus the two
// trailer blocks each, the displayed total for progress reporting.
func TotalSize(paths []string) (int64, error) {
	var total int64
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return 0, fmt.Errorf("source %s: %w", p, err)
		}
		total += info.Size() - 2*HeaderBlockSize
	}
	return total, nil
}

// MemberNames reads one archive and returns the set of its member names,
// normalized with path.Clean.
func MemberNames(archivePath string) (map[string]struct{}, error) {
	s := NewStream([]string{archivePath}, nil)
	defer s.Close()

	names := make(map[string]struct{})
	for {
		e, err := s.Next()
		if err == io.EOF {
			return names, nil
		}
		if err != nil {
			return nil, err
		}
		names[path.Clean(e.Header.Name)] = struct{}{}
	}
}
