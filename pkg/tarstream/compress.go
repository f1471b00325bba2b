package tarstream

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// archiveSuffixes lists the recognized source archive file extensions, in
// match order. Output shards are always plain .tar; compression is supported
// on the read side only.
var archiveSuffixes = []string{".tar", ".tar.gz", ".tgz", ".tar.zst"}

// IsArchivePath reports whether name has a recognized archive extension.
func IsArchivePath(name string) bool {
	for _, suffix := range archiveSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// openArchive opens a source archive, stacking a decompressor when the file
// extension calls for one.
func openArchive(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	switch {
	case strings.HasSuffix(path, ".tar.gz") || strings.HasSuffix(path, ".tgz"):
		zr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("archive %s: %w: %w", path, ErrNotArchive, err)
		}
		return &decompressReadCloser{r: zr, closers: []io.Closer{zr, f}}, nil
	case strings.HasSuffix(path, ".tar.zst"):
		dec, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("archive %s: %w: %w", path, ErrNotArchive, err)
		}
		rc := dec.IOReadCloser()
		return &decompressReadCloser{r: rc, closers: []io.Closer{rc, f}}, nil
	default:
		return f, nil
	}
}

// decompressReadCloser reads through a decompressor and closes both it and
// the underlying file.
type decompressReadCloser struct {
	r       io.Reader
	closers []io.Closer
}

func (d *decompressReadCloser) Read(p []byte) (int, error) {
	return d.r.Read(p)
}

func (d *decompressReadCloser) Close() error {
	var first error
	for _, c := range d.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
