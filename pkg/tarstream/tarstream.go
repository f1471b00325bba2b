// Package tarstream presents one or more source tar archives as a single
// ordered, single-pass sequence of entries.
package tarstream

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
)

// HeaderBlockSize is the tar header block size; every yielded entry advances
// the progress observer by HeaderBlockSize plus its payload size.
const HeaderBlockSize = 512

// ErrNotArchive marks a source file that is not a well-formed tar archive.
var ErrNotArchive = errors.New("not a tar archive")

// Entry is one archive member: its header, preserved verbatim through
// repacking, and a read-once payload reader. The reader is only valid until
// the next call to Stream.Next.
type Entry struct {
	Header *tar.Header
	Body   io.Reader
}

// Stream iterates the entries of an ordered list of source archives. All
// entries of archive i precede all entries of archive i+1, each in its
// archive's on-disk order. The stream is lazy, finite, and non-restartable;
// nothing is reordered, merged, or deduplicated.
type Stream struct {
	paths []string
	obs   Observer

	next int
	src  io.ReadCloser
	tr   *tar.Reader
	err  error
}

// NewStream creates a stream over paths in the given order. obs may be nil.
// Archives are opened lazily on the first Next that needs them.
func NewStream(paths []string, obs Observer) *Stream {
	if obs == nil {
		obs = NopObserver{}
	}
	return &Stream{paths: paths, obs: obs}
}

// Next returns the next entry, or io.EOF once every archive is exhausted.
// Any other error is fatal: a missing source path, or a malformed archive
// (wrapped ErrNotArchive). The stream is unusable after a non-EOF error.
func (s *Stream) Next() (*Entry, error) {
	if s.err != nil {
		return nil, s.err
	}
	for {
		if s.tr == nil {
			if s.next >= len(s.paths) {
				s.err = io.EOF
				return nil, io.EOF
			}
			if err := s.open(s.paths[s.next]); err != nil {
				s.err = err
				return nil, err
			}
			s.next++
		}

		hdr, err := s.tr.Next()
		if err == io.EOF {
			if cerr := s.closeCurrent(); cerr != nil {
				s.err = cerr
				return nil, cerr
			}
			continue
		}
		if err != nil {
			s.err = fmt.Errorf("archive %s: %w: %w", s.paths[s.next-1], ErrNotArchive, err)
			return nil, s.err
		}

		s.obs.Advance(HeaderBlockSize + hdr.Size)
		return &Entry{Header: hdr, Body: s.tr}, nil
	}
}

// Close releases the currently open archive, if any. Safe after EOF.
func (s *Stream) Close() error {
	return s.closeCurrent()
}

func (s *Stream) open(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	src, err := openArchive(path)
	if err != nil {
		return err
	}
	s.src = src
	s.tr = tar.NewReader(src)
	s.obs.ArchiveStart(path, info.Size())
	return nil
}

func (s *Stream) closeCurrent() error {
	if s.src == nil {
		return nil
	}
	err := s.src.Close()
	s.src = nil
	s.tr = nil
	if err != nil {
		return fmt.Errorf("close archive: %w", err)
	}
	return nil
}
