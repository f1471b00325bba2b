// Package shard repacks an archive entry stream into a sequence of tar files,
// each bounded by a target byte size, with no entry loss, duplication, or
// reordering.
package shard

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"tarshard/pkg/tarstream"
)

const (
	// HeaderBlockSize is the fixed tar header block size.
	HeaderBlockSize = 512
	// TrailerReserve covers the two all-zero trailer blocks the format
	// writes on close. Entry budgeting stops at TargetSize - TrailerReserve.
	TrailerReserve = 2 * HeaderBlockSize
)

// ErrTargetTooSmall reports a target size that cannot hold even one header
// block plus the trailer, so no shard could ever make progress.
var ErrTargetTooSmall = errors.New("target size too small")

// ErrEntryTooLarge reports an entry whose framed size alone exceeds the
// per-shard budget; continuing would loop without progress.
var ErrEntryTooLarge = errors.New("entry exceeds shard budget")

// Shard summarizes one produced archive.
type Shard struct {
	Path    string
	Entries int
	Size    int64
}

// Writer repacks entries into shards under Dir, named
// "{Prefix}_{000000}.tar" onward. The pending entry carried across a shard
// boundary is explicit state, not loop leakage: an entry rejected from a
// closing shard is held and written first, unconditionally, into the next.
type Writer struct {
	dir        string
	prefix     string
	targetSize int64

	index   int
	pending *tarstream.Entry
}

// NewWriter validates the target size eagerly and returns a Writer. The
// output directory is created if needed.
func NewWriter(dir, prefix string, targetSize int64) (*Writer, error) {
	if targetSize <= HeaderBlockSize+TrailerReserve {
		return nil, fmt.Errorf("%w: %d bytes, need more than %d",
			ErrTargetTooSmall, targetSize, HeaderBlockSize+TrailerReserve)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("shard dir: %w", err)
	}
	return &Writer{dir: dir, prefix: prefix, targetSize: targetSize}, nil
}

// WriteAll consumes the stream and returns the ordered list of produced
// shards. An empty stream produces zero shards. Every non-final shard's
// serialized size is at most the target size; the final shard may hold as
// little as a single entry. Any error aborts the run and leaves the output
// directory untrusted.
func (w *Writer) WriteAll(stream *tarstream.Stream) ([]Shard, error) {
	limit := w.targetSize - TrailerReserve

	var shards []Shard
	for {
		if w.pending == nil {
			e, err := stream.Next()
			if err == io.EOF {
				return shards, nil
			}
			if err != nil {
				return shards, err
			}
			w.pending = e
		}
		if fs := framedSize(w.pending.Header); fs > limit {
			return shards, fmt.Errorf("%w: %s needs %d bytes, shard budget is %d",
				ErrEntryTooLarge, w.pending.Header.Name, fs, limit)
		}

		s, err := w.writeShard(stream, limit)
		if err != nil {
			return shards, err
		}
		shards = append(shards, s)
	}
}

// writeShard opens the next shard, writes the held entry, then pulls from
// the stream until an entry would push the true offset past the budget. That
// entry becomes the new pending entry; stream exhaustion closes the final
// shard with nothing held.
func (w *Writer) writeShard(stream *tarstream.Stream, limit int64) (Shard, error) {
	path := filepath.Join(w.dir, fmt.Sprintf("%s_%06d.tar", w.prefix, w.index))
	w.index++

	f, err := os.Create(path)
	if err != nil {
		return Shard{}, fmt.Errorf("create shard: %w", err)
	}
	cw := &countedWriter{w: f}
	tw := tar.NewWriter(cw)

	entries := 0
	fail := func(err error) (Shard, error) {
		f.Close()
		return Shard{}, err
	}

	if err := writeEntry(tw, w.pending); err != nil {
		return fail(err)
	}
	w.pending = nil
	entries++

	for {
		e, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fail(err)
		}
		if cw.Count()+framedSize(e.Header) > limit {
			w.pending = e
			break
		}
		if err := writeEntry(tw, e); err != nil {
			return fail(err)
		}
		entries++
	}

	if err := tw.Close(); err != nil {
		return fail(fmt.Errorf("close shard %s: %w", path, err))
	}
	if err := f.Close(); err != nil {
		return Shard{}, fmt.Errorf("close shard %s: %w", path, err)
	}
	return Shard{Path: path, Entries: entries, Size: cw.Count()}, nil
}

// writeEntry copies one entry into the shard and flushes so the counted
// writer reflects the block-padded offset.
func writeEntry(tw *tar.Writer, e *tarstream.Entry) error {
	if err := tw.WriteHeader(e.Header); err != nil {
		return fmt.Errorf("write header %s: %w", e.Header.Name, err)
	}
	if e.Header.Size > 0 && e.Body != nil {
		if _, err := io.Copy(tw, e.Body); err != nil {
			return fmt.Errorf("write entry %s: %w", e.Header.Name, err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush entry %s: %w", e.Header.Name, err)
	}
	return nil
}

// framedSize is the on-disk footprint of an entry: its header bytes plus the
// payload rounded up to a whole block. Header bytes are measured by encoding
// the header through a tar.Writer into a counting sink, so PAX or GNU
// extension blocks (long or non-ASCII names, sub-second mtimes, xattrs, long
// linknames) are counted exactly as the shard writer will emit them and the
// shard size bound holds strictly.
func framedSize(hdr *tar.Header) int64 {
	cw := &countedWriter{w: io.Discard}
	if err := tar.NewWriter(cw).WriteHeader(hdr); err != nil {
		// An unencodable header fails identically in the real writer;
		// a plain one-block estimate is enough to route it there.
		return HeaderBlockSize + roundBlock(hdr.Size)
	}
	return cw.Count() + roundBlock(hdr.Size)
}

func roundBlock(n int64) int64 {
	return (n + HeaderBlockSize - 1) / HeaderBlockSize * HeaderBlockSize
}

// countedWriter tracks bytes written to the underlying shard file.
type countedWriter struct {
	w io.Writer
	n int64
}

func (cw *countedWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

func (cw *countedWriter) Count() int64 {
	return cw.n
}
