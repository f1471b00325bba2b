package shard

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tarshard/pkg/tarstream"
)

// blockSized returns payload bytes occupying exactly n header blocks.
func blockSized(n int, fill byte) []byte {
	return bytes.Repeat([]byte{fill}, n*HeaderBlockSize)
}

func writeSourceTar(t *testing.T, path string, names []string, payloads [][]byte) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	tw := tar.NewWriter(f)
	for i, name := range names {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(payloads[i]))}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("WriteHeader(%s): %v", name, err)
		}
		if _, err := tw.Write(payloads[i]); err != nil {
			t.Fatalf("Write(%s): %v", name, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
}

func readShardNames(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open shard %s: %v", path, err)
	}
	defer f.Close()

	var names []string
	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return names
		}
		if err != nil {
			t.Fatalf("read shard %s: %v", path, err)
		}
		names = append(names, hdr.Name)
	}
}

func reshard(t *testing.T, srcNames []string, payloads [][]byte, targetSize int64) []Shard {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "src.tar")
	writeSourceTar(t, src, srcNames, payloads)

	w, err := NewWriter(filepath.Join(dir, "out"), "split", targetSize)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	stream := tarstream.NewStream([]string{src}, nil)
	defer stream.Close()

	shards, err := w.WriteAll(stream)
	if err != nil {
		t.Fatalf("WriteAll: %v", err)
	}
	return shards
}

// Five entries whose framed sizes are [2, 10, 2, 10, 2] blocks against a
// budget of 12 blocks per shard: the boundaries must land as 2+2+1 entries
// with the final entry alone in its own shard.
func TestWriterBoundaryExample(t *testing.T) {
	names := []string{"e1", "e2", "e3", "e4", "e5"}
	payloads := [][]byte{
		blockSized(1, 'a'),
		blockSized(9, 'b'),
		blockSized(1, 'c'),
		blockSized(9, 'd'),
		blockSized(1, 'e'),
	}
	targetSize := int64(12*HeaderBlockSize + TrailerReserve)

	shards := reshard(t, names, payloads, targetSize)
	if len(shards) != 3 {
		t.Fatalf("got %d shards, want 3", len(shards))
	}

	wantEntries := [][]string{{"e1", "e2"}, {"e3", "e4"}, {"e5"}}
	for i, s := range shards {
		got := readShardNames(t, s.Path)
		if strings.Join(got, ",") != strings.Join(wantEntries[i], ",") {
			t.Fatalf("shard %d entries = %v, want %v", i, got, wantEntries[i])
		}
		if s.Entries != len(wantEntries[i]) {
			t.Fatalf("shard %d Entries = %d, want %d", i, s.Entries, len(wantEntries[i]))
		}
	}
}

func TestWriterNoLossNoDuplicationInOrder(t *testing.T) {
	var names []string
	var payloads [][]byte
	for i := 0; i < 37; i++ {
		names = append(names, fmt.Sprintf("clip_%03d.flac", i))
		payloads = append(payloads, blockSized(1+i%5, byte('a'+i%26)))
	}
	targetSize := int64(9*HeaderBlockSize + TrailerReserve)

	shards := reshard(t, names, payloads, targetSize)

	var got []string
	for _, s := range shards {
		got = append(got, readShardNames(t, s.Path)...)
	}
	if len(got) != len(names) {
		t.Fatalf("total entries = %d, want %d", len(got), len(names))
	}
	for i := range names {
		if got[i] != names[i] {
			t.Fatalf("entry %d = %q, want %q", i, got[i], names[i])
		}
	}
}

func TestWriterSizeBound(t *testing.T) {
	var names []string
	var payloads [][]byte
	for i := 0; i < 20; i++ {
		names = append(names, fmt.Sprintf("f%02d", i))
		payloads = append(payloads, blockSized(1+i%4, 'x'))
	}
	targetSize := int64(8*HeaderBlockSize + TrailerReserve)

	shards := reshard(t, names, payloads, targetSize)
	if len(shards) < 2 {
		t.Fatalf("want multiple shards, got %d", len(shards))
	}
	for i, s := range shards {
		info, err := os.Stat(s.Path)
		if err != nil {
			t.Fatalf("stat %s: %v", s.Path, err)
		}
		if info.Size() != s.Size {
			t.Fatalf("shard %d reported size %d, on disk %d", i, s.Size, info.Size())
		}
		if info.Size() > targetSize {
			t.Fatalf("shard %d is %d bytes, exceeds target %d", i, info.Size(), targetSize)
		}
	}
}

func TestWriterPayloadsSurviveRepacking(t *testing.T) {
	names := []string{"a.flac", "b.flac", "c.flac"}
	payloads := [][]byte{
		[]byte("not a block multiple"),
		blockSized(2, 'q'),
		[]byte("tail"),
	}
	targetSize := int64(4*HeaderBlockSize + TrailerReserve)

	shards := reshard(t, names, payloads, targetSize)

	byName := make(map[string][]byte)
	for _, s := range shards {
		f, err := os.Open(s.Path)
		if err != nil {
			t.Fatalf("open %s: %v", s.Path, err)
		}
		tr := tar.NewReader(f)
		for {
			hdr, err := tr.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatalf("read %s: %v", s.Path, err)
			}
			data, err := io.ReadAll(tr)
			if err != nil {
				t.Fatalf("read %s body: %v", hdr.Name, err)
			}
			byName[hdr.Name] = data
		}
		f.Close()
	}

	for i, name := range names {
		if !bytes.Equal(byName[name], payloads[i]) {
			t.Fatalf("payload of %s corrupted: got %d bytes, want %d", name, len(byName[name]), len(payloads[i]))
		}
	}
}

// Headers that cannot be encoded as plain USTAR grow by PAX extension
// blocks; the admission check must budget for those, or a non-final shard
// overshoots the target when such an entry lands near a boundary.
func TestWriterSizeBoundWithExtendedHeaders(t *testing.T) {
	names := []string{"a.flac", "café.flac", "b.flac"}
	payloads := [][]byte{
		blockSized(8, 'a'),
		blockSized(1, 'c'),
		blockSized(1, 'b'),
	}
	targetSize := int64(12*HeaderBlockSize + TrailerReserve)

	shards := reshard(t, names, payloads, targetSize)
	if len(shards) < 2 {
		t.Fatalf("want multiple shards, got %d", len(shards))
	}
	for i, s := range shards[:len(shards)-1] {
		info, err := os.Stat(s.Path)
		if err != nil {
			t.Fatalf("stat %s: %v", s.Path, err)
		}
		if info.Size() > targetSize {
			t.Fatalf("non-final shard %d is %d bytes, exceeds target %d", i, info.Size(), targetSize)
		}
	}

	var got []string
	for _, s := range shards {
		got = append(got, readShardNames(t, s.Path)...)
	}
	if len(got) != len(names) {
		t.Fatalf("total entries = %d, want %d", len(got), len(names))
	}
	for i := range names {
		if got[i] != names[i] {
			t.Fatalf("entry %d = %q, want %q", i, got[i], names[i])
		}
	}
}

func TestFramedSizeCountsExtensionBlocks(t *testing.T) {
	plain := framedSize(&tar.Header{Name: "a.flac", Mode: 0o644, Size: 512})
	if plain != 2*HeaderBlockSize {
		t.Fatalf("plain framedSize = %d, want %d", plain, 2*HeaderBlockSize)
	}

	extended := framedSize(&tar.Header{Name: "café.flac", Mode: 0o644, Size: 512})
	if extended <= plain {
		t.Fatalf("non-ASCII name framedSize = %d, want more than plain %d", extended, plain)
	}

	long := framedSize(&tar.Header{Name: strings.Repeat("d/", 90) + "clip.flac", Mode: 0o644, Size: 512})
	if long <= plain {
		t.Fatalf("long name framedSize = %d, want more than plain %d", long, plain)
	}
}

func TestWriterEmptyStreamProducesZeroShards(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(filepath.Join(dir, "out"), "split", 1<<20)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	stream := tarstream.NewStream(nil, nil)
	shards, err := w.WriteAll(stream)
	if err != nil {
		t.Fatalf("WriteAll: %v", err)
	}
	if len(shards) != 0 {
		t.Fatalf("got %d shards, want 0", len(shards))
	}

	entries, err := os.ReadDir(filepath.Join(dir, "out"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("output dir not empty: %v", entries)
	}
}

func TestWriterEmptySourceArchive(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "empty.tar")
	writeSourceTar(t, src, nil, nil)

	w, err := NewWriter(filepath.Join(dir, "out"), "split", 1<<20)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	stream := tarstream.NewStream([]string{src}, nil)
	defer stream.Close()

	shards, err := w.WriteAll(stream)
	if err != nil {
		t.Fatalf("WriteAll: %v", err)
	}
	if len(shards) != 0 {
		t.Fatalf("got %d shards, want 0", len(shards))
	}
}

func TestWriterRejectsTooSmallTarget(t *testing.T) {
	_, err := NewWriter(t.TempDir(), "split", HeaderBlockSize+TrailerReserve)
	if !errors.Is(err, ErrTargetTooSmall) {
		t.Fatalf("NewWriter = %v, want ErrTargetTooSmall", err)
	}
}

func TestWriterFailsFastOnOversizeEntry(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.tar")
	writeSourceTar(t, src,
		[]string{"small", "huge"},
		[][]byte{blockSized(1, 's'), blockSized(8, 'h')},
	)

	// Budget of 4 blocks: "small" fits, "huge" alone never can.
	w, err := NewWriter(filepath.Join(dir, "out"), "split", 4*HeaderBlockSize+TrailerReserve)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	stream := tarstream.NewStream([]string{src}, nil)
	defer stream.Close()

	_, err = w.WriteAll(stream)
	if !errors.Is(err, ErrEntryTooLarge) {
		t.Fatalf("WriteAll = %v, want ErrEntryTooLarge", err)
	}
}

func TestWriterDeterministicBoundaries(t *testing.T) {
	var names []string
	var payloads [][]byte
	for i := 0; i < 23; i++ {
		names = append(names, fmt.Sprintf("m%02d", i))
		payloads = append(payloads, blockSized(1+(i*7)%6, 'p'))
	}
	targetSize := int64(11*HeaderBlockSize + TrailerReserve)

	first := reshard(t, names, payloads, targetSize)
	second := reshard(t, names, payloads, targetSize)

	if len(first) != len(second) {
		t.Fatalf("shard counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Entries != second[i].Entries || first[i].Size != second[i].Size {
			t.Fatalf("shard %d differs across runs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestWriterShardNaming(t *testing.T) {
	names := []string{"a", "b", "c"}
	payloads := [][]byte{blockSized(3, 'a'), blockSized(3, 'b'), blockSized(3, 'c')}
	shards := reshard(t, names, payloads, int64(4*HeaderBlockSize+TrailerReserve))

	if len(shards) != 3 {
		t.Fatalf("got %d shards, want 3", len(shards))
	}
	for i, s := range shards {
		want := fmt.Sprintf("split_%06d.tar", i)
		if filepath.Base(s.Path) != want {
			t.Fatalf("shard %d = %s, want %s", i, filepath.Base(s.Path), want)
		}
	}
}
