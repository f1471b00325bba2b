// Package subset filters a line-delimited JSON metadata stream down to the
// records referencing the members of one reference shard, keeping all
// training-data columns aligned.
package subset

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
)

// trainingDataKey is the per-record field holding the columnar clip data.
const trainingDataKey = "training_data"

// nameColumn is the column whose values are matched against shard members.
const nameColumn = "name"

// Result summarizes one filter pass.
type Result struct {
	// Records is the number of input records read.
	Records int
	// Kept is the number of records re-emitted with at least one clip.
	Kept int
	// Clips is the number of clip tuples surviving the filter.
	Clips int
	// Unmatched counts reference names never seen in any record: a
	// corpus/metadata inconsistency, reported but not fatal.
	Unmatched int
}

// Filter copies records from r to w, keeping only the clip tuples whose name
// is in the reference set. Records with no surviving tuple are dropped;
// survivors have every column shrunk to the surviving tuples, so column
// lengths stay equal and positions keep describing the same clip.
func Filter(r io.Reader, w io.Writer, names map[string]struct{}) (*Result, error) {
	todo := make(map[string]struct{}, len(names))
	for n := range names {
		todo[n] = struct{}{}
	}

	res := &Result{}
	out := bufio.NewWriter(w)
	br := bufio.NewReaderSize(r, 1<<20)
	for lineno := 1; ; lineno++ {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 && !isBlank(line) {
			res.Records++
			kept, clips, ferr := filterRecord(line, names, todo)
			if ferr != nil {
				return nil, fmt.Errorf("record %d: %w", lineno, ferr)
			}
			if kept != nil {
				res.Kept++
				res.Clips += clips
				if _, werr := out.Write(kept); werr != nil {
					return nil, fmt.Errorf("write record %d: %w", lineno, werr)
				}
				if werr := out.WriteByte('\n'); werr != nil {
					return nil, fmt.Errorf("write record %d: %w", lineno, werr)
				}
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record %d: %w", lineno, err)
		}
	}
	if err := out.Flush(); err != nil {
		return nil, fmt.Errorf("flush output: %w", err)
	}

	res.Unmatched = len(todo)
	return res, nil
}

// FilterFile runs Filter from jsonPath to outPath.
func FilterFile(jsonPath, outPath string, names map[string]struct{}) (*Result, error) {
	in, err := os.Open(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("open metadata: %w", err)
	}
	defer in.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return nil, fmt.Errorf("create subset: %w", err)
	}

	res, err := Filter(in, out, names)
	if err != nil {
		out.Close()
		return nil, err
	}
	if err := out.Close(); err != nil {
		return nil, fmt.Errorf("close subset: %w", err)
	}
	return res, nil
}

// filterRecord returns the re-marshaled record with surviving tuples, or nil
// when no tuple survives. Reference names seen in the record are removed
// from todo.
func filterRecord(line []byte, names, todo map[string]struct{}) ([]byte, int, error) {
	var rec map[string]json.RawMessage
	if err := json.Unmarshal(line, &rec); err != nil {
		return nil, 0, fmt.Errorf("decode: %w", err)
	}
	rawTrain, ok := rec[trainingDataKey]
	if !ok {
		return nil, 0, fmt.Errorf("missing %s", trainingDataKey)
	}

	var cols map[string][]json.RawMessage
	if err := json.Unmarshal(rawTrain, &cols); err != nil {
		return nil, 0, fmt.Errorf("decode %s: %w", trainingDataKey, err)
	}
	rawNames, ok := cols[nameColumn]
	if !ok {
		return nil, 0, fmt.Errorf("%s has no %s column", trainingDataKey, nameColumn)
	}
	for col, values := range cols {
		if len(values) != len(rawNames) {
			return nil, 0, fmt.Errorf("column %s has %d values, %s has %d",
				col, len(values), nameColumn, len(rawNames))
		}
	}

	keep := make([]int, 0, len(rawNames))
	for i, raw := range rawNames {
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			return nil, 0, fmt.Errorf("%s[%d]: %w", nameColumn, i, err)
		}
		name = path.Clean(name)
		if _, ok := names[name]; ok {
			delete(todo, name)
			keep = append(keep, i)
		}
	}
	if len(keep) == 0 {
		return nil, 0, nil
	}

	filtered := make(map[string][]json.RawMessage, len(cols))
	for col, values := range cols {
		sub := make([]json.RawMessage, len(keep))
		for j, i := range keep {
			sub[j] = values[i]
		}
		filtered[col] = sub
	}
	rawFiltered, err := json.Marshal(filtered)
	if err != nil {
		return nil, 0, fmt.Errorf("encode %s: %w", trainingDataKey, err)
	}
	rec[trainingDataKey] = rawFiltered

	encoded, err := json.Marshal(rec)
	if err != nil {
		return nil, 0, fmt.Errorf("encode: %w", err)
	}
	return encoded, len(keep), nil
}

func isBlank(line []byte) bool {
	return len(bytes.TrimSpace(line)) == 0
}
