package main

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/jedib0t/go-pretty/v6/progress"
)

// progressObserver renders one tracker per split plus one for the archive or
// metadata file currently being streamed.
type progressObserver struct {
	pw      progress.Writer
	split   *progress.Tracker
	current *progress.Tracker
}

func newProgressObserver(out io.Writer) *progressObserver {
	pw := progress.NewWriter()
	pw.SetOutputWriter(out)
	pw.SetAutoStop(false)
	pw.SetUpdateFrequency(100 * time.Millisecond)
	go pw.Render()
	return &progressObserver{pw: pw}
}

func (o *progressObserver) SplitStart(name string, archives int, totalBytes int64) {
	if o.split != nil {
		o.split.MarkAsDone()
	}
	o.split = &progress.Tracker{
		Message: fmt.Sprintf("split %s (%d archives)", name, archives),
		Total:   totalBytes,
		Units:   progress.UnitsBytes,
	}
	o.pw.AppendTracker(o.split)
}

func (o *progressObserver) ArchiveStart(path string, size int64) {
	if o.current != nil {
		o.current.MarkAsDone()
	}
	o.current = &progress.Tracker{
		Message: filepath.Base(path),
		Total:   size,
		Units:   progress.UnitsBytes,
	}
	o.pw.AppendTracker(o.current)
}

func (o *progressObserver) Advance(delta int64) {
	if o.current != nil {
		o.current.Increment(delta)
	}
	if o.split != nil {
		o.split.Increment(delta)
	}
}

// Stop finishes all trackers and waits for the final render.
func (o *progressObserver) Stop() {
	if o.current != nil {
		o.current.MarkAsDone()
	}
	if o.split != nil {
		o.split.MarkAsDone()
	}
	o.pw.Stop()
	for o.pw.IsRenderInProgress() {
		time.Sleep(10 * time.Millisecond)
	}
}
