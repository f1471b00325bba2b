package tarstream

// Observer receives progress notifications as the stream advances. The byte
// deltas approximate raw archive consumption (header block + payload size)
// and exist purely for display; shard sizing never consults them.
type Observer interface {
	// SplitStart fires once before a split's archives are streamed.
	SplitStart(name string, archives int, totalBytes int64)
	// ArchiveStart fires when a source archive is opened.
	ArchiveStart(path string, size int64)
	// Advance reports processed bytes since the previous call.
	Advance(delta int64)
}

// NopObserver discards all notifications.
type NopObserver struct{}

func (NopObserver) SplitStart(string, int, int64) {}
func (NopObserver) ArchiveStart(string, int64)    {}
func (NopObserver) Advance(int64)                 {}
