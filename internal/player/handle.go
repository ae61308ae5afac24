package player

// MediaHandle is the decode/render handle behind one ResourceEntry. The
// hosting environment implements it; the pool owns its lifecycle and is the
// only component that keeps a reference to it. Implementations must be safe
// for concurrent use.
type MediaHandle interface {
	// Buffered returns the spans of source-media time fetched so far.
	Buffered() []TimeRange
	// Position reports the current decode position in source seconds.
	Position() float64
	// SeekTo moves the decode position to the given source time.
	SeekTo(sec float64)
	// Play starts decoding/advancing from the current position.
	Play()
	// Pause halts decoding without releasing resources.
	Pause()
	// Close releases the underlying decode resources. Idempotent.
	Close()
}

// HandleCallbacks carries the pool's listeners for a handle's async signals.
// Implementations must invoke them from their own goroutine, never
// synchronously from Open: the pool registers them while holding its lock.
type HandleCallbacks struct {
	// OnReady fires when the handle has buffered enough to start playback.
	OnReady func()
	// OnError fires on a decode or network failure. The pool marks the
	// entry as errored and does not retry.
	OnError func(err error)
}

// HandleFactory opens a decode handle for a resolved URL. Fetching begins
// immediately (fire-and-forget); readiness is reported through cb and by
// polling Buffered, never awaited synchronously.
type HandleFactory interface {
	Open(url string, mode DeliveryMode, inPointSec, outPointSec float64, cb HandleCallbacks) (MediaHandle, error)
}

// SourceResolver maps source media to delivery URLs. Supplied by the hosting
// environment. SupportsAdaptive may be expensive (a manifest probe); the pool
// calls it at most once per source and caches the answer.
type SourceResolver interface {
	ProgressiveURL(id SourceID) (string, error)
	ManifestURL(id SourceID) (string, error)
	SupportsAdaptive(id SourceID) bool
}
