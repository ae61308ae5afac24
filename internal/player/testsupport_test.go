package player

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// waitFor polls cond until it holds, failing the test after 2s. Used for
// observations that arrive via the queued event delivery goroutine.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// fakeClock hands out strictly increasing times under test control.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
	return c.t
}

// fakeResolver derives URLs from the source ID and counts adaptive probes.
type fakeResolver struct {
	mu       sync.Mutex
	adaptive map[SourceID]bool
	probes   map[SourceID]int
	urlErr   error
}

func (r *fakeResolver) ProgressiveURL(id SourceID) (string, error) {
	if r.urlErr != nil {
		return "", r.urlErr
	}
	return "prog://" + string(id), nil
}

func (r *fakeResolver) ManifestURL(id SourceID) (string, error) {
	if r.urlErr != nil {
		return "", r.urlErr
	}
	return "hls://" + string(id), nil
}

func (r *fakeResolver) SupportsAdaptive(id SourceID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.probes == nil {
		r.probes = make(map[SourceID]int)
	}
	r.probes[id]++
	return r.adaptive[id]
}

func (r *fakeResolver) probeCount(id SourceID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.probes[id]
}

// fakeHandle is a scripted MediaHandle: tests set its buffered ranges and
// position directly and inspect the calls it received.
type fakeHandle struct {
	mu       sync.Mutex
	url      string
	buffered []TimeRange
	pos      float64
	seeks    []float64
	plays    int
	pauses   int
	closed   bool
}

func (h *fakeHandle) Buffered() []TimeRange {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]TimeRange, len(h.buffered))
	copy(out, h.buffered)
	return out
}

func (h *fakeHandle) Position() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pos
}

func (h *fakeHandle) SeekTo(sec float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seeks = append(h.seeks, sec)
	h.pos = sec
}

func (h *fakeHandle) Play() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.plays++
}

func (h *fakeHandle) Pause() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pauses++
}

func (h *fakeHandle) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
}

func (h *fakeHandle) setBuffered(ranges ...TimeRange) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buffered = ranges
}

func (h *fakeHandle) setPos(sec float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pos = sec
}

func (h *fakeHandle) seekCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.seeks)
}

func (h *fakeHandle) pauseCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pauses
}

func (h *fakeHandle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// opened records one factory Open call.
type opened struct {
	url    string
	mode   DeliveryMode
	in     float64
	out    float64
	handle *fakeHandle
	cb     HandleCallbacks
}

// fakeFactory hands out fakeHandles and keeps every Open on record so tests
// can fire ready/error callbacks or inspect delivery decisions.
type fakeFactory struct {
	mu      sync.Mutex
	openErr error
	calls   []opened
}

func (f *fakeFactory) Open(url string, mode DeliveryMode, inPointSec, outPointSec float64, cb HandleCallbacks) (MediaHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	h := &fakeHandle{url: url, pos: inPointSec}
	f.calls = append(f.calls, opened{url: url, mode: mode, in: inPointSec, out: outPointSec, handle: h, cb: cb})
	return h, nil
}

func (f *fakeFactory) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// lastFor returns the most recent Open for the given URL.
func (f *fakeFactory) lastFor(url string) (opened, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].url == url {
			return f.calls[i], nil
		}
	}
	return opened{}, errors.New("no open recorded for " + url)
}

// progURL is the URL the fakeResolver yields for progressive delivery.
func progURL(id SourceID) string {
	return "prog://" + string(id)
}

// threeClipTimeline is the canonical three-clip layout used across tests:
// [0,5000) + [5000,20000) + [20000,25000), middle clip 15s long.
func threeClipTimeline() []Clip {
	return []Clip{
		{ID: "c1", SourceID: "src-a", StartMs: 0, DurationMs: 5000, InPointSec: 0, OutPointSec: 5},
		{ID: "c2", SourceID: "src-b", StartMs: 5000, DurationMs: 15000, InPointSec: 10, OutPointSec: 25},
		{ID: "c3", SourceID: "src-c", StartMs: 20000, DurationMs: 5000, InPointSec: 0, OutPointSec: 5},
	}
}

// testClip builds a clip whose source range matches its duration.
func testClip(id string, startMs, durationMs float64) Clip {
	return Clip{
		ID:          ClipID(id),
		SourceID:    SourceID("src-" + id),
		StartMs:     startMs,
		DurationMs:  durationMs,
		InPointSec:  0,
		OutPointSec: durationMs / 1000,
	}
}

// bufferClip marks the clip's whole source range as fetched on the handle
// most recently opened for it.
func bufferClip(f *fakeFactory, clip Clip) error {
	o, err := f.lastFor(progURL(clip.SourceID))
	if err != nil {
		return fmt.Errorf("buffer clip %s: %w", clip.ID, err)
	}
	o.handle.setBuffered(TimeRange{StartSec: clip.InPointSec, EndSec: clip.OutPointSec})
	return nil
}
