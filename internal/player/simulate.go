package player

import (
	"fmt"
	"sync"
	"time"
)

// Simulated media backend. Lets the whole engine run headless — the demo
// server and the package tests drive real scheduling, eviction, and boundary
// waits against handles that buffer in wall-clock time instead of fetching
// actual media.

// SimResolver is a static SourceResolver: URLs are derived from a base URL,
// and adaptive streaming support is a fixed per-source set. Probe calls are
// counted so tests can verify the pool's probe cache.
type SimResolver struct {
	BaseURL  string
	Adaptive map[SourceID]bool

	mu         sync.Mutex
	probeCalls map[SourceID]int
}

func (r *SimResolver) ProgressiveURL(id SourceID) (string, error) {
	if id == "" {
		return "", fmt.Errorf("empty source id")
	}
	return fmt.Sprintf("%s/%s.mp4", r.BaseURL, id), nil
}

func (r *SimResolver) ManifestURL(id SourceID) (string, error) {
	if id == "" {
		return "", fmt.Errorf("empty source id")
	}
	return fmt.Sprintf("%s/%s/manifest.m3u8", r.BaseURL, id), nil
}

func (r *SimResolver) SupportsAdaptive(id SourceID) bool {
	r.mu.Lock()
	if r.probeCalls == nil {
		r.probeCalls = make(map[SourceID]int)
	}
	r.probeCalls[id]++
	r.mu.Unlock()
	return r.Adaptive[id]
}

// ProbeCalls returns how many times SupportsAdaptive was invoked for id.
func (r *SimResolver) ProbeCalls(id SourceID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.probeCalls[id]
}

// SimHandleFactory opens SimHandles. Each handle reports its full in/out
// range as buffered after Latency has elapsed, then fires OnReady. URLs
// present in Errors fire OnError instead.
type SimHandleFactory struct {
	// Latency is the simulated fetch time before the handle is buffered.
	Latency time.Duration
	// Errors maps URLs to a failure message, simulating decode/network
	// errors for specific media.
	Errors map[string]string
}

func (f *SimHandleFactory) Open(url string, mode DeliveryMode, inPointSec, outPointSec float64, cb HandleCallbacks) (MediaHandle, error) {
	h := &SimHandle{
		url:  url,
		mode: mode,
		in:   inPointSec,
		out:  outPointSec,
		pos:  inPointSec,
	}

	if msg, fail := f.Errors[url]; fail {
		h.timer = time.AfterFunc(f.Latency, func() {
			if cb.OnError != nil {
				cb.OnError(fmt.Errorf("%s", msg))
			}
		})
		return h, nil
	}

	h.timer = time.AfterFunc(f.Latency, func() {
		h.mu.Lock()
		closed := h.closed
		if !closed {
			h.buffered = []TimeRange{{StartSec: h.in, EndSec: h.out}}
		}
		h.mu.Unlock()
		if !closed && cb.OnReady != nil {
			cb.OnReady()
		}
	})
	return h, nil
}

// SimHandle is a decode handle whose position advances with the wall clock
// while playing. It never touches real media.
type SimHandle struct {
	mu   sync.Mutex
	url  string
	mode DeliveryMode
	in   float64
	out  float64

	pos      float64
	playing  bool
	playedAt time.Time
	buffered []TimeRange
	closed   bool
	timer    *time.Timer
}

func (h *SimHandle) Buffered() []TimeRange {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]TimeRange, len(h.buffered))
	copy(out, h.buffered)
	return out
}

func (h *SimHandle) Position() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.positionLocked(time.Now())
}

func (h *SimHandle) SeekTo(sec float64) {
	h.mu.Lock()
	h.pos = sec
	h.playedAt = time.Now()
	h.mu.Unlock()
}

func (h *SimHandle) Play() {
	h.mu.Lock()
	if !h.playing && !h.closed {
		h.playing = true
		h.playedAt = time.Now()
	}
	h.mu.Unlock()
}

func (h *SimHandle) Pause() {
	h.mu.Lock()
	now := time.Now()
	h.pos = h.positionLocked(now)
	h.playing = false
	h.mu.Unlock()
}

func (h *SimHandle) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.playing = false
	if h.timer != nil {
		h.timer.Stop()
	}
	h.mu.Unlock()
}

// Closed reports whether Close has been called. Used by tests to verify that
// a replaced entry released its handle.
func (h *SimHandle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *SimHandle) positionLocked(now time.Time) float64 {
	if !h.playing {
		return h.pos
	}
	pos := h.pos + now.Sub(h.playedAt).Seconds()
	if pos > h.out {
		pos = h.out
	}
	return pos
}
