package player

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ResourcePool owns the live decode handles, one per active clip instance.
// Its entry map is the single source of truth: all mutation goes through
// CreateOrReplace/Destroy, so concurrent callers fully replace state rather
// than patching it.
type ResourcePool struct {
	mu      sync.Mutex
	entries map[ClipID]*ResourceEntry

	resolver SourceResolver
	factory  HandleFactory
	cfg      Config
	log      *slog.Logger
	events   *emitter

	// adaptiveOK caches the per-source adaptive streaming probe.
	adaptiveOK map[SourceID]bool

	now func() time.Time
}

// NewResourcePool returns an empty pool. resolver and factory are the
// host-supplied media backend.
func NewResourcePool(resolver SourceResolver, factory HandleFactory, cfg Config, log *slog.Logger) *ResourcePool {
	if log == nil {
		log = slog.Default()
	}
	return &ResourcePool{
		entries:    make(map[ClipID]*ResourceEntry),
		resolver:   resolver,
		factory:    factory,
		cfg:        cfg.normalized(),
		log:        log.With("component", "pool"),
		events:     &emitter{},
		adaptiveOK: make(map[SourceID]bool),
		now:        time.Now,
	}
}

// Subscribe registers fn for every pool event. Events are queued and
// delivered in order on a background goroutine, so fn may call back into the
// pool or the controller.
func (p *ResourcePool) Subscribe(fn func(Event)) {
	p.events.subscribe(fn)
}

// CreateOrReplace allocates a decode resource for the clip, tearing down any
// existing entry for the same clip ID first so no handle or listener leaks.
// Delivery mode is chosen once, at creation:
//
//   - forceProgressive or a broll clip: progressive
//   - duration below AdaptiveThresholdSec: progressive
//   - otherwise adaptive streaming if the source supports it, else progressive
//
// Fetching begins immediately; readiness is observed via IsReady or events.
func (p *ResourcePool) CreateOrReplace(clip Clip, forceProgressive bool) (ResourceInfo, error) {
	p.mu.Lock()

	if old, ok := p.entries[clip.ID]; ok {
		p.removeLocked(old)
	}

	mode := p.selectModeLocked(clip, forceProgressive)

	var (
		url string
		err error
	)
	switch mode {
	case DeliveryAdaptive:
		url, err = p.resolver.ManifestURL(clip.SourceID)
	default:
		url, err = p.resolver.ProgressiveURL(clip.SourceID)
	}
	if err != nil {
		p.mu.Unlock()
		return ResourceInfo{}, fmt.Errorf("resolve %s url for source %s: %w", mode, clip.SourceID, err)
	}

	entry := &ResourceEntry{
		ClipID:      clip.ID,
		SourceID:    clip.SourceID,
		HandleID:    uuid.NewString(),
		URL:         url,
		Mode:        mode,
		Status:      StatusLoading,
		InPointSec:  clip.InPointSec,
		OutPointSec: clip.OutPointSec,
		Broll:       clip.Broll,
		LastTouched: p.now(),
	}

	handleID := entry.HandleID
	clipID := clip.ID
	handle, err := p.factory.Open(url, mode, clip.InPointSec, clip.OutPointSec, HandleCallbacks{
		OnReady: func() { p.markReady(clipID, handleID) },
		OnError: func(err error) { p.markError(clipID, handleID, err) },
	})
	if err != nil {
		p.mu.Unlock()
		return ResourceInfo{}, fmt.Errorf("open handle for clip %s: %w", clip.ID, err)
	}
	entry.handle = handle
	p.entries[clip.ID] = entry
	info := entry.info()
	p.mu.Unlock()

	p.log.Debug("resource created",
		slog.String("clip_id", string(clip.ID)),
		slog.String("source_id", string(clip.SourceID)),
		slog.String("mode", string(mode)),
		slog.String("handle_id", handleID),
	)
	p.events.emit(Event{Kind: EventLoadStarted, ClipID: clip.ID, SourceID: clip.SourceID, Mode: mode})
	return info, nil
}

// Destroy tears down the entry for clipID. Idempotent; unknown IDs are a no-op.
func (p *ResourcePool) Destroy(clipID ClipID) {
	p.mu.Lock()
	entry, ok := p.entries[clipID]
	if ok {
		p.removeLocked(entry)
	}
	p.mu.Unlock()
}

// IsReady reports whether the buffered coverage from the clip's in-point
// meets min(BufferThresholdSec, clip duration). It refreshes the entry's
// buffered-range list from the handle as a side effect, since buffered state
// changes asynchronously. Unknown or errored entries are never ready.
func (p *ResourcePool) IsReady(clipID ClipID) bool {
	p.mu.Lock()
	entry, ok := p.entries[clipID]
	if !ok {
		p.mu.Unlock()
		return false
	}

	entry.Buffered = MergeRanges(entry.handle.Buffered())

	if entry.Status == StatusError {
		p.mu.Unlock()
		return false
	}
	if entry.Status == StatusReady {
		p.mu.Unlock()
		return true
	}

	need := p.cfg.BufferThresholdSec
	if d := entry.boundedDurationSec(); d < need {
		need = d
	}
	ready := CoverageFrom(entry.Buffered, entry.InPointSec) >= need
	var evs []Event
	if ready {
		evs = p.transitionReadyLocked(entry)
	}
	p.mu.Unlock()

	p.events.emitAll(evs)
	return ready
}

// Touch refreshes the entry's last-touched time so the scheduler/controller
// can keep a resource alive even when it is not current.
func (p *ResourcePool) Touch(clipID ClipID) {
	p.mu.Lock()
	if entry, ok := p.entries[clipID]; ok {
		entry.LastTouched = p.now()
	}
	p.mu.Unlock()
}

// EvictLRU evicts least-recently-touched entries not in keepIDs until the
// pool is back at its cap. Entries in keepIDs are never evicted, even if the
// cap cannot be satisfied without them. Returns the evicted clip IDs.
func (p *ResourcePool) EvictLRU(keepIDs []ClipID) []ClipID {
	p.mu.Lock()
	if len(p.entries) <= p.cfg.MaxActiveVideos {
		p.mu.Unlock()
		return nil
	}

	keep := make(map[ClipID]struct{}, len(keepIDs))
	for _, id := range keepIDs {
		keep[id] = struct{}{}
	}

	candidates := make([]*ResourceEntry, 0, len(p.entries))
	for id, entry := range p.entries {
		if _, kept := keep[id]; !kept {
			candidates = append(candidates, entry)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].LastTouched.Before(candidates[j].LastTouched)
	})

	var evicted []ClipID
	var evs []Event
	for _, entry := range candidates {
		if len(p.entries) <= p.cfg.MaxActiveVideos {
			break
		}
		p.removeLocked(entry)
		evicted = append(evicted, entry.ClipID)
		evs = append(evs, Event{Kind: EventEvicted, ClipID: entry.ClipID, SourceID: entry.SourceID, Mode: entry.Mode})
	}
	p.mu.Unlock()

	for _, id := range evicted {
		p.log.Debug("resource evicted", slog.String("clip_id", string(id)))
	}
	p.events.emitAll(evs)
	return evicted
}

// Handle returns the live decode handle for clipID, if any. The handle stays
// owned by the pool; callers must not Close it.
func (p *ResourcePool) Handle(clipID ClipID) (MediaHandle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.entries[clipID]
	if !ok {
		return nil, false
	}
	return entry.handle, true
}

// Info returns a snapshot of the entry for clipID.
func (p *ResourcePool) Info(clipID ClipID) (ResourceInfo, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.entries[clipID]
	if !ok {
		return ResourceInfo{}, false
	}
	return entry.info(), true
}

// Infos returns snapshots of every live entry, ordered by clip ID.
func (p *ResourcePool) Infos() []ResourceInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ResourceInfo, 0, len(p.entries))
	for _, entry := range p.entries {
		out = append(out, entry.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClipID < out[j].ClipID })
	return out
}

// ActiveIDs returns the clip IDs of every live entry.
func (p *ResourcePool) ActiveIDs() []ClipID {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]ClipID, 0, len(p.entries))
	for id := range p.entries {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of live entries.
func (p *ResourcePool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Close tears down every entry. The pool stays usable afterwards; the probe
// cache is kept since source capabilities do not change within a session.
func (p *ResourcePool) Close() {
	p.mu.Lock()
	for _, entry := range p.entries {
		p.removeLocked(entry)
	}
	p.mu.Unlock()
}

// removeLocked closes the handle and deletes the entry. Clearing HandleID
// detaches the entry from any in-flight handle callbacks.
func (p *ResourcePool) removeLocked(entry *ResourceEntry) {
	if entry.handle != nil {
		entry.handle.Close()
	}
	entry.HandleID = ""
	delete(p.entries, entry.ClipID)
}

func (p *ResourcePool) selectModeLocked(clip Clip, forceProgressive bool) DeliveryMode {
	if forceProgressive || clip.Broll {
		return DeliveryProgressive
	}
	if clip.DurationSec() < p.cfg.AdaptiveThresholdSec {
		return DeliveryProgressive
	}
	ok, probed := p.adaptiveOK[clip.SourceID]
	if !probed {
		ok = p.resolver.SupportsAdaptive(clip.SourceID)
		p.adaptiveOK[clip.SourceID] = ok
	}
	if ok {
		return DeliveryAdaptive
	}
	return DeliveryProgressive
}

// markReady handles the handle's async ready signal. Signals from a replaced
// handle (stale handleID) are dropped.
func (p *ResourcePool) markReady(clipID ClipID, handleID string) {
	p.mu.Lock()
	entry, ok := p.entries[clipID]
	if !ok || entry.HandleID != handleID || entry.Status != StatusLoading {
		p.mu.Unlock()
		return
	}
	evs := p.transitionReadyLocked(entry)
	p.mu.Unlock()

	p.events.emitAll(evs)
}

// markError handles the handle's async failure signal. The entry is marked
// errored and surfaced via event; the pool never retries — retry policy is a
// caller decision.
func (p *ResourcePool) markError(clipID ClipID, handleID string, err error) {
	p.mu.Lock()
	entry, ok := p.entries[clipID]
	if !ok || entry.HandleID != handleID {
		p.mu.Unlock()
		return
	}
	entry.Status = StatusError
	entry.Err = err.Error()
	ev := Event{Kind: EventLoadError, ClipID: entry.ClipID, SourceID: entry.SourceID, Mode: entry.Mode, Message: entry.Err}
	p.mu.Unlock()

	p.log.Warn("resource load error",
		slog.String("clip_id", string(clipID)),
		slog.String("error", err.Error()),
	)
	p.events.emit(ev)
}

// transitionReadyLocked marks the entry ready and builds the one-shot
// load-ready event. Caller must hold p.mu and emit the returned events after
// unlocking.
func (p *ResourcePool) transitionReadyLocked(entry *ResourceEntry) []Event {
	entry.Status = StatusReady
	if entry.readyEmitted {
		return nil
	}
	entry.readyEmitted = true
	return []Event{{Kind: EventLoadReady, ClipID: entry.ClipID, SourceID: entry.SourceID, Mode: entry.Mode}}
}

func (e *ResourceEntry) info() ResourceInfo {
	buffered := make([]TimeRange, len(e.Buffered))
	copy(buffered, e.Buffered)
	return ResourceInfo{
		ClipID:      e.ClipID,
		SourceID:    e.SourceID,
		URL:         e.URL,
		Mode:        e.Mode,
		Status:      e.Status,
		Err:         e.Err,
		Buffered:    buffered,
		LastTouched: e.LastTouched,
	}
}
