package player

import (
	"log/slog"
	"math"
	"sync"
	"time"
)

// ControllerHooks are optional observation points the engine uses to feed
// metrics. Nil funcs are skipped. Hooks may run with the controller's lock
// held and must not call back into it.
type ControllerHooks struct {
	OnBoundaryWait func(ClipID)
	OnLoadTimeout  func(ClipID)
	OnSeekIssued   func(ClipID)
	OnEnded        func()
}

// Controller owns the play/pause state machine and the per-frame clock.
//
// While playing, an internal ticker goroutine invokes tick at ~60Hz. Each
// tick advances the play head by the wall-clock delta, checks for the end of
// the timeline, detects clip-boundary crossings, and resynchronizes the
// active decode handle — in that fixed order, so scheduling always sees the
// already-advanced position. Crossing into a clip whose resource is not
// ready freezes the play head at the boundary and enters a bounded polling
// wait instead of blocking; pause and cleanup cancel the wait.
type Controller struct {
	mu    sync.Mutex
	clips []Clip

	pool  *ResourcePool
	cfg   Config
	log   *slog.Logger
	hooks ControllerHooks

	playing     bool
	positionMs  float64
	currentClip ClipID

	// Boundary-wait sub-state; only meaningful while playing.
	waiting      bool
	waitingClip  ClipID
	waitAttempts int
	lastPollAt   time.Time

	lastTick    time.Time
	lastPreheat time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup

	now func() time.Time
}

// NewController returns a paused controller at position 0 with no timeline.
func NewController(pool *ResourcePool, cfg Config, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		pool: pool,
		cfg:  cfg.normalized(),
		log:  log.With("component", "controller"),
		now:  time.Now,
	}
}

// SetHooks installs the observation hooks. Call before playback starts.
func (c *Controller) SetHooks(h ControllerHooks) {
	c.mu.Lock()
	c.hooks = h
	c.mu.Unlock()
}

// SetTimeline installs a new clip list (ordered by start) and rewinds to 0.
// The caller is responsible for tearing down pool entries that belonged to
// the old timeline.
func (c *Controller) SetTimeline(clips []Clip) {
	c.Pause()
	c.mu.Lock()
	c.clips = clips
	c.positionMs = 0
	c.currentClip = ""
	c.mu.Unlock()
}

// Play ensures the current clip's resource exists, synchronizes and starts
// its handle, and starts the frame loop. A no-op when already playing.
func (c *Controller) Play() {
	c.mu.Lock()
	if c.playing {
		c.mu.Unlock()
		return
	}

	if clip, ok := CurrentClip(c.clips, c.positionMs); ok {
		c.currentClip = clip.ID
		c.ensureResourceLocked(clip)
		c.syncHandleLocked(clip)
		if h, ok := c.pool.Handle(clip.ID); ok {
			h.Play()
		}
	}

	c.playing = true
	c.lastTick = c.now()
	c.stopCh = make(chan struct{})
	stop := c.stopCh
	c.mu.Unlock()

	c.log.Debug("play", slog.Float64("position_ms", c.Position()))
	c.preheat(true)

	c.wg.Add(1)
	go c.loop(stop)
}

// Pause stops the frame loop, cancels any boundary wait, and pauses the
// current decode handle. A no-op when already paused.
func (c *Controller) Pause() {
	c.mu.Lock()
	if !c.playing {
		c.mu.Unlock()
		return
	}
	c.haltLocked()
	stop := c.stopCh
	c.stopCh = nil
	c.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	c.wg.Wait()
	c.log.Debug("pause", slog.Float64("position_ms", c.Position()))
}

// SeekTo clamps timeMs to [0, total duration], moves the play head, runs an
// out-of-band scheduling pass, and resynchronizes the target clip's handle.
// Safe to call rapidly: each call fully replaces the position state.
func (c *Controller) SeekTo(timeMs float64) {
	c.mu.Lock()
	total := TotalDurationMs(c.clips)
	if timeMs < 0 {
		timeMs = 0
	}
	if timeMs > total {
		timeMs = total
	}
	c.positionMs = timeMs
	c.waiting = false
	c.waitingClip = ""
	c.waitAttempts = 0
	c.lastTick = c.now()

	if clip, ok := CurrentClip(c.clips, c.positionMs); ok {
		if c.currentClip != "" && c.currentClip != clip.ID {
			if h, ok := c.pool.Handle(c.currentClip); ok {
				h.Pause()
			}
		}
		c.currentClip = clip.ID
		c.ensureResourceLocked(clip)
		c.syncHandleLocked(clip)
		if c.playing {
			if h, ok := c.pool.Handle(clip.ID); ok {
				h.Play()
			}
		}
	} else {
		c.leaveClipLocked()
	}
	c.mu.Unlock()

	c.preheat(true)
}

// leaveClipLocked pauses the current clip's handle and clears it, for moves
// into a timeline gap.
func (c *Controller) leaveClipLocked() {
	if c.currentClip != "" {
		if h, ok := c.pool.Handle(c.currentClip); ok {
			h.Pause()
		}
	}
	c.currentClip = ""
}

// State returns a snapshot of the externally visible playback state.
func (c *Controller) State() PlaybackState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return PlaybackState{
		Playing:        c.playing,
		PositionMs:     c.positionMs,
		CurrentClipID:  c.currentClip,
		WaitingForLoad: c.waiting,
		WaitingClipID:  c.waitingClip,
	}
}

// Position returns the play head position in timeline milliseconds.
func (c *Controller) Position() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.positionMs
}

// Cleanup stops playback. The engine tears down the pool separately, so no
// decode handle outlives the session.
func (c *Controller) Cleanup() {
	c.Pause()
}

func (c *Controller) loop(stop chan struct{}) {
	defer c.wg.Done()
	t := time.NewTicker(c.cfg.TickInterval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			c.tick(c.now())
		}
	}
}

// tick is one frame of the cooperative loop.
func (c *Controller) tick(now time.Time) {
	c.mu.Lock()
	if !c.playing {
		c.mu.Unlock()
		return
	}

	delta := now.Sub(c.lastTick)
	c.lastTick = now

	if c.waiting {
		// Play head stays frozen; just poll the awaited resource.
		c.pollWaitLocked(now)
		c.mu.Unlock()
		return
	}

	c.positionMs += delta.Seconds() * 1000

	if total := TotalDurationMs(c.clips); c.positionMs >= total {
		c.positionMs = total
		c.haltLocked()
		if c.stopCh != nil {
			close(c.stopCh)
			c.stopCh = nil
		}
		onEnded := c.hooks.OnEnded
		c.mu.Unlock()
		c.log.Info("timeline ended", slog.Float64("position_ms", total))
		if onEnded != nil {
			onEnded()
		}
		return
	}

	clip, ok := CurrentClip(c.clips, c.positionMs)
	if !ok {
		// Gap between clips: keep advancing with nothing to display. The
		// departed clip's handle must stop, or it would keep decoding with no
		// clip on screen.
		c.leaveClipLocked()
		c.mu.Unlock()
		c.preheat(false)
		return
	}

	if clip.ID != c.currentClip {
		c.enterClipLocked(clip, now)
		c.mu.Unlock()
		c.preheat(true)
		return
	}

	c.syncHandleLocked(clip)
	c.mu.Unlock()
	c.preheat(false)
}

// enterClipLocked handles a boundary crossing into clip. If the clip's
// resource is not ready the play head freezes at the clip start and the
// bounded wait begins.
func (c *Controller) enterClipLocked(clip Clip, now time.Time) {
	if c.currentClip != "" {
		if h, ok := c.pool.Handle(c.currentClip); ok {
			h.Pause()
		}
	}

	if !c.pool.IsReady(clip.ID) {
		c.ensureResourceLocked(clip)
		c.positionMs = clip.StartMs
		c.currentClip = ""
		c.waiting = true
		c.waitingClip = clip.ID
		c.waitAttempts = 0
		c.lastPollAt = now
		onWait := c.hooks.OnBoundaryWait
		c.log.Debug("waiting for clip load",
			slog.String("clip_id", string(clip.ID)),
			slog.Float64("position_ms", c.positionMs),
		)
		if onWait != nil {
			onWait(clip.ID)
		}
		return
	}

	c.currentClip = clip.ID
	c.syncHandleLocked(clip)
	if h, ok := c.pool.Handle(clip.ID); ok {
		h.Play()
	}
}

// pollWaitLocked runs the bounded boundary wait: one readiness check per
// BoundaryPollInterval, up to BoundaryPollAttempts. A timeout proceeds
// anyway rather than stalling forever.
func (c *Controller) pollWaitLocked(now time.Time) {
	if now.Sub(c.lastPollAt) < c.cfg.BoundaryPollInterval {
		return
	}
	c.lastPollAt = now
	c.waitAttempts++

	ready := c.pool.IsReady(c.waitingClip)
	timedOut := !ready && c.waitAttempts >= c.cfg.BoundaryPollAttempts
	if !ready && !timedOut {
		return
	}

	clipID := c.waitingClip
	c.waiting = false
	c.waitingClip = ""
	c.waitAttempts = 0
	// The frozen interval must not be folded into the next advancement.
	c.lastTick = now

	if timedOut {
		onTimeout := c.hooks.OnLoadTimeout
		c.log.Warn("clip load wait timed out, proceeding",
			slog.String("clip_id", string(clipID)),
		)
		if onTimeout != nil {
			onTimeout(clipID)
		}
	}

	if clip, ok := clipByID(c.clips, clipID); ok {
		c.currentClip = clip.ID
		c.syncHandleLocked(clip)
		if h, ok := c.pool.Handle(clip.ID); ok {
			h.Play()
		}
	}
}

// ensureResourceLocked lazily creates the clip's resource (handles the
// missing-resource case after an eviction) or refreshes its LRU position.
func (c *Controller) ensureResourceLocked(clip Clip) {
	if _, ok := c.pool.Info(clip.ID); ok {
		c.pool.Touch(clip.ID)
		return
	}
	if _, err := c.pool.CreateOrReplace(clip, clip.Broll); err != nil {
		c.log.Warn("resource create failed",
			slog.String("clip_id", string(clip.ID)),
			slog.String("error", err.Error()),
		)
	}
}

// syncHandleLocked aligns the decode handle with the play head. The target
// source time is inPoint + (playhead - clipStart); a seek is issued only
// when the handle has drifted past SeekThresholdSec, so sub-threshold jitter
// never causes seek storms.
func (c *Controller) syncHandleLocked(clip Clip) {
	h, ok := c.pool.Handle(clip.ID)
	if !ok {
		c.ensureResourceLocked(clip)
		if h, ok = c.pool.Handle(clip.ID); !ok {
			return
		}
	}

	target := clip.InPointSec + (c.positionMs-clip.StartMs)/1000
	if math.Abs(h.Position()-target) > c.cfg.SeekThresholdSec {
		h.SeekTo(target)
		if onSeek := c.hooks.OnSeekIssued; onSeek != nil {
			onSeek(clip.ID)
		}
	}
}

// haltLocked drops out of the playing state and pauses the current handle.
// It does not close stopCh; callers own loop shutdown.
func (c *Controller) haltLocked() {
	c.playing = false
	c.waiting = false
	c.waitingClip = ""
	c.waitAttempts = 0
	if c.currentClip != "" {
		if h, ok := c.pool.Handle(c.currentClip); ok {
			h.Pause()
		}
	}
}

// preheat runs one scheduling pass: create or touch everything in the load
// set, tear down the unload set, then LRU-evict with the load set kept.
// Throttled during steady playback; forced on play/seek/boundary events.
func (c *Controller) preheat(force bool) {
	c.mu.Lock()
	now := c.now()
	if !force && now.Sub(c.lastPreheat) < c.cfg.PreheatInterval {
		c.mu.Unlock()
		return
	}
	c.lastPreheat = now
	clips := c.clips
	positionMs := c.positionMs
	c.mu.Unlock()

	items := ClipsToLoad(clips, positionMs, c.cfg.MaxActiveVideos, c.cfg)
	keep := make([]ClipID, 0, len(items))
	for _, item := range items {
		keep = append(keep, item.ClipID)
		if _, ok := c.pool.Info(item.ClipID); ok {
			c.pool.Touch(item.ClipID)
			continue
		}
		clip, ok := clipByID(clips, item.ClipID)
		if !ok {
			continue
		}
		if _, err := c.pool.CreateOrReplace(clip, clip.Broll); err != nil {
			c.log.Warn("preheat create failed",
				slog.String("clip_id", string(clip.ID)),
				slog.String("error", err.Error()),
			)
		}
	}

	for _, id := range ClipsToUnload(clips, positionMs, c.pool.ActiveIDs(), c.cfg) {
		c.pool.Destroy(id)
	}

	c.pool.EvictLRU(keep)
}
