package player

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"clip-playback/internal/platform/metrics"
)

var (
	// ErrNoTimeline is returned when playback is requested before a
	// timeline has been installed.
	ErrNoTimeline = errors.New("no timeline installed")

	// ErrInvalidTimeline is returned when an installed timeline fails
	// validation (bad durations, bounds, or overlaps).
	ErrInvalidTimeline = errors.New("invalid timeline")

	// ErrUnknownClip is returned for queries about a clip that is not on
	// the current timeline.
	ErrUnknownClip = errors.New("unknown clip")
)

// Engine wires the timeline, resource pool, and playback controller together
// and exposes the surface the rest of the application consumes. It also
// bridges pool events and controller hooks into logs and metrics.
type Engine struct {
	mu    sync.RWMutex
	clips []Clip

	pool *ResourcePool
	ctrl *Controller
	cfg  Config
	log  *slog.Logger
	met  *metrics.Metrics
}

// NewEngine builds a playback engine over the host-supplied media backend.
// met may be nil to disable metric recording (e.g. in tests).
func NewEngine(resolver SourceResolver, factory HandleFactory, cfg Config, log *slog.Logger, met *metrics.Metrics) *Engine {
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.normalized()

	pool := NewResourcePool(resolver, factory, cfg, log)
	ctrl := NewController(pool, cfg, log)

	e := &Engine{
		pool: pool,
		ctrl: ctrl,
		cfg:  cfg,
		log:  log.With("component", "engine"),
		met:  met,
	}
	pool.Subscribe(e.onPoolEvent)
	ctrl.SetHooks(ControllerHooks{
		OnBoundaryWait: func(ClipID) {
			if e.met != nil {
				e.met.IncBoundaryWaits()
			}
		},
		OnLoadTimeout: func(ClipID) {
			if e.met != nil {
				e.met.IncLoadTimeouts()
			}
		},
		OnSeekIssued: func(ClipID) {
			if e.met != nil {
				e.met.IncSeeksIssued()
			}
		},
		OnEnded: func() {
			e.log.Info("playback reached end of timeline")
		},
	})
	return e
}

// SetTimeline validates and installs a new clip list. The previous pool
// contents are torn down in full: replacing the timeline invalidates every
// live decode handle.
func (e *Engine) SetTimeline(clips []Clip) error {
	sorted := make([]Clip, len(clips))
	copy(sorted, clips)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].StartMs < sorted[j].StartMs })

	if err := validateTimeline(sorted); err != nil {
		return err
	}

	e.ctrl.SetTimeline(sorted)
	e.pool.Close()

	e.mu.Lock()
	e.clips = sorted
	e.mu.Unlock()

	e.log.Info("timeline installed",
		slog.Int("clips", len(sorted)),
		slog.Float64("duration_ms", TotalDurationMs(sorted)),
	)
	return nil
}

// Timeline returns the installed clip list.
func (e *Engine) Timeline() []Clip {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Clip, len(e.clips))
	copy(out, e.clips)
	return out
}

// Play starts playback. Returns ErrNoTimeline when nothing is installed.
func (e *Engine) Play() error {
	e.mu.RLock()
	empty := len(e.clips) == 0
	e.mu.RUnlock()
	if empty {
		return ErrNoTimeline
	}
	e.ctrl.Play()
	return nil
}

// Pause halts playback, keeping the play head where it is.
func (e *Engine) Pause() {
	e.ctrl.Pause()
}

// Toggle flips between playing and paused.
func (e *Engine) Toggle() error {
	if e.ctrl.State().Playing {
		e.ctrl.Pause()
		return nil
	}
	return e.Play()
}

// SeekTo moves the play head to timeMs, clamped to the timeline.
func (e *Engine) SeekTo(timeMs float64) error {
	e.mu.RLock()
	empty := len(e.clips) == 0
	e.mu.RUnlock()
	if empty {
		return ErrNoTimeline
	}
	e.ctrl.SeekTo(timeMs)
	return nil
}

// State returns the controller's playback state snapshot.
func (e *Engine) State() PlaybackState {
	return e.ctrl.State()
}

// IsClipReady reports whether the clip's resource is buffered enough to
// play. Returns ErrUnknownClip for clips not on the timeline.
func (e *Engine) IsClipReady(clipID ClipID) (bool, error) {
	e.mu.RLock()
	_, known := clipByID(e.clips, clipID)
	e.mu.RUnlock()
	if !known {
		return false, fmt.Errorf("%w: %s", ErrUnknownClip, clipID)
	}
	return e.pool.IsReady(clipID), nil
}

// ActiveResourceCount returns the number of live decode resources.
func (e *Engine) ActiveResourceCount() int {
	return e.pool.Len()
}

// Resources returns snapshots of every live decode resource.
func (e *Engine) Resources() []ResourceInfo {
	return e.pool.Infos()
}

// Subscribe registers fn for pool events (load-started, load-ready,
// load-error, evicted).
func (e *Engine) Subscribe(fn func(Event)) {
	e.pool.Subscribe(fn)
}

// Cleanup stops the frame loop and tears down every decode resource. No
// handle outlives the engine.
func (e *Engine) Cleanup() {
	e.ctrl.Cleanup()
	e.pool.Close()
	e.log.Info("engine cleaned up")
}

func (e *Engine) onPoolEvent(ev Event) {
	switch ev.Kind {
	case EventLoadStarted:
		e.log.Debug("load started",
			slog.String("clip_id", string(ev.ClipID)),
			slog.String("mode", string(ev.Mode)),
		)
		if e.met != nil {
			e.met.IncResourcesCreated()
			e.met.SetActiveResources(e.pool.Len())
		}
	case EventLoadReady:
		e.log.Debug("load ready", slog.String("clip_id", string(ev.ClipID)))
	case EventLoadError:
		e.log.Warn("load error",
			slog.String("clip_id", string(ev.ClipID)),
			slog.String("error", ev.Message),
		)
		if e.met != nil {
			e.met.IncLoadErrors()
		}
	case EventEvicted:
		e.log.Debug("resource evicted", slog.String("clip_id", string(ev.ClipID)))
		if e.met != nil {
			e.met.IncEvictions()
			e.met.SetActiveResources(e.pool.Len())
		}
	}
}

// validateTimeline checks a start-sorted clip list for structural problems.
func validateTimeline(clips []Clip) error {
	seen := make(map[ClipID]struct{}, len(clips))
	for i, c := range clips {
		if c.ID == "" {
			return fmt.Errorf("%w: clip %d has no id", ErrInvalidTimeline, i)
		}
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("%w: duplicate clip id %s", ErrInvalidTimeline, c.ID)
		}
		seen[c.ID] = struct{}{}
		if c.DurationMs <= 0 {
			return fmt.Errorf("%w: clip %s has non-positive duration", ErrInvalidTimeline, c.ID)
		}
		if c.OutPointSec <= c.InPointSec {
			return fmt.Errorf("%w: clip %s has empty source range", ErrInvalidTimeline, c.ID)
		}
		if i > 0 && c.StartMs < clips[i-1].EndMs()-tailToleranceMs {
			return fmt.Errorf("%w: clip %s overlaps %s", ErrInvalidTimeline, c.ID, clips[i-1].ID)
		}
	}
	return nil
}
