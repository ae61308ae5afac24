package player

import "time"

// Defaults for the playback tunables.
const (
	DefaultMaxActiveVideos      = 10
	DefaultPreheatWindowSec     = 15.0
	DefaultLookBackSec          = 5.0
	DefaultSeekThresholdSec     = 0.3
	DefaultBufferThresholdSec   = 2.0
	DefaultAdaptiveThresholdSec = 10.0

	DefaultBoundaryPollInterval = 100 * time.Millisecond
	DefaultBoundaryPollAttempts = 100
	DefaultPreheatInterval      = 500 * time.Millisecond
	DefaultTickInterval         = 16 * time.Millisecond // ~60Hz
)

// tailToleranceMs absorbs float rounding at the very end of the last clip.
const tailToleranceMs = 100.0

// Unload window is wider than the load window to avoid thrashing resources
// near the boundary.
const (
	unloadLookBackSec     = 10.0
	unloadLookAheadPadSec = 5.0
)

// pastClipPriorityBase keeps clips behind the play head loaded for fast
// scrub-back while always losing contention against anything upcoming.
const pastClipPriorityBase = 100.0

// Config carries the playback tunables. Zero or negative fields fall back to
// the defaults above, so Config{} behaves like DefaultConfig().
type Config struct {
	// MaxActiveVideos caps the number of concurrent decode resources.
	MaxActiveVideos int
	// PreheatWindowSec is the look-ahead span within which clip resources
	// are created ahead of need.
	PreheatWindowSec float64
	// LookBackSec is the look-back span of the load window.
	LookBackSec float64
	// SeekThresholdSec is the drift beyond which a corrective seek is issued.
	SeekThresholdSec float64
	// BufferThresholdSec is the buffered coverage required for readiness.
	BufferThresholdSec float64
	// AdaptiveThresholdSec is the clip duration below which progressive
	// delivery is always chosen.
	AdaptiveThresholdSec float64
	// BoundaryPollInterval and BoundaryPollAttempts bound the wait at a clip
	// boundary; at the default 100ms x 100 the wait gives up after ~10s.
	BoundaryPollInterval time.Duration
	BoundaryPollAttempts int
	// PreheatInterval throttles scheduling passes during steady playback.
	PreheatInterval time.Duration
	// TickInterval is the cadence of the frame loop.
	TickInterval time.Duration
}

// DefaultConfig returns a Config with every field at its default.
func DefaultConfig() Config {
	return Config{}.normalized()
}

// normalized returns cfg with non-positive fields replaced by defaults.
func (c Config) normalized() Config {
	if c.MaxActiveVideos <= 0 {
		c.MaxActiveVideos = DefaultMaxActiveVideos
	}
	if c.PreheatWindowSec <= 0 {
		c.PreheatWindowSec = DefaultPreheatWindowSec
	}
	if c.LookBackSec <= 0 {
		c.LookBackSec = DefaultLookBackSec
	}
	if c.SeekThresholdSec <= 0 {
		c.SeekThresholdSec = DefaultSeekThresholdSec
	}
	if c.BufferThresholdSec <= 0 {
		c.BufferThresholdSec = DefaultBufferThresholdSec
	}
	if c.AdaptiveThresholdSec <= 0 {
		c.AdaptiveThresholdSec = DefaultAdaptiveThresholdSec
	}
	if c.BoundaryPollInterval <= 0 {
		c.BoundaryPollInterval = DefaultBoundaryPollInterval
	}
	if c.BoundaryPollAttempts <= 0 {
		c.BoundaryPollAttempts = DefaultBoundaryPollAttempts
	}
	if c.PreheatInterval <= 0 {
		c.PreheatInterval = DefaultPreheatInterval
	}
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	return c
}
