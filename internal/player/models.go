package player

import "time"

// ClipID uniquely identifies a clip placed on the timeline. Two clips that
// reference the same source media still get distinct ClipIDs, and therefore
// independent decode resources.
type ClipID string

// SourceID identifies a piece of source media.
type SourceID string

// Clip is one entry on the edit timeline: a placed reference to source media
// with its own start/duration, independent of the source file's own timing.
// The timeline supplies clips ordered by start; the player never mutates them.
type Clip struct {
	ID          ClipID   `json:"id"`
	SourceID    SourceID `json:"source_id"`
	StartMs     float64  `json:"start_ms"`
	DurationMs  float64  `json:"duration_ms"`
	InPointSec  float64  `json:"in_point_sec"`
	OutPointSec float64  `json:"out_point_sec"`
	// Broll marks insert footage that needs frame-accurate seeking and
	// therefore always uses progressive delivery.
	Broll bool `json:"broll,omitempty"`
}

// EndMs returns the clip's exclusive end position on the timeline.
func (c Clip) EndMs() float64 {
	return c.StartMs + c.DurationMs
}

// DurationSec returns the clip duration in seconds.
func (c Clip) DurationSec() float64 {
	return c.DurationMs / 1000
}

// Contains reports whether the play head position falls inside [start, end).
func (c Clip) Contains(playheadMs float64) bool {
	return playheadMs >= c.StartMs && playheadMs < c.EndMs()
}

// DeliveryMode is how a clip's media is fetched.
type DeliveryMode string

const (
	// DeliveryProgressive fetches a single linear media file directly.
	DeliveryProgressive DeliveryMode = "progressive"
	// DeliveryAdaptive fetches media as indexed segments via a manifest.
	DeliveryAdaptive DeliveryMode = "adaptive-streaming"
)

// ResourceStatus is the load state of a decode resource.
type ResourceStatus string

const (
	StatusLoading ResourceStatus = "loading"
	StatusReady   ResourceStatus = "ready"
	StatusError   ResourceStatus = "error"
)

// TimeRange is a contiguous span of source-media time, in seconds.
type TimeRange struct {
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
}

// ResourceEntry is the live binding between one timeline clip and one decode
// handle. Entries live in the ResourcePool's map, which is the single source
// of truth for active handles.
type ResourceEntry struct {
	ClipID   ClipID
	SourceID SourceID
	// HandleID distinguishes successive handles for the same clip in logs
	// and lets stale handle callbacks be dropped after a replace.
	HandleID    string
	URL         string
	Mode        DeliveryMode
	Status      ResourceStatus
	Err         string // set when Status == StatusError
	Buffered    []TimeRange
	InPointSec  float64
	OutPointSec float64
	Broll       bool
	LastTouched time.Time // eviction ordering only

	handle       MediaHandle
	readyEmitted bool
}

// boundedDurationSec is the span of source media this entry needs.
func (e *ResourceEntry) boundedDurationSec() float64 {
	d := e.OutPointSec - e.InPointSec
	if d < 0 {
		return 0
	}
	return d
}

// ResourceInfo is a read-only snapshot of a ResourceEntry, safe to hand out
// across the pool boundary.
type ResourceInfo struct {
	ClipID      ClipID         `json:"clip_id"`
	SourceID    SourceID       `json:"source_id"`
	URL         string         `json:"url"`
	Mode        DeliveryMode   `json:"mode"`
	Status      ResourceStatus `json:"status"`
	Err         string         `json:"error,omitempty"`
	Buffered    []TimeRange    `json:"buffered,omitempty"`
	LastTouched time.Time      `json:"-"`
}

// ScheduleItem is one scheduling decision for a clip near the play head.
// Items are recomputed from scratch on every pass and never cached.
type ScheduleItem struct {
	ClipID      ClipID
	SourceID    SourceID
	Priority    float64 // lower = more urgent; current clip is 0
	StartMs     float64
	EndMs       float64
	InPointSec  float64
	OutPointSec float64
	IsCurrent   bool
	DistanceSec float64 // gap to the nearest clip edge; 0 inside the clip
}

// PlaybackState is a snapshot of the controller's externally visible state.
// CurrentClipID is empty in timeline gaps and while waiting for a clip load;
// during a wait, WaitingClipID names the clip the play head is frozen on.
type PlaybackState struct {
	Playing        bool    `json:"playing"`
	PositionMs     float64 `json:"position_ms"`
	CurrentClipID  ClipID  `json:"current_clip_id,omitempty"`
	WaitingForLoad bool    `json:"waiting_for_load"`
	WaitingClipID  ClipID  `json:"waiting_clip_id,omitempty"`
}
