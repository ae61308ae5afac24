package player

import "sort"

// The clip scheduler is a pure computation layer: every function here is a
// fresh, reproducible computation over (clip list, play-head position), with
// no state between calls. That makes it safe to call on every frame and
// trivial to test. Clips are expected ordered by timeline start, which the
// engine enforces when a timeline is installed.

// CurrentClip returns the clip whose [start, start+duration) interval
// contains the play head. If none matches but the play head is within 100ms
// of the very end of the last clip, the last clip is returned — this absorbs
// float rounding at the tail of the timeline.
func CurrentClip(clips []Clip, playheadMs float64) (Clip, bool) {
	for _, c := range clips {
		if c.Contains(playheadMs) {
			return c, true
		}
	}
	if n := len(clips); n > 0 {
		last := clips[n-1]
		if diff := playheadMs - last.EndMs(); diff >= -tailToleranceMs && diff <= tailToleranceMs {
			return last, true
		}
	}
	return Clip{}, false
}

// ScheduleInfo computes the scheduling decision for one clip. The current
// clip gets priority 0; a clip ahead of the play head gets 1 + distance; a
// clip behind gets 100 + distance. Distance is the gap in seconds between
// the play head and the nearest clip edge, 0 inside the clip.
func ScheduleInfo(clip Clip, playheadSec float64, isCurrent bool) ScheduleItem {
	item := ScheduleItem{
		ClipID:      clip.ID,
		SourceID:    clip.SourceID,
		StartMs:     clip.StartMs,
		EndMs:       clip.EndMs(),
		InPointSec:  clip.InPointSec,
		OutPointSec: clip.OutPointSec,
		IsCurrent:   isCurrent,
	}

	startSec := clip.StartMs / 1000
	endSec := clip.EndMs() / 1000

	switch {
	case playheadSec < startSec:
		item.DistanceSec = startSec - playheadSec
		item.Priority = 1 + item.DistanceSec
	case playheadSec >= endSec:
		item.DistanceSec = playheadSec - endSec
		item.Priority = pastClipPriorityBase + item.DistanceSec
	default:
		// Inside the clip. Non-current overlapping clips rank just behind
		// the current one.
		item.DistanceSec = 0
		if !isCurrent {
			item.Priority = 1
		}
	}
	if isCurrent {
		item.Priority = 0
	}
	return item
}

// ClipsToLoad returns the clips that should have resources, most urgent
// first: clips intersecting the window from LookBackSec behind the play head
// through PreheatWindowSec ahead, sorted ascending by priority and capped at
// maxCount (maxCount <= 0 means no cap).
func ClipsToLoad(clips []Clip, playheadMs float64, maxCount int, cfg Config) []ScheduleItem {
	cfg = cfg.normalized()

	windowStartMs := playheadMs - cfg.LookBackSec*1000
	windowEndMs := playheadMs + cfg.PreheatWindowSec*1000

	current, hasCurrent := CurrentClip(clips, playheadMs)
	playheadSec := playheadMs / 1000

	items := make([]ScheduleItem, 0, len(clips))
	for _, c := range clips {
		if c.EndMs() < windowStartMs || c.StartMs > windowEndMs {
			continue
		}
		isCurrent := hasCurrent && c.ID == current.ID
		items = append(items, ScheduleInfo(c, playheadSec, isCurrent))
	}

	// Stable sort keeps timeline order among equal priorities.
	sort.SliceStable(items, func(i, j int) bool { return items[i].Priority < items[j].Priority })

	if maxCount > 0 && len(items) > maxCount {
		items = items[:maxCount]
	}
	return items
}

// ClipsToUnload returns the active IDs that are safe to tear down: clips gone
// from the timeline, or fully outside an extended window (10s look-back,
// PreheatWindowSec+5s look-ahead). The extended window is deliberately wider
// than the load window so entries near the boundary do not thrash.
func ClipsToUnload(clips []Clip, playheadMs float64, activeIDs []ClipID, cfg Config) []ClipID {
	cfg = cfg.normalized()

	windowStartMs := playheadMs - unloadLookBackSec*1000
	windowEndMs := playheadMs + (cfg.PreheatWindowSec+unloadLookAheadPadSec)*1000

	byID := make(map[ClipID]Clip, len(clips))
	for _, c := range clips {
		byID[c.ID] = c
	}

	var unload []ClipID
	for _, id := range activeIDs {
		c, ok := byID[id]
		if !ok {
			unload = append(unload, id)
			continue
		}
		if c.EndMs() < windowStartMs || c.StartMs > windowEndMs {
			unload = append(unload, id)
		}
	}
	return unload
}

// NextClip returns the clip following current in timeline order.
func NextClip(clips []Clip, current ClipID) (Clip, bool) {
	for i, c := range clips {
		if c.ID == current {
			if i+1 < len(clips) {
				return clips[i+1], true
			}
			return Clip{}, false
		}
	}
	return Clip{}, false
}

// PrevClip returns the clip preceding current in timeline order.
func PrevClip(clips []Clip, current ClipID) (Clip, bool) {
	for i, c := range clips {
		if c.ID == current {
			if i > 0 {
				return clips[i-1], true
			}
			return Clip{}, false
		}
	}
	return Clip{}, false
}

// TotalDurationMs returns the end of the last clip, i.e. the timeline length.
func TotalDurationMs(clips []Clip) float64 {
	var total float64
	for _, c := range clips {
		if end := c.EndMs(); end > total {
			total = end
		}
	}
	return total
}

// clipByID is a linear lookup; timelines are small.
func clipByID(clips []Clip, id ClipID) (Clip, bool) {
	for _, c := range clips {
		if c.ID == id {
			return c, true
		}
	}
	return Clip{}, false
}
