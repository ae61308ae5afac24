package player

import (
	"sync"
	"testing"
	"time"
)

func newTestController(cfg Config) (*Controller, *ResourcePool, *fakeFactory, *fakeClock) {
	pool, _, factory, clk := newTestPool(cfg)
	c := NewController(pool, cfg, testLogger())
	c.now = clk.Now
	return c, pool, factory, clk
}

// startManual puts the controller in the playing state without spinning up
// the ticker goroutine, so tests can drive tick by hand with a fake clock.
func startManual(c *Controller, clk *fakeClock, positionMs float64) {
	c.mu.Lock()
	c.playing = true
	c.positionMs = positionMs
	c.lastTick = clk.Now()
	c.mu.Unlock()
}

func TestController_tick_advances_playhead(t *testing.T) {
	c, pool, factory, clk := newTestController(Config{})
	clips := threeClipTimeline()
	c.SetTimeline(clips)

	if _, err := pool.CreateOrReplace(clips[0], false); err != nil {
		t.Fatal(err)
	}
	if err := bufferClip(factory, clips[0]); err != nil {
		t.Fatal(err)
	}

	startManual(c, clk, 1000)
	c.tick(clk.Advance(100 * time.Millisecond))

	st := c.State()
	if st.PositionMs != 1100 {
		t.Errorf("position: got %v, want 1100", st.PositionMs)
	}
	if st.CurrentClipID != "c1" {
		t.Errorf("current clip: got %q, want c1", st.CurrentClipID)
	}
	if st.WaitingForLoad {
		t.Error("ready clip must not trigger a wait")
	}
}

func TestController_resync_only_past_threshold(t *testing.T) {
	c, pool, factory, clk := newTestController(Config{})
	clips := threeClipTimeline()
	c.SetTimeline(clips)

	if _, err := pool.CreateOrReplace(clips[0], false); err != nil {
		t.Fatal(err)
	}
	if err := bufferClip(factory, clips[0]); err != nil {
		t.Fatal(err)
	}
	o, err := factory.lastFor(progURL(clips[0].SourceID))
	if err != nil {
		t.Fatal(err)
	}

	startManual(c, clk, 1000)
	c.tick(clk.Advance(16 * time.Millisecond))

	// First sync: handle sits at the in-point (0s), target ~1.016s, drift
	// over the 0.3s threshold, so exactly one seek.
	if got := o.handle.seekCount(); got != 1 {
		t.Fatalf("expected 1 corrective seek, got %d", got)
	}

	// Sub-threshold jitter: the handle tracks within 0.3s while ticks
	// advance 16ms at a time. No further seeks.
	for i := 0; i < 5; i++ {
		c.tick(clk.Advance(16 * time.Millisecond))
	}
	if got := o.handle.seekCount(); got != 1 {
		t.Errorf("sub-threshold drift must not seek, got %d seeks", got)
	}

	// Real desync (e.g. after a stall) gets corrected.
	o.handle.setPos(5.0)
	c.tick(clk.Advance(16 * time.Millisecond))
	if got := o.handle.seekCount(); got != 2 {
		t.Errorf("expected corrective seek after desync, got %d seeks", got)
	}
}

func TestController_boundary_wait(t *testing.T) {
	c, pool, factory, clk := newTestController(Config{})
	clips := threeClipTimeline()
	c.SetTimeline(clips)

	var waits int
	c.SetHooks(ControllerHooks{OnBoundaryWait: func(ClipID) { waits++ }})

	if _, err := pool.CreateOrReplace(clips[0], false); err != nil {
		t.Fatal(err)
	}
	if err := bufferClip(factory, clips[0]); err != nil {
		t.Fatal(err)
	}

	startManual(c, clk, 4900)
	c.tick(clk.Advance(16 * time.Millisecond)) // settle into c1

	// Cross into c2, whose resource is still loading.
	c.tick(clk.Advance(116 * time.Millisecond))

	st := c.State()
	if !st.WaitingForLoad || st.WaitingClipID != "c2" {
		t.Fatalf("expected wait on c2, got %+v", st)
	}
	if st.CurrentClipID != "" {
		t.Errorf("no clip is current during a wait, got %q", st.CurrentClipID)
	}
	if st.PositionMs != 5000 {
		t.Errorf("play head must freeze at the boundary, got %v", st.PositionMs)
	}
	if waits != 1 {
		t.Errorf("expected 1 boundary wait, got %d", waits)
	}

	// Still loading: the play head stays frozen across ticks.
	c.tick(clk.Advance(50 * time.Millisecond))
	if st := c.State(); st.PositionMs != 5000 || !st.WaitingForLoad {
		t.Errorf("play head advanced during wait: %+v", st)
	}

	// The clip becomes ready; the next poll resumes playback.
	if err := bufferClip(factory, clips[1]); err != nil {
		t.Fatal(err)
	}
	c.tick(clk.Advance(100 * time.Millisecond))

	st = c.State()
	if st.WaitingForLoad {
		t.Fatal("wait should have resolved")
	}
	if st.CurrentClipID != "c2" {
		t.Errorf("current clip after wait: got %q, want c2", st.CurrentClipID)
	}

	// And advancement resumes, without folding in the frozen interval.
	c.tick(clk.Advance(20 * time.Millisecond))
	if st := c.State(); st.PositionMs != 5020 {
		t.Errorf("position after resume: got %v, want 5020", st.PositionMs)
	}
}

func TestController_boundary_wait_timeout_proceeds(t *testing.T) {
	cfg := Config{BoundaryPollAttempts: 3}
	c, pool, factory, clk := newTestController(cfg)
	clips := threeClipTimeline()
	c.SetTimeline(clips)

	var timeouts int
	c.SetHooks(ControllerHooks{OnLoadTimeout: func(ClipID) { timeouts++ }})

	if _, err := pool.CreateOrReplace(clips[0], false); err != nil {
		t.Fatal(err)
	}
	if err := bufferClip(factory, clips[0]); err != nil {
		t.Fatal(err)
	}

	startManual(c, clk, 4900)
	c.tick(clk.Advance(16 * time.Millisecond))
	c.tick(clk.Advance(116 * time.Millisecond)) // enter wait on c2

	// c2 never becomes ready; three polls exhaust the attempts.
	for i := 0; i < 3; i++ {
		c.tick(clk.Advance(DefaultBoundaryPollInterval))
	}

	st := c.State()
	if st.WaitingForLoad {
		t.Fatal("timeout must end the wait rather than stall forever")
	}
	if st.CurrentClipID != "c2" {
		t.Errorf("playback must proceed into c2 after timeout, got %q", st.CurrentClipID)
	}
	if timeouts != 1 {
		t.Errorf("expected 1 timeout, got %d", timeouts)
	}
}

func TestController_gap_pauses_departed_handle(t *testing.T) {
	gappy := []Clip{
		testClip("g1", 0, 1000),
		testClip("g2", 5000, 1000),
	}

	t.Run("tick_into_gap", func(t *testing.T) {
		c, pool, factory, clk := newTestController(Config{})
		c.SetTimeline(gappy)

		if _, err := pool.CreateOrReplace(gappy[0], false); err != nil {
			t.Fatal(err)
		}
		if err := bufferClip(factory, gappy[0]); err != nil {
			t.Fatal(err)
		}
		o, err := factory.lastFor(progURL(gappy[0].SourceID))
		if err != nil {
			t.Fatal(err)
		}

		startManual(c, clk, 900)
		c.tick(clk.Advance(16 * time.Millisecond))  // settle into g1
		c.tick(clk.Advance(200 * time.Millisecond)) // advance past its end

		st := c.State()
		if st.CurrentClipID != "" {
			t.Fatalf("expected no current clip inside the gap, got %q", st.CurrentClipID)
		}
		if !st.Playing {
			t.Error("the play head keeps advancing through a gap")
		}
		if got := o.handle.pauseCount(); got != 1 {
			t.Errorf("departed clip's handle must be paused, got %d pauses", got)
		}
	})

	t.Run("seek_into_gap", func(t *testing.T) {
		c, pool, factory, clk := newTestController(Config{})
		c.SetTimeline(gappy)

		if _, err := pool.CreateOrReplace(gappy[0], false); err != nil {
			t.Fatal(err)
		}
		if err := bufferClip(factory, gappy[0]); err != nil {
			t.Fatal(err)
		}
		o, err := factory.lastFor(progURL(gappy[0].SourceID))
		if err != nil {
			t.Fatal(err)
		}

		startManual(c, clk, 500)
		c.tick(clk.Advance(16 * time.Millisecond)) // settle into g1

		c.SeekTo(3000)

		st := c.State()
		if st.PositionMs != 3000 || st.CurrentClipID != "" {
			t.Fatalf("state after seek into gap: %+v", st)
		}
		if got := o.handle.pauseCount(); got != 1 {
			t.Errorf("departed clip's handle must be paused, got %d pauses", got)
		}
	})
}

func TestController_subscriber_may_read_state(t *testing.T) {
	c, pool, factory, clk := newTestController(Config{})
	clips := threeClipTimeline()
	c.SetTimeline(clips)

	// A subscriber that reads playback state on every event, the way a UI
	// reacts to load-ready. Delivery must not run under the controller's
	// mutex, or this blocks the frame loop forever.
	var mu sync.Mutex
	var seen []EventKind
	pool.Subscribe(func(ev Event) {
		_ = c.State()
		mu.Lock()
		seen = append(seen, ev.Kind)
		mu.Unlock()
	})

	if _, err := pool.CreateOrReplace(clips[0], false); err != nil {
		t.Fatal(err)
	}
	if err := bufferClip(factory, clips[0]); err != nil {
		t.Fatal(err)
	}

	startManual(c, clk, 4900)
	done := make(chan struct{})
	go func() {
		c.tick(clk.Advance(16 * time.Millisecond))  // ready check on c1 fires load-ready
		c.tick(clk.Advance(116 * time.Millisecond)) // cross into unready c2
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tick blocked on a subscriber reading playback state")
	}

	waitFor(t, "load-ready delivery", func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, k := range seen {
			if k == EventLoadReady {
				return true
			}
		}
		return false
	})
}

func TestController_pause_cancels_wait(t *testing.T) {
	c, pool, factory, clk := newTestController(Config{})
	clips := threeClipTimeline()
	c.SetTimeline(clips)

	if _, err := pool.CreateOrReplace(clips[0], false); err != nil {
		t.Fatal(err)
	}
	if err := bufferClip(factory, clips[0]); err != nil {
		t.Fatal(err)
	}

	startManual(c, clk, 4900)
	c.tick(clk.Advance(16 * time.Millisecond))
	c.tick(clk.Advance(116 * time.Millisecond)) // enter wait on c2

	c.Pause()

	st := c.State()
	if st.Playing || st.WaitingForLoad {
		t.Errorf("pause must cancel the wait: %+v", st)
	}
}

func TestController_end_of_timeline(t *testing.T) {
	c, pool, factory, clk := newTestController(Config{})
	clips := threeClipTimeline()
	c.SetTimeline(clips)

	var ended int
	c.SetHooks(ControllerHooks{OnEnded: func() { ended++ }})

	if _, err := pool.CreateOrReplace(clips[2], false); err != nil {
		t.Fatal(err)
	}
	if err := bufferClip(factory, clips[2]); err != nil {
		t.Fatal(err)
	}

	startManual(c, clk, 24900)
	c.tick(clk.Advance(16 * time.Millisecond)) // settle into c3
	c.tick(clk.Advance(200 * time.Millisecond))

	st := c.State()
	if st.Playing {
		t.Error("reaching the end must pause playback")
	}
	if st.PositionMs != 25000 {
		t.Errorf("play head must clamp to the timeline end, got %v", st.PositionMs)
	}
	if ended != 1 {
		t.Errorf("expected 1 end callback, got %d", ended)
	}
}

func TestController_SeekTo(t *testing.T) {
	c, pool, _, _ := newTestController(Config{})
	clips := threeClipTimeline()
	c.SetTimeline(clips)

	t.Run("clamps_low", func(t *testing.T) {
		c.SeekTo(-500)
		if got := c.Position(); got != 0 {
			t.Errorf("position: got %v, want 0", got)
		}
	})

	t.Run("clamps_high", func(t *testing.T) {
		c.SeekTo(90000)
		if got := c.Position(); got != 25000 {
			t.Errorf("position: got %v, want 25000", got)
		}
	})

	t.Run("creates_target_resource", func(t *testing.T) {
		c.SeekTo(6000)
		st := c.State()
		if st.PositionMs != 6000 || st.CurrentClipID != "c2" {
			t.Errorf("state after seek: %+v", st)
		}
		if _, ok := pool.Info("c2"); !ok {
			t.Error("seek must lazily create the target clip's resource")
		}
	})
}

func TestController_seek_preheats_window(t *testing.T) {
	// Cap 2: the forced scheduling pass after a seek creates at most the two
	// most urgent clips and nothing beyond.
	cfg := Config{MaxActiveVideos: 2}
	c, pool, _, _ := newTestController(cfg)

	clips := make([]Clip, 5)
	for i := range clips {
		clips[i] = testClip(string(rune('a'+i)), float64(i)*1000, 1000)
	}
	c.SetTimeline(clips)

	c.SeekTo(0)

	if got := pool.Len(); got != 2 {
		t.Fatalf("expected 2 resources after preheat, got %d", got)
	}
	if _, ok := pool.Info("a"); !ok {
		t.Error("current clip must be loaded")
	}
	if _, ok := pool.Info("b"); !ok {
		t.Error("next clip must be loaded")
	}
}

func TestController_preheat_unloads_departed_clips(t *testing.T) {
	c, pool, _, _ := newTestController(Config{})
	clips := threeClipTimeline()
	c.SetTimeline(clips)

	c.SeekTo(0) // loads c1 (current) and c2 (starts 5s ahead)
	if _, ok := pool.Info("c1"); !ok {
		t.Fatal("c1 should be loaded at position 0")
	}

	// Jump far ahead: c1 falls out of the extended unload window.
	c.SeekTo(24000)
	if _, ok := pool.Info("c1"); ok {
		t.Error("c1 should have been unloaded after the jump")
	}
	if _, ok := pool.Info("c3"); !ok {
		t.Error("c3 should be loaded at position 24000")
	}
}

func TestController_play_pause_lifecycle(t *testing.T) {
	// Real clock and ticker: only the state transitions are asserted.
	pool, _, factory, _ := newTestPool(Config{})
	c := NewController(pool, Config{TickInterval: time.Millisecond}, testLogger())
	clips := threeClipTimeline()
	c.SetTimeline(clips)

	if _, err := pool.CreateOrReplace(clips[0], false); err != nil {
		t.Fatal(err)
	}
	if err := bufferClip(factory, clips[0]); err != nil {
		t.Fatal(err)
	}

	c.Play()
	if !c.State().Playing {
		t.Fatal("expected playing after Play")
	}
	c.Play() // idempotent

	time.Sleep(10 * time.Millisecond)

	c.Pause()
	st := c.State()
	if st.Playing {
		t.Fatal("expected paused after Pause")
	}
	pos := st.PositionMs
	if pos <= 0 {
		t.Errorf("play head should have advanced, got %v", pos)
	}

	// The loop is stopped: the position no longer moves.
	time.Sleep(10 * time.Millisecond)
	if got := c.Position(); got != pos {
		t.Errorf("position moved after pause: %v -> %v", pos, got)
	}
	c.Cleanup()
}
