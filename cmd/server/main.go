package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clip-playback/internal/platform/config"
	"clip-playback/internal/platform/logger"
	"clip-playback/internal/platform/metrics"
	"clip-playback/internal/player"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")

	cfg := player.Config{
		MaxActiveVideos:      config.GetEnvInt("MAX_ACTIVE_VIDEOS", player.DefaultMaxActiveVideos),
		PreheatWindowSec:     config.GetEnvFloat("PREHEAT_WINDOW_SEC", player.DefaultPreheatWindowSec),
		LookBackSec:          config.GetEnvFloat("LOOK_BACK_SEC", player.DefaultLookBackSec),
		SeekThresholdSec:     config.GetEnvFloat("SEEK_THRESHOLD_SEC", player.DefaultSeekThresholdSec),
		BufferThresholdSec:   config.GetEnvFloat("BUFFER_THRESHOLD_SEC", player.DefaultBufferThresholdSec),
		AdaptiveThresholdSec: config.GetEnvFloat("ADAPTIVE_THRESHOLD_SEC", player.DefaultAdaptiveThresholdSec),
		PreheatInterval:      config.GetEnvDuration("PREHEAT_INTERVAL", player.DefaultPreheatInterval),
	}

	log := logger.New(logLevel, logFormat)

	// Simulated media backend: the engine runs headless, buffering in
	// wall-clock time instead of fetching real media.
	resolver := &player.SimResolver{
		BaseURL:  config.GetEnv("MEDIA_BASE_URL", "https://media.local"),
		Adaptive: map[player.SourceID]bool{},
	}
	factory := &player.SimHandleFactory{
		Latency: config.GetEnvDuration("SIM_FETCH_LATENCY", 200*time.Millisecond),
	}

	met := metrics.New()
	engine := player.NewEngine(resolver, factory, cfg, log, met)
	defer engine.Cleanup()

	if path := config.GetEnv("TIMELINE_FILE", ""); path != "" {
		if err := loadTimeline(engine, path); err != nil {
			log.Error("timeline preload failed", "path", path, "error", err)
			os.Exit(1)
		}
		log.Info("timeline preloaded", "path", path)
	}

	h := player.NewHandler(engine, log)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log, "/metrics"))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetActiveResources(engine.ActiveResourceCount()) }).ServeHTTP(w, r)
	})
	r.Put("/timeline", h.SetTimeline)
	r.Route("/playback", func(r chi.Router) {
		r.Post("/play", h.Play)
		r.Post("/pause", h.Pause)
		r.Post("/toggle", h.Toggle)
		r.Post("/seek", h.Seek)
		r.Get("/state", h.GetState)
		r.Get("/resources", h.GetResources)
	})
	r.Get("/clips/{clip_id}/ready", h.ClipReady)

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"max_active_videos", cfg.MaxActiveVideos,
		"preheat_window_sec", cfg.PreheatWindowSec,
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}

// loadTimeline reads a JSON clip array from path and installs it.
func loadTimeline(engine *player.Engine, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var clips []player.Clip
	if err := json.Unmarshal(data, &clips); err != nil {
		return err
	}
	return engine.SetTimeline(clips)
}
