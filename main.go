package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/luizcieslak/lofi-radio/config"
	"github.com/luizcieslak/lofi-radio/internal/broadcast"
	"github.com/luizcieslak/lofi-radio/internal/engine"
	"github.com/luizcieslak/lofi-radio/internal/httpapi"
	"github.com/luizcieslak/lofi-radio/internal/playlist"
	"github.com/luizcieslak/lofi-radio/internal/track"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg := config.Load()

	slog.Info("starting lofi radio station",
		"port", cfg.Port,
		"music_dir", cfg.MusicDir,
		"station_name", cfg.StationName,
	)

	library := track.NewLibrary()
	pl, err := playlist.Load(cfg.MusicDir, library)
	if err != nil {
		slog.Error("failed to load playlist", "error", err)
		os.Exit(1)
	}
	slog.Info("playlist loaded", "track_count", pl.Len())

	b := broadcast.NewWithHeartbeat(cfg.HeartbeatInterval)
	sched := engine.New(pl, b, time.Duration(cfg.BusyWaitCeilingMicros)*time.Microsecond)
	server := httpapi.New(cfg, b, pl, sched, library)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		slog.Info("shutdown signal received")
		cancel()
	}()

	go sched.Start(ctx)

	// Start server
	if err := server.Start(ctx); err != nil {
		slog.Error("httpapi server error", "error", err)
		os.Exit(1)
	}

	slog.Info("station stopped")
}
