// Package httpapi is the thin control-surface adapter: it converts incoming
// HTTP connections into Broadcaster/Playlist registrations and exposes
// status and admin endpoints. It owns no playback state of its own.
package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/luizcieslak/lofi-radio/config"
	"github.com/luizcieslak/lofi-radio/internal/auth"
	"github.com/luizcieslak/lofi-radio/internal/broadcast"
	"github.com/luizcieslak/lofi-radio/internal/engine"
	"github.com/luizcieslak/lofi-radio/internal/playlist"
	"github.com/luizcieslak/lofi-radio/internal/track"
)

// Server is the control-surface adapter gluing the core engine to net/http.
type Server struct {
	cfg         *config.Config
	broadcaster *broadcast.Broadcaster
	playlist    *playlist.Playlist
	scheduler   *engine.Scheduler
	library     *track.Library
	auth        *auth.Auth

	artMu    sync.Mutex
	artCache map[string]artEntry

	httpServer *http.Server
}

type artEntry struct {
	data []byte
	mime string
}

// New builds the gin router and wraps it in an *http.Server bound to
// cfg.Port. It does not start listening; call Start for that.
func New(cfg *config.Config, b *broadcast.Broadcaster, pl *playlist.Playlist, sched *engine.Scheduler, lib *track.Library) *Server {
	a := auth.New(auth.Config{
		Username:           cfg.AdminUsername,
		Password:           cfg.AdminPassword,
		JWTSecret:          cfg.JWTSecret,
		TokenTTL:           time.Duration(cfg.TokenTTLHours) * time.Hour,
		MaxLoginAttempts:   cfg.MaxLoginAttempts,
		LoginWindowSeconds: cfg.LoginWindowSeconds,
	})

	s := &Server{
		cfg:         cfg,
		broadcaster: b,
		playlist:    pl,
		scheduler:   sched,
		library:     lib,
		auth:        a,
		artCache:    make(map[string]artEntry),
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), securityHeaders())
	s.registerRoutes(r)

	s.httpServer = &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}
	return s
}

// artForChecksum returns the cover art bytes and MIME type for checksum,
// decoding it from the track's embedded tag at most once and serving every
// subsequent request out of artCache.
func (s *Server) artForChecksum(checksum string) (data []byte, mime string, ok bool) {
	s.artMu.Lock()
	if entry, cached := s.artCache[checksum]; cached {
		s.artMu.Unlock()
		return entry.data, entry.mime, true
	}
	s.artMu.Unlock()

	t := s.library.GetByChecksum(checksum)
	if t == nil {
		return nil, "", false
	}

	data, mime, hasArt := t.EmbeddedArt()
	if !hasArt {
		return nil, "", false
	}
	if mime == "" {
		mime = "application/octet-stream"
	}

	s.artMu.Lock()
	s.artCache[checksum] = artEntry{data: data, mime: mime}
	s.artMu.Unlock()

	return data, mime, true
}

func (s *Server) registerRoutes(r *gin.Engine) {
	r.GET("/health", s.handleHealth)
	r.GET("/status", s.handleStatus)
	r.GET("/tracks", s.handleTracks)
	r.GET("/art/:checksum", s.handleArt)

	r.GET("/stream", s.handleStream)
	r.GET("/now-playing", s.handleNowPlayingSSE)
	r.GET("/playlist/events", s.handlePlaylistEventsSSE)

	r.POST("/admin/login", s.handleLogin)

	admin := r.Group("/admin", requireAdmin(s.auth))
	admin.POST("/reorder", s.handleReorder)
	admin.POST("/reload", s.handleReload)
	admin.POST("/skip", s.handleSkip)
}

// Start runs the HTTP server until ctx is cancelled, then attempts a graceful
// shutdown with a bounded grace period.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("httpapi: listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		slog.Info("httpapi: shutting down")
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("httpapi: shutdown: %w", err)
		}
		return nil
	}
}
