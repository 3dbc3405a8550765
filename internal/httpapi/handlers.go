package httpapi

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/luizcieslak/lofi-radio/internal/auth"
	"github.com/luizcieslak/lofi-radio/internal/engine"
	"github.com/luizcieslak/lofi-radio/internal/playlist"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	status := engine.Status{
		IsRunning:       s.scheduler.IsRunning(),
		ListenerCount:   s.broadcaster.ListenerCount(),
		SubscriberCount: s.broadcaster.SubscriberCount(),
		NowPlaying:      s.broadcaster.NowPlayingSnapshot(),
	}
	c.JSON(http.StatusOK, gin.H{
		"stationName": s.cfg.StationName,
		"trackCount":  s.playlist.Len(),
		"status":      status,
	})
}

func (s *Server) handleTracks(c *gin.Context) {
	tracks, playingIndex := s.playlist.Tracks()
	c.JSON(http.StatusOK, gin.H{"tracks": tracks, "playingIndex": playingIndex})
}

func (s *Server) handleArt(c *gin.Context) {
	checksum := c.Param("checksum")
	data, mime, ok := s.artForChecksum(checksum)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "no embedded art for this checksum"})
		return
	}
	c.Header("Cache-Control", "public, max-age=86400, immutable")
	c.Data(http.StatusOK, mime, data)
}

// handleStream attaches a new audio listener and streams raw MPEG frames to
// the connection until it disconnects or the server shuts down.
func (s *Server) handleStream(c *gin.Context) {
	listener := s.broadcaster.AttachListener()
	defer listener.Detach()

	slog.Info("httpapi: listener connected", "id", listener.ID(), "remote", c.ClientIP())
	defer slog.Info("httpapi: listener disconnected", "id", listener.ID())

	c.Header("Content-Type", "audio/mpeg")
	c.Header("Cache-Control", "no-cache, no-store")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Header("icy-name", s.cfg.StationName)
	c.Status(http.StatusOK)

	flusher, canFlush := c.Writer.(http.Flusher)

	ctx := c.Request.Context()
	for {
		select {
		case payload, ok := <-listener.Chan():
			if !ok {
				return
			}
			if _, err := c.Writer.Write(payload); err != nil {
				return
			}
			if canFlush {
				flusher.Flush()
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) handleNowPlayingSSE(c *gin.Context) {
	sub := s.broadcaster.AttachSubscriber()
	defer sub.Detach()
	streamSSE(c, sub.Chan())
}

func (s *Server) handlePlaylistEventsSSE(c *gin.Context) {
	sub := s.playlist.AttachSubscriber()
	defer sub.Detach()
	streamSSE(c, sub.Chan())
}

// streamSSE writes pre-framed "data: ...\n\n" payloads from ch to c until the
// client disconnects or ch is closed.
func streamSSE(c *gin.Context, ch <-chan []byte) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	flusher, canFlush := c.Writer.(http.Flusher)
	ctx := c.Request.Context()

	for {
		select {
		case payload, ok := <-ch:
			if !ok {
				return
			}
			if _, err := c.Writer.Write(payload); err != nil {
				return
			}
			if canFlush {
				flusher.Flush()
			}
		case <-ctx.Done():
			return
		}
	}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "invalid request body"})
		return
	}
	if len(req.Username) == 0 || len(req.Username) > 256 ||
		len(req.Password) == 0 || len(req.Password) > 256 {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "invalid credentials format"})
		return
	}

	token, err := s.auth.Authenticate(req.Username, req.Password, c.Request.RemoteAddr)
	if err != nil {
		slog.Warn("failed login attempt", "remote", c.Request.RemoteAddr, "error_type", err.Error())
		if errors.Is(err, auth.ErrRateLimited) {
			remaining := s.auth.RemainingLockout(c.Request.RemoteAddr)
			c.Header("Retry-After", fmt.Sprintf("%d", int(remaining.Seconds())))
			c.JSON(http.StatusTooManyRequests, gin.H{"status": "error", "error": "too many login attempts, please try again later"})
			return
		}
		c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "error": "invalid credentials"})
		return
	}

	slog.Info("admin logged in", "username", req.Username, "remote", c.Request.RemoteAddr)
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"token":     token,
		"username":  req.Username,
		"expiresIn": int(time.Duration(s.cfg.TokenTTLHours) * time.Hour / time.Second),
	})
}

type reorderRequest struct {
	IDs []int64 `json:"ids" binding:"required,min=1"`
}

func (s *Server) handleReorder(c *gin.Context) {
	var req reorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "ids is required"})
		return
	}

	if err := s.playlist.Reorder(req.IDs); err != nil {
		if errors.Is(err, playlist.ErrNotPermutation) {
			c.JSON(http.StatusConflict, gin.H{"status": "error", "error": "ids must be a permutation of the current playlist"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "reorder failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleReload(c *gin.Context) {
	if err := s.playlist.Reload(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "reload failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "trackCount": s.playlist.Len()})
}

func (s *Server) handleSkip(c *gin.Context) {
	s.scheduler.Skip()
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
