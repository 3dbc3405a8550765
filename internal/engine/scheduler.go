// Package engine hosts the Scheduler: the long-running producer that drives
// a Playlist's tracks, one frame at a time, through a Broadcaster at real
// playback speed.
package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/luizcieslak/lofi-radio/internal/broadcast"
	"github.com/luizcieslak/lofi-radio/internal/mpeg"
	"github.com/luizcieslak/lofi-radio/internal/pace"
	"github.com/luizcieslak/lofi-radio/internal/playlist"
	"github.com/luizcieslak/lofi-radio/internal/track"
)

// emptyPlaylistBackoff and fileErrorBackoff are the fixed retry delays named
// by the Scheduler's failure semantics.
const (
	emptyPlaylistBackoff = 5 * time.Second
	fileErrorBackoff     = 1 * time.Second
)

// Scheduler is the main producer: getNextTrack -> open FrameReader ->
// loop(read frame, broadcast, pace) -> close -> repeat.
type Scheduler struct {
	playlist    *playlist.Playlist
	broadcaster *broadcast.Broadcaster

	busyWaitCeiling time.Duration

	running atomic.Bool
	skipCh  chan struct{}
	nowFunc func() time.Time

	emptyBackoff    time.Duration
	trackErrBackoff time.Duration
}

// New returns a Scheduler driving pl through b. busyWaitCeiling bounds the
// PaceClock's per-frame busy-wait tail; zero selects the pace package's
// default.
func New(pl *playlist.Playlist, b *broadcast.Broadcaster, busyWaitCeiling time.Duration) *Scheduler {
	return &Scheduler{
		playlist:        pl,
		broadcaster:     b,
		busyWaitCeiling: busyWaitCeiling,
		skipCh:          make(chan struct{}, 1),
		nowFunc:         time.Now,
		emptyBackoff:    emptyPlaylistBackoff,
		trackErrBackoff: fileErrorBackoff,
	}
}

// Skip aborts the currently playing track's inner loop as if it had reached
// end-of-file, advancing immediately to the next track. A second Skip()
// while one is already pending is a no-op.
func (s *Scheduler) Skip() {
	select {
	case s.skipCh <- struct{}{}:
	default:
	}
}

// IsRunning reports whether the producer loop is currently active.
func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

// Start runs the producer loop until ctx is cancelled. It blocks the calling
// goroutine; callers should run it in its own goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	s.running.Store(true)
	defer s.running.Store(false)

	slog.Info("scheduler: started")

	for {
		if ctx.Err() != nil {
			slog.Info("scheduler: stopping")
			return
		}

		nextTrack, ok := s.playlist.GetNextTrack()
		if !ok {
			slog.Debug("scheduler: playlist empty, backing off")
			if !s.sleepOrStop(ctx, s.emptyBackoff) {
				return
			}
			continue
		}

		if !nextTrack.Exists() {
			slog.Warn("scheduler: track file missing, skipping", "path", nextTrack.Path)
			continue
		}

		s.publishTrackStart(nextTrack)

		err := s.playTrack(ctx, nextTrack)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("scheduler: track playback error", "path", nextTrack.Path, "error", err)
			if !s.sleepOrStop(ctx, s.trackErrBackoff) {
				return
			}
		}
	}
}

// publishTrackStart updates the retained NowPlaying snapshot and notifies
// the playlist's own trackChange subscribers.
func (s *Scheduler) publishTrackStart(t *track.Track) {
	s.broadcaster.PublishNowPlaying(&broadcast.NowPlaying{
		Track:     t,
		StartedAt: s.nowFunc(),
	})
	s.playlist.NotifyTrackChange(t)
}

// playTrack opens a FrameReader for t, paces its frames out through the
// Broadcaster, and returns nil on clean end-of-file or a skip, or a non-nil
// error for a reader/open failure that should trigger the Scheduler's
// backoff-and-retry policy.
func (s *Scheduler) playTrack(ctx context.Context, t *track.Track) error {
	reader, err := mpeg.Open(t.Path)
	if err != nil {
		return err
	}
	defer reader.Close()

	clock := pace.NewWithCeiling(s.busyWaitCeiling)

	for {
		if ctx.Err() != nil {
			return nil
		}

		select {
		case <-s.skipCh:
			return nil
		default:
		}

		frame, err := reader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		s.broadcaster.BroadcastAudio(frame.Payload)
		clock.AddTime(frame.FrameDurationMs)
		clock.Wait()
	}
}

// sleepOrStop sleeps for d, returning false early (without completing the
// sleep) if ctx is cancelled first.
func (s *Scheduler) sleepOrStop(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
