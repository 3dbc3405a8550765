// Package playlist is the cyclic, in-memory track catalog: a "next" cursor
// handed out to the Scheduler and a "currently playing" cursor reported to
// the UI, kept independently so reorders and reloads never desynchronize
// them.
package playlist

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/luizcieslak/lofi-radio/internal/track"
)

// ErrNotPermutation is returned by Reorder when the given id list is not a
// permutation of the current track ids.
var ErrNotPermutation = errors.New("playlist: ids are not a permutation of the current track list")

const subscriberQueueDepth = 8

// snapshotMessage is the `{"type":"playlist",...}` wire shape pushed on
// attach and after any reorder/reload.
type snapshotMessage struct {
	Type         string         `json:"type"`
	Tracks       []*track.Track `json:"tracks"`
	CurrentIndex int            `json:"currentIndex"`
}

// trackChangeMessage is the `{"type":"trackChange",...}` wire shape pushed
// on every notifyTrackChange.
type trackChangeMessage struct {
	Type         string       `json:"type"`
	Track        *track.Track `json:"track"`
	CurrentIndex int          `json:"currentIndex"`
}

type subscriber struct {
	id uuid.UUID
	ch chan []byte
}

// SubscriberHandle lets a connection goroutine read playlist events and
// detach when its connection closes.
type SubscriberHandle struct {
	id uuid.UUID
	ch chan []byte
	p  *Playlist
}

func (h *SubscriberHandle) ID() uuid.UUID       { return h.id }
func (h *SubscriberHandle) Chan() <-chan []byte { return h.ch }
func (h *SubscriberHandle) Detach()             { h.p.detachSubscriber(h.id) }

// Playlist is a directory-scanning cyclic track list backed by a
// track.Library for stable identity across rescans.
type Playlist struct {
	mu  sync.RWMutex
	dir string
	lib *track.Library

	tracks        []*track.Track
	nextCursor    int
	playingCursor int

	subMu sync.RWMutex
	subs  map[uuid.UUID]*subscriber
}

// Load scans dir for .mp3 files, resolves each against lib, and returns a
// Playlist with both cursors at 0.
func Load(dir string, lib *track.Library) (*Playlist, error) {
	p := &Playlist{
		dir:  dir,
		lib:  lib,
		subs: make(map[uuid.UUID]*subscriber),
	}
	if err := p.rescan(); err != nil {
		return nil, err
	}
	return p, nil
}

// rescan repopulates p.tracks from disk. Caller must not hold p.mu.
func (p *Playlist) rescan() error {
	paths, err := scanDirectory(p.dir)
	if err != nil {
		return fmt.Errorf("playlist: scan %s: %w", p.dir, err)
	}

	tracks := make([]*track.Track, 0, len(paths))
	for i, path := range paths {
		candidate, err := track.FromFile(int64(i+1), path)
		if err != nil {
			slog.Warn("playlist: skipping unreadable file", "path", path, "error", err)
			continue
		}
		tracks = append(tracks, p.lib.Resolve(candidate))
	}

	p.mu.Lock()
	p.tracks = tracks
	p.nextCursor = 0
	p.playingCursor = 0
	p.mu.Unlock()

	return nil
}

// GetNextTrack returns the track at nextCursor and advances it, wrapping
// modulo the track count. It reports false if the playlist is empty.
func (p *Playlist) GetNextTrack() (*track.Track, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.tracks) == 0 {
		return nil, false
	}
	t := p.tracks[p.nextCursor]
	p.nextCursor = (p.nextCursor + 1) % len(p.tracks)
	return t, true
}

// NotifyTrackChange updates playingCursor by locating t's id in the current
// order (a no-op if it is no longer present, e.g. removed by a concurrent
// reload) and pushes a trackChange event to the playlist subscriber set.
func (p *Playlist) NotifyTrackChange(t *track.Track) {
	p.mu.Lock()
	idx := p.indexOfLocked(t.ID)
	if idx >= 0 {
		p.playingCursor = idx
	}
	p.mu.Unlock()

	if idx < 0 {
		return
	}
	p.publish(trackChangeMessage{Type: "trackChange", Track: t, CurrentIndex: idx})
}

// indexOfLocked returns the index of the track with the given id, or -1.
// Caller must hold p.mu.
func (p *Playlist) indexOfLocked(id int64) int {
	for i, t := range p.tracks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// Reorder atomically replaces the track order with the permutation named by
// ids, then recomputes both cursors by locating the tracks that were
// pointed to before the reorder. It rejects (no-op) any ids slice that is
// not a permutation of the current track ids.
func (p *Playlist) Reorder(ids []int64) error {
	p.mu.Lock()

	if len(ids) != len(p.tracks) {
		p.mu.Unlock()
		return ErrNotPermutation
	}

	byID := make(map[int64]*track.Track, len(p.tracks))
	for _, t := range p.tracks {
		byID[t.ID] = t
	}

	seen := make(map[int64]bool, len(ids))
	newOrder := make([]*track.Track, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			p.mu.Unlock()
			return ErrNotPermutation
		}
		t, ok := byID[id]
		if !ok {
			p.mu.Unlock()
			return ErrNotPermutation
		}
		seen[id] = true
		newOrder = append(newOrder, t)
	}

	var playingID, nextID int64
	hadPlaying, hadNext := false, false
	if len(p.tracks) > 0 {
		playingID = p.tracks[p.playingCursor].ID
		nextID = p.tracks[p.nextCursor].ID
		hadPlaying, hadNext = true, true
	}

	p.tracks = newOrder

	if hadPlaying {
		if idx := p.indexOfLocked(playingID); idx >= 0 {
			p.playingCursor = idx
		}
	}
	if hadNext {
		if idx := p.indexOfLocked(nextID); idx >= 0 {
			p.nextCursor = idx
		}
	}

	snap := p.snapshotLocked()
	p.mu.Unlock()

	p.publish(snap)
	return nil
}

// Reload rescans the source directory and resets both cursors to 0.
func (p *Playlist) Reload() error {
	if err := p.rescan(); err != nil {
		return err
	}
	p.mu.RLock()
	snap := p.snapshotLocked()
	p.mu.RUnlock()
	p.publish(snap)
	return nil
}

// snapshotLocked builds the current playlist snapshot message. Caller must
// hold at least a read lock on p.mu.
func (p *Playlist) snapshotLocked() snapshotMessage {
	tracks := make([]*track.Track, len(p.tracks))
	copy(tracks, p.tracks)
	return snapshotMessage{Type: "playlist", Tracks: tracks, CurrentIndex: p.playingCursor}
}

// Tracks returns a point-in-time snapshot of the track list and the
// currently-playing index, for REST reads.
func (p *Playlist) Tracks() ([]*track.Track, int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	tracks := make([]*track.Track, len(p.tracks))
	copy(tracks, p.tracks)
	return tracks, p.playingCursor
}

// Len returns the number of tracks currently in the playlist.
func (p *Playlist) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.tracks)
}

// AttachSubscriber registers a new playlist-events sink and immediately
// pushes the current snapshot as its first message.
func (p *Playlist) AttachSubscriber() *SubscriberHandle {
	s := &subscriber{id: uuid.New(), ch: make(chan []byte, subscriberQueueDepth)}

	p.subMu.Lock()
	p.subs[s.id] = s
	p.subMu.Unlock()

	p.mu.RLock()
	snap := p.snapshotLocked()
	p.mu.RUnlock()

	if payload, err := encodeSSE(snap); err == nil {
		select {
		case s.ch <- payload:
		default:
		}
	}

	return &SubscriberHandle{id: s.id, ch: s.ch, p: p}
}

func (p *Playlist) detachSubscriber(id uuid.UUID) {
	p.subMu.Lock()
	s, ok := p.subs[id]
	if ok {
		delete(p.subs, id)
	}
	p.subMu.Unlock()
	if ok {
		close(s.ch)
	}
}

// publish pushes v to every attached playlist subscriber, dropping any whose
// queue is full rather than blocking the caller.
func (p *Playlist) publish(v any) {
	payload, err := encodeSSE(v)
	if err != nil {
		slog.Error("playlist: encode event", "error", err)
		return
	}

	p.subMu.RLock()
	snapshot := make([]*subscriber, 0, len(p.subs))
	for _, s := range p.subs {
		snapshot = append(snapshot, s)
	}
	p.subMu.RUnlock()

	for _, s := range snapshot {
		select {
		case s.ch <- payload:
		default:
			slog.Warn("playlist: subscriber queue full, dropping", "subscriber_id", s.id)
			p.detachSubscriber(s.id)
		}
	}
}

// encodeSSE marshals v as the JSON body of a `data: ...\n\n` SSE event. This
// mirrors broadcast.EncodeSSE but is kept independent: the playlist's
// metadata channel is a distinct subscription lifecycle from the
// Broadcaster's now-playing channel, and the two packages must not share
// ownership of either.
func encodeSSE(v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(body)+8)
	out = append(out, "data: "...)
	out = append(out, body...)
	out = append(out, '\n', '\n')
	return out, nil
}
