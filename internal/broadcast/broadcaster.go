// Package broadcast owns the fan-out of audio bytes and metadata messages to
// an unbounded, dynamically changing set of HTTP connections. It never
// blocks its caller on a single slow listener and never lets a write panic
// or error escape past its own boundary.
package broadcast

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/luizcieslak/lofi-radio/internal/track"
)

// listenerQueueDepth bounds how many audio chunks a single listener may lag
// behind before it is dropped. At ~26ms/frame and ~1-4KB/frame this is
// several seconds of headroom.
const listenerQueueDepth = 512

// subscriberQueueDepth bounds pending metadata messages per subscriber.
const subscriberQueueDepth = 16

// HeartbeatInterval is the default interval between comment-only keep-alives
// sent to an idle metadata subscriber. New uses this; NewWithHeartbeat lets a
// caller (the control surface, from its own Config) override it.
const HeartbeatInterval = 30 * time.Second

// NowPlaying is the retained snapshot of whichever track is currently being
// broadcast, and the wall-clock moment its first frame went out.
type NowPlaying struct {
	Track     *track.Track `json:"track"`
	StartedAt time.Time    `json:"startedAt"`
}

// audioListener is an attached audio sink.
type audioListener struct {
	id uuid.UUID
	ch chan []byte
}

// metadataSubscriber is an attached metadata sink along with the cancel for
// its heartbeat goroutine.
type metadataSubscriber struct {
	id         uuid.UUID
	ch         chan []byte
	cancelBeat chan struct{}
}

// ListenerHandle is returned to the connection goroutine that owns an audio
// sink; it is the only way to read broadcast bytes or detach.
type ListenerHandle struct {
	id uuid.UUID
	ch chan []byte
	b  *Broadcaster
}

// ID returns the listener's identity, used for logging and status.
func (h *ListenerHandle) ID() uuid.UUID { return h.id }

// Chan returns the channel the owning connection should range/select over.
// It is closed when the listener is detached.
func (h *ListenerHandle) Chan() <-chan []byte { return h.ch }

// Detach removes this listener from the broadcaster. Idempotent.
func (h *ListenerHandle) Detach() { h.b.detachListener(h.id) }

// SubscriberHandle is the equivalent of ListenerHandle for a metadata
// subscriber (now-playing channel).
type SubscriberHandle struct {
	id uuid.UUID
	ch chan []byte
	b  *Broadcaster
}

func (h *SubscriberHandle) ID() uuid.UUID       { return h.id }
func (h *SubscriberHandle) Chan() <-chan []byte { return h.ch }
func (h *SubscriberHandle) Detach()             { h.b.detachSubscriber(h.id) }

// Broadcaster owns the audio listener set and the now-playing subscriber
// set. It is the passive fan-out described by the core design: it never
// reaches back into the Scheduler or Playlist, only the reverse.
type Broadcaster struct {
	mu        sync.RWMutex
	listeners map[uuid.UUID]*audioListener
	subs      map[uuid.UUID]*metadataSubscriber

	npMu sync.RWMutex
	np   *NowPlaying

	heartbeatInterval time.Duration
}

// New returns an empty Broadcaster using the default HeartbeatInterval.
func New() *Broadcaster {
	return NewWithHeartbeat(HeartbeatInterval)
}

// NewWithHeartbeat returns an empty Broadcaster whose metadata subscribers
// receive a keep-alive every interval. A non-positive interval falls back to
// HeartbeatInterval.
func NewWithHeartbeat(interval time.Duration) *Broadcaster {
	if interval <= 0 {
		interval = HeartbeatInterval
	}
	return &Broadcaster{
		listeners:         make(map[uuid.UUID]*audioListener),
		subs:              make(map[uuid.UUID]*metadataSubscriber),
		heartbeatInterval: interval,
	}
}

// AttachListener registers a new audio sink. No past audio is replayed; the
// new listener joins mid-stream.
func (b *Broadcaster) AttachListener() *ListenerHandle {
	l := &audioListener{
		id: uuid.New(),
		ch: make(chan []byte, listenerQueueDepth),
	}

	b.mu.Lock()
	b.listeners[l.id] = l
	b.mu.Unlock()

	return &ListenerHandle{id: l.id, ch: l.ch, b: b}
}

func (b *Broadcaster) detachListener(id uuid.UUID) {
	b.mu.Lock()
	l, ok := b.listeners[id]
	if ok {
		delete(b.listeners, id)
	}
	b.mu.Unlock()
	if ok {
		close(l.ch)
	}
}

// AttachSubscriber registers a new now-playing metadata sink, immediately
// pushes the current NowPlaying snapshot (if any) as the subscriber's first
// message, and starts a heartbeat for as long as it remains attached.
func (b *Broadcaster) AttachSubscriber() *SubscriberHandle {
	s := &metadataSubscriber{
		id:         uuid.New(),
		ch:         make(chan []byte, subscriberQueueDepth),
		cancelBeat: make(chan struct{}),
	}

	b.mu.Lock()
	b.subs[s.id] = s
	b.mu.Unlock()

	if snapshot := b.currentNowPlaying(); snapshot != nil {
		if payload, err := EncodeSSE(snapshot); err == nil {
			nonBlockingSend(s.ch, payload)
		}
	}

	go b.heartbeatLoop(s)

	return &SubscriberHandle{id: s.id, ch: s.ch, b: b}
}

func (b *Broadcaster) heartbeatLoop(s *metadataSubscriber) {
	ticker := time.NewTicker(b.heartbeatInterval)
	defer ticker.Stop()
	beat := []byte(": heartbeat\n\n")

	for {
		select {
		case <-s.cancelBeat:
			return
		case <-ticker.C:
			nonBlockingSend(s.ch, beat)
		}
	}
}

func (b *Broadcaster) detachSubscriber(id uuid.UUID) {
	b.mu.Lock()
	s, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()
	if ok {
		close(s.cancelBeat)
		close(s.ch)
	}
}

// BroadcastAudio writes payload to every attached listener. A listener whose
// queue is full is dropped rather than allowed to stall the others; this
// call never blocks longer than it takes to enqueue into healthy listeners.
func (b *Broadcaster) BroadcastAudio(payload []byte) {
	b.mu.RLock()
	snapshot := make([]*audioListener, 0, len(b.listeners))
	for _, l := range b.listeners {
		snapshot = append(snapshot, l)
	}
	b.mu.RUnlock()

	for _, l := range snapshot {
		if !nonBlockingSend(l.ch, payload) {
			slog.Warn("broadcast: listener queue full, dropping", "listener_id", l.id)
			b.detachListener(l.id)
		}
	}
}

// PublishNowPlaying updates the retained snapshot and pushes it to every
// subscriber, using the same per-sink isolation as BroadcastAudio.
func (b *Broadcaster) PublishNowPlaying(np *NowPlaying) {
	b.npMu.Lock()
	b.np = np
	b.npMu.Unlock()

	payload, err := EncodeSSE(np)
	if err != nil {
		slog.Error("broadcast: encode now-playing", "error", err)
		return
	}

	b.mu.RLock()
	snapshot := make([]*metadataSubscriber, 0, len(b.subs))
	for _, s := range b.subs {
		snapshot = append(snapshot, s)
	}
	b.mu.RUnlock()

	for _, s := range snapshot {
		if !nonBlockingSend(s.ch, payload) {
			slog.Warn("broadcast: subscriber queue full, dropping", "subscriber_id", s.id)
			b.detachSubscriber(s.id)
		}
	}
}

func (b *Broadcaster) currentNowPlaying() *NowPlaying {
	b.npMu.RLock()
	defer b.npMu.RUnlock()
	return b.np
}

// ListenerCount returns the number of attached audio listeners.
func (b *Broadcaster) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// SubscriberCount returns the number of attached now-playing subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// NowPlayingSnapshot returns the currently retained NowPlaying, or nil if no
// track has started broadcasting yet.
func (b *Broadcaster) NowPlayingSnapshot() *NowPlaying {
	return b.currentNowPlaying()
}

// EncodeSSE marshals v as the JSON body of a `data: ...\n\n` SSE event. The
// playlist package keeps its own copy of this wire format rather than
// importing it.
func EncodeSSE(v any) ([]byte, error) {
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

// nonBlockingSend attempts to enqueue payload without blocking. It reports
// whether the send succeeded; a channel already closed by a concurrent
// detach reports false instead of panicking.
func nonBlockingSend(ch chan []byte, payload []byte) (sent bool) {
	defer func() {
		if recover() != nil {
			sent = false
		}
	}()
	select {
	case ch <- payload:
		return true
	default:
		return false
	}
}
