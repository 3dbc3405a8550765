package broadcast

import (
	"testing"
	"time"

	"github.com/luizcieslak/lofi-radio/internal/track"
)

func drain(t *testing.T, ch <-chan []byte, n int, timeout time.Duration) [][]byte {
	t.Helper()
	out := make([][]byte, 0, n)
	deadline := time.After(timeout)
	for len(out) < n {
		select {
		case b, ok := <-ch:
			if !ok {
				t.Fatalf("channel closed after %d of %d messages", len(out), n)
			}
			out = append(out, b)
		case <-deadline:
			t.Fatalf("timed out waiting for message %d/%d", len(out)+1, n)
		}
	}
	return out
}

func TestBroadcaster_ListenerReceivesFramesInOrder(t *testing.T) {
	b := New()
	h := b.AttachListener()
	defer h.Detach()

	for i := 0; i < 5; i++ {
		b.BroadcastAudio([]byte{byte(i)})
	}

	got := drain(t, h.Chan(), 5, time.Second)
	for i, frame := range got {
		if len(frame) != 1 || frame[0] != byte(i) {
			t.Fatalf("frame %d = %v, want [%d]", i, frame, i)
		}
	}
}

func TestBroadcaster_LateListenerDoesNotReplayPastAudio(t *testing.T) {
	b := New()
	b.BroadcastAudio([]byte{0xAA})

	h := b.AttachListener()
	defer h.Detach()
	b.BroadcastAudio([]byte{0xBB})

	got := drain(t, h.Chan(), 1, time.Second)
	if got[0][0] != 0xBB {
		t.Fatalf("late listener saw %v, want replay-free stream starting at 0xBB", got[0])
	}
}

func TestBroadcaster_DetachStopsDelivery(t *testing.T) {
	b := New()
	h := b.AttachListener()
	h.Detach()

	b.BroadcastAudio([]byte{0x01})

	select {
	case _, ok := <-h.Chan():
		if ok {
			t.Fatalf("detached listener received a frame")
		}
		// channel closed: expected.
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("detached listener's channel was never closed")
	}

	if b.ListenerCount() != 0 {
		t.Fatalf("ListenerCount() = %d, want 0", b.ListenerCount())
	}
}

func TestBroadcaster_TwoListenersSeeSameTailSequence(t *testing.T) {
	b := New()
	l1 := b.AttachListener()

	for i := 0; i < 5; i++ {
		b.BroadcastAudio([]byte{byte(i)})
	}
	// Drain l1's first 5 before l2 attaches so both channels stay small.
	drain(t, l1.Chan(), 5, time.Second)

	l2 := b.AttachListener()
	for i := 5; i < 8; i++ {
		b.BroadcastAudio([]byte{byte(i)})
	}
	l1.Detach()

	// Detach closes l1's channel; the 3 frames already queued stay readable.
	got1 := drain(t, l1.Chan(), 3, time.Second)
	got2 := drain(t, l2.Chan(), 3, time.Second)
	for i, frame := range got2 {
		want := byte(5 + i)
		if frame[0] != want {
			t.Fatalf("l2 frame %d = %v, want [%d]", i, frame, want)
		}
		if got1[i][0] != frame[0] {
			t.Fatalf("l1 frame %d = %v, l2 frame %d = %v, want the same tail", i, got1[i], i, frame)
		}
	}
}

func TestBroadcaster_PublishNowPlayingReachesSubscriber(t *testing.T) {
	b := New()
	tr := &track.Track{ID: 1, Title: "A"}
	b.PublishNowPlaying(&NowPlaying{Track: tr, StartedAt: time.Now()})

	sub := b.AttachSubscriber()
	defer sub.Detach()

	// Attach pushes the current snapshot immediately.
	msgs := drain(t, sub.Chan(), 1, time.Second)
	if len(msgs) != 1 {
		t.Fatalf("expected immediate snapshot on attach")
	}

	tr2 := &track.Track{ID: 2, Title: "B"}
	b.PublishNowPlaying(&NowPlaying{Track: tr2, StartedAt: time.Now()})

	msgs2 := drain(t, sub.Chan(), 1, time.Second)
	if len(msgs2) != 1 {
		t.Fatalf("expected a second message on track change")
	}
}

func TestBroadcaster_SubscriberCountReflectsAttachDetach(t *testing.T) {
	b := New()
	if b.SubscriberCount() != 0 {
		t.Fatalf("initial SubscriberCount() = %d, want 0", b.SubscriberCount())
	}
	sub := b.AttachSubscriber()
	if b.SubscriberCount() != 1 {
		t.Fatalf("SubscriberCount() = %d, want 1", b.SubscriberCount())
	}
	sub.Detach()
	if b.SubscriberCount() != 0 {
		t.Fatalf("SubscriberCount() after detach = %d, want 0", b.SubscriberCount())
	}
}
