package playlist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/luizcieslak/lofi-radio/internal/track"
)

func writeTrackFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("not a real mp3 frame, just distinct content: "+name), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func newTestPlaylist(t *testing.T, names ...string) *Playlist {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		writeTrackFile(t, dir, n)
	}
	lib := track.NewLibrary()
	p, err := Load(dir, lib)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return p
}

func TestPlaylist_EmptyDirectoryIsCreatedAndEmpty(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "does-not-exist-yet")
	lib := track.NewLibrary()
	p, err := Load(dir, lib)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", p.Len())
	}
	if _, ok := p.GetNextTrack(); ok {
		t.Fatalf("GetNextTrack() on empty playlist returned ok=true")
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("expected directory to be created: %v", err)
	}
}

func TestPlaylist_CyclesThroughTracksInOrder(t *testing.T) {
	p := newTestPlaylist(t, "a.mp3", "b.mp3", "c.mp3")

	var titles []string
	for i := 0; i < 6; i++ {
		tr, ok := p.GetNextTrack()
		if !ok {
			t.Fatalf("GetNextTrack() returned ok=false at iteration %d", i)
		}
		titles = append(titles, tr.Title)
	}

	want := []string{"a", "b", "c", "a", "b", "c"}
	for i, w := range want {
		if titles[i] != w {
			t.Fatalf("titles[%d] = %q, want %q (full: %v)", i, titles[i], w, titles)
		}
	}
}

func TestPlaylist_NotifyTrackChangeMovesPlayingCursor(t *testing.T) {
	p := newTestPlaylist(t, "a.mp3", "b.mp3")

	first, _ := p.GetNextTrack()
	p.NotifyTrackChange(first)

	_, playingIdx := p.Tracks()
	if playingIdx != 0 {
		t.Fatalf("playingIdx = %d, want 0", playingIdx)
	}

	second, _ := p.GetNextTrack()
	p.NotifyTrackChange(second)

	_, playingIdx = p.Tracks()
	if playingIdx != 1 {
		t.Fatalf("playingIdx = %d, want 1", playingIdx)
	}
}

func TestPlaylist_ReorderPreservesCursorIdentity(t *testing.T) {
	p := newTestPlaylist(t, "a.mp3", "b.mp3", "c.mp3")

	// Play "a" so playingCursor points at it; nextCursor now points at "b".
	a, _ := p.GetNextTrack()
	p.NotifyTrackChange(a)

	tracks, playingIdx := p.Tracks()
	playingID := tracks[playingIdx].ID
	nextTrackBeforeReorder, _ := p.GetNextTrack() // consumes "b", advances nextCursor to "c"
	_ = nextTrackBeforeReorder

	// Reorder to c, a, b.
	ids := []int64{tracks[2].ID, tracks[0].ID, tracks[1].ID}
	if err := p.Reorder(ids); err != nil {
		t.Fatalf("Reorder: %v", err)
	}

	newTracks, newPlayingIdx := p.Tracks()
	if newTracks[newPlayingIdx].ID != playingID {
		t.Fatalf("playingCursor after reorder points to id %d, want %d", newTracks[newPlayingIdx].ID, playingID)
	}
}

func TestPlaylist_ReorderRejectsNonPermutation(t *testing.T) {
	p := newTestPlaylist(t, "a.mp3", "b.mp3")
	tracks, _ := p.Tracks()

	// Missing one id, duplicated the other: not a permutation.
	bad := []int64{tracks[0].ID, tracks[0].ID}
	if err := p.Reorder(bad); err != ErrNotPermutation {
		t.Fatalf("Reorder(bad) err = %v, want ErrNotPermutation", err)
	}

	// Playlist order must be unchanged after a rejected reorder.
	after, _ := p.Tracks()
	if after[0].ID != tracks[0].ID || after[1].ID != tracks[1].ID {
		t.Fatalf("playlist order changed after a rejected reorder")
	}
}

func TestPlaylist_ReorderOfCurrentOrderIsNoOpOnCursors(t *testing.T) {
	p := newTestPlaylist(t, "a.mp3", "b.mp3", "c.mp3")
	a, _ := p.GetNextTrack()
	p.NotifyTrackChange(a)

	before, beforePlayingIdx := p.Tracks()
	ids := make([]int64, len(before))
	for i, tr := range before {
		ids[i] = tr.ID
	}

	if err := p.Reorder(ids); err != nil {
		t.Fatalf("Reorder(currentOrder): %v", err)
	}

	after, afterPlayingIdx := p.Tracks()
	if beforePlayingIdx != afterPlayingIdx || before[beforePlayingIdx].ID != after[afterPlayingIdx].ID {
		t.Fatalf("reordering the current order moved the playing cursor")
	}
}

func TestPlaylist_ReloadResetsCursorsAndIsIdempotent(t *testing.T) {
	p := newTestPlaylist(t, "a.mp3", "b.mp3")
	p.GetNextTrack()
	p.GetNextTrack()

	if err := p.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	first, firstIdx := p.Tracks()

	if err := p.Reload(); err != nil {
		t.Fatalf("second Reload: %v", err)
	}
	second, secondIdx := p.Tracks()

	if firstIdx != 0 || secondIdx != 0 {
		t.Fatalf("cursors after reload = %d, %d, want 0, 0", firstIdx, secondIdx)
	}
	if len(first) != len(second) {
		t.Fatalf("reload produced different track counts: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID || first[i].Path != second[i].Path {
			t.Fatalf("two consecutive reloads diverged at index %d", i)
		}
	}
}

func TestPlaylist_SubscriberReceivesSnapshotOnAttach(t *testing.T) {
	p := newTestPlaylist(t, "a.mp3")
	sub := p.AttachSubscriber()
	defer sub.Detach()

	select {
	case msg, ok := <-sub.Chan():
		if !ok || len(msg) == 0 {
			t.Fatalf("expected a non-empty snapshot message on attach")
		}
	default:
		t.Fatalf("expected an immediate snapshot message on attach")
	}
}
