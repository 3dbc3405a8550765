package mpeg

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

// buildFrame returns the raw bytes of one MPEG-1 Layer III frame at the
// given bitrate index (128kbps = 9) and sample-rate index (44100Hz = 0),
// padded with filler bytes so payload length matches frameSize.
func buildFrame(t *testing.T, bitrateIdx, sampleIdx byte, padding byte) []byte {
	t.Helper()
	b1 := byte(0xE0) | (0x3 << 3) | (0x1 << 1) // MPEG-1 (version=11), Layer III (layer=01)
	b2 := (bitrateIdx << 4) | (sampleIdx << 2) | (padding << 1)
	hdr := []byte{0xFF, b1, b2, 0x00}

	bitrate := bitrateTable[bitrateIdx]
	sampleRate := sampleRateTable[sampleIdx]
	frameSize := (144*bitrate*1000)/sampleRate + int(padding)

	frame := make([]byte, frameSize)
	copy(frame, hdr)
	for i := 4; i < frameSize; i++ {
		frame[i] = byte(0xAB)
	}
	return frame
}

func writeTempFile(t *testing.T, data []byte) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "track.mp3")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestReader_SingleFrameNoMetadata(t *testing.T) {
	frame := buildFrame(t, 9, 0, 0) // 128kbps @ 44100Hz
	path := writeTempFile(t, frame)

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	f, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if len(f.Payload) != len(frame) {
		t.Fatalf("payload length = %d, want %d", len(f.Payload), len(frame))
	}
	wantDur := 1152 * 1000 / 44100.0
	if f.FrameDurationMs != wantDur {
		t.Fatalf("frameDurationMs = %v, want %v", f.FrameDurationMs, wantDur)
	}

	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("second Next err = %v, want io.EOF", err)
	}
}

func TestReader_SkipsID3Header(t *testing.T) {
	frame := buildFrame(t, 9, 0, 0)

	// ID3 + synchsafe length 10 (0x0A) -> skip 10 header bytes + 10 payload bytes = 20.
	id3 := []byte{'I', 'D', '3', 0x04, 0x00, 0x00, 0x00, 0x00, 0x00, 0x0A}
	filler := make([]byte, 10)
	for i := range filler {
		filler[i] = 0x99
	}

	data := append(append(id3, filler...), frame...)
	path := writeTempFile(t, data)

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	f, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if len(f.Payload) != len(frame) {
		t.Fatalf("payload length = %d, want %d", len(f.Payload), len(frame))
	}
	if f.Payload[0] != 0xFF {
		t.Fatalf("expected frame sync at payload[0], got %x", f.Payload[0])
	}
}

func TestReader_ResyncsPastGarbage(t *testing.T) {
	frame1 := buildFrame(t, 9, 0, 0)
	frame2 := buildFrame(t, 5, 0, 0)
	garbage := []byte{0x00, 0x00, 0x00}

	data := append(append(append([]byte{}, frame1...), garbage...), frame2...)
	path := writeTempFile(t, data)

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	f1, err := r.Next()
	if err != nil {
		t.Fatalf("Next (frame1): %v", err)
	}
	if len(f1.Payload) != len(frame1) {
		t.Fatalf("frame1 length = %d, want %d", len(f1.Payload), len(frame1))
	}

	f2, err := r.Next()
	if err != nil {
		t.Fatalf("Next (frame2): %v", err)
	}
	if len(f2.Payload) != len(frame2) {
		t.Fatalf("frame2 length = %d, want %d", len(f2.Payload), len(frame2))
	}

	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("final Next err = %v, want io.EOF", err)
	}
}

func TestReader_ZeroByteFile(t *testing.T) {
	path := writeTempFile(t, nil)

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("Next err = %v, want io.EOF", err)
	}
}

func TestReader_Reset(t *testing.T) {
	frame := buildFrame(t, 9, 0, 0)
	path := writeTempFile(t, frame)

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if _, err := r.Next(); err != nil {
		t.Fatalf("first Next: %v", err)
	}
	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}

	if err := r.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if _, err := r.Next(); err != nil {
		t.Fatalf("Next after Reset: %v", err)
	}
}

func TestReader_RejectsReservedVersion(t *testing.T) {
	// version bits = 01 (reserved), should never parse as a frame; the bytes
	// degrade to garbage and resync skips them, leaving EOF.
	data := []byte{0xFF, 0xE8, 0x90, 0x00}
	path := writeTempFile(t, data)

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("Next err = %v, want io.EOF", err)
	}
}
