// Package track models a single audio file's identity and display metadata,
// and the checksum-keyed library that gives tracks a stable id across
// playlist rescans.
package track

import (
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
)

// Track is one audio file with its identity and display metadata. Display
// fields and identity are fixed once loaded; the one documented exception is
// Path, which Library.Resolve refreshes in place when a rescan finds the same
// checksum at a new location (a move or rename), so existing pointers into a
// Playlist keep working without a new lookup.
type Track struct {
	ID            int64  `json:"id"`
	Path          string `json:"path"`
	Title         string `json:"title"`
	Artist        string `json:"artist"`
	Album         string `json:"album,omitempty"`
	AlbumArtURL   string `json:"albumArtUrl,omitempty"`
	DurationMs    int64  `json:"durationMs,omitempty"`
	Genre         string `json:"genre,omitempty"`
	Year          int    `json:"year,omitempty"`
	TrackNum      int    `json:"trackNum,omitempty"`
	Checksum      string `json:"checksum"`
	hasEmbeddedArt bool
	embeddedArt    []byte
	artMIME        string
}

// EmbeddedArt returns the raw bytes and MIME type of the picture embedded in
// this track's tag, if any.
func (t *Track) EmbeddedArt() ([]byte, string, bool) {
	return t.embeddedArt, t.artMIME, t.hasEmbeddedArt
}

// FromFile builds a Track from an on-disk file: it computes the file's
// SHA-256 checksum, fills directory-scan defaults (title from filename,
// "Unknown Artist" / "Lofi Collection"), then opportunistically overlays any
// ID3 tag fields it can read. id is the provisional positional id assigned
// by the caller (the Playlist scanner); Library.Resolve replaces it with the
// existing entry's id when the checksum is already known, and with the
// library's next id otherwise.
func FromFile(id int64, path string) (*Track, error) {
	checksum, err := computeChecksum(path)
	if err != nil {
		return nil, fmt.Errorf("track: checksum %s: %w", path, err)
	}

	filename := filepath.Base(path)
	titleDefault := strings.TrimSuffix(filename, filepath.Ext(filename))

	t := &Track{
		ID:       id,
		Path:     path,
		Title:    titleDefault,
		Artist:   "Unknown Artist",
		Album:    "Lofi Collection",
		Checksum: checksum,
	}

	overlayTags(t, path)
	return t, nil
}

// computeChecksum returns the hex-encoded SHA-256 hash of the file at path.
func computeChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// overlayTags reads ID3 metadata from path and overlays any non-empty fields
// onto t, leaving the directory-scan defaults in place where tags are absent
// or unreadable.
func overlayTags(t *Track, path string) {
	f, err := os.Open(path)
	if err != nil {
		slog.Warn("track: could not reopen file for tag read", "path", path, "error", err)
		return
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		slog.Debug("track: no readable tags", "path", path, "error", err)
		return
	}

	if m.Title() != "" {
		t.Title = m.Title()
	}
	if m.Artist() != "" {
		t.Artist = m.Artist()
	}
	if m.Album() != "" {
		t.Album = m.Album()
	}
	if m.Genre() != "" {
		t.Genre = m.Genre()
	}
	if m.Year() != 0 {
		t.Year = m.Year()
	}
	if num, _ := m.Track(); num != 0 {
		t.TrackNum = num
	}
	if pic := m.Picture(); pic != nil && len(pic.Data) > 0 {
		t.hasEmbeddedArt = true
		t.embeddedArt = pic.Data
		t.artMIME = pic.MIMEType
		t.AlbumArtURL = "/art/" + t.Checksum
	}
}

// Exists reports whether the track's file still exists on disk.
func (t *Track) Exists() bool {
	info, err := os.Stat(t.Path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
