// Package mpeg extracts playable MPEG-1 Layer III frames from an on-disk
// file, tolerating a leading ID3 header and garbage bytes between frames.
package mpeg

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrInvalidFrame names the failure to locate a well-formed frame header.
// Reader does not return it: Next resynchronises byte by byte and reports
// io.EOF once fewer than 4 bytes remain.
var ErrInvalidFrame = errors.New("mpeg: no valid frame header found")

// bitrateTable maps a 4-bit bitrate index (MPEG-1 Layer III) to kbps.
// Indices 0 and 15 are reserved/free and are rejected by callers.
var bitrateTable = [16]int{
	0, 32, 40, 48, 56, 64, 80, 96,
	112, 128, 160, 192, 224, 256, 320, 0,
}

// sampleRateTable maps a 2-bit sample-rate index (MPEG-1) to Hz. Index 3 is
// reserved and rejected by callers.
var sampleRateTable = [4]int{44100, 48000, 32000, 0}

// Frame is one decoded MPEG audio unit: its raw bytes (header included) and
// its intrinsic playback duration.
type Frame struct {
	Payload         []byte
	FrameDurationMs float64
}

// Header describes the fields decoded from a 4-byte MPEG-1 Layer III frame
// header. It is not persisted; it only exists to compute FrameSize and
// FrameDurationMs for the frame that follows it.
type Header struct {
	FrameSize       int
	BitrateKbps     int
	SampleRateHz    int
	FrameDurationMs float64
}

// parseHeader decodes a 4-byte MPEG-1 Layer III frame header starting at
// buf[0]. It returns false if the bytes do not describe a valid, supported
// frame (caller should advance one byte and retry).
func parseHeader(buf [4]byte) (Header, bool) {
	if buf[0] != 0xFF {
		return Header{}, false
	}
	if buf[1]&0xE0 != 0xE0 {
		return Header{}, false
	}

	version := (buf[1] >> 3) & 0x03
	if version == 0x01 {
		// Reserved version.
		return Header{}, false
	}
	layer := (buf[1] >> 1) & 0x03
	if layer == 0x00 {
		// Reserved layer.
		return Header{}, false
	}

	bitrateIdx := (buf[2] >> 4) & 0x0F
	if bitrateIdx == 0 || bitrateIdx == 15 {
		return Header{}, false
	}
	sampleIdx := (buf[2] >> 2) & 0x03
	if sampleIdx == 3 {
		return Header{}, false
	}
	padding := int((buf[2] >> 1) & 0x01)

	bitrate := bitrateTable[bitrateIdx]
	sampleRate := sampleRateTable[sampleIdx]

	frameSize := (144*bitrate*1000)/sampleRate + padding
	frameDurationMs := 1152 * 1000 / float64(sampleRate)

	return Header{
		FrameSize:       frameSize,
		BitrateKbps:     bitrate,
		SampleRateHz:    sampleRate,
		FrameDurationMs: frameDurationMs,
	}, true
}

// Reader yields a finite lazy sequence of Frames read from an underlying
// file. It is not safe for concurrent use; one Reader belongs to exactly one
// Scheduler iteration.
type Reader struct {
	f           *os.File
	resetOffset int64 // byte following the leading metadata block, if any
}

// Open opens path, skips a leading ID3 header if present, and returns a
// Reader positioned at the first frame candidate.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mpeg: open %s: %w", path, err)
	}

	r := &Reader{f: f}
	if err := r.skipMetadataHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

// skipMetadataHeader reads the first 10 bytes; if they spell the ID3 tag
// identifier, it decodes the synchsafe length and seeks past the tag.
// Otherwise it rewinds to offset 0.
func (r *Reader) skipMetadataHeader() error {
	var hdr [10]byte
	n, err := io.ReadFull(r.f, hdr[:])
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			// Short file: nothing to skip, nothing to frame either.
			if _, serr := r.f.Seek(0, io.SeekStart); serr != nil {
				return serr
			}
			r.resetOffset = 0
			return nil
		}
		return fmt.Errorf("mpeg: read header: %w", err)
	}
	_ = n

	if hdr[0] == 'I' && hdr[1] == 'D' && hdr[2] == '3' {
		length := synchsafeToInt(hdr[6], hdr[7], hdr[8], hdr[9])
		offset := int64(10 + length)
		if _, err := r.f.Seek(offset, io.SeekStart); err != nil {
			return fmt.Errorf("mpeg: seek past id3: %w", err)
		}
		r.resetOffset = offset
		return nil
	}

	if _, err := r.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	r.resetOffset = 0
	return nil
}

// synchsafeToInt decodes a 28-bit synchsafe integer: four bytes, high bit of
// each masked off, concatenated most-significant-byte first.
func synchsafeToInt(b0, b1, b2, b3 byte) int {
	return int(b0&0x7F)<<21 | int(b1&0x7F)<<14 | int(b2&0x7F)<<7 | int(b3&0x7F)
}

// Reset returns the reader to the byte following the metadata block (not
// necessarily offset 0), making it re-entrant within one file.
func (r *Reader) Reset() error {
	_, err := r.f.Seek(r.resetOffset, io.SeekStart)
	return err
}

// Close releases the underlying file descriptor.
func (r *Reader) Close() error {
	return r.f.Close()
}

// Next reads and returns the next frame, resynchronising past any
// inter-frame garbage one byte at a time. It returns io.EOF when fewer than
// 4 bytes remain to attempt a header parse.
func (r *Reader) Next() (Frame, error) {
	var buf [4]byte
	for {
		n, err := io.ReadFull(r.f, buf[:])
		if err != nil {
			if n == 0 || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				return Frame{}, io.EOF
			}
			return Frame{}, fmt.Errorf("mpeg: read frame header: %w", err)
		}

		hdr, ok := parseHeader(buf)
		if !ok {
			// Not a frame at this offset: back up 3 bytes and retry one byte
			// further along, tolerating garbage between frames.
			if _, err := r.f.Seek(-3, io.SeekCurrent); err != nil {
				return Frame{}, fmt.Errorf("mpeg: resync seek: %w", err)
			}
			continue
		}

		payload := make([]byte, hdr.FrameSize)
		copy(payload, buf[:])
		n, err = io.ReadFull(r.f, payload[4:])
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				return Frame{}, io.EOF
			}
			return Frame{}, fmt.Errorf("mpeg: read frame body: %w", err)
		}
		_ = n

		return Frame{Payload: payload, FrameDurationMs: hdr.FrameDurationMs}, nil
	}
}
