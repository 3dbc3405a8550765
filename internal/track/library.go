package track

import "sync"

// Library is the checksum-keyed catalog of every track ever scanned.
// Playlists hold pointers resolved through the Library so that a rescan
// recognizes an unmoved or renamed file by its content hash rather than
// minting a new identity for it.
type Library struct {
	mu     sync.RWMutex
	byHash map[string]*Track
	byID   map[int64]*Track
	nextID int64
}

// NewLibrary creates an empty Library.
func NewLibrary() *Library {
	return &Library{
		byHash: make(map[string]*Track),
		byID:   make(map[int64]*Track),
	}
}

// Resolve returns the canonical Track for checksum if the Library already
// holds one, preserving its existing id and learned metadata; otherwise it
// adopts candidate as a new entry, assigning it the next library id.
func (l *Library) Resolve(candidate *Track) *Track {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.byHash[candidate.Checksum]; ok {
		if candidate.Path != "" && candidate.Path != existing.Path {
			existing.Path = candidate.Path
		}
		return existing
	}

	l.nextID++
	candidate.ID = l.nextID
	l.byHash[candidate.Checksum] = candidate
	l.byID[candidate.ID] = candidate
	return candidate
}

// GetByID returns the track with the given id, or nil if not found.
func (l *Library) GetByID(id int64) *Track {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.byID[id]
}

// GetByChecksum returns the track with the given checksum, or nil if not found.
func (l *Library) GetByChecksum(checksum string) *Track {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.byHash[checksum]
}

// Count returns the number of tracks known to the Library.
func (l *Library) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byHash)
}
