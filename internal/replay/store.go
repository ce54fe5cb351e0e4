// Package replay implements the bounded, time-evicted replay-detection
// store of spec §4.3: a hash set of credential fingerprints keyed on the
// truncated MAC plus the credential's absolute expiry time.
package replay

import (
	"sync"

	"github.com/dun/munge/internal/munge"
)

// Fingerprint identifies a credential in the replay store: the first
// munge.MinMDLen bytes of its MAC tag, plus its absolute expiry (seconds
// since epoch). Including Expiry in the key means two credentials whose
// truncated MAC happens to collide stay distinct as long as they expire at
// different times, per spec §9's open question on fingerprint length.
type Fingerprint struct {
	Digest [munge.MinMDLen]byte
	Expiry int64
}

// NewFingerprint truncates tag to munge.MinMDLen bytes and pairs it with
// expiry. tag must be at least munge.MinMDLen bytes long.
func NewFingerprint(tag []byte, expiry int64) Fingerprint {
	var fp Fingerprint
	copy(fp.Digest[:], tag)
	fp.Expiry = expiry
	return fp
}

// InsertResult is the outcome of Store.Insert.
type InsertResult int

const (
	Fresh InsertResult = iota
	Duplicate
)

// Store is a mutex-protected hash set of fingerprints with expiry-based
// eviction. The zero value is not usable; construct with New.
type Store struct {
	mu      sync.Mutex
	entries map[Fingerprint]struct{}
}

func New() *Store {
	return &Store{entries: make(map[Fingerprint]struct{})}
}

// Insert records fp as seen. If fp is already present, the result is
// Duplicate unless retry is in [1, munge.MaxRetries], in which case the
// store treats the resubmission as Fresh without altering its bookkeeping
// -- this masks spurious duplicates from lost responses (spec §4.3)
// without weakening replay detection for a genuinely different retry
// value or no retry at all.
func (s *Store) Insert(fp Fingerprint, retry int) InsertResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.entries[fp]; dup {
		if retry >= 1 && retry <= munge.MaxRetries {
			return Fresh
		}
		return Duplicate
	}
	s.entries[fp] = struct{}{}
	return Fresh
}

// Remove deletes fp unconditionally. Used for the "unplay on send failure"
// rule of spec §4.3/§4.7 step 14: if a decode pipeline inserted a
// fingerprint but the response never reached the client, the entry must be
// removed so the client's retry is treated as fresh.
func (s *Store) Remove(fp Fingerprint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, fp)
}

// Purge evicts every entry whose expiry is strictly before now (spec §4.3).
// It returns the number of entries removed.
func (s *Store) Purge(now int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for fp := range s.entries {
		if fp.Expiry < now {
			delete(s.entries, fp)
			removed++
		}
	}
	return removed
}

// Len reports the current number of tracked fingerprints. Intended for
// tests and metrics, not for control flow.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
