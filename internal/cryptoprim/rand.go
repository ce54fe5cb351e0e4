package cryptoprim

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"sync"
)

// RandBytes draws n bytes of cryptographically strong randomness. Per spec
// §4.1 the contract is "always succeeds or aborts": crypto/rand.Reader on
// every supported platform only fails on catastrophic OS failure, at which
// point continuing to run a credential-issuing daemon would be unsafe, so
// the caller is expected to treat a non-nil error as fatal (mirrors
// entropy.c's handling of a short read from /dev/urandom).
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Pool is the process-wide entropy mix-in pool described in
// original_source/src/common/entropy.c and SPEC_FULL.md's "PRNG reseed
// mix-in from decrypted salt" supplement. crypto/rand.Reader remains the
// sole root of trust; Pool only stretches additional entropy (the salt of
// a successfully decoded encrypted credential, or seed-file bytes read at
// startup) into the bytes it hands out, via an HMAC-DRBG-style construction
// keyed by rand.Reader output.
type Pool struct {
	mu    sync.Mutex
	state []byte // current DRBG key, always sha256.Size bytes
}

// NewPool seeds a fresh pool from crypto/rand.Reader, optionally mixing in
// extra bytes persisted from a prior run's seed file.
func NewPool(seedFileBytes []byte) (*Pool, error) {
	seed, err := RandBytes(sha256.Size)
	if err != nil {
		return nil, err
	}
	p := &Pool{state: seed}
	if len(seedFileBytes) > 0 {
		p.Mix(seedFileBytes)
	}
	return p, nil
}

// Mix folds extra entropy (e.g. a decoded credential's salt) into the pool
// state. It never reduces the pool's effective strength below that of
// crypto/rand.Reader's own seeding.
func (p *Pool) Mix(extra []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	mac := hmac.New(sha256.New, p.state)
	mac.Write(extra)
	p.state = mac.Sum(nil)
}

// PseudoBytes draws n bytes suitable for salts and IVs: stretched from the
// pool state via HMAC-SHA256 in counter mode, with the pool re-keyed from
// crypto/rand.Reader on every call so a compromised pool snapshot never
// determines more than a single draw.
func (p *Pool) PseudoBytes(n int) ([]byte, error) {
	fresh, err := RandBytes(sha256.Size)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	mac := hmac.New(sha256.New, p.state)
	mac.Write(fresh)
	block := mac.Sum(nil)
	p.state = block

	out := make([]byte, 0, n)
	counter := byte(0)
	for len(out) < n {
		m := hmac.New(sha256.New, block)
		m.Write([]byte{counter})
		out = append(out, m.Sum(nil)...)
		counter++
	}
	return out[:n], nil
}

// Snapshot returns the current pool state for persisting to the daemon's
// seed_file on shutdown. The returned bytes are only ever used as
// additional entropy input on the next startup, never as key material
// directly.
func (p *Pool) Snapshot() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]byte, len(p.state))
	copy(out, p.state)
	return out
}

// ConstTimeEqual compares two equal-length byte slices in constant time.
// Slices of differing length are unequal (and that comparison itself is
// not required to be constant-time, matching spec §4.1: only the tag
// comparison itself needs to avoid a content-dependent early exit).
func ConstTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
