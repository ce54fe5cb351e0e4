// Package engine implements munged's credential pipelines: the encode
// pipeline (spec §4.6) that packs and signs a credential, and the decode
// pipeline (spec §4.7) that verifies and unpacks one. Everything else in
// the daemon -- the worker pool, the wire protocol, config -- exists to
// get requests into these two functions and responses back out.
package engine

import (
	"sync/atomic"
	"time"

	"github.com/dun/munge/internal/config"
	"github.com/dun/munge/internal/cryptoprim"
	"github.com/dun/munge/internal/groupcache"
	"github.com/dun/munge/internal/mlog"
	"github.com/dun/munge/internal/munge"
	"github.com/dun/munge/internal/replay"
	"github.com/dun/munge/internal/subkey"
)

// Engine bundles everything the encode/decode pipelines need: the
// process-wide subkeys, the configured defaults and bounds, the replay
// store, the group-membership cache, the origin address, and the entropy
// pool salts get mixed back into on decode.
type Engine struct {
	Config  *config.Config
	Subkeys *subkey.Subkeys
	Replay  *replay.Store
	Groups  *groupcache.Cache
	Pool    *cryptoprim.Pool
	Log     *mlog.Logger

	// OriginAddr is the 4-byte IPv4 address stamped into every credential
	// this engine encodes; see internal/originresolve.
	OriginAddr atomic.Pointer[[4]byte]

	// Now returns the current time; overridable by tests. The zero Engine
	// uses time.Now.
	Now func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// SetOrigin stores the 4-byte IPv4 origin address stamped into encoded
// credentials. The address is stored as given; a caller that could not
// resolve an origin passes the zero value (0.0.0.0) and logs the warning
// itself at startup.
func (e *Engine) SetOrigin(addr [4]byte) {
	e.OriginAddr.Store(&addr)
}

func (e *Engine) origin() []byte {
	p := e.OriginAddr.Load()
	if p == nil {
		return []byte{0, 0, 0, 0}
	}
	out := make([]byte, 4)
	copy(out, p[:])
	return out
}

func (e *Engine) log() *mlog.Logger {
	return e.Log
}

// deriveDEK computes DEK = HMAC(dek_subkey; tag) under the credential's
// own mac algorithm, truncated to the cipher's key size (spec §4.6 step
// 10 / §4.7 step 6). HMAC's output is always at least as long as the
// digest size the mac algorithm was chosen to provide; cipher_key_size is
// checked against mac_size at validation time so the truncation below
// never needs more bytes than HMAC produced.
func deriveDEK(macType munge.MacType, dekSubkey, tag []byte, keySize int) ([]byte, error) {
	full, err := cryptoprim.HMAC(macType, dekSubkey, tag)
	if err != nil {
		return nil, err
	}
	if keySize > len(full) {
		return nil, munge.NewError(munge.Snafu, "derived key shorter than cipher key size")
	}
	return full[:keySize], nil
}
