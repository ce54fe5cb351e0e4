// Package subkey loads the daemon's shared key file and derives the two
// process-wide subkeys used by every credential pipeline (spec §3/§4.2).
package subkey

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dun/munge/internal/cryptoprim"
	"github.com/dun/munge/internal/munge"
)

// MinKeyFileLen is the minimum acceptable key-file size (spec §3).
const MinKeyFileLen = 1024

// Subkeys holds the two SHA1-extension-derived subkeys described in spec
// §3: dek_subkey (seeds each credential's data-encryption key) and
// mac_subkey (keys every HMAC computation). Both must be zeroed via Zero
// once the daemon shuts down.
type Subkeys struct {
	DEK []byte
	MAC []byte
}

// Zero overwrites both subkeys with zeros (spec §5 zeroization discipline).
func (s *Subkeys) Zero() {
	if s == nil {
		return
	}
	zero(s.DEK)
	zero(s.MAC)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// LoadOptions controls how strictly the key file's on-disk permissions are
// checked. Force downgrades a failed check from a fatal error to a
// caller-supplied warning callback, per spec §6's `force` config knob and
// original_source/src/munged/path.c and conf.c.
type LoadOptions struct {
	Force bool
	Warn  func(msg string)
}

// Load reads, validates, and derives subkeys from the key file at path.
// The file must be a regular file, not a symlink, at least MinKeyFileLen
// bytes, owned by the daemon's effective UID, and not group- or
// world-readable/writable (spec §4.2). Violations are fatal unless
// opts.Force is set, in which case they are reported via opts.Warn and
// loading proceeds.
func Load(path string, opts LoadOptions) (*Subkeys, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		return nil, munge.WrapError(munge.Snafu, "cannot stat key file", err)
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		return nil, munge.NewError(munge.Snafu, "key file must not be a symbolic link")
	}
	if !fi.Mode().IsRegular() {
		return nil, munge.NewError(munge.Snafu, "key file must be a regular file")
	}
	if err := checkKeyFilePerms(path, fi, opts); err != nil {
		return nil, err
	}
	if err := checkDirPerms(filepath.Dir(path), opts); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, munge.WrapError(munge.Snafu, "cannot read key file", err)
	}
	defer zero(data)

	if len(data) < MinKeyFileLen {
		msg := fmt.Sprintf("key file is only %d bytes, need at least %d", len(data), MinKeyFileLen)
		if !opts.Force {
			return nil, munge.NewError(munge.Snafu, msg)
		}
		warn(opts, msg)
	}

	return &Subkeys{
		DEK: cryptoprim.SHA1Sum(data, []byte("1")),
		MAC: cryptoprim.SHA1Sum(data, []byte("2")),
	}, nil
}

func warn(opts LoadOptions, msg string) {
	if opts.Warn != nil {
		opts.Warn(msg)
	}
}
