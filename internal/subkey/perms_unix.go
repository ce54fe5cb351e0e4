//go:build unix

package subkey

import (
	"fmt"
	"os"
	"syscall"

	"github.com/dun/munge/internal/munge"
)

// checkKeyFilePerms enforces: owned by the daemon's effective UID, not
// group- or world-readable/writable (spec §4.2).
func checkKeyFilePerms(path string, fi os.FileInfo, opts LoadOptions) error {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return nil
	}
	euid := os.Geteuid()
	if int(st.Uid) != euid {
		msg := fmt.Sprintf("key file %s is not owned by the daemon (uid %d, want %d)", path, st.Uid, euid)
		if !opts.Force {
			return munge.NewError(munge.Snafu, msg)
		}
		warn(opts, msg)
	}
	mode := fi.Mode().Perm()
	if mode&0o077 != 0 {
		msg := fmt.Sprintf("key file %s is group/world accessible (mode %04o)", path, mode)
		if !opts.Force {
			return munge.NewError(munge.Snafu, msg)
		}
		warn(opts, msg)
	}
	return nil
}

// checkDirPerms enforces: the directory holding the key file is neither
// world-writable nor group-writable unless the sticky bit is set (spec
// §4.2, original_source/src/munged/path.c).
func checkDirPerms(dir string, opts LoadOptions) error {
	fi, err := os.Stat(dir)
	if err != nil {
		return munge.WrapError(munge.Snafu, "cannot stat key file directory", err)
	}
	mode := fi.Mode()
	if mode&0o002 != 0 && mode&os.ModeSticky == 0 {
		msg := fmt.Sprintf("directory %s is world-writable without the sticky bit set", dir)
		if !opts.Force {
			return munge.NewError(munge.Snafu, msg)
		}
		warn(opts, msg)
	}
	if mode&0o020 != 0 && mode&os.ModeSticky == 0 {
		msg := fmt.Sprintf("directory %s is group-writable without the sticky bit set", dir)
		if !opts.Force {
			return munge.NewError(munge.Snafu, msg)
		}
		warn(opts, msg)
	}
	return nil
}
