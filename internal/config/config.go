// Package config loads and validates munged's daemon configuration: the
// munge.conf file parsed via gcfg, the operational defaults a fresh
// install needs, and the lock/pid/seed file bookkeeping a daemon does at
// startup.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/dun/munge/internal/cryptoprim"
	"github.com/dun/munge/internal/munge"
	"github.com/gravwell/gcfg"
)

const (
	DefaultSocketPath  = "/var/run/munge/munge.socket.2"
	DefaultKeyFile     = "/etc/munge/munge.key"
	DefaultSeedFile    = "/var/lib/munge/munged.seed"
	DefaultPidFile     = "/var/run/munge/munged.pid"
	DefaultLogFile     = "/var/log/munge/munged.log"
	DefaultLockFile    = "/var/lock/munge/munged.lock"
	DefaultNumThreads  = 4
	DefaultMaxTTL      = 3600
	DefaultTTL         = 300
	DefaultGroupUpdate = 3600
)

// Config mirrors the [MUNGED] section of munge.conf. Every field names its
// munge.conf key explicitly through a gcfg struct tag, e.g.
// SocketPath <- "socket_path".
type Config struct {
	Munged struct {
		SocketPath          string `gcfg:"socket_path"`
		KeyFile             string `gcfg:"key_file"`
		SeedFile            string `gcfg:"seed_file"`
		PidFile             string `gcfg:"pid_file"`
		LogFile             string `gcfg:"log_file"`
		LockFile            string `gcfg:"lock_file"`
		NumThreads          int    `gcfg:"num_threads"`
		MaxTTL              uint32 `gcfg:"max_ttl"`
		DefaultTTL          uint32 `gcfg:"default_ttl"`
		DefaultCipher       string `gcfg:"default_cipher"`
		DefaultMac          string `gcfg:"default_mac"`
		DefaultZip          string `gcfg:"default_zip"`
		GroupUpdateInterval int    `gcfg:"group_update_interval"`
		GroupCheckMtime     bool   `gcfg:"group_check_mtime"`
		Origin              string `gcfg:"origin"`
		TrustedGroup        string `gcfg:"trusted_group"`
		AllowRootDecode     bool   `gcfg:"allow_root_decode"`
		AllowClockSkew      bool   `gcfg:"allow_clock_skew"`
		Force               bool   `gcfg:"force"`
		Foreground          bool   `gcfg:"foreground"`
		Verbose             bool   `gcfg:"verbose"`
		SyslogLevel         string `gcfg:"syslog_level"`
	}
}

var (
	ErrUnknownCipher   = errors.New("config: unknown default_cipher")
	ErrUnknownMac      = errors.New("config: unknown default_mac")
	ErrUnknownZip      = errors.New("config: unknown default_zip")
	ErrMacRequired     = errors.New("config: default_mac must not be none")
	ErrZipNotEncodable = errors.New("config: default_zip is not compiled in as an encode-capable compressor")
)

// Default returns a Config populated with munged's stock defaults, as if
// munge.conf did not exist.
func Default() *Config {
	c := &Config{}
	c.Munged.SocketPath = DefaultSocketPath
	c.Munged.KeyFile = DefaultKeyFile
	c.Munged.SeedFile = DefaultSeedFile
	c.Munged.PidFile = DefaultPidFile
	c.Munged.LogFile = DefaultLogFile
	c.Munged.LockFile = DefaultLockFile
	c.Munged.NumThreads = DefaultNumThreads
	c.Munged.MaxTTL = DefaultMaxTTL
	c.Munged.DefaultTTL = DefaultTTL
	c.Munged.DefaultCipher = "aes128"
	c.Munged.DefaultMac = "sha256"
	c.Munged.DefaultZip = "none"
	c.Munged.GroupUpdateInterval = DefaultGroupUpdate
	c.Munged.GroupCheckMtime = true
	return c
}

// Load reads and parses the munge.conf file at path on top of Default,
// then validates the result. A missing file is not an error: munged runs
// fine on defaults alone, matching the original daemon's behavior of
// treating an absent config as "use built-in settings".
func Load(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, c.Validate()
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return c, c.Validate()
	} else if err != nil {
		return nil, err
	}
	if err := gcfg.ReadStringInto(c, string(b)); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return c, c.Validate()
}

// Validate checks cross-field invariants process_conf enforces before the
// daemon starts listening: recognized algorithm names, that the default
// MAC (required on every credential) isn't NONE, and that default_zip
// names a compressor this build can actually encode with -- e.g. BZLIB is
// recognized on the wire for decode but rejected here rather than left to
// fail lazily on the first encode request that resolves to it.
func (c *Config) Validate() error {
	if _, ok := cipherByName(c.Munged.DefaultCipher); !ok {
		return ErrUnknownCipher
	}
	mac, ok := macByName(c.Munged.DefaultMac)
	if !ok {
		return ErrUnknownMac
	}
	if mac == munge.MacNone {
		return ErrMacRequired
	}
	zip, ok := zipByName(c.Munged.DefaultZip)
	if !ok {
		return ErrUnknownZip
	}
	if zip != munge.ZipNone && zip != munge.ZipDefault && !cryptoprim.ZipEncodeEnabled(zip) {
		return ErrZipNotEncodable
	}
	if c.Munged.NumThreads <= 0 {
		c.Munged.NumThreads = DefaultNumThreads
	}
	if c.Munged.MaxTTL == 0 {
		c.Munged.MaxTTL = DefaultMaxTTL
	}
	if c.Munged.DefaultTTL == 0 {
		c.Munged.DefaultTTL = DefaultTTL
	}
	return nil
}

// Cipher returns the configured default cipher as a munge.CipherType.
func (c *Config) Cipher() munge.CipherType {
	v, _ := cipherByName(c.Munged.DefaultCipher)
	return v
}

// Mac returns the configured default MAC as a munge.MacType.
func (c *Config) Mac() munge.MacType {
	v, _ := macByName(c.Munged.DefaultMac)
	return v
}

// Zip returns the configured default compression as a munge.ZipType.
func (c *Config) Zip() munge.ZipType {
	v, _ := zipByName(c.Munged.DefaultZip)
	return v
}

func cipherByName(s string) (munge.CipherType, bool) {
	switch s {
	case "", "none":
		return munge.CipherNone, true
	case "default":
		return munge.CipherDefault, true
	case "blowfish":
		return munge.CipherBlowfish, true
	case "cast5":
		return munge.CipherCAST5, true
	case "aes128":
		return munge.CipherAES128, true
	case "aes256":
		return munge.CipherAES256, true
	default:
		return 0, false
	}
}

func macByName(s string) (munge.MacType, bool) {
	switch s {
	case "none":
		return munge.MacNone, true
	case "", "default":
		return munge.MacDefault, true
	case "md5":
		return munge.MacMD5, true
	case "sha1":
		return munge.MacSHA1, true
	case "ripemd160":
		return munge.MacRIPEMD160, true
	case "sha256":
		return munge.MacSHA256, true
	case "sha512":
		return munge.MacSHA512, true
	default:
		return 0, false
	}
}

func zipByName(s string) (munge.ZipType, bool) {
	switch s {
	case "", "none":
		return munge.ZipNone, true
	case "default":
		return munge.ZipDefault, true
	case "bzlib":
		return munge.ZipBZLIB, true
	case "zlib":
		return munge.ZipZLIB, true
	default:
		return 0, false
	}
}
