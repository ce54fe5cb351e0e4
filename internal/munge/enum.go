// Package munge defines the wire-level data model shared by the encode and
// decode pipelines: the dense algorithm enums, the on-the-wire credential
// layout, and the stable error taxonomy.
package munge

import "fmt"

// CipherType names a symmetric cipher used to encrypt the inner region of a
// credential. The zero value, CipherNone, disables encryption.
type CipherType uint8

const (
	CipherNone     CipherType = 0
	CipherDefault  CipherType = 1 // substituted with the daemon's configured default
	CipherBlowfish CipherType = 2
	CipherCAST5    CipherType = 3
	CipherAES128   CipherType = 4
	CipherAES256   CipherType = 5
	cipherLastItem CipherType = 6
)

func (c CipherType) String() string {
	switch c {
	case CipherNone:
		return "none"
	case CipherDefault:
		return "default"
	case CipherBlowfish:
		return "blowfish"
	case CipherCAST5:
		return "cast5"
	case CipherAES128:
		return "aes128"
	case CipherAES256:
		return "aes256"
	default:
		return fmt.Sprintf("cipher(%d)", uint8(c))
	}
}

// Valid reports whether c is a dense, in-range cipher enum value. It does
// not imply the cipher is enabled in this build; see cryptoprim.CipherEnabled.
func (c CipherType) Valid() bool {
	return c < cipherLastItem
}

// MacType names the HMAC algorithm covering a credential's OUTER and
// INNER-plaintext regions. MacNone is rejected by the encode pipeline: a
// MAC is always required.
type MacType uint8

const (
	MacNone      MacType = 0
	MacDefault   MacType = 1
	MacMD5       MacType = 2
	MacSHA1      MacType = 3
	MacRIPEMD160 MacType = 4
	MacSHA256    MacType = 5
	MacSHA512    MacType = 6
	macLastItem  MacType = 7
)

func (m MacType) String() string {
	switch m {
	case MacNone:
		return "none"
	case MacDefault:
		return "default"
	case MacMD5:
		return "md5"
	case MacSHA1:
		return "sha1"
	case MacRIPEMD160:
		return "ripemd160"
	case MacSHA256:
		return "sha256"
	case MacSHA512:
		return "sha512"
	default:
		return fmt.Sprintf("mac(%d)", uint8(m))
	}
}

func (m MacType) Valid() bool {
	return m < macLastItem
}

// ZipType names the compression algorithm applied to the inner region
// before encryption, when the result would be strictly shorter than the
// uncompressed form.
type ZipType uint8

const (
	ZipNone     ZipType = 0
	ZipDefault  ZipType = 1
	ZipBZLIB    ZipType = 2
	ZipZLIB     ZipType = 3
	zipLastItem ZipType = 4
)

func (z ZipType) String() string {
	switch z {
	case ZipNone:
		return "none"
	case ZipDefault:
		return "default"
	case ZipBZLIB:
		return "bzlib"
	case ZipZLIB:
		return "zlib"
	default:
		return fmt.Sprintf("zip(%d)", uint8(z))
	}
}

func (z ZipType) Valid() bool {
	return z < zipLastItem
}

// Version is the credential wire-format version. CurrentVersion is the only
// version this implementation produces; decode accepts only CurrentVersion.
type Version uint8

const CurrentVersion Version = 3

// Sentinel identity values meaning "do not restrict".
const (
	UIDAny uint32 = 0xFFFFFFFF
	GIDAny uint32 = 0xFFFFFFFF
)

// MaxRetries bounds the client-side retransmit counter carried in the
// daemon wire frame header (see internal/wire). A retry counter above this
// value is rejected with the Socket error kind, and a retry counter in [1, MaxRetries]
// lets the replay store treat a duplicate fingerprint as fresh.
const MaxRetries = 2

// MinMDLen is the number of leading MAC bytes used as a replay fingerprint.
const MinMDLen = 16
