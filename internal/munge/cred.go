package munge

import (
	"encoding/binary"
)

// SaltLen is the fixed size of the random salt at the head of the inner
// region (spec §3): defense against chosen-plaintext attacks on short
// payloads.
const SaltLen = 8

// Outer is the cleartext, MAC-covered header of a credential (spec §3).
// It never carries ciphertext or compressed bytes.
type Outer struct {
	Version Version
	Cipher  CipherType
	Mac     MacType
	Zip     ZipType
	Realm   []byte // 0..255 bytes, not NUL-terminated on the wire
	IV      []byte // present iff Cipher != CipherNone
}

// Pack serializes the outer header in the field order fixed by spec §3:
// version, cipher_type, mac_type, zip_type, realm_len, realm, iv.
func (o *Outer) Pack() ([]byte, error) {
	if len(o.Realm) > 255 {
		return nil, NewError(BadArg, "realm exceeds 255 bytes")
	}
	buf := make([]byte, 0, 5+len(o.Realm)+len(o.IV))
	buf = append(buf, byte(o.Version), byte(o.Cipher), byte(o.Mac), byte(o.Zip), byte(len(o.Realm)))
	buf = append(buf, o.Realm...)
	buf = append(buf, o.IV...)
	return buf, nil
}

// UnpackOuterHeader parses only the 5-byte fixed prefix of the outer
// header: version, cipher_type, mac_type, zip_type and realm_len. It does
// not validate the enum values and does not read the realm or IV; the
// caller resolves the IV length from the cipher byte and slices the rest
// itself -- see internal/engine/decode.go for the orchestration.
func UnpackOuterHeader(buf []byte) (version Version, cipher CipherType, mac MacType, zip ZipType, realmLen uint8, err error) {
	if len(buf) < 5 {
		return 0, 0, 0, 0, 0, NewError(BadCred, "outer header truncated")
	}
	version = Version(buf[0])
	cipher = CipherType(buf[1])
	mac = MacType(buf[2])
	zip = ZipType(buf[3])
	realmLen = buf[4]
	return
}

// Inner is the plaintext form of the credential's inner region (spec §3).
// It may have been compressed and/or encrypted on the wire; Inner always
// holds the plaintext, uncompressed form.
type Inner struct {
	Salt       [SaltLen]byte
	Addr       []byte // 0 or 4 bytes, IPv4 big-endian
	EncodeTime uint32
	TTL        uint32
	CredUID    uint32
	CredGID    uint32
	AuthUID    uint32
	AuthGID    uint32
	Data       []byte
}

// MaxMessageLen bounds data_len at framing time (spec §3 invariant).
// Matches the daemon-configurable default floor of 1 MiB.
const MaxMessageLen = 1024 * 1024

// Pack serializes the inner region in the field order fixed by spec §3.
func (in *Inner) Pack() ([]byte, error) {
	if len(in.Addr) != 0 && len(in.Addr) != 4 {
		return nil, NewError(BadArg, "addr must be 0 or 4 bytes")
	}
	if len(in.Data) > MaxMessageLen {
		return nil, NewError(BadLength, "payload exceeds maximum message length")
	}
	buf := make([]byte, 0, SaltLen+1+len(in.Addr)+4+4+4+4+4+4+4+len(in.Data))
	buf = append(buf, in.Salt[:]...)
	buf = append(buf, byte(len(in.Addr)))
	buf = append(buf, in.Addr...)
	buf = appendU32(buf, in.EncodeTime)
	buf = appendU32(buf, in.TTL)
	buf = appendU32(buf, in.CredUID)
	buf = appendU32(buf, in.CredGID)
	buf = appendU32(buf, in.AuthUID)
	buf = appendU32(buf, in.AuthGID)
	buf = appendU32(buf, uint32(len(in.Data)))
	buf = append(buf, in.Data...)
	return buf, nil
}

// UnpackInner parses the inner plaintext region, applying the structural
// checks of spec §3/§4.7 step 9: truncation or an oversized data_len is
// reported as BadCred.
func UnpackInner(buf []byte) (*Inner, error) {
	if len(buf) < SaltLen+1 {
		return nil, NewError(BadCred, "inner header truncated")
	}
	in := &Inner{}
	copy(in.Salt[:], buf[:SaltLen])
	p := buf[SaltLen:]
	addrLen := p[0]
	p = p[1:]
	if addrLen != 0 && addrLen != 4 {
		return nil, NewError(BadCred, "invalid address length")
	}
	if len(p) < int(addrLen) {
		return nil, NewError(BadCred, "inner truncated reading address")
	}
	if addrLen > 0 {
		in.Addr = append([]byte(nil), p[:addrLen]...)
		p = p[addrLen:]
	}
	need := 4 + 4 + 4 + 4 + 4 + 4 + 4
	if len(p) < need {
		return nil, NewError(BadCred, "inner truncated reading fixed fields")
	}
	in.EncodeTime = binary.BigEndian.Uint32(p[0:4])
	in.TTL = binary.BigEndian.Uint32(p[4:8])
	in.CredUID = binary.BigEndian.Uint32(p[8:12])
	in.CredGID = binary.BigEndian.Uint32(p[12:16])
	in.AuthUID = binary.BigEndian.Uint32(p[16:20])
	in.AuthGID = binary.BigEndian.Uint32(p[20:24])
	dataLen := binary.BigEndian.Uint32(p[24:28])
	p = p[28:]
	if dataLen > MaxMessageLen {
		return nil, NewError(BadCred, "data_len exceeds maximum message length")
	}
	if uint32(len(p)) < dataLen {
		return nil, NewError(BadCred, "inner truncated reading data")
	}
	in.Data = append([]byte(nil), p[:dataLen]...)
	return in, nil
}

// Zero overwrites every byte buffer owned by in. Callers must call this
// once the plaintext inner region is no longer needed (spec §5
// zeroization discipline).
func (in *Inner) Zero() {
	if in == nil {
		return
	}
	for i := range in.Salt {
		in.Salt[i] = 0
	}
	zeroBytes(in.Addr)
	zeroBytes(in.Data)
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func appendU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}
