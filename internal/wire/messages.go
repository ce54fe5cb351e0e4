package wire

import (
	"encoding/binary"

	"github.com/dun/munge/internal/munge"
)

// EncodeRequest carries the fields of spec §4.6 step 0 (the fields the
// client supplies before defaulting/validation).
type EncodeRequest struct {
	Cipher  munge.CipherType
	Mac     munge.MacType
	Zip     munge.ZipType
	Realm   []byte
	TTL     uint32
	AuthUID uint32
	AuthGID uint32
	Data    []byte
}

func (m *EncodeRequest) Marshal() []byte {
	buf := make([]byte, 0, 3+1+len(m.Realm)+4+4+4+4+len(m.Data))
	buf = append(buf, byte(m.Cipher), byte(m.Mac), byte(m.Zip))
	buf = append(buf, byte(len(m.Realm)))
	buf = append(buf, m.Realm...)
	buf = appendU32(buf, m.TTL)
	buf = appendU32(buf, m.AuthUID)
	buf = appendU32(buf, m.AuthGID)
	buf = appendU32(buf, uint32(len(m.Data)))
	buf = append(buf, m.Data...)
	return buf
}

func UnmarshalEncodeRequest(buf []byte) (*EncodeRequest, error) {
	if len(buf) < 4 {
		return nil, ErrShortRead
	}
	m := &EncodeRequest{
		Cipher: munge.CipherType(buf[0]),
		Mac:    munge.MacType(buf[1]),
		Zip:    munge.ZipType(buf[2]),
	}
	realmLen := int(buf[3])
	p := buf[4:]
	if len(p) < realmLen {
		return nil, ErrShortRead
	}
	if realmLen > 0 {
		m.Realm = append([]byte(nil), p[:realmLen]...)
		p = p[realmLen:]
	}
	if len(p) < 16 {
		return nil, ErrShortRead
	}
	m.TTL = binary.BigEndian.Uint32(p[0:4])
	m.AuthUID = binary.BigEndian.Uint32(p[4:8])
	m.AuthGID = binary.BigEndian.Uint32(p[8:12])
	dataLen := binary.BigEndian.Uint32(p[12:16])
	p = p[16:]
	if uint32(len(p)) < dataLen {
		return nil, ErrShortRead
	}
	m.Data = append([]byte(nil), p[:dataLen]...)
	return m, nil
}

// EncodeResponse carries the armored credential on success, or an error
// kind/detail on failure. Credential is meaningful only when Kind is
// munge.Success; otherwise Kind and Detail describe the failure.
type EncodeResponse struct {
	Kind       munge.ErrorKind
	Detail     string
	Credential string
}

func (m *EncodeResponse) Marshal() []byte {
	buf := make([]byte, 0, 4+2+len(m.Detail)+4+len(m.Credential))
	buf = appendU32(buf, uint32(m.Kind))
	buf = appendString(buf, m.Detail)
	buf = appendString(buf, m.Credential)
	return buf
}

func UnmarshalEncodeResponse(buf []byte) (*EncodeResponse, error) {
	m := &EncodeResponse{}
	p := buf
	if len(p) < 4 {
		return nil, ErrShortRead
	}
	m.Kind = munge.ErrorKind(binary.BigEndian.Uint32(p[0:4]))
	p = p[4:]
	var err error
	m.Detail, p, err = readString(p)
	if err != nil {
		return nil, err
	}
	m.Credential, _, err = readString(p)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// DecodeRequest carries the armored string the client wants decoded.
type DecodeRequest struct {
	Credential string
}

func (m *DecodeRequest) Marshal() []byte {
	return appendString(nil, m.Credential)
}

func UnmarshalDecodeRequest(buf []byte) (*DecodeRequest, error) {
	s, _, err := readString(buf)
	if err != nil {
		return nil, err
	}
	return &DecodeRequest{Credential: s}, nil
}

// DecodeResponse carries the full decoded metadata of spec §4.7 step 13.
// Metadata fields are populated even for the three soft-cred error kinds
// (CRED_EXPIRED, CRED_REWOUND, CRED_REPLAYED).
type DecodeResponse struct {
	Kind       munge.ErrorKind
	Detail     string
	CredUID    uint32
	CredGID    uint32
	EncodeTime uint32
	DecodeTime uint32
	TTL        uint32
	Cipher     munge.CipherType
	Mac        munge.MacType
	Zip        munge.ZipType
	Realm      []byte
	AuthUID    uint32
	AuthGID    uint32
	Addr       []byte
	Data       []byte
}

func (m *DecodeResponse) Marshal() []byte {
	buf := make([]byte, 0, 128+len(m.Detail)+len(m.Realm)+len(m.Addr)+len(m.Data))
	buf = appendU32(buf, uint32(m.Kind))
	buf = appendString(buf, m.Detail)
	buf = appendU32(buf, m.CredUID)
	buf = appendU32(buf, m.CredGID)
	buf = appendU32(buf, m.EncodeTime)
	buf = appendU32(buf, m.DecodeTime)
	buf = appendU32(buf, m.TTL)
	buf = append(buf, byte(m.Cipher), byte(m.Mac), byte(m.Zip))
	buf = append(buf, byte(len(m.Realm)))
	buf = append(buf, m.Realm...)
	buf = appendU32(buf, m.AuthUID)
	buf = appendU32(buf, m.AuthGID)
	buf = append(buf, byte(len(m.Addr)))
	buf = append(buf, m.Addr...)
	buf = appendU32(buf, uint32(len(m.Data)))
	buf = append(buf, m.Data...)
	return buf
}

func UnmarshalDecodeResponse(buf []byte) (*DecodeResponse, error) {
	m := &DecodeResponse{}
	p := buf
	if len(p) < 4 {
		return nil, ErrShortRead
	}
	m.Kind = munge.ErrorKind(binary.BigEndian.Uint32(p[0:4]))
	p = p[4:]

	var err error
	m.Detail, p, err = readString(p)
	if err != nil {
		return nil, err
	}
	if len(p) < 20 {
		return nil, ErrShortRead
	}
	m.CredUID = binary.BigEndian.Uint32(p[0:4])
	m.CredGID = binary.BigEndian.Uint32(p[4:8])
	m.EncodeTime = binary.BigEndian.Uint32(p[8:12])
	m.DecodeTime = binary.BigEndian.Uint32(p[12:16])
	m.TTL = binary.BigEndian.Uint32(p[16:20])
	p = p[20:]

	if len(p) < 4 {
		return nil, ErrShortRead
	}
	m.Cipher = munge.CipherType(p[0])
	m.Mac = munge.MacType(p[1])
	m.Zip = munge.ZipType(p[2])
	realmLen := int(p[3])
	p = p[4:]
	if len(p) < realmLen {
		return nil, ErrShortRead
	}
	if realmLen > 0 {
		m.Realm = append([]byte(nil), p[:realmLen]...)
		p = p[realmLen:]
	}

	if len(p) < 8 {
		return nil, ErrShortRead
	}
	m.AuthUID = binary.BigEndian.Uint32(p[0:4])
	m.AuthGID = binary.BigEndian.Uint32(p[4:8])
	p = p[8:]

	if len(p) < 1 {
		return nil, ErrShortRead
	}
	addrLen := int(p[0])
	p = p[1:]
	if len(p) < addrLen {
		return nil, ErrShortRead
	}
	if addrLen > 0 {
		m.Addr = append([]byte(nil), p[:addrLen]...)
		p = p[addrLen:]
	}

	if len(p) < 4 {
		return nil, ErrShortRead
	}
	dataLen := binary.BigEndian.Uint32(p[0:4])
	p = p[4:]
	if uint32(len(p)) < dataLen {
		return nil, ErrShortRead
	}
	m.Data = append([]byte(nil), p[:dataLen]...)
	return m, nil
}

func appendU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendString(buf []byte, s string) []byte {
	buf = appendU32(buf, uint32(len(s)))
	return append(buf, s...)
}

func readString(buf []byte) (string, []byte, error) {
	if len(buf) < 4 {
		return "", nil, ErrShortRead
	}
	n := binary.BigEndian.Uint32(buf[0:4])
	p := buf[4:]
	if uint32(len(p)) < n {
		return "", nil, ErrShortRead
	}
	return string(p[:n]), p[n:], nil
}
