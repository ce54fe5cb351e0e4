package engine

import (
	"github.com/dun/munge/internal/cryptoprim"
	"github.com/dun/munge/internal/munge"
	"github.com/dun/munge/internal/replay"
)

// DecodeParams carries the armored credential plus the peer identity the
// worker pool resolved for the connection.
type DecodeParams struct {
	Credential string
	ClientUID  uint32
	ClientGID  uint32
	Retry      uint8
}

// DecodeResult is the full decoded metadata of spec §4.7 step 13. It is
// populated even when Decode returns a "soft" error (CRED_EXPIRED,
// CRED_REWOUND, CRED_REPLAYED) -- callers should inspect the returned
// error's Kind via munge.KindOf and use Soft() to decide whether the
// result is still meaningful.
type DecodeResult struct {
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

	// ReplayFingerprint is set whenever Decode reaches the replay check
	// (step 12), regardless of outcome. A caller that successfully decodes
	// a credential but then fails to deliver the response to its peer
	// should call Replay.Remove(ReplayFingerprint) so the peer's retry
	// isn't rejected as CRED_REPLAYED for a response it never received
	// (spec §4.3/§4.7 step 14).
	ReplayFingerprint replay.Fingerprint
}

// Decode runs the full pipeline of spec §4.7.
func (e *Engine) Decode(p DecodeParams) (DecodeResult, error) {
	var result DecodeResult

	// Step 2: retry log / bound check.
	if int(p.Retry) > munge.MaxRetries {
		return result, munge.NewError(munge.Socket, "retry counter exceeds maximum")
	}
	if p.Retry > 0 && e.log() != nil {
		e.log().Infof("decode request retried (retry=%d)", p.Retry)
	}

	// Step 3: timestamp.
	decodeTime := uint32(e.now().Unix())
	result.DecodeTime = decodeTime

	// Step 4: unarmor.
	raw, err := munge.Unarmor(p.Credential)
	if err != nil {
		return result, err
	}
	defer zeroSlice(raw)

	// Step 5: unpack outer with strict checks.
	version, cipher, mac, zip, realmLen, err := munge.UnpackOuterHeader(raw)
	if err != nil {
		return result, err
	}
	if version != munge.CurrentVersion {
		return result, munge.NewError(munge.BadVersion, "unsupported credential version")
	}
	if !cipher.Valid() || (cipher != munge.CipherNone && !cryptoprim.CipherEnabled(cipher)) {
		return result, munge.NewError(munge.BadCipher, "unknown or disabled cipher")
	}
	if !mac.Valid() || !cryptoprim.MacEnabled(mac) {
		return result, munge.NewError(munge.BadMac, "unknown, disabled, or missing mac")
	}
	if !zip.Valid() || !cryptoprim.ZipDecodeEnabled(zip) {
		return result, munge.NewError(munge.BadZip, "unknown or disabled zip")
	}
	if cryptoprim.MacSize(mac) < cryptoprim.CipherKeySize(cipher) {
		return result, munge.NewError(munge.BadMac, "mac digest too short for cipher key size")
	}

	outerFixedLen := 5 // version, cipher, mac, zip, realm_len
	if len(raw) < outerFixedLen+int(realmLen) {
		return result, munge.NewError(munge.BadCred, "outer header truncated reading realm")
	}
	realm := append([]byte(nil), raw[outerFixedLen:outerFixedLen+int(realmLen)]...)
	p2 := raw[outerFixedLen+int(realmLen):]

	ivSize := cryptoprim.CipherIVSize(cipher)
	if len(p2) < ivSize {
		return result, munge.NewError(munge.BadCred, "outer header truncated reading iv")
	}
	iv := p2[:ivSize]
	outerLen := outerFixedLen + int(realmLen) + ivSize
	outerBuf := raw[:outerLen]
	p2 = p2[ivSize:]

	macSize := cryptoprim.MacSize(mac)
	if len(p2) < macSize {
		return result, munge.NewError(munge.BadCred, "credential truncated reading mac tag")
	}
	tag := p2[:macSize]
	innerWire := p2[macSize:]

	result.Cipher, result.Mac, result.Zip, result.Realm = cipher, mac, zip, realm

	// Step 6: decrypt, deferring any padding error past the MAC check.
	var innerPlain []byte
	padInvalid := false
	if cipher != munge.CipherNone {
		dek, derr := deriveDEK(mac, e.Subkeys.DEK, tag, cryptoprim.CipherKeySize(cipher))
		if derr != nil {
			return result, derr
		}
		defer zeroSlice(dek)
		decRes, derr := cryptoprim.CBCDecrypt(cipher, dek, iv, innerWire)
		if derr != nil {
			return result, derr
		}
		innerPlain = decRes.Plaintext
		padInvalid = decRes.PadInvalid
	} else {
		innerPlain = innerWire
	}
	defer zeroSlice(innerPlain)

	// Step 7: MAC verify, constant-time, independent of the pad-error flag.
	macInput := append(append([]byte(nil), outerBuf...), innerPlain...)
	computed, err := cryptoprim.HMAC(mac, e.Subkeys.MAC, macInput)
	zeroSlice(macInput)
	if err != nil {
		return result, err
	}
	macOK := cryptoprim.ConstTimeEqual(computed, tag)
	if !macOK || padInvalid {
		return result, munge.NewError(munge.CredInvalid, "mac verification failed")
	}

	// Step 8: decompress.
	plain := innerPlain
	if zip != munge.ZipNone {
		plain, err = cryptoprim.Decompress(zip, innerPlain)
		if err != nil {
			return result, munge.WrapError(munge.CredInvalid, "decompress failed", err)
		}
		defer zeroSlice(plain)
	}

	// Step 9: unpack inner.
	inner, err := munge.UnpackInner(plain)
	if err != nil {
		return result, err
	}
	defer inner.Zero()
	if cipher != munge.CipherNone {
		e.Pool.Mix(inner.Salt[:])
	}

	result.CredUID = inner.CredUID
	result.CredGID = inner.CredGID
	result.EncodeTime = inner.EncodeTime
	result.AuthUID = inner.AuthUID
	result.AuthGID = inner.AuthGID
	result.Addr = append([]byte(nil), inner.Addr...)
	result.Data = append([]byte(nil), inner.Data...)

	// Step 10: authorize.
	if err := e.authorize(inner.AuthUID, inner.AuthGID, p.ClientUID, p.ClientGID); err != nil {
		return result, err
	}

	// Step 11: freshness.
	ttl := inner.TTL
	if ttl > e.Config.Munged.MaxTTL {
		ttl = e.Config.Munged.MaxTTL
	}
	result.TTL = ttl

	skew := int64(1)
	if e.Config.Munged.AllowClockSkew {
		skew = int64(ttl)
	}
	encodeTime := int64(inner.EncodeTime)
	dt := int64(decodeTime)
	if dt < encodeTime-skew {
		return result, munge.NewError(munge.CredRewound, "credential decode time precedes encode time")
	}
	if dt > encodeTime+int64(ttl) {
		return result, munge.NewError(munge.CredExpired, "credential has expired")
	}

	// Step 12: replay.
	fp := replay.NewFingerprint(tag, encodeTime+int64(ttl))
	result.ReplayFingerprint = fp
	if e.Replay.Insert(fp, int(p.Retry)) == replay.Duplicate {
		return result, munge.NewError(munge.CredReplayed, "credential already seen")
	}

	return result, nil
}

// authorize implements spec §4.7 step 10.
func (e *Engine) authorize(authUID, authGID, clientUID, clientGID uint32) error {
	if authUID != munge.UIDAny && authUID != clientUID {
		if !(e.Config.Munged.AllowRootDecode && clientUID == 0) {
			return munge.NewError(munge.CredUnauthorized, "auth_uid does not match client")
		}
	}
	if authGID != munge.GIDAny {
		if authGID == clientGID {
			return nil
		}
		if e.Groups != nil && e.Groups.IsMember(clientUID, authGID) {
			return nil
		}
		return munge.NewError(munge.CredUnauthorized, "auth_gid does not match client")
	}
	return nil
}
