package engine

import (
	"github.com/dun/munge/internal/cryptoprim"
	"github.com/dun/munge/internal/munge"
)

// EncodeParams carries the fields spec §4.6 lists as the encode request,
// plus the peer identity the worker pool resolved for the connection.
type EncodeParams struct {
	Cipher    munge.CipherType
	Mac       munge.MacType
	Zip       munge.ZipType
	Realm     []byte
	TTL       uint32
	AuthUID   uint32
	AuthGID   uint32
	Data      []byte
	ClientUID uint32
	ClientGID uint32
	Retry     uint8
}

// Encode runs the full pipeline of spec §4.6 and returns an armored
// credential string.
func (e *Engine) Encode(p EncodeParams) (string, error) {
	// Step 3: retry check happens before anything else is allocated.
	if int(p.Retry) > munge.MaxRetries {
		return "", munge.NewError(munge.Socket, "retry counter exceeds maximum")
	}

	// Step 1: validate & default.
	cipher, mac, zip, ttl, err := e.validateAndDefault(p.Cipher, p.Mac, p.Zip, p.TTL, len(p.Data))
	if err != nil {
		return "", err
	}

	// Step 2: peer identity becomes cred_uid/cred_gid.
	credUID, credGID := p.ClientUID, p.ClientGID

	// Step 4: timestamp.
	encodeTime := uint32(e.now().Unix())

	// Step 5: init -- salt and IV.
	salt, err := e.Pool.PseudoBytes(munge.SaltLen)
	if err != nil {
		return "", err
	}
	var iv []byte
	if cipher != munge.CipherNone {
		iv, err = e.Pool.PseudoBytes(cryptoprim.CipherIVSize(cipher))
		if err != nil {
			return "", err
		}
	}

	// Step 6: pack outer.
	outer := &munge.Outer{
		Version: munge.CurrentVersion,
		Cipher:  cipher,
		Mac:     mac,
		Zip:     zip,
		Realm:   p.Realm,
		IV:      iv,
	}
	outerBuf, err := outer.Pack()
	if err != nil {
		return "", err
	}

	// Step 7: pack inner.
	inner := &munge.Inner{
		Addr:       e.origin(),
		EncodeTime: encodeTime,
		TTL:        ttl,
		CredUID:    credUID,
		CredGID:    credGID,
		AuthUID:    p.AuthUID,
		AuthGID:    p.AuthGID,
		Data:       p.Data,
	}
	copy(inner.Salt[:], salt)
	defer inner.Zero()

	innerBuf, err := inner.Pack()
	if err != nil {
		return "", err
	}

	// Step 8: compress, falling back to NONE if it doesn't help. The zip
	// byte lives at a fixed offset in the already-packed outer buffer
	// (version, cipher, mac, zip, ...), so disabling compression after the
	// fact just means rewriting that one byte -- the MAC computed next
	// still covers the corrected header.
	const zipByteOffset = 3
	if zip != munge.ZipNone {
		compressed, cerr := cryptoprim.Compress(zip, innerBuf)
		if cerr == nil && len(compressed) < len(innerBuf) {
			innerBuf = compressed
		} else {
			zip = munge.ZipNone
			outerBuf[zipByteOffset] = byte(munge.ZipNone)
		}
	}

	// Step 9: MAC over outer || inner-plaintext(-or-compressed).
	tag, err := cryptoprim.HMAC(mac, e.Subkeys.MAC, append(append([]byte(nil), outerBuf...), innerBuf...))
	if err != nil {
		return "", err
	}

	// Step 10: encrypt.
	if cipher != munge.CipherNone {
		dek, derr := deriveDEK(mac, e.Subkeys.DEK, tag, cryptoprim.CipherKeySize(cipher))
		if derr != nil {
			return "", derr
		}
		defer zeroSlice(dek)
		innerBuf, err = cryptoprim.CBCEncrypt(cipher, dek, iv, innerBuf)
		if err != nil {
			return "", err
		}
	}

	// Step 11: armor.
	raw := make([]byte, 0, len(outerBuf)+len(tag)+len(innerBuf))
	raw = append(raw, outerBuf...)
	raw = append(raw, tag...)
	raw = append(raw, innerBuf...)
	armored := munge.Armor(raw)
	zeroSlice(raw)

	return armored, nil
}

// validateAndDefault implements spec §4.6 step 1.
func (e *Engine) validateAndDefault(cipher munge.CipherType, mac munge.MacType, zip munge.ZipType, ttl uint32, dataLen int) (munge.CipherType, munge.MacType, munge.ZipType, uint32, error) {
	if cipher == munge.CipherDefault {
		cipher = e.Config.Cipher()
	}
	if mac == munge.MacDefault {
		mac = e.Config.Mac()
	}
	if zip == munge.ZipDefault {
		zip = e.Config.Zip()
	}
	if !cipher.Valid() || !cryptoprim.CipherEnabled(cipher) {
		return 0, 0, 0, 0, munge.NewError(munge.BadCipher, "unknown or disabled cipher")
	}
	if !mac.Valid() || !cryptoprim.MacEnabled(mac) {
		// MacNone lands here too: it has no entry in cryptoprim's mac
		// table, which is how "mac is required" (spec §4.6 step 1) and
		// "unknown mac" both surface as BAD_MAC.
		return 0, 0, 0, 0, munge.NewError(munge.BadMac, "unknown, disabled, or missing mac")
	}
	if !zip.Valid() || !cryptoprim.ZipEncodeEnabled(zip) {
		return 0, 0, 0, 0, munge.NewError(munge.BadZip, "unknown or disabled zip")
	}
	if dataLen == 0 {
		zip = munge.ZipNone
	}
	if cryptoprim.MacSize(mac) < cryptoprim.CipherKeySize(cipher) {
		return 0, 0, 0, 0, munge.NewError(munge.BadMac, "mac digest too short for cipher key size")
	}
	if ttl > e.Config.Munged.MaxTTL {
		ttl = e.Config.Munged.MaxTTL
	}
	if ttl == 0 {
		ttl = e.Config.Munged.DefaultTTL
	}
	return cipher, mac, zip, ttl, nil
}

func zeroSlice(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
