package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/dun/munge/internal/config"
	"github.com/dun/munge/internal/cryptoprim"
	"github.com/dun/munge/internal/groupcache"
	"github.com/dun/munge/internal/munge"
	"github.com/dun/munge/internal/replay"
	"github.com/dun/munge/internal/subkey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	pool, err := cryptoprim.NewPool(nil)
	require.NoError(t, err)
	return &Engine{
		Config:  config.Default(),
		Subkeys: &subkey.Subkeys{DEK: []byte("0123456789abcdef0123456789abcdef"), MAC: []byte("fedcba9876543210fedcba9876543210")},
		Replay:  replay.New(),
		Groups:  groupcache.New(groupcache.DefaultGroupFile, false, nil),
		Pool:    pool,
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestEncodeDecodeRoundTripBasic(t *testing.T) {
	e := newTestEngine(t)
	now := time.Unix(1_000_000, 0)
	e.Now = fixedClock(now)

	cred, err := e.Encode(EncodeParams{
		Cipher:    munge.CipherAES128,
		Mac:       munge.MacSHA256,
		Zip:       munge.ZipNone,
		TTL:       300,
		AuthUID:   munge.UIDAny,
		AuthGID:   munge.GIDAny,
		Data:      []byte("hello friend"),
		ClientUID: 1000,
		ClientGID: 1000,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(cred, munge.Prefix))

	res, err := e.Decode(DecodeParams{Credential: cred, ClientUID: 1000, ClientGID: 1000})
	require.NoError(t, err)
	assert.EqualValues(t, 1000, res.CredUID)
	assert.EqualValues(t, 1000, res.CredGID)
	assert.Equal(t, []byte("hello friend"), res.Data)
	assert.EqualValues(t, 300, res.TTL)
}

func TestEncodeDecodeRoundTripNoCipher(t *testing.T) {
	e := newTestEngine(t)
	e.Now = fixedClock(time.Unix(500, 0))

	cred, err := e.Encode(EncodeParams{
		Cipher:    munge.CipherNone,
		Mac:       munge.MacSHA1,
		TTL:       60,
		AuthUID:   munge.UIDAny,
		AuthGID:   munge.GIDAny,
		ClientUID: 42,
		ClientGID: 42,
	})
	require.NoError(t, err)

	res, err := e.Decode(DecodeParams{Credential: cred, ClientUID: 42, ClientGID: 42})
	require.NoError(t, err)
	assert.EqualValues(t, 42, res.CredUID)
	assert.Empty(t, res.Data)
}

func TestEncodeDecodeRoundTripWithCompression(t *testing.T) {
	e := newTestEngine(t)
	e.Now = fixedClock(time.Unix(10_000, 0))

	payload := strings.Repeat("a", 4096)
	cred, err := e.Encode(EncodeParams{
		Cipher:    munge.CipherAES256,
		Mac:       munge.MacSHA512,
		Zip:       munge.ZipZLIB,
		TTL:       60,
		AuthUID:   munge.UIDAny,
		AuthGID:   munge.GIDAny,
		Data:      []byte(payload),
		ClientUID: 7,
		ClientGID: 7,
	})
	require.NoError(t, err)

	res, err := e.Decode(DecodeParams{Credential: cred, ClientUID: 7, ClientGID: 7})
	require.NoError(t, err)
	assert.Equal(t, payload, string(res.Data))
}

func TestEncodeRejectsMacNone(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Encode(EncodeParams{Mac: munge.MacNone, ClientUID: 1, ClientGID: 1})
	assert.Equal(t, munge.BadMac, munge.KindOf(err))
}

func TestEncodeRejectsUnknownCipher(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Encode(EncodeParams{Cipher: munge.CipherType(200), Mac: munge.MacSHA256, ClientUID: 1, ClientGID: 1})
	assert.Equal(t, munge.BadCipher, munge.KindOf(err))
}

func TestEncodeTTLCappedAtMaxTTL(t *testing.T) {
	e := newTestEngine(t)
	e.Config.Munged.MaxTTL = 100
	e.Now = fixedClock(time.Unix(0, 0))

	cred, err := e.Encode(EncodeParams{Mac: munge.MacSHA256, Cipher: munge.CipherNone, TTL: 99999, ClientUID: 1, ClientGID: 1, AuthUID: munge.UIDAny, AuthGID: munge.GIDAny})
	require.NoError(t, err)

	res, err := e.Decode(DecodeParams{Credential: cred, ClientUID: 1, ClientGID: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 100, res.TTL)
}

func TestEncodeZeroTTLUsesDefault(t *testing.T) {
	e := newTestEngine(t)
	e.Config.Munged.DefaultTTL = 77
	e.Now = fixedClock(time.Unix(0, 0))

	cred, err := e.Encode(EncodeParams{Mac: munge.MacSHA256, Cipher: munge.CipherNone, TTL: 0, ClientUID: 1, ClientGID: 1, AuthUID: munge.UIDAny, AuthGID: munge.GIDAny})
	require.NoError(t, err)

	res, err := e.Decode(DecodeParams{Credential: cred, ClientUID: 1, ClientGID: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 77, res.TTL)
}

func TestDecodeDetectsBitFlipAsCredInvalid(t *testing.T) {
	e := newTestEngine(t)
	e.Now = fixedClock(time.Unix(1000, 0))

	cred, err := e.Encode(EncodeParams{Mac: munge.MacSHA256, Cipher: munge.CipherAES128, TTL: 60, ClientUID: 1, ClientGID: 1, AuthUID: munge.UIDAny, AuthGID: munge.GIDAny, Data: []byte("x")})
	require.NoError(t, err)

	raw, err := munge.Unarmor(cred)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xFF
	tampered := munge.Armor(raw)

	_, err = e.Decode(DecodeParams{Credential: tampered, ClientUID: 1, ClientGID: 1})
	assert.Equal(t, munge.CredInvalid, munge.KindOf(err))
}

func TestDecodeExpired(t *testing.T) {
	e := newTestEngine(t)
	e.Now = fixedClock(time.Unix(1_000_000, 0))
	cred, err := e.Encode(EncodeParams{Mac: munge.MacSHA256, Cipher: munge.CipherNone, TTL: 100, ClientUID: 1, ClientGID: 1, AuthUID: munge.UIDAny, AuthGID: munge.GIDAny})
	require.NoError(t, err)

	e.Now = fixedClock(time.Unix(1_000_101, 0))
	res, err := e.Decode(DecodeParams{Credential: cred, ClientUID: 1, ClientGID: 1})
	assert.Equal(t, munge.CredExpired, munge.KindOf(err))
	assert.True(t, munge.KindOf(err).Soft())
	assert.EqualValues(t, 1, res.CredUID) // metadata still populated on soft error
}

func TestDecodeRewound(t *testing.T) {
	e := newTestEngine(t)
	e.Now = fixedClock(time.Unix(1_000_000, 0))
	cred, err := e.Encode(EncodeParams{Mac: munge.MacSHA256, Cipher: munge.CipherNone, TTL: 100, ClientUID: 1, ClientGID: 1, AuthUID: munge.UIDAny, AuthGID: munge.GIDAny})
	require.NoError(t, err)

	e.Now = fixedClock(time.Unix(999_998, 0)) // 2s in the past, skew=1 since allow_clock_skew=false
	_, err = e.Decode(DecodeParams{Credential: cred, ClientUID: 1, ClientGID: 1})
	assert.Equal(t, munge.CredRewound, munge.KindOf(err))
}

func TestDecodeAllowsClockSkewWithinTTL(t *testing.T) {
	e := newTestEngine(t)
	e.Config.Munged.AllowClockSkew = true
	e.Now = fixedClock(time.Unix(1_000_000, 0))
	cred, err := e.Encode(EncodeParams{Mac: munge.MacSHA256, Cipher: munge.CipherNone, TTL: 100, ClientUID: 1, ClientGID: 1, AuthUID: munge.UIDAny, AuthGID: munge.GIDAny})
	require.NoError(t, err)

	e.Now = fixedClock(time.Unix(999_950, 0)) // 50s back, within ttl-based skew
	_, err = e.Decode(DecodeParams{Credential: cred, ClientUID: 1, ClientGID: 1})
	assert.NoError(t, err)
}

func TestDecodeReplayRejectsDuplicate(t *testing.T) {
	e := newTestEngine(t)
	e.Now = fixedClock(time.Unix(1000, 0))
	cred, err := e.Encode(EncodeParams{Mac: munge.MacSHA256, Cipher: munge.CipherNone, TTL: 60, ClientUID: 1, ClientGID: 1, AuthUID: munge.UIDAny, AuthGID: munge.GIDAny})
	require.NoError(t, err)

	_, err = e.Decode(DecodeParams{Credential: cred, ClientUID: 1, ClientGID: 1})
	require.NoError(t, err)

	_, err = e.Decode(DecodeParams{Credential: cred, ClientUID: 1, ClientGID: 1})
	assert.Equal(t, munge.CredReplayed, munge.KindOf(err))
}

func TestDecodeRetryMasksDuplicateAsFresh(t *testing.T) {
	e := newTestEngine(t)
	e.Now = fixedClock(time.Unix(1000, 0))
	cred, err := e.Encode(EncodeParams{Mac: munge.MacSHA256, Cipher: munge.CipherNone, TTL: 60, ClientUID: 1, ClientGID: 1, AuthUID: munge.UIDAny, AuthGID: munge.GIDAny})
	require.NoError(t, err)

	_, err = e.Decode(DecodeParams{Credential: cred, ClientUID: 1, ClientGID: 1})
	require.NoError(t, err)

	_, err = e.Decode(DecodeParams{Credential: cred, ClientUID: 1, ClientGID: 1, Retry: 1})
	assert.NoError(t, err)
}

func TestDecodeUnauthorizedWrongUID(t *testing.T) {
	e := newTestEngine(t)
	e.Now = fixedClock(time.Unix(1000, 0))
	cred, err := e.Encode(EncodeParams{Mac: munge.MacSHA256, Cipher: munge.CipherNone, TTL: 60, AuthUID: 55, AuthGID: munge.GIDAny, ClientUID: 1, ClientGID: 1})
	require.NoError(t, err)

	_, err = e.Decode(DecodeParams{Credential: cred, ClientUID: 2, ClientGID: 1})
	assert.Equal(t, munge.CredUnauthorized, munge.KindOf(err))
}

func TestDecodeAuthorizedMatchingUID(t *testing.T) {
	e := newTestEngine(t)
	e.Now = fixedClock(time.Unix(1000, 0))
	cred, err := e.Encode(EncodeParams{Mac: munge.MacSHA256, Cipher: munge.CipherNone, TTL: 60, AuthUID: 55, AuthGID: munge.GIDAny, ClientUID: 1, ClientGID: 1})
	require.NoError(t, err)

	_, err = e.Decode(DecodeParams{Credential: cred, ClientUID: 55, ClientGID: 1})
	assert.NoError(t, err)
}

func TestDecodeRootBypassesAuthUID(t *testing.T) {
	e := newTestEngine(t)
	e.Config.Munged.AllowRootDecode = true
	e.Now = fixedClock(time.Unix(1000, 0))
	cred, err := e.Encode(EncodeParams{Mac: munge.MacSHA256, Cipher: munge.CipherNone, TTL: 60, AuthUID: 55, AuthGID: munge.GIDAny, ClientUID: 1, ClientGID: 1})
	require.NoError(t, err)

	_, err = e.Decode(DecodeParams{Credential: cred, ClientUID: 0, ClientGID: 0})
	assert.NoError(t, err)
}

func TestDecodeUnauthorizedWrongGIDWithoutMembership(t *testing.T) {
	e := newTestEngine(t)
	e.Now = fixedClock(time.Unix(1000, 0))
	cred, err := e.Encode(EncodeParams{Mac: munge.MacSHA256, Cipher: munge.CipherNone, TTL: 60, AuthUID: munge.UIDAny, AuthGID: 900, ClientUID: 1, ClientGID: 1})
	require.NoError(t, err)

	_, err = e.Decode(DecodeParams{Credential: cred, ClientUID: 1, ClientGID: 2})
	assert.Equal(t, munge.CredUnauthorized, munge.KindOf(err))
}

func TestEncodeRejectsRetryAboveMax(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Encode(EncodeParams{Mac: munge.MacSHA256, Retry: munge.MaxRetries + 1, ClientUID: 1, ClientGID: 1})
	assert.Equal(t, munge.Socket, munge.KindOf(err))
}

func TestDecodeRejectsRetryAboveMax(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Decode(DecodeParams{Credential: "MUNGE:bogus:", Retry: munge.MaxRetries + 1})
	assert.Equal(t, munge.Socket, munge.KindOf(err))
}

func TestDecodeRejectsGarbage(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Decode(DecodeParams{Credential: "not a credential at all"})
	assert.Error(t, err)
}
