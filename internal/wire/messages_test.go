package wire

import (
	"testing"

	"github.com/dun/munge/internal/munge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRequestRoundTrip(t *testing.T) {
	m := &EncodeRequest{
		Cipher:  munge.CipherAES256,
		Mac:     munge.MacSHA256,
		Zip:     munge.ZipZLIB,
		Realm:   []byte("cluster1"),
		TTL:     300,
		AuthUID: munge.UIDAny,
		AuthGID: munge.GIDAny,
		Data:    []byte("payload"),
	}
	got, err := UnmarshalEncodeRequest(m.Marshal())
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestEncodeRequestEmptyFieldsRoundTrip(t *testing.T) {
	m := &EncodeRequest{}
	got, err := UnmarshalEncodeRequest(m.Marshal())
	require.NoError(t, err)
	assert.Equal(t, munge.CipherType(0), got.Cipher)
	assert.Empty(t, got.Realm)
	assert.Empty(t, got.Data)
}

func TestUnmarshalEncodeRequestTruncatedFails(t *testing.T) {
	_, err := UnmarshalEncodeRequest([]byte{1, 2})
	assert.ErrorIs(t, err, ErrShortRead)
}

func TestEncodeResponseRoundTrip(t *testing.T) {
	m := &EncodeResponse{Kind: munge.Success, Credential: "MUNGE:abc123:"}
	got, err := UnmarshalEncodeResponse(m.Marshal())
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestEncodeResponseErrorCarriesDetail(t *testing.T) {
	m := &EncodeResponse{Kind: munge.BadCipher, Detail: "cipher not enabled"}
	got, err := UnmarshalEncodeResponse(m.Marshal())
	require.NoError(t, err)
	assert.Equal(t, munge.BadCipher, got.Kind)
	assert.Equal(t, "cipher not enabled", got.Detail)
}

func TestDecodeRequestRoundTrip(t *testing.T) {
	m := &DecodeRequest{Credential: "MUNGE:xyz:"}
	got, err := UnmarshalDecodeRequest(m.Marshal())
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestDecodeResponseRoundTrip(t *testing.T) {
	m := &DecodeResponse{
		Kind:       munge.CredExpired,
		Detail:     "expired",
		CredUID:    1000,
		CredGID:    1000,
		EncodeTime: 1000000,
		DecodeTime: 1000100,
		TTL:        60,
		Cipher:     munge.CipherAES128,
		Mac:        munge.MacSHA1,
		Zip:        munge.ZipNone,
		Realm:      []byte("r"),
		AuthUID:    munge.UIDAny,
		AuthGID:    munge.GIDAny,
		Addr:       []byte{127, 0, 0, 1},
		Data:       []byte("payload data"),
	}
	got, err := UnmarshalDecodeResponse(m.Marshal())
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestDecodeResponseSoftErrorStillCarriesMetadata(t *testing.T) {
	m := &DecodeResponse{Kind: munge.CredReplayed, CredUID: 42, Data: []byte("x")}
	got, err := UnmarshalDecodeResponse(m.Marshal())
	require.NoError(t, err)
	assert.True(t, got.Kind.Soft())
	assert.EqualValues(t, 42, got.CredUID)
	assert.Equal(t, []byte("x"), got.Data)
}

func TestUnmarshalDecodeResponseTruncatedFails(t *testing.T) {
	_, err := UnmarshalDecodeResponse([]byte{0, 0, 0})
	assert.ErrorIs(t, err, ErrShortRead)
}
