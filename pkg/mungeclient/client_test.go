package mungeclient

import (
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/dun/munge/internal/munge"
	"github.com/dun/munge/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDaemon answers exactly one request with a canned response, matching
// munged's one-shot connection contract.
func fakeDaemon(t *testing.T, respond func(hdr wire.Header, body []byte) (wire.FrameType, []byte)) string {
	t.Helper()
	sock := filepath.Join(t.TempDir(), "munge.sock")
	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: sock, Net: "unix"})
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		hdr, body, err := wire.ReadFrame(conn)
		if err != nil {
			return
		}
		typ, payload := respond(hdr, body)
		wire.WriteFrame(conn, typ, hdr.Retry, payload)
	}()
	return sock
}

func TestClientEncodeSuccess(t *testing.T) {
	sock := fakeDaemon(t, func(hdr wire.Header, body []byte) (wire.FrameType, []byte) {
		assert.Equal(t, wire.EncReq, hdr.Type)
		resp := &wire.EncodeResponse{Kind: munge.Success, Credential: "MUNGE:abc:"}
		return wire.EncRsp, resp.Marshal()
	})

	c := New(sock, time.Second)
	cred, err := c.Encode([]byte("hi"), EncodeOptions{})
	require.NoError(t, err)
	assert.Equal(t, "MUNGE:abc:", cred)
}

func TestClientEncodeDaemonError(t *testing.T) {
	sock := fakeDaemon(t, func(hdr wire.Header, body []byte) (wire.FrameType, []byte) {
		resp := &wire.EncodeResponse{Kind: munge.BadCipher, Detail: "disabled"}
		return wire.EncRsp, resp.Marshal()
	})

	c := New(sock, time.Second)
	_, err := c.Encode([]byte("hi"), EncodeOptions{})
	require.Error(t, err)
	var merr *Error
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, munge.BadCipher, merr.Kind)
}

func TestClientDecodeSuccess(t *testing.T) {
	sock := fakeDaemon(t, func(hdr wire.Header, body []byte) (wire.FrameType, []byte) {
		assert.Equal(t, wire.DecReq, hdr.Type)
		resp := &wire.DecodeResponse{Kind: munge.Success, CredUID: 1000, Data: []byte("payload")}
		return wire.DecRsp, resp.Marshal()
	})

	c := New(sock, time.Second)
	res, err := c.Decode("MUNGE:xyz:")
	require.NoError(t, err)
	assert.EqualValues(t, 1000, res.CredUID)
	assert.Equal(t, []byte("payload"), res.Data)
}

func TestClientDecodeSoftErrorStillReturnsMetadata(t *testing.T) {
	sock := fakeDaemon(t, func(hdr wire.Header, body []byte) (wire.FrameType, []byte) {
		resp := &wire.DecodeResponse{Kind: munge.CredExpired, CredUID: 42, Data: []byte("x")}
		return wire.DecRsp, resp.Marshal()
	})

	c := New(sock, time.Second)
	res, err := c.Decode("MUNGE:old:")
	require.Error(t, err)
	var merr *Error
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, munge.CredExpired, merr.Kind)
	assert.True(t, merr.Kind.Soft())
	assert.EqualValues(t, 42, res.CredUID)
}

func TestClientDialFailureOnMissingSocket(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "nonexistent.sock"), 100*time.Millisecond)
	_, err := c.Encode([]byte("x"), EncodeOptions{})
	assert.Error(t, err)
}

func TestNewDefaultsSocketPathAndTimeout(t *testing.T) {
	c := New("", 0)
	assert.Equal(t, DefaultSocketPath, c.SocketPath)
	assert.Equal(t, DefaultTimeout, c.Timeout)
}

func TestClientEncodeZeroOptionsSendsLiteralZeroAuth(t *testing.T) {
	var gotReq *wire.EncodeRequest
	sock := fakeDaemon(t, func(hdr wire.Header, body []byte) (wire.FrameType, []byte) {
		req, err := wire.UnmarshalEncodeRequest(body)
		require.NoError(t, err)
		gotReq = req
		resp := &wire.EncodeResponse{Kind: munge.Success, Credential: "MUNGE::"}
		return wire.EncRsp, resp.Marshal()
	})
	c := New(sock, time.Second)
	_, err := c.Encode([]byte("hi"), EncodeOptions{})
	require.NoError(t, err)
	require.NotNil(t, gotReq)
	assert.EqualValues(t, 0, gotReq.AuthUID)
	assert.EqualValues(t, 0, gotReq.AuthGID)
}

func TestDefaultEncodeOptionsMeansUnrestricted(t *testing.T) {
	var gotReq *wire.EncodeRequest
	sock := fakeDaemon(t, func(hdr wire.Header, body []byte) (wire.FrameType, []byte) {
		req, err := wire.UnmarshalEncodeRequest(body)
		require.NoError(t, err)
		gotReq = req
		resp := &wire.EncodeResponse{Kind: munge.Success, Credential: "MUNGE::"}
		return wire.EncRsp, resp.Marshal()
	})
	c := New(sock, time.Second)
	_, err := c.Encode([]byte("hi"), DefaultEncodeOptions())
	require.NoError(t, err)
	require.NotNil(t, gotReq)
	assert.EqualValues(t, munge.UIDAny, gotReq.AuthUID)
	assert.EqualValues(t, munge.GIDAny, gotReq.AuthGID)
}
