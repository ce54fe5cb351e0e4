// Package mungeclient is the thin client library that speaks munged's
// framed request/response protocol (internal/wire) over its Unix domain
// socket. Grounded on gravwell/v3/ingest/ingestConnection.go's shape: a
// small connection wrapper exposing one public method per request kind,
// dialing once per call and leaving retry/backoff policy to the caller.
package mungeclient

import (
	"fmt"
	"net"
	"time"

	"github.com/dun/munge/internal/munge"
	"github.com/dun/munge/internal/wire"
)

// DefaultSocketPath matches munged's own default (see internal/config).
const DefaultSocketPath = "/var/run/munge/munge.socket.2"

// DefaultTimeout bounds how long a single request/response round trip may
// take before the client gives up on the daemon.
const DefaultTimeout = 5 * time.Second

// Error wraps a non-SUCCESS response from the daemon so callers can
// inspect the stable munge.ErrorKind without string-matching Detail.
type Error struct {
	Kind   munge.ErrorKind
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Client is a one-shot-per-call connection to a munged socket. Every
// exported method dials, sends exactly one request, reads exactly one
// response, and closes the connection -- mirroring the daemon's one
// request/one response/close contract (spec §4.8).
type Client struct {
	SocketPath string
	Timeout    time.Duration
}

// New constructs a Client. An empty socketPath uses DefaultSocketPath; a
// zero timeout uses DefaultTimeout.
func New(socketPath string, timeout time.Duration) *Client {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{SocketPath: socketPath, Timeout: timeout}
}

func (c *Client) dial() (net.Conn, error) {
	conn, err := net.DialTimeout("unix", c.SocketPath, c.Timeout)
	if err != nil {
		return nil, fmt.Errorf("mungeclient: dial %s: %w", c.SocketPath, err)
	}
	if err := conn.SetDeadline(time.Now().Add(c.Timeout)); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// EncodeOptions carries the optional fields of an encode request. A zero
// TTL lets the daemon apply its configured default TTL. Cipher/Mac/Zip are
// sent as given: their zero values are munge.CipherNone, munge.MacNone and
// munge.ZipNone, and the daemon rejects MacNone with BAD_MAC; the daemon's
// configured defaults are selected with munge.CipherDefault,
// munge.MacDefault and munge.ZipDefault. DefaultEncodeOptions sets only
// AuthUID/AuthGID. AuthUID/AuthGID do NOT default to "unrestricted" on the zero
// value -- 0 is a valid UID/GID to restrict decoding to (root) -- so
// callers that want no restriction must set them to munge.UIDAny /
// munge.GIDAny explicitly, e.g. starting from DefaultEncodeOptions().
type EncodeOptions struct {
	Cipher  munge.CipherType
	Mac     munge.MacType
	Zip     munge.ZipType
	Realm   []byte
	TTL     uint32
	AuthUID uint32
	AuthGID uint32
}

// DefaultEncodeOptions returns an EncodeOptions with no decode
// restriction, matching libmunge's own MUNGE_UID_ANY/MUNGE_GID_ANY
// context defaults.
func DefaultEncodeOptions() EncodeOptions {
	return EncodeOptions{AuthUID: munge.UIDAny, AuthGID: munge.GIDAny}
}

// Encode asks the daemon to mint a credential wrapping payload.
func (c *Client) Encode(payload []byte, opts EncodeOptions) (string, error) {
	conn, err := c.dial()
	if err != nil {
		return "", err
	}
	defer conn.Close()

	req := &wire.EncodeRequest{
		Cipher:  opts.Cipher,
		Mac:     opts.Mac,
		Zip:     opts.Zip,
		Realm:   opts.Realm,
		TTL:     opts.TTL,
		AuthUID: opts.AuthUID,
		AuthGID: opts.AuthGID,
		Data:    payload,
	}
	if err := wire.WriteFrame(conn, wire.EncReq, 0, req.Marshal()); err != nil {
		return "", fmt.Errorf("mungeclient: write request: %w", err)
	}
	hdr, body, err := wire.ReadFrame(conn)
	if err != nil {
		return "", fmt.Errorf("mungeclient: read response: %w", err)
	}
	if hdr.Type != wire.EncRsp {
		return "", fmt.Errorf("mungeclient: unexpected response frame type %s", hdr.Type)
	}
	resp, err := wire.UnmarshalEncodeResponse(body)
	if err != nil {
		return "", fmt.Errorf("mungeclient: malformed response: %w", err)
	}
	if resp.Kind != munge.Success {
		return "", &Error{Kind: resp.Kind, Detail: resp.Detail}
	}
	return resp.Credential, nil
}

// DecodeResult is the decoded metadata of a successfully (or
// soft-failed) decoded credential. See Decode's documentation for how
// soft failures are reported.
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
	Addr       net.IP
	Data       []byte
}

// Decode asks the daemon to verify and unpack an armored credential. On a
// "soft" failure (CRED_EXPIRED, CRED_REWOUND, CRED_REPLAYED, per
// munge.ErrorKind.Soft) the returned error is a non-nil *Error but result
// is still populated with whatever metadata the daemon recovered --
// callers that want to display "who sent this and when" even for an
// expired credential should check errors.As before giving up on result.
func (c *Client) Decode(credential string) (DecodeResult, error) {
	var result DecodeResult
	conn, err := c.dial()
	if err != nil {
		return result, err
	}
	defer conn.Close()

	req := &wire.DecodeRequest{Credential: credential}
	if err := wire.WriteFrame(conn, wire.DecReq, 0, req.Marshal()); err != nil {
		return result, fmt.Errorf("mungeclient: write request: %w", err)
	}
	hdr, body, err := wire.ReadFrame(conn)
	if err != nil {
		return result, fmt.Errorf("mungeclient: read response: %w", err)
	}
	if hdr.Type != wire.DecRsp {
		return result, fmt.Errorf("mungeclient: unexpected response frame type %s", hdr.Type)
	}
	resp, err := wire.UnmarshalDecodeResponse(body)
	if err != nil {
		return result, fmt.Errorf("mungeclient: malformed response: %w", err)
	}

	result = DecodeResult{
		CredUID:    resp.CredUID,
		CredGID:    resp.CredGID,
		EncodeTime: resp.EncodeTime,
		DecodeTime: resp.DecodeTime,
		TTL:        resp.TTL,
		Cipher:     resp.Cipher,
		Mac:        resp.Mac,
		Zip:        resp.Zip,
		Realm:      resp.Realm,
		AuthUID:    resp.AuthUID,
		AuthGID:    resp.AuthGID,
		Addr:       net.IP(resp.Addr),
		Data:       resp.Data,
	}
	if resp.Kind != munge.Success {
		return result, &Error{Kind: resp.Kind, Detail: resp.Detail}
	}
	return result, nil
}
