package worker

import (
	"net"

	"github.com/dun/munge/internal/engine"
	"github.com/dun/munge/internal/mlog"
	"github.com/dun/munge/internal/munge"
	"github.com/dun/munge/internal/peeridentity"
	"github.com/dun/munge/internal/replay"
	"github.com/dun/munge/internal/wire"
)

// Dispatcher wires one connection's single request/response exchange
// through to the engine, matching spec §4.8's "one request, one response,
// close" connection contract.
type Dispatcher struct {
	Engine *engine.Engine
	Log    *mlog.Logger
}

// Handle implements worker.Handler. It reads exactly one framed request,
// runs it through the engine, and writes exactly one framed response,
// whatever the engine's outcome. If the peer identity lookup or the
// request frame read fails, Handle returns without writing a response.
// Transport errors are logged, not retried, since the connection is
// one-shot by contract.
func (d *Dispatcher) Handle(conn net.Conn) {
	id, err := peeridentity.Of(conn)
	if err != nil {
		d.logf("peer identity lookup failed: %v", err)
		return
	}

	hdr, payload, err := wire.ReadFrame(conn)
	if err != nil {
		d.logf("frame read failed: %v", err)
		return
	}

	respType, respPayload, fp := d.process(hdr, payload, id)
	if err := wire.WriteFrame(conn, respType, hdr.Retry, respPayload); err != nil {
		d.logf("frame write failed: %v", err)
		if fp != nil {
			// The peer decoded fine but never got the response, so its
			// retry must not be rejected as a replay (spec §4.3/§4.7 step
			// 14).
			d.Engine.Replay.Remove(*fp)
		}
	}
}

func (d *Dispatcher) process(hdr wire.Header, payload []byte, id peeridentity.Identity) (wire.FrameType, []byte, *replay.Fingerprint) {
	switch hdr.Type {
	case wire.EncReq:
		respType, respPayload := d.handleEncode(hdr, payload, id)
		return respType, respPayload, nil
	case wire.DecReq:
		return d.handleDecode(hdr, payload, id)
	default:
		resp := &wire.EncodeResponse{Kind: munge.BadArg, Detail: "unrecognized request type"}
		return wire.EncRsp, resp.Marshal(), nil
	}
}

func (d *Dispatcher) handleEncode(hdr wire.Header, payload []byte, id peeridentity.Identity) (wire.FrameType, []byte) {
	req, err := wire.UnmarshalEncodeRequest(payload)
	if err != nil {
		resp := &wire.EncodeResponse{Kind: munge.BadLength, Detail: err.Error()}
		return wire.EncRsp, resp.Marshal()
	}

	cred, err := d.Engine.Encode(engine.EncodeParams{
		Cipher:    req.Cipher,
		Mac:       req.Mac,
		Zip:       req.Zip,
		Realm:     req.Realm,
		TTL:       req.TTL,
		AuthUID:   req.AuthUID,
		AuthGID:   req.AuthGID,
		Data:      req.Data,
		ClientUID: id.UID,
		ClientGID: id.GID,
		Retry:     hdr.Retry,
	})
	if err != nil {
		resp := &wire.EncodeResponse{Kind: munge.KindOf(err), Detail: err.Error()}
		return wire.EncRsp, resp.Marshal()
	}
	resp := &wire.EncodeResponse{Kind: munge.Success, Credential: cred}
	return wire.EncRsp, resp.Marshal()
}

func (d *Dispatcher) handleDecode(hdr wire.Header, payload []byte, id peeridentity.Identity) (wire.FrameType, []byte, *replay.Fingerprint) {
	req, err := wire.UnmarshalDecodeRequest(payload)
	if err != nil {
		resp := &wire.DecodeResponse{Kind: munge.BadLength, Detail: err.Error()}
		return wire.DecRsp, resp.Marshal(), nil
	}

	res, err := d.Engine.Decode(engine.DecodeParams{
		Credential: req.Credential,
		ClientUID:  id.UID,
		ClientGID:  id.GID,
		Retry:      hdr.Retry,
	})
	resp := &wire.DecodeResponse{
		Kind:       munge.Success,
		CredUID:    res.CredUID,
		CredGID:    res.CredGID,
		EncodeTime: res.EncodeTime,
		DecodeTime: res.DecodeTime,
		TTL:        res.TTL,
		Cipher:     res.Cipher,
		Mac:        res.Mac,
		Zip:        res.Zip,
		Realm:      res.Realm,
		AuthUID:    res.AuthUID,
		AuthGID:    res.AuthGID,
		Addr:       res.Addr,
		Data:       res.Data,
	}
	if err != nil {
		resp.Kind = munge.KindOf(err)
		resp.Detail = err.Error()
		return wire.DecRsp, resp.Marshal(), nil
	}
	fp := res.ReplayFingerprint
	return wire.DecRsp, resp.Marshal(), &fp
}

func (d *Dispatcher) logf(format string, args ...interface{}) {
	if d.Log != nil {
		d.Log.Warnf(format, args...)
	}
}
