// Package peeridentity resolves the UID and GID of the process on the
// other end of a Unix domain socket connection -- the credential-free
// authentication step original_source/src/munged/auth_recv.c performs via
// whichever of getpeereid/getpeerucred/SO_PEERCRED/LOCAL_PEERCRED/fd-passing
// the host platform supports. This build targets the SO_PEERCRED sockopt
// path, the one Linux exposes.
package peeridentity

import "net"

// Identity is the authenticated credential/auth UID and GID pair of a
// connected peer.
type Identity struct {
	UID uint32
	GID uint32
}

// Of extracts the peer identity from conn, which must be backed by a Unix
// domain socket.
func Of(conn net.Conn) (Identity, error) {
	return peerIdentity(conn)
}
