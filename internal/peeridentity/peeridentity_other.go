//go:build !linux

package peeridentity

import (
	"fmt"
	"net"
)

func peerIdentity(conn net.Conn) (Identity, error) {
	return Identity{}, fmt.Errorf("peeridentity: peer credential lookup not supported on this platform")
}
