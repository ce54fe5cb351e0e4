//go:build linux

package peeridentity

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

func peerIdentity(conn net.Conn) (Identity, error) {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return Identity{}, fmt.Errorf("peeridentity: not a unix socket connection")
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return Identity{}, fmt.Errorf("peeridentity: %w", err)
	}

	var cred *unix.Ucred
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		cred, sockErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil {
		return Identity{}, fmt.Errorf("peeridentity: %w", err)
	}
	if sockErr != nil {
		return Identity{}, fmt.Errorf("peeridentity: SO_PEERCRED: %w", sockErr)
	}
	return Identity{UID: cred.Uid, GID: cred.Gid}, nil
}
