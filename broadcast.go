package lcp

import (
	"net"
	"syscall"
)

// enableBroadcast sets SO_BROADCAST on the shared UDP socket so sends
// to a directed broadcast address succeed. Grounded on
// burgrp-surp-go's pkg/udp.go, which reaches for
// syscall.SetsockoptInt the same way to tune a UDP socket's options;
// here via SyscallConn().Control instead of File() so the duplicated
// descriptor isn't leaked.
func enableBroadcast(conn *net.UDPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
