//go:build linux

// File: reactor/sockopts_linux.go
//
// Applies Linux socket options to a freshly bound listener via raw
// syscalls, the one place this package reaches past net.Listener's
// portable surface (grounded on the teacher's epoll_reactor.go, which
// drives the same golang.org/x/sys/unix package directly against raw
// file descriptors).
package reactor

import (
	"net"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// applyListenerOptions sets SO_REUSEADDR on the listening socket so a
// restarted broker can rebind a port still draining TIME_WAIT sockets
// from a prior run.
func applyListenerOptions(ln net.Listener, log zerolog.Logger) {
	tl, ok := ln.(*net.TCPListener)
	if !ok {
		return
	}
	raw, err := tl.SyscallConn()
	if err != nil {
		log.Warn().Err(err).Msg("SyscallConn unavailable, skipping SO_REUSEADDR")
		return
	}
	ctrlErr := raw.Control(func(fd uintptr) {
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			log.Warn().Err(err).Msg("SO_REUSEADDR failed")
		}
	})
	if ctrlErr != nil {
		log.Warn().Err(ctrlErr).Msg("socket control failed")
	}
}
