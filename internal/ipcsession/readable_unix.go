//go:build unix

package ipcsession

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// peerGone reports whether conn has input or a hangup pending. With no
// request outstanding, either means the server closed its end.
// Connections without a file descriptor are assumed alive.
func peerGone(conn net.Conn) bool {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return false
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return true
	}
	gone := false
	ctrlErr := raw.Control(func(fd uintptr) {
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		for {
			n, err := unix.Poll(fds, 0)
			if err == unix.EINTR {
				continue
			}
			if err != nil {
				gone = true
				return
			}
			gone = n > 0 && fds[0].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0
			return
		}
	})
	if ctrlErr != nil {
		return true
	}
	return gone
}
