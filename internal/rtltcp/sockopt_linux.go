//go:build linux

package rtltcp

import (
	"net"

	"golang.org/x/sys/unix"
)

// tuneSocket asks the kernel not to wake the reader for less than minRead
// bytes. It only cuts wakeups; the decimator output is the same for any
// chunking.
func tuneSocket(tc *net.TCPConn, minRead int) error {
	if tc == nil || minRead <= 1 {
		return nil
	}
	raw, err := tc.SyscallConn()
	if err != nil {
		return err
	}
	var serr error
	if err := raw.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVLOWAT, minRead)
	}); err != nil {
		return err
	}
	return serr
}
