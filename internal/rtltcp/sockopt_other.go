//go:build !linux

package rtltcp

import "net"

func tuneSocket(*net.TCPConn, int) error { return nil }
