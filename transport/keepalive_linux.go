// File: transport/keepalive_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// setKeepaliveOptions sets the probe timing knobs the net package does
// not expose individually: TCP_KEEPIDLE, TCP_KEEPINTVL and TCP_KEEPCNT.
func setKeepaliveOptions(tcp *net.TCPConn, ka Keepalive) error {
	raw, err := tcp.SyscallConn()
	if err != nil {
		return err
	}
	var optErr error
	ctlErr := raw.Control(func(fd uintptr) {
		if ka.Idle > 0 {
			if err := unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, seconds(ka.Idle)); err != nil {
				optErr = err
				return
			}
		}
		if ka.Interval > 0 {
			if err := unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, seconds(ka.Interval)); err != nil {
				optErr = err
				return
			}
		}
		if ka.Count > 0 {
			if err := unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPCNT, ka.Count); err != nil {
				optErr = err
				return
			}
		}
	})
	if ctlErr != nil {
		return ctlErr
	}
	return optErr
}

func seconds(d time.Duration) int {
	s := int(d / time.Second)
	if s < 1 {
		s = 1
	}
	return s
}
