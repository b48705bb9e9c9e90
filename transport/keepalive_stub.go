// File: transport/keepalive_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

//go:build !linux

package transport

import "net"

// setKeepaliveOptions falls back to the portable knob: the net package
// drives idle and interval together from one period.
func setKeepaliveOptions(tcp *net.TCPConn, ka Keepalive) error {
	if ka.Idle > 0 {
		return tcp.SetKeepAlivePeriod(ka.Idle)
	}
	return nil
}
